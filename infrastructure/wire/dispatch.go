package wire

import (
	"context"
	"encoding/json"
	"fmt"

	"match-chat/domain"
	"match-chat/errors"
	"match-chat/services"
)

// Dispatch applies one inbound frame on behalf of a connection.
// Failures are already reported to the connection, the returned error is
// only meant for logging and never requires closing the connection.
func Dispatch(ctx context.Context, service services.IChatService, conn domain.ConnectionID, principal string, frame Frame) error {
	service.Touch(conn)

	switch frame.Type {
	case TypeJoin:
		var p JoinPayload
		if err := unmarshal(frame, &p); err != nil {
			return service.Reject(conn, frame.RequestID, err)
		}
		return service.Join(ctx, conn, principal, domain.JoinCommand{
			RequestID:  frame.RequestID,
			Room:       domain.RoomID(p.RoomID),
			IdentityID: p.IdentityID,
		})
	case TypeLeave:
		service.Leave(conn)
		return nil
	case TypeSend:
		var p SendPayload
		if err := unmarshal(frame, &p); err != nil {
			return service.Reject(conn, frame.RequestID, err)
		}
		return service.Send(ctx, conn, domain.SendCommand{
			RequestID: frame.RequestID,
			Content:   p.Content,
			Category:  domain.Category(p.Category),
		})
	case TypeHistory:
		var p HistoryPayload
		if err := unmarshal(frame, &p); err != nil {
			return service.Reject(conn, frame.RequestID, err)
		}
		return service.History(ctx, conn, domain.HistoryCommand{
			RequestID: frame.RequestID,
			Cursor:    p.Cursor,
			Limit:     p.Limit,
		})
	case TypePing:
		service.Ping(conn, frame.RequestID)
		return nil
	default:
		return service.Reject(conn, frame.RequestID, fmt.Errorf("%w: %q", errors.ErrUnsupported, frame.Type))
	}
}

// unmarshal accepts an absent payload as the zero value.
func unmarshal(frame Frame, v any) error {
	if len(frame.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(frame.Payload, v); err != nil {
		return fmt.Errorf("%w: invalid %s payload", errors.ErrInvalidRequest, frame.Type)
	}
	return nil
}
