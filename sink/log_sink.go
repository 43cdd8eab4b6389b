package sink

import (
	"context"
	"fmt"
	"log/slog"

	"match-chat/domain/event"
)

// LogSink writes a structured line per room event.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) LogSink {
	return LogSink{log: log}
}

func (s LogSink) Consume(ctx context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MemberArrived:
		s.log.InfoContext(ctx, "Member arrived",
			"room_id", evt.Room, "identity_id", evt.Member.ID, "members", len(evt.Membership))
	case event.MemberDeparted:
		s.log.InfoContext(ctx, "Member departed",
			"room_id", evt.Room, "identity_id", evt.Member.ID, "members", len(evt.Membership))
	case event.NewMessage:
		s.log.InfoContext(ctx, "Message posted",
			"room_id", evt.Message.Room, "message_id", evt.Message.ID,
			"identity_id", evt.Message.Author.ID, "category", evt.Message.Category)
	default:
		s.log.Debug(fmt.Sprintf("Not logged event : %v", evt.Type()))
	}
	return nil
}
