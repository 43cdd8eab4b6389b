package services

import (
	"context"
	"fmt"
	"strings"

	"match-chat/contract"
	"match-chat/domain"
	"match-chat/errors"
	"match-chat/observability"
	"match-chat/runtime"
)

// IChatService is what the transports (WebSocket, gRPC, HTTP) talk to.
type IChatService interface {
	Open(sink contract.EventSink) domain.ConnectionID
	Close(conn domain.ConnectionID)
	Join(ctx context.Context, conn domain.ConnectionID, principal string, cmd domain.JoinCommand) error
	Leave(conn domain.ConnectionID)
	Send(ctx context.Context, conn domain.ConnectionID, cmd domain.SendCommand) error
	History(ctx context.Context, conn domain.ConnectionID, cmd domain.HistoryCommand) error
	Ping(conn domain.ConnectionID, requestID string)
	Touch(conn domain.ConnectionID)
	Reject(conn domain.ConnectionID, requestID string, err error) error
	Presence(room domain.RoomID) []domain.Identity
}

type ChatService struct {
	coordinator *runtime.Coordinator
	metrics     *observability.Metrics
}

func NewChatService(coordinator *runtime.Coordinator, metrics *observability.Metrics) *ChatService {
	return &ChatService{coordinator: coordinator, metrics: metrics}
}

func (s *ChatService) Open(sink contract.EventSink) domain.ConnectionID {
	return s.coordinator.Open(sink)
}

// Close runs the disconnect path. Safe to call more than once.
func (s *ChatService) Close(conn domain.ConnectionID) {
	s.coordinator.HandleDisconnect(conn)
}

// Join checks that an authenticated caller only joins as themself.
// An empty principal means authentication is disabled.
func (s *ChatService) Join(ctx context.Context, conn domain.ConnectionID, principal string, cmd domain.JoinCommand) error {
	if principal != "" && principal != strings.TrimSpace(cmd.IdentityID) {
		return s.Reject(conn, cmd.RequestID, fmt.Errorf("%w: %s", errors.ErrForbidden, cmd.IdentityID))
	}
	return s.count(s.coordinator.HandleJoin(ctx, conn, cmd))
}

func (s *ChatService) Leave(conn domain.ConnectionID) {
	s.coordinator.HandleLeave(conn)
}

func (s *ChatService) Send(ctx context.Context, conn domain.ConnectionID, cmd domain.SendCommand) error {
	return s.count(s.coordinator.HandleSend(ctx, conn, cmd))
}

func (s *ChatService) History(ctx context.Context, conn domain.ConnectionID, cmd domain.HistoryCommand) error {
	return s.count(s.coordinator.HandleHistory(ctx, conn, cmd))
}

func (s *ChatService) Ping(conn domain.ConnectionID, requestID string) {
	s.coordinator.Ping(conn, requestID)
}

func (s *ChatService) Touch(conn domain.ConnectionID) {
	s.coordinator.Touch(conn)
}

// Reject reports a transport level problem (bad frame, unknown type) to the connection.
func (s *ChatService) Reject(conn domain.ConnectionID, requestID string, err error) error {
	room := domain.RoomID("")
	if b, ok := s.coordinator.Binding(conn); ok {
		room = b.Room
	}
	return s.count(s.coordinator.Fail(conn, room, requestID, err))
}

func (s *ChatService) Presence(room domain.RoomID) []domain.Identity {
	return s.coordinator.Snapshot(room)
}

func (s *ChatService) count(err error) error {
	if err != nil {
		s.metrics.Failed(string(errors.KindOf(err)))
	}
	return err
}
