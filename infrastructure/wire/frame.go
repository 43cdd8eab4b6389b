// Package wire defines the JSON frames exchanged with chat clients.
// Both the WebSocket and the gRPC transports carry the same frames.
package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"match-chat/domain"
	"match-chat/domain/event"
	"match-chat/errors"
)

// Inbound frame types.
const (
	TypeJoin    = "join"
	TypeLeave   = "leave"
	TypeSend    = "send"
	TypeHistory = "history"
	TypePing    = "ping"
)

// MaxPayloadBytes bounds the payload of an inbound frame.
const MaxPayloadBytes = 16 * 1024

type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type JoinPayload struct {
	RoomID     string `json:"roomId"`
	IdentityID string `json:"identityId"`
}

type SendPayload struct {
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
}

type HistoryPayload struct {
	Cursor *string `json:"cursor,omitempty"`
	Limit  int     `json:"limit,omitempty"`
}

type MembershipPayload struct {
	RoomID     string            `json:"roomId"`
	Member     *domain.Identity  `json:"member,omitempty"`
	Membership []domain.Identity `json:"membership"`
}

type Message struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"roomId"`
	Author    domain.Identity `json:"author"`
	Content   string          `json:"content"`
	Category  string          `json:"category"`
	Language  string          `json:"language,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type NewMessagePayload struct {
	Message Message `json:"message"`
}

type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	Language  string    `json:"language,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type HistoryPagePayload struct {
	RoomID   string  `json:"roomId"`
	Messages []Post  `json:"messages"`
	Cursor   *string `json:"cursor,omitempty"`
}

type ErrorPayload struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Decode parses one inbound frame.
func Decode(data []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Frame{}, fmt.Errorf("%w: invalid frame", errors.ErrInvalidRequest)
	}
	return frame, Validate(frame)
}

// Validate checks the envelope of a frame that was already parsed.
func Validate(frame Frame) error {
	if frame.Type == "" {
		return fmt.Errorf("%w: missing frame type", errors.ErrInvalidRequest)
	}
	if len(frame.Payload) > MaxPayloadBytes {
		return fmt.Errorf("%w: payload too large", errors.ErrInvalidRequest)
	}
	return nil
}

// Encode turns an outbound event into a frame.
func Encode(evt event.DomainEvent) (Frame, error) {
	var requestID string
	var payload any

	switch e := evt.(type) {
	case event.Joined:
		payload = MembershipPayload{RoomID: e.Room.String(), Membership: membership(e.Membership)}
	case event.MemberArrived:
		payload = MembershipPayload{RoomID: e.Room.String(), Member: &e.Member, Membership: membership(e.Membership)}
	case event.MemberDeparted:
		payload = MembershipPayload{RoomID: e.Room.String(), Member: &e.Member, Membership: membership(e.Membership)}
	case event.NewMessage:
		payload = NewMessagePayload{Message: toMessage(e.Message)}
	case event.Failure:
		requestID = e.RequestID
		payload = ErrorPayload{Kind: e.Kind, Detail: e.Detail}
	case event.History:
		requestID = e.RequestID
		payload = HistoryPagePayload{RoomID: e.Room.String(), Messages: toPosts(e.Posts), Cursor: e.Cursor}
	case event.Pong:
		requestID = e.RequestID
		payload = struct{}{}
	default:
		return Frame{}, fmt.Errorf("%w: %T", errors.ErrUnsupported, evt)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: string(evt.Type()), RequestID: requestID, Payload: b}, nil
}

func membership(ids []domain.Identity) []domain.Identity {
	if ids == nil {
		return []domain.Identity{}
	}
	return ids
}

func toMessage(m domain.ChatMessage) Message {
	return Message{
		ID:        m.ID,
		RoomID:    m.Room.String(),
		Author:    m.Author,
		Content:   m.Content,
		Category:  string(m.Category),
		Language:  m.Language,
		CreatedAt: m.CreatedAt,
	}
}

func toPosts(posts []domain.Post) []Post {
	res := make([]Post, 0, len(posts))
	for _, p := range posts {
		res = append(res, Post{
			ID:        p.ID,
			AuthorID:  p.AuthorID,
			Content:   p.Content,
			Category:  string(p.Category),
			Language:  p.Language,
			CreatedAt: p.CreatedAt,
		})
	}
	return res
}
