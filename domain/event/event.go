package event

import (
	"match-chat/domain"
)

// Type names an outbound event on the wire.
type Type string

const (
	JoinedType         Type = "joined"
	MemberArrivedType  Type = "memberArrived"
	MemberDepartedType Type = "memberDeparted"
	NewMessageType     Type = "newMessage"
	FailureType        Type = "error"
	HistoryType        Type = "history"
	PongType           Type = "pong"
)

// DomainEvent is anything delivered to a connection of a room.
type DomainEvent interface {
	RoomID() domain.RoomID
	Type() Type
}

// Joined is sent to the connection that just joined.
type Joined struct {
	Room       domain.RoomID
	Membership []domain.Identity
}

func (e Joined) RoomID() domain.RoomID { return e.Room }
func (e Joined) Type() Type            { return JoinedType }

// MemberArrived is sent to the other connections of a room
// when an identity becomes present.
type MemberArrived struct {
	Room       domain.RoomID
	Member     domain.Identity
	Membership []domain.Identity
}

func (e MemberArrived) RoomID() domain.RoomID { return e.Room }
func (e MemberArrived) Type() Type            { return MemberArrivedType }

// MemberDeparted is sent to the remaining connections of a room
// when the last connection of an identity leaves.
type MemberDeparted struct {
	Room       domain.RoomID
	Member     domain.Identity
	Membership []domain.Identity
}

func (e MemberDeparted) RoomID() domain.RoomID { return e.Room }
func (e MemberDeparted) Type() Type            { return MemberDepartedType }

// NewMessage carries a persisted message to every connection of its room.
type NewMessage struct {
	Message domain.ChatMessage
}

func (e NewMessage) RoomID() domain.RoomID { return e.Message.Room }
func (e NewMessage) Type() Type            { return NewMessageType }

// Failure is reported to the offending connection only.
type Failure struct {
	Room      domain.RoomID
	RequestID string
	Kind      string
	Detail    string
}

func (e Failure) RoomID() domain.RoomID { return e.Room }
func (e Failure) Type() Type            { return FailureType }

// History answers a history request with one page of posts, newest first.
type History struct {
	Room      domain.RoomID
	RequestID string
	Posts     []domain.Post
	Cursor    *string
}

func (e History) RoomID() domain.RoomID { return e.Room }
func (e History) Type() Type            { return HistoryType }

// Pong answers an application level ping.
type Pong struct {
	RequestID string
}

func (e Pong) RoomID() domain.RoomID { return "" }
func (e Pong) Type() Type            { return PongType }
