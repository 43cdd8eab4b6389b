//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"match-chat/domain"
	"match-chat/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives events addressed to one connection, or to an observer.
// Consume must not block: the coordinator calls it while serializing a room.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IdentityResolver resolves a user reference.
// It returns errors.ErrUnknownIdentity when the user does not exist.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, identityID string) (domain.Identity, error)
}

// MessageStore is the system of record for chat messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, draft domain.Draft) (domain.StoredMessage, error)
}

// MatchDirectory tells whether a match exists.
type MatchDirectory interface {
	MatchExists(ctx context.Context, roomID domain.RoomID) (bool, error)
}

// MessageHistory pages through persisted posts of a room, newest first.
type MessageHistory interface {
	GetMessages(ctx context.Context, roomID domain.RoomID, cursor *string, limit int) ([]domain.Post, *string, error)
}

// Moderator rewrites message content before it is persisted.
type Moderator interface {
	Censor(content string) (string, []string)
}
