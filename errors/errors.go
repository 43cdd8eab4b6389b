package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrUnknownIdentity    = fmt.Errorf("unknown identity")
	ErrNotJoined          = fmt.Errorf("connection has not joined a room")
	ErrInvalidContent     = fmt.Errorf("invalid message content")
	ErrPersistenceFailed  = fmt.Errorf("message persistence failed")
	ErrUnknownRoom        = fmt.Errorf("unknown room")
	ErrAlreadyJoined      = fmt.Errorf("connection already joined a room")
	ErrInvalidRequest     = fmt.Errorf("invalid request")
	ErrForbidden          = fmt.Errorf("identity does not match the authenticated user")
	ErrUnavailable        = fmt.Errorf("collaborator unavailable")
	ErrUnsupported        = fmt.Errorf("unsupported event type")
	ErrUnknownConnection  = fmt.Errorf("unknown connection")
	ErrSlowConsumer       = fmt.Errorf("connection buffer is full")
	ErrSinkClosed         = fmt.Errorf("connection sink is closed")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrEmptyWords         = fmt.Errorf("no words have been found")
	ErrInvalidIdentity    = fmt.Errorf("invalid identity")
	ErrInvalidMatch       = fmt.Errorf("invalid match")
	ErrUnauthenticated    = fmt.Errorf("authentication required")
	ErrInvalidReplacement = fmt.Errorf("character replacement must be a single character")
)

// Kind is the wire name of an error reported to a connection.
type Kind string

const (
	KindUnknownIdentity   Kind = "UnknownIdentity"
	KindNotJoined         Kind = "NotJoined"
	KindInvalidContent    Kind = "InvalidContent"
	KindPersistenceFailed Kind = "PersistenceFailed"
	KindUnknownRoom       Kind = "UnknownRoom"
	KindAlreadyJoined     Kind = "AlreadyJoined"
	KindInvalidRequest    Kind = "InvalidRequest"
	KindForbidden         Kind = "Forbidden"
	KindUnavailable       Kind = "Unavailable"
	KindUnsupported       Kind = "Unsupported"
	KindInternal          Kind = "Internal"
)

var kinds = []struct {
	err  error
	kind Kind
	code codes.Code
}{
	{ErrUnknownIdentity, KindUnknownIdentity, codes.NotFound},
	{ErrNotJoined, KindNotJoined, codes.FailedPrecondition},
	{ErrInvalidContent, KindInvalidContent, codes.InvalidArgument},
	{ErrPersistenceFailed, KindPersistenceFailed, codes.Unavailable},
	{ErrUnknownRoom, KindUnknownRoom, codes.NotFound},
	{ErrAlreadyJoined, KindAlreadyJoined, codes.FailedPrecondition},
	{ErrInvalidRequest, KindInvalidRequest, codes.InvalidArgument},
	{ErrForbidden, KindForbidden, codes.PermissionDenied},
	{ErrUnavailable, KindUnavailable, codes.Unavailable},
	{ErrUnsupported, KindUnsupported, codes.Unimplemented},
	{ErrUnauthenticated, KindForbidden, codes.Unauthenticated},
	{ErrUnknownConnection, KindInternal, codes.Internal},
}

// KindOf returns the wire kind of err, looking through wrapped errors.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if stderrors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// MapToGRPCError converts a domain error into a gRPC status error.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, k := range kinds {
		if stderrors.Is(err, k.err) {
			return status.Error(k.code, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}
