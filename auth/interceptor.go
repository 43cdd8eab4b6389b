package auth

import (
	"context"
	"strings"

	"match-chat/errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// WithUserID stores the authenticated user in the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// UserIDFromContext returns the authenticated user, empty when anonymous.
func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

// StreamInterceptor validates the "authorization" metadata of every stream
// and injects the user id into the stream context.
func StreamInterceptor(a *Authenticator) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if !a.Enabled() || strings.HasPrefix(info.FullMethod, "/grpc.health.v1.") {
			return handler(srv, ss)
		}

		var header string
		if md, ok := metadata.FromIncomingContext(ss.Context()); ok {
			if values := md.Get("authorization"); len(values) > 0 {
				header = values[0]
			}
		}
		userID, err := a.Authenticate(header)
		if err != nil {
			return errors.MapToGRPCError(err)
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: WithUserID(ss.Context(), userID)})
	}
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context { return s.ctx }
