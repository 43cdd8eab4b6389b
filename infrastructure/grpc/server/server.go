package server

import (
	"time"

	"match-chat/auth"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

type Config struct {
	PingInterval time.Duration
	PingTimeout  time.Duration
}

// NewGRPCServer registers the chat and health services behind the auth interceptor.
// Keepalive pings detect peers that vanished without closing their stream.
func NewGRPCServer(chat *ChatServer, authenticator *auth.Authenticator, cfg Config) (*grpc.Server, *health.Server) {
	s := grpc.NewServer(
		grpc.StreamInterceptor(auth.StreamInterceptor(authenticator)),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    cfg.PingInterval,
			Timeout: cfg.PingTimeout,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             cfg.PingInterval / 2,
			PermitWithoutStream: true,
		}),
	)
	RegisterMatchChatServer(s, chat)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s, healthServer
}
