package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"testing"
	"time"

	"match-chat/auth"
	"match-chat/domain"
	"match-chat/infrastructure/wire"
	"match-chat/mocks"
	"match-chat/observability"
	"match-chat/runtime"
	"match-chat/services"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type harness struct {
	cc   *grpc.ClientConn
	chat *ChatServer
}

func newHarness(t *testing.T, authenticator *auth.Authenticator) *harness {
	ctrl := gomock.NewController(t)
	identities := mocks.NewMockIdentityResolver(ctrl)
	identities.EXPECT().ResolveIdentity(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id string) (domain.Identity, error) {
			return domain.Identity{ID: id, DisplayName: id}, nil
		}).AnyTimes()
	store := mocks.NewMockMessageStore(ctrl)
	store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).
		Return(domain.StoredMessage{ID: "p1", CreatedAt: time.Now()}, nil).AnyTimes()

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	coordinator := runtime.NewCoordinator(log, runtime.NewRegistry(), runtime.NewMembershipTable(), identities, store,
		runtime.CoordinatorConfig{MaxContentLength: 100, PersistTimeout: time.Second, LookupTimeout: time.Second})
	metrics := observability.NewMetrics(coordinator)
	chat := NewChatServer(log, services.NewChatService(coordinator, metrics), metrics, 16, time.Second)
	s, _ := NewGRPCServer(chat, authenticator, Config{PingInterval: time.Minute, PingTimeout: 10 * time.Second})

	lis := bufconn.Listen(1024 * 1024)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	return &harness{cc: cc, chat: chat}
}

func (h *harness) open(t *testing.T, ctx context.Context) SessionClient {
	t.Helper()
	stream, err := OpenSession(ctx, h.cc)
	require.NoError(t, err)
	return stream
}

func join(room, identity string) *wire.Frame {
	payload, _ := json.Marshal(wire.JoinPayload{RoomID: room, IdentityID: identity})
	return &wire.Frame{Type: wire.TypeJoin, RequestID: "j-" + identity, Payload: payload}
}

func TestChatServer_Session(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, auth.NewAuthenticator(""))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a, b := h.open(t, ctx), h.open(t, ctx)

	// Given A in M1
	req.NoError(a.Send(join("M1", "A")))
	frame, err := a.Recv()
	req.NoError(err)
	req.Equal("joined", frame.Type)

	// When B joins
	req.NoError(b.Send(join("M1", "B")))
	frame, err = b.Recv()
	req.NoError(err)
	req.Equal("joined", frame.Type)

	// Then A is told
	frame, err = a.Recv()
	req.NoError(err)
	req.Equal("memberArrived", frame.Type)

	// And B's message reaches both
	req.NoError(b.Send(&wire.Frame{Type: wire.TypeSend, Payload: []byte(`{"content":"1-0 at half time"}`)}))
	for _, stream := range []SessionClient{a, b} {
		frame, err = stream.Recv()
		req.NoError(err)
		req.Equal("newMessage", frame.Type)
	}

	// When B ends its stream, A sees the departure
	req.NoError(b.CloseSend())
	frame, err = a.Recv()
	req.NoError(err)
	req.Equal("memberDeparted", frame.Type)
}

func TestChatServer_Rejects_Frame_Without_Type(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, auth.NewAuthenticator(""))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream := h.open(t, ctx)

	req.NoError(stream.Send(&wire.Frame{RequestID: "x"}))

	frame, err := stream.Recv()
	req.NoError(err)
	req.Equal("error", frame.Type)
	req.Equal("x", frame.RequestID)
}

func TestChatServer_Shutdown_Ends_Sessions(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, auth.NewAuthenticator(""))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream := h.open(t, ctx)
	req.NoError(stream.Send(&wire.Frame{Type: wire.TypePing}))
	_, err := stream.Recv()
	req.NoError(err)

	h.chat.Shutdown()

	_, err = stream.Recv()
	req.Equal(codes.Unavailable, status.Code(err))
}

func TestChatServer_Requires_Token(t *testing.T) {
	req := require.New(t)
	authenticator := auth.NewAuthenticator("secret")
	h := newHarness(t, authenticator)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Health stays reachable without a token
	resp, err := healthpb.NewHealthClient(h.cc).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	req.NoError(err)
	req.Equal(healthpb.HealthCheckResponse_SERVING, resp.Status)

	// A session without a token is refused on first receive
	stream := h.open(t, ctx)
	_, err = stream.Recv()
	req.Equal(codes.Unauthenticated, status.Code(err))

	// With a token the session works
	token, err := authenticator.GenerateToken("A", nil, time.Minute)
	req.NoError(err)
	authed := h.open(t, metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token))
	req.NoError(authed.Send(join("M1", "A")))
	frame, err := authed.Recv()
	req.NoError(err)
	req.Equal("joined", frame.Type)
}
