package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"match-chat/auth"
	"match-chat/domain"
	grpcserver "match-chat/infrastructure/grpc/server"
	"match-chat/infrastructure/wire"
	"match-chat/internal"
	"match-chat/internal/app"

	"github.com/coder/websocket"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// BaseSuite runs the whole server in-process on ephemeral ports,
// seeded with a couple of fans and one match.
type BaseSuite struct {
	suite.Suite
	Config Config

	app    *app.App
	cancel context.CancelFunc
	done   chan error
}

var (
	Alice = domain.Identity{ID: "alice", DisplayName: "Alice"}
	Bob   = domain.Identity{ID: "bob", DisplayName: "Bob", AvatarRef: "avatars/bob.png"}
	M1    = domain.Match{ID: "M1", Home: "Lyon", Away: "Nantes", KickOff: time.Date(2026, 6, 11, 21, 0, 0, 0, time.UTC)}
)

func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	a, err := app.New(internal.Config{
		Host:                  "127.0.0.1",
		LogLevel:              s.Config.LogLevel,
		BadgerFilepath:        s.T().TempDir(),
		BadgerValueLogSize:    16 << 20,
		ConnectionBufferSize:  64,
		EventBufferSize:       256,
		MaxContentLength:      280,
		HistoryLimit:          20,
		PersistTimeout:        2 * time.Second,
		LookupTimeout:         time.Second,
		SinkTimeout:           500 * time.Millisecond,
		PingInterval:          20 * time.Second,
		PingTimeout:           10 * time.Second,
		LivenessTimeout:       90 * time.Second,
		LivenessSweepInterval: 15 * time.Second,
		RestartInterval:       100 * time.Millisecond,
		ShutdownTimeout:       5 * time.Second,
		CheckMatchExists:      true,
		EnableModeration:      true,
		CharReplacement:       "*",
		AuthSecret:            s.Config.AuthSecret,
		AuthTokenDuration:     time.Hour,
	}, logs.GetLoggerFromString(s.Config.LogLevel))
	s.Require().NoError(err)
	s.app = a

	ctx := context.Background()
	s.Require().NoError(a.Users().PutUser(ctx, Alice))
	s.Require().NoError(a.Users().PutUser(ctx, Bob))
	s.Require().NoError(a.Matches().PutMatch(ctx, M1))

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() { s.done <- a.Run(runCtx) }()

	s.Require().Eventually(func() bool {
		resp, err := http.Get(s.URL("/healthz"))
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)
}

func (s *BaseSuite) TearDownSuite() {
	s.cancel()
	select {
	case err := <-s.done:
		s.NoError(err)
	case <-time.After(10 * time.Second):
		s.Fail("server did not stop")
	}
}

func (s *BaseSuite) URL(path string) string { return "http://" + s.app.HTTPAddr() + path }

func (s *BaseSuite) Token(userID string) string {
	token, err := auth.NewAuthenticator(s.Config.AuthSecret).GenerateToken(userID, []string{"fan"}, time.Hour)
	s.Require().NoError(err)
	return token
}

// Step prints a header for a contextual test step.
func (s *BaseSuite) Step(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// GrpcSession opens a Session stream authenticated as userID.
// Every frame is logged when E2E_DEBUG_JSON is set.
func (s *BaseSuite) GrpcSession(ctx context.Context, userID string) grpcserver.SessionClient {
	t := s.T()
	conn, err := grpc.NewClient(s.app.GRPCAddr(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStreamInterceptor(func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string,
			streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
			stream, err := streamer(ctx, desc, cc, method, opts...)
			if err != nil || !s.Config.DebugJSON {
				return stream, err
			}
			return &loggingStream{ClientStream: stream, t: t, user: userID}, nil
		}),
	)
	s.Require().NoError(err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+s.Token(userID))
	stream, err := grpcserver.OpenSession(ctx, conn)
	s.Require().NoError(err)
	return stream
}

type loggingStream struct {
	grpc.ClientStream
	t    *testing.T
	user string
}

func (l *loggingStream) SendMsg(m any) error {
	b, _ := json.Marshal(m)
	l.t.Logf("GRPC %s >> %s", l.user, b)
	return l.ClientStream.SendMsg(m)
}

func (l *loggingStream) RecvMsg(m any) error {
	err := l.ClientStream.RecvMsg(m)
	b, _ := json.Marshal(m)
	l.t.Logf("GRPC %s << %s (err=%v)", l.user, b, err)
	return err
}

// WebSocket dials the WebSocket endpoint authenticated as userID.
func (s *BaseSuite) WebSocket(ctx context.Context, userID string) *websocket.Conn {
	c, _, err := websocket.Dial(ctx, "ws://"+s.app.HTTPAddr()+"/ws?token="+s.Token(userID), nil)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = c.CloseNow() })
	return c
}

func (s *BaseSuite) WriteFrame(ctx context.Context, c *websocket.Conn, frame wire.Frame) {
	b, err := json.Marshal(frame)
	s.Require().NoError(err)
	s.Require().NoError(c.Write(ctx, websocket.MessageText, b))
}

func (s *BaseSuite) ReadFrame(ctx context.Context, c *websocket.Conn) wire.Frame {
	_, b, err := c.Read(ctx)
	s.Require().NoError(err)
	var frame wire.Frame
	s.Require().NoError(json.Unmarshal(b, &frame))
	return frame
}

func Payload(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
