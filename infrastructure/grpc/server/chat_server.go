package server

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"match-chat/auth"
	"match-chat/domain"
	"match-chat/infrastructure/wire"
	"match-chat/observability"
	"match-chat/services"
	"match-chat/sink"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ChatServer serves one Session stream per chat connection.
type ChatServer struct {
	chatService   services.IChatService
	metrics       *observability.Metrics
	log           *slog.Logger
	bufferSize    int
	touchInterval time.Duration

	done     chan struct{}
	doneOnce sync.Once
}

func NewChatServer(log *slog.Logger, chatService services.IChatService, metrics *observability.Metrics,
	bufferSize int, touchInterval time.Duration) *ChatServer {
	return &ChatServer{
		chatService:   chatService,
		metrics:       metrics,
		log:           log,
		bufferSize:    bufferSize,
		touchInterval: touchInterval,
		done:          make(chan struct{}),
	}
}

// Shutdown ends every open session, which lets GracefulStop return.
func (s *ChatServer) Shutdown() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Session registers a connection sink and pumps frames both ways until the
// client goes away, the sink is evicted or the server shuts down.
// Gone clients are detected by the transport keepalive, which cancels the stream context.
func (s *ChatServer) Session(stream SessionStream) error {
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	principal := auth.UserIDFromContext(ctx)
	connSink := sink.NewConnectionSink(s.bufferSize)
	conn := s.chatService.Open(connSink)
	defer s.chatService.Close(conn)
	log := s.log.With("conn_id", conn, "principal", principal)
	log.Info("Session opened")

	recvErr := make(chan error, 1)
	go func() { recvErr <- s.receive(ctx, stream, conn, principal) }()

	var touch <-chan time.Time
	if s.touchInterval > 0 {
		ticker := time.NewTicker(s.touchInterval)
		defer ticker.Stop()
		touch = ticker.C
	}

	for {
		select {
		case <-s.done:
			s.metrics.Closed(observability.ReasonShutdown)
			return status.Error(codes.Unavailable, "server shutting down")
		case <-ctx.Done():
			s.metrics.Closed(observability.ReasonClient)
			log.Info("Session closed by client")
			return nil
		case err := <-recvErr:
			s.metrics.Closed(observability.ReasonClient)
			if err == nil || stderrors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
				log.Info("Session closed by client")
				return nil
			}
			log.Warn("Session receive failed", "error", err)
			return err
		case <-touch:
			// Liveness of an open stream is the keepalive's job, not the sweep's.
			s.chatService.Touch(conn)
		case evt := <-connSink.Events():
			frame, err := wire.Encode(evt)
			if err != nil {
				log.Error("Failed to encode event", "type", evt.Type(), "error", err)
				continue
			}
			if err := stream.Send(&frame); err != nil {
				s.metrics.Closed(observability.ReasonClient)
				log.Warn("Failed to push event to stream", "error", err)
				return err
			}
		case <-connSink.Evicted():
			if connSink.Overflowed() {
				s.metrics.Closed(observability.ReasonSlowConsumer)
				log.Warn("Slow consumer evicted")
				return status.Error(codes.ResourceExhausted, "slow consumer")
			}
			return status.Error(codes.DeadlineExceeded, "connection timed out")
		}
	}
}

func (s *ChatServer) receive(ctx context.Context, stream SessionStream, conn domain.ConnectionID, principal string) error {
	for {
		frame, err := stream.Recv()
		if err != nil {
			return err
		}
		if err := wire.Validate(*frame); err != nil {
			_ = s.chatService.Reject(conn, frame.RequestID, err)
			continue
		}
		if err := wire.Dispatch(ctx, s.chatService, conn, principal, *frame); err != nil {
			s.log.Debug("Request failed", "conn_id", conn, "type", frame.Type, "error", err)
		}
	}
}
