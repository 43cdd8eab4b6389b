// Package ws serves chat sessions over WebSocket.
// Each connection runs a reader, a writer and a ping loop; frames are the ones of package wire.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"match-chat/auth"
	"match-chat/domain"
	"match-chat/domain/event"
	"match-chat/infrastructure/wire"
	"match-chat/observability"
	"match-chat/services"
	"match-chat/sink"

	"github.com/coder/websocket"
)

type Config struct {
	BufferSize      int
	PingInterval    time.Duration
	PingTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxDecodeErrors int
	OriginPatterns  []string
}

type Handler struct {
	log           *slog.Logger
	service       services.IChatService
	authenticator *auth.Authenticator
	metrics       *observability.Metrics
	cfg           Config
}

func NewHandler(log *slog.Logger, service services.IChatService, authenticator *auth.Authenticator,
	metrics *observability.Metrics, cfg Config) *Handler {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.MaxDecodeErrors <= 0 {
		cfg.MaxDecodeErrors = 5
	}
	return &Handler{log: log, service: service, authenticator: authenticator, metrics: metrics, cfg: cfg}
}

// session is the life of one accepted socket.
type session struct {
	conn      domain.ConnectionID
	socket    *websocket.Conn
	sink      *sink.ConnectionSink
	principal string
	log       *slog.Logger

	once   sync.Once
	reason string
}

// close records the first reason only.
func (s *session) close(reason string, code websocket.StatusCode, text string) {
	s.once.Do(func() {
		s.reason = reason
		_ = s.socket.Close(code, text)
	})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, err := h.authenticate(r)
	if err != nil {
		h.log.Warn("Rejected websocket upgrade", "remote", r.RemoteAddr, "error", err)
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.cfg.OriginPatterns})
	if err != nil {
		h.log.Error("Failed to accept websocket connection", "error", err)
		return
	}
	socket.SetReadLimit(wire.MaxPayloadBytes + 1024)

	s := &session{
		socket:    socket,
		sink:      sink.NewConnectionSink(h.cfg.BufferSize),
		principal: principal,
	}
	s.conn = h.service.Open(s.sink)
	s.log = h.log.With("conn_id", s.conn, "remote", r.RemoteAddr)
	s.log.Info("Connection opened", "principal", principal)

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.writeLoop(ctx, s)
	}()
	go func() {
		defer wg.Done()
		h.pingLoop(ctx, s)
	}()

	h.readLoop(ctx, s)
	if r.Context().Err() != nil {
		s.close(observability.ReasonShutdown, websocket.StatusGoingAway, "server shutting down")
	}
	s.close(observability.ReasonClient, websocket.StatusNormalClosure, "")
	cancel()
	wg.Wait()

	h.service.Close(s.conn)
	if s.reason != "" {
		h.metrics.Closed(s.reason)
	}
	s.log.Info("Connection closed", "reason", s.reason)
}

// authenticate accepts a bearer token in the Authorization header,
// or in the "token" query parameter for browsers that cannot set headers.
func (h *Handler) authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get("token"); token != "" {
			header = "Bearer " + token
		}
	}
	return h.authenticator.Authenticate(header)
}

func (h *Handler) readLoop(ctx context.Context, s *session) {
	decodeErrors := 0
	for {
		typ, data, err := s.socket.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				s.log.Debug("Read failed", "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			s.close(observability.ReasonClient, websocket.StatusUnsupportedData, "text frames only")
			return
		}

		frame, err := wire.Decode(data)
		if err != nil {
			_ = h.service.Reject(s.conn, frame.RequestID, err)
			decodeErrors++
			if decodeErrors >= h.cfg.MaxDecodeErrors {
				s.close(observability.ReasonClient, websocket.StatusPolicyViolation, "too many invalid frames")
				return
			}
			continue
		}
		decodeErrors = 0

		if err := wire.Dispatch(ctx, h.service, s.conn, s.principal, frame); err != nil {
			s.log.Debug("Request failed", "type", frame.Type, "request_id", frame.RequestID, "error", err)
		}
	}
}

func (h *Handler) writeLoop(ctx context.Context, s *session) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-s.sink.Events():
			if err := h.write(ctx, s, evt); err != nil {
				s.log.Debug("Write failed", "error", err)
				s.close(observability.ReasonClient, websocket.StatusInternalError, "write failed")
				return
			}
		case <-s.sink.Evicted():
			if s.sink.Overflowed() {
				s.log.Warn("Slow consumer evicted")
				s.close(observability.ReasonSlowConsumer, websocket.StatusPolicyViolation, "slow consumer")
				return
			}
			// Evicted by the liveness sweep, which already counted it.
			s.close("", websocket.StatusPolicyViolation, "connection timed out")
			return
		}
	}
}

func (h *Handler) write(ctx context.Context, s *session, evt event.DomainEvent) error {
	frame, err := wire.Encode(evt)
	if err != nil {
		return err
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.WriteTimeout)
	defer cancel()
	return s.socket.Write(ctx, websocket.MessageText, data)
}

func (h *Handler) pingLoop(ctx context.Context, s *session) {
	if h.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.cfg.PingTimeout)
			err := s.socket.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.Info("Ping timed out", "error", err)
				s.close(observability.ReasonLiveness, websocket.StatusPolicyViolation, "ping timeout")
				return
			}
			h.service.Touch(s.conn)
		}
	}
}
