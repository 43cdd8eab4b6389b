package workers

import (
	"context"
	"log/slog"
	"time"

	"match-chat/contract"
	"match-chat/domain"
	"match-chat/observability"
)

// Presence is what the liveness sweep needs from the coordinator.
type Presence interface {
	Stale(before time.Time) []domain.ConnectionID
	Sink(conn domain.ConnectionID) (contract.EventSink, bool)
	DisconnectStale(conn domain.ConnectionID, before time.Time) bool
}

type evictable interface {
	Evict()
}

// LivenessWorker disconnects connections that stayed silent for longer than
// the timeout. WebSocket sessions are touched by their pongs and frames.
// gRPC sessions are touched while the stream is open, so dead gRPC peers are
// left to the transport keepalive, which cancels the stream.
type LivenessWorker struct {
	log      *slog.Logger
	presence Presence
	metrics  *observability.Metrics
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewLivenessWorker(log *slog.Logger, presence Presence, metrics *observability.Metrics, timeout, interval time.Duration) *LivenessWorker {
	return &LivenessWorker{
		log:      log,
		presence: presence,
		metrics:  metrics,
		timeout:  timeout,
		interval: interval,
		now:      time.Now,
	}
}

func (w *LivenessWorker) Run(ctx context.Context) error {
	w.log.Info("Starting liveness sweep", "timeout", w.timeout, "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Sweep()
		}
	}
}

// Sweep disconnects every stale connection and returns how many it disconnected.
// A connection touched after the listing is kept.
func (w *LivenessWorker) Sweep() int {
	cutoff := w.now().Add(-w.timeout)
	disconnected := 0
	for _, conn := range w.presence.Stale(cutoff) {
		s, hasSink := w.presence.Sink(conn)
		if !w.presence.DisconnectStale(conn, cutoff) {
			continue
		}
		if e, ok := s.(evictable); hasSink && ok {
			e.Evict()
		}
		disconnected++
		w.metrics.Closed(observability.ReasonLiveness)
		w.log.Info("Connection timed out", "conn_id", conn)
	}
	return disconnected
}
