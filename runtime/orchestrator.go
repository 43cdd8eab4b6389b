// Package runtime holds the in-memory presence state of the match rooms
// and the pipeline that keeps it consistent.
package runtime

import (
	"context"
	"embed"
	"log/slog"
	"time"

	"match-chat/contract"
	"match-chat/domain/event"
	"match-chat/moderation"
	"match-chat/observability"
	"match-chat/runtime/workers"
	"match-chat/sink"
)

//go:embed censored/*
var censoredFolder embed.FS

type OrchestratorConfig struct {
	EventBufferSize       int
	SinkTimeout           time.Duration
	LivenessTimeout       time.Duration
	LivenessSweepInterval time.Duration
	EnableModeration      bool
	CharReplacement       rune
}

// Orchestrator prepares the side pipeline of the coordinator (moderation,
// observers, liveness sweep) and runs it under the supervisor.
type Orchestrator struct {
	log            *slog.Logger
	supervisor     contract.ISupervisor
	coordinator    *Coordinator
	metrics        *observability.Metrics
	events         chan event.DomainEvent
	permanentSinks []contract.EventSink
	cfg            OrchestratorConfig
	done           chan struct{}
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, coordinator *Coordinator,
	metrics *observability.Metrics, cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		log:         log,
		supervisor:  supervisor,
		coordinator: coordinator,
		metrics:     metrics,
		events:      make(chan event.DomainEvent, cfg.EventBufferSize),
		cfg:         cfg,
		done:        make(chan struct{}),
	}
}

// Add registers extra observers of room events.
func (o *Orchestrator) Add(sinks ...contract.EventSink) {
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// Start must be called before any connection is opened.
// It returns once the supervisor runs, Done is closed when it stops.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.cfg.EnableModeration {
		moderator, err := o.prepareModeration("censored")
		if err != nil {
			return err
		}
		o.coordinator.WithModerator(moderator)
	}
	o.coordinator.WithObserver(o.events)

	sinks := append([]contract.EventSink{
		sink.NewMetricsSink(o.metrics),
		sink.NewLogSink(o.log.With("sink", "events")),
	}, o.permanentSinks...)

	o.supervisor.Add(
		workers.NewEventFanout(o.log.With("worker", "event_fanout"), o.events, o.cfg.SinkTimeout, sinks...),
		workers.NewLivenessWorker(o.log.With("worker", "liveness"), o.coordinator, o.metrics,
			o.cfg.LivenessTimeout, o.cfg.LivenessSweepInterval),
	)

	go func() {
		defer close(o.done)
		o.supervisor.Run(ctx)
	}()
	return nil
}

func (o *Orchestrator) Stop() {
	o.supervisor.Stop()
}

func (o *Orchestrator) Done() <-chan struct{} { return o.done }

func (o *Orchestrator) prepareModeration(dir string) (*moderation.Moderator, error) {
	data, err := NewCensoredLoader(censoredFolder).LoadAll(dir)
	if err != nil {
		return nil, err
	}
	o.log.Info("Censored words loaded", "words", len(data.Words), "languages", data.Languages)
	return moderation.NewModerator(data.Words, o.cfg.CharReplacement, o.log)
}
