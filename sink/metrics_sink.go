package sink

import (
	"context"

	"match-chat/domain/event"
	"match-chat/observability"
)

// MetricsSink counts room events.
type MetricsSink struct {
	metrics *observability.Metrics
}

func NewMetricsSink(metrics *observability.Metrics) MetricsSink {
	return MetricsSink{metrics: metrics}
}

func (s MetricsSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MemberArrived:
		s.metrics.MembersArrived.Inc()
	case event.MemberDeparted:
		s.metrics.MembersDeparted.Inc()
	case event.NewMessage:
		s.metrics.MessagesPosted.WithLabelValues(string(evt.Message.Category), evt.Message.Language).Inc()
	}
	return nil
}
