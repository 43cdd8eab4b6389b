package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reasons a connection was closed by the server.
const (
	ReasonClient       = "client"
	ReasonSlowConsumer = "slow_consumer"
	ReasonLiveness     = "liveness"
	ReasonShutdown     = "shutdown"
)

// Gauges reports the live presence figures.
type Gauges interface {
	Connections() int
	Rooms() int
}

type Metrics struct {
	Registry *prometheus.Registry

	MembersArrived    prometheus.Counter
	MembersDeparted   prometheus.Counter
	MessagesPosted    *prometheus.CounterVec
	ConnectionsClosed *prometheus.CounterVec
	FailuresReported  *prometheus.CounterVec
}

// NewMetrics registers the chat metrics on a dedicated registry,
// next to the Go runtime and process collectors.
func NewMetrics(gauges Gauges) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	m := &Metrics{
		Registry: reg,
		MembersArrived: factory.NewCounter(prometheus.CounterOpts{
			Name: "matchchat_members_arrived_total",
			Help: "Identities that became present in a match room",
		}),
		MembersDeparted: factory.NewCounter(prometheus.CounterOpts{
			Name: "matchchat_members_departed_total",
			Help: "Identities whose last connection left a match room",
		}),
		MessagesPosted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "matchchat_messages_posted_total",
			Help: "Messages persisted and broadcast",
		}, []string{"category", "language"}),
		ConnectionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "matchchat_connections_closed_total",
			Help: "Connections closed, by reason",
		}, []string{"reason"}),
		FailuresReported: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "matchchat_failures_reported_total",
			Help: "Error events sent back to a connection",
		}, []string{"kind"}),
	}

	if gauges != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "matchchat_connections",
			Help: "Open connections",
		}, func() float64 { return float64(gauges.Connections()) })
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "matchchat_rooms",
			Help: "Match rooms with at least one connection",
		}, func() float64 { return float64(gauges.Rooms()) })
	}
	return m
}

func (m *Metrics) Closed(reason string) {
	m.ConnectionsClosed.WithLabelValues(reason).Inc()
}

func (m *Metrics) Failed(kind string) {
	m.FailuresReported.WithLabelValues(kind).Inc()
}
