package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type gauges struct{ conns, rooms int }

func (g gauges) Connections() int { return g.conns }
func (g gauges) Rooms() int       { return g.rooms }

func TestMetrics_Counters_And_Gauges(t *testing.T) {
	req := require.New(t)
	m := NewMetrics(gauges{conns: 3, rooms: 2})

	// When connections are closed for different reasons
	m.Closed(ReasonLiveness)
	m.Closed(ReasonLiveness)
	m.Closed(ReasonSlowConsumer)
	m.MessagesPosted.WithLabelValues("banter", "en").Inc()

	// Then each reason is counted apart
	req.Equal(2.0, testutil.ToFloat64(m.ConnectionsClosed.WithLabelValues(ReasonLiveness)))
	req.Equal(1.0, testutil.ToFloat64(m.ConnectionsClosed.WithLabelValues(ReasonSlowConsumer)))
	req.Equal(1.0, testutil.ToFloat64(m.MessagesPosted))

	// And the gauges read the live figures
	families, err := m.Registry.Gather()
	req.NoError(err)
	values := map[string]float64{}
	for _, f := range families {
		if len(f.GetMetric()) == 1 && f.GetMetric()[0].GetGauge() != nil {
			values[f.GetName()] = f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	req.Equal(3.0, values["matchchat_connections"])
	req.Equal(2.0, values["matchchat_rooms"])
}
