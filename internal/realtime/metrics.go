package realtime

import "github.com/prometheus/client_golang/prometheus"

const (
	sinkWebsocket = "websocket"
	sinkAMQP      = "amqp"

	resultSent    = "sent"
	resultDropped = "dropped"
	resultFailed  = "failed"
)

type Metrics struct {
	Events  *prometheus.CounterVec
	Clients prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_events_total",
				Help: "Realtime event deliveries by sink and result",
			},
			[]string{"sink", "result"},
		),
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_websocket_clients",
			Help: "Connected websocket subscribers",
		}),
	}

	reg.MustRegister(m.Events, m.Clients)
	return m
}

func (m *Metrics) event(sink, result string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(sink, result).Inc()
}

func (m *Metrics) clients(n int) {
	if m == nil {
		return
	}
	m.Clients.Set(float64(n))
}
