package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments of the async bridge.
type Metrics struct {
	// Command channel / driver
	CommandsInstalled *prometheus.CounterVec
	CommandsPending   prometheus.Gauge
	SettleTimeouts    prometheus.Counter

	// Runner queues
	RunnerQueueDepth *prometheus.GaugeVec

	// Adapters
	AdapterOutcomes *prometheus.CounterVec

	// Routines
	RoutinesActive   prometheus.Gauge
	RoutinesFinished *prometheus.CounterVec

	registry prometheus.Gatherer
}

// New creates and registers all metrics against reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		CommandsInstalled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frametask_commands_installed_total",
				Help: "Schedule commands drained and installed by the frame driver",
			},
			[]string{"phase", "kind"},
		),
		CommandsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "frametask_commands_pending",
			Help: "Schedule commands queued when the last drain started",
		}),
		SettleTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frametask_settle_timeouts_total",
			Help: "Frames whose drain started before every resumed routine parked",
		}),
		RunnerQueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "frametask_runner_queue_depth",
				Help: "Main-thread runnables waiting in a phase queue",
			},
			[]string{"phase"},
		),
		AdapterOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frametask_adapter_outcomes_total",
				Help: "Adapters that left the schedule, by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		RoutinesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "frametask_routines_active",
			Help: "Spawned routines that have not finished",
		}),
		RoutinesFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frametask_routines_finished_total",
				Help: "Finished routines by outcome",
			},
			[]string{"outcome"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.CommandsInstalled,
		m.CommandsPending,
		m.SettleTimeouts,
		m.RunnerQueueDepth,
		m.AdapterOutcomes,
		m.RoutinesActive,
		m.RoutinesFinished,
	)
	return m
}

// NewUnregistered returns metrics backed by a private registry, for tests and
// hosts that do not export metrics.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
