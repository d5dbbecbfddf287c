package engine

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report engine activity.
type Metrics struct {
	phaseDuration     *prometheus.HistogramVec
	turnFailures      *prometheus.CounterVec
	validationRetries prometheus.Counter
	tasksActive       prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the package-level metrics instance registered with
// the global Prometheus registry. Created once to avoid duplicate
// registration panics when multiple engines exist in one process.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Supply a fresh registry in tests. Registration errors panic, mirroring
// promauto semantics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	phaseDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "swarm",
			Subsystem: "engine",
			Name:      "phase_duration_seconds",
			Help:      "Duration spent in each task phase.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"phase", "status"},
	)
	turnFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swarm",
			Subsystem: "engine",
			Name:      "agent_turn_failures_total",
			Help:      "Agent turns that surfaced a provider error.",
		},
		[]string{"reason"},
	)
	validationRetries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "swarm",
			Subsystem: "engine",
			Name:      "validation_retries_total",
			Help:      "Agent turns that required the one-shot concreteness retry.",
		},
	)
	tasksActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "swarm",
			Subsystem: "engine",
			Name:      "tasks_active",
			Help:      "Tasks currently being executed.",
		},
	)

	collectors := []prometheus.Collector{phaseDuration, turnFailures, validationRetries, tasksActive}
	for i, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch i {
				case 0:
					phaseDuration = already.ExistingCollector.(*prometheus.HistogramVec)
				case 1:
					turnFailures = already.ExistingCollector.(*prometheus.CounterVec)
				case 2:
					validationRetries = already.ExistingCollector.(prometheus.Counter)
				case 3:
					tasksActive = already.ExistingCollector.(prometheus.Gauge)
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		phaseDuration:     phaseDuration,
		turnFailures:      turnFailures,
		validationRetries: validationRetries,
		tasksActive:       tasksActive,
	}
}

func (m *Metrics) ObservePhaseDuration(phase, status string, duration time.Duration) {
	if m == nil || m.phaseDuration == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase, status).Observe(duration.Seconds())
}

func (m *Metrics) IncTurnFailure(reason string) {
	if m == nil || m.turnFailures == nil {
		return
	}
	m.turnFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncValidationRetry() {
	if m == nil || m.validationRetries == nil {
		return
	}
	m.validationRetries.Inc()
}

func (m *Metrics) IncActiveTasks() {
	if m == nil || m.tasksActive == nil {
		return
	}
	m.tasksActive.Inc()
}

func (m *Metrics) DecActiveTasks() {
	if m == nil || m.tasksActive == nil {
		return
	}
	m.tasksActive.Dec()
}
