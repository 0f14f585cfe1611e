package lifecycle

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes lifecycle counters and gauges. A nil *Metrics records nothing.
type Metrics struct {
	rotations        prometheus.Counter
	rotationFailures prometheus.Counter
	pruned           prometheus.Counter
	ticks            prometheus.Counter
	ticksSkipped     prometheus.Counter
	storeFailures    *prometheus.CounterVec
	passive          prometheus.Gauge
	activeExpires    prometheus.Gauge
}

// NewMetrics builds the collectors and registers them with reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rotator", Subsystem: "jws", Name: "rotations_total",
			Help: "Successful token rotations.",
		}),
		rotationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rotator", Subsystem: "jws", Name: "rotation_failures_total",
			Help: "Rotation attempts deferred because signing failed.",
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rotator", Subsystem: "jws", Name: "pruned_total",
			Help: "Expired passive tokens removed.",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rotator", Subsystem: "jws", Name: "ticks_total",
			Help: "Maintenance ticks executed.",
		}),
		ticksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rotator", Subsystem: "jws", Name: "ticks_skipped_total",
			Help: "Maintenance ticks skipped because the previous tick was still running.",
		}),
		storeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rotator", Subsystem: "jws", Name: "store_failures_total",
			Help: "Token store failures by operation.",
		}, []string{"op"}),
		passive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rotator", Subsystem: "jws", Name: "passive_tokens",
			Help: "Passive tokens currently retained.",
		}),
		activeExpires: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rotator", Subsystem: "jws", Name: "active_expires_timestamp_seconds",
			Help: "Unix time at which the active token expires.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.rotations, m.rotationFailures, m.pruned, m.ticks, m.ticksSkipped,
			m.storeFailures, m.passive, m.activeExpires,
		)
	}
	return m
}

func (m *Metrics) rotated() {
	if m != nil {
		m.rotations.Inc()
	}
}

func (m *Metrics) rotationFailed() {
	if m != nil {
		m.rotationFailures.Inc()
	}
}

func (m *Metrics) prunedN(n int) {
	if m != nil && n > 0 {
		m.pruned.Add(float64(n))
	}
}

func (m *Metrics) tick() {
	if m != nil {
		m.ticks.Inc()
	}
}

func (m *Metrics) tickSkipped() {
	if m != nil {
		m.ticksSkipped.Inc()
	}
}

func (m *Metrics) storeFailed(op string) {
	if m != nil {
		m.storeFailures.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) observe(active Info, passive int) {
	if m == nil {
		return
	}
	m.passive.Set(float64(passive))
	if active.IsZero() || active.IsPlaceholder() {
		m.activeExpires.Set(0)
		return
	}
	m.activeExpires.Set(float64(active.ExpiresAt().Unix()))
}
