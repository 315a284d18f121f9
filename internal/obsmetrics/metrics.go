// Package obsmetrics provides the Prometheus metrics surfaced by the GNC
// process, grounded on the Pricilla guidance system's metrics package but
// scoped to this pipeline's own counters rather than mission/stealth/AI
// telemetry.
package obsmetrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the pipeline updates.
type Metrics struct {
	LoopOverruns       *prometheus.CounterVec
	KalmanDrops        *prometheus.CounterVec
	EstimatorDropStreak prometheus.Gauge
	AllocatorStatus    *prometheus.CounterVec
	DispatchFrames     prometheus.Counter
	DispatchAckMiss    prometheus.Counter
	WatchdogMarginMS   prometheus.Gauge
	SequencerState     *prometheus.GaugeVec
}

var (
	global     *Metrics
	globalOnce sync.Once
)

// Get returns the process-wide metrics instance, creating it on first use.
func Get() *Metrics {
	globalOnce.Do(func() {
		global = newMetrics()
	})
	return global
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.LoopOverruns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gnc",
		Name:      "loop_overruns_total",
		Help:      "Periodic loops that exceeded their configured period",
	}, []string{"loop"})

	m.KalmanDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gnc",
		Name:      "kalman_drops_total",
		Help:      "Estimator ticks dropped due to a transient fault (non-positive dt, NaN, non-positive S), and short IMU reads under reason imu_short_read",
	}, []string{"reason"})

	m.EstimatorDropStreak = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gnc",
		Name:      "estimator_drop_streak",
		Help:      "Current consecutive estimator-tick drop count",
	})

	m.AllocatorStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gnc",
		Name:      "allocator_status_total",
		Help:      "Simplex allocator outcomes by status (optimal/unbounded/infeasible)",
	}, []string{"status"})

	m.DispatchFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gnc",
		Name:      "dispatch_frames_total",
		Help:      "PWM frames written to the actuator controller",
	})

	m.DispatchAckMiss = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gnc",
		Name:      "dispatch_ack_miss_total",
		Help:      "Per-byte acknowledgements that timed out or mismatched",
	})

	m.WatchdogMarginMS = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gnc",
		Name:      "watchdog_margin_ms",
		Help:      "Milliseconds remaining before the 150ms actuator watchdog would trip",
	})

	m.SequencerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gnc",
		Name:      "sequencer_state",
		Help:      "1 for the currently active mission-sequencer state, 0 otherwise",
	}, []string{"state"})

	return m
}
