package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "drone"
	subsystem = "supervisor"
)

var (
	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_depth",
			Help:      "Current number of items in a queue",
		},
		[]string{"queue"},
	)

	queuePushTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_push_timeouts_total",
			Help:      "Total number of pushes that timed out on a full queue",
		},
		[]string{"queue"},
	)

	queueDrained = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_drained_items_total",
			Help:      "Total number of items discarded by the shutdown drain",
		},
		[]string{"queue"},
	)

	workersRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "workers_running",
			Help:      "Number of running workers in a pool",
		},
		[]string{"pool"},
	)

	workerStepErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "worker_step_errors_total",
			Help:      "Total number of failed worker iterations",
		},
		[]string{"pool"},
	)

	heartbeatMissed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "heartbeat_missed",
			Help:      "Consecutive missed heartbeats",
		},
	)

	linkConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "link_connected",
			Help:      "Vehicle link state (0=disconnected, 1=connected)",
		},
	)

	commandsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commands_issued_total",
			Help:      "Total number of actuation commands sent to the vehicle",
		},
		[]string{"kind"},
	)
)

// SetQueueDepth records the current depth of the named queue.
func SetQueueDepth(queue string, depth int) {
	queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// IncQueuePushTimeout counts a push that gave up on a full queue.
func IncQueuePushTimeout(queue string) {
	queuePushTimeouts.WithLabelValues(queue).Inc()
}

// AddQueueDrained counts items discarded while draining the named queue.
func AddQueueDrained(queue string, n int) {
	queueDrained.WithLabelValues(queue).Add(float64(n))
}

// IncWorkersRunning and DecWorkersRunning track live workers per pool.
func IncWorkersRunning(pool string) {
	workersRunning.WithLabelValues(pool).Inc()
}

func DecWorkersRunning(pool string) {
	workersRunning.WithLabelValues(pool).Dec()
}

// IncWorkerStepErrors counts a failed iteration in the named pool.
func IncWorkerStepErrors(pool string) {
	workerStepErrors.WithLabelValues(pool).Inc()
}

// SetHeartbeatMissed records the receiver's consecutive missed heartbeats.
func SetHeartbeatMissed(n uint) {
	heartbeatMissed.Set(float64(n))
}

// SetLinkConnected records the receiver's link state.
func SetLinkConnected(connected bool) {
	if connected {
		linkConnected.Set(1)
		return
	}
	linkConnected.Set(0)
}

// IncCommandsIssued counts a command of the given kind sent to the vehicle.
func IncCommandsIssued(kind string) {
	commandsIssued.WithLabelValues(kind).Inc()
}
