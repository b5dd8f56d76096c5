package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestQueueMetrics(t *testing.T) {
	SetQueueDepth("test-queue", 7)
	if got := testutil.ToFloat64(queueDepth.WithLabelValues("test-queue")); got != 7 {
		t.Errorf("expected depth 7, got %f", got)
	}

	before := testutil.ToFloat64(queueDrained.WithLabelValues("test-queue"))
	AddQueueDrained("test-queue", 3)
	if got := testutil.ToFloat64(queueDrained.WithLabelValues("test-queue")) - before; got != 3 {
		t.Errorf("expected 3 drained items, got %f", got)
	}

	before = testutil.ToFloat64(queuePushTimeouts.WithLabelValues("test-queue"))
	IncQueuePushTimeout("test-queue")
	if got := testutil.ToFloat64(queuePushTimeouts.WithLabelValues("test-queue")) - before; got != 1 {
		t.Errorf("expected one push timeout, got %f", got)
	}
}

func TestWorkerMetrics(t *testing.T) {
	IncWorkersRunning("test-pool")
	IncWorkersRunning("test-pool")
	DecWorkersRunning("test-pool")
	if got := testutil.ToFloat64(workersRunning.WithLabelValues("test-pool")); got != 1 {
		t.Errorf("expected one running worker, got %f", got)
	}

	before := testutil.ToFloat64(workerStepErrors.WithLabelValues("test-pool"))
	IncWorkerStepErrors("test-pool")
	if got := testutil.ToFloat64(workerStepErrors.WithLabelValues("test-pool")) - before; got != 1 {
		t.Errorf("expected one step error, got %f", got)
	}
}

func TestLinkMetrics(t *testing.T) {
	SetHeartbeatMissed(3)
	if got := testutil.ToFloat64(heartbeatMissed); got != 3 {
		t.Errorf("expected 3 missed heartbeats, got %f", got)
	}

	SetLinkConnected(true)
	if got := testutil.ToFloat64(linkConnected); got != 1 {
		t.Errorf("expected connected gauge 1, got %f", got)
	}
	SetLinkConnected(false)
	if got := testutil.ToFloat64(linkConnected); got != 0 {
		t.Errorf("expected connected gauge 0, got %f", got)
	}

	before := testutil.ToFloat64(commandsIssued.WithLabelValues("altitude"))
	IncCommandsIssued("altitude")
	if got := testutil.ToFloat64(commandsIssued.WithLabelValues("altitude")) - before; got != 1 {
		t.Errorf("expected one altitude command, got %f", got)
	}
}
