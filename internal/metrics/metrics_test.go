package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestGetReturnsSingleton(t *testing.T) {
	a := Get()
	b := Get()
	if a != b {
		t.Fatal("Get must return the same instance")
	}
}

func TestCountersAccumulate(t *testing.T) {
	m := Get()

	before := counterValue(t, m.MessagesDelivered)
	m.MessagesDelivered.Inc()
	m.MessagesDelivered.Inc()
	after := counterValue(t, m.MessagesDelivered)

	if after != before+2 {
		t.Errorf("Expected counter to grow by 2, got %v -> %v", before, after)
	}
}

func TestQueueDepthGauge(t *testing.T) {
	m := Get()

	m.QueueDepth.WithLabelValues("queued").Set(7)

	var metric dto.Metric
	if err := m.QueueDepth.WithLabelValues("queued").Write(&metric); err != nil {
		t.Fatalf("Failed to read gauge: %v", err)
	}
	if got := metric.GetGauge().GetValue(); got != 7 {
		t.Errorf("Expected gauge 7, got %v", got)
	}
}
