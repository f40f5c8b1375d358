package goBlog

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledIgnoresWrites(t *testing.T) {
	m := NewMetrics(MetricsConfig{})
	m.Inc(MetricNavigationAllowed)
	m.Observe(MetricGuardLatency, time.Millisecond)

	if m.Value(MetricNavigationAllowed) != 0 {
		t.Fatalf("disabled metrics recorded a value")
	}
	s := m.Snapshot()
	if len(s.Counters) != 0 || len(s.Histograms) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", s)
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricRedirectLoop)
	if nilMetrics.Enabled() {
		t.Fatalf("nil metrics reported enabled")
	}
}

func TestMetricsConcurrentCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Inc(MetricNavigationRedirected)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricNavigationRedirected); got != 8000 {
		t.Fatalf("expected 8000, got %d", got)
	}
	if _, ok := m.Snapshot().Counters[MetricGuardLatency]; ok {
		t.Fatalf("histogram id must not appear as a counter")
	}
}

func TestMetricsLatencyBuckets(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	for _, d := range []time.Duration{time.Millisecond, 7 * time.Millisecond, 300 * time.Millisecond, 2 * time.Second} {
		m.Observe(MetricGuardLatency, d)
	}
	m.Observe(MetricNavigationAllowed, time.Second)

	s := m.Snapshot()
	want := []uint64{1, 1, 0, 0, 0, 0, 1, 1}
	got := s.Histograms[MetricGuardLatency]
	if len(got) != len(want) {
		t.Fatalf("expected %d buckets, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bucket %d: expected %d, got %d (%v)", i, want[i], got[i], got)
		}
	}
	if sum := s.HistogramSums[MetricGuardLatency]; sum != 2308*time.Millisecond {
		t.Fatalf("unexpected sum %v", sum)
	}
}
