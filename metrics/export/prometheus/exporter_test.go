package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goBlog "github.com/MrEthical07/goBlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot goBlog.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goBlog.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                    { return f.dropped }

func TestCollectorSilentWhenDisabled(t *testing.T) {
	c := NewCollector(fakeSource{snapshot: goBlog.NewMetrics(goBlog.MetricsConfig{}).Snapshot()})
	if n := testutil.CollectAndCount(c); n != 0 {
		t.Fatalf("expected no series for disabled metrics, got %d", n)
	}
}

func TestCollectorCountersAndHistogram(t *testing.T) {
	src := fakeSource{
		snapshot: goBlog.MetricsSnapshot{
			Counters: map[goBlog.MetricID]uint64{
				goBlog.MetricNavigationRedirected: 4,
			},
			Histograms: map[goBlog.MetricID][]uint64{
				goBlog.MetricGuardLatency: {2, 0, 1, 0, 0, 0, 0, 1},
			},
			HistogramSums: map[goBlog.MetricID]time.Duration{
				goBlog.MetricGuardLatency: 1500 * time.Millisecond,
			},
		},
		dropped: 3,
	}
	c := NewCollector(src)

	expected := `
# HELP goblog_navigation_redirected_total Guard decisions that redirected to the login path.
# TYPE goblog_navigation_redirected_total counter
goblog_navigation_redirected_total 4
# HELP goblog_audit_dropped_total Audit events dropped due to dispatcher backpressure.
# TYPE goblog_audit_dropped_total counter
goblog_audit_dropped_total 3
# HELP goblog_guard_query_seconds Latency of the guard's user query.
# TYPE goblog_guard_query_seconds histogram
goblog_guard_query_seconds_bucket{le="0.005"} 2
goblog_guard_query_seconds_bucket{le="0.01"} 2
goblog_guard_query_seconds_bucket{le="0.025"} 3
goblog_guard_query_seconds_bucket{le="0.05"} 3
goblog_guard_query_seconds_bucket{le="0.1"} 3
goblog_guard_query_seconds_bucket{le="0.25"} 3
goblog_guard_query_seconds_bucket{le="0.5"} 3
goblog_guard_query_seconds_bucket{le="+Inf"} 4
goblog_guard_query_seconds_sum 1.5
goblog_guard_query_seconds_count 4
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"goblog_navigation_redirected_total", "goblog_audit_dropped_total", "goblog_guard_query_seconds")
	if err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestHandlerServesText(t *testing.T) {
	m := goBlog.NewMetrics(goBlog.MetricsConfig{Enabled: true})
	m.Inc(goBlog.MetricSessionSignedIn)
	srv := httptest.NewServer(Handler(fakeSource{snapshot: m.Snapshot()}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "goblog_session_signed_in_total 1") {
		t.Fatalf("missing counter in output:\n%s", body)
	}
}
