package internaldefs

import goBlog "github.com/MrEthical07/goBlog"

type CounterDef struct {
	ID   goBlog.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   goBlog.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goBlog.MetricNavigationAllowed, Name: "goblog_navigation_allowed_total", Help: "Guard decisions that admitted a navigation."},
	{ID: goBlog.MetricNavigationRedirected, Name: "goblog_navigation_redirected_total", Help: "Guard decisions that redirected to the login path."},
	{ID: goBlog.MetricNavigationSuperseded, Name: "goblog_navigation_superseded_total", Help: "Navigations discarded because a newer one started."},
	{ID: goBlog.MetricNavigationNotFound, Name: "goblog_navigation_not_found_total", Help: "Navigations to paths with no route."},
	{ID: goBlog.MetricRedirectLoop, Name: "goblog_navigation_redirect_loop_total", Help: "Navigations aborted by the redirect limit."},
	{ID: goBlog.MetricGuardQueryError, Name: "goblog_guard_query_error_total", Help: "User queries that failed during navigation."},
	{ID: goBlog.MetricGuardFailOpen, Name: "goblog_guard_fail_open_total", Help: "Guarded navigations admitted despite a failed user query."},
	{ID: goBlog.MetricSessionInitialSync, Name: "goblog_session_initial_sync_total", Help: "Initial session queries applied to the store."},
	{ID: goBlog.MetricSessionInitialError, Name: "goblog_session_initial_error_total", Help: "Initial session queries that failed."},
	{ID: goBlog.MetricSessionSignedIn, Name: "goblog_session_signed_in_total", Help: "SIGNED_IN notifications applied to the store."},
	{ID: goBlog.MetricSessionSignedOut, Name: "goblog_session_signed_out_total", Help: "SIGNED_OUT notifications applied to the store."},
	{ID: goBlog.MetricSessionTokenRefreshed, Name: "goblog_session_token_refreshed_total", Help: "TOKEN_REFRESHED notifications applied to the store."},
	{ID: goBlog.MetricSessionUserUpdated, Name: "goblog_session_user_updated_total", Help: "USER_UPDATED notifications applied to the store."},
}

var HistogramDefs = []HistogramDef{
	{ID: goBlog.MetricGuardLatency, Name: "goblog_guard_query_seconds", Help: "Latency of the guard's user query."},
}

// HistogramBounds are the finite upper bounds in seconds. A final +Inf bucket
// follows them.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten buckets into separate instruments.
var HistogramBoundSuffix = []string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

const AuditDroppedName = "goblog_audit_dropped_total"

const AuditDroppedHelp = "Audit events dropped due to dispatcher backpressure."

// NormalizeBuckets pads or truncates raw to the eight snapshot buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
