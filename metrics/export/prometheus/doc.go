// Package prometheus exposes goBlog metrics as a prometheus.Collector.
//
// [NewCollector] reads [goBlog.App.MetricsSnapshot] on every scrape and emits
// goblog_*_total counters plus the goblog_guard_query_seconds histogram.
// Register it with any registry; [Handler] serves a private one.
package prometheus
