// Package prometheus renders authkeep engine metrics in the Prometheus text
// exposition format.
//
// Counters are named authkeep_*_total. The CurrentUser latency histogram is
// authkeep_current_user_latency_seconds. Nothing is registered globally;
// callers mount Exporter.Handler where they want it.
package prometheus
