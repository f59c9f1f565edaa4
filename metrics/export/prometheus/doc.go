// Package prometheus renders engine metrics in the Prometheus text
// exposition format. Counters are named idpcore_*_total and the single
// histogram is idpcore_authenticate_latency_seconds.
//
// The exporter reads snapshots only. It never registers with a global
// registry; callers mount [Exporter.Handler] where they want it.
package prometheus
