// Package prometheus renders session metrics in the Prometheus text
// exposition format.
//
// [NewPrometheusExporter] reads a [telecare.Session] and exposes an
// [http.Handler]. Counters are named telecare_*_total; the latency
// histograms are telecare_request_latency_seconds and
// telecare_refresh_latency_seconds. Nothing is registered in a global
// registry; callers mount the handler themselves.
package prometheus
