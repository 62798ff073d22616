// Package prometheus renders authclient metrics in Prometheus text
// exposition format.
//
// Counters are grouped into labelled families, for example
//
//	authclient_requests_total{bearer="false",credentials="false"} 3
//
// and request latency is the histogram authclient_request_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate client state.
package prometheus
