// Package otel publishes authclient metrics through an OpenTelemetry Meter.
//
// Each metric family becomes one Int64ObservableCounter whose data points
// carry the family's labels as attributes (bearer/credentials for request
// decisions, operation/outcome for account calls). Request latency is a
// cumulative bucket gauge labelled le plus a count gauge. One registered
// callback reads the client's MetricsSnapshot per collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate client state.
package otel
