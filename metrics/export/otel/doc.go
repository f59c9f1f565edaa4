// Package otel publishes engine metrics through an OpenTelemetry Meter.
//
// Every counter becomes an Int64ObservableCounter. The latency histogram is
// exported as one cumulative bucket gauge carrying an "le" attribute plus a
// count gauge. A single callback reads the engine snapshot on each
// collection. Callers own the MeterProvider.
package otel
