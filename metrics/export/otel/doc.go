// Package otel publishes authkeep engine metrics through an OpenTelemetry
// Meter.
//
// Every counter becomes an Int64ObservableCounter. The latency histogram is
// published as one Int64ObservableGauge per cumulative bucket plus a count
// gauge. A single callback reads the engine snapshot on each collection.
// The caller owns the MeterProvider.
package otel
