// Package arrow records simulated network traffic as Apache Arrow data.
// This package implements:
// - The trace schema, one row per forwarded request
// - A concurrent Recorder that turns collected events into records
// - Arrow IPC stream serialization of trace records
package arrow
