// Package heap is a small simulated host runtime for the tracer.
//
// A heap is described by a snapshot: type layouts, objects with their
// outgoing references, and named roots. Snapshots are written by hand as TOML
// fixtures or stored as msgpack files.
//
// Collector reports every edge it follows in discovery order. Heap itself
// resolves raw slot offsets to field names and describes object types for
// chain output.
package heap
