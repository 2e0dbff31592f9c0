// Package session drives traced collections.
//
// A Tracer is created once and reused. Each call to Run enables the flight
// recorder, clears the reachability index, forces the host collector to run
// a full collection with the Tracer as its edge sink, and tears everything
// down again, reporting the targets that were never reached.
package session
