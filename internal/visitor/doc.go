// Package visitor implements the visit lifecycle: registration, host
// approval, and guard check-in/out.
//
// The lifecycle graph is strict:
//
//	pending -> approved -> checked_in -> checked_out
//	pending -> rejected (terminal)
//
// The Service is the only mutation path for visitor status. It validates
// transitions against the graph, enforces role/ownership rules, and
// serialises mutations per visitor id so racing requests cannot both
// pass the validity check. Domain events (a closed sum type) are emitted
// to registered sinks only after the store commit succeeds; a failed
// delivery never rolls back the store.
//
// Approval has one hardware side effect: an unlock command event per
// active door device, broadcast to entrance hardware.
package visitor
