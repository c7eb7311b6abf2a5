// Package broadcast implements the one-to-many dispatch engine.
//
// Delivery semantics
//
// A broadcast fans one payload out to a snapshot of the subscriber registry,
// strictly one send at a time, with a configurable minimum spacing between
// sends. Flood-control replies from the platform pause the run for the
// advertised duration and retry the same recipient; transient faults retry
// with linear backoff up to a total attempt budget; permanent rejections
// retire the recipient in the registry. Per-recipient outcomes are folded
// into the returned Result, never raised.
//
// Single flight
//
// At most one broadcast runs per Service instance. A second call while one is
// in flight fails immediately with ErrInProgress; there is no queue and no
// blocking wait.
package broadcast
