// Package poll implements bounded, cancellable confirmation loops.
//
// A [Session] probes once immediately and then once per tick of a
// fixed-interval ticker until the probe reports done, the attempt budget is
// spent, or the context is cancelled. Probes run synchronously on the
// session goroutine, so a session never has two probes in flight.
//
// [StateChange] confirms a control-plane state transition, [CheckCommand]
// confirms that a remote command exits 0.
package poll
