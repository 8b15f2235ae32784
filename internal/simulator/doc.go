// Package simulator provides an in-process control plane and SSH transport
// with deterministic outcomes and configurable latency.
//
// Every call sleeps for the configured latency before replying. Start, stop
// and shutdown change the effective state immediately and complete their
// transition three latencies after replying, provided the operation class is
// in the allowed outcome set. Operations outside the set fail
// deterministically.
//
// Server state lives in a [Store]: [MemoryStore] by default, or
// [BadgerStore] so that successive processes observe the same servers.
package simulator
