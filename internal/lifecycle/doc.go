// Package lifecycle drives tracked operations on configured servers.
//
// A tracked operation resolves a server label, issues one command through the
// active backend and then polls until the server reaches the operation's
// target state:
//
//	RESOLVE_CONFIG -> ISSUE_COMMAND -> POLL -> DONE | FAILED
//
// # Core Types
//
// Orchestrator exposes the blocking operations (StartTracked, StopTracked,
// ShutdownTracked, GetServer, ...). Dispatch runs any of them on a goroutine
// and reports the outcome through a callback exactly once.
//
// Selector owns the active Backend. Operations take a snapshot of it when
// they begin, so switching between the live gateways and the simulator never
// affects operations already in flight.
package lifecycle
