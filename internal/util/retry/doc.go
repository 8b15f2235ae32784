// Package retry provides exponential backoff for transient gateway failures.
//
// [Do] retries an operation with configurable retry count, initial delay,
// maximum delay and a predicate deciding which errors are transient. Errors
// wrapped with [Fatal] are never retried; the confirmation pollers use the
// same marker to end a poll session early.
package retry
