// Package async runs independent tasks concurrently and collects every
// failure. Group operations use it to drive one tracked operation per server.
package async
