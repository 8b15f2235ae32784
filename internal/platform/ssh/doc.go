// Package ssh runs commands on servers over SSH.
//
// Every Exec call opens its own connection, runs one command and closes the
// connection again. No session state is shared between calls, so concurrent
// operations on different servers never interfere. Authentication is key
// based; parsed keys are cached per key file.
//
// Host key verification is disabled unless Config.HostKeyCallback is set.
package ssh
