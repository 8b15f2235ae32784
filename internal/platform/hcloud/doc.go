// Package hcloud implements gateway.ControlPlane on top of the Hetzner Cloud API.
//
// Hetzner has a single power state per server, so the machine/VM pair is
// derived from the server status and one label:
//
//	running                                  AVAILABLE / RUNNING
//	off, label pbctl/machine-state=inactive  INACTIVE  / SHUTOFF
//	off                                      AVAILABLE / SHUTOFF
//	initializing                             DEPLOYING / NOSTATE
//	starting, stopping, migrating, ...       BUSY      / NOSTATE
//
// StopServer sets the label and powers off; StartServer clears it and powers
// on. A graceful OS shutdown therefore ends in AVAILABLE / SHUTOFF.
// UpdateServer changes the server type to the one whose cores and memory
// match the requested profile.
//
// Calls rejected because the server is locked by another action are retried
// with exponential backoff.
package hcloud
