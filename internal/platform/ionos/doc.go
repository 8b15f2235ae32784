// Package ionos implements gateway.ControlPlane against the IONOS Cloud API v6
// (formerly ProfitBricks).
//
// Requests use HTTP basic auth and the API's depth parameter. Rate-limited
// (429) and unavailable (503) responses are retried with exponential backoff;
// other non-2xx responses are returned as *APIError.
package ionos
