// Package device holds the client-side view of the imaging server's
// equipment: the command envelope exchanged with the server, the per-kind
// telemetry store that UI observers read, and the helpers that keep that
// store fresh from polling and from pushed live events.
package device
