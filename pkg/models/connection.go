package models

// SessionStatus is the connection state of an agent session (spec.md §3).
type SessionStatus string

const (
	SessionConnected    SessionStatus = "connected"
	SessionDisconnected SessionStatus = "disconnected"
	SessionClosed       SessionStatus = "closed"
)

// SessionState is the set of attributes an agent session exposes: the
// current model, the number of in-flight queries, the ordered history of
// parsed messages, and the connection status.
type SessionState struct {
	Model           string        `json:"model"`
	InFlightQueries int           `json:"in_flight_queries"`
	History         []Message     `json:"history"`
	Status          SessionStatus `json:"status"`
}
