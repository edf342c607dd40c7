package types

// Event represents a typed state change emitted by the settlement engine.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
