// Package session keeps short-term conversational memory: a bounded,
// chronologically ordered window of turns per session identifier.
package session

// Role identifies who produced a turn.
type Role string

// Role constants for stored turns.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message unit within a session's history.
// Turns are values; a stored turn is never modified in place.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// UserTurn returns a turn authored by the user.
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

// AssistantTurn returns a turn authored by the assistant.
func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Text: text}
}
