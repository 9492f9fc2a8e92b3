package domain

// Role identifies the speaker of a transcript message.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// TranscriptMessage is one speaker turn recovered from a call transcript.
type TranscriptMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
