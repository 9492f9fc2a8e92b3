package domain

import "time"

// Lead is a contact record to be called.
type Lead struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
}

// Script configures the assistant that drives a call.
type Script struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	OpeningLine       string   `json:"openingLine,omitempty"`
	TalkingPoints     []string `json:"talkingPoints,omitempty"`
	ObjectionHandling string   `json:"objectionHandling,omitempty"`
	Persona           string   `json:"persona,omitempty"`
	Voice             string   `json:"voice,omitempty"`
}

// DefaultScriptID names the script used when an agent is spawned without one.
const DefaultScriptID = "default"

// DefaultScript is the fallback assistant configuration.
func DefaultScript() Script {
	return Script{
		ID:          DefaultScriptID,
		Name:        "Default outreach",
		OpeningLine: "Hi, this is a quick call about scheduling a short intro meeting.",
		TalkingPoints: []string{
			"Introduce the offering in one sentence",
			"Ask whether a 15 minute meeting this week works",
		},
		Persona: "Friendly, concise sales development rep",
	}
}

// CallAttempt is the record of one dial against one lead.
type CallAttempt struct {
	ID              string    `json:"id"`
	AgentID         string    `json:"agentId"`
	LeadID          string    `json:"leadId"`
	ScriptID        string    `json:"scriptId,omitempty"`
	StartedAt       time.Time `json:"startedAt"`
	Outcome         Outcome   `json:"outcome"`
	DurationSeconds float64   `json:"durationSeconds"`
	Transcript      string    `json:"transcript,omitempty"`
}
