package gateway

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the only wire protocol this gateway speaks.
const ProtocolVersion = 1

// Frame kinds.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// RPC methods.
const (
	MethodConnect          = "connect"
	MethodHealth           = "health"
	MethodAgentSpawn       = "agent.spawn"
	MethodAgentGet         = "agent.get"
	MethodAgentList        = "agent.list"
	MethodAgentStart       = "agent.start"
	MethodAgentPause       = "agent.pause"
	MethodAgentResume      = "agent.resume"
	MethodAgentStop        = "agent.stop"
	MethodAgentDelete      = "agent.delete"
	MethodAgentWait        = "agent.wait"
	MethodAgentSubscribe   = "agent.subscribe"
	MethodAgentUnsubscribe = "agent.unsubscribe"
	MethodAgentAttempts    = "agent.attempts"
	MethodTranscriptParse  = "transcript.parse"
	MethodTranscriptSearch = "transcript.search"
	MethodLeadPut          = "lead.put"
	MethodLeadList         = "lead.list"
	MethodScriptPut        = "script.put"
	MethodScriptList       = "script.list"
	MethodClientList       = "client.list"
)

// Events pushed by the gateway.
const (
	EventConnectChallenge = "connect.challenge"
	// EventAgentSnapshot carries a domain.Snapshot to subscribers of its agent.
	EventAgentSnapshot = "agent.snapshot"
)

// Frame is the envelope for every WebSocket message. Requests carry
// ID/Method/Params, responses ID/OK/Payload or Error, events Event/Seq/Payload.
type Frame struct {
	Type string `json:"type"`

	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`

	Error *ErrorShape `json:"error,omitempty"`
}

// Succeeded reports whether f is a successful response.
func (f Frame) Succeeded() bool {
	return f.Type == FrameTypeResponse && f.OK != nil && *f.OK
}

// Decode unmarshals the payload into v.
func (f Frame) Decode(v any) error {
	if len(f.Payload) == 0 {
		return fmt.Errorf("frame %s has no payload", f.ID)
	}
	return json.Unmarshal(f.Payload, v)
}

// ErrorShape is the error body of a failed response, and of REST errors.
type ErrorShape struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// ConnectParams open a session. Subscribe lists agents whose snapshots
// should stream from the start; unknown ids are ignored.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
	Subscribe   []string     `json:"subscribe,omitempty"`
}

// ClientInfo identifies the connecting client.
type ClientInfo struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Mode     string `json:"mode"` // "app" | "dashboard" | "monitor"
}

// ConnectAuth carries the shared secret.
type ConnectAuth struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// HelloOK is the payload of a successful connect.
type HelloOK struct {
	Protocol   int          `json:"protocol"`
	Server     ServerInfo   `json:"server"`
	Features   Features     `json:"features"`
	Policy     ServerPolicy `json:"policy"`
	Subscribed []string     `json:"subscribed,omitempty"`
}

// ServerInfo identifies the gateway.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

// Features advertises what this gateway serves.
type Features struct {
	Methods  []string `json:"methods"`
	Events   []string `json:"events"`
	Outcomes []string `json:"outcomes"`
	Store    bool     `json:"store"`
}

// ServerPolicy communicates limits a client should respect.
type ServerPolicy struct {
	MaxPayload          int   `json:"maxPayload"`
	SubscriberBuffer    int   `json:"subscriberBuffer"`
	MinDelaySeconds     int   `json:"minDelaySeconds"`
	MaxDelaySeconds     int   `json:"maxDelaySeconds"`
	DefaultDelaySeconds int   `json:"defaultDelaySeconds"`
	MaxWaitMs           int64 `json:"maxWaitMs"`
}

// negotiateProtocol picks the protocol for a client range. Zero bounds are
// read as ProtocolVersion.
func negotiateProtocol(min, max int) (int, error) {
	if min == 0 {
		min = ProtocolVersion
	}
	if max == 0 {
		max = ProtocolVersion
	}
	if min > max {
		return 0, fmt.Errorf("invalid protocol range %d-%d", min, max)
	}
	if ProtocolVersion < min || ProtocolVersion > max {
		return 0, fmt.Errorf("protocol %d not in client range %d-%d", ProtocolVersion, min, max)
	}
	return ProtocolVersion, nil
}

// NewRequest builds a request frame.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeRequest, ID: id, Method: method, Params: raw}, nil
}

// NewResponse builds a success response.
func NewResponse(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Payload: raw}, nil
}

// NewErrorResponse builds a failed response.
func NewErrorResponse(id string, shape ErrorShape) Frame {
	ok := false
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Error: &shape}
}

// NewEvent builds an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, Payload: raw, Seq: seq}, nil
}
