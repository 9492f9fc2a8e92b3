package dialer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/soyeahso/outreach/internal/domain"
)

// Call statuses reported by the telephony platform.
const (
	CallQueued     = "queued"
	CallRinging    = "ringing"
	CallInProgress = "in-progress"
	CallEnded      = "ended"
)

// CallRequest asks the platform to dial a lead with an assistant configuration.
type CallRequest struct {
	To        string        `json:"to"`
	From      string        `json:"from,omitempty"`
	Assistant domain.Script `json:"assistant"`
	Metadata  CallMetadata  `json:"metadata"`
}

// CallMetadata is echoed back by the platform for correlation.
type CallMetadata struct {
	LeadID   string `json:"leadId"`
	LeadName string `json:"leadName,omitempty"`
	Company  string `json:"company,omitempty"`
}

// CallReport is the platform's view of a call.
type CallReport struct {
	ID              string  `json:"id"`
	Status          string  `json:"status"`
	EndedReason     string  `json:"endedReason,omitempty"`
	Outcome         string  `json:"outcome,omitempty"`
	Transcript      string  `json:"transcript,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}

// Telephony is the voice platform behind the live runner.
type Telephony interface {
	PlaceCall(ctx context.Context, req CallRequest) (string, error)
	CallStatus(ctx context.Context, callID string) (CallReport, error)
}

// HTTPTelephony talks to a JSON REST voice platform.
type HTTPTelephony struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPTelephony creates a client for the platform at baseURL.
func NewHTTPTelephony(baseURL, apiKey string) *HTTPTelephony {
	return &HTTPTelephony{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

const telephonyProvider = "telephony"

// PlaceCall starts a call and returns the platform call id.
func (t *HTTPTelephony) PlaceCall(ctx context.Context, req CallRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", Fatal(KindProvider, telephonyProvider, fmt.Errorf("marshal call request: %w", err))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := t.do(ctx, http.MethodPost, "/call", payload, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", Fatal(KindProvider, telephonyProvider, fmt.Errorf("platform returned no call id"))
	}
	return out.ID, nil
}

// CallStatus fetches the current report for a call.
func (t *HTTPTelephony) CallStatus(ctx context.Context, callID string) (CallReport, error) {
	var report CallReport
	err := t.do(ctx, http.MethodGet, "/call/"+url.PathEscape(callID), nil, &report)
	return report, err
}

func (t *HTTPTelephony) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, rd)
	if err != nil {
		return Fatal(KindProvider, telephonyProvider, err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return AsFatal(ctx.Err())
		}
		return Fatal(KindNetwork, telephonyProvider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Fatal(KindNetwork, telephonyProvider, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode/100 != 2 {
		return Fatal(kindForStatus(resp.StatusCode), telephonyProvider,
			fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(data))))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return Fatal(KindProvider, telephonyProvider, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// kindForStatus maps an HTTP status to a failure kind.
func kindForStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests || code == http.StatusPaymentRequired:
		return KindQuota
	case code >= 500:
		return KindNetwork
	default:
		return KindProvider
	}
}
