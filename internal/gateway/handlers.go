package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HealthResponse is the health payload. Unauthenticated HTTP callers only
// get Status.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Clients  int    `json:"clients,omitempty"`
	Agents   int    `json:"agents,omitempty"`
	UptimeMs int64  `json:"uptimeMs,omitempty"`
	Store    bool   `json:"store,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error": ErrorShape{Code: CodeNotFound, Message: "no route for " + r.Method + " " + r.URL.Path},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError sends {"error": shape} with the HTTP status for its code.
func writeError(w http.ResponseWriter, err error) {
	shape := errorShape(err)
	writeJSON(w, httpStatus(shape.Code), map[string]any{"error": shape})
}

// RequestHandler serves one RPC method. Its result becomes the response
// payload; an error is sent through errorShape instead.
type RequestHandler func(rc *RequestContext) (any, error)

type route struct {
	fn RequestHandler
	// async routes run off the read loop so slow calls do not stall the
	// connection.
	async bool
}

// RequestContext is a single request on a connection.
type RequestContext struct {
	Client *Client
	Frame  Frame

	after []func()
}

// AfterReply queues fn to run once the response has been written, for work
// whose output must not overtake it.
func (rc *RequestContext) AfterReply(fn func()) { rc.after = append(rc.after, fn) }

// Context is cancelled when the connection closes.
func (rc *RequestContext) Context() context.Context { return rc.Client.Context() }

// Bind decodes the request params into v. Missing params leave v as is.
func (rc *RequestContext) Bind(v any) error {
	if len(rc.Frame.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(rc.Frame.Params, v); err != nil {
		return invalidParams("%s: %v", rc.Frame.Method, err)
	}
	return nil
}

// rpcError carries a fully formed ErrorShape through a handler's error
// return.
type rpcError struct{ shape ErrorShape }

func (e *rpcError) Error() string { return e.shape.Message }

func invalidParams(format string, args ...any) error {
	return &rpcError{ErrorShape{Code: CodeInvalidParams, Message: fmt.Sprintf(format, args...)}}
}
