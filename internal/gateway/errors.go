package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/soyeahso/outreach/internal/campaign"
	"github.com/soyeahso/outreach/internal/domain"
	"github.com/soyeahso/outreach/internal/store"
)

// Error codes carried in ErrorShape.Code.
const (
	CodeInvalidParams     = "invalid_params"
	CodeNotFound          = "not_found"
	CodeInvalidTransition = "invalid_transition"
	CodeAgentActive       = "agent_active"
	CodeAgentFailed       = "agent_failed"
	CodeMethodNotFound    = "method_not_found"
	CodeUnauthorized      = "unauthorized"
	CodeUnavailable       = "unavailable"
	CodeTimeout           = "timeout"
	CodeInternal          = "internal"
	CodeProtocol          = "protocol_error"
)

var errStoreUnavailable = errors.New("no store configured")

// errorShape maps a domain error to its wire form.
func errorShape(err error) ErrorShape {
	var re *rpcError
	if errors.As(err, &re) {
		return re.shape
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	code := CodeInternal
	switch {
	case errors.Is(err, campaign.ErrNotFound),
		errors.Is(err, domain.ErrLeadNotFound),
		errors.Is(err, domain.ErrScriptNotFound):
		code = CodeNotFound
	case errors.Is(err, campaign.ErrInvalidTransition):
		code = CodeInvalidTransition
	case errors.Is(err, campaign.ErrAgentActive):
		code = CodeAgentActive
	case errors.Is(err, campaign.ErrNoLeads),
		errors.Is(err, store.ErrInvalidRecord),
		errors.Is(err, store.ErrInvalidQuery),
		errors.As(err, &syntaxErr),
		errors.As(err, &typeErr):
		code = CodeInvalidParams
	case errors.Is(err, errStoreUnavailable):
		code = CodeUnavailable
	}
	return ErrorShape{Code: code, Message: err.Error()}
}

// httpStatus returns the REST status for an error code.
func httpStatus(code string) int {
	switch code {
	case CodeInvalidParams:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidTransition, CodeAgentActive:
		return http.StatusConflict
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
