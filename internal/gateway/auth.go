package gateway

import (
	"crypto/subtle"
	"os"

	"github.com/soyeahso/outreach/internal/config"
)

// Auth modes.
const (
	AuthModeToken    = "token"
	AuthModePassword = "password"
)

// Environment fallbacks for the gateway secret.
const (
	envGatewayToken    = "OUTREACH_GATEWAY_TOKEN"
	envGatewayPassword = "OUTREACH_GATEWAY_PASSWORD"
)

// AuthResult is the outcome of checking a presented credential.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Method string `json:"method,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ResolvedAuth is the gateway's effective mode and secret.
type ResolvedAuth struct {
	Mode   string
	Secret string
}

// ResolveAuth picks the secret for the configured mode from config, then the
// environment. Without a mode, a configured password selects password mode.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	token := firstNonEmpty(cfg.Token, os.Getenv(envGatewayToken))
	password := firstNonEmpty(cfg.Password, os.Getenv(envGatewayPassword))

	mode := cfg.Mode
	if mode == "" {
		mode = AuthModeToken
		if password != "" {
			mode = AuthModePassword
		}
	}

	switch mode {
	case AuthModeToken:
		return ResolvedAuth{Mode: mode, Secret: token}
	case AuthModePassword:
		return ResolvedAuth{Mode: mode, Secret: password}
	}
	return ResolvedAuth{Mode: mode}
}

// Credentials returns what a client of this gateway should present.
func (a ResolvedAuth) Credentials() ConnectAuth {
	if a.Mode == AuthModePassword {
		return ConnectAuth{Password: a.Secret}
	}
	return ConnectAuth{Token: a.Secret}
}

// Check compares a presented secret in constant time.
func (a ResolvedAuth) Check(presented string) AuthResult {
	switch a.Mode {
	case AuthModeToken, AuthModePassword:
	default:
		return AuthResult{Reason: "unknown auth mode: " + a.Mode}
	}
	if a.Secret == "" {
		return AuthResult{Reason: "server " + a.Mode + " not configured"}
	}
	if presented == "" {
		return AuthResult{Reason: a.Mode + " required"}
	}
	if !safeEqual(presented, a.Secret) {
		return AuthResult{Reason: a.Mode + "_mismatch"}
	}
	return AuthResult{OK: true, Method: a.Mode}
}

// Authorize checks the credential of the configured mode in a connect request.
func Authorize(a ResolvedAuth, c *ConnectAuth) AuthResult {
	if c == nil {
		return AuthResult{Reason: "no credentials provided"}
	}
	if a.Mode == AuthModePassword {
		return a.Check(c.Password)
	}
	return a.Check(c.Token)
}

// safeEqual compares without leaking the secret's length through timing.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
