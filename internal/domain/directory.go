package domain

import (
	"context"
	"errors"
)

// ErrLeadNotFound and ErrScriptNotFound are returned by directories for unknown ids.
var (
	ErrLeadNotFound   = errors.New("lead not found")
	ErrScriptNotFound = errors.New("script not found")
)

// LeadDirectory resolves lead ids to contact records.
type LeadDirectory interface {
	Lead(ctx context.Context, id string) (Lead, error)
}

// ScriptDirectory resolves script ids to assistant configuration.
type ScriptDirectory interface {
	Script(ctx context.Context, id string) (Script, error)
}
