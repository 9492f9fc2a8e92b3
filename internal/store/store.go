package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/soyeahso/outreach/internal/config"
	"github.com/soyeahso/outreach/internal/domain"
	"github.com/soyeahso/outreach/internal/logging"
)

// ErrInvalidRecord is returned when a record is missing its id.
var ErrInvalidRecord = errors.New("record id is required")

// ErrInvalidQuery reports a transcript search the query parser rejected.
var ErrInvalidQuery = errors.New("invalid search query")

// Attempt is a stored call attempt with its transcript split into turns.
type Attempt struct {
	domain.CallAttempt
	Messages []domain.TranscriptMessage `json:"messages"`
}

// Store is the persistence surface used by the dialer, the campaign
// registry and the gateway.
type Store interface {
	domain.LeadDirectory
	domain.ScriptDirectory

	PutLead(ctx context.Context, lead domain.Lead) error
	ListLeads(ctx context.Context) ([]domain.Lead, error)
	PutScript(ctx context.Context, script domain.Script) error
	ListScripts(ctx context.Context) ([]domain.Script, error)

	RecordAttempt(ctx context.Context, a domain.CallAttempt) error
	Attempts(ctx context.Context, agentID string) ([]Attempt, error)
	SearchTranscripts(ctx context.Context, query string, limit int) ([]Attempt, error)

	Close() error
}

var (
	_ Store = (*DB)(nil)
	_ Store = (*Memory)(nil)
)

// New opens the store selected by cfg. An empty sqlite path falls back to
// defaultPath.
func New(cfg config.StoreConfig, defaultPath string, log *logging.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = defaultPath
		}
		db, err := Open(path, log)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
