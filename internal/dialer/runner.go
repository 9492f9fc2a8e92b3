// Package dialer drives single call attempts against leads. The campaign loop
// only sees the Runner interface; whether calls are simulated or placed on a
// real telephony platform is decided when the Runner is constructed.
package dialer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/outreach/internal/domain"
)

// Result is the settled outcome of one call attempt. Business outcomes such
// as no-answer are results, never errors.
type Result struct {
	Outcome         domain.Outcome
	StartedAt       time.Time
	DurationSeconds float64
	Transcript      string
}

// Runner places one call. Any returned error is fatal for the campaign.
type Runner interface {
	Attempt(ctx context.Context, leadID, scriptID string, cfg domain.AgentConfig) (Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, leadID, scriptID string, cfg domain.AgentConfig) (Result, error)

// Attempt calls f.
func (f RunnerFunc) Attempt(ctx context.Context, leadID, scriptID string, cfg domain.AgentConfig) (Result, error) {
	return f(ctx, leadID, scriptID, cfg)
}

// Kind classifies infrastructure failures.
type Kind string

const (
	KindAuth     Kind = "auth"
	KindQuota    Kind = "quota"
	KindNetwork  Kind = "network"
	KindProvider Kind = "provider"
	KindCanceled Kind = "canceled"
)

// FatalError is an infrastructure failure that halts the campaign.
type FatalError struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *FatalError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s failure (%s): %v", e.Kind, e.Provider, e.Err)
	}
	return fmt.Sprintf("%s failure: %v", e.Kind, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal builds a FatalError.
func Fatal(kind Kind, provider string, err error) *FatalError {
	return &FatalError{Kind: kind, Provider: provider, Err: err}
}

// AsFatal normalizes any runner error into a FatalError. Context errors map
// to KindCanceled, deadlines to KindNetwork, and anything else to KindProvider.
func AsFatal(err error) *FatalError {
	if err == nil {
		return nil
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.Canceled) {
		return Fatal(KindCanceled, "", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Fatal(KindNetwork, "", err)
	}
	return Fatal(KindProvider, "", err)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
