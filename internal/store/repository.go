package store

import (
	"context"
	"errors"

	"github.com/ihiteshgupta/avatar-client/internal/state"
)

// ErrNotFound is returned when a requested item is not found.
var ErrNotFound = errors.New("not found")

// HistoryRepository defines operations for history list and selection persistence.
type HistoryRepository interface {
	ReplaceAll(ctx context.Context, histories []History) error
	Prepend(ctx context.Context, h *History) error
	List(ctx context.Context) ([]History, error)
	Delete(ctx context.Context, uid string) error
	Count(ctx context.Context) (int, error)
	GetSelection(ctx context.Context) (string, error)
	SetSelection(ctx context.Context, uid string) error
}

// SettingsRepository defines operations for persisted user overrides.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// StateRepository defines operations for readiness state persistence.
type StateRepository interface {
	GetState(ctx context.Context) (state.State, error)
	SaveState(ctx context.Context, s state.State) error
	LogTransition(ctx context.Context, t *Transition) error
	GetTransitionHistory(ctx context.Context, limit int) ([]Transition, error)
}
