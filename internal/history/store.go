// Package history keeps the list of backend conversations and the one the
// client is currently working in.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ihiteshgupta/avatar-client/internal/protocol"
	"github.com/ihiteshgupta/avatar-client/internal/store"
)

// Store holds the history list and the current selection. Writes are
// persisted through the repository when one is configured.
type Store struct {
	repo store.HistoryRepository
	log  *slog.Logger

	mu        sync.RWMutex
	histories []store.History
	current   string

	listenersMu sync.RWMutex
	listeners   []func(id string)
}

// NewStore creates an empty history store. repo may be nil for a store that
// lives only in memory.
func NewStore(repo store.HistoryRepository, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		repo: repo,
		log:  log.With("component", "history"),
	}
}

// Load restores the persisted list and selection.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	histories, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load histories: %w", err)
	}
	uid, err := s.repo.GetSelection(ctx)
	if err != nil {
		return fmt.Errorf("failed to load history selection: %w", err)
	}

	s.mu.Lock()
	s.histories = histories
	s.current = uid
	s.mu.Unlock()

	s.log.Info("restored histories", "count", len(histories), "current", uid)
	s.notify(uid)
	return nil
}

// CurrentID returns the selected history uid, or "" when none is selected.
func (s *Store) CurrentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Histories returns a copy of the history list in server order.
func (s *Store) Histories() []store.History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.History, len(s.histories))
	copy(out, s.histories)
	return out
}

// Contains reports whether uid is in the history list.
func (s *Store) Contains(uid string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return indexOf(s.histories, uid) >= 0
}

// OnSelectionChange registers a callback for selection writes.
func (s *Store) OnSelectionChange(fn func(id string)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SetHistories replaces the list with one pushed by the backend, newest
// first. The selection is kept when it is still listed; otherwise the newest
// history is selected, or none when the list is empty.
func (s *Store) SetHistories(ctx context.Context, infos []protocol.HistoryInfo) error {
	histories := make([]store.History, 0, len(infos))
	for i, info := range infos {
		histories = append(histories, fromInfo(info, i))
	}

	s.mu.Lock()
	s.histories = histories
	prev := s.current
	next := prev
	if next == "" || indexOf(histories, next) < 0 {
		next = ""
		if len(histories) > 0 {
			next = histories[0].UID
		}
	}
	s.current = next
	s.mu.Unlock()

	var err error
	if s.repo != nil {
		if perr := s.repo.ReplaceAll(ctx, histories); perr != nil {
			err = fmt.Errorf("failed to persist histories: %w", perr)
		}
	}
	if next != prev {
		if serr := s.persistSelection(ctx, next); serr != nil && err == nil {
			err = serr
		}
		s.notify(next)
	}
	return err
}

// Add puts a newly created history at the front of the list and selects it.
func (s *Store) Add(ctx context.Context, uid string) error {
	if uid == "" {
		return fmt.Errorf("history uid is required")
	}
	h := store.History{UID: uid}

	s.mu.Lock()
	if i := indexOf(s.histories, uid); i >= 0 {
		s.histories = append(s.histories[:i], s.histories[i+1:]...)
	}
	s.histories = append([]store.History{h}, s.histories...)
	for i := range s.histories {
		s.histories[i].Position = i
	}
	s.current = uid
	s.mu.Unlock()

	var err error
	if s.repo != nil {
		if perr := s.repo.Prepend(ctx, &h); perr != nil {
			err = fmt.Errorf("failed to persist history: %w", perr)
		}
	}
	if serr := s.persistSelection(ctx, uid); serr != nil && err == nil {
		err = serr
	}
	s.notify(uid)
	return err
}

// Select makes uid the current history. Selecting "" clears the selection.
// Listeners are notified even when the selection does not change.
func (s *Store) Select(ctx context.Context, uid string) error {
	s.mu.Lock()
	s.current = uid
	s.mu.Unlock()

	err := s.persistSelection(ctx, uid)
	s.notify(uid)
	return err
}

// Remove drops uid from the list, clearing the selection if it was current.
func (s *Store) Remove(ctx context.Context, uid string) error {
	s.mu.Lock()
	i := indexOf(s.histories, uid)
	if i >= 0 {
		s.histories = append(s.histories[:i], s.histories[i+1:]...)
	}
	cleared := s.current == uid
	if cleared {
		s.current = ""
	}
	s.mu.Unlock()

	if i < 0 {
		return fmt.Errorf("history %s: %w", uid, store.ErrNotFound)
	}

	var err error
	if s.repo != nil {
		if perr := s.repo.Delete(ctx, uid); perr != nil {
			err = fmt.Errorf("failed to delete history: %w", perr)
		}
	}
	if cleared {
		if serr := s.persistSelection(ctx, ""); serr != nil && err == nil {
			err = serr
		}
		s.notify("")
	}
	return err
}

func (s *Store) persistSelection(ctx context.Context, uid string) error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.SetSelection(ctx, uid); err != nil {
		return fmt.Errorf("failed to persist history selection: %w", err)
	}
	return nil
}

func (s *Store) notify(uid string) {
	s.listenersMu.RLock()
	listeners := make([]func(string), len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(uid)
	}
}

func fromInfo(info protocol.HistoryInfo, position int) store.History {
	h := store.History{UID: info.UID, Position: position}
	if info.LatestMessage != nil {
		h.LatestRole = info.LatestMessage.Role
		h.LatestContent = info.LatestMessage.Content
		h.LatestTimestamp = info.LatestMessage.Timestamp
	}
	if info.Timestamp != nil {
		h.Timestamp = *info.Timestamp
	}
	return h
}

func indexOf(histories []store.History, uid string) int {
	for i, h := range histories {
		if h.UID == uid {
			return i
		}
	}
	return -1
}
