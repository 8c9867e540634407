package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihiteshgupta/avatar-client/internal/state"
)

func setupTestDB(t *testing.T) *SQLiteStore {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// History Repository Tests

func TestSQLiteHistoryRepo_ReplaceAll(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	err := store.Histories.ReplaceAll(ctx, []History{
		{UID: "h2", LatestRole: "ai", LatestContent: "hello"},
		{UID: "h1"},
	})
	require.NoError(t, err)

	histories, err := store.Histories.List(ctx)
	require.NoError(t, err)
	require.Len(t, histories, 2)
	assert.Equal(t, "h2", histories[0].UID)
	assert.Equal(t, "hello", histories[0].LatestContent)
	assert.Equal(t, "h1", histories[1].UID)

	// Replacing drops entries the backend no longer lists.
	err = store.Histories.ReplaceAll(ctx, []History{{UID: "h3"}})
	require.NoError(t, err)

	count, err := store.Histories.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteHistoryRepo_Prepend(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.Histories.ReplaceAll(ctx, []History{{UID: "h1"}, {UID: "h0"}}))
	require.NoError(t, store.Histories.Prepend(ctx, &History{UID: "h2"}))

	histories, err := store.Histories.List(ctx)
	require.NoError(t, err)
	require.Len(t, histories, 3)
	assert.Equal(t, []string{"h2", "h1", "h0"}, []string{histories[0].UID, histories[1].UID, histories[2].UID})

	// Prepending an existing uid moves it to the front.
	require.NoError(t, store.Histories.Prepend(ctx, &History{UID: "h0"}))
	histories, err = store.Histories.List(ctx)
	require.NoError(t, err)
	require.Len(t, histories, 3)
	assert.Equal(t, "h0", histories[0].UID)
}

func TestSQLiteHistoryRepo_Delete(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.Histories.ReplaceAll(ctx, []History{{UID: "h1"}}))
	require.NoError(t, store.Histories.Delete(ctx, "h1"))

	err := store.Histories.Delete(ctx, "h1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteHistoryRepo_Selection(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	uid, err := store.Histories.GetSelection(ctx)
	require.NoError(t, err)
	assert.Empty(t, uid)

	require.NoError(t, store.Histories.SetSelection(ctx, "h1"))
	uid, err = store.Histories.GetSelection(ctx)
	require.NoError(t, err)
	assert.Equal(t, "h1", uid)
}

// Settings Repository Tests

func TestSQLiteSettingsRepo(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	_, err := store.Settings.Get(ctx, SettingWSURL)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Settings.Set(ctx, SettingWSURL, "ws://a/client-ws"))
	require.NoError(t, store.Settings.Set(ctx, SettingWSURL, "ws://b/client-ws"))

	value, err := store.Settings.Get(ctx, SettingWSURL)
	require.NoError(t, err)
	assert.Equal(t, "ws://b/client-ws", value)

	require.NoError(t, store.Settings.Delete(ctx, SettingWSURL))
	_, err = store.Settings.Get(ctx, SettingWSURL)
	assert.ErrorIs(t, err, ErrNotFound)
}

// State Repository Tests

func TestSQLiteStateRepo_SaveAndGet(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	s, err := store.State.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.StateDisconnected, s)

	require.NoError(t, store.State.SaveState(ctx, state.StateReady))
	s, err = store.State.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.StateReady, s)
}

func TestSQLiteStateRepo_Transitions(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	first := &Transition{
		SessionID:      "s1",
		FromState:      state.StateDisconnected,
		ToState:        state.StateConnecting,
		Trigger:        string(state.TriggerTransportOpened),
		TransportState: "OPEN",
	}
	require.NoError(t, store.State.LogTransition(ctx, first))
	assert.NotZero(t, first.ID)

	second := &Transition{
		SessionID:      "s1",
		FromState:      state.StateConnecting,
		ToState:        state.StateReady,
		Trigger:        string(state.TriggerHistoryReady),
		TransportState: "OPEN",
		HistoryUID:     "h1",
	}
	require.NoError(t, store.State.LogTransition(ctx, second))

	transitions, err := store.State.GetTransitionHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, transitions, 2)

	// Newest first
	assert.Equal(t, state.StateReady, transitions[0].ToState)
	assert.Equal(t, "h1", transitions[0].HistoryUID)
	assert.Equal(t, state.StateConnecting, transitions[1].ToState)

	limited, err := store.State.GetTransitionHistory(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
