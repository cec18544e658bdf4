package infra

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabework/tradeguard/internal/domain"
)

func newTestStore(t *testing.T) *SQLSessionStore {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)

	store, err := NewSQLSessionStore(t.TempDir(), key)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func session(id string, state domain.SequenceState, startedAt time.Time) domain.LockoutSession {
	value := decimal.RequireFromString("-520")
	return domain.LockoutSession{
		ID:             id,
		State:          state,
		Platform:       "Quantower",
		BlockName:      "Quantower",
		BreachReading:  domain.Reading{RawText: "-520.00", Parsed: &value},
		LockoutMinutes: 15,
		StartedAt:      startedAt,
	}
}

func TestSaveAndRecoverActiveSessions(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().Truncate(time.Second)

	require.NoError(t, store.SaveSession(session("a", domain.StateFlattening, now.Add(-2*time.Minute))))
	require.NoError(t, store.SaveSession(session("b", domain.StateLocked, now.Add(-time.Minute))))
	require.NoError(t, store.SaveSession(session("c", domain.StateInvoking, now)))

	active, err := store.ActiveSessions()
	require.NoError(t, err)
	require.Len(t, active, 2, "terminal sessions are not recovered")
	assert.Equal(t, "a", active[0].ID, "oldest interrupted session first")
	assert.Equal(t, "c", active[1].ID)

	assert.Equal(t, domain.StateFlattening, active[0].State)
	assert.Equal(t, "Quantower", active[0].BlockName)
	require.NotNil(t, active[0].BreachReading.Parsed)
	assert.True(t, active[0].BreachReading.Parsed.Equal(decimal.RequireFromString("-520")),
		"breach value round-trips without drift")
}

func TestUpdateState(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveSession(session("a", domain.StateArmed, time.Now())))

	require.NoError(t, store.UpdateState("a", domain.StateLocked))

	active, err := store.ActiveSessions()
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestUpdateStateUnknownSession(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.UpdateState("ghost", domain.StateLocked))
}

func TestRecentSessionsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().Truncate(time.Second)

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, store.SaveSession(session(id, domain.StateLocked, base.Add(time.Duration(i)*time.Minute))))
	}

	recent, err := store.RecentSessions(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "new", recent[0].ID)
	assert.Equal(t, "mid", recent[1].ID)
}

func TestSaveSessionWithoutParsedValue(t *testing.T) {
	store := newTestStore(t)
	sess := session("a", domain.StateArmed, time.Now())
	sess.BreachReading.Parsed = nil

	require.NoError(t, store.SaveSession(sess))

	active, err := store.ActiveSessions()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Nil(t, active[0].BreachReading.Parsed)
}

func TestFlattenDeadlineRoundTrip(t *testing.T) {
	store := newTestStore(t)
	sess := session("a", domain.StateFlattening, time.Now())
	sess.FlattenDeadline = time.Now().Add(30 * time.Second).Truncate(time.Second)

	require.NoError(t, store.SaveSession(sess))

	active, err := store.ActiveSessions()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, sess.FlattenDeadline.Unix(), active[0].FlattenDeadline.Unix())
}

func TestRecordSample(t *testing.T) {
	store := newTestStore(t)
	value := decimal.RequireFromString("-120.50")

	err := store.RecordSample("Quantower", domain.Reading{
		RawText:   "-120.50",
		Parsed:    &value,
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	err = store.RecordSample("Quantower", domain.Reading{RawText: "garbled"})
	require.NoError(t, err, "inconclusive samples are recorded too")
}

func TestWrongKeyCannotOpen(t *testing.T) {
	dir := t.TempDir()
	key, err := GenerateKey()
	require.NoError(t, err)

	store, err := NewSQLSessionStore(dir, key)
	require.NoError(t, err)
	require.NoError(t, store.SaveSession(session("a", domain.StateFlattening, time.Now())))
	require.NoError(t, store.Close())

	wrongKey, err := GenerateKey()
	require.NoError(t, err)

	reopened, err := NewSQLSessionStore(dir, wrongKey)
	if err == nil {
		_, qerr := reopened.ActiveSessions()
		reopened.Close()
		assert.Error(t, qerr, "sessions must be unreadable without the key")
	}
}
