package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/gcm-presence/internal/models"
)

type fakeExec struct {
	seen map[any]bool
	args [][]any
	err  error
}

func (f *fakeExec) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	f.args = append(f.args, args)
	if f.seen[args[0]] {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}
	f.seen[args[0]] = true
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestHistoryRepository_AppendIsIdempotent(t *testing.T) {
	f := &fakeExec{seen: map[any]bool{}}
	repo := NewHistoryRepository(f)
	ctx := context.Background()

	ev := models.PresenceEvent{
		EventID: "6f1c3c1e-8a3b-4a53-9d3e-0d4f5e2b9a10",
		Type:    models.EventMarked,
		PostID:  "hc1",
		Record: &models.PresenceRecord{
			ID: "hc1", WarName: "Silva", Rank: models.RankFirstClass,
			InspectorateID: "insp1", HealthCenterID: "hc1",
			Timestamp: time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC),
		},
		Date:       "2024-03-11",
		OccurredAt: time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC),
	}

	inserted, err := repo.Append(ctx, ev)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Append(ctx, ev)
	require.NoError(t, err)
	assert.False(t, inserted)

	require.Len(t, f.args, 2)
	assert.Contains(t, f.args[0][4], `"warName":"Silva"`)
}

func TestHistoryRepository_ResetEventHasNoRecord(t *testing.T) {
	f := &fakeExec{seen: map[any]bool{}}
	repo := NewHistoryRepository(f)

	_, err := repo.Append(context.Background(), models.PresenceEvent{
		EventID: "e1", Type: models.EventReset, Date: "2024-03-11", OccurredAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Nil(t, f.args[0][4])
}

func TestHistoryRepository_WrapsErrors(t *testing.T) {
	boom := errors.New("connection reset")
	repo := NewHistoryRepository(&fakeExec{err: boom})

	_, err := repo.Append(context.Background(), models.PresenceEvent{EventID: "e1"})
	assert.ErrorIs(t, err, boom)
}
