package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbtest "github.com/teranos/pegabatch/internal/testing"
	"github.com/teranos/pegabatch/pegabot"
	"github.com/teranos/pegabatch/pulse/batch"
)

func score(v float64) *pegabot.Payload {
	return &pegabot.Payload{Profiles: []pegabot.Profile{{BotProbability: pegabot.BotProbability{All: &v}}}}
}

func TestLoadEmpty(t *testing.T) {
	store := NewStore(dbtest.CreateMigratedTestDB(t))

	cp, err := store.Load(context.Background(), "42")
	require.NoError(t, err)
	assert.NotNil(t, cp.Results)
	assert.Empty(t, cp.Results)
	assert.Empty(t, cp.Errors)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(dbtest.CreateMigratedTestDB(t))

	want := batch.Checkpoint{
		Results: batch.PartialResult{"alice": score(0.2), "Bob": score(0.9)},
		Errors:  []batch.LineError{{RowIndex: 1, Message: batch.MsgInvalidIdentifier}},
	}
	require.NoError(t, store.Save(ctx, "42", want))

	got, err := store.Load(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Other jobs are isolated
	other, err := store.Load(ctx, "43")
	require.NoError(t, err)
	assert.Empty(t, other.Results)
}

func TestSaveStoresUnderDocumentedKeys(t *testing.T) {
	ctx := context.Background()
	db := dbtest.CreateMigratedTestDB(t)
	store := NewStore(db)

	require.NoError(t, store.Save(ctx, "7", batch.Checkpoint{}))

	var keys []string
	rows, err := db.Query(`SELECT key FROM checkpoint_kv ORDER BY key`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var k string
		require.NoError(t, rows.Scan(&k))
		keys = append(keys, k)
	}
	assert.Equal(t, []string{"7_error", "7_results"}, keys)
}

func TestRepeatedSavesNeverShrink(t *testing.T) {
	ctx := context.Background()
	store := NewStore(dbtest.CreateMigratedTestDB(t))

	cp := batch.Checkpoint{Results: batch.PartialResult{}}
	prevResults, prevErrors := 0, 0
	for i, id := range []string{"a", "b", "", "c", ""} {
		if id == "" {
			cp.Errors = append(cp.Errors, batch.LineError{RowIndex: i, Message: batch.MsgInvalidIdentifier})
		} else {
			cp.Results[id] = score(float64(i))
		}
		require.NoError(t, store.Save(ctx, "9", cp))

		loaded, err := store.Load(ctx, "9")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(loaded.Results), prevResults)
		assert.GreaterOrEqual(t, len(loaded.Errors), prevErrors)
		prevResults, prevErrors = len(loaded.Results), len(loaded.Errors)
	}
	assert.Equal(t, 3, prevResults)
	assert.Equal(t, 2, prevErrors)
}

func TestClearKeepsCooldown(t *testing.T) {
	ctx := context.Background()
	store := NewStore(dbtest.CreateMigratedTestDB(t))

	until := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetCooldown(ctx, until))
	require.NoError(t, store.Save(ctx, "1", batch.Checkpoint{Results: batch.PartialResult{"a": score(1)}}))
	require.NoError(t, store.Clear(ctx, "1"))

	cp, err := store.Load(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, cp.Results)

	got, err := store.Cooldown(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(until))
}

func TestCooldown(t *testing.T) {
	ctx := context.Background()
	db := dbtest.CreateMigratedTestDB(t)
	store := NewStore(db)

	got, err := store.Cooldown(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	first := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	require.NoError(t, store.SetCooldown(ctx, first))
	second := first.Add(15 * time.Minute)
	require.NoError(t, store.SetCooldown(ctx, second))

	got, err = store.Cooldown(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(second), "last write wins")

	require.NoError(t, store.ClearCooldown(ctx))
	got, err = store.Cooldown(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Garbage reads as no cooldown rather than blocking forever
	_, err = db.Exec(`INSERT INTO checkpoint_kv (key, value, updated_at) VALUES (?, 'soon', '')`, CooldownKey)
	require.NoError(t, err)
	got, err = store.Cooldown(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestJobs(t *testing.T) {
	ctx := context.Background()
	store := NewStore(dbtest.CreateMigratedTestDB(t))

	require.NoError(t, store.Save(ctx, "b_2", batch.Checkpoint{}))
	require.NoError(t, store.Save(ctx, "a1", batch.Checkpoint{}))
	require.NoError(t, store.SetCooldown(ctx, time.Now()))

	ids, err := store.Jobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "b_2"}, ids)
}

func TestLoadCorruptResults(t *testing.T) {
	db := dbtest.CreateMigratedTestDB(t)
	_, err := db.Exec(`INSERT INTO checkpoint_kv (key, value, updated_at) VALUES ('5_results', '{not json', '')`)
	require.NoError(t, err)

	_, err = NewStore(db).Load(context.Background(), "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode results for job 5")
}

func TestSaveRollsBackOnPartialWrite(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO checkpoint_kv").
		WithArgs("3_results", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO checkpoint_kv").
		WithArgs("3_error", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = NewStore(db).Save(context.Background(), "3", batch.Checkpoint{
		Results: batch.PartialResult{"a": score(0.1)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveCommitFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO checkpoint_kv").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO checkpoint_kv").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	err = NewStore(db).Save(context.Background(), "3", batch.Checkpoint{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit checkpoint for job 3")
	assert.NoError(t, mock.ExpectationsWereMet())
}
