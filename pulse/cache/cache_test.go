package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbtest "github.com/teranos/pegabatch/internal/testing"
	"github.com/teranos/pegabatch/pegabot"
)

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (m *mockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func payload(user string) *pegabot.Payload {
	all := 0.3
	return &pegabot.Payload{
		Profiles:    []pegabot.Profile{{Username: user, BotProbability: pegabot.BotProbability{All: &all}}},
		TwitterData: &pegabot.TwitterData{UserName: pegabot.Text(user), Followers: 12},
	}
}

func TestGetMiss(t *testing.T) {
	c := New(dbtest.CreateMigratedTestDB(t), 0)

	got, ok, err := c.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestSetGet(t *testing.T) {
	ctx := context.Background()
	c := New(dbtest.CreateMigratedTestDB(t), 0)

	require.NoError(t, c.Set(ctx, "alice", payload("alice")))

	got, ok, err := c.Get(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload("alice"), got)

	// Keys are exact strings
	_, ok, err = c.Get(ctx, "Alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLastWriteWins(t *testing.T) {
	ctx := context.Background()
	c := New(dbtest.CreateMigratedTestDB(t), 0)

	require.NoError(t, c.Set(ctx, "alice", payload("first")))
	require.NoError(t, c.Set(ctx, "alice", payload("second")))

	got, ok, err := c.Get(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", got.Profiles[0].Username)
}

func TestSetNilPayload(t *testing.T) {
	c := New(dbtest.CreateMigratedTestDB(t), 0)
	assert.Error(t, c.Set(context.Background(), "alice", nil))
}

func TestTTL(t *testing.T) {
	ctx := context.Background()
	clock := &mockClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	db := dbtest.CreateMigratedTestDB(t)

	c := NewWithClock(db, time.Hour, clock.Now)
	require.NoError(t, c.Set(ctx, "alice", payload("alice")))

	clock.Advance(59 * time.Minute)
	_, ok, err := c.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok, "entry inside TTL should be served")

	clock.Advance(time.Minute)
	_, ok, err = c.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok, "entry at TTL should read as absent")

	// Without a TTL the same row is still served
	forever := NewWithClock(db, 0, clock.Now)
	_, ok, err = forever.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCorruptEntryIsMiss(t *testing.T) {
	db := dbtest.CreateMigratedTestDB(t)
	_, err := db.Exec(`INSERT INTO response_cache (identifier, payload, stored_at) VALUES ('x', '{', '2024-01-01T00:00:00.000000000Z')`)
	require.NoError(t, err)

	_, ok, err := New(db, 0).Get(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatsAndPurge(t *testing.T) {
	ctx := context.Background()
	clock := &mockClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewWithClock(dbtest.CreateMigratedTestDB(t), 2*time.Hour, clock.Now)

	require.NoError(t, c.Set(ctx, "old", payload("old")))
	clock.Advance(3 * time.Hour)
	require.NoError(t, c.Set(ctx, "new", payload("new")))

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Entries)
	assert.Equal(t, 1, st.Expired)
	require.NotNil(t, st.Oldest)
	require.NotNil(t, st.Newest)
	assert.True(t, st.Oldest.Before(*st.Newest))

	n, err := c.Purge(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok, err := c.Get(ctx, "new")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err = c.Purge(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	st, err = c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Entries)
}
