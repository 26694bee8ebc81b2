package memstore

import (
	"context"
	"github.com/ValentinKolb/dSync/lib/store"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
)

var guilds = store.Table{
	Name:       "guilds",
	KeyColumns: []string{"guild_id"},
	Select:     "SELECT * FROM guilds WHERE guild_id = $1",
	Delete:     "DELETE FROM guilds WHERE guild_id = $1",
	Insert:     "INSERT INTO guilds({}) VALUES({}) ON CONFLICT (guild_id) DO UPDATE SET ({}) = ROW({})",
}

func TestUpsertMergesColumns(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, found, err := s.FetchRow(ctx, guilds, []any{int64(1)})
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.Upsert(ctx, guilds, []any{int64(1)}, store.Fields{"prefix": "!", "xsaid": true}))
	require.NoError(t, s.Upsert(ctx, guilds, []any{int64(1)}, store.Fields{"prefix": "?"}))

	row, found, err := s.FetchRow(ctx, guilds, []any{int64(1)})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, store.Fields{"guild_id": int64(1), "prefix": "?", "xsaid": true}, row)

	// returned rows are copies
	row["prefix"] = "mutated"
	row, _, _ = s.FetchRow(ctx, guilds, []any{int64(1)})
	require.Equal(t, "?", row["prefix"])
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Upsert(ctx, guilds, []any{int64(1)}, store.Fields{"prefix": "!"}))
	require.NoError(t, s.Delete(ctx, guilds, []any{int64(1)}))
	require.NoError(t, s.Delete(ctx, guilds, []any{int64(2)}))
	require.Equal(t, 0, s.Len("guilds"))
}

func TestInvalidKey(t *testing.T) {
	s := NewMemoryStore()
	err := s.Upsert(context.Background(), guilds, []any{int64(1), int64(2)}, store.Fields{})
	require.Equal(t, store.RetCInvalidKey, store.CodeOf(err))
}

func TestConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Upsert(ctx, guilds, []any{int64(i % 5)}, store.Fields{"n": i})
		}(i)
	}
	wg.Wait()
	require.Equal(t, 5, s.Len("guilds"))
}
