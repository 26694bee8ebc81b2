package facts

import (
	"context"
	"errors"
	"github.com/ValentinKolb/dSync/lib/cache"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
	"time"
)

type fakeResponder struct {
	mu      sync.Mutex
	nonce   string
	results common.Args
}

func (f *fakeResponder) Respond(_ context.Context, nonce string, results common.Args) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonce, f.results = nonce, results
	return nil
}

type fakeTables []cache.TableStats

func (f fakeTables) Stats() []cache.TableStats { return f }

func TestEvaluateKeepsOrderAndIsolatesFailures(t *testing.T) {
	var reported []string
	var mu sync.Mutex
	r := NewRegistry(WithErrorHook(func(event string, err error) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, err.Error())
	}))

	r.Register("guild_count", func(context.Context, common.Args) (any, error) {
		time.Sleep(20 * time.Millisecond)
		return 3, nil
	})
	r.Register("broken", func(context.Context, common.Args) (any, error) {
		return nil, errors.New("boom")
	})
	r.Register("panics", func(context.Context, common.Args) (any, error) {
		panic("oops")
	})
	r.Register("echo", func(_ context.Context, kwargs common.Args) (any, error) {
		v, _ := kwargs.Get("value")
		return v, nil
	})

	results := r.Evaluate(context.Background(),
		[]string{"guild_count", "broken", "missing", "panics", "echo"},
		common.NewArgs("echo", common.NewArgs("value", "hi")))

	require.Equal(t, []string{"guild_count", "broken", "missing", "panics", "echo"}, results.Names())
	require.Equal(t, []any{3, nil, nil, nil, "hi"}, results.Values())
	require.Len(t, reported, 3)
}

func TestHandlerRespondsToNonce(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, 4, time.Now().Add(-time.Minute), fakeTables{{Table: "guilds", Entries: 2}})

	resp := &fakeResponder{}
	env := common.NewRequestEnvelope(common.Broadcast, "abc", []string{"node_id", "uptime", "cache_stats"},
		common.NewArgs("cache_stats", common.NewArgs("table", "guilds")))

	require.NoError(t, r.Handler(resp)(context.Background(), env))
	require.Equal(t, "abc", resp.nonce)
	require.Equal(t, []string{"node_id", "uptime", "cache_stats"}, resp.results.Names())

	nodeID, _ := resp.results.Get("node_id")
	require.Equal(t, int64(4), nodeID)
	uptime, _ := resp.results.Get("uptime")
	require.GreaterOrEqual(t, uptime.(float64), 60.0)
	stats, _ := resp.results.Get("cache_stats")
	require.Equal(t, cache.TableStats{Table: "guilds", Entries: 2}, stats)
}

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest(common.Envelope{Command: "REQUEST", Args: common.NewArgs("info", "goroutines", "nonce", "n1")})
	require.NoError(t, err)
	require.Equal(t, []string{"goroutines"}, req.Info)
	require.Empty(t, req.Args)

	_, err = ParseRequest(common.Envelope{Command: "REQUEST", Args: common.NewArgs("info", []any{"a"})})
	require.ErrorIs(t, err, common.ErrMalformedEnvelope)

	_, err = ParseRequest(common.Envelope{Command: "REQUEST", Args: common.NewArgs("nonce", "n1", "info", []any{1})})
	require.ErrorIs(t, err, common.ErrMalformedEnvelope)
}

func TestNames(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, 1, time.Now(), fakeTables{})
	require.Equal(t, []string{"cache_stats", "goroutines", "log_level", "metrics", "node_id", "uptime"}, r.Names())
}
