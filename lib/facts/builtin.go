package facts

import (
	"context"
	"github.com/ValentinKolb/dSync/lib/cache"
	"github.com/ValentinKolb/dSync/lib/metrics"
	"github.com/ValentinKolb/dSync/rpc/common"
	"runtime"
	"time"
)

// StatsSource reports the state of the cached tables
type StatsSource interface {
	Stats() []cache.TableStats
}

// RegisterBuiltins registers the facts every node answers:
//
//	node_id      cluster id of the node
//	uptime       seconds since started
//	goroutines   number of running goroutines
//	log_level    current log level
//	cache_stats  entries and pending writes per table, kwarg "table" selects one
//	metrics      in-process meters of the node
func RegisterBuiltins(r *Registry, id common.NodeID, started time.Time, tables StatsSource) {
	r.Register("node_id", func(context.Context, common.Args) (any, error) {
		return int64(id), nil
	})
	r.Register("uptime", func(context.Context, common.Args) (any, error) {
		return time.Since(started).Seconds(), nil
	})
	r.Register("goroutines", func(context.Context, common.Args) (any, error) {
		return runtime.NumGoroutine(), nil
	})
	r.Register("log_level", func(context.Context, common.Args) (any, error) {
		return common.LogLevel(), nil
	})
	r.Register("cache_stats", func(_ context.Context, kwargs common.Args) (any, error) {
		stats := tables.Stats()
		table, _ := first(kwargs.Get("table")).(string)
		if table == "" {
			return stats, nil
		}
		for _, s := range stats {
			if s.Table == table {
				return s, nil
			}
		}
		return nil, nil
	})
	r.Register("metrics", func(context.Context, common.Args) (any, error) {
		return metrics.Snapshot(), nil
	})
}
