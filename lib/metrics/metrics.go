package metrics

import (
	"context"
	"errors"
	"fmt"
	vm "github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
	"net/http"
	"time"
)

var Logger = logger.GetLogger("metrics")

// --------------------------------------------------------------------------
// Prometheus counters (exported at the metrics endpoint)
// --------------------------------------------------------------------------

var (
	BusFramesReceived   = vm.NewCounter("dsync_bus_frames_received_total")
	BusFramesSent       = vm.NewCounter("dsync_bus_frames_sent_total")
	BusMalformed        = vm.NewCounter("dsync_bus_malformed_total")
	BusUnknownCommand   = vm.NewCounter("dsync_bus_unknown_command_total")
	BusHandlerFailures  = vm.NewCounter("dsync_bus_handler_failures_total")
	BusReconnects       = vm.NewCounter("dsync_bus_reconnects_total")
	BusRequestsTimedOut = vm.NewCounter("dsync_bus_requests_timed_out_total")

	RelayConnections = vm.NewCounter("dsync_relay_connections_total")
	RelayDelivered   = vm.NewCounter("dsync_relay_delivered_total")
	RelayDropped     = vm.NewCounter("dsync_relay_dropped_total")
)

func tableCounter(name, table string) *vm.Counter {
	return vm.GetOrCreateCounter(fmt.Sprintf(`%s{table=%q}`, name, table))
}

// CacheHit counts a get served from memory
func CacheHit(table string) { tableCounter("dsync_cache_hits_total", table).Inc() }

// CacheMiss counts a get that went to the backing store
func CacheMiss(table string) { tableCounter("dsync_cache_misses_total", table).Inc() }

// DefaultFetch counts fetches of a table's default template
func DefaultFetch(table string) { tableCounter("dsync_cache_default_fetches_total", table).Inc() }

// Upserts counts successful coalesced writes
func Upserts(table string, n int) { tableCounter("dsync_coalescer_upserts_total", table).Add(n) }

// UpsertFailures counts failed coalesced writes
func UpsertFailures(table string, n int) { tableCounter("dsync_coalescer_failures_total", table).Add(n) }

// FlushDuration records the duration of one flush tick started at start
func FlushDuration(table string, start time.Time) {
	vm.GetOrCreateHistogram(fmt.Sprintf(`dsync_coalescer_flush_duration_seconds{table=%q}`, table)).UpdateDuration(start)
}

// --------------------------------------------------------------------------
// In-process meters (reported through the metrics fact)
// --------------------------------------------------------------------------

// Registry holds the meters a node reports about itself when asked over the bus
var Registry = gometrics.NewRegistry()

// FlushBatch records the number of write tasks taken by one flush tick
func FlushBatch(table string, n int) {
	gometrics.GetOrRegisterMeter("coalescer.upserts."+table, Registry).Mark(int64(n))
	gometrics.GetOrRegisterHistogram("coalescer.batch."+table, Registry, gometrics.NewUniformSample(1028)).Update(int64(n))
}

// RequestRoundTrip records the duration of a bus request started at start
func RequestRoundTrip(start time.Time) {
	gometrics.GetOrRegisterTimer("bus.request", Registry).UpdateSince(start)
}

// Snapshot renders the in-process meters as plain values
func Snapshot() map[string]map[string]any {
	out := make(map[string]map[string]any)
	Registry.Each(func(name string, m interface{}) {
		switch m := m.(type) {
		case gometrics.Meter:
			s := m.Snapshot()
			out[name] = map[string]any{"count": s.Count(), "rate1": s.Rate1(), "mean_rate": s.RateMean()}
		case gometrics.Histogram:
			s := m.Snapshot()
			out[name] = map[string]any{"count": s.Count(), "mean": s.Mean(), "max": s.Max(), "p99": s.Percentile(0.99)}
		case gometrics.Timer:
			s := m.Snapshot()
			out[name] = map[string]any{
				"count":   s.Count(),
				"mean_ms": s.Mean() / float64(time.Millisecond),
				"p99_ms":  s.Percentile(0.99) / float64(time.Millisecond),
			}
		}
	})
	return out
}

// --------------------------------------------------------------------------
// Prometheus endpoint
// --------------------------------------------------------------------------

// Handler writes every counter in the Prometheus text format
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		vm.WritePrometheus(w, true)
	})
}

// Serve exposes Handler at /metrics on endpoint until ctx is done
func Serve(ctx context.Context, endpoint string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              endpoint,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	Logger.Infof("Serving metrics on http://%s/metrics", endpoint)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics endpoint failed: %w", err)
	}
	return nil
}
