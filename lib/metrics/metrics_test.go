package metrics

import (
	"github.com/lni/dragonboat/v4/logger"
	"github.com/stretchr/testify/require"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPrometheusOutput(t *testing.T) {
	CacheHit("guilds")
	CacheMiss("guilds")
	Upserts("guilds", 3)
	BusFramesReceived.Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	require.Contains(t, body, `dsync_cache_hits_total{table="guilds"}`)
	require.Contains(t, body, `dsync_coalescer_upserts_total{table="guilds"}`)
	require.Contains(t, body, "dsync_bus_frames_received_total")
}

func TestSnapshot(t *testing.T) {
	FlushBatch("userinfo", 4)
	FlushBatch("userinfo", 2)
	RequestRoundTrip(time.Now().Add(-10 * time.Millisecond))

	snap := Snapshot()
	require.Contains(t, snap, "coalescer.upserts.userinfo")
	require.EqualValues(t, 6, snap["coalescer.upserts.userinfo"]["count"])
	require.EqualValues(t, 2, snap["coalescer.batch.userinfo"]["count"])
	require.EqualValues(t, 4, snap["coalescer.batch.userinfo"]["max"])

	timer := snap["bus.request"]
	require.NotNil(t, timer)
	require.GreaterOrEqual(t, timer["mean_ms"].(float64), 10.0)
	for name := range snap {
		require.False(t, strings.HasPrefix(name, "dsync_"))
	}
}

func TestLoggerName(t *testing.T) {
	// change_log_level addresses loggers by package name
	require.Same(t, logger.GetLogger("metrics"), Logger)
}
