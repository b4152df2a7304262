// File path: internal/common/telemetry/telemetry.go
package telemetry

import (
	"context"
	"expvar"
	"strings"
	"sync"
	"time"

	"github.com/pulseos/pulse/internal/common"
)

type spanKey struct{}

type span struct {
	name  string
	start time.Time
}

var (
	initOnce sync.Once

	sourceQueryTotal     *expvar.Map
	sourceQueryErrors    *expvar.Map
	sourceQueryLatencyMS *expvar.Map

	syncRunsTotal    *expvar.Int
	syncTablesTotal  *expvar.Int
	syncChangesTotal *expvar.Int

	llmRequestsTotal    *expvar.Int
	llmRequestLatencyMS *expvar.Int
)

func ensureInit() {
	initOnce.Do(func() {
		sourceQueryTotal = expvar.NewMap("pulse_source_query_total")
		sourceQueryErrors = expvar.NewMap("pulse_source_query_errors")
		sourceQueryLatencyMS = expvar.NewMap("pulse_source_query_latency_ms")

		syncRunsTotal = expvar.NewInt("pulse_sync_runs_total")
		syncTablesTotal = expvar.NewInt("pulse_sync_tables_total")
		syncChangesTotal = expvar.NewInt("pulse_sync_changes_total")

		llmRequestsTotal = expvar.NewInt("pulse_llm_requests_total")
		llmRequestLatencyMS = expvar.NewInt("pulse_llm_latency_ms")
	})
}

// StartSpan opens a debug-logged timing span. The returned finish function
// logs the duration with any extra attributes appended.
func StartSpan(ctx context.Context, name string) (context.Context, func(attrs ...interface{})) {
	ensureInit()
	sp := &span{name: name, start: time.Now()}
	ctx = context.WithValue(ctx, spanKey{}, sp)
	logger := common.Logger()
	logger.Debug("trace: start", "span", name)
	return ctx, func(attrs ...interface{}) {
		duration := time.Since(sp.start)
		logger.Debug("trace: end", append([]interface{}{"span", name, "dur", duration}, attrs...)...)
	}
}

// SpanDuration reports the elapsed time of the innermost span on ctx.
func SpanDuration(ctx context.Context) time.Duration {
	sp, _ := ctx.Value(spanKey{}).(*span)
	if sp == nil {
		return 0
	}
	return time.Since(sp.start)
}

// RecordSourceQuery counts one query against a source, keyed by source name.
func RecordSourceQuery(source string, duration time.Duration, failed bool) {
	ensureInit()
	key := strings.TrimSpace(strings.ToLower(source))
	if key == "" {
		key = "unknown"
	}
	sourceQueryTotal.Add(key, 1)
	if failed {
		sourceQueryErrors.Add(key, 1)
	}
	if duration > 0 {
		sourceQueryLatencyMS.Add(key, duration.Milliseconds())
	}
}

// RecordSyncRun counts one completed context sync.
func RecordSyncRun(tables, changes int) {
	ensureInit()
	syncRunsTotal.Add(1)
	if tables > 0 {
		syncTablesTotal.Add(int64(tables))
	}
	if changes > 0 {
		syncChangesTotal.Add(int64(changes))
	}
}

// RecordLLMRequest counts one chat completion round trip.
func RecordLLMRequest(duration time.Duration) {
	ensureInit()
	llmRequestsTotal.Add(1)
	if duration > 0 {
		llmRequestLatencyMS.Add(duration.Milliseconds())
	}
}
