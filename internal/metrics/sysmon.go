package metrics

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

// LogMemoryUsage periodically logs process memory statistics. Diagnostic
// only; never part of the functional contract.
func LogMemoryUsage(ctx context.Context, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			logger.Info("memory usage",
				"heap_alloc_mb", m.HeapAlloc/1024/1024,
				"heap_sys_mb", m.HeapSys/1024/1024,
				"goroutines", runtime.NumGoroutine(),
			)
		}
	}
}
