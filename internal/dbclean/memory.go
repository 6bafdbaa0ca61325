package dbclean

import (
	"context"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// MemorySnapshot is the part of host memory the page-cache drop affects.
type MemorySnapshot struct {
	Total     uint64 `json:"total_bytes"`
	Available uint64 `json:"available_bytes"`
	Cached    uint64 `json:"cached_bytes"`
	Buffers   uint64 `json:"buffers_bytes"`
}

// ReadMemory samples host memory.
func ReadMemory(ctx context.Context) (MemorySnapshot, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemorySnapshot{}, err
	}
	return MemorySnapshot{
		Total:     vm.Total,
		Available: vm.Available,
		Cached:    vm.Cached,
		Buffers:   vm.Buffers,
	}, nil
}

// CacheReporter logs the page cache size around a cache drop. The "after"
// line carries the amount released since the last "before".
type CacheReporter struct {
	Logger *zap.Logger
	read   func(ctx context.Context) (MemorySnapshot, error)
	before *MemorySnapshot
}

// NewCacheReporter returns a reporter sampling the host.
func NewCacheReporter(logger *zap.Logger) *CacheReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheReporter{Logger: logger, read: ReadMemory}
}

// Report samples memory for stage ("before" or "after").
func (r *CacheReporter) Report(ctx context.Context, stage string) {
	snap, err := r.read(ctx)
	if err != nil {
		r.Logger.Debug("memory sample unavailable", zap.Error(err))
		return
	}

	fields := []zap.Field{
		zap.String("stage", stage),
		zap.Uint64("cached_mb", snap.Cached/1024/1024),
		zap.Uint64("buffers_mb", snap.Buffers/1024/1024),
		zap.Uint64("available_mb", snap.Available/1024/1024),
	}
	switch stage {
	case "before":
		r.before = &snap
	case "after":
		if r.before != nil {
			prev := r.before.Cached + r.before.Buffers
			now := snap.Cached + snap.Buffers
			if prev > now {
				fields = append(fields, zap.Uint64("released_mb", (prev-now)/1024/1024))
			}
			r.before = nil
		}
	}
	r.Logger.Info("page cache", fields...)
}
