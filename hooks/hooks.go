// Package hooks provides observer implementations for the item pipeline:
// structured logging via log/slog and an in-memory metrics collector.
package hooks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/webimg/webimg/core"
)

// SlogLogger adapts *slog.Logger to core.Logger.
type SlogLogger struct {
	l *slog.Logger
}

// NewSlogLogger wraps l. A nil l uses slog.Default().
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Debug(msg string, fields ...interface{}) { s.l.Debug(msg, fields...) }
func (s *SlogLogger) Info(msg string, fields ...interface{})  { s.l.Info(msg, fields...) }
func (s *SlogLogger) Warn(msg string, fields ...interface{})  { s.l.Warn(msg, fields...) }
func (s *SlogLogger) Error(msg string, fields ...interface{}) { s.l.Error(msg, fields...) }

// LoggingHook logs stage transitions at debug level and stage failures at
// warn level.
type LoggingHook struct {
	log core.Logger
}

func NewLoggingHook(log core.Logger) *LoggingHook {
	return &LoggingHook{log: log}
}

func (h *LoggingHook) BeforeStage(ctx context.Context, stage, path string) {
	h.log.Debug("stage started", "stage", stage, "path", path)
}

func (h *LoggingHook) AfterStage(ctx context.Context, stage, path string, d time.Duration, err error) {
	if err != nil {
		h.log.Warn("stage failed", "stage", stage, "path", path, "duration", d, "error", err)
		return
	}
	h.log.Debug("stage finished", "stage", stage, "path", path, "duration", d)
}

// StageMetrics is the aggregate for one pipeline stage.
type StageMetrics struct {
	Count  int64
	Total  time.Duration
	Errors int64
}

// Average returns the mean stage duration.
func (m StageMetrics) Average() time.Duration {
	if m.Count == 0 {
		return 0
	}
	return m.Total / time.Duration(m.Count)
}

// InMemoryMetrics is a mutex-guarded core.MetricsCollector suitable for a
// single process run.
type InMemoryMetrics struct {
	mu         sync.Mutex
	stages     map[string]StageMetrics
	totalBytes int64
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{stages: make(map[string]StageMetrics)}
}

func (m *InMemoryMetrics) RecordStageTime(stage string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stages[stage]
	s.Count++
	s.Total += d
	m.stages[stage] = s
}

func (m *InMemoryMetrics) RecordThroughput(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalBytes += bytes
}

func (m *InMemoryMetrics) RecordError(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stages[stage]
	s.Errors++
	m.stages[stage] = s
}

// Stage returns a copy of the aggregate for one stage.
func (m *InMemoryMetrics) Stage(stage string) StageMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stages[stage]
}

// TotalBytes returns the bytes of input processed so far.
func (m *InMemoryMetrics) TotalBytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalBytes
}

// Snapshot returns a copy of all stage aggregates.
func (m *InMemoryMetrics) Snapshot() map[string]StageMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]StageMetrics, len(m.stages))
	for k, v := range m.stages {
		out[k] = v
	}
	return out
}
