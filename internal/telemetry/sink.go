// Package telemetry aggregates what the engine observed: per-session tool
// usage parsed from the transcript, drained diagnostics, durable session
// records in SQLite and an optional fleet sink in ClickHouse.
package telemetry

import (
	"time"

	"go.uber.org/zap"
)

// EventSink receives finished session records. Write() must never block
// the caller; hook processes are on the agent's critical path.
type EventSink interface {
	Write(record *SessionRecord)
	Close()
}

// SessionRecord is one session summary to be persisted.
type SessionRecord struct {
	SessionID    string
	ProjectRoot  string
	EndedAt      time.Time
	ToolCounts   map[string]uint32
	Skills       []string
	Commands     []string
	MemoryReads  uint32
	MemoryWrites uint32
	ContextLoads uint32
	Diagnostics  uint32
}

// LogSink writes session records to the logger; the fallback when no
// fleet sink is configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(record *SessionRecord) {
	s.logger.Info("session_record",
		zap.String("session_id", record.SessionID),
		zap.Time("ended_at", record.EndedAt),
		zap.Any("tool_counts", record.ToolCounts),
		zap.Strings("skills", record.Skills),
		zap.Strings("commands", record.Commands),
		zap.Uint32("memory_reads", record.MemoryReads),
		zap.Uint32("memory_writes", record.MemoryWrites),
		zap.Uint32("context_loads", record.ContextLoads),
		zap.Uint32("diagnostics", record.Diagnostics),
	)
}

func (s *LogSink) Close() {}
