package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 1_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 100
	drainTimeout  = 2 * time.Second
)

// ClickHouseSink ships session records to ClickHouse asynchronously.
// Write() is non-blocking — records are buffered and batch-inserted in a
// background goroutine.
type ClickHouseSink struct {
	conn    driver.Conn
	buffer  chan *SessionRecord
	done    chan struct{}
	flushed chan struct{}
	logger  *zap.Logger
}

// NewClickHouseSink connects with the DSN and starts the flush loop.
func NewClickHouseSink(dsn string, logger *zap.Logger) (*ClickHouseSink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	s := &ClickHouseSink{
		conn:    conn,
		buffer:  make(chan *SessionRecord, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}

	go s.flushLoop()
	return s, nil
}

// Write queues a session record for async insertion.
// Non-blocking: drops the record if the buffer is full.
func (s *ClickHouseSink) Write(record *SessionRecord) {
	select {
	case s.buffer <- record:
	default:
		s.logger.Warn("clickhouse buffer full, dropping record",
			zap.String("session_id", record.SessionID),
		)
	}
}

// Close signals the flush loop to drain remaining records.
func (s *ClickHouseSink) Close() {
	close(s.done)
	<-s.flushed
}

func (s *ClickHouseSink) flushLoop() {
	defer close(s.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*SessionRecord, 0, flushBatch)

	for {
		select {
		case record := <-s.buffer:
			batch = append(batch, record)
			if len(batch) >= flushBatch {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-s.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case record := <-s.buffer:
					batch = append(batch, record)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				s.flush(batch)
			}
			return
		}
	}
}

func (s *ClickHouseSink) flush(records []*SessionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO warden_session_records (
			session_id, project_root, ended_at, tool_counts_json,
			skills, commands,
			memory_reads, memory_writes, context_loads, diagnostics
		)
	`)
	if err != nil {
		s.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, r := range records {
		countsJSON, err := json.Marshal(r.ToolCounts)
		if err != nil {
			countsJSON = []byte("{}")
		}

		if err := batch.Append(
			r.SessionID,
			r.ProjectRoot,
			r.EndedAt,
			string(countsJSON),
			r.Skills,
			r.Commands,
			r.MemoryReads,
			r.MemoryWrites,
			r.ContextLoads,
			r.Diagnostics,
		); err != nil {
			s.logger.Error("clickhouse append record failed",
				zap.String("session_id", r.SessionID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		s.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(records)),
			zap.Error(err),
		)
	}
}
