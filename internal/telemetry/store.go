package telemetry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sessionSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id    TEXT NOT NULL,
	project_root  TEXT NOT NULL,
	ended_at      TEXT NOT NULL,
	tool_counts   TEXT NOT NULL,
	skills        TEXT NOT NULL,
	commands      TEXT NOT NULL,
	memory_reads  INTEGER NOT NULL,
	memory_writes INTEGER NOT NULL,
	context_loads INTEGER NOT NULL,
	diagnostics   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_ended_at ON sessions (ended_at);
`

// Store keeps durable per-session records in a SQLite file under the
// runtime directory, queryable by the report command.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the session database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	// Hook processes overlap; let writers queue instead of erroring.
	if _, err := db.Exec("PRAGMA busy_timeout = 2000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("session store: %w", err)
	}
	if _, err := db.Exec(sessionSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("session store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// RecordSession inserts one finished-session row.
func (s *Store) RecordSession(r *SessionRecord) error {
	counts, err := json.Marshal(r.ToolCounts)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (
			session_id, project_root, ended_at, tool_counts,
			skills, commands,
			memory_reads, memory_writes, context_loads, diagnostics
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID,
		r.ProjectRoot,
		r.EndedAt.UTC().Format(time.RFC3339),
		string(counts),
		strings.Join(r.Skills, ","),
		strings.Join(r.Commands, ","),
		r.MemoryReads,
		r.MemoryWrites,
		r.ContextLoads,
		r.Diagnostics,
	)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	return nil
}

// RecentSessions returns up to limit session records, newest first.
func (s *Store) RecentSessions(limit int) ([]*SessionRecord, error) {
	rows, err := s.db.Query(`
		SELECT session_id, project_root, ended_at, tool_counts,
		       skills, commands,
		       memory_reads, memory_writes, context_loads, diagnostics
		FROM sessions ORDER BY ended_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	defer rows.Close()

	var records []*SessionRecord
	for rows.Next() {
		var (
			r       SessionRecord
			endedAt string
			counts  string
			skills  string
			cmds    string
		)
		if err := rows.Scan(&r.SessionID, &r.ProjectRoot, &endedAt, &counts,
			&skills, &cmds,
			&r.MemoryReads, &r.MemoryWrites, &r.ContextLoads, &r.Diagnostics); err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, endedAt); err == nil {
			r.EndedAt = t
		}
		if err := json.Unmarshal([]byte(counts), &r.ToolCounts); err != nil {
			r.ToolCounts = map[string]uint32{}
		}
		if skills != "" {
			r.Skills = strings.Split(skills, ",")
		}
		if cmds != "" {
			r.Commands = strings.Split(cmds, ",")
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}
