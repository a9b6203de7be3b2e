package telemetry

import (
	"path/filepath"
	"testing"
	"time"
)

func TestStore_RoundTrip(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"sess-1", "sess-2", "sess-3"} {
		err := store.RecordSession(&SessionRecord{
			SessionID:    id,
			ProjectRoot:  "/proj",
			EndedAt:      base.Add(time.Duration(i) * time.Hour),
			ToolCounts:   map[string]uint32{"Read": uint32(i + 1)},
			Skills:       []string{"code-review"},
			Commands:     []string{"review"},
			MemoryReads:  2,
			MemoryWrites: 1,
			ContextLoads: 3,
			Diagnostics:  uint32(i),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	records, err := store.RecentSessions(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].SessionID != "sess-3" || records[1].SessionID != "sess-2" {
		t.Fatalf("not newest-first: %s, %s", records[0].SessionID, records[1].SessionID)
	}
	r := records[0]
	if r.ToolCounts["Read"] != 3 || r.MemoryReads != 2 || r.MemoryWrites != 1 || r.ContextLoads != 3 {
		t.Fatalf("record fields lost: %+v", r)
	}
	if len(r.Skills) != 1 || r.Skills[0] != "code-review" {
		t.Fatalf("skills = %v", r.Skills)
	}
	if !r.EndedAt.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("ended_at = %v", r.EndedAt)
	}
}

func TestStore_EmptyQuery(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	records, err := store.RecentSessions(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}
