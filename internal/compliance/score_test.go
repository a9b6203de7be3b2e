package compliance

import (
	"context"
	"os"
	"strings"
	"testing"
)

const goodReport = `# Parser Review

## Findings

- The tokenizer allocates per rune.
- Error positions are off by one.
- The grammar table is duplicated.

## Evidence

` + "```go\npos := idx - 1 // off by one\n```" + `

## Recommendations

- Buffer rune decoding.
- Derive positions from the token span.
- Generate the grammar table.

## Appendix

More supporting detail lives here, line by line.
Line one of context.
Line two of context.
Line three of context.
Line four of context.
Line five of context.
Line six of context.
`

func TestScoreDocument_WellFormedReportGradesHigh(t *testing.T) {
	score := ScoreDocument("parser-review.md", goodReport)
	if score.Total() < 90 {
		t.Fatalf("total = %d (%+v), want >= 90", score.Total(), score)
	}
	if score.Grade() != "A" {
		t.Fatalf("grade = %s, want A", score.Grade())
	}
}

func TestScoreDocument_ThinDocumentGradesLow(t *testing.T) {
	score := ScoreDocument("Notes File.md", "some notes\nwithout structure\n")
	if score.Total() >= 60 {
		t.Fatalf("total = %d (%+v), want < 60", score.Total(), score)
	}
	if score.Grade() != "F" {
		t.Fatalf("grade = %s, want F", score.Grade())
	}
}

func TestOutputScorer_StampsFileAndAdvises(t *testing.T) {
	root := t.TempDir()
	path := writeProjectFile(t, root, "claudedocs/parser-review.md", goodReport)
	s := NewOutputScorer("claudedocs")

	res, err := s.Handle(context.Background(), manifestWriteEvent(path, root))
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || res.Deny {
		t.Fatalf("scorer advises, never denies: %+v", res)
	}
	if !strings.Contains(res.Context, "/100") {
		t.Fatalf("advisory should carry the score: %s", res.Context)
	}
	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), "<!-- quality-score:") {
		t.Fatal("score stamp missing from file")
	}
}

func TestOutputScorer_RescoringReplacesStamp(t *testing.T) {
	root := t.TempDir()
	path := writeProjectFile(t, root, "claudedocs/parser-review.md", goodReport)
	s := NewOutputScorer("claudedocs")

	for i := 0; i < 2; i++ {
		if _, err := s.Handle(context.Background(), manifestWriteEvent(path, root)); err != nil {
			t.Fatal(err)
		}
	}
	raw, _ := os.ReadFile(path)
	if got := strings.Count(string(raw), "<!-- quality-score:"); got != 1 {
		t.Fatalf("stamp count = %d, want exactly 1", got)
	}
}

func TestOutputScorer_SkipsManifestAndArchive(t *testing.T) {
	root := t.TempDir()
	s := NewOutputScorer("claudedocs")
	for _, rel := range []string{"claudedocs/manifest.md", "claudedocs/archive/2026-07/old.md", "notes/outside.md"} {
		path := writeProjectFile(t, root, rel, goodReport)
		res, _ := s.Handle(context.Background(), manifestWriteEvent(path, root))
		if res != nil {
			t.Fatalf("%s should not be scored, got %+v", rel, res)
		}
		raw, _ := os.ReadFile(path)
		if strings.Contains(string(raw), "quality-score") {
			t.Fatalf("%s must not be stamped", rel)
		}
	}
}
