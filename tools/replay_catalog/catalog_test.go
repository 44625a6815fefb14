package replaycatalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/STJr/SRB2-sub004/internal/demo"
	"github.com/STJr/SRB2-sub004/internal/logging"
	"github.com/STJr/SRB2-sub004/internal/replay"
)

func recordRun(t *testing.T, mapID int16, scores demo.Scores) []byte {
	t.Helper()
	rec, err := demo.NewRecorder(demo.RecordOptions{
		Header: demo.Header{Map: mapID, Attack: demo.AttackRecord, Name: "Tester", Skin: "tails"},
		Logger: logging.NewTestLogger(),
	})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	rec.WriteTiccmd(demo.Ticcmd{Forward: 25})
	if err := rec.SetResult(scores); err != nil {
		t.Fatalf("SetResult: %v", err)
	}
	data, err := rec.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return data
}

func TestListCollectsHeaders(t *testing.T) {
	home := t.TempDir()
	records := replay.NewRecords(home, ".lmp", logging.NewTestLogger())
	if _, err := records.Save("main", recordRun(t, 2, demo.Scores{Time: 900, Score: 100, Rings: 3})); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loose := filepath.Join(home, "replay", "loose.lmp")
	if err := os.WriteFile(loose, recordRun(t, 1, demo.Scores{Time: 1200}), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	broken := filepath.Join(home, "replay", "broken.lmp")
	if err := os.WriteFile(broken, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := List(filepath.Join(home, "replay"), ".lmp")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	//1.- broken sorts first with a zero map, then MAP01, then the five MAP02 files.
	if len(entries) != 7 {
		t.Fatalf("expected 7 entries, got %d", len(entries))
	}
	if entries[0].ReplayPath != broken || entries[0].Error == "" {
		t.Fatalf("expected the broken file first with an error, got %+v", entries[0])
	}
	if entries[1].ReplayPath != loose || entries[1].Summary.MapName != "MAP01" || entries[1].SummaryPath != "" {
		t.Fatalf("unexpected loose entry %+v", entries[1])
	}
	for _, entry := range entries[2:] {
		if entry.Summary.MapName != "MAP02" || entry.Summary.Skin != "tails" || !entry.ChecksumValid {
			t.Fatalf("unexpected record entry %+v", entry)
		}
		if entry.SummaryPath != entry.ReplayPath+replay.SummarySuffix {
			t.Fatalf("expected the summary sidecar to be found for %s", entry.ReplayPath)
		}
	}

	payload, err := MarshalEntries(entries)
	if err != nil {
		t.Fatalf("MarshalEntries: %v", err)
	}
	if len(payload) == 0 {
		t.Fatalf("expected JSON payload to be non-empty")
	}
}

func TestListRejectsBadRoots(t *testing.T) {
	if _, err := List("", ""); err == nil {
		t.Fatal("expected empty root to be rejected")
	}
	file := filepath.Join(t.TempDir(), "file.lmp")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := List(file, ".lmp"); err == nil {
		t.Fatal("expected a file root to be rejected")
	}
}
