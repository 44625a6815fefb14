package replay

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/STJr/SRB2-sub004/internal/demo"
	"github.com/STJr/SRB2-sub004/internal/logging"
)

// recordRun produces a finished record attack stream with the given result.
func recordRun(t *testing.T, mapID int16, skin string, scores demo.Scores) []byte {
	t.Helper()
	rec, err := demo.NewRecorder(demo.RecordOptions{
		Header: demo.Header{
			Map:    mapID,
			Attack: demo.AttackRecord,
			Name:   "Tester",
			Skin:   skin,
			Color:  "Blue",
		},
		Logger: logging.NewTestLogger(),
	})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	for i := 0; i < 10; i++ {
		if !rec.WriteTiccmd(demo.Ticcmd{Forward: 50, Turn: int16(i * 32)}) {
			t.Fatalf("recording ended early at tic %d", i)
		}
	}
	if err := rec.SetResult(scores); err != nil {
		t.Fatalf("SetResult: %v", err)
	}
	data, err := rec.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return data
}

func newTestRecords(t *testing.T) *Records {
	t.Helper()
	records := NewRecords(t.TempDir(), ".lmp", logging.NewTestLogger())
	stamp := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
	records.now = func() time.Time {
		stamp = stamp.Add(time.Second)
		return stamp
	}
	return records
}

func TestRecordsFirstRunFillsEverySlot(t *testing.T) {
	records := newTestRecords(t)
	data := recordRun(t, 1, "sonic", demo.Scores{Time: 2100, Score: 5000, Rings: 40})

	result, err := records.Save("main", data)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(result.Promoted) != 3 {
		t.Fatalf("expected all three best slots, got %v", result.Promoted)
	}
	for _, slot := range Slots {
		path := records.Path("main", "MAP01", "sonic", slot)
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to exist: %v", path, err)
		}
		summary, err := ReadSummary(path + SummarySuffix)
		if err != nil {
			t.Fatalf("ReadSummary(%s): %v", slot, err)
		}
		if summary.Time != 2100 || summary.MapName != "MAP01" || summary.Skin != "sonic" {
			t.Fatalf("unexpected summary for %s: %+v", slot, summary)
		}
	}
	if filepath.Base(result.Last) != "MAP01-sonic-last.lmp" {
		t.Fatalf("unexpected last path %q", result.Last)
	}
	if _, err := os.Stat(result.Snapshot); err != nil {
		t.Fatalf("expected snapshot to exist: %v", err)
	}
}

func TestRecordsPromoteOnlyImprovedSlots(t *testing.T) {
	records := newTestRecords(t)
	if _, err := records.Save("main", recordRun(t, 1, "sonic", demo.Scores{Time: 2100, Score: 5000, Rings: 40})); err != nil {
		t.Fatalf("Save first: %v", err)
	}

	//1.- A faster run with a lower score and fewer rings only beats the time slot.
	result, err := records.Save("main", recordRun(t, 1, "sonic", demo.Scores{Time: 1900, Score: 4000, Rings: 10}))
	if err != nil {
		t.Fatalf("Save second: %v", err)
	}
	if len(result.Promoted) != 1 || result.Promoted[0] != SlotTimeBest {
		t.Fatalf("expected only time-best promotion, got %v", result.Promoted)
	}
	best, err := demo.LoadHeader(records.Path("main", "MAP01", "sonic", SlotTimeBest))
	if err != nil {
		t.Fatalf("LoadHeader: %v", err)
	}
	if best.Scores.Time != 1900 {
		t.Fatalf("expected time-best to hold the new run, got %d", best.Scores.Time)
	}
	rings, err := demo.LoadHeader(records.Path("main", "MAP01", "sonic", SlotRingsBest))
	if err != nil {
		t.Fatalf("LoadHeader: %v", err)
	}
	if rings.Scores.Rings != 40 {
		t.Fatalf("expected rings-best to keep the first run, got %d", rings.Scores.Rings)
	}
	last, err := demo.LoadHeader(result.Last)
	if err != nil {
		t.Fatalf("LoadHeader: %v", err)
	}
	if last.Scores.Rings != 10 {
		t.Fatalf("expected last to hold the latest run, got %d", last.Scores.Rings)
	}
}

func TestRecordsReplaceUnreadableBest(t *testing.T) {
	records := newTestRecords(t)
	broken := records.Path("main", "MAP01", "sonic", SlotScoreBest)
	if err := os.MkdirAll(filepath.Dir(broken), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(broken, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	result, err := records.Save("main", recordRun(t, 1, "sonic", demo.Scores{Time: 3000, Score: 10}))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(result.Promoted) != 3 {
		t.Fatalf("expected broken slot to be replaced, got %v", result.Promoted)
	}
}

func TestRecordsRefuseCorruptStreams(t *testing.T) {
	records := newTestRecords(t)
	data := recordRun(t, 1, "sonic", demo.Scores{Time: 3000})
	data[len(data)-2] ^= 0xFF
	if _, err := records.Save("main", data); err == nil {
		t.Fatal("expected checksum failure")
	}
	if _, err := records.Save("main", []byte("not a replay")); err == nil {
		t.Fatal("expected bad magic failure")
	}
}

func TestRecordsCatalogAndExport(t *testing.T) {
	records := newTestRecords(t)
	if _, err := records.Save("main", recordRun(t, 1, "sonic", demo.Scores{Time: 2100, Score: 5000, Rings: 40})); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := records.Save("Bonus Maps", recordRun(t, 150, "tails", demo.Scores{Time: 999})); err != nil {
		t.Fatalf("Save: %v", err)
	}

	all, err := records.Catalog("")
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	//1.- Each save writes four slots plus a snapshot.
	if len(all) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(all))
	}
	bonus, err := records.Catalog("Bonus Maps")
	if err != nil {
		t.Fatalf("Catalog bonus: %v", err)
	}
	if len(bonus) != 5 || bonus[0].Category != "BonusMaps" || bonus[0].Summary.MapName != "MAPBE" {
		t.Fatalf("unexpected bonus catalog: %+v", bonus)
	}

	dir, added, err := records.Export("main", nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if added != 4 {
		t.Fatalf("expected four slot files exported, got %d", added)
	}
	replays, err := ReadArchive(dir)
	if err != nil {
		t.Fatalf("ReadArchive: %v", err)
	}
	if len(replays) != 4 {
		t.Fatalf("expected four archived replays, got %d", len(replays))
	}
	after, err := records.Catalog("main")
	if err != nil {
		t.Fatalf("Catalog after export: %v", err)
	}
	if len(after) != 5 {
		t.Fatalf("bundle directory must not show up as a replay, got %d entries", len(after))
	}
}

func TestMapName(t *testing.T) {
	cases := map[int16]string{0: "", 1: "MAP01", 99: "MAP99", 100: "MAPA0", 109: "MAPA9", 110: "MAPAA", 135: "MAPAZ", 136: "MAPB0", 1035: "MAPZZ"}
	for id, want := range cases {
		if got := MapName(id); got != want {
			t.Fatalf("MapName(%d) = %q, want %q", id, got, want)
		}
	}
}
