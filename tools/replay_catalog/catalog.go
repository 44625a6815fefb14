package replaycatalog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/STJr/SRB2-sub004/internal/demo"
	"github.com/STJr/SRB2-sub004/internal/replay"
)

// Entry captures a decoded replay header alongside its file.
type Entry struct {
	ReplayPath    string         `json:"replay_path"`
	SummaryPath   string         `json:"summary_path,omitempty"`
	Summary       replay.Summary `json:"summary"`
	ChecksumValid bool           `json:"checksum_valid"`
	Error         string         `json:"error,omitempty"`
}

// List walks root and decodes every file carrying ext. Files that fail to
// decode are listed with their error instead of aborting the walk.
func List(root, ext string) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	if ext == "" {
		ext = ".lmp"
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	var entries []Entry
	//1.- Walk the tree; archive bundle contents are skipped because they are not loose replays.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || filepath.Ext(d.Name()) != ext {
			return nil
		}
		entries = append(entries, describe(path))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Summary, entries[j].Summary
		if a.Map != b.Map {
			return a.Map < b.Map
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return entries[i].ReplayPath < entries[j].ReplayPath
	})
	return entries, nil
}

func describe(path string) Entry {
	entry := Entry{ReplayPath: path}
	if _, err := os.Stat(path + replay.SummarySuffix); err == nil {
		entry.SummaryPath = path + replay.SummarySuffix
	}
	data, err := os.ReadFile(path)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	header, err := demo.ParseHeader(data)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	entry.Summary = replay.Summarize(header, filepath.Base(path))
	entry.ChecksumValid = demo.VerifyChecksum(data) == nil
	return entry
}

// MarshalEntries produces a stable JSON representation of the entries for CLI output.
func MarshalEntries(entries []Entry) ([]byte, error) {
	//1.- Marshal with indentation to keep CLI output legible for operators.
	return json.MarshalIndent(entries, "", "  ")
}
