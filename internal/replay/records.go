package replay

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/STJr/SRB2-sub004/internal/demo"
	"github.com/STJr/SRB2-sub004/internal/logging"
)

var nameCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// ErrInvalidReplay wraps every reason Save refuses a stream.
var ErrInvalidReplay = errors.New("replay: invalid stream")

// Slot names one of the per map and skin record files.
type Slot string

const (
	SlotLast      Slot = "last"
	SlotTimeBest  Slot = "time-best"
	SlotScoreBest Slot = "score-best"
	SlotRingsBest Slot = "rings-best"
)

// Slots lists every record slot in save order.
var Slots = []Slot{SlotLast, SlotTimeBest, SlotScoreBest, SlotRingsBest}

var bestSlots = []struct {
	slot Slot
	flag demo.Comparison
}{
	{SlotTimeBest, demo.BetterTime},
	{SlotScoreBest, demo.BetterScore},
	{SlotRingsBest, demo.BetterRings},
}

// Records keeps the record attack files under <home>/replay/<category>.
type Records struct {
	root string
	ext  string
	log  *logging.Logger
	now  func() time.Time
}

// SaveResult reports what a Save call wrote.
type SaveResult struct {
	Category string
	Last     string
	Snapshot string
	Promoted []Slot
	Summary  Summary
}

// Entry is one replay listed by Catalog.
type Entry struct {
	Category string  `json:"category"`
	Path     string  `json:"path"`
	Size     int64   `json:"size"`
	Summary  Summary `json:"summary"`
}

// NewRecords constructs the record store rooted at home.
func NewRecords(home, ext string, logger *logging.Logger) *Records {
	if logger == nil {
		logger = logging.L()
	}
	if ext == "" {
		ext = DefaultExtension
	}
	return &Records{root: filepath.Join(home, "replay"), ext: ext, log: logger, now: time.Now}
}

// Root returns the directory holding every category.
func (r *Records) Root() string { return r.root }

// Path returns the file of a record slot.
func (r *Records) Path(category, mapName, skin string, slot Slot) string {
	name := fmt.Sprintf("%s-%s-%s%s", mapName, cleanName(skin, "player"), slot, r.ext)
	return filepath.Join(r.root, cleanName(category, "main"), name)
}

// Save stores a finished recording as the last run of its map and skin,
// keeps a timestamped snapshot, and promotes it to every best slot it beats.
// A best slot that is missing or unreadable is replaced.
func (r *Records) Save(category string, data []byte) (SaveResult, error) {
	header, err := demo.ParseHeader(data)
	if err != nil {
		return SaveResult{}, fmt.Errorf("%w: %w", ErrInvalidReplay, err)
	}
	if header.Kind != demo.KindPlay {
		return SaveResult{}, fmt.Errorf("%w: %w: have %q", ErrInvalidReplay, demo.ErrWrongKind, header.Kind)
	}
	if err := demo.VerifyChecksum(data); err != nil {
		return SaveResult{}, fmt.Errorf("%w: %w", ErrInvalidReplay, err)
	}
	category = cleanName(category, "main")
	mapName := MapName(header.Map)
	if mapName == "" {
		mapName = "MAP"
	}
	result := SaveResult{Category: category}

	//1.- Persist the last run so the comparisons below read it back from disk.
	result.Last = r.Path(category, mapName, header.Skin, SlotLast)
	if err := writeWithSummary(result.Last, data, header); err != nil {
		return result, err
	}
	result.Summary = Summarize(header, filepath.Base(result.Last))

	stamp := r.now().UTC().Format("20060102T150405Z")
	result.Snapshot = filepath.Join(filepath.Dir(result.Last), fmt.Sprintf("%s-%s-%s%s", mapName, cleanName(header.Skin, "player"), stamp, r.ext))
	if err := writeWithSummary(result.Snapshot, data, header); err != nil {
		return result, err
	}

	if header.Attack == demo.AttackNone {
		return result, nil
	}

	//2.- Promote into every best slot the new run improves on.
	for _, best := range bestSlots {
		target := r.Path(category, mapName, header.Skin, best.slot)
		promote, err := r.beats(target, result.Last, best.flag)
		if err != nil {
			return result, err
		}
		if !promote {
			continue
		}
		if err := writeWithSummary(target, data, header); err != nil {
			return result, err
		}
		result.Promoted = append(result.Promoted, best.slot)
	}
	if len(result.Promoted) > 0 {
		r.log.Info("record replay promoted",
			logging.String("category", category),
			logging.String("map", mapName),
			logging.String("skin", header.Skin),
			logging.String("slots", joinSlots(result.Promoted)),
		)
	}
	return result, nil
}

func (r *Records) beats(best, last string, flag demo.Comparison) (bool, error) {
	if _, err := os.Stat(best); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, err
	}
	cmp, err := demo.CompareFiles(best, last)
	if err != nil {
		var ioErr *demo.ReplayIOError
		if errors.As(err, &ioErr) && ioErr.Path == best {
			r.log.Warn("replacing unreadable record replay", logging.String("path", best), logging.Error(ioErr.Err))
			return true, nil
		}
		return false, err
	}
	return cmp.Has(flag), nil
}

// Catalog lists the replays of category, or of every category when it is
// empty. Summaries are read from the companion document when present.
func (r *Records) Catalog(category string) ([]Entry, error) {
	categories := []string{cleanName(category, "main")}
	if strings.TrimSpace(category) == "" {
		dirs, err := os.ReadDir(r.root)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		categories = categories[:0]
		for _, dir := range dirs {
			if dir.IsDir() {
				categories = append(categories, dir.Name())
			}
		}
	}
	var entries []Entry
	for _, cat := range categories {
		files, err := os.ReadDir(filepath.Join(r.root, cat))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			if file.IsDir() || filepath.Ext(file.Name()) != r.ext {
				continue
			}
			path := filepath.Join(r.root, cat, file.Name())
			entry, err := r.describe(cat, path, file)
			if err != nil {
				r.log.Warn("skipping unreadable replay", logging.String("path", path), logging.Error(err))
				continue
			}
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (r *Records) describe(category, path string, file fs.DirEntry) (Entry, error) {
	info, err := file.Info()
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{Category: category, Path: path, Size: info.Size()}
	if summary, err := ReadSummary(path + SummarySuffix); err == nil {
		entry.Summary = summary
		return entry, nil
	}
	header, err := demo.LoadHeader(path)
	if err != nil {
		return Entry{}, err
	}
	entry.Summary = Summarize(header, file.Name())
	return entry, nil
}

// Export bundles every best slot of category into an archive under the
// category directory.
func (r *Records) Export(category string, clock func() time.Time) (string, int, error) {
	category = cleanName(category, "main")
	entries, err := r.Catalog(category)
	if err != nil {
		return "", 0, err
	}
	writer, _, err := NewArchiveWriter(filepath.Join(r.root, category), category, clock)
	if err != nil {
		return "", 0, err
	}
	added := 0
	for _, entry := range entries {
		if !isSlotFile(filepath.Base(entry.Path), r.ext) {
			continue
		}
		data, err := os.ReadFile(entry.Path)
		if err != nil {
			writer.Close()
			return "", 0, err
		}
		if err := writer.Add(filepath.Base(entry.Path), data); err != nil {
			writer.Close()
			return "", 0, err
		}
		added++
	}
	return writer.Directory(), added, writer.Close()
}

func writeWithSummary(path string, data []byte, header *demo.Header) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	return WriteSummary(path+SummarySuffix, Summarize(header, filepath.Base(path)))
}

// isSlotFile reports whether name is one of the record slot files, which
// retention never prunes.
func isSlotFile(name, ext string) bool {
	stem := strings.TrimSuffix(name, ext)
	if stem == name {
		return false
	}
	for _, slot := range Slots {
		if strings.HasSuffix(stem, "-"+string(slot)) {
			return true
		}
	}
	return false
}

func joinSlots(slots []Slot) string {
	parts := make([]string, len(slots))
	for i, slot := range slots {
		parts[i] = string(slot)
	}
	return strings.Join(parts, ",")
}

func cleanName(name, fallback string) string {
	cleaned := nameCleaner.ReplaceAllString(name, "")
	if cleaned == "" {
		return fallback
	}
	return cleaned
}
