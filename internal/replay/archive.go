package replay

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/STJr/SRB2-sub004/internal/demo"
)

const (
	manifestName = "manifest.json"
	eventsName   = "events.jsonl.sz"
	replaysName  = "replays.bin.zst"
)

// ArchiveWriter streams replays into a bundle directory: the raw streams go
// into a zstd blob and one summary line per replay into a snappy event log.
type ArchiveWriter struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	manifest    Manifest
	eventFile   *os.File
	eventStream *snappy.Writer
	blobFile    *os.File
	blobStream  *zstd.Encoder
	closed      bool
}

// Manifest describes the bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version     int    `json:"version"`
	Label       string `json:"label"`
	CreatedAt   string `json:"created_at"`
	EventsPath  string `json:"events_path"`
	ReplaysPath string `json:"replays_path"`
	Replays     int    `json:"replays"`
}

// ArchiveEvent is one line of the bundle event log.
type ArchiveEvent struct {
	Index      int     `json:"index"`
	Name       string  `json:"name"`
	Size       int     `json:"size"`
	CapturedAt string  `json:"captured_at"`
	Summary    Summary `json:"summary"`
}

// ArchivedReplay is one stream read back from a bundle.
type ArchivedReplay struct {
	Name string
	Data []byte
}

// NewArchiveWriter prepares the bundle directory and opens compressed sinks.
func NewArchiveWriter(root, label string, clock func() time.Time) (*ArchiveWriter, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("archive root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	label = cleanName(label, "replays")
	created := clock().UTC()
	dir := filepath.Join(root, fmt.Sprintf("%s-%s", label, created.Format("20060102T150405Z")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	eventFile, err := os.Create(filepath.Join(dir, eventsName))
	if err != nil {
		return nil, Manifest{}, err
	}
	eventStream := snappy.NewBufferedWriter(eventFile)

	blobFile, err := os.Create(filepath.Join(dir, replaysName))
	if err != nil {
		eventFile.Close()
		return nil, Manifest{}, err
	}
	blobStream, err := zstd.NewWriter(blobFile)
	if err != nil {
		eventStream.Close()
		eventFile.Close()
		blobFile.Close()
		return nil, Manifest{}, err
	}

	manifest := Manifest{
		Version:     1,
		Label:       label,
		CreatedAt:   created.Format(time.RFC3339Nano),
		EventsPath:  eventsName,
		ReplaysPath: replaysName,
	}
	w := &ArchiveWriter{
		dir:         dir,
		now:         clock,
		manifest:    manifest,
		eventFile:   eventFile,
		eventStream: eventStream,
		blobFile:    blobFile,
		blobStream:  blobStream,
	}
	if err := w.writeManifest(); err != nil {
		w.Close()
		return nil, Manifest{}, err
	}
	return w, manifest, nil
}

// Directory exposes the directory backing the bundle.
func (w *ArchiveWriter) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// Add appends a complete replay stream. The envelope is decoded so the event
// log can carry its summary; undecodable streams are refused.
func (w *ArchiveWriter) Add(name string, data []byte) error {
	if w == nil {
		return fmt.Errorf("archive writer not initialised")
	}
	header, err := demo.ParseHeader(data)
	if err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}
	captured := w.now().UTC()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("archive writer closed")
	}

	//1.- Write a length-prefixed name and stream so readers can step through the blob.
	prefix := make([]byte, 4)
	binary.LittleEndian.PutUint32(prefix, uint32(len(name)))
	if _, err := w.blobStream.Write(prefix); err != nil {
		return err
	}
	if _, err := io.WriteString(w.blobStream, name); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(prefix, uint32(len(data)))
	if _, err := w.blobStream.Write(prefix); err != nil {
		return err
	}
	if _, err := w.blobStream.Write(data); err != nil {
		return err
	}

	//2.- Mirror the entry in the event log so catalogs can list a bundle without inflating it.
	line, err := json.Marshal(ArchiveEvent{
		Index:      w.manifest.Replays,
		Name:       name,
		Size:       len(data),
		CapturedAt: captured.Format(time.RFC3339Nano),
		Summary:    Summarize(header, name),
	})
	if err != nil {
		return err
	}
	if _, err := w.eventStream.Write(append(line, '\n')); err != nil {
		return err
	}
	w.manifest.Replays++
	return w.eventStream.Flush()
}

// Close flushes every sink, rewrites the manifest with the final count and
// releases file handles.
func (w *ArchiveWriter) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	//1.- Attempt every flush/close and surface the first failure for callers to inspect.
	var firstErr error
	if err := w.eventStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.eventFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.blobStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.blobFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.writeManifest(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (w *ArchiveWriter) writeManifest() error {
	data, err := json.MarshalIndent(w.manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(w.dir, manifestName), data, 0o644)
}

// ReadManifest loads the manifest of a bundle directory.
func ReadManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return Manifest{}, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

// ReadArchive inflates every replay stored in a bundle directory.
func ReadArchive(dir string) ([]ArchivedReplay, error) {
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filepath.Join(dir, manifest.ReplaysPath))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	reader := bufio.NewReader(decoder)
	var out []ArchivedReplay
	for {
		name, err := readChunk(reader)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		data, err := readChunk(reader)
		if err != nil {
			return nil, fmt.Errorf("archive entry %q: %w", name, err)
		}
		out = append(out, ArchivedReplay{Name: string(name), Data: data})
	}
	return out, nil
}

// ReadArchiveEvents decodes the event log of a bundle directory.
func ReadArchiveEvents(dir string) ([]ArchiveEvent, error) {
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filepath.Join(dir, manifest.EventsPath))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var events []ArchiveEvent
	scanner := bufio.NewScanner(snappy.NewReader(file))
	for scanner.Scan() {
		var event ArchiveEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, scanner.Err()
}

func readChunk(r io.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
