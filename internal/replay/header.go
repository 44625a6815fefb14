package replay

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/STJr/SRB2-sub004/internal/demo"
)

// SummarySchemaVersion tracks the schema version for replay summary documents.
const SummarySchemaVersion = 1

// SummarySuffix is appended to a replay path to name its summary document.
const SummarySuffix = ".json"

// Summary is the human readable digest persisted next to a replay so catalog
// tooling does not have to decode the binary envelope.
type Summary struct {
	SchemaVersion int    `json:"schema_version"`
	FilePointer   string `json:"file_pointer"`
	Kind          string `json:"kind"`
	Version       uint16 `json:"version"`
	Map           int16  `json:"map,omitempty"`
	MapName       string `json:"map_name,omitempty"`
	Player        string `json:"player,omitempty"`
	Skin          string `json:"skin,omitempty"`
	Color         string `json:"color,omitempty"`
	Ghost         bool   `json:"ghost"`
	Attack        string `json:"attack"`
	Time          uint32 `json:"time,omitempty"`
	Score         uint32 `json:"score,omitempty"`
	Rings         uint16 `json:"rings,omitempty"`
	Checksum      string `json:"checksum"`
}

// Summarize builds the summary of a decoded header for the replay at file.
func Summarize(h *demo.Header, file string) Summary {
	s := Summary{
		SchemaVersion: SummarySchemaVersion,
		FilePointer:   file,
		Kind:          h.Kind.String(),
		Version:       h.Version,
		Ghost:         h.Ghost,
		Attack:        h.Attack.String(),
		Checksum:      hex.EncodeToString(h.Checksum[:]),
	}
	if h.Kind != demo.KindPlay {
		return s
	}
	s.Map = h.Map
	s.MapName = MapName(h.Map)
	s.Player = h.Name
	s.Skin = h.Skin
	s.Color = h.Color
	if h.Attack != demo.AttackNone {
		s.Time = h.Scores.Time
		s.Score = h.Scores.Score
		s.Rings = h.Scores.Rings
	}
	return s
}

// Validate ensures the summary contains enough information for catalog tooling.
func (s Summary) Validate() error {
	if s.SchemaVersion <= 0 {
		return fmt.Errorf("schema_version must be positive")
	}
	//1.- Ensure catalog tooling can locate the replay reliably.
	if strings.TrimSpace(s.FilePointer) == "" {
		return fmt.Errorf("file_pointer must not be empty")
	}
	return nil
}

// WriteSummary persists the supplied summary to the provided file path.
func WriteSummary(path string, summary Summary) error {
	if err := summary.Validate(); err != nil {
		return err
	}
	//1.- Encode using indented JSON so manual inspection remains readable.
	payload, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	//2.- Terminate with a newline so POSIX tooling can append easily.
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

// ReadSummary loads and decodes a replay summary from disk.
func ReadSummary(path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, err
	}
	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return Summary{}, err
	}
	if err := summary.Validate(); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

// MapName returns the lump name of a map number: MAP01 to MAP99, then MAPA0
// through MAPZZ.
func MapName(id int16) string {
	if id <= 0 {
		return ""
	}
	if id < 100 {
		return fmt.Sprintf("MAP%02d", id)
	}
	n := int(id) - 100
	first := byte('A' + n/36)
	if first > 'Z' {
		return fmt.Sprintf("MAP%d", id)
	}
	second := n % 36
	digit := byte('0' + second)
	if second >= 10 {
		digit = byte('A' + second - 10)
	}
	return string([]byte{'M', 'A', 'P', first, digit})
}
