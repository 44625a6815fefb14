package demo

import (
	"bytes"
	"crypto/md5"
	"errors"
	"fmt"
)

// Magic opens every stream.
var Magic = [12]byte{0xF0, 'S', 'R', 'B', '2', 'R', 'e', 'p', 'l', 'a', 'y', 0x0F}

// Marker terminates the frame sequence.
const Marker uint8 = 0x80

// Engine version stamped into recordings. A mismatch is only a warning.
const (
	EngineVersion    uint8 = 202
	EngineSubversion uint8 = 14
)

const (
	checksumOffset = 16
	checksumEnd    = 32
)

var (
	ErrBadMagic         = errors.New("demo: not a replay stream")
	ErrWrongKind        = errors.New("demo: wrong stream kind")
	ErrMapMismatch      = errors.New("demo: recorded against a different level")
	ErrChecksumMismatch = errors.New("demo: content checksum mismatch")
	ErrEmptyRecording   = errors.New("demo: empty recording")
	ErrNoGhostData      = errors.New("demo: stream has no ghost data")
	ErrDuplicateGhost   = errors.New("demo: ghost already loaded")
	ErrBadFlags         = errors.New("demo: undefined header flags")
)

// Kind is the four byte subtype tag following the checksum.
type Kind [4]byte

var (
	KindPlay  = Kind{'P', 'L', 'A', 'Y'}
	KindMetal = Kind{'M', 'E', 'T', 'L'}
)

func (k Kind) String() string { return string(k[:]) }

// AttackMode selects the scoring fields that follow the flags byte.
type AttackMode uint8

const (
	AttackNone AttackMode = iota
	AttackRecord
	AttackNights
)

func (m AttackMode) String() string {
	switch m {
	case AttackRecord:
		return "record"
	case AttackNights:
		return "nights"
	default:
		return "none"
	}
}

func (m AttackMode) valid() bool { return m <= AttackNights }

const (
	flagGhost       uint8 = 0x01
	flagAttackShift       = 1
	flagAttackMask  uint8 = 0x06
)

// PlaceholderTime is written until the run finishes.
const PlaceholderTime uint32 = 0xFFFFFFFF

// Scores is the result of a finished attack run.
type Scores struct {
	Time  uint32
	Score uint32
	Rings uint16
}

func placeholderScores() Scores { return Scores{Time: PlaceholderTime} }

// PlayerStats are the per-player tunables copied from the recorded skin.
type PlayerStats struct {
	Ability      uint8
	Ability2     uint8
	ActionSpeed  uint8
	MinDash      uint8
	MaxDash      uint8
	NormalSpeed  uint8
	RunSpeed     uint8
	ThrustFactor uint8
	AccelStart   uint8
	Acceleration uint8
	Height       uint8
	SpinHeight   uint8
	CameraScale  uint8
}

func (s *PlayerStats) fields() []*uint8 {
	return []*uint8{
		&s.Ability, &s.Ability2, &s.ActionSpeed, &s.MinDash, &s.MaxDash,
		&s.NormalSpeed, &s.RunSpeed, &s.ThrustFactor, &s.AccelStart,
		&s.Acceleration, &s.Height, &s.SpinHeight, &s.CameraScale,
	}
}

// InputPrefs are the control preferences of the recording player.
type InputPrefs uint8

const (
	PrefFlipCam       InputPrefs = 0x01
	PrefAnalog        InputPrefs = 0x02
	PrefDirectionChar InputPrefs = 0x04
	PrefAutoBrake     InputPrefs = 0x08
	PrefJoystick      InputPrefs = 0x10
)

// Header is a decoded stream envelope.
type Header struct {
	Major    uint8
	Sub      uint8
	Version  uint16
	Checksum [16]byte
	Kind     Kind
	Layout   Layout
	// VersionSkew is set when the stream came from another engine build.
	// Playback proceeds but may desync.
	VersionSkew bool

	Map         int16
	MapChecksum [16]byte
	Ghost       bool
	Attack      AttackMode
	Scores      Scores
	Seed        uint32
	Name        string
	Skin        string
	Color       string
	Stats       PlayerStats
	JumpFactor  int32
	FollowItem  uint32
	Prefs       InputPrefs
	Vars        []ConsVar
}

// ScoreMark remembers where the scoring fields were written.
type ScoreMark struct {
	mark Mark
	mode AttackMode
}

// Patch overwrites the placeholder scoring fields. It is a no-op for streams
// without an attack mode.
func (m ScoreMark) Patch(s Scores) error {
	if m.mode == AttackNone {
		return nil
	}
	w := m.mark.Writer()
	writeScores(w, m.mode, s)
	return w.Err()
}

func writeScores(c *Cursor, mode AttackMode, s Scores) {
	switch mode {
	case AttackRecord:
		c.WriteU32(s.Time)
		c.WriteU32(s.Score)
		c.WriteU16(s.Rings)
	case AttackNights:
		c.WriteU32(s.Time)
		c.WriteU32(s.Score)
	}
}

func readScores(c *Cursor, mode AttackMode) Scores {
	var s Scores
	switch mode {
	case AttackRecord:
		s.Time = c.ReadU32()
		s.Score = c.ReadU32()
		s.Rings = c.ReadU16()
	case AttackNights:
		s.Time = c.ReadU32()
		s.Score = c.ReadU32()
	}
	return s
}

// WriteHeader writes the envelope of h at the cursor. The engine version is
// always the running one; h.Version selects the layout and defaults to the
// current format. The checksum field is left zeroed until Seal runs and the
// scoring fields hold placeholders until the returned mark is patched.
func WriteHeader(c *Cursor, h *Header) (ScoreMark, error) {
	if !h.Attack.valid() {
		return ScoreMark{}, fmt.Errorf("%w: scoring mode %d", ErrBadFlags, h.Attack)
	}
	version := h.Version
	if version == 0 {
		version = FormatVersion
	}
	layout, err := LayoutFor(version)
	if err != nil {
		return ScoreMark{}, err
	}
	kind := h.Kind
	if kind == (Kind{}) {
		kind = KindPlay
	}
	h.Major, h.Sub, h.Version, h.Kind, h.Layout = EngineVersion, EngineSubversion, version, kind, layout

	c.WriteBytes(Magic[:])
	c.WriteU8(EngineVersion)
	c.WriteU8(EngineSubversion)
	c.WriteU16(version)
	c.WriteBytes(make([]byte, checksumEnd-checksumOffset))
	c.WriteBytes(kind[:])
	if kind != KindPlay {
		return ScoreMark{}, c.Err()
	}

	c.WriteI16(h.Map)
	c.WriteBytes(h.MapChecksum[:])
	flags := (uint8(h.Attack) << flagAttackShift) & flagAttackMask
	if h.Ghost {
		flags |= flagGhost
	}
	c.WriteU8(flags)
	mark := ScoreMark{mark: c.Mark(), mode: h.Attack}
	h.Scores = placeholderScores()
	writeScores(c, h.Attack, h.Scores)
	c.WriteU32(h.Seed)
	c.WriteFixedString(h.Name, 16)
	c.WriteFixedString(h.Skin, 16)
	c.WriteFixedString(h.Color, layout.ColorNameLen)
	for _, stat := range h.Stats.fields() {
		c.WriteU8(*stat)
	}
	c.WriteI32(h.JumpFactor)
	c.WriteU32(h.FollowItem)
	c.WriteU8(uint8(h.Prefs))
	writeVars(c, layout, h.Vars)
	return mark, c.Err()
}

// ReadHeader decodes the envelope at the cursor. A zero want accepts any kind.
// Format version and kind are checked before any metadata is read.
func ReadHeader(c *Cursor, want Kind) (*Header, error) {
	magic := c.ReadBytes(len(Magic))
	if c.Err() != nil || !bytes.Equal(magic, Magic[:]) {
		return nil, ErrBadMagic
	}
	h := &Header{
		Major:   c.ReadU8(),
		Sub:     c.ReadU8(),
		Version: c.ReadU16(),
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	layout, err := LayoutFor(h.Version)
	if err != nil {
		return nil, err
	}
	h.Layout = layout
	h.VersionSkew = h.Major != EngineVersion || h.Sub != EngineSubversion
	copy(h.Checksum[:], c.ReadBytes(len(h.Checksum)))
	copy(h.Kind[:], c.ReadBytes(len(h.Kind)))
	if err := c.Err(); err != nil {
		return nil, err
	}
	if want != (Kind{}) && h.Kind != want {
		return nil, fmt.Errorf("%w: have %q, want %q", ErrWrongKind, h.Kind, want)
	}
	switch h.Kind {
	case KindMetal:
		return h, nil
	case KindPlay:
	default:
		return nil, fmt.Errorf("%w: unknown %q", ErrWrongKind, h.Kind)
	}

	h.Map = c.ReadI16()
	copy(h.MapChecksum[:], c.ReadBytes(len(h.MapChecksum)))
	flags := c.ReadU8()
	h.Ghost = flags&flagGhost != 0
	h.Attack = AttackMode((flags & flagAttackMask) >> flagAttackShift)
	if c.Err() == nil && !h.Attack.valid() {
		//1.- The scoring fields that follow have no known width.
		return nil, fmt.Errorf("%w: scoring mode %d", ErrBadFlags, h.Attack)
	}
	h.Scores = readScores(c, h.Attack)
	h.Seed = c.ReadU32()
	h.Name = c.ReadFixedString(16)
	h.Skin = c.ReadFixedString(16)
	h.Color = c.ReadFixedString(layout.ColorNameLen)
	for _, stat := range h.Stats.fields() {
		*stat = c.ReadU8()
	}
	h.JumpFactor = c.ReadI32()
	h.FollowItem = c.ReadU32()
	h.Prefs = InputPrefs(c.ReadU8())
	h.Vars = readVars(c, layout)
	if err := c.Err(); err != nil {
		return nil, err
	}
	return h, nil
}

// Checksum returns the content checksum of a complete stream.
func Checksum(data []byte) [16]byte {
	if len(data) < checksumEnd {
		return md5.Sum(nil)
	}
	return md5.Sum(data[checksumEnd:])
}

// Seal stores the content checksum into a finished stream.
func Seal(data []byte) {
	if len(data) < checksumEnd {
		return
	}
	sum := Checksum(data)
	copy(data[checksumOffset:checksumEnd], sum[:])
}

// VerifyChecksum reports whether the stored checksum matches the content.
func VerifyChecksum(data []byte) error {
	if len(data) < checksumEnd {
		return ErrTruncated
	}
	sum := Checksum(data)
	if !bytes.Equal(sum[:], data[checksumOffset:checksumEnd]) {
		return ErrChecksumMismatch
	}
	return nil
}

// ParseHeader decodes the envelope of a complete stream.
func ParseHeader(data []byte) (*Header, error) {
	return ReadHeader(NewReader(data), Kind{})
}
