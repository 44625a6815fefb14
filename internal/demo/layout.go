package demo

import (
	"errors"
	"fmt"
)

// FormatVersion is the stream layout revision written by this package.
const FormatVersion uint16 = 0x000f

// ErrUnsupportedVersion is returned for format versions outside the compatibility window.
var ErrUnsupportedVersion = errors.New("demo: unsupported format version")

// Layout lists the field widths that changed across format revisions.
type Layout struct {
	Version      uint16
	ColorNameLen int
	ColorWidth   int
	HeightWidth  int
	LegacyVars   bool
}

// layouts is the whole compatibility window, oldest first.
var layouts = [...]Layout{
	{Version: 0x000c, ColorNameLen: 16, ColorWidth: 1, HeightWidth: 2, LegacyVars: true},
	{Version: 0x000d, ColorNameLen: 20, ColorWidth: 2, HeightWidth: 2, LegacyVars: true},
	{Version: 0x000e, ColorNameLen: 20, ColorWidth: 2, HeightWidth: 4},
	{Version: FormatVersion, ColorNameLen: 20, ColorWidth: 2, HeightWidth: 4},
}

// LayoutFor returns the layout of a supported format version.
func LayoutFor(version uint16) (Layout, error) {
	for _, l := range layouts {
		if l.Version == version {
			return l, nil
		}
	}
	return Layout{}, fmt.Errorf("%w 0x%04x (supported 0x%04x-0x%04x)", ErrUnsupportedVersion, version, layouts[0].Version, FormatVersion)
}

// CurrentLayout returns the layout used when recording.
func CurrentLayout() Layout {
	return layouts[len(layouts)-1]
}

// SupportedVersions lists every format version the decoder accepts.
func SupportedVersions() []uint16 {
	out := make([]uint16, len(layouts))
	for i, l := range layouts {
		out[i] = l.Version
	}
	return out
}
