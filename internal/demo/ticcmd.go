package demo

import (
	"errors"
	"fmt"
)

// Ziptic bits marking which ticcmd fields follow.
const (
	ZtForward uint8 = 0x01
	ZtSide    uint8 = 0x02
	ZtTurn    uint8 = 0x04
	ZtButtons uint8 = 0x08
	ZtAiming  uint8 = 0x10

	ztKnown = ZtForward | ZtSide | ZtTurn | ZtButtons | ZtAiming
)

// Camera buttons are taken from the live command, never from the stream.
const (
	ButtonCamLeft  uint16 = 0x0100
	ButtonCamRight uint16 = 0x0200
	ButtonCamMask         = ButtonCamLeft | ButtonCamRight
)

// TiccmdMargin is the worst-case size of one ticcmd frame.
const TiccmdMargin = 9

// ErrUnknownZiptic is returned when a ticcmd frame carries bits this format does not define.
var ErrUnknownZiptic = errors.New("demo: unknown ticcmd field bits")

// Ticcmd is one tick of player input.
type Ticcmd struct {
	Forward int8
	Side    int8
	Turn    int16
	Buttons uint16
	Aiming  int16
}

type ticcmdFrame struct {
	Zip uint8
	Cmd Ticcmd
}

func (f *ticcmdFrame) walk(io fieldIO) {
	io.u8(&f.Zip)
	if f.Zip&ZtForward != 0 {
		io.i8(&f.Cmd.Forward)
	}
	if f.Zip&ZtSide != 0 {
		io.i8(&f.Cmd.Side)
	}
	if f.Zip&ZtTurn != 0 {
		io.i16(&f.Cmd.Turn)
	}
	if f.Zip&ZtButtons != 0 {
		io.u16(&f.Cmd.Buttons)
	}
	if f.Zip&ZtAiming != 0 {
		io.i16(&f.Cmd.Aiming)
	}
}

// TiccmdState is the persistent last-command register of one stream.
type TiccmdState struct {
	last Ticcmd
}

// Last returns the register contents.
func (s *TiccmdState) Last() Ticcmd { return s.last }

func (s *TiccmdState) diff(cmd Ticcmd) ticcmdFrame {
	cmd.Buttons &^= ButtonCamMask
	var zip uint8
	if cmd.Forward != s.last.Forward {
		s.last.Forward = cmd.Forward
		zip |= ZtForward
	}
	if cmd.Side != s.last.Side {
		s.last.Side = cmd.Side
		zip |= ZtSide
	}
	if cmd.Turn != s.last.Turn {
		s.last.Turn = cmd.Turn
		zip |= ZtTurn
	}
	if cmd.Buttons != s.last.Buttons {
		s.last.Buttons = cmd.Buttons
		zip |= ZtButtons
	}
	if cmd.Aiming != s.last.Aiming {
		s.last.Aiming = cmd.Aiming
		zip |= ZtAiming
	}
	return ticcmdFrame{Zip: zip, Cmd: s.last}
}

// Encode writes the fields of cmd that changed since the previous tick and
// returns the ziptic that was written.
func (s *TiccmdState) Encode(c *Cursor, cmd Ticcmd) (uint8, error) {
	frame := s.diff(cmd)
	frame.walk(fieldWriter{c})
	return frame.Zip, c.Err()
}

// Decode reads one ticcmd frame into the register. Fields absent from the
// frame keep their previous value. The camera bits of liveButtons replace
// whatever the stream holds.
func (s *TiccmdState) Decode(c *Cursor, liveButtons uint16) (Ticcmd, uint8, error) {
	frame := ticcmdFrame{Cmd: s.last}
	frame.walk(fieldReader{c})
	if err := c.Err(); err != nil {
		return s.effective(liveButtons), 0, err
	}
	if frame.Zip&^ztKnown != 0 {
		return s.effective(liveButtons), frame.Zip, fmt.Errorf("%w: 0x%02x", ErrUnknownZiptic, frame.Zip)
	}
	s.last = frame.Cmd
	return s.effective(liveButtons), frame.Zip, nil
}

func (s *TiccmdState) effective(liveButtons uint16) Ticcmd {
	cmd := s.last
	cmd.Buttons = (cmd.Buttons &^ ButtonCamMask) | (liveButtons & ButtonCamMask)
	return cmd
}

// SkipTiccmd consumes one ticcmd frame without touching any register. Ghosts
// store input next to their snapshots but nothing replays it.
func SkipTiccmd(c *Cursor) error {
	var frame ticcmdFrame
	frame.walk(fieldReader{c})
	if err := c.Err(); err != nil {
		return err
	}
	if frame.Zip&^ztKnown != 0 {
		return fmt.Errorf("%w: 0x%02x", ErrUnknownZiptic, frame.Zip)
	}
	return nil
}
