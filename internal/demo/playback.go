package demo

import (
	"errors"
	"fmt"

	"github.com/STJr/SRB2-sub004/internal/logging"
)

// PlaybackOptions wires a primary playback to the live world.
type PlaybackOptions struct {
	// MapChecksum, when set, must match the level the stream was recorded on.
	MapChecksum *[16]byte
	// Origin seeds the consistency register. It defaults to the body position.
	Origin *Origin
	Body   Body
	Hits   HitResyncer
	Logger *logging.Logger
}

// Playback replays the input of a primary recording one tic at a time.
type Playback struct {
	header *Header
	cursor *Cursor
	cmd    TiccmdState
	cons   *Consistency
	body   Body
	hits   HitResyncer
	log    *logging.Logger
	tics   int
	ended  bool
}

// OpenPlayback validates the stream envelope and positions a playback on the
// first frame. Nothing is created for streams that are rejected.
func OpenPlayback(data []byte, opts PlaybackOptions) (*Playback, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	c := NewReader(data)
	header, err := ReadHeader(c, KindPlay)
	if err != nil {
		return nil, err
	}
	if opts.MapChecksum != nil && *opts.MapChecksum != header.MapChecksum {
		return nil, fmt.Errorf("%w: map %d", ErrMapMismatch, header.Map)
	}
	if next, ok := c.Peek(); !ok || next == Marker {
		return nil, ErrEmptyRecording
	}
	if header.VersionSkew {
		logger.Warn("demo recorded on another engine build, playback may desync",
			logging.Int("major", int(header.Major)),
			logging.Int("sub", int(header.Sub)),
		)
	}
	p := &Playback{
		header: header,
		cursor: c,
		body:   opts.Body,
		hits:   opts.Hits,
		log:    logger,
	}
	if header.Ghost {
		var origin Origin
		switch {
		case opts.Origin != nil:
			origin = *opts.Origin
		case opts.Body != nil:
			origin.X, origin.Y, origin.Z = opts.Body.Position()
		}
		p.cons = NewConsistency(origin, logger)
	}
	return p, nil
}

// Header returns the decoded envelope.
func (p *Playback) Header() *Header { return p.header }

// Ended reports whether the sentinel or the end of data was reached.
func (p *Playback) Ended() bool { return p.ended }

// Tics returns the number of complete tics replayed.
func (p *Playback) Tics() int { return p.tics }

// Synced reports whether the live actor has stayed on the recorded track.
// Streams without ghost data are never checked and always report true.
func (p *Playback) Synced() bool {
	if p.cons == nil {
		return true
	}
	return p.cons.Synced()
}

// Corrections returns how many tics the live body had to be moved back onto
// the recorded track.
func (p *Playback) Corrections() int {
	if p.cons == nil {
		return 0
	}
	return p.cons.Corrections()
}

// ReadTiccmd returns the input for the next tic. Once the stream ended the
// last command keeps being returned.
func (p *Playback) ReadTiccmd(liveButtons uint16) (Ticcmd, error) {
	if p.ended {
		return p.cmd.effective(liveButtons), nil
	}
	cmd, _, err := p.cmd.Decode(p.cursor, liveButtons)
	if err != nil {
		return cmd, p.stop(err)
	}
	if p.cons == nil {
		p.tics++
		p.checkMarker()
	}
	return cmd, nil
}

// CheckConsistency runs after the simulation advanced the live actor for the
// tic whose input ReadTiccmd returned.
func (p *Playback) CheckConsistency() error {
	if p.ended || p.cons == nil {
		return nil
	}
	if err := p.cons.Check(p.cursor, p.header.Layout, p.body, p.hits); err != nil {
		return p.stop(err)
	}
	p.tics++
	p.checkMarker()
	return nil
}

func (p *Playback) checkMarker() {
	if next, ok := p.cursor.Peek(); !ok || next == Marker {
		p.ended = true
		p.log.Info("demo playback finished",
			logging.Int("tics", p.tics),
			logging.Bool("synced", p.Synced()),
			logging.Int("corrections", p.Corrections()),
		)
	}
}

// stop ends playback. Running out of data is a clean end; anything else is
// reported once to the caller.
func (p *Playback) stop(err error) error {
	p.ended = true
	if errors.Is(err, ErrTruncated) {
		p.log.Warn("demo ended without marker", logging.Int("tics", p.tics))
		return nil
	}
	p.log.Error("demo playback aborted", logging.Error(err), logging.Int("tics", p.tics))
	return err
}
