package demo

import (
	"github.com/STJr/SRB2-sub004/internal/logging"
)

// MetalRecorder writes a race-bot stream: a METL envelope followed by one
// ghost frame per tic and no input.
type MetalRecorder struct {
	cursor   *Cursor
	layout   Layout
	state    GhostState
	extras   GhostExtras
	log      *logging.Logger
	tics     int
	ended    bool
	finished []byte
}

// NewMetalRecorder starts a metal stream whose register is seeded at origin.
func NewMetalRecorder(capacity int, origin Origin, logger *logging.Logger) (*MetalRecorder, error) {
	if logger == nil {
		logger = logging.L()
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	m := &MetalRecorder{
		cursor: NewWriter(capacity),
		state:  NewGhostState(origin),
		log:    logger,
	}
	h := Header{Kind: KindMetal}
	if _, err := WriteHeader(m.cursor, &h); err != nil {
		return nil, err
	}
	m.layout = h.Layout
	return m, nil
}

// Extras returns the accumulator for events raised during the current tic.
func (m *MetalRecorder) Extras() *GhostExtras { return &m.extras }

// Ended reports whether the stream stopped accepting tics.
func (m *MetalRecorder) Ended() bool { return m.ended }

// WriteTic records one tic of the metal actor. Followers are not part of a
// metal stream; a lone follower bit would read back as the marker.
func (m *MetalRecorder) WriteTic(actor *ActorSnapshot) bool {
	if m.ended {
		return false
	}
	snapshot := *actor
	snapshot.Follower = nil
	frame := m.state.Diff(&snapshot, &m.extras)
	if frame.Size(m.layout)+1 > m.cursor.Remaining() {
		m.ended = true
		m.log.Warn("metal recording stopped", logging.String("reason", "buffer full"), logging.Int("tics", m.tics))
		return false
	}
	if err := frame.WriteTo(m.cursor, m.layout); err != nil {
		m.ended = true
		return false
	}
	m.tics++
	return true
}

// Finish terminates and seals the stream.
func (m *MetalRecorder) Finish() ([]byte, error) {
	if m.finished != nil {
		return m.finished, nil
	}
	m.ended = true
	m.cursor.WriteU8(Marker)
	if err := m.cursor.Err(); err != nil {
		return nil, err
	}
	out := append([]byte(nil), m.cursor.Bytes()...)
	Seal(out)
	m.finished = out
	return out, nil
}

// MetalPlayer drives a race-bot actor from a metal stream.
type MetalPlayer struct {
	header *Header
	cursor *Cursor
	state  GhostState
	log    *logging.Logger
	tics   int
	ended  bool
}

// OpenMetal validates a metal stream. The register is seeded at the spawn
// position of the actor it will drive.
func OpenMetal(data []byte, origin Origin, logger *logging.Logger) (*MetalPlayer, error) {
	if logger == nil {
		logger = logging.L()
	}
	c := NewReader(data)
	header, err := ReadHeader(c, KindMetal)
	if err != nil {
		return nil, err
	}
	if next, ok := c.Peek(); !ok || next == Marker {
		return nil, ErrEmptyRecording
	}
	if header.VersionSkew {
		logger.Warn("metal stream recorded on another engine build",
			logging.Int("major", int(header.Major)),
			logging.Int("sub", int(header.Sub)),
		)
	}
	return &MetalPlayer{header: header, cursor: c, state: NewGhostState(origin), log: logger}, nil
}

// Ended reports whether the stream reached its marker.
func (p *MetalPlayer) Ended() bool { return p.ended }

// Tick applies the next frame to puppet. It returns false once the stream
// ended; the puppet is then told to despawn.
func (p *MetalPlayer) Tick(puppet Puppet) bool {
	if p.ended {
		return false
	}
	update, err := p.state.Decode(p.cursor, p.header.Layout)
	if err != nil {
		p.finish(puppet, err)
		return false
	}
	p.tics++
	puppet.ApplyGhost(&update)
	if next, ok := p.cursor.Peek(); !ok || next == Marker {
		p.finish(puppet, nil)
		return false
	}
	return true
}

func (p *MetalPlayer) finish(puppet Puppet, err error) {
	p.ended = true
	if err != nil {
		p.log.Warn("metal stream ended early", logging.Error(err), logging.Int("tics", p.tics))
	}
	puppet.Despawn(FuseTics)
}
