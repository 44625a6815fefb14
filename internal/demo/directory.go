package demo

import (
	"errors"
	"fmt"

	"github.com/STJr/SRB2-sub004/internal/logging"
)

// GhostEnv describes the level a ghost is being added to.
type GhostEnv struct {
	// MapChecksum, when set, must match the level the ghost was recorded on.
	MapChecksum *[16]byte
	// Origin is the spawn position the recording started from.
	Origin Origin
}

// GhostSession is one ghost being replayed. It owns its cursor and register;
// the buffer may be shared with other sessions and the puppet is borrowed.
type GhostSession struct {
	Name     string
	Checksum [16]byte
	Header   *Header

	cursor *Cursor
	state  GhostState
	puppet Puppet
	tics   int
	fuse   int
	next   *GhostSession
}

// Tics returns the number of frames applied so far.
func (s *GhostSession) Tics() int { return s.tics }

// Fuse returns the despawn countdown handed to the puppet, zero while the
// session is still playing.
func (s *GhostSession) Fuse() int { return s.fuse }

// State returns the decoder register.
func (s *GhostSession) State() GhostState { return s.state }

// Directory is the set of ghosts replaying alongside the live game.
type Directory struct {
	head  *GhostSession
	count int
	log   *logging.Logger
}

// NewDirectory returns an empty ghost directory.
func NewDirectory(logger *logging.Logger) *Directory {
	if logger == nil {
		logger = logging.L()
	}
	return &Directory{log: logger}
}

// Len returns the number of active sessions.
func (d *Directory) Len() int { return d.count }

// Sessions lists the active sessions, newest first.
func (d *Directory) Sessions() []*GhostSession {
	out := make([]*GhostSession, 0, d.count)
	for s := d.head; s != nil; s = s.next {
		out = append(out, s)
	}
	return out
}

// Add validates a ghost stream and starts replaying it on puppet. Refused
// ghosts are logged and leave every other session untouched.
func (d *Directory) Add(name string, data []byte, puppet Puppet, env GhostEnv) (*GhostSession, error) {
	session, err := d.open(name, data, puppet, env)
	if err != nil {
		d.log.Warn("ghost refused", logging.String("ghost", name), logging.Error(err))
		return nil, err
	}
	session.next = d.head
	d.head = session
	d.count++
	d.log.Info("ghost added",
		logging.String("ghost", name),
		logging.String("player", session.Header.Name),
		logging.String("skin", session.Header.Skin),
	)
	return session, nil
}

func (d *Directory) open(name string, data []byte, puppet Puppet, env GhostEnv) (*GhostSession, error) {
	if puppet == nil {
		return nil, errors.New("demo: ghost needs a puppet")
	}
	c := NewReader(data)
	header, err := ReadHeader(c, KindPlay)
	if err != nil {
		return nil, err
	}
	if !header.Ghost {
		return nil, ErrNoGhostData
	}
	if env.MapChecksum != nil && *env.MapChecksum != header.MapChecksum {
		return nil, fmt.Errorf("%w: map %d", ErrMapMismatch, header.Map)
	}
	if next, ok := c.Peek(); !ok || next == Marker {
		return nil, ErrEmptyRecording
	}
	for s := d.head; s != nil; s = s.next {
		if s.Checksum == header.Checksum {
			return nil, fmt.Errorf("%w: same content as %s", ErrDuplicateGhost, s.Name)
		}
	}
	if header.VersionSkew {
		d.log.Warn("ghost recorded on another engine build", logging.String("ghost", name))
	}
	return &GhostSession{
		Name:     name,
		Checksum: header.Checksum,
		Header:   header,
		cursor:   c,
		state:    NewGhostState(env.Origin),
		puppet:   puppet,
	}, nil
}

// Tick advances every session by one tic. Sessions whose stream ended are
// unlinked and their puppets told to despawn.
func (d *Directory) Tick() {
	var prev *GhostSession
	for s := d.head; s != nil; {
		next := s.next
		if d.advance(s) {
			prev = s
		} else {
			if prev == nil {
				d.head = next
			} else {
				prev.next = next
			}
			s.next = nil
			d.count--
		}
		s = next
	}
}

func (d *Directory) advance(s *GhostSession) bool {
	//1.- Ghost input is stored alongside the snapshot but never replayed.
	if err := SkipTiccmd(s.cursor); err != nil {
		return d.teardown(s, err)
	}
	//2.- Decode the snapshot into the session register and drive the puppet.
	update, err := s.state.Decode(s.cursor, s.Header.Layout)
	if err != nil {
		return d.teardown(s, err)
	}
	s.tics++
	s.puppet.ApplyGhost(&update)
	//3.- The marker right after a frame ends the session.
	if next, ok := s.cursor.Peek(); !ok || next == Marker {
		return d.teardown(s, nil)
	}
	return true
}

func (d *Directory) teardown(s *GhostSession, err error) bool {
	s.fuse = FuseTics
	s.puppet.Despawn(FuseTics)
	switch {
	case err == nil, errors.Is(err, ErrTruncated):
		d.log.Debug("ghost finished", logging.String("ghost", s.Name), logging.Int("tics", s.tics))
	default:
		d.log.Warn("ghost incompatible, removing", logging.String("ghost", s.Name), logging.Error(err))
	}
	return false
}
