package simulation

import (
	"github.com/STJr/SRB2-sub004/internal/demo"
	"github.com/STJr/SRB2-sub004/internal/logging"
)

// Frame is the client facing view of one ghost update. Positions are in map
// units and angles in degrees.
type Frame struct {
	Tic     int     `json:"tic"`
	Ghost   string  `json:"ghost"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
	Angle   float64 `json:"angle"`
	Frame   uint8   `json:"frame"`
	Sprite  uint16  `json:"sprite"`
	Sprite2 uint8   `json:"sprite2"`
	Effect  string  `json:"effect,omitempty"`
	Flip    bool    `json:"flip,omitempty"`
	// Color is set only on the frame that changed it. Zero is the normal colour.
	Color    *uint16        `json:"color,omitempty"`
	Scale    float64        `json:"scale,omitempty"`
	Height   float64        `json:"height,omitempty"`
	Poofs    []Poof         `json:"poofs,omitempty"`
	Follower *FollowerFrame `json:"follower,omitempty"`
	// Despawn is the freeze period once the ghost reached its end.
	Despawn int `json:"despawn,omitempty"`
}

// Poof is a hit effect spawned where the ghost destroyed something.
type Poof struct {
	Type uint32  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

// FollowerFrame is the follower part of a Frame.
type FollowerFrame struct {
	Action  string  `json:"action"`
	Skin    int     `json:"skin,omitempty"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
	Sprite  uint16  `json:"sprite,omitempty"`
	Sprite2 uint8   `json:"sprite2,omitempty"`
	Frame   uint8   `json:"frame,omitempty"`
	Color   uint16  `json:"color,omitempty"`
}

func mapUnits(f demo.Fixed) float64 { return float64(f) / float64(demo.FracUnit) }

func degrees(a demo.Angle) float64 { return float64(a) * 360 / (1 << 32) }

func followerAction(a demo.FollowerAction) string {
	switch a {
	case demo.FollowerSpawn:
		return "spawn"
	case demo.FollowerMove:
		return "move"
	case demo.FollowerDespawn:
		return "despawn"
	default:
		return ""
	}
}

// ghostPuppet accumulates the position of one ghost between feed steps.
type ghostPuppet struct {
	name    string
	pending *Frame
	pos     Frame
	gone    bool
}

func (p *ghostPuppet) ApplyGhost(u *demo.GhostUpdate) {
	f := &p.pos
	f.X, f.Y, f.Z = mapUnits(u.X), mapUnits(u.Y), mapUnits(u.Z)
	if u.AngleChanged {
		f.Angle = degrees(u.Angle)
	}
	if u.FrameChanged {
		f.Frame = u.Frame
	}
	if u.Sprite2Changed {
		f.Sprite2 = u.Sprite2
	}
	if u.SpriteChanged {
		f.Sprite = u.Sprite
	}

	out := p.pos
	out.Ghost = p.name
	out.Effect = ""
	if u.Effect != demo.EffectNone {
		out.Effect = u.Effect.String()
	}
	out.Flip = u.Flip
	out.Color = nil
	if u.ColorChanged {
		color := u.Color
		out.Color = &color
	}
	out.Scale = mapUnits(u.Scale)
	if u.HeightChanged {
		out.Height = mapUnits(u.Height)
	}
	for _, hit := range u.Poofs() {
		out.Poofs = append(out.Poofs, Poof{Type: hit.Type, X: mapUnits(hit.X), Y: mapUnits(hit.Y), Z: mapUnits(hit.Z)})
	}
	if fu := u.Follower; fu.Action != demo.FollowerNone {
		out.Follower = &FollowerFrame{
			Action:  followerAction(fu.Action),
			Skin:    fu.Skin,
			X:       mapUnits(fu.X),
			Y:       mapUnits(fu.Y),
			Z:       mapUnits(fu.Z),
			Sprite:  fu.Sprite,
			Sprite2: fu.Sprite2,
			Frame:   fu.Frame,
			Color:   fu.Color,
		}
	}
	p.pending = &out
}

func (p *ghostPuppet) Despawn(fuse int) {
	p.gone = true
	if p.pending == nil {
		last := p.pos
		last.Ghost = p.name
		p.pending = &last
	}
	p.pending.Despawn = fuse
}

// Feed replays a set of ghosts tic by tic and reports what changed.
type Feed struct {
	dir     *demo.Directory
	puppets []*ghostPuppet
	tic     int
	log     *logging.Logger
}

// NewFeed returns an empty feed.
func NewFeed(logger *logging.Logger) *Feed {
	if logger == nil {
		logger = logging.L()
	}
	return &Feed{dir: demo.NewDirectory(logger), log: logger}
}

// Add loads a ghost. Ghosts recorded against another level, duplicates and
// streams without ghost data are refused.
func (f *Feed) Add(name string, data []byte, env demo.GhostEnv) error {
	puppet := &ghostPuppet{name: name}
	puppet.pos.X, puppet.pos.Y, puppet.pos.Z = mapUnits(env.Origin.X), mapUnits(env.Origin.Y), mapUnits(env.Origin.Z)
	if _, err := f.dir.Add(name, data, puppet, env); err != nil {
		return err
	}
	f.puppets = append(f.puppets, puppet)
	return nil
}

// Len returns the number of ghosts still playing.
func (f *Feed) Len() int { return f.dir.Len() }

// Done reports whether every ghost finished.
func (f *Feed) Done() bool { return len(f.puppets) == 0 }

// Tic returns the number of steps taken.
func (f *Feed) Tic() int { return f.tic }

// Step advances every ghost by one tic and returns one frame per ghost that
// moved or ended. Ended ghosts are dropped after their final frame.
func (f *Feed) Step() []Frame {
	f.dir.Tick()
	frames := make([]Frame, 0, len(f.puppets))
	alive := f.puppets[:0]
	for _, p := range f.puppets {
		if p.pending != nil {
			p.pending.Tic = f.tic
			frames = append(frames, *p.pending)
			p.pending = nil
		}
		if !p.gone {
			alive = append(alive, p)
		}
	}
	for i := len(alive); i < len(f.puppets); i++ {
		f.puppets[i] = nil
	}
	f.puppets = alive
	f.tic++
	return frames
}
