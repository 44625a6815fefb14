package demo

// Primary presence bits of a ghost frame.
const (
	GztXYZ    uint8 = 0x01
	GztMomXY  uint8 = 0x02
	GztMomZ   uint8 = 0x04
	GztAngle  uint8 = 0x08
	GztFrame  uint8 = 0x10
	GztSpr2   uint8 = 0x20
	GztExtra  uint8 = 0x40
	GztFollow uint8 = 0x80
)

// Extra block bits. The low two bits hold an Effect, not independent flags.
const (
	eztEffectMask uint8 = 0x03
	EztColor      uint8 = 0x04
	EztFlip       uint8 = 0x08
	EztScale      uint8 = 0x10
	EztHit        uint8 = 0x20
	EztSprite     uint8 = 0x40
	EztHeight     uint8 = 0x80
)

// Follower block bits.
const (
	FztSpawned   uint8 = 0x01
	FztSkin      uint8 = 0x02
	FztLinkDraw  uint8 = 0x04
	FztColorized uint8 = 0x08
	FztScale     uint8 = 0x10
)

// MaxMom is the largest per-axis movement, in fixed-point units, that is
// still stored as a momentum delta instead of an absolute position.
const MaxMom = 0xFFFF << 8

// SpritePlay is the sprite set whose sub-sprite (sprite2) is tracked.
const SpritePlay uint16 = 1

// maxHits bounds the hit list of a single frame to its u16 count prefix.
const maxHits = 0xFFFF

// Effect is the one-shot visual effect a ghost spawned this tick.
type Effect uint8

const (
	EffectNone Effect = iota
	EffectThok
	EffectSpin
	EffectRev
)

func (e Effect) String() string {
	switch e {
	case EffectThok:
		return "thok"
	case EffectSpin:
		return "spin"
	case EffectRev:
		return "rev"
	default:
		return "none"
	}
}

// HitRecord describes one object the recorded actor damaged during a tick.
type HitRecord struct {
	Type   uint32
	Health uint16
	X      Fixed
	Y      Fixed
	Z      Fixed
	Angle  Angle
}

// FollowerSnapshot is the read-only state of a decorative satellite actor.
type FollowerSnapshot struct {
	X, Y, Z    Fixed
	Scale      Fixed
	BaseHeight Fixed
	// Skin is the skin index, or -1 when the follower has none.
	Skin      int
	Sprite2   uint8
	Sprite    uint16
	Frame     uint8
	Color     uint16
	LinkDraw  bool
	Colorized bool
}

// ActorSnapshot is the read-only state of a tracked actor at the end of a tick.
type ActorSnapshot struct {
	X, Y, Z Fixed
	Angle   Angle
	Frame   uint8
	Sprite  uint16
	Sprite2 uint8
	Height  Fixed
	Scale   Fixed
	// Follower is nil when the actor has no visible follower.
	Follower *FollowerSnapshot
}

// GhostExtras collects events raised by the simulation between two ghost
// frames. Everything is consumed by the next frame written.
type GhostExtras struct {
	effect   Effect
	flip     bool
	color    uint16
	colorSet bool
	scale    Fixed
	hits     []HitRecord
}

// AddEffect records a spawned effect. A later effect in the same tick wins.
func (e *GhostExtras) AddEffect(kind Effect) { e.effect = kind }

// Flip records that gravity was reversed this tick.
func (e *GhostExtras) Flip() { e.flip = true }

// SetColor records the actor's colour. Zero is the normal colour and is
// written like any other value when it differs from the last one sent.
func (e *GhostExtras) SetColor(color uint16) { e.color, e.colorSet = color, true }

// SetScale records a scale change. Zero means no change.
func (e *GhostExtras) SetScale(scale Fixed) { e.scale = scale }

// AddHit records a damaged object.
func (e *GhostExtras) AddHit(hit HitRecord) {
	if len(e.hits) < maxHits {
		e.hits = append(e.hits, hit)
	}
}

func (e *GhostExtras) reset() {
	*e = GhostExtras{}
}

// ExtraBlock is the optional second layer of a ghost frame.
type ExtraBlock struct {
	Flags  uint8
	Color  uint16
	Scale  Fixed
	Hits   []HitRecord
	Sprite uint16
	Height Fixed
}

// Effect returns the effect carried in the low bits of the flags.
func (b *ExtraBlock) Effect() Effect { return Effect(b.Flags & eztEffectMask) }

func (b *ExtraBlock) walk(io fieldIO, l Layout) {
	io.u8(&b.Flags)
	if b.Flags&EztColor != 0 {
		colorField(io, &b.Color, l.ColorWidth)
	}
	if b.Flags&EztScale != 0 {
		io.fixed(&b.Scale)
	}
	if b.Flags&EztHit != 0 {
		count := uint16(len(b.Hits))
		io.u16(&count)
		if io.reading() {
			b.Hits = make([]HitRecord, count)
		}
		for i := range b.Hits {
			hit := &b.Hits[i]
			io.u32(&hit.Type)
			io.u16(&hit.Health)
			io.fixed(&hit.X)
			io.fixed(&hit.Y)
			io.fixed(&hit.Z)
			io.angle(&hit.Angle)
		}
	}
	if b.Flags&EztSprite != 0 {
		io.u16(&b.Sprite)
	}
	if b.Flags&EztHeight != 0 {
		heightField(io, &b.Height, l.HeightWidth)
	}
}

// FollowBlock is the optional third layer of a ghost frame.
type FollowBlock struct {
	Flags      uint8
	BaseHeight int16
	Skin       uint8
	Scale      Fixed
	DX, DY, DZ int16
	Sprite2    uint8
	Sprite     uint16
	Frame      uint8
	Color      uint16
}

func (b *FollowBlock) walk(io fieldIO, l Layout) {
	io.u8(&b.Flags)
	if b.Flags&FztSpawned != 0 {
		io.i16(&b.BaseHeight)
		if b.Flags&FztSkin != 0 {
			io.u8(&b.Skin)
		}
	}
	if b.Flags&FztScale != 0 {
		io.fixed(&b.Scale)
	}
	io.i16(&b.DX)
	io.i16(&b.DY)
	io.i16(&b.DZ)
	if b.Flags&FztSkin != 0 {
		io.u8(&b.Sprite2)
	}
	io.u16(&b.Sprite)
	io.u8(&b.Frame)
	colorField(io, &b.Color, l.ColorWidth)
}

// GhostFrame is one tick of actor state exactly as it appears on the wire.
type GhostFrame struct {
	Flags            uint8
	X, Y, Z          Fixed
	MomX, MomY, MomZ int16
	Angle            uint8
	Frame            uint8
	Sprite2          uint8
	Extra            ExtraBlock
	Follow           FollowBlock
}

func (f *GhostFrame) walk(io fieldIO, l Layout) {
	io.u8(&f.Flags)
	if f.Flags&GztXYZ != 0 {
		io.fixed(&f.X)
		io.fixed(&f.Y)
		io.fixed(&f.Z)
	} else {
		if f.Flags&GztMomXY != 0 {
			io.i16(&f.MomX)
			io.i16(&f.MomY)
		}
		if f.Flags&GztMomZ != 0 {
			io.i16(&f.MomZ)
		}
	}
	if f.Flags&GztAngle != 0 {
		io.u8(&f.Angle)
	}
	if f.Flags&GztFrame != 0 {
		io.u8(&f.Frame)
	}
	if f.Flags&GztSpr2 != 0 {
		io.u8(&f.Sprite2)
	}
	if f.Flags&GztExtra != 0 {
		f.Extra.walk(io, l)
	}
	if f.Flags&GztFollow != 0 {
		f.Follow.walk(io, l)
	}
}

// Size returns the encoded size of the frame under layout l.
func (f *GhostFrame) Size(l Layout) int {
	n := 0
	f.walk(fieldSizer{&n}, l)
	return n
}

// WriteTo encodes the frame at the cursor.
func (f *GhostFrame) WriteTo(c *Cursor, l Layout) error {
	f.walk(fieldWriter{c}, l)
	return c.Err()
}

// ReadGhostFrame decodes one frame at the cursor.
func ReadGhostFrame(c *Cursor, l Layout) (GhostFrame, error) {
	var f GhostFrame
	f.walk(fieldReader{c}, l)
	return f, c.Err()
}

// Origin seeds the position register of a stream.
type Origin struct {
	X, Y, Z Fixed
}

// GhostState is the persistent last-actor register of one stream direction.
// Encoder and decoder hold identical registers after every tick.
type GhostState struct {
	X, Y, Z          Fixed
	MomX, MomY, MomZ int16
	Angle            uint8
	Frame            uint8
	Sprite2          uint8
	Sprite           uint16
	Height           Fixed
	Follower         bool
	Color            uint16
	Scale            Fixed
}

// NewGhostState returns a register positioned at o.
func NewGhostState(o Origin) GhostState {
	return GhostState{X: o.X, Y: o.Y, Z: o.Z}
}

func beyondMom(cur, last Fixed) bool {
	d := int64(cur) - int64(last)
	if d < 0 {
		d = -d
	}
	return d > MaxMom
}

func momDelta(cur, last Fixed) int16 {
	return int16((cur - last) >> 8)
}

// Diff builds the frame describing a against the register, consuming ext.
// The register advances exactly as Apply will advance the decoder's copy.
func (s *GhostState) Diff(a *ActorSnapshot, ext *GhostExtras) GhostFrame {
	var f GhostFrame
	if beyondMom(a.X, s.X) || beyondMom(a.Y, s.Y) || beyondMom(a.Z, s.Z) {
		s.X, s.Y, s.Z = a.X, a.Y, a.Z
		s.MomX, s.MomY, s.MomZ = 0, 0, 0
		f.Flags |= GztXYZ
		f.X, f.Y, f.Z = a.X, a.Y, a.Z
	} else {
		momx, momy := momDelta(a.X, s.X), momDelta(a.Y, s.Y)
		if momx != s.MomX || momy != s.MomY {
			s.MomX, s.MomY = momx, momy
			f.Flags |= GztMomXY
			f.MomX, f.MomY = momx, momy
		}
		if momz := momDelta(a.Z, s.Z); momz != s.MomZ {
			s.MomZ = momz
			f.Flags |= GztMomZ
			f.MomZ = momz
		}
		// The fractional byte dropped here is not recovered; later ticks
		// absorb the drift through their own deltas.
		s.advance()
	}

	if bucket := a.Angle.Bucket(); bucket != s.Angle {
		s.Angle = bucket
		f.Flags |= GztAngle
		f.Angle = bucket
	}
	if a.Frame != s.Frame {
		s.Frame = a.Frame
		f.Flags |= GztFrame
		f.Frame = a.Frame
	}
	if a.Sprite == SpritePlay && a.Sprite2 != s.Sprite2 {
		s.Sprite2 = a.Sprite2
		f.Flags |= GztSpr2
		f.Sprite2 = a.Sprite2
	}

	s.diffExtra(a, ext, &f)
	s.diffFollower(a, &f)
	return f
}

func (s *GhostState) advance() {
	s.X += Fixed(s.MomX) << 8
	s.Y += Fixed(s.MomY) << 8
	s.Z += Fixed(s.MomZ) << 8
}

func (s *GhostState) diffExtra(a *ActorSnapshot, ext *GhostExtras, f *GhostFrame) {
	if ext == nil {
		ext = &GhostExtras{}
	}
	x := &f.Extra
	x.Flags = uint8(ext.effect) & eztEffectMask
	if ext.flip {
		x.Flags |= EztFlip
	}
	if ext.colorSet && ext.color != s.Color {
		s.Color = ext.color
		x.Flags |= EztColor
		x.Color = ext.color
	}
	if ext.scale != 0 && ext.scale != s.Scale {
		s.Scale = ext.scale
		x.Flags |= EztScale
		x.Scale = ext.scale
	}
	if len(ext.hits) > 0 {
		x.Flags |= EztHit
	}
	if a.Sprite != s.Sprite {
		s.Sprite = a.Sprite
		x.Flags |= EztSprite
		x.Sprite = a.Sprite
	}
	scale := a.Scale
	if scale == 0 {
		scale = FracUnit
	}
	if height := FixedDiv(a.Height, scale); height != s.Height {
		s.Height = height
		x.Flags |= EztHeight
		x.Height = height
	}
	if x.Flags != 0 {
		f.Flags |= GztExtra
	}
	x.Hits = ext.hits
	ext.reset()
}

func (s *GhostState) diffFollower(a *ActorSnapshot, f *GhostFrame) {
	fo := a.Follower
	if fo == nil {
		s.Follower = false
		return
	}
	f.Flags |= GztFollow
	b := &f.Follow
	if fo.Skin >= 0 {
		b.Flags |= FztSkin
	}
	if !s.Follower {
		s.Follower = true
		b.Flags |= FztSpawned
		b.BaseHeight = int16(fo.BaseHeight >> FracBits)
		if fo.LinkDraw {
			b.Flags |= FztLinkDraw
		}
		if fo.Colorized {
			b.Flags |= FztColorized
		}
		if fo.Skin >= 0 {
			b.Skin = uint8(fo.Skin)
		}
	}
	if fo.Scale != a.Scale {
		b.Flags |= FztScale
		b.Scale = fo.Scale
	}
	b.DX = momDelta(fo.X, a.X)
	b.DY = momDelta(fo.Y, a.Y)
	b.DZ = momDelta(fo.Z, a.Z)
	if fo.Skin >= 0 {
		b.Sprite2 = fo.Sprite2
	}
	b.Sprite = fo.Sprite
	b.Frame = fo.Frame
	b.Color = fo.Color
}

// Encode diffs a against the register and writes the frame at the cursor.
func (s *GhostState) Encode(c *Cursor, a *ActorSnapshot, ext *GhostExtras, l Layout) (GhostFrame, error) {
	f := s.Diff(a, ext)
	return f, f.WriteTo(c, l)
}

// Decode reads one frame at the cursor and applies it to the register.
// On error the register is left untouched.
func (s *GhostState) Decode(c *Cursor, l Layout) (GhostUpdate, error) {
	f, err := ReadGhostFrame(c, l)
	if err != nil {
		return GhostUpdate{}, err
	}
	return s.Apply(&f), nil
}

// FollowerAction tells a puppet what to do with its follower this tick.
type FollowerAction uint8

const (
	FollowerNone FollowerAction = iota
	FollowerSpawn
	FollowerMove
	FollowerDespawn
)

// FollowerUpdate is the decoded follower part of a ghost frame.
type FollowerUpdate struct {
	Action     FollowerAction
	BaseHeight Fixed
	Skin       int
	LinkDraw   bool
	Colorized  bool
	// Scale is zero when the follower uses its owner's scale.
	Scale   Fixed
	X, Y, Z Fixed
	Sprite2 uint8
	Sprite  uint16
	Frame   uint8
	Color   uint16
}

// GhostUpdate is the decoded effect of one ghost frame on its actor.
type GhostUpdate struct {
	X, Y, Z        Fixed
	Angle          Angle
	AngleChanged   bool
	Frame          uint8
	FrameChanged   bool
	Sprite2        uint8
	Sprite2Changed bool
	Effect         Effect
	Flip           bool
	Color          uint16
	ColorChanged   bool
	// Scale is zero when unchanged.
	Scale         Fixed
	Hits          []HitRecord
	Sprite        uint16
	SpriteChanged bool
	Height        Fixed
	HeightChanged bool
	Follower      FollowerUpdate
}

// maxPoofs bounds the hit effects a ghost spawns per tick.
const maxPoofs = 4

// Poofs returns the hits that destroyed their target, limited to the first
// few records of the tick.
func (u *GhostUpdate) Poofs() []HitRecord {
	var out []HitRecord
	for i, hit := range u.Hits {
		if i >= maxPoofs {
			break
		}
		if hit.Health == 0 {
			out = append(out, hit)
		}
	}
	return out
}

// Apply advances the register by one decoded frame.
func (s *GhostState) Apply(f *GhostFrame) GhostUpdate {
	var u GhostUpdate
	if f.Flags&GztXYZ != 0 {
		s.X, s.Y, s.Z = f.X, f.Y, f.Z
		s.MomX, s.MomY, s.MomZ = 0, 0, 0
	} else {
		if f.Flags&GztMomXY != 0 {
			s.MomX, s.MomY = f.MomX, f.MomY
		}
		if f.Flags&GztMomZ != 0 {
			s.MomZ = f.MomZ
		}
		s.advance()
	}
	u.X, u.Y, u.Z = s.X, s.Y, s.Z

	if f.Flags&GztAngle != 0 {
		s.Angle = f.Angle
		u.AngleChanged = true
	}
	u.Angle = AngleFromBucket(s.Angle)
	if f.Flags&GztFrame != 0 {
		s.Frame = f.Frame
		u.FrameChanged = true
	}
	u.Frame = s.Frame
	if f.Flags&GztSpr2 != 0 {
		s.Sprite2 = f.Sprite2
		u.Sprite2Changed = true
	}
	u.Sprite2 = s.Sprite2

	if f.Flags&GztExtra != 0 {
		x := &f.Extra
		u.Effect = x.Effect()
		u.Flip = x.Flags&EztFlip != 0
		if x.Flags&EztColor != 0 {
			s.Color = x.Color
			u.Color, u.ColorChanged = x.Color, true
		}
		if x.Flags&EztScale != 0 {
			s.Scale = x.Scale
			u.Scale = x.Scale
		}
		if x.Flags&EztHit != 0 {
			u.Hits = x.Hits
		}
		if x.Flags&EztSprite != 0 {
			s.Sprite = x.Sprite
			u.SpriteChanged = true
		}
		if x.Flags&EztHeight != 0 {
			s.Height = x.Height
			u.HeightChanged = true
		}
	}
	u.Sprite = s.Sprite
	u.Height = s.Height

	switch {
	case f.Flags&GztFollow != 0:
		s.Follower = true
		u.Follower = s.applyFollow(&f.Follow)
	case s.Follower:
		s.Follower = false
		u.Follower.Action = FollowerDespawn
	}
	return u
}

func (s *GhostState) applyFollow(b *FollowBlock) FollowerUpdate {
	fu := FollowerUpdate{Action: FollowerMove, Skin: -1}
	if b.Flags&FztSpawned != 0 {
		fu.Action = FollowerSpawn
		fu.BaseHeight = Fixed(b.BaseHeight) << FracBits
		fu.LinkDraw = b.Flags&FztLinkDraw != 0
		fu.Colorized = b.Flags&FztColorized != 0
		if b.Flags&FztSkin != 0 {
			fu.Skin = int(b.Skin)
		}
	}
	if b.Flags&FztScale != 0 {
		fu.Scale = b.Scale
	}
	fu.X = s.X + Fixed(b.DX)<<8
	fu.Y = s.Y + Fixed(b.DY)<<8
	fu.Z = s.Z + Fixed(b.DZ)<<8
	fu.Sprite2 = b.Sprite2
	fu.Sprite = b.Sprite
	fu.Frame = b.Frame
	fu.Color = b.Color
	return fu
}
