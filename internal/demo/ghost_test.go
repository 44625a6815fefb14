package demo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGhostRoundTripMatchesEncoderRegisters(t *testing.T) {
	layout := CurrentLayout()
	path := walkPath(120)
	enc := NewGhostState(Origin{})
	w := NewWriter(1 << 16)
	registers := make([]GhostState, len(path))
	frames := make([]GhostFrame, len(path))
	for i := range path {
		var ext GhostExtras
		if i%9 == 0 {
			ext.AddEffect(EffectThok)
		}
		if i == 30 {
			ext.Flip()
			ext.SetColor(42)
			ext.SetScale(FracUnit / 2)
			ext.AddHit(HitRecord{Type: 3, Health: 0, X: 5, Y: 6, Z: 7, Angle: 8})
			ext.AddHit(HitRecord{Type: 4, Health: 2})
		}
		frame, err := enc.Encode(w, &path[i], &ext, layout)
		require.NoError(t, err)
		require.Equal(t, GhostExtras{}, ext, "extras are consumed by the frame")
		frames[i] = frame
		registers[i] = enc
	}
	w.WriteU8(Marker)
	require.NoError(t, w.Err())

	dec := NewGhostState(Origin{})
	r := NewReader(w.Bytes())
	for i := range path {
		start := r.Pos()
		update, err := dec.Decode(r, layout)
		require.NoError(t, err, "tic %d", i)
		require.Equal(t, registers[i], dec, "tic %d", i)
		require.Equal(t, frames[i].Size(layout), r.Pos()-start, "tic %d", i)
		assert.Equal(t, dec.X, update.X)
		assert.Equal(t, AngleFromBucket(path[i].Angle.Bucket()), update.Angle)

		//1.- The marker is seen right after the last frame and never before.
		next, ok := r.Peek()
		require.True(t, ok)
		if i == len(path)-1 {
			require.Equal(t, Marker, next)
		} else {
			require.NotEqual(t, Marker, next, "tic %d", i)
		}
	}
}

func TestGhostAbsolutePositionOnLargeMove(t *testing.T) {
	enc, dec := NewGhostState(Origin{}), NewGhostState(Origin{})
	step := ActorSnapshot{Sprite: SpritePlay, Scale: FracUnit}
	step.X = 100 << 8
	first := enc.Diff(&step, nil)
	require.Equal(t, GztMomXY, first.Flags&(GztXYZ|GztMomXY|GztMomZ))
	dec.Apply(&first)
	require.Equal(t, int16(100), dec.MomX)

	jump := step
	jump.X = step.X + 70000<<8
	frame := enc.Diff(&jump, nil)
	assert.NotZero(t, frame.Flags&GztXYZ)
	assert.Zero(t, frame.Flags&(GztMomXY|GztMomZ))
	assert.Equal(t, jump.X, frame.X)
	assert.Equal(t, int16(0), enc.MomX)

	update := dec.Apply(&frame)
	assert.Equal(t, jump.X, update.X)
	assert.Equal(t, int16(0), dec.MomX)
	assert.Equal(t, int16(0), dec.MomY)
	assert.Equal(t, int16(0), dec.MomZ)
	assert.Equal(t, enc, dec)
}

func TestGhostMomentumAccumulatesTruncation(t *testing.T) {
	enc := NewGhostState(Origin{})
	a := ActorSnapshot{Sprite: SpritePlay, Scale: FracUnit}
	//1.- A steady 0x1FF per tic is stored one delta unit at a time.
	a.X = 0x1FF
	frame := enc.Diff(&a, nil)
	assert.Equal(t, int16(1), frame.MomX)
	assert.Equal(t, Fixed(0x100), enc.X)
	a.X = 0x3FE
	frame = enc.Diff(&a, nil)
	assert.Equal(t, int16(2), frame.MomX)
	assert.Equal(t, Fixed(0x300), enc.X)
	//2.- Unchanged momentum is not written but still moves the register.
	a.X = 0x5FD
	frame = enc.Diff(&a, nil)
	assert.Zero(t, frame.Flags&GztMomXY)
	assert.Equal(t, Fixed(0x500), enc.X)

	dec := NewGhostState(Origin{})
	dec.Apply(&GhostFrame{Flags: GztMomXY, MomX: 1})
	dec.Apply(&GhostFrame{Flags: GztMomXY, MomX: 2})
	dec.Apply(&GhostFrame{})
	assert.Equal(t, enc.X, dec.X)
}

func TestGhostMomentumWrapsLikeTheWire(t *testing.T) {
	enc := NewGhostState(Origin{})
	a := ActorSnapshot{Sprite: SpritePlay, Scale: FracUnit}
	a.X = 0x9000 << 8
	frame := enc.Diff(&a, nil)
	require.Zero(t, frame.Flags&GztXYZ)
	assert.Equal(t, int16(-0x7000), frame.MomX)

	w := NewWriter(32)
	require.NoError(t, frame.WriteTo(w, CurrentLayout()))
	dec := NewGhostState(Origin{})
	_, err := dec.Decode(NewReader(w.Bytes()), CurrentLayout())
	require.NoError(t, err)
	assert.Equal(t, enc.X, dec.X)
	assert.Equal(t, Fixed(-0x7000)<<8, dec.X)
}

func TestGhostSprite2OnlyForPlayerSprites(t *testing.T) {
	enc := NewGhostState(Origin{})
	a := ActorSnapshot{Sprite: 9, Sprite2: 5, Scale: FracUnit}
	frame := enc.Diff(&a, nil)
	assert.Zero(t, frame.Flags&GztSpr2)
	assert.NotZero(t, frame.Extra.Flags&EztSprite)

	a.Sprite = SpritePlay
	frame = enc.Diff(&a, nil)
	assert.NotZero(t, frame.Flags&GztSpr2)
	assert.Equal(t, uint8(5), frame.Sprite2)
}

func TestGhostHeightComparedUnscaled(t *testing.T) {
	enc := NewGhostState(Origin{})
	a := ActorSnapshot{Sprite: SpritePlay, Height: 48 * FracUnit, Scale: FracUnit}
	frame := enc.Diff(&a, nil)
	require.NotZero(t, frame.Extra.Flags&EztHeight)
	assert.Equal(t, 48*FracUnit, frame.Extra.Height)

	//1.- Halving scale and height together is not a height change.
	a.Height, a.Scale = 24*FracUnit, FracUnit/2
	frame = enc.Diff(&a, nil)
	assert.Zero(t, frame.Extra.Flags&EztHeight)
	assert.Zero(t, frame.Flags&GztExtra)
}

func TestGhostColorAndScaleSuppressRepeats(t *testing.T) {
	enc := NewGhostState(Origin{})
	a := ActorSnapshot{Sprite: SpritePlay, Scale: FracUnit}
	enc.Diff(&a, nil)

	var ext GhostExtras
	ext.SetColor(7)
	ext.SetScale(2 * FracUnit)
	frame := enc.Diff(&a, &ext)
	assert.Equal(t, EztColor|EztScale, frame.Extra.Flags)

	ext.SetColor(7)
	ext.SetScale(2 * FracUnit)
	frame = enc.Diff(&a, &ext)
	assert.Zero(t, frame.Flags&GztExtra)
}

func TestGhostColorReturnsToNormal(t *testing.T) {
	enc, dec := NewGhostState(Origin{}), NewGhostState(Origin{})
	a := ActorSnapshot{Sprite: SpritePlay, Scale: FracUnit}
	first := enc.Diff(&a, nil)
	dec.Apply(&first)

	var ext GhostExtras
	ext.SetColor(1)
	frame := enc.Diff(&a, &ext)
	require.NotZero(t, frame.Flags&GztExtra)
	require.NotZero(t, frame.Extra.Flags&EztColor)
	dec.Apply(&frame)
	require.Equal(t, uint16(1), dec.Color)

	//1.- Going back to colour 0 is a real change and must reach the decoder.
	ext.SetColor(0)
	frame = enc.Diff(&a, &ext)
	require.NotZero(t, frame.Flags&GztExtra)
	assert.NotZero(t, frame.Extra.Flags&EztColor)
	assert.Equal(t, uint16(0), frame.Extra.Color)
	update := dec.Apply(&frame)
	assert.Equal(t, uint16(0), dec.Color)
	assert.True(t, update.ColorChanged)
	assert.Equal(t, uint16(0), update.Color)
	assert.Equal(t, enc, dec)

	//1.- An unset colour leaves the register alone.
	frame = enc.Diff(&a, &GhostExtras{})
	assert.Zero(t, frame.Flags&GztExtra)
}

func TestGhostEffectIsAnEnum(t *testing.T) {
	for _, effect := range []Effect{EffectThok, EffectSpin, EffectRev} {
		enc := NewGhostState(Origin{})
		a := ActorSnapshot{Sprite: SpritePlay, Scale: FracUnit}
		enc.Diff(&a, nil)
		var ext GhostExtras
		ext.AddEffect(EffectThok)
		ext.AddEffect(effect)
		frame := enc.Diff(&a, &ext)
		require.Equal(t, effect, frame.Extra.Effect(), effect.String())
		dec := NewGhostState(Origin{})
		got := dec.Apply(&frame)
		require.Equal(t, effect, got.Effect)
	}
}

func TestGhostFollowerSpawnMoveDespawn(t *testing.T) {
	layout := CurrentLayout()
	enc, dec := NewGhostState(Origin{}), NewGhostState(Origin{})
	a := ActorSnapshot{Sprite: SpritePlay, Scale: FracUnit}
	a.Follower = &FollowerSnapshot{Skin: -1, Sprite: 3, Frame: 1, Color: 300, Scale: FracUnit, BaseHeight: 16 << FracBits, Colorized: true}
	a.Follower.X = 8 << FracBits

	steps := []FollowerAction{FollowerSpawn, FollowerMove, FollowerDespawn, FollowerNone}
	for i, want := range steps {
		if i == 2 {
			a.Follower = nil
		}
		w := NewWriter(128)
		_, err := enc.Encode(w, &a, nil, layout)
		require.NoError(t, err)
		update, err := dec.Decode(NewReader(w.Bytes()), layout)
		require.NoError(t, err)
		require.Equal(t, want, update.Follower.Action, "step %d", i)
		require.Equal(t, enc, dec, "step %d", i)
		if want == FollowerSpawn {
			assert.True(t, update.Follower.Colorized)
			assert.Equal(t, Fixed(16<<FracBits), update.Follower.BaseHeight)
			assert.Equal(t, -1, update.Follower.Skin)
			assert.Equal(t, Fixed(8<<FracBits), update.Follower.X)
			assert.Equal(t, uint16(300), update.Follower.Color)
		}
	}
}

func TestGhostPoofsLimitedToFirstHits(t *testing.T) {
	update := GhostUpdate{Hits: []HitRecord{
		{Type: 1, Health: 0},
		{Type: 2, Health: 3},
		{Type: 3, Health: 0},
		{Type: 4, Health: 0},
		{Type: 5, Health: 0},
	}}
	poofs := update.Poofs()
	require.Len(t, poofs, 3)
	assert.Equal(t, uint32(4), poofs[2].Type)
}

func TestGhostLegacyLayoutWidths(t *testing.T) {
	legacy, err := LayoutFor(0x000c)
	require.NoError(t, err)
	frame := GhostFrame{Flags: GztExtra, Extra: ExtraBlock{Flags: EztColor | EztHeight, Color: 0x0107, Height: 40*FracUnit + 123}}
	w := NewWriter(16)
	require.NoError(t, frame.WriteTo(w, legacy))
	assert.Equal(t, 1+1+1+2, len(w.Bytes()))
	assert.Equal(t, len(w.Bytes()), frame.Size(legacy))

	got, err := ReadGhostFrame(NewReader(w.Bytes()), legacy)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x07), got.Extra.Color)
	assert.Equal(t, 40*FracUnit, got.Extra.Height)
}

func TestGhostTruncatedFrameLeavesRegister(t *testing.T) {
	dec := NewGhostState(Origin{X: 5})
	before := dec
	_, err := dec.Decode(NewReader([]byte{GztXYZ, 1, 2, 3}), CurrentLayout())
	require.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, before, dec)
}
