package demo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/STJr/SRB2-sub004/internal/logging"
)

type fakeBody struct {
	x, y, z   Fixed
	relocated int
}

func (b *fakeBody) Position() (Fixed, Fixed, Fixed) { return b.x, b.y, b.z }

func (b *fakeBody) Relocate(x, y, z Fixed) {
	b.x, b.y, b.z = x, y, z
	b.relocated++
}

type fakePuppet struct {
	updates []GhostUpdate
	fuse    int
	gone    bool
}

func (p *fakePuppet) ApplyGhost(update *GhostUpdate) { p.updates = append(p.updates, *update) }

func (p *fakePuppet) Despawn(fuse int) {
	p.fuse = fuse
	p.gone = true
}

type hitLog struct{ hits []HitRecord }

func (h *hitLog) ResyncHit(hit HitRecord) { h.hits = append(h.hits, hit) }

func testHeader() Header {
	return Header{
		Map:         101,
		MapChecksum: [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		Ghost:       true,
		Attack:      AttackRecord,
		Seed:        0xC0FFEE,
		Name:        "Sonic",
		Skin:        "sonic",
		Color:       "Blue",
		Stats:       PlayerStats{Ability: 1, NormalSpeed: 36, RunSpeed: 28, Height: 48, SpinHeight: 36, CameraScale: 32},
		JumpFactor:  int32(FracUnit),
		Prefs:       PrefAnalog | PrefAutoBrake,
		Vars:        []ConsVar{{Name: "gravity", Value: "0.5"}, {Name: "cheats", Value: "0", Stealth: true}},
	}
}

// walkPath produces a deterministic actor path with small moves, one long
// jump, changing appearance and a follower that comes and goes.
func walkPath(n int) []ActorSnapshot {
	out := make([]ActorSnapshot, n)
	var x, y, z Fixed
	for i := range out {
		x += Fixed(i*37+5) << 10
		y -= Fixed(i%7) << 12
		z += Fixed((i%5)-2) << 14
		if i == n/2 {
			x += 40000 << 9
		}
		a := ActorSnapshot{
			Angle:   Angle(uint32(i) * 0x01234567),
			Frame:   uint8(i / 3),
			Sprite:  SpritePlay,
			Sprite2: uint8(i / 4),
			Height:  48 * FracUnit,
			Scale:   FracUnit,
		}
		a.X, a.Y, a.Z = x, y, z
		if i%11 == 10 {
			a.Sprite = 7
		}
		if i >= 3 && i < n-4 {
			a.Follower = &FollowerSnapshot{
				Scale:      FracUnit,
				BaseHeight: 20 << FracBits,
				Skin:       2,
				Sprite2:    uint8(i % 3),
				Sprite:     4,
				Frame:      uint8(i),
				Color:      9,
				LinkDraw:   true,
			}
			a.Follower.X, a.Follower.Y, a.Follower.Z = x+12<<FracBits, y-4<<FracBits, z+30<<FracBits
		}
		out[i] = a
	}
	return out
}

func walkInput(n int) []Ticcmd {
	out := make([]Ticcmd, n)
	for i := range out {
		out[i] = Ticcmd{
			Forward: int8(50 - i%3),
			Side:    int8(i % 2),
			Turn:    int16(i / 5 * 64),
			Buttons: uint16(i%4) << 1,
			Aiming:  int16(-i / 8),
		}
	}
	return out
}

// recordWalk records n tics of walkPath with the test header.
func recordWalk(t *testing.T, n int, mutate func(*RecordOptions)) ([]byte, *Recorder) {
	t.Helper()
	opts := RecordOptions{Header: testHeader(), Logger: logging.NewTestLogger()}
	if mutate != nil {
		mutate(&opts)
	}
	rec, err := NewRecorder(opts)
	require.NoError(t, err)
	path := walkPath(n)
	for i, cmd := range walkInput(n) {
		if !rec.WriteTiccmd(cmd) {
			break
		}
		if i == 4 {
			rec.Extras().AddEffect(EffectSpin)
			rec.Extras().AddHit(HitRecord{Type: 12, Health: 0, X: path[i].X, Y: path[i].Y})
		}
		if !rec.WriteGhost(&path[i]) {
			break
		}
	}
	data, err := rec.Finish()
	require.NoError(t, err)
	return data, rec
}
