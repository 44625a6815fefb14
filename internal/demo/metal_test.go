package demo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/STJr/SRB2-sub004/internal/logging"
)

func TestMetalRoundTrip(t *testing.T) {
	origin := Origin{X: 64 * FracUnit, Y: -32 * FracUnit}
	path := walkPath(30)
	for i := range path {
		path[i].X += origin.X
		path[i].Y += origin.Y
		path[i].Follower = nil
	}
	rec, err := NewMetalRecorder(0, origin, logging.NewTestLogger())
	require.NoError(t, err)
	for i := range path {
		require.True(t, rec.WriteTic(&path[i]))
	}
	data, err := rec.Finish()
	require.NoError(t, err)

	h, err := ParseHeader(data)
	require.NoError(t, err)
	assert.Equal(t, KindMetal, h.Kind)
	_, err = OpenPlayback(data, PlaybackOptions{})
	require.ErrorIs(t, err, ErrWrongKind)

	enc := NewGhostState(origin)
	player, err := OpenMetal(data, origin, logging.NewTestLogger())
	require.NoError(t, err)
	puppet := &fakePuppet{}
	for i := range path {
		enc.Diff(&path[i], nil)
		alive := player.Tick(puppet)
		require.Equal(t, i < len(path)-1, alive, "tic %d", i)
		require.Equal(t, enc.X, puppet.updates[i].X, "tic %d", i)
	}
	assert.True(t, player.Ended())
	assert.True(t, puppet.gone)
	assert.False(t, player.Tick(puppet))
}

func TestMetalRecorderStopsWhenFull(t *testing.T) {
	rec, err := NewMetalRecorder(36+20, Origin{}, logging.NewTestLogger())
	require.NoError(t, err)
	written := 0
	for _, a := range walkPath(50) {
		a.Follower = nil
		if !rec.WriteTic(&a) {
			break
		}
		written++
	}
	assert.True(t, rec.Ended())
	assert.Positive(t, written)
	data, err := rec.Finish()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(data), 36+20)

	player, err := OpenMetal(data, Origin{}, logging.NewTestLogger())
	require.NoError(t, err)
	puppet := &fakePuppet{}
	for player.Tick(puppet) {
	}
	assert.Len(t, puppet.updates, written)
}
