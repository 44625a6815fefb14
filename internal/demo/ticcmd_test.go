package demo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTiccmdForwardThenTurn(t *testing.T) {
	var enc TiccmdState
	w := NewWriter(64)
	zip, err := enc.Encode(w, Ticcmd{Forward: 25})
	require.NoError(t, err)
	assert.Equal(t, ZtForward, zip)
	zip, err = enc.Encode(w, Ticcmd{Forward: 25, Turn: 640})
	require.NoError(t, err)
	assert.Equal(t, ZtTurn, zip)
	assert.Equal(t, []byte{ZtForward, 25, ZtTurn, 0x80, 0x02}, w.Bytes())

	var dec TiccmdState
	r := NewReader(w.Bytes())
	cmd, zip, err := dec.Decode(r, 0)
	require.NoError(t, err)
	assert.Equal(t, ZtForward, zip)
	assert.Equal(t, Ticcmd{Forward: 25}, cmd)
	cmd, zip, err = dec.Decode(r, 0)
	require.NoError(t, err)
	assert.Equal(t, ZtTurn, zip)
	assert.Equal(t, Ticcmd{Forward: 25, Turn: 640}, cmd)
	assert.Zero(t, r.Remaining())
}

func TestTiccmdRegistersPersistAcrossTics(t *testing.T) {
	input := walkInput(40)
	var enc, dec TiccmdState
	w := NewWriter(40 * TiccmdMargin)
	zips := make([]uint8, len(input))
	for i, cmd := range input {
		zip, err := enc.Encode(w, cmd)
		require.NoError(t, err)
		zips[i] = zip
	}
	r := NewReader(w.Bytes())
	prev := dec.Last()
	for i := range input {
		cmd, zip, err := dec.Decode(r, 0)
		require.NoError(t, err)
		require.Equal(t, zips[i], zip, "tic %d", i)
		require.Equal(t, input[i], cmd, "tic %d", i)
		//1.- Every field the ziptic leaves out keeps the previous tic's value.
		if zip&ZtForward == 0 {
			require.Equal(t, prev.Forward, cmd.Forward)
		}
		if zip&ZtSide == 0 {
			require.Equal(t, prev.Side, cmd.Side)
		}
		if zip&ZtTurn == 0 {
			require.Equal(t, prev.Turn, cmd.Turn)
		}
		if zip&ZtButtons == 0 {
			require.Equal(t, prev.Buttons, cmd.Buttons)
		}
		if zip&ZtAiming == 0 {
			require.Equal(t, prev.Aiming, cmd.Aiming)
		}
		prev = cmd
	}
}

func TestTiccmdCameraButtonsComeFromLiveInput(t *testing.T) {
	var enc TiccmdState
	w := NewWriter(16)
	zip, err := enc.Encode(w, Ticcmd{Buttons: ButtonCamLeft | 0x0001})
	require.NoError(t, err)
	assert.Equal(t, ZtButtons, zip)
	//1.- Toggling only a camera button produces an empty frame.
	zip, err = enc.Encode(w, Ticcmd{Buttons: ButtonCamRight | 0x0001})
	require.NoError(t, err)
	assert.Zero(t, zip)

	var dec TiccmdState
	r := NewReader(w.Bytes())
	cmd, _, err := dec.Decode(r, ButtonCamRight)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0001)|ButtonCamRight, cmd.Buttons)
	cmd, _, err = dec.Decode(r, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0001), cmd.Buttons)
}

func TestTiccmdRejectsUnknownBits(t *testing.T) {
	var dec TiccmdState
	_, _, err := dec.Decode(NewReader([]byte{0x20}), 0)
	require.ErrorIs(t, err, ErrUnknownZiptic)
	assert.Equal(t, Ticcmd{}, dec.Last())
	require.ErrorIs(t, SkipTiccmd(NewReader([]byte{0x41})), ErrUnknownZiptic)
}

func TestTiccmdTruncatedFrameLeavesRegister(t *testing.T) {
	var dec TiccmdState
	_, _, err := dec.Decode(NewReader([]byte{ZtForward | ZtTurn, 9, 0x01}), 0)
	require.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, Ticcmd{}, dec.Last())
}
