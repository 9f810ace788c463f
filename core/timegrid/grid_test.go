package timegrid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLayout(t *testing.T) {
	g, err := Build(5*time.Minute, 6, GN, GS)
	require.NoError(t, err)
	assert.Equal(t, 12, g.Len())
	assert.Equal(t, 30*time.Minute, g.Horizon())

	slots := g.Slots()
	for i, s := range slots {
		wantRes := GN
		if i >= 6 {
			wantRes = GS
		}
		assert.Equal(t, wantRes, s.Resource, "slot %d", i)
		assert.Equal(t, time.Duration(i%6)*5*time.Minute, s.Start, "slot %d", i)
	}
}

func TestBuildInvalid(t *testing.T) {
	cases := []struct {
		name   string
		length time.Duration
		count  int
		res    []Resource
	}{
		{"zero length", 0, 6, []Resource{GN}},
		{"negative count", time.Minute, -1, []Resource{GN}},
		{"no resources", time.Minute, 6, nil},
		{"both", time.Minute, 6, []Resource{Both}},
		{"duplicate", time.Minute, 6, []Resource{GN, GN}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(tc.length, tc.count, tc.res...)
			assert.ErrorIs(t, err, ErrInvalidGrid)
		})
	}
}

func TestSlotAtAndIndexOf(t *testing.T) {
	g, err := Build(300*time.Second, 6, GN, GS)
	require.NoError(t, err)

	s, err := g.SlotAt(GS, 3)
	require.NoError(t, err)
	assert.Equal(t, TimeSlot{Resource: GS, Start: 900 * time.Second}, s)

	idx, err := g.IndexOf(GS, 900*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 9, idx)

	for _, res := range []Resource{GN, GS} {
		for i := 0; i < g.SlotsPerResource(); i++ {
			slot, err := g.SlotAt(res, i)
			require.NoError(t, err)
			global, err := g.IndexOf(res, slot.Start)
			require.NoError(t, err)
			back, err := g.Slot(global)
			require.NoError(t, err)
			assert.Equal(t, slot, back)
		}
	}

	_, err = g.SlotAt(GN, 6)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = g.SlotAt(GN, -1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = g.IndexOf(GN, 10*time.Second)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestSingleResourceGrid(t *testing.T) {
	g, err := Build(time.Minute, 4, GS)
	require.NoError(t, err)
	_, err = g.SlotAt(GN, 0)
	assert.ErrorIs(t, err, ErrUnknownResource)
	idx, err := g.GlobalIndex(GS, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
}

func TestLocateAndBlockEnd(t *testing.T) {
	g, err := Build(time.Minute, 6, GN, GS)
	require.NoError(t, err)

	r, off, err := g.Locate(8)
	require.NoError(t, err)
	assert.Equal(t, GS, r)
	assert.Equal(t, 2, off)

	end, err := g.BlockEnd(3)
	require.NoError(t, err)
	assert.Equal(t, 6, end)
	end, err = g.BlockEnd(11)
	require.NoError(t, err)
	assert.Equal(t, 12, end)

	_, err = g.BlockEnd(12)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, _, err = g.Locate(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestEmptyGrid(t *testing.T) {
	g, err := Build(time.Minute, 0, GN, GS)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
	_, err = g.Slot(0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestResourceText(t *testing.T) {
	for _, r := range []Resource{GN, GS, Both} {
		b, err := r.MarshalText()
		require.NoError(t, err)
		var back Resource
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, r, back)
	}
	var r Resource
	assert.ErrorIs(t, r.UnmarshalText([]byte("mars")), ErrUnknownResource)
	assert.True(t, Both.Accepts(GS))
	assert.True(t, GN.Accepts(GN))
	assert.False(t, GN.Accepts(GS))
}
