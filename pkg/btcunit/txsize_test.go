package btcunit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestTxSizeConversion checks the conversion between the size units.
func TestTxSizeConversion(t *testing.T) {
	t.Parallel()

	wu := NewWeightUnit(1000)

	// 1000 wu is 250 vb and back.
	require.Equal(t, NewVByte(250), wu.ToVB())
	require.Equal(t, wu, NewVByte(250).ToWU())

	// 1 kvb is 1000 vb.
	require.Equal(t, NewVByte(1000), NewKVByte(1).ToVB())

	// 1 kwu is 1000 wu.
	require.Equal(t, NewWeightUnit(1000), NewKWeightUnit(1).ToWU())

	require.Equal(t, NewWeightUnit(1003), wu.Add(NewWeightUnit(3)))
}

// TestVBytesRoundUp checks that partial vbytes round up.
func TestVBytesRoundUp(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		wu   uint64
		want uint64
	}{
		{wu: 0, want: 0},
		{wu: 1, want: 1},
		{wu: 4, want: 1},
		{wu: 5, want: 2},
		{wu: 437, want: 110},
		{wu: 440, want: 110},
	}

	for _, tc := range testCases {
		require.Equal(t, tc.want, NewWeightUnit(tc.wu).VBytes(),
			"weight %d", tc.wu)
	}
}

// TestTxSizeStringer tests the stringer methods of the tx size types.
func TestTxSizeStringer(t *testing.T) {
	t.Parallel()

	require.Equal(t, "1000 wu", NewWeightUnit(1000).String())
	require.Equal(t, "250 vb", NewVByte(250).String())
	require.Equal(t, "111 vb", NewWeightUnit(441).ToVB().String())
	require.Equal(t, "1 kvb", NewKVByte(1).String())
	require.Equal(t, "1 kwu", NewKWeightUnit(1).String())
}
