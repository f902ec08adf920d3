package protocol

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSavefi_Protocol_RatePortion(t *testing.T) {
	t.Parallel()

	require.Equal(t, uint64(10_000_000), ratePortion(100_000_000, 10))
	require.Equal(t, uint64(2_000_000), ratePortion(100_000_000, 2))
	require.Equal(t, uint64(50_000), ratePortion(1_000_000, 5))
	require.Equal(t, uint64(0), ratePortion(0, 20))
	require.Equal(t, uint64(0), ratePortion(99, 0))

	// Floors, never rounds.
	require.Equal(t, uint64(0), ratePortion(99, 1))
	require.Equal(t, uint64(1), ratePortion(199, 1))

	// The intermediate product exceeds 64 bits; the widened multiply must
	// still give the exact quotient.
	require.Equal(t, uint64(math.MaxUint64/100*20+(math.MaxUint64%100)*20/100),
		ratePortion(math.MaxUint64, 20))
}

func TestSavefi_Protocol_CheckedArithmetic(t *testing.T) {
	t.Parallel()

	t.Run("add detects overflow", func(t *testing.T) {
		t.Parallel()

		sum, err := checkedAdd(1, 2)
		require.NoError(t, err)
		require.Equal(t, uint64(3), sum)

		_, err = checkedAdd(math.MaxUint64, 1)
		require.ErrorIs(t, err, ErrArithmeticOverflow)
	})

	t.Run("sub detects underflow", func(t *testing.T) {
		t.Parallel()

		diff, err := checkedSub(3, 2)
		require.NoError(t, err)
		require.Equal(t, uint64(1), diff)

		_, err = checkedSub(2, 3)
		require.ErrorIs(t, err, ErrArithmeticUnderflow)
	})
}
