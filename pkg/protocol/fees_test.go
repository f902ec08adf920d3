package protocol_test

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/savefi/ledger/pkg/protocol"
)

func TestSavefi_Protocol_Fees_SetRate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("authority can change the rate within range", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)

		require.NoError(t, h.engine.SetFeeRate(ctx, h.admin, 0))
		require.Equal(t, uint8(0), h.feeAccount(t).FeeRate)

		require.NoError(t, h.engine.SetFeeRate(ctx, h.admin, 5))
		require.Equal(t, uint8(5), h.feeAccount(t).FeeRate)

		require.ErrorIs(t, h.engine.SetFeeRate(ctx, h.admin, 6), protocol.ErrInvalidFeeRate)
	})

	t.Run("non-authority is rejected", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		err := h.engine.SetFeeRate(ctx, solana.NewWallet().PublicKey(), 3)
		require.ErrorIs(t, err, protocol.ErrUnauthorized)
	})

	t.Run("a zero rate skips the fee leg entirely", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		require.NoError(t, h.engine.SetFeeRate(ctx, h.admin, 0))

		owner := h.newUser(t, 1_000_000_000)
		receipt, err := h.engine.ProcessTrade(ctx, owner, solana.NewWallet().PublicKey(), 100_000_000)
		require.NoError(t, err)
		require.Equal(t, uint64(0), receipt.FeeAmount)
		require.Equal(t, uint64(90_000_000), receipt.Remaining)
		require.Equal(t, uint64(0), h.feeAccount(t).Balance)
	})
}

func TestSavefi_Protocol_Fees_Collect(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	accrue := func(t *testing.T, h *harness) uint64 {
		t.Helper()
		owner := h.newUser(t, 1_000_000_000)
		receipt, err := h.engine.ProcessTrade(ctx, owner, solana.NewWallet().PublicKey(), 100_000_000)
		require.NoError(t, err)
		h.ledger.Reset()
		return receipt.FeeAmount
	}

	t.Run("drains the accrued balance to the authority", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		accrued := accrue(t, h)
		h.clock.Advance(25 * time.Hour)

		collected, err := h.engine.CollectFees(ctx, h.admin)
		require.NoError(t, err)
		require.Equal(t, accrued, collected)
		require.Equal(t, uint64(0), h.feeAccount(t).Balance)

		journal := h.ledger.Journal()
		require.Len(t, journal, 1)
		require.Equal(t, protocol.MovementTransfer, journal[0].Kind)
		require.Equal(t, h.feeVault, journal[0].From)
		require.Equal(t, h.admin, journal[0].To)
		require.Equal(t, accrued, journal[0].Amount)
	})

	t.Run("enforces the collection cooldown", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		accrue(t, h)
		h.clock.Advance(25 * time.Hour)

		_, err := h.engine.CollectFees(ctx, h.admin)
		require.NoError(t, err)

		accrue(t, h)
		_, err = h.engine.CollectFees(ctx, h.admin)
		require.ErrorIs(t, err, protocol.ErrCollectionCooldown)

		h.clock.Advance(24 * time.Hour)
		_, err = h.engine.CollectFees(ctx, h.admin)
		require.NoError(t, err)
	})

	t.Run("refuses when nothing has accrued", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		h.clock.Advance(25 * time.Hour)

		_, err := h.engine.CollectFees(ctx, h.admin)
		require.ErrorIs(t, err, protocol.ErrEmptyVault)
	})

	t.Run("non-authority is rejected", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		accrue(t, h)
		h.clock.Advance(25 * time.Hour)

		_, err := h.engine.CollectFees(ctx, solana.NewWallet().PublicKey())
		require.ErrorIs(t, err, protocol.ErrUnauthorized)
	})
}

func TestSavefi_Protocol_Fees_EmergencyMode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("toggles on and off", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)

		enabled, err := h.engine.ToggleEmergencyMode(ctx, h.admin)
		require.NoError(t, err)
		require.True(t, enabled)

		enabled, err = h.engine.ToggleEmergencyMode(ctx, h.admin)
		require.NoError(t, err)
		require.False(t, enabled)
	})

	t.Run("non-authority is rejected", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		_, err := h.engine.ToggleEmergencyMode(ctx, solana.NewWallet().PublicKey())
		require.ErrorIs(t, err, protocol.ErrUnauthorized)
	})
}
