package protocol_test

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/savefi/ledger/pkg/protocol"
)

func TestSavefi_Protocol_Vault_Initialize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("creates an active vault with a subscription window", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		owner := solana.NewWallet().PublicKey()

		err := h.engine.InitializeVault(ctx, owner, 15, 10)
		require.NoError(t, err)

		v := h.vault(t, owner)
		require.Equal(t, uint8(15), v.SavingsRate)
		require.Equal(t, uint8(10), v.LockPeriodDays)
		require.True(t, v.Active)
		require.False(t, v.EmergencyLocked)
		require.Equal(t, uint64(0), v.Balance)
		require.Equal(t, h.clock.Now().Unix()+7*86400, v.NextPaymentDue)
	})

	t.Run("rejects out-of-range policies", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		owner := solana.NewWallet().PublicKey()

		require.ErrorIs(t, h.engine.InitializeVault(ctx, owner, 0, 7), protocol.ErrInvalidSaveRate)
		require.ErrorIs(t, h.engine.InitializeVault(ctx, owner, 21, 7), protocol.ErrInvalidSaveRate)
		require.ErrorIs(t, h.engine.InitializeVault(ctx, owner, 10, 0), protocol.ErrInvalidLockPeriod)
		require.ErrorIs(t, h.engine.InitializeVault(ctx, owner, 10, 31), protocol.ErrInvalidLockPeriod)
	})

	t.Run("rejects a second vault for the same owner", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		owner := h.newUser(t, 0)

		err := h.engine.InitializeVault(ctx, owner, 5, 5)
		require.ErrorIs(t, err, protocol.ErrVaultAlreadyInitialized)
	})
}

func TestSavefi_Protocol_Vault_UpdatePolicy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("changes the rate without touching a running lock", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		owner := h.newUser(t, 1_000_000_000)
		dest := solana.NewWallet().PublicKey()

		_, err := h.engine.ProcessTrade(ctx, owner, dest, 100_000_000)
		require.NoError(t, err)
		lockBefore := h.vault(t, owner).LockUntil

		require.NoError(t, h.engine.UpdateVaultPolicy(ctx, owner, 20, 30))

		v := h.vault(t, owner)
		require.Equal(t, uint8(20), v.SavingsRate)
		require.Equal(t, uint8(30), v.LockPeriodDays)
		require.Equal(t, lockBefore, v.LockUntil)
	})

	t.Run("rejects a non-owner", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		h.newUser(t, 0)
		stranger := solana.NewWallet().PublicKey()

		err := h.engine.UpdateVaultPolicy(ctx, stranger, 10, 7)
		require.ErrorIs(t, err, protocol.ErrUnauthorized)
	})
}

func TestSavefi_Protocol_Vault_Withdraw(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	// fund runs a trade so the vault holds locked savings.
	fund := func(t *testing.T, h *harness, owner solana.PublicKey) uint64 {
		t.Helper()
		dest := solana.NewWallet().PublicKey()
		receipt, err := h.engine.ProcessTrade(ctx, owner, dest, 100_000_000)
		require.NoError(t, err)
		h.ledger.Reset()
		return receipt.SaveAmount
	}

	t.Run("refuses while the lock is running", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		owner := h.newUser(t, 1_000_000_000)
		fund(t, h, owner)

		_, err := h.engine.Withdraw(ctx, owner)
		require.ErrorIs(t, err, protocol.ErrVaultLocked)
	})

	t.Run("drains the full balance after the lock expires", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		owner := h.newUser(t, 1_000_000_000)
		saved := fund(t, h, owner)

		h.clock.Advance(time.Duration(defaultLockDays)*24*time.Hour + time.Second)

		amount, err := h.engine.Withdraw(ctx, owner)
		require.NoError(t, err)
		require.Equal(t, saved, amount)
		require.Equal(t, uint64(0), h.vault(t, owner).Balance)

		journal := h.ledger.Journal()
		require.Len(t, journal, 1)
		require.Equal(t, protocol.MovementBurn, journal[0].Kind)
		require.Equal(t, owner, journal[0].From)
		require.Equal(t, saved, journal[0].Amount)

		_, err = h.engine.Withdraw(ctx, owner)
		require.ErrorIs(t, err, protocol.ErrEmptyVault)
	})

	t.Run("rejects a non-owner", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		h.newUser(t, 0)

		_, err := h.engine.Withdraw(ctx, solana.NewWallet().PublicKey())
		require.ErrorIs(t, err, protocol.ErrUnauthorized)
	})
}

func TestSavefi_Protocol_Vault_EmergencyWithdraw(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	seed := func(t *testing.T, h *harness, owner solana.PublicKey) {
		t.Helper()
		dest := solana.NewWallet().PublicKey()
		// Two trades of 5_000_000 at 10% leave 1_000_000 saved.
		for i := 0; i < 2; i++ {
			_, err := h.engine.ProcessTrade(ctx, owner, dest, 5_000_000)
			require.NoError(t, err)
		}
		require.Equal(t, uint64(1_000_000), h.vault(t, owner).Balance)
		h.ledger.Reset()
	}

	t.Run("pays out minus the emergency fee and locks the vault for good", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		owner := h.newUser(t, 1_000_000_000)
		seed(t, h, owner)

		payout, err := h.engine.EmergencyWithdraw(ctx, owner, 1_000_000)
		require.NoError(t, err)
		require.Equal(t, uint64(950_000), payout)

		v := h.vault(t, owner)
		require.True(t, v.EmergencyLocked)
		require.Equal(t, uint64(0), v.Balance)
		require.Equal(t, uint64(50_000), h.feeAccount(t).CollectedFees)

		journal := h.ledger.Journal()
		require.Len(t, journal, 2)
		require.Equal(t, protocol.MovementTransfer, journal[0].Kind)
		require.Equal(t, uint64(950_000), journal[0].Amount)
		require.Equal(t, protocol.MovementBurn, journal[1].Kind)
		require.Equal(t, uint64(1_000_000), journal[1].Amount)
	})

	t.Run("the emergency lock never clears", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		owner := h.newUser(t, 1_000_000_000)
		seed(t, h, owner)

		_, err := h.engine.EmergencyWithdraw(ctx, owner, 500_000)
		require.NoError(t, err)

		// Waiting out every timer changes nothing: the vault stays stuck.
		h.clock.Advance(365 * 24 * time.Hour)
		require.NoError(t, h.engine.RenewSubscription(ctx, owner))

		_, err = h.engine.Withdraw(ctx, owner)
		require.ErrorIs(t, err, protocol.ErrVaultLocked)

		_, err = h.engine.EmergencyWithdraw(ctx, owner, 100_000)
		require.ErrorIs(t, err, protocol.ErrVaultLocked)

		require.NoError(t, h.engine.DelegateFunds(ctx, owner, 1_000_000_000, defaultLockDays))
		_, err = h.engine.ProcessTrade(ctx, owner, solana.NewWallet().PublicKey(), 10_000_000)
		require.ErrorIs(t, err, protocol.ErrVaultLocked)
	})

	t.Run("rejects more than the balance", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		owner := h.newUser(t, 1_000_000_000)
		seed(t, h, owner)

		_, err := h.engine.EmergencyWithdraw(ctx, owner, 2_000_000)
		require.ErrorIs(t, err, protocol.ErrArithmeticUnderflow)
	})
}

func TestSavefi_Protocol_Vault_RenewSubscription(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("charges the fee and extends the window", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		owner := h.newUser(t, 0)

		h.clock.Advance(10 * 24 * time.Hour)
		require.NoError(t, h.engine.RenewSubscription(ctx, owner))

		v := h.vault(t, owner)
		require.True(t, v.Active)
		require.Equal(t, h.clock.Now().Unix()+7*86400, v.NextPaymentDue)

		journal := h.ledger.Journal()
		require.Len(t, journal, 1)
		require.Equal(t, protocol.MovementTransfer, journal[0].Kind)
		require.Equal(t, owner, journal[0].From)
		require.Equal(t, h.feeVault, journal[0].To)
		require.Equal(t, uint64(protocol.SubscriptionFeeLamports), journal[0].Amount)
	})

	t.Run("rejects a caller without a vault", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		err := h.engine.RenewSubscription(ctx, solana.NewWallet().PublicKey())
		require.ErrorIs(t, err, protocol.ErrUnauthorized)
	})
}
