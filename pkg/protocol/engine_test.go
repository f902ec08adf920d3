package protocol_test

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/savefi/ledger/pkg/protocol"
	"github.com/savefi/ledger/pkg/store"
	savetesting "github.com/savefi/ledger/utils/pkg/testing"
)

func TestSavefi_Protocol_NewEngine(t *testing.T) {
	t.Parallel()

	valid := func() protocol.Config {
		return protocol.Config{
			Logger:          savetesting.NewLogger(),
			Clock:           clockwork.NewFakeClock(),
			Store:           store.NewMemoryStore(),
			Ledger:          protocol.NewMemoryLedger(),
			EscrowAccount:   solana.NewWallet().PublicKey(),
			FeeVaultAccount: solana.NewWallet().PublicKey(),
		}
	}

	t.Run("accepts a complete config", func(t *testing.T) {
		t.Parallel()

		_, err := protocol.NewEngine(valid())
		require.NoError(t, err)
	})

	t.Run("rejects missing collaborators", func(t *testing.T) {
		t.Parallel()

		cfg := valid()
		cfg.Logger = nil
		_, err := protocol.NewEngine(cfg)
		require.Error(t, err)

		cfg = valid()
		cfg.Store = nil
		_, err = protocol.NewEngine(cfg)
		require.Error(t, err)

		cfg = valid()
		cfg.Ledger = nil
		_, err = protocol.NewEngine(cfg)
		require.Error(t, err)

		cfg = valid()
		cfg.EscrowAccount = solana.PublicKey{}
		_, err = protocol.NewEngine(cfg)
		require.Error(t, err)
	})

	t.Run("defaults the clock", func(t *testing.T) {
		t.Parallel()

		cfg := valid()
		cfg.Clock = nil
		_, err := protocol.NewEngine(cfg)
		require.NoError(t, err)
	})
}

func TestSavefi_Protocol_Initialize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("runs exactly once", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		err := h.engine.InitializeProtocol(ctx, h.admin, h.token, 3)
		require.Error(t, err)
	})

	t.Run("rejects invalid bootstrap parameters", func(t *testing.T) {
		t.Parallel()

		engine, err := protocol.NewEngine(protocol.Config{
			Logger:          savetesting.NewLogger(),
			Clock:           clockwork.NewFakeClock(),
			Store:           store.NewMemoryStore(),
			Ledger:          protocol.NewMemoryLedger(),
			EscrowAccount:   solana.NewWallet().PublicKey(),
			FeeVaultAccount: solana.NewWallet().PublicKey(),
		})
		require.NoError(t, err)

		admin := solana.NewWallet().PublicKey()
		token := solana.NewWallet().PublicKey()

		require.Error(t, engine.InitializeProtocol(ctx, solana.PublicKey{}, token, 2))
		require.Error(t, engine.InitializeProtocol(ctx, admin, solana.PublicKey{}, 2))
		require.ErrorIs(t, engine.InitializeProtocol(ctx, admin, token, 6), protocol.ErrInvalidFeeRate)
	})
}

func TestSavefi_Protocol_SetPaused(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("admin only", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t)
		err := h.engine.SetPaused(ctx, solana.NewWallet().PublicKey(), true)
		require.ErrorIs(t, err, protocol.ErrUnauthorized)
	})
}
