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

const (
	defaultFeeRate  = uint8(2)
	defaultSaveRate = uint8(10)
	defaultLockDays = uint8(7)
)

// harness wires an engine against the in-memory store and ledger with a fake
// clock, with the protocol already initialized.
type harness struct {
	engine *protocol.Engine
	store  *store.MemoryStore
	ledger *protocol.MemoryLedger
	clock  *clockwork.FakeClock

	admin    solana.PublicKey
	token    solana.PublicKey
	escrow   solana.PublicKey
	feeVault solana.PublicKey
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:    store.NewMemoryStore(),
		ledger:   protocol.NewMemoryLedger(),
		clock:    clockwork.NewFakeClock(),
		admin:    solana.NewWallet().PublicKey(),
		token:    solana.NewWallet().PublicKey(),
		escrow:   solana.NewWallet().PublicKey(),
		feeVault: solana.NewWallet().PublicKey(),
	}

	engine, err := protocol.NewEngine(protocol.Config{
		Logger:          savetesting.NewLogger(),
		Clock:           h.clock,
		Store:           h.store,
		Ledger:          h.ledger,
		EscrowAccount:   h.escrow,
		FeeVaultAccount: h.feeVault,
	})
	require.NoError(t, err)
	h.engine = engine

	err = engine.InitializeProtocol(context.Background(), h.admin, h.token, defaultFeeRate)
	require.NoError(t, err)

	return h
}

// newUser creates a vault and a delegation for a fresh identity and returns
// it. The ledger journal is reset afterwards so tests only see their own
// movements.
func (h *harness) newUser(t *testing.T, delegated uint64) solana.PublicKey {
	t.Helper()

	owner := solana.NewWallet().PublicKey()
	ctx := context.Background()

	err := h.engine.InitializeVault(ctx, owner, defaultSaveRate, defaultLockDays)
	require.NoError(t, err)

	if delegated > 0 {
		err = h.engine.DelegateFunds(ctx, owner, delegated, defaultLockDays)
		require.NoError(t, err)
	}

	h.ledger.Reset()
	return owner
}

func (h *harness) vault(t *testing.T, owner solana.PublicKey) *protocol.Vault {
	t.Helper()

	var v *protocol.Vault
	err := h.store.WithTx(context.Background(), func(ctx context.Context, tx protocol.Tx) error {
		var err error
		v, err = tx.Vault(ctx, owner)
		return err
	})
	require.NoError(t, err)
	return v
}

func (h *harness) delegation(t *testing.T, owner solana.PublicKey) *protocol.Delegation {
	t.Helper()

	var d *protocol.Delegation
	err := h.store.WithTx(context.Background(), func(ctx context.Context, tx protocol.Tx) error {
		var err error
		d, err = tx.Delegation(ctx, owner)
		return err
	})
	require.NoError(t, err)
	return d
}

func (h *harness) feeAccount(t *testing.T) *protocol.FeeAccount {
	t.Helper()

	var fa *protocol.FeeAccount
	err := h.store.WithTx(context.Background(), func(ctx context.Context, tx protocol.Tx) error {
		var err error
		fa, err = tx.FeeAccount(ctx)
		return err
	})
	require.NoError(t, err)
	return fa
}
