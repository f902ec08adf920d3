// Package protocol implements the SaveFi accounting and authorization core:
// per-user savings vaults, time-bounded delegations, the protocol fee
// account, and the trade execution pipeline that splits every trade into a
// savings skim, a protocol fee, and a forwarded remainder.
//
// The package deliberately knows nothing about account derivation, rent, or
// transaction layout. Fund movements are delegated to a Ledger collaborator
// and durable state to a Store collaborator; the core only decides how much
// moves where, under what limits, and with what locking guarantees.
package protocol

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
)

// ErrNotFound is returned by Tx lookups when no record exists for the key.
var ErrNotFound = errors.New("record not found")

// Ledger moves funds on behalf of the engine. Every call either fully
// succeeds or fails with no partial effect; the engine treats any failure as
// fatal to the surrounding operation and never retries at this level.
type Ledger interface {
	// Mint credits amount of token to the given account.
	Mint(ctx context.Context, token, to solana.PublicKey, amount uint64) error
	// Burn debits amount of token from the given account.
	Burn(ctx context.Context, token, from solana.PublicKey, amount uint64) error
	// Transfer moves amount of the native unit between accounts.
	Transfer(ctx context.Context, from, to solana.PublicKey, amount uint64) error
}

// Tx is a transactional view over protocol state. Reads observe writes made
// earlier in the same transaction. Config and FeeAccount are singletons.
type Tx interface {
	Config(ctx context.Context) (*ProtocolConfig, error)
	SaveConfig(ctx context.Context, cfg *ProtocolConfig) error

	FeeAccount(ctx context.Context) (*FeeAccount, error)
	SaveFeeAccount(ctx context.Context, fa *FeeAccount) error

	Vault(ctx context.Context, owner solana.PublicKey) (*Vault, error)
	SaveVault(ctx context.Context, v *Vault) error

	Delegation(ctx context.Context, owner solana.PublicKey) (*Delegation, error)
	SaveDelegation(ctx context.Context, d *Delegation) error
}

// Store provides all-or-nothing persistence for protocol state. WithTx runs
// fn inside one transaction; if fn returns an error the transaction is
// rolled back and none of its writes survive.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
