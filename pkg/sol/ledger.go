package sol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/jonboulle/clockwork"

	"github.com/savefi/ledger/utils/pkg/retry"
)

// RPC is the subset of the Solana RPC client the ledger uses.
type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts solanarpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*solanarpc.GetSignatureStatusesResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment solanarpc.CommitmentType) (*solanarpc.GetBalanceResult, error)
}

// Config holds the on-chain ledger configuration. Authority is the custodial
// keypair: it pays transaction fees and is the mint authority of the savings
// token. Signers carries the keypairs of the other custodied accounts
// (escrow, fee vault, user deposit accounts) so transfers out of them can be
// signed.
type Config struct {
	Logger    *slog.Logger
	Clock     clockwork.Clock
	RPC       RPC
	Authority solana.PrivateKey
	Signers   []solana.PrivateKey

	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	Retry          retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.RPC == nil {
		return errors.New("rpc client is required")
	}
	if cfg.Authority == nil {
		return errors.New("authority keypair is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Ledger moves funds on Solana. Every movement is one transaction signed by
// the custodial authority, submitted and polled until it confirms.
type Ledger struct {
	log *slog.Logger
	cfg Config
}

func NewLedger(cfg Config) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ledger{log: cfg.Logger, cfg: cfg}, nil
}

// Mint mints amount of the savings token into to's associated token account.
func (l *Ledger) Mint(ctx context.Context, mint, to solana.PublicKey, amount uint64) error {
	dest, _, err := solana.FindAssociatedTokenAddress(to, mint)
	if err != nil {
		return fmt.Errorf("failed to derive token account: %w", err)
	}

	ix := token.NewMintToInstruction(
		amount, mint, dest, l.cfg.Authority.PublicKey(), nil,
	).Build()

	return l.submit(ctx, "mint", ix)
}

// Burn burns amount of the savings token from from's associated token
// account. The custodial authority is the account owner.
func (l *Ledger) Burn(ctx context.Context, mint, from solana.PublicKey, amount uint64) error {
	source, _, err := solana.FindAssociatedTokenAddress(from, mint)
	if err != nil {
		return fmt.Errorf("failed to derive token account: %w", err)
	}

	ix := token.NewBurnInstruction(
		amount, source, mint, l.cfg.Authority.PublicKey(), nil,
	).Build()

	return l.submit(ctx, "burn", ix)
}

// Transfer moves amount lamports between custodied accounts.
func (l *Ledger) Transfer(ctx context.Context, from, to solana.PublicKey, amount uint64) error {
	ix := system.NewTransferInstruction(amount, from, to).Build()
	return l.submit(ctx, "transfer", ix)
}

// Balance returns the lamport balance of an account. Used by readiness
// checks against the escrow.
func (l *Ledger) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	res, err := l.cfg.RPC.GetBalance(ctx, account, solanarpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return res.Value, nil
}

// submit signs, sends, and confirms one instruction. Retries pull a fresh
// blockhash each attempt so an expired one does not poison the whole call.
func (l *Ledger) submit(ctx context.Context, kind string, ix solana.Instruction) error {
	return retry.Do(ctx, l.cfg.Retry, func() error {
		sig, err := l.send(ctx, ix)
		if err != nil {
			return err
		}

		l.log.Debug("sol: transaction sent", "kind", kind, "signature", sig.String())
		if err := l.confirm(ctx, sig); err != nil {
			return fmt.Errorf("failed to confirm %s transaction %s: %w", kind, sig, err)
		}
		return nil
	})
}

func (l *Ledger) send(ctx context.Context, ix solana.Instruction) (solana.Signature, error) {
	blockhash, err := l.cfg.RPC.GetLatestBlockhash(ctx, solanarpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		blockhash.Value.Blockhash,
		solana.TransactionPayer(l.cfg.Authority.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to build transaction: %w", err)
	}

	_, err = tx.Sign(l.signerFor)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := l.cfg.RPC.SendTransactionWithOpts(ctx, tx, solanarpc.TransactionOpts{
		PreflightCommitment: solanarpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

func (l *Ledger) signerFor(key solana.PublicKey) *solana.PrivateKey {
	if key.Equals(l.cfg.Authority.PublicKey()) {
		return &l.cfg.Authority
	}
	for i := range l.cfg.Signers {
		if key.Equals(l.cfg.Signers[i].PublicKey()) {
			return &l.cfg.Signers[i]
		}
	}
	return nil
}

func (l *Ledger) confirm(ctx context.Context, sig solana.Signature) error {
	deadline := l.cfg.Clock.Now().Add(l.cfg.ConfirmTimeout)

	for {
		res, err := l.cfg.RPC.GetSignatureStatuses(ctx, true, sig)
		if err == nil && len(res.Value) > 0 && res.Value[0] != nil {
			status := res.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction failed on chain: %v", status.Err)
			}
			switch status.ConfirmationStatus {
			case solanarpc.ConfirmationStatusConfirmed, solanarpc.ConfirmationStatusFinalized:
				return nil
			}
		}

		if l.cfg.Clock.Now().After(deadline) {
			return errors.New("timeout waiting for confirmation")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.cfg.Clock.After(l.cfg.PollInterval):
		}
	}
}
