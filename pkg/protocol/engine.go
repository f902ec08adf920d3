package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
)

// ProtocolConfig is the protocol-wide singleton: who administers the
// protocol, whether it is paused, and which token represents savings.
// The admin identity is immutable after InitializeProtocol.
type ProtocolConfig struct {
	Admin        solana.PublicKey
	Paused       bool
	SavingsToken solana.PublicKey
}

// Config carries the engine's collaborators and the two well-known accounts
// fund movements reference: the escrow that pools delegated funds and the
// fee vault that accumulates protocol fees.
type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Store  Store
	Ledger Ledger

	EscrowAccount   solana.PublicKey
	FeeVaultAccount solana.PublicKey
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Ledger == nil {
		return errors.New("ledger is required")
	}
	if cfg.EscrowAccount.IsZero() {
		return errors.New("escrow account is required")
	}
	if cfg.FeeVaultAccount.IsZero() {
		return errors.New("fee vault account is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Engine is the orchestration core. Every exported method is one protocol
// entry point: it authenticates the caller against stored identities,
// validates, mutates state inside one store transaction, and emits fund
// movements through the Ledger. No entry point leaves partial state behind
// on error.
type Engine struct {
	log   *slog.Logger
	cfg   Config
	clock clockwork.Clock
	locks *vaultLocks
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		log:   cfg.Logger,
		cfg:   cfg,
		clock: cfg.Clock,
		locks: newVaultLocks(),
	}, nil
}

// now returns the engine's view of wall-clock time as unix seconds. All
// expiry and lock math flows through this single source.
func (e *Engine) now() int64 {
	return e.clock.Now().Unix()
}

// InitializeProtocol bootstraps the singleton config and fee account. It can
// run exactly once; the admin identity is fixed forever after.
func (e *Engine) InitializeProtocol(ctx context.Context, admin, savingsToken solana.PublicKey, feeRate uint8) error {
	if admin.IsZero() {
		return fmt.Errorf("admin identity: %w", ErrUnauthorized)
	}
	if savingsToken.IsZero() {
		return errors.New("savings token is required")
	}
	if feeRate > MaxFeeRate {
		return ErrInvalidFeeRate
	}

	err := e.cfg.Store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Config(ctx); err == nil {
			return errors.New("protocol already initialized")
		} else if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := tx.SaveConfig(ctx, &ProtocolConfig{
			Admin:        admin,
			Paused:       false,
			SavingsToken: savingsToken,
		}); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		return tx.SaveFeeAccount(ctx, &FeeAccount{
			Authority: admin,
			FeeRate:   feeRate,
		})
	})
	if err != nil {
		return err
	}

	e.log.Info("protocol: initialized", "admin", admin.String(), "fee_rate", feeRate)
	return nil
}

// SetPaused toggles the global pause flag. Admin only.
func (e *Engine) SetPaused(ctx context.Context, caller solana.PublicKey, paused bool) error {
	err := e.cfg.Store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		cfg, err := tx.Config(ctx)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Admin != caller {
			return ErrUnauthorized
		}
		cfg.Paused = paused
		return tx.SaveConfig(ctx, cfg)
	})
	if err != nil {
		return err
	}

	e.log.Info("protocol: pause flag updated", "paused", paused)
	return nil
}

// requireNotPaused loads the config and rejects the operation while the
// protocol is paused.
func requireNotPaused(ctx context.Context, tx Tx) (*ProtocolConfig, error) {
	cfg, err := tx.Config(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Paused {
		return nil, ErrProtocolPaused
	}
	return cfg, nil
}
