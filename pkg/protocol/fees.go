package protocol

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// FeeAccount accumulates protocol fees and carries the fee-rate policy.
// Balance grows only through the trade-pipeline skim and shrinks only
// through admin collection. CollectedFees separately accumulates emergency
// withdrawal fees and is never drained by CollectFees.
type FeeAccount struct {
	Authority          solana.PublicKey
	Balance            uint64
	FeeRate            uint8
	LastCollectionTime int64
	EmergencyMode      bool
	CollectedFees      uint64
}

// SetFeeRate updates the trade fee rate. Authority only.
func (e *Engine) SetFeeRate(ctx context.Context, caller solana.PublicKey, newRate uint8) error {
	if newRate > MaxFeeRate {
		return ErrInvalidFeeRate
	}

	err := e.cfg.Store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		fa, err := tx.FeeAccount(ctx)
		if err != nil {
			return fmt.Errorf("failed to load fee account: %w", err)
		}
		if fa.Authority != caller {
			return ErrUnauthorized
		}
		fa.FeeRate = newRate
		return tx.SaveFeeAccount(ctx, fa)
	})
	if err != nil {
		return err
	}

	e.log.Info("fees: rate updated", "rate", newRate)
	return nil
}

// ToggleEmergencyMode flips the protocol-wide emergency flag and returns the
// new state. While emergency mode is on, ordinary trade processing is
// refused. Authority only.
func (e *Engine) ToggleEmergencyMode(ctx context.Context, caller solana.PublicKey) (bool, error) {
	var enabled bool
	err := e.cfg.Store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		fa, err := tx.FeeAccount(ctx)
		if err != nil {
			return fmt.Errorf("failed to load fee account: %w", err)
		}
		if fa.Authority != caller {
			return ErrUnauthorized
		}
		fa.EmergencyMode = !fa.EmergencyMode
		enabled = fa.EmergencyMode
		return tx.SaveFeeAccount(ctx, fa)
	})
	if err != nil {
		return false, err
	}

	e.log.Warn("fees: emergency mode toggled", "enabled", enabled)
	return enabled, nil
}

// CollectFees drains the accumulated fee balance to the authority. At most
// once per 24 hours, and only when there is something to collect. Returns
// the collected amount.
func (e *Engine) CollectFees(ctx context.Context, caller solana.PublicKey) (uint64, error) {
	now := e.now()

	var collected uint64
	err := e.cfg.Store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		fa, err := tx.FeeAccount(ctx)
		if err != nil {
			return fmt.Errorf("failed to load fee account: %w", err)
		}
		if fa.Authority != caller {
			return ErrUnauthorized
		}
		if now-fa.LastCollectionTime < feeCollectionCooldownSeconds {
			return ErrCollectionCooldown
		}
		if fa.Balance == 0 {
			return ErrEmptyVault
		}

		collected = fa.Balance
		fa.Balance = 0
		fa.LastCollectionTime = now
		if err := tx.SaveFeeAccount(ctx, fa); err != nil {
			return fmt.Errorf("failed to save fee account: %w", err)
		}

		return e.cfg.Ledger.Transfer(ctx, e.cfg.FeeVaultAccount, fa.Authority, collected)
	})
	if err != nil {
		return 0, err
	}

	e.log.Info("fees: collected", "amount", collected)
	return collected, nil
}
