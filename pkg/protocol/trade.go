package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// TradeReceipt reports how a processed trade was split and the resulting
// vault and delegation state.
type TradeReceipt struct {
	TradeAmount         uint64 `json:"trade_amount"`
	SaveAmount          uint64 `json:"save_amount"`
	FeeAmount           uint64 `json:"fee_amount"`
	Remaining           uint64 `json:"remaining"`
	LockUntil           int64  `json:"lock_until"`
	DelegationRemaining uint64 `json:"delegation_remaining"`
}

// ProcessTrade runs the savings pipeline for one trade: skim the vault's
// savings percentage into locked savings, deduct the protocol fee, forward
// the remainder to destination, and draw the full trade amount down from the
// owner's delegation. Everything happens inside one store transaction, so a
// failure at any step (including a ledger failure) leaves no partial state.
//
// The split is computed sequentially on the original amount: save first,
// then fee, then remaining = amount - save - fee.
func (e *Engine) ProcessTrade(ctx context.Context, owner, destination solana.PublicKey, amount uint64) (*TradeReceipt, error) {
	// The guard is taken before the store transaction opens so a reentrant
	// trade fails fast instead of queueing behind the first one's
	// transaction.
	if err := e.locks.TryLock(owner); err != nil {
		return nil, err
	}
	defer e.locks.Unlock(owner)

	now := e.now()

	var receipt *TradeReceipt
	err := e.cfg.Store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		cfg, err := requireNotPaused(ctx, tx)
		if err != nil {
			return err
		}

		fa, err := tx.FeeAccount(ctx)
		if err != nil {
			return fmt.Errorf("failed to load fee account: %w", err)
		}
		if fa.EmergencyMode {
			return ErrEmergencyModeActive
		}

		v, err := tx.Vault(ctx, owner)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrVaultInactive
			}
			return fmt.Errorf("failed to load vault: %w", err)
		}
		if !v.Active || v.subscriptionLapsed(now) {
			return ErrVaultInactive
		}
		if v.EmergencyLocked {
			return ErrVaultLocked
		}

		if amount < MinTradeSize {
			return ErrTradeTooSmall
		}
		if amount > MaxTradeSize {
			return ErrTradeTooLarge
		}

		d, err := tx.Delegation(ctx, owner)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrInvalidSaveAmount
			}
			return fmt.Errorf("failed to load delegation: %w", err)
		}
		if amount > d.DelegatedAmount {
			return ErrInvalidSaveAmount
		}
		if now > d.DelegationExpiry {
			return ErrDelegationExpired
		}

		if now-v.LastSavingsReset >= secondsPerDay {
			v.DailySavings = 0
			v.LastSavingsReset = now
		}

		save := ratePortion(amount, v.SavingsRate)
		newDaily, err := checkedAdd(v.DailySavings, save)
		if err != nil || newDaily > MaxSavingsPerDay {
			return ErrDailySavingsLimit
		}

		if save > 0 {
			v.Balance, err = checkedAdd(v.Balance, save)
			if err != nil {
				return err
			}
			v.DailySavings = newDaily
			v.LockUntil = now + int64(v.LockPeriodDays)*secondsPerDay
			if err := e.cfg.Ledger.Mint(ctx, cfg.SavingsToken, owner, save); err != nil {
				return err
			}
		}

		fee := ratePortion(amount, fa.FeeRate)
		if fee > 0 {
			fa.Balance, err = checkedAdd(fa.Balance, fee)
			if err != nil {
				return err
			}
			if err := e.cfg.Ledger.Transfer(ctx, e.cfg.EscrowAccount, e.cfg.FeeVaultAccount, fee); err != nil {
				return err
			}
		}

		afterSave, err := checkedSub(amount, save)
		if err != nil {
			return err
		}
		remaining, err := checkedSub(afterSave, fee)
		if err != nil {
			return err
		}
		if remaining > 0 {
			if err := e.cfg.Ledger.Transfer(ctx, e.cfg.EscrowAccount, destination, remaining); err != nil {
				return err
			}
		}

		d.DelegatedAmount, err = checkedSub(d.DelegatedAmount, amount)
		if err != nil {
			return err
		}

		if err := tx.SaveVault(ctx, v); err != nil {
			return fmt.Errorf("failed to save vault: %w", err)
		}
		if err := tx.SaveFeeAccount(ctx, fa); err != nil {
			return fmt.Errorf("failed to save fee account: %w", err)
		}
		if err := tx.SaveDelegation(ctx, d); err != nil {
			return fmt.Errorf("failed to save delegation: %w", err)
		}

		receipt = &TradeReceipt{
			TradeAmount:         amount,
			SaveAmount:          save,
			FeeAmount:           fee,
			Remaining:           remaining,
			LockUntil:           v.LockUntil,
			DelegationRemaining: d.DelegatedAmount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("trade: processed",
		"owner", owner.String(),
		"amount", receipt.TradeAmount,
		"saved", receipt.SaveAmount,
		"fee", receipt.FeeAmount,
		"remaining", receipt.Remaining)
	return receipt, nil
}
