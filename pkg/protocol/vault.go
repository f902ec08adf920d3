package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Vault is a user's savings record: accumulated balance, savings policy, and
// the time lock that gates withdrawal. A vault is never deleted; withdrawal
// drains the balance and the record persists.
//
// The conceptual states (active, locked, expired) are derived from fields
// rather than stored as a tag: LockUntil in the future means savings-only,
// and a lapsed NextPaymentDue means the subscription must be renewed before
// trades resume.
type Vault struct {
	Owner          solana.PublicKey
	SavingsRate    uint8
	LockPeriodDays uint8
	Balance        uint64
	LockUntil      int64
	Active         bool
	NextPaymentDue int64

	DailySavings     uint64
	LastSavingsReset int64

	// EmergencyLocked is set by EmergencyWithdraw and blocks every further
	// vault operation that moves funds. Nothing in the protocol clears it;
	// a vault stays stuck after one emergency withdrawal.
	EmergencyLocked bool
}

// subscriptionLapsed reports whether the vault's subscription period has
// passed without renewal.
func (v *Vault) subscriptionLapsed(now int64) bool {
	return v.NextPaymentDue != 0 && now > v.NextPaymentDue
}

func validateVaultPolicy(savingsRate, lockDays uint8) error {
	if savingsRate < MinSaveRate || savingsRate > MaxSaveRate {
		return ErrInvalidSaveRate
	}
	if lockDays < MinLockDays || lockDays > MaxLockDays {
		return ErrInvalidLockPeriod
	}
	return nil
}

// InitializeVault creates the caller's vault with the given savings policy.
// Fails if the caller already has one.
func (e *Engine) InitializeVault(ctx context.Context, owner solana.PublicKey, savingsRate, lockDays uint8) error {
	if err := validateVaultPolicy(savingsRate, lockDays); err != nil {
		return err
	}
	now := e.now()

	err := e.cfg.Store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := requireNotPaused(ctx, tx); err != nil {
			return err
		}

		if _, err := tx.Vault(ctx, owner); err == nil {
			return ErrVaultAlreadyInitialized
		} else if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to load vault: %w", err)
		}

		return tx.SaveVault(ctx, &Vault{
			Owner:            owner,
			SavingsRate:      savingsRate,
			LockPeriodDays:   lockDays,
			Active:           true,
			NextPaymentDue:   now + int64(SubscriptionPeriodDays)*secondsPerDay,
			LastSavingsReset: now,
		})
	})
	if err != nil {
		return err
	}

	e.log.Info("vault: initialized",
		"owner", owner.String(), "savings_rate", savingsRate, "lock_days", lockDays)
	return nil
}

// UpdateVaultPolicy changes the caller's savings rate and lock period. The
// new lock period applies to future skims only; an already-running LockUntil
// is not recomputed.
func (e *Engine) UpdateVaultPolicy(ctx context.Context, caller solana.PublicKey, newRate, newLockDays uint8) error {
	if err := validateVaultPolicy(newRate, newLockDays); err != nil {
		return err
	}

	err := e.cfg.Store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := requireNotPaused(ctx, tx); err != nil {
			return err
		}
		v, err := e.ownedVault(ctx, tx, caller)
		if err != nil {
			return err
		}
		v.SavingsRate = newRate
		v.LockPeriodDays = newLockDays
		return tx.SaveVault(ctx, v)
	})
	if err != nil {
		return err
	}

	e.log.Info("vault: policy updated",
		"owner", caller.String(), "savings_rate", newRate, "lock_days", newLockDays)
	return nil
}

// Withdraw drains the caller's full savings balance once the time lock has
// expired. The balance is zeroed and saved before the external burn is
// issued, so a failing burn can only roll the whole transaction back, never
// leave funds spendable twice. Returns the withdrawn amount.
func (e *Engine) Withdraw(ctx context.Context, caller solana.PublicKey) (uint64, error) {
	now := e.now()

	var amount uint64
	err := e.cfg.Store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		cfg, err := requireNotPaused(ctx, tx)
		if err != nil {
			return err
		}
		v, err := e.ownedVault(ctx, tx, caller)
		if err != nil {
			return err
		}
		if v.EmergencyLocked {
			return ErrVaultLocked
		}
		if now < v.LockUntil {
			return ErrVaultLocked
		}
		if v.Balance == 0 {
			return ErrEmptyVault
		}

		amount = v.Balance
		v.Balance = 0
		if err := tx.SaveVault(ctx, v); err != nil {
			return fmt.Errorf("failed to save vault: %w", err)
		}

		return e.cfg.Ledger.Burn(ctx, cfg.SavingsToken, caller, amount)
	})
	if err != nil {
		return 0, err
	}

	e.log.Info("vault: withdrawn", "owner", caller.String(), "amount", amount)
	return amount, nil
}

// EmergencyWithdraw releases amount from the caller's vault before the time
// lock expires, at the cost of a 5% fee routed to the fee account's
// emergency accumulator. The vault is emergency-locked afterwards and no
// operation clears that flag.
func (e *Engine) EmergencyWithdraw(ctx context.Context, caller solana.PublicKey, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrEmptyVault
	}

	var payout uint64
	err := e.cfg.Store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		cfg, err := requireNotPaused(ctx, tx)
		if err != nil {
			return err
		}
		v, err := e.ownedVault(ctx, tx, caller)
		if err != nil {
			return err
		}
		if v.EmergencyLocked {
			return ErrVaultLocked
		}

		v.Balance, err = checkedSub(v.Balance, amount)
		if err != nil {
			return fmt.Errorf("emergency withdrawal of %d: %w", amount, err)
		}

		fee := ratePortion(amount, EmergencyFeeRate)
		payout, err = checkedSub(amount, fee)
		if err != nil {
			return err
		}

		if fee > 0 {
			fa, err := tx.FeeAccount(ctx)
			if err != nil {
				return fmt.Errorf("failed to load fee account: %w", err)
			}
			fa.CollectedFees, err = checkedAdd(fa.CollectedFees, fee)
			if err != nil {
				return err
			}
			if err := tx.SaveFeeAccount(ctx, fa); err != nil {
				return fmt.Errorf("failed to save fee account: %w", err)
			}
		}

		v.EmergencyLocked = true
		if err := tx.SaveVault(ctx, v); err != nil {
			return fmt.Errorf("failed to save vault: %w", err)
		}

		if payout > 0 {
			if err := e.cfg.Ledger.Transfer(ctx, e.cfg.EscrowAccount, caller, payout); err != nil {
				return err
			}
		}
		return e.cfg.Ledger.Burn(ctx, cfg.SavingsToken, caller, amount)
	})
	if err != nil {
		return 0, err
	}

	e.log.Warn("vault: emergency withdrawal",
		"owner", caller.String(), "amount", amount, "payout", payout)
	return payout, nil
}

// RenewSubscription charges the fixed subscription fee and reactivates the
// caller's vault for another subscription period.
func (e *Engine) RenewSubscription(ctx context.Context, caller solana.PublicKey) error {
	now := e.now()

	err := e.cfg.Store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		v, err := e.ownedVault(ctx, tx, caller)
		if err != nil {
			return err
		}

		if err := e.cfg.Ledger.Transfer(ctx, caller, e.cfg.FeeVaultAccount, SubscriptionFeeLamports); err != nil {
			return err
		}

		v.NextPaymentDue = now + int64(SubscriptionPeriodDays)*secondsPerDay
		v.Active = true
		return tx.SaveVault(ctx, v)
	})
	if err != nil {
		return err
	}

	e.log.Info("vault: subscription renewed", "owner", caller.String())
	return nil
}

// ownedVault loads the caller's vault. A missing vault is reported as
// ErrUnauthorized rather than ErrNotFound so probing for other users'
// vaults and having none are indistinguishable.
func (e *Engine) ownedVault(ctx context.Context, tx Tx, caller solana.PublicKey) (*Vault, error) {
	v, err := tx.Vault(ctx, caller)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to load vault: %w", err)
	}
	if v.Owner != caller {
		return nil, ErrUnauthorized
	}
	return v, nil
}
