package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Delegation is the standing authorization that lets the trade pipeline spend
// on a user's behalf. Funds move into escrow when the delegation is created
// and back out when it is revoked; ProcessTrade draws the full trade amount
// down from DelegatedAmount.
type Delegation struct {
	Owner            solana.PublicKey
	DelegatedAmount  uint64
	DelegationExpiry int64
}

// DelegateFunds escrows amount and records a spending authorization for the
// caller, valid for lockDays. An existing delegation is replaced, not topped
// up; the previous remainder is returned to the caller first.
func (e *Engine) DelegateFunds(ctx context.Context, caller solana.PublicKey, amount uint64, lockDays uint8) error {
	if amount < MinDelegationLamports || amount > MaxDelegationLamports {
		return ErrInvalidDelegationAmount
	}
	if lockDays < MinLockDays || lockDays > MaxLockDays {
		return ErrInvalidLockPeriod
	}
	now := e.now()

	err := e.cfg.Store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := requireNotPaused(ctx, tx); err != nil {
			return err
		}

		prev, err := tx.Delegation(ctx, caller)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to load delegation: %w", err)
		}
		if prev != nil && prev.DelegatedAmount > 0 {
			if err := e.cfg.Ledger.Transfer(ctx, e.cfg.EscrowAccount, caller, prev.DelegatedAmount); err != nil {
				return err
			}
		}

		if err := tx.SaveDelegation(ctx, &Delegation{
			Owner:            caller,
			DelegatedAmount:  amount,
			DelegationExpiry: now + int64(lockDays)*secondsPerDay,
		}); err != nil {
			return fmt.Errorf("failed to save delegation: %w", err)
		}

		return e.cfg.Ledger.Transfer(ctx, caller, e.cfg.EscrowAccount, amount)
	})
	if err != nil {
		return err
	}

	e.log.Info("delegation: funds delegated",
		"owner", caller.String(), "amount", amount, "lock_days", lockDays)
	return nil
}

// RevokeDelegation cancels the caller's delegation and refunds whatever has
// not been spent. Revocation is allowed even while the protocol is paused so
// users can always pull their funds back.
func (e *Engine) RevokeDelegation(ctx context.Context, caller solana.PublicKey) (uint64, error) {
	var refunded uint64
	err := e.cfg.Store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		d, err := tx.Delegation(ctx, caller)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrUnauthorized
			}
			return fmt.Errorf("failed to load delegation: %w", err)
		}
		if d.Owner != caller {
			return ErrUnauthorized
		}

		refunded = d.DelegatedAmount
		d.DelegatedAmount = 0
		d.DelegationExpiry = 0
		if err := tx.SaveDelegation(ctx, d); err != nil {
			return fmt.Errorf("failed to save delegation: %w", err)
		}

		if refunded > 0 {
			return e.cfg.Ledger.Transfer(ctx, e.cfg.EscrowAccount, caller, refunded)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.log.Info("delegation: revoked", "owner", caller.String(), "refunded", refunded)
	return refunded, nil
}
