package protocol

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// MovementKind discriminates the entries a MemoryLedger records.
type MovementKind string

const (
	MovementMint     MovementKind = "mint"
	MovementBurn     MovementKind = "burn"
	MovementTransfer MovementKind = "transfer"
)

// Movement is one recorded fund movement. Token is set for mints and burns
// only; transfers move lamports between accounts.
type Movement struct {
	Kind   MovementKind
	Token  solana.PublicKey
	From   solana.PublicKey
	To     solana.PublicKey
	Amount uint64
}

// MemoryLedger is an in-process Ledger that journals every movement instead
// of touching a chain. Used by the dev mode of the daemon and by tests that
// assert on the exact sequence of fund movements an operation produces.
type MemoryLedger struct {
	mu       sync.Mutex
	journal  []Movement
	MintFunc func(ctx context.Context, token, to solana.PublicKey, amount uint64) error
	BurnFunc func(ctx context.Context, token, from solana.PublicKey, amount uint64) error
	XferFunc func(ctx context.Context, from, to solana.PublicKey, amount uint64) error
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (l *MemoryLedger) Mint(ctx context.Context, token, to solana.PublicKey, amount uint64) error {
	if l.MintFunc != nil {
		if err := l.MintFunc(ctx, token, to, amount); err != nil {
			return err
		}
	}
	l.record(Movement{Kind: MovementMint, Token: token, To: to, Amount: amount})
	return nil
}

func (l *MemoryLedger) Burn(ctx context.Context, token, from solana.PublicKey, amount uint64) error {
	if l.BurnFunc != nil {
		if err := l.BurnFunc(ctx, token, from, amount); err != nil {
			return err
		}
	}
	l.record(Movement{Kind: MovementBurn, Token: token, From: from, Amount: amount})
	return nil
}

func (l *MemoryLedger) Transfer(ctx context.Context, from, to solana.PublicKey, amount uint64) error {
	if l.XferFunc != nil {
		if err := l.XferFunc(ctx, from, to, amount); err != nil {
			return err
		}
	}
	l.record(Movement{Kind: MovementTransfer, From: from, To: to, Amount: amount})
	return nil
}

func (l *MemoryLedger) record(m Movement) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.journal = append(l.journal, m)
}

// Journal returns a copy of every movement recorded so far, in order.
func (l *MemoryLedger) Journal() []Movement {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Movement, len(l.journal))
	copy(out, l.journal)
	return out
}

// Reset clears the journal.
func (l *MemoryLedger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.journal = nil
}
