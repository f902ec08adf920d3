package protocol

import (
	"sync"

	"github.com/gagliardetto/solana-go"
)

// vaultLocks is the reentrancy guard, scoped per vault owner so trades
// against different vaults never contend. TryLock either takes the lock or
// fails immediately with ErrReentrancyDetected; there is no queueing.
type vaultLocks struct {
	mu   sync.Mutex
	held map[solana.PublicKey]struct{}
}

func newVaultLocks() *vaultLocks {
	return &vaultLocks{held: make(map[solana.PublicKey]struct{})}
}

func (l *vaultLocks) TryLock(owner solana.PublicKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[owner]; ok {
		return ErrReentrancyDetected
	}
	l.held[owner] = struct{}{}
	return nil
}

func (l *vaultLocks) Unlock(owner solana.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, owner)
}
