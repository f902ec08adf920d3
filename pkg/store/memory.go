package store

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/savefi/ledger/pkg/protocol"
)

// MemoryStore is an in-process Store with real transaction semantics: each
// WithTx callback runs against a copy of the state under an exclusive lock,
// and the copy replaces the live state only if the callback returns nil.
// Used by the daemon's dev mode and throughout the tests.
type MemoryStore struct {
	mu    sync.Mutex
	state memoryState
}

type memoryState struct {
	config      *protocol.ProtocolConfig
	feeAccount  *protocol.FeeAccount
	vaults      map[solana.PublicKey]*protocol.Vault
	delegations map[solana.PublicKey]*protocol.Delegation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memoryState{
			vaults:      make(map[solana.PublicKey]*protocol.Vault),
			delegations: make(map[solana.PublicKey]*protocol.Delegation),
		},
	}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx protocol.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{state: s.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (st memoryState) clone() memoryState {
	out := memoryState{
		vaults:      make(map[solana.PublicKey]*protocol.Vault, len(st.vaults)),
		delegations: make(map[solana.PublicKey]*protocol.Delegation, len(st.delegations)),
	}
	if st.config != nil {
		c := *st.config
		out.config = &c
	}
	if st.feeAccount != nil {
		fa := *st.feeAccount
		out.feeAccount = &fa
	}
	for k, v := range st.vaults {
		cp := *v
		out.vaults[k] = &cp
	}
	for k, d := range st.delegations {
		cp := *d
		out.delegations[k] = &cp
	}
	return out
}

type memoryTx struct {
	state memoryState
}

func (t *memoryTx) Config(ctx context.Context) (*protocol.ProtocolConfig, error) {
	if t.state.config == nil {
		return nil, protocol.ErrNotFound
	}
	c := *t.state.config
	return &c, nil
}

func (t *memoryTx) SaveConfig(ctx context.Context, cfg *protocol.ProtocolConfig) error {
	c := *cfg
	t.state.config = &c
	return nil
}

func (t *memoryTx) FeeAccount(ctx context.Context) (*protocol.FeeAccount, error) {
	if t.state.feeAccount == nil {
		return nil, protocol.ErrNotFound
	}
	fa := *t.state.feeAccount
	return &fa, nil
}

func (t *memoryTx) SaveFeeAccount(ctx context.Context, fa *protocol.FeeAccount) error {
	cp := *fa
	t.state.feeAccount = &cp
	return nil
}

func (t *memoryTx) Vault(ctx context.Context, owner solana.PublicKey) (*protocol.Vault, error) {
	v, ok := t.state.vaults[owner]
	if !ok {
		return nil, protocol.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (t *memoryTx) SaveVault(ctx context.Context, v *protocol.Vault) error {
	cp := *v
	t.state.vaults[v.Owner] = &cp
	return nil
}

func (t *memoryTx) Delegation(ctx context.Context, owner solana.PublicKey) (*protocol.Delegation, error) {
	d, ok := t.state.delegations[owner]
	if !ok {
		return nil, protocol.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (t *memoryTx) SaveDelegation(ctx context.Context, d *protocol.Delegation) error {
	cp := *d
	t.state.delegations[d.Owner] = &cp
	return nil
}
