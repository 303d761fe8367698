package memory

import (
	"context"
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/code-payments/tokadapt-server/pkg/bank"
)

type txContextKey struct{}

// tx is a copy-on-write overlay over the committed state. Committed versions
// observed by the transaction are re-checked at commit time.
type tx struct {
	observed   map[string]uint64
	writes     map[string]*bank.Account
	signatures map[string]struct{}
}

type store struct {
	mu         sync.Mutex
	accounts   map[string]*bank.Account
	signatures map[string]struct{}
}

// New returns a new in memory bank.Store
func New() bank.Store {
	return &store{
		accounts:   make(map[string]*bank.Account),
		signatures: make(map[string]struct{}),
	}
}

// ExecuteInTx implements bank.Store.ExecuteInTx
func (s *store) ExecuteInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txContextKey{}) != nil {
		return bank.ErrAlreadyInTx
	}

	t := &tx{
		observed:   make(map[string]uint64),
		writes:     make(map[string]*bank.Account),
		signatures: make(map[string]struct{}),
	}

	if err := fn(context.WithValue(ctx, txContextKey{}, t)); err != nil {
		return err
	}

	return s.commit(t)
}

// Get implements bank.Store.Get
func (s *store) Get(ctx context.Context, address ed25519.PublicKey) (*bank.Account, error) {
	t := getTx(ctx)
	if t == nil {
		s.mu.Lock()
		defer s.mu.Unlock()

		if item, ok := s.accounts[string(address)]; ok {
			return item.Clone(), nil
		}
		return nil, bank.ErrAccountNotFound
	}

	if item, ok := t.writes[string(address)]; ok {
		if item == nil {
			return nil, bank.ErrAccountNotFound
		}
		return item.Clone(), nil
	}

	item := s.observe(t, address)
	if item == nil {
		return nil, bank.ErrAccountNotFound
	}
	return item, nil
}

// Save implements bank.Store.Save
func (s *store) Save(ctx context.Context, account *bank.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	t := getTx(ctx)
	if t == nil {
		return s.ExecuteInTx(ctx, func(ctx context.Context) error {
			return s.Save(ctx, account)
		})
	}

	if account.IsEmpty() {
		return s.Delete(ctx, account.Address)
	}

	var version uint64
	if pending, ok := t.writes[string(account.Address)]; ok && pending != nil {
		version = pending.Version
	} else {
		s.observe(t, account.Address)
		version = t.observed[string(account.Address)]
	}

	account.Version = version + 1
	account.LastUpdatedAt = time.Now()
	t.writes[string(account.Address)] = account.Clone()

	return nil
}

// Delete implements bank.Store.Delete
func (s *store) Delete(ctx context.Context, address ed25519.PublicKey) error {
	t := getTx(ctx)
	if t == nil {
		return s.ExecuteInTx(ctx, func(ctx context.Context) error {
			return s.Delete(ctx, address)
		})
	}

	s.observe(t, address)
	t.writes[string(address)] = nil

	return nil
}

// MarkSignatureProcessed implements bank.Store.MarkSignatureProcessed
func (s *store) MarkSignatureProcessed(ctx context.Context, signature string) error {
	t := getTx(ctx)
	if t == nil {
		return s.ExecuteInTx(ctx, func(ctx context.Context) error {
			return s.MarkSignatureProcessed(ctx, signature)
		})
	}

	if _, ok := t.signatures[signature]; ok {
		return bank.ErrSignatureProcessed
	}

	s.mu.Lock()
	_, ok := s.signatures[signature]
	s.mu.Unlock()
	if ok {
		return bank.ErrSignatureProcessed
	}

	t.signatures[signature] = struct{}{}
	return nil
}

// observe reads the committed account, recording its version the first time
// the transaction sees it.
func (s *store) observe(t *tx, address ed25519.PublicKey) *bank.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.accounts[string(address)]

	if _, seen := t.observed[string(address)]; !seen {
		var version uint64
		if ok {
			version = item.Version
		}
		t.observed[string(address)] = version
	}

	if !ok {
		return nil
	}
	return item.Clone()
}

func (s *store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for address, version := range t.observed {
		var current uint64
		if item, ok := s.accounts[address]; ok {
			current = item.Version
		}
		if current != version {
			return bank.ErrStaleAccount
		}
	}

	for signature := range t.signatures {
		if _, ok := s.signatures[signature]; ok {
			return bank.ErrSignatureProcessed
		}
	}

	for address, item := range t.writes {
		if item == nil {
			delete(s.accounts, address)
			continue
		}
		s.accounts[address] = item
	}

	for signature := range t.signatures {
		s.signatures[signature] = struct{}{}
	}

	return nil
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = make(map[string]*bank.Account)
	s.signatures = make(map[string]struct{})
}

func getTx(ctx context.Context) *tx {
	t, _ := ctx.Value(txContextKey{}).(*tx)
	return t
}
