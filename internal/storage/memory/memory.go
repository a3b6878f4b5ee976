// Package memory provides an in-memory store used for development and tests.
// Logical operations lock the records they write (per key, ascending order,
// bounded wait) and stage their changes; the staged set is applied in one
// step under the store mutex, so a failed operation leaves nothing behind.
package memory

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/storage"
)

// DefaultLockTimeout bounds how long an operation waits for its keys.
const DefaultLockTimeout = 2 * time.Second

// Store is an in-memory implementation of the repositories and the unit of work.
// It is guarded by an RWMutex for committed state and a lock table for operations.
type Store struct {
	mu          sync.RWMutex
	accounts    map[uuid.UUID]ledger.Account
	entries     map[uuid.UUID][]ledger.JournalEntry
	receivables map[uuid.UUID]ledger.ReceivableTransaction
	customers   map[uuid.UUID]ledger.Customer
	vendors     map[uuid.UUID]ledger.Vendor
	bills       map[uuid.UUID]ledger.PayableBill
	sessions    []ledger.ShiftSession
	roles       ledger.RoleMapping

	locks       *lockTable
	lockTimeout time.Duration
}

type Option func(*Store)

// WithLockTimeout overrides DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// New constructs an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{locks: newLockTable(), lockTimeout: DefaultLockTimeout}
	s.reset()
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) reset() {
	s.accounts = make(map[uuid.UUID]ledger.Account)
	s.entries = make(map[uuid.UUID][]ledger.JournalEntry)
	s.receivables = make(map[uuid.UUID]ledger.ReceivableTransaction)
	s.customers = make(map[uuid.UUID]ledger.Customer)
	s.vendors = make(map[uuid.UUID]ledger.Vendor)
	s.bills = make(map[uuid.UUID]ledger.PayableBill)
	s.sessions = nil
	s.roles = ledger.RoleMapping{}
}

// Reset drops all data. Locks held by in-flight operations are unaffected.
func (s *Store) Reset() { s.mu.Lock(); s.reset(); s.mu.Unlock() }

// Seed helpers for local dev/tests. They bypass validation and the journal.
func (s *Store) SeedAccount(a ledger.Account) { s.mu.Lock(); s.accounts[a.ID] = a; s.mu.Unlock() }
func (s *Store) SeedCustomer(c ledger.Customer) { s.mu.Lock(); s.customers[c.ID] = c; s.mu.Unlock() }
func (s *Store) SeedVendor(v ledger.Vendor) { s.mu.Lock(); s.vendors[v.ID] = v; s.mu.Unlock() }
func (s *Store) SeedBill(b ledger.PayableBill) { s.mu.Lock(); s.bills[b.ID] = b; s.mu.Unlock() }
func (s *Store) SeedReceivable(r ledger.ReceivableTransaction) {
	s.mu.Lock()
	s.receivables[r.ID] = r
	s.mu.Unlock()
}
func (s *Store) SeedRoles(m ledger.RoleMapping) { s.mu.Lock(); s.roles = m; s.mu.Unlock() }

// Atomically implements storage.Atomic.
func (s *Store) Atomically(ctx context.Context, keys []uuid.UUID, fn func(storage.Tx) error) error {
	keys = storage.SortKeys(keys)
	release, err := s.locks.acquire(ctx, keys, s.lockTimeout)
	if err != nil {
		return err
	}
	defer release()
	tx := newTx(s, keys)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// --- Accounts ---

// GetAccount returns an account by id.
func (s *Store) GetAccount(_ context.Context, id uuid.UUID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, nil
}

// ListAccounts returns every account ordered by type then name.
func (s *Store) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	out := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b ledger.Account) int {
		return cmp.Or(cmp.Compare(a.Type, b.Type), cmp.Compare(a.Name, b.Name))
	})
	return out, nil
}

// CreateAccount persists a new account.
func (s *Store) CreateAccount(_ context.Context, a ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[a.ID]; exists {
		return ledger.Account{}, errs.ErrDuplicateID
	}
	s.accounts[a.ID] = a
	return a, nil
}

// UpdateAccount persists descriptive changes (name, active, metadata).
// Balances only move through Atomically.
func (s *Store) UpdateAccount(_ context.Context, a ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.accounts[a.ID]
	if !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	cur.Name = a.Name
	cur.Active = a.Active
	cur.Metadata = a.Metadata.Clone()
	s.accounts[a.ID] = cur
	return cur, nil
}

// --- Journal ---

// EntriesForAccount yields the account's entries newest first. The snapshot
// is taken when iteration starts; account names are refreshed from the account.
func (s *Store) EntriesForAccount(_ context.Context, accountID uuid.UUID) iter.Seq2[ledger.JournalEntry, error] {
	return func(yield func(ledger.JournalEntry, error) bool) {
		s.mu.RLock()
		name := s.accounts[accountID].Name
		snap := slices.Clone(s.entries[accountID])
		s.mu.RUnlock()
		slices.SortStableFunc(snap, newestFirst)
		for _, e := range snap {
			if name != "" {
				e.AccountName = name
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

func newestFirst(a, b ledger.JournalEntry) int {
	return cmp.Or(b.Date.Compare(a.Date), b.PostedAt.Compare(a.PostedAt))
}

// --- Receivables ---

func (s *Store) GetReceivable(_ context.Context, id uuid.UUID) (ledger.ReceivableTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receivables[id]
	if !ok {
		return ledger.ReceivableTransaction{}, errs.ErrNotFound
	}
	return r, nil
}

// ListReceivables returns matching receivables newest first.
func (s *Store) ListReceivables(_ context.Context, f storage.ReceivableFilter) ([]ledger.ReceivableTransaction, error) {
	s.mu.RLock()
	out := make([]ledger.ReceivableTransaction, 0)
	for _, r := range s.receivables {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b ledger.ReceivableTransaction) int {
		return cmp.Or(b.Date.Compare(a.Date), b.CreatedAt.Compare(a.CreatedAt))
	})
	return out, nil
}

// --- Customers and vendors ---

func (s *Store) CreateCustomer(_ context.Context, c ledger.Customer) (ledger.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.customers[c.ID]; exists {
		return ledger.Customer{}, errs.ErrDuplicateID
	}
	s.customers[c.ID] = c
	return c, nil
}

func (s *Store) GetCustomer(_ context.Context, id uuid.UUID) (ledger.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return ledger.Customer{}, errs.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]ledger.Customer, error) {
	s.mu.RLock()
	out := make([]ledger.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, c)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b ledger.Customer) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) CreateVendor(_ context.Context, v ledger.Vendor) (ledger.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.vendors[v.ID]; exists {
		return ledger.Vendor{}, errs.ErrDuplicateID
	}
	s.vendors[v.ID] = v
	return v, nil
}

func (s *Store) GetVendor(_ context.Context, id uuid.UUID) (ledger.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vendors[id]
	if !ok {
		return ledger.Vendor{}, errs.ErrNotFound
	}
	return v, nil
}

func (s *Store) ListVendors(_ context.Context) ([]ledger.Vendor, error) {
	s.mu.RLock()
	out := make([]ledger.Vendor, 0, len(s.vendors))
	for _, v := range s.vendors {
		out = append(out, v)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b ledger.Vendor) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// --- Bills ---

func (s *Store) GetBill(_ context.Context, id uuid.UUID) (ledger.PayableBill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bills[id]
	if !ok {
		return ledger.PayableBill{}, errs.ErrNotFound
	}
	return b, nil
}

// ListBills returns bills by due date; an empty status matches all.
func (s *Store) ListBills(_ context.Context, status ledger.BillStatus) ([]ledger.PayableBill, error) {
	s.mu.RLock()
	out := make([]ledger.PayableBill, 0)
	for _, b := range s.bills {
		if status == "" || b.Status == status {
			out = append(out, b)
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b ledger.PayableBill) int {
		return cmp.Or(a.DueDate.Compare(b.DueDate), a.CreatedAt.Compare(b.CreatedAt))
	})
	return out, nil
}

// --- Shift sessions ---

// ListShiftSessions returns closed shifts, most recent first.
func (s *Store) ListShiftSessions(_ context.Context) ([]ledger.ShiftSession, error) {
	s.mu.RLock()
	out := slices.Clone(s.sessions)
	s.mu.RUnlock()
	slices.SortStableFunc(out, func(a, b ledger.ShiftSession) int { return b.ClosedAt.Compare(a.ClosedAt) })
	return out, nil
}

// --- Settings ---

func (s *Store) RoleMapping(_ context.Context) (ledger.RoleMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles, nil
}

func (s *Store) SaveRoleMapping(_ context.Context, m ledger.RoleMapping) error {
	s.mu.Lock()
	s.roles = m
	s.mu.Unlock()
	return nil
}
