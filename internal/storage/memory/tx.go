package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
)

// tx stages one operation's writes on top of the committed state.
type tx struct {
	s    *Store
	held map[uuid.UUID]struct{}

	accounts    map[uuid.UUID]ledger.Account
	receivables map[uuid.UUID]ledger.ReceivableTransaction
	customers   map[uuid.UUID]ledger.Customer
	bills       map[uuid.UUID]ledger.PayableBill
	created     map[uuid.UUID]struct{}
	entries     []ledger.JournalEntry
	sessions    []ledger.ShiftSession
}

func newTx(s *Store, keys []uuid.UUID) *tx {
	held := make(map[uuid.UUID]struct{}, len(keys))
	for _, k := range keys {
		held[k] = struct{}{}
	}
	return &tx{
		s:           s,
		held:        held,
		accounts:    make(map[uuid.UUID]ledger.Account),
		receivables: make(map[uuid.UUID]ledger.ReceivableTransaction),
		customers:   make(map[uuid.UUID]ledger.Customer),
		bills:       make(map[uuid.UUID]ledger.PayableBill),
		created:     make(map[uuid.UUID]struct{}),
	}
}

func (t *tx) requireHeld(id uuid.UUID) error {
	if _, ok := t.held[id]; !ok {
		return fmt.Errorf("memory: %s written without holding its lock", id)
	}
	return nil
}

func (t *tx) Account(_ context.Context, id uuid.UUID) (ledger.Account, error) {
	if a, ok := t.accounts[id]; ok {
		return a, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	a, ok := t.s.accounts[id]
	if !ok {
		return ledger.Account{}, fmt.Errorf("account %s: %w", id, errs.ErrNotFound)
	}
	return a, nil
}

func (t *tx) AccountsByType(_ context.Context, at ledger.AccountType) ([]ledger.Account, error) {
	t.s.mu.RLock()
	out := make([]ledger.Account, 0)
	for id, a := range t.s.accounts {
		if staged, ok := t.accounts[id]; ok {
			a = staged
		}
		if a.Type == at {
			out = append(out, a)
		}
	}
	t.s.mu.RUnlock()
	return out, nil
}

func (t *tx) ApplyDelta(ctx context.Context, id uuid.UUID, signed ledger.Money) (ledger.Money, error) {
	if err := t.requireHeld(id); err != nil {
		return 0, err
	}
	a, err := t.Account(ctx, id)
	if err != nil {
		return 0, err
	}
	a.CurrentBalance += signed
	t.accounts[id] = a
	return a.CurrentBalance, nil
}

func (t *tx) SetBalance(ctx context.Context, id uuid.UUID, balance ledger.Money) (ledger.Money, error) {
	if err := t.requireHeld(id); err != nil {
		return 0, err
	}
	a, err := t.Account(ctx, id)
	if err != nil {
		return 0, err
	}
	prev := a.CurrentBalance
	a.CurrentBalance = balance
	t.accounts[id] = a
	return prev, nil
}

func (t *tx) AppendEntry(ctx context.Context, e ledger.JournalEntry) error {
	if err := t.requireHeld(e.AccountID); err != nil {
		return err
	}
	if _, err := t.Account(ctx, e.AccountID); err != nil {
		return err
	}
	e.Metadata = e.Metadata.Clone()
	t.entries = append(t.entries, e)
	return nil
}

func (t *tx) JournalTotal(_ context.Context, accountID uuid.UUID) (ledger.Money, int, error) {
	var total ledger.Money
	t.s.mu.RLock()
	committed := t.s.entries[accountID]
	for _, e := range committed {
		total += e.Signed()
	}
	n := len(committed)
	t.s.mu.RUnlock()
	for _, e := range t.entries {
		if e.AccountID == accountID {
			total += e.Signed()
			n++
		}
	}
	return total, n, nil
}

func (t *tx) Receivable(_ context.Context, id uuid.UUID) (ledger.ReceivableTransaction, error) {
	if r, ok := t.receivables[id]; ok {
		return r, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	r, ok := t.s.receivables[id]
	if !ok {
		return ledger.ReceivableTransaction{}, fmt.Errorf("receivable %s: %w", id, errs.ErrNotFound)
	}
	return r, nil
}

func (t *tx) CreateReceivable(_ context.Context, r ledger.ReceivableTransaction) error {
	if _, staged := t.receivables[r.ID]; staged {
		return errs.ErrDuplicateID
	}
	t.receivables[r.ID] = r
	t.created[r.ID] = struct{}{}
	return nil
}

func (t *tx) UpdateReceivable(ctx context.Context, r ledger.ReceivableTransaction) error {
	if _, isNew := t.created[r.ID]; !isNew {
		if err := t.requireHeld(r.ID); err != nil {
			return err
		}
	}
	if _, err := t.Receivable(ctx, r.ID); err != nil {
		return err
	}
	t.receivables[r.ID] = r
	return nil
}

func (t *tx) Customer(_ context.Context, id uuid.UUID) (ledger.Customer, error) {
	if c, ok := t.customers[id]; ok {
		return c, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	c, ok := t.s.customers[id]
	if !ok {
		return ledger.Customer{}, fmt.Errorf("customer %s: %w", id, errs.ErrNotFound)
	}
	return c, nil
}

func (t *tx) UpdateCustomer(ctx context.Context, c ledger.Customer) error {
	if err := t.requireHeld(c.ID); err != nil {
		return err
	}
	if _, err := t.Customer(ctx, c.ID); err != nil {
		return err
	}
	t.customers[c.ID] = c
	return nil
}

func (t *tx) Vendor(_ context.Context, id uuid.UUID) (ledger.Vendor, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	v, ok := t.s.vendors[id]
	if !ok {
		return ledger.Vendor{}, fmt.Errorf("vendor %s: %w", id, errs.ErrNotFound)
	}
	return v, nil
}

func (t *tx) Bill(_ context.Context, id uuid.UUID) (ledger.PayableBill, error) {
	if b, ok := t.bills[id]; ok {
		return b, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	b, ok := t.s.bills[id]
	if !ok {
		return ledger.PayableBill{}, fmt.Errorf("bill %s: %w", id, errs.ErrNotFound)
	}
	return b, nil
}

func (t *tx) CreateBill(_ context.Context, b ledger.PayableBill) error {
	if _, staged := t.bills[b.ID]; staged {
		return errs.ErrDuplicateID
	}
	t.bills[b.ID] = b
	t.created[b.ID] = struct{}{}
	return nil
}

func (t *tx) UpdateBill(ctx context.Context, b ledger.PayableBill) error {
	if _, isNew := t.created[b.ID]; !isNew {
		if err := t.requireHeld(b.ID); err != nil {
			return err
		}
	}
	if _, err := t.Bill(ctx, b.ID); err != nil {
		return err
	}
	t.bills[b.ID] = b
	return nil
}

func (t *tx) CreateShiftSession(_ context.Context, s ledger.ShiftSession) error {
	t.sessions = append(t.sessions, s)
	return nil
}

func (t *tx) RoleMapping(_ context.Context) (ledger.RoleMapping, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.roles, nil
}

// commit applies the staged writes in one critical section. Creates are
// checked against committed ids first so a conflict applies nothing.
func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range t.created {
		_, r := s.receivables[id]
		_, b := s.bills[id]
		if r || b {
			return fmt.Errorf("%w: %s", errs.ErrDuplicateID, id)
		}
	}
	for _, sess := range t.sessions {
		if slices.ContainsFunc(s.sessions, func(x ledger.ShiftSession) bool { return x.ID == sess.ID }) {
			return fmt.Errorf("%w: shift session %s", errs.ErrDuplicateID, sess.ID)
		}
	}
	for id, staged := range t.accounts {
		// Only the balance is owned by the operation; name and status may
		// have moved since it was staged.
		a := s.accounts[id]
		a.CurrentBalance = staged.CurrentBalance
		s.accounts[id] = a
	}
	for id, r := range t.receivables {
		s.receivables[id] = r
	}
	for id, c := range t.customers {
		s.customers[id] = c
	}
	for id, b := range t.bills {
		s.bills[id] = b
	}
	for _, e := range t.entries {
		s.entries[e.AccountID] = append(s.entries[e.AccountID], e)
	}
	s.sessions = append(s.sessions, t.sessions...)
	return nil
}
