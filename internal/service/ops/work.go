package ops

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/meta"
	"github.com/tinoosan/tillbook/internal/storage"
)

// Work is one attempt of a logical operation. It is not safe for concurrent use.
type Work struct {
	ctx  context.Context
	tx   storage.Tx
	op   Op
	opID uuid.UUID
	now  time.Time
	date time.Time

	entries []ledger.JournalEntry
	steps   []string
	// moved is each account's balance delta; journaled is the signed sum of
	// the entries that must explain it.
	moved     map[uuid.UUID]ledger.Money
	journaled map[uuid.UUID]ledger.Money
	names     map[uuid.UUID]string
}

func newWork(ctx context.Context, tx storage.Tx, op Op, opID uuid.UUID, now time.Time) *Work {
	date := op.Date
	if date.IsZero() {
		date = now
	}
	return &Work{
		ctx:       ctx,
		tx:        tx,
		op:        op,
		opID:      opID,
		now:       now,
		date:      ledger.BusinessDate(date),
		moved:     make(map[uuid.UUID]ledger.Money),
		journaled: make(map[uuid.UUID]ledger.Money),
		names:     make(map[uuid.UUID]string),
	}
}

func (w *Work) Context() context.Context { return w.ctx }
func (w *Work) Tx() storage.Tx { return w.tx }
func (w *Work) OperationID() uuid.UUID { return w.opID }
func (w *Work) Actor() Actor { return w.op.Actor }
func (w *Work) Now() time.Time { return w.now }
func (w *Work) Date() time.Time { return w.date }

// SetDate changes the business date stamped on subsequent entries.
func (w *Work) SetDate(t time.Time) { w.date = ledger.BusinessDate(t) }

// Step records a non-journal side effect for partial-application reports.
func (w *Work) Step(s string) { w.steps = append(w.steps, s) }

func (w *Work) Account(id uuid.UUID) (ledger.Account, error) {
	a, err := w.tx.Account(w.ctx, id)
	if err != nil {
		return ledger.Account{}, err
	}
	w.names[id] = a.Name
	return a, nil
}

// Credit moves amount into the account with an income entry.
func (w *Work) Credit(id uuid.UUID, amount ledger.Money, desc string, md meta.Metadata) (ledger.JournalEntry, error) {
	if amount < 0 {
		return ledger.JournalEntry{}, fmt.Errorf("%w: credit of %s", errs.ErrInvalidAmount, amount)
	}
	return w.Post(id, amount, desc, md)
}

// Debit moves amount out of the account with an expense entry.
func (w *Work) Debit(id uuid.UUID, amount ledger.Money, desc string, md meta.Metadata) (ledger.JournalEntry, error) {
	if amount < 0 {
		return ledger.JournalEntry{}, fmt.Errorf("%w: debit of %s", errs.ErrInvalidAmount, amount)
	}
	return w.Post(id, -amount, desc, md)
}

// Post applies signed to the balance and journals it. Zero is a no-op.
func (w *Work) Post(id uuid.UUID, signed ledger.Money, desc string, md meta.Metadata) (ledger.JournalEntry, error) {
	if signed == 0 {
		return ledger.JournalEntry{}, nil
	}
	acc, err := w.activeAccount(id)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if _, err := w.tx.ApplyDelta(w.ctx, id, signed); err != nil {
		return ledger.JournalEntry{}, err
	}
	w.moved[id] += signed
	return w.append(acc, signed, desc, md, true)
}

// ForceBalance overwrites the balance and returns the previous one. The
// difference must be journaled with Journal in the same operation.
func (w *Work) ForceBalance(id uuid.UUID, target ledger.Money) (ledger.Money, error) {
	if _, err := w.activeAccount(id); err != nil {
		return 0, err
	}
	prev, err := w.tx.SetBalance(w.ctx, id, target)
	if err != nil {
		return 0, err
	}
	w.moved[id] += target - prev
	w.Step("force " + id.String())
	return prev, nil
}

// Journal appends an entry for a movement already applied by ForceBalance.
func (w *Work) Journal(id uuid.UUID, signed ledger.Money, desc string, md meta.Metadata) (ledger.JournalEntry, error) {
	if signed == 0 {
		return ledger.JournalEntry{}, nil
	}
	acc, err := w.Account(id)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	return w.append(acc, signed, desc, md, true)
}

// Insert appends a prepared entry without touching the balance and without
// counting it against the operation's deltas. Repairs and raw journal
// appends go through here.
func (w *Work) Insert(e ledger.JournalEntry) (ledger.JournalEntry, error) {
	acc, err := w.Account(e.AccountID)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	return w.append(acc, e.Signed(), e.Description, e.Metadata, false)
}

func (w *Work) activeAccount(id uuid.UUID) (ledger.Account, error) {
	acc, err := w.Account(id)
	if err != nil {
		return ledger.Account{}, err
	}
	if !acc.Active {
		return ledger.Account{}, fmt.Errorf("%w: %s", errs.ErrAccountInactive, acc.Name)
	}
	return acc, nil
}

func (w *Work) append(acc ledger.Account, signed ledger.Money, desc string, md meta.Metadata, counted bool) (ledger.JournalEntry, error) {
	kind, amount := ledger.KindFor(signed)
	m := meta.Of(meta.KeyOperation, w.op.Name, meta.KeyActorRole, w.op.Actor.Role)
	m.Merge(md)
	e := ledger.JournalEntry{
		ID:          uuid.New(),
		AccountID:   acc.ID,
		AccountName: acc.Name,
		Kind:        kind,
		Amount:      amount,
		Date:        w.date,
		PostedAt:    w.now,
		Actor:       w.op.Actor.Name,
		Description: desc,
		Status:      ledger.EntryStatusPosted,
		OperationID: w.opID,
		Metadata:    m,
	}
	if err := e.Validate(); err != nil {
		return ledger.JournalEntry{}, err
	}
	if err := w.tx.AppendEntry(w.ctx, e); err != nil {
		return ledger.JournalEntry{}, err
	}
	if counted {
		w.journaled[acc.ID] += signed
	}
	w.entries = append(w.entries, e)
	w.steps = append(w.steps, desc)
	return e, nil
}

// verify fails when any account moved by something other than its entries.
func (w *Work) verify() error {
	ids := make([]uuid.UUID, 0, len(w.moved))
	for id := range w.moved {
		ids = append(ids, id)
	}
	for id := range w.journaled {
		if _, ok := w.moved[id]; !ok {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	var out []errs.Discrepancy
	for _, id := range ids {
		moved, journaled := w.moved[id], w.journaled[id]
		if moved == journaled {
			continue
		}
		out = append(out, errs.Discrepancy{
			AccountID:   id,
			AccountName: w.names[id],
			LedgerSum:   journaled.Minor(),
			Balance:     moved.Minor(),
			Difference:  (moved - journaled).Minor(),
		})
	}
	if len(out) > 0 {
		return &errs.IntegrityError{Discrepancies: out}
	}
	return nil
}
