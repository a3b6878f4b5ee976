// Package transfer moves money between accounts, records manual adjustments
// and posts expenses. Each call is one logical operation.
package transfer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/meta"
	"github.com/tinoosan/tillbook/internal/service/ops"
)

// Direction of a manual adjustment.
type Direction string

const (
	Add    Direction = "add"
	Remove Direction = "remove"
)

func (d Direction) Valid() bool {
	switch d {
	case Add, Remove:
		return true
	}
	return false
}

type Adjustment struct {
	AccountID uuid.UUID
	Direction Direction
	Amount    ledger.Money
	Reason    string
}

type Expense struct {
	SourceAccountID uuid.UUID
	Amount          ledger.Money
	Category        string
	Subcategory     string
	VendorID        uuid.UUID
	Note            string
	// DueDate applies to the bill raised for payable sources; zero means the business date.
	DueDate   time.Time
	Recurring bool
	Date      time.Time
}

type ExpenseResult struct {
	Receipt ops.Receipt
	// Bill is set when the source was a payable account.
	Bill *ledger.PayableBill
}

type Service interface {
	Transfer(ctx context.Context, from, to uuid.UUID, amount ledger.Money, note string, actor ops.Actor) (ops.Receipt, error)
	Adjust(ctx context.Context, adj Adjustment, actor ops.Actor) (ops.Receipt, error)
	PostExpense(ctx context.Context, exp Expense, actor ops.Actor) (ExpenseResult, error)
}

type service struct {
	runner *ops.Runner
}

func New(runner *ops.Runner) Service { return &service{runner: runner} }

func (s *service) Transfer(ctx context.Context, from, to uuid.UUID, amount ledger.Money, note string, actor ops.Actor) (ops.Receipt, error) {
	if from == to {
		return ops.Receipt{}, errs.ErrSameAccount
	}
	if amount <= 0 {
		return ops.Receipt{}, fmt.Errorf("%w: transfer amount must be > 0", errs.ErrInvalidAmount)
	}
	note = strings.TrimSpace(note)
	op := ops.Op{Name: "transfer", Actor: actor, Keys: []uuid.UUID{from, to}}
	return s.runner.Run(ctx, op, func(w *ops.Work) error {
		src, err := w.Account(from)
		if err != nil {
			return err
		}
		dst, err := w.Account(to)
		if err != nil {
			return err
		}
		if _, err := w.Debit(src.ID, amount, withNote("Transfer to "+dst.Name, note), nil); err != nil {
			return err
		}
		_, err = w.Credit(dst.ID, amount, withNote("Transfer from "+src.Name, note), nil)
		return err
	})
}

func withNote(desc, note string) string {
	if note == "" {
		return desc
	}
	return desc + ": " + note
}

// Adjust records a manual correction. The caller authorizes; the actor's role
// is kept in the entry metadata for audit.
func (s *service) Adjust(ctx context.Context, adj Adjustment, actor ops.Actor) (ops.Receipt, error) {
	reason := strings.TrimSpace(adj.Reason)
	switch {
	case reason == "":
		return ops.Receipt{}, fmt.Errorf("%w: adjustment reason is required", errs.ErrInvalid)
	case !adj.Direction.Valid():
		return ops.Receipt{}, fmt.Errorf("%w: direction must be add or remove", errs.ErrInvalid)
	case adj.Amount <= 0:
		return ops.Receipt{}, fmt.Errorf("%w: adjustment amount must be > 0", errs.ErrInvalidAmount)
	}
	signed := adj.Amount
	if adj.Direction == Remove {
		signed = -signed
	}
	op := ops.Op{Name: "adjust", Actor: actor, Keys: []uuid.UUID{adj.AccountID}}
	return s.runner.Run(ctx, op, func(w *ops.Work) error {
		_, err := w.Post(adj.AccountID, signed, "MANUAL ADJUSTMENT: "+reason, meta.Of(meta.KeyReason, reason))
		return err
	})
}

// PostExpense debits the source. A payable source also raises a pending bill
// for the vendor in the same operation.
func (s *service) PostExpense(ctx context.Context, exp Expense, actor ops.Actor) (ExpenseResult, error) {
	category := strings.TrimSpace(exp.Category)
	switch {
	case exp.SourceAccountID == uuid.Nil:
		return ExpenseResult{}, fmt.Errorf("%w: source account is required", errs.ErrInvalid)
	case category == "":
		return ExpenseResult{}, fmt.Errorf("%w: category is required", errs.ErrInvalid)
	case exp.Amount <= 0:
		return ExpenseResult{}, fmt.Errorf("%w: expense amount must be > 0", errs.ErrInvalidAmount)
	}
	var bill *ledger.PayableBill
	op := ops.Op{Name: "expense", Actor: actor, Keys: []uuid.UUID{exp.SourceAccountID}, Date: exp.Date}
	rec, err := s.runner.Run(ctx, op, func(w *ops.Work) error {
		bill = nil
		b, err := postExpense(w, exp)
		bill = b
		return err
	})
	if err != nil {
		return ExpenseResult{}, err
	}
	return ExpenseResult{Receipt: rec, Bill: bill}, nil
}

func postExpense(w *ops.Work, exp Expense) (*ledger.PayableBill, error) {
	ctx := w.Context()
	src, err := w.Account(exp.SourceAccountID)
	if err != nil {
		return nil, err
	}
	var vendor ledger.Vendor
	if exp.VendorID != uuid.Nil {
		if vendor, err = w.Tx().Vendor(ctx, exp.VendorID); err != nil {
			return nil, err
		}
	}
	desc := "Expense: " + strings.TrimSpace(exp.Category)
	if sub := strings.TrimSpace(exp.Subcategory); sub != "" {
		desc += " - " + sub
	}
	if vendor.Name != "" {
		desc += " (" + vendor.Name + ")"
	}
	e, err := w.Debit(src.ID, exp.Amount, desc, meta.Of("category", exp.Category, "subcategory", exp.Subcategory, "note", exp.Note))
	if err != nil {
		return nil, err
	}
	if src.Type != ledger.AccountTypePayable {
		return nil, nil
	}
	due := exp.DueDate
	if due.IsZero() {
		due = w.Date()
	}
	description := strings.TrimSpace(exp.Note)
	if description == "" {
		description = desc
	}
	b := ledger.PayableBill{
		ID:               uuid.New(),
		VendorID:         vendor.ID,
		VendorName:       vendor.Name,
		PayableAccountID: src.ID,
		Amount:           exp.Amount,
		DueDate:          ledger.BusinessDate(due),
		IsRecurring:      exp.Recurring,
		Description:      description,
		Status:           ledger.BillPending,
		CreatedAt:        w.Now(),
	}
	if err := w.Tx().CreateBill(ctx, b); err != nil {
		return nil, err
	}
	w.Step("bill " + b.ID.String() + " for entry " + e.ID.String())
	return &b, nil
}
