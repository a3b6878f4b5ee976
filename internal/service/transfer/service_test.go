package transfer

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/service/journal"
	"github.com/tinoosan/tillbook/internal/service/ops"
	"github.com/tinoosan/tillbook/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store   *memory.Store
	svc     Service
	journal journal.Service
	cash    ledger.Account
	bank    ledger.Account
}

func setup(t *testing.T) fixture {
	t.Helper()
	s := memory.New()
	r := ops.NewRunner(s, testLogger())
	f := fixture{store: s, svc: New(r), journal: journal.New(s, r)}
	f.cash = ledger.Account{ID: uuid.New(), Name: "Petty Cash", Type: ledger.AccountTypePettyCash, StartingBalance: 50000, CurrentBalance: 50000, Active: true}
	f.bank = ledger.Account{ID: uuid.New(), Name: "Bank", Type: ledger.AccountTypeAssets, StartingBalance: 100000, CurrentBalance: 100000, Active: true}
	s.SeedAccount(f.cash)
	s.SeedAccount(f.bank)
	return f
}

func (f fixture) balance(t *testing.T, id uuid.UUID) ledger.Money {
	t.Helper()
	a, err := f.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a.CurrentBalance
}

func (f fixture) assertBalanced(t *testing.T) {
	t.Helper()
	_, err := f.journal.Audit(context.Background())
	require.NoError(t, err)
}

func TestTransfer_Symmetry(t *testing.T) {
	f := setup(t)
	rec, err := f.svc.Transfer(context.Background(), f.bank.ID, f.cash.ID, 12500, "float top-up", ops.Actor{Name: "amal"})
	require.NoError(t, err)
	require.Len(t, rec.Entries, 2)

	out, in := rec.Entries[0], rec.Entries[1]
	assert.Equal(t, ledger.EntryKindExpense, out.Kind)
	assert.Equal(t, "Transfer to Petty Cash: float top-up", out.Description)
	assert.Equal(t, ledger.EntryKindIncome, in.Kind)
	assert.Equal(t, "Transfer from Bank: float top-up", in.Description)
	assert.Equal(t, out.Amount, in.Amount)

	assert.Equal(t, ledger.Money(87500), f.balance(t, f.bank.ID))
	assert.Equal(t, ledger.Money(62500), f.balance(t, f.cash.ID))
	f.assertBalanced(t)
}

func TestTransfer_Errors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Transfer(ctx, f.bank.ID, f.bank.ID, 1, "", ops.Actor{})
	assert.ErrorIs(t, err, errs.ErrSameAccount)
	_, err = f.svc.Transfer(ctx, f.bank.ID, f.cash.ID, 0, "", ops.Actor{})
	assert.ErrorIs(t, err, errs.ErrInvalidAmount)
	_, err = f.svc.Transfer(ctx, f.bank.ID, uuid.New(), 10, "", ops.Actor{})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	assert.Equal(t, ledger.Money(100000), f.balance(t, f.bank.ID))
}

func TestAdjust(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Adjust(ctx, Adjustment{AccountID: f.cash.ID, Direction: Add, Amount: 100, Reason: "  "}, ops.Actor{})
	assert.ErrorIs(t, err, errs.ErrInvalid)
	_, err = f.svc.Adjust(ctx, Adjustment{AccountID: f.cash.ID, Direction: Remove, Amount: -5, Reason: "x"}, ops.Actor{})
	assert.ErrorIs(t, err, errs.ErrInvalidAmount)

	rec, err := f.svc.Adjust(ctx, Adjustment{AccountID: f.cash.ID, Direction: Remove, Amount: 700, Reason: "Counted short"}, ops.Actor{Name: "nim", Role: "admin"})
	require.NoError(t, err)
	require.Len(t, rec.Entries, 1)
	e := rec.Entries[0]
	assert.Equal(t, "MANUAL ADJUSTMENT: Counted short", e.Description)
	assert.Equal(t, ledger.EntryKindExpense, e.Kind)
	assert.Equal(t, "admin", e.Metadata["actor_role"])
	assert.Equal(t, ledger.Money(49300), f.balance(t, f.cash.ID))
	f.assertBalanced(t)
}

func TestPostExpense_FromCash(t *testing.T) {
	f := setup(t)
	vendor := ledger.Vendor{ID: uuid.New(), Name: "Keells"}
	f.store.SeedVendor(vendor)

	res, err := f.svc.PostExpense(context.Background(), Expense{
		SourceAccountID: f.cash.ID, Amount: 2400, Category: "Supplies", Subcategory: "Milk", VendorID: vendor.ID,
	}, ops.Actor{Name: "amal"})
	require.NoError(t, err)
	assert.Nil(t, res.Bill)
	require.Len(t, res.Receipt.Entries, 1)
	assert.Equal(t, "Expense: Supplies - Milk (Keells)", res.Receipt.Entries[0].Description)
	assert.Equal(t, ledger.Money(47600), f.balance(t, f.cash.ID))
}

func TestPostExpense_PayableRaisesBill(t *testing.T) {
	f := setup(t)
	payable := ledger.Account{ID: uuid.New(), Name: "Dairy Supplier", Type: ledger.AccountTypePayable, Active: true}
	f.store.SeedAccount(payable)
	vendor := ledger.Vendor{ID: uuid.New(), Name: "Highland", PayableAccountID: payable.ID}
	f.store.SeedVendor(vendor)
	due := time.Date(2025, 4, 30, 15, 0, 0, 0, time.UTC)

	res, err := f.svc.PostExpense(context.Background(), Expense{
		SourceAccountID: payable.ID, Amount: 9000, Category: "Stock", VendorID: vendor.ID, DueDate: due, Recurring: true,
	}, ops.Actor{})
	require.NoError(t, err)
	require.NotNil(t, res.Bill)
	assert.Equal(t, ledger.BillPending, res.Bill.Status)
	assert.Equal(t, ledger.Money(9000), res.Bill.Amount)
	assert.Equal(t, "Highland", res.Bill.VendorName)
	assert.Equal(t, ledger.BusinessDate(due), res.Bill.DueDate)
	assert.True(t, res.Bill.IsRecurring)

	bills, err := f.store.ListBills(context.Background(), ledger.BillPending)
	require.NoError(t, err)
	assert.Len(t, bills, 1)
	assert.Equal(t, ledger.Money(-9000), f.balance(t, payable.ID))
	f.assertBalanced(t)
}

func TestPostExpense_Validation(t *testing.T) {
	f := setup(t)
	_, err := f.svc.PostExpense(context.Background(), Expense{SourceAccountID: f.cash.ID, Amount: 10}, ops.Actor{})
	assert.ErrorIs(t, err, errs.ErrInvalid)
	_, err = f.svc.PostExpense(context.Background(), Expense{SourceAccountID: f.cash.ID, Amount: 10, Category: "x", VendorID: uuid.New()}, ops.Actor{})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTransfer_ConcurrentOppositeDirections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	done := make(chan error, 40)
	for i := 0; i < 20; i++ {
		go func() {
			_, err := f.svc.Transfer(ctx, f.bank.ID, f.cash.ID, 10, "", ops.Actor{})
			done <- err
		}()
		go func() {
			_, err := f.svc.Transfer(ctx, f.cash.ID, f.bank.ID, 10, "", ops.Actor{})
			done <- err
		}()
	}
	for i := 0; i < 40; i++ {
		require.NoError(t, <-done)
	}
	assert.Equal(t, ledger.Money(100000), f.balance(t, f.bank.ID))
	assert.Equal(t, ledger.Money(50000), f.balance(t, f.cash.ID))
	f.assertBalanced(t)
}
