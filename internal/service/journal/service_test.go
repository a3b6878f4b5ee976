package journal_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

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

func setup(t *testing.T) (*memory.Store, *ops.Runner, journal.Service) {
	t.Helper()
	s := memory.New()
	r := ops.NewRunner(s, testLogger())
	return s, r, journal.New(s, r)
}

func account(s *memory.Store, name string, starting, current ledger.Money) ledger.Account {
	a := ledger.Account{ID: uuid.New(), Name: name, Type: ledger.AccountTypeAssets, StartingBalance: starting, CurrentBalance: current, Active: true}
	s.SeedAccount(a)
	return a
}

func TestAppend_Validation(t *testing.T) {
	s, _, svc := setup(t)
	ctx := context.Background()
	a := account(s, "Bank", 0, 0)

	_, err := svc.Append(ctx, ledger.JournalEntry{Kind: ledger.EntryKindIncome, Amount: 1, Description: "x"}, ops.Actor{})
	assert.ErrorIs(t, err, errs.ErrInvalidEntry)
	_, err = svc.Append(ctx, ledger.JournalEntry{AccountID: a.ID, Kind: ledger.EntryKindIncome, Amount: 0, Description: "x"}, ops.Actor{})
	assert.ErrorIs(t, err, errs.ErrInvalidEntry)
	_, err = svc.Append(ctx, ledger.JournalEntry{AccountID: a.ID, Kind: "refund", Amount: 1, Description: "x"}, ops.Actor{})
	assert.ErrorIs(t, err, errs.ErrInvalidEntry)
	_, err = svc.Append(ctx, ledger.JournalEntry{AccountID: uuid.New(), Kind: ledger.EntryKindIncome, Amount: 1, Description: "x"}, ops.Actor{})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestAppend_DoesNotTouchBalance(t *testing.T) {
	s, _, svc := setup(t)
	ctx := context.Background()
	a := account(s, "Bank", 100, 100)

	e, err := svc.Append(ctx, ledger.JournalEntry{AccountID: a.ID, Kind: ledger.EntryKindIncome, Amount: 40, Description: "imported"}, ops.Actor{Name: "ops"})
	require.NoError(t, err)
	assert.Equal(t, "Bank", e.AccountName)

	got, _ := s.GetAccount(ctx, a.ID)
	assert.Equal(t, ledger.Money(100), got.CurrentBalance)

	rep, err := svc.Reconcile(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Money(-40), rep.Discrepancy)
}

func TestEntriesFor(t *testing.T) {
	s, _, svc := setup(t)
	ctx := context.Background()
	a := account(s, "Bank", 0, 0)

	_, err := svc.EntriesFor(ctx, uuid.New())
	assert.ErrorIs(t, err, errs.ErrNotFound)

	for _, d := range []string{"first", "second"} {
		_, err := svc.Append(ctx, ledger.JournalEntry{AccountID: a.ID, Kind: ledger.EntryKindIncome, Amount: 1, Description: d}, ops.Actor{})
		require.NoError(t, err)
	}
	seq, err := svc.EntriesFor(ctx, a.ID)
	require.NoError(t, err)
	n := 0
	for _, err := range seq {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 2, n)
}

func TestRepair_IsIdempotent(t *testing.T) {
	s, _, svc := setup(t)
	ctx := context.Background()
	a := account(s, "Till", 1000, 1250)

	rep, err := svc.Reconcile(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Money(1000), rep.LedgerSum)
	assert.Equal(t, ledger.Money(250), rep.Discrepancy)

	e, err := svc.Repair(ctx, a.ID, ops.Actor{Name: "admin"})
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, ledger.EntryKindIncome, e.Kind)
	assert.Equal(t, ledger.Money(250), e.Amount)
	assert.Equal(t, journal.RepairDescription, e.Description)

	rep, err = svc.Reconcile(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, rep.Balanced())

	e, err = svc.Repair(ctx, a.ID, ops.Actor{Name: "admin"})
	require.NoError(t, err)
	assert.Nil(t, e)

	count := 0
	for range s.EntriesForAccount(ctx, a.ID) {
		count++
	}
	assert.Equal(t, 1, count)
	got, _ := s.GetAccount(ctx, a.ID)
	assert.Equal(t, ledger.Money(1250), got.CurrentBalance)
}

func TestRepair_NegativeDiscrepancyIsExpense(t *testing.T) {
	s, _, svc := setup(t)
	a := account(s, "Till", 1000, 900)

	e, err := svc.Repair(context.Background(), a.ID, ops.Actor{})
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, ledger.EntryKindExpense, e.Kind)
	assert.Equal(t, ledger.Money(100), e.Amount)
}

func TestAudit(t *testing.T) {
	s, _, svc := setup(t)
	ctx := context.Background()
	account(s, "Bank", 500, 500)
	bad := account(s, "Till", 0, 75)

	reports, err := svc.Audit(ctx)
	var ie *errs.IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Len(t, reports, 2)
	require.Len(t, ie.Discrepancies, 1)
	assert.Equal(t, bad.ID, ie.Discrepancies[0].AccountID)
	assert.Equal(t, int64(75), ie.Discrepancies[0].Difference)

	_, err = svc.Repair(ctx, bad.ID, ops.Actor{})
	require.NoError(t, err)
	reports, err = svc.Audit(ctx)
	require.NoError(t, err)
	for _, r := range reports {
		assert.True(t, r.Balanced(), r.AccountName)
	}
}
