package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/meta"
	"github.com/tinoosan/tillbook/internal/storage"
)

func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres store tests")
	}
	return dsn
}

// mustOpen migrates, truncates and opens a store.
func mustOpen(t *testing.T, opts ...Option) *Store {
	t.Helper()
	dsn := getTestDSN(t)
	require.NoError(t, Migrate(dsn, slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	_, err = s.pool.Exec(ctx, `truncate table role_mappings, shift_sessions, payable_bills, customers, vendors, receivable_transactions, journal_entries, accounts cascade`)
	require.NoError(t, err)
	return s
}

func newAccount(name string, typ ledger.AccountType, bal ledger.Money) ledger.Account {
	return ledger.Account{ID: uuid.New(), Name: name, Type: typ, StartingBalance: bal, CurrentBalance: bal, Active: true, CreatedAt: time.Now().UTC().Truncate(time.Microsecond)}
}

func TestStore_Accounts(t *testing.T) {
	s := mustOpen(t)
	ctx := context.Background()
	require.NoError(t, s.Ready(ctx))

	cash, err := s.CreateAccount(ctx, newAccount("Petty Cash", ledger.AccountTypePettyCash, 1000))
	require.NoError(t, err)
	_, err = s.CreateAccount(ctx, newAccount("petty cash", ledger.AccountTypeAssets, 0))
	assert.ErrorIs(t, err, errs.ErrDuplicateName)

	cash.Name = "Till"
	cash.Metadata = meta.Of("drawer", "front")
	got, err := s.UpdateAccount(ctx, cash)
	require.NoError(t, err)
	assert.Equal(t, "Till", got.Name)
	assert.Equal(t, "front", got.Metadata["drawer"])
	assert.Equal(t, ledger.Money(1000), got.CurrentBalance)

	_, err = s.GetAccount(ctx, uuid.New())
	assert.ErrorIs(t, err, errs.ErrNotFound)

	list, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_AtomicallyCommitsAndRollsBack(t *testing.T) {
	s := mustOpen(t)
	ctx := context.Background()
	a, err := s.CreateAccount(ctx, newAccount("Bank", ledger.AccountTypeAssets, 5000))
	require.NoError(t, err)

	day := ledger.BusinessDate(time.Now())
	entry := ledger.JournalEntry{
		ID: uuid.New(), AccountID: a.ID, AccountName: a.Name, Kind: ledger.EntryKindIncome, Amount: 250,
		Date: day, PostedAt: time.Now().UTC(), Description: "deposit", Status: ledger.EntryStatusPosted,
		OperationID: uuid.New(), Metadata: meta.Of(meta.KeyOperation, "test"),
	}
	err = s.Atomically(ctx, []uuid.UUID{a.ID}, func(tx storage.Tx) error {
		if _, err := tx.ApplyDelta(ctx, a.ID, 250); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, entry); err != nil {
			return err
		}
		total, n, err := tx.JournalTotal(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger.Money(250), total)
		assert.Equal(t, 1, n)
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.Atomically(ctx, []uuid.UUID{a.ID}, func(tx storage.Tx) error {
		if _, err := tx.SetBalance(ctx, a.ID, 0); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Money(5250), got.CurrentBalance)

	var entries []ledger.JournalEntry
	for e, err := range s.EntriesForAccount(ctx, a.ID) {
		require.NoError(t, err)
		entries = append(entries, e)
	}
	require.Len(t, entries, 1)
	assert.Equal(t, "test", entries[0].Metadata[meta.KeyOperation])
	assert.Equal(t, day, entries[0].Date)
}

func TestStore_LockTimeoutIsContention(t *testing.T) {
	s := mustOpen(t, WithLockTimeout(100*time.Millisecond))
	ctx := context.Background()
	key := uuid.New()

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Atomically(ctx, []uuid.UUID{key}, func(storage.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	err := s.Atomically(ctx, []uuid.UUID{key}, func(storage.Tx) error { return nil })
	close(release)
	assert.ErrorIs(t, err, errs.ErrContention)
	require.NoError(t, <-done)
}

func TestStore_SubLedgersAndRoles(t *testing.T) {
	s := mustOpen(t)
	ctx := context.Background()
	card, err := s.CreateAccount(ctx, newAccount("Card Clearing", ledger.AccountTypeReceivable, 0))
	require.NoError(t, err)
	payable, err := s.CreateAccount(ctx, newAccount("Owed to Dairy", ledger.AccountTypePayable, 0))
	require.NoError(t, err)

	v, err := s.CreateVendor(ctx, ledger.Vendor{ID: uuid.New(), Name: "Dairy", PayableAccountID: payable.ID})
	require.NoError(t, err)
	c, err := s.CreateCustomer(ctx, ledger.Customer{ID: uuid.New(), Name: "Ruwan"})
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Microsecond)
	day := ledger.BusinessDate(now)
	r := ledger.ReceivableTransaction{ID: uuid.New(), Date: day, Source: "Visa/Master", Channel: ledger.ChannelCard, Amount: 900, Status: ledger.ReceivablePending, AccountID: card.ID, CreatedAt: now}
	b := ledger.PayableBill{ID: uuid.New(), VendorID: v.ID, VendorName: v.Name, Amount: 400, DueDate: day, Status: ledger.BillPending, CreatedAt: now}
	err = s.Atomically(ctx, []uuid.UUID{c.ID}, func(tx storage.Tx) error {
		if err := tx.CreateReceivable(ctx, r); err != nil {
			return err
		}
		if err := tx.CreateBill(ctx, b); err != nil {
			return err
		}
		cust, err := tx.Customer(ctx, c.ID)
		if err != nil {
			return err
		}
		cust.OutstandingBalance += 700
		return tx.UpdateCustomer(ctx, cust)
	})
	require.NoError(t, err)

	pending, err := s.ListReceivables(ctx, storage.ReceivableFilter{Status: ledger.ReceivablePending, Channel: ledger.ChannelCard})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Nil(t, pending[0].ParentID)

	bills, err := s.ListBills(ctx, ledger.BillPending)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, v.ID, bills[0].VendorID)
	assert.Equal(t, uuid.Nil, bills[0].PayableAccountID)

	gotC, err := s.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Money(700), gotC.OutstandingBalance)

	gotV, err := s.GetVendor(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, payable.ID, gotV.PayableAccountID)

	m, err := s.RoleMapping(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.RoleMapping{}, m)
	m.Set(ledger.RoleCard, card.ID)
	m.CardSourceLabel = "Amex"
	require.NoError(t, s.SaveRoleMapping(ctx, m))
	got, err := s.RoleMapping(ctx)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}
