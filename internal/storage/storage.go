// Package storage defines the unit-of-work contract the memory and postgres
// backends implement. A logical operation (a transfer, a shift close, a
// settlement) runs inside exactly one Tx: its balance changes and journal
// appends commit together or not at all.
package storage

import (
	"bytes"
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"
	"github.com/tinoosan/tillbook/internal/ledger"
)

// ErrCommitUnknown is returned when the backend could not confirm whether a
// commit took effect (a dropped connection during COMMIT, say).
var ErrCommitUnknown = errors.New("storage: commit outcome unknown")

// Tx is a logical operation's view of the store. Reads observe the
// operation's own staged writes. Writes must target keys passed to
// Atomically; backends may reject others.
type Tx interface {
	Account(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	AccountsByType(ctx context.Context, t ledger.AccountType) ([]ledger.Account, error)
	// ApplyDelta adds signed to the account balance and returns the new balance.
	ApplyDelta(ctx context.Context, id uuid.UUID, signed ledger.Money) (ledger.Money, error)
	// SetBalance overwrites the balance and returns the previous one.
	SetBalance(ctx context.Context, id uuid.UUID, balance ledger.Money) (ledger.Money, error)
	AppendEntry(ctx context.Context, e ledger.JournalEntry) error
	// JournalTotal returns the signed sum and count of every entry for the account.
	JournalTotal(ctx context.Context, accountID uuid.UUID) (ledger.Money, int, error)

	Receivable(ctx context.Context, id uuid.UUID) (ledger.ReceivableTransaction, error)
	CreateReceivable(ctx context.Context, r ledger.ReceivableTransaction) error
	UpdateReceivable(ctx context.Context, r ledger.ReceivableTransaction) error

	Customer(ctx context.Context, id uuid.UUID) (ledger.Customer, error)
	UpdateCustomer(ctx context.Context, c ledger.Customer) error
	Vendor(ctx context.Context, id uuid.UUID) (ledger.Vendor, error)

	Bill(ctx context.Context, id uuid.UUID) (ledger.PayableBill, error)
	CreateBill(ctx context.Context, b ledger.PayableBill) error
	UpdateBill(ctx context.Context, b ledger.PayableBill) error

	CreateShiftSession(ctx context.Context, s ledger.ShiftSession) error
	RoleMapping(ctx context.Context) (ledger.RoleMapping, error)
}

// Atomic runs fn as one unit of work holding exclusive locks on keys.
// Lock acquisition that exceeds the backend's timeout fails with errs.ErrContention.
type Atomic interface {
	Atomically(ctx context.Context, keys []uuid.UUID, fn func(Tx) error) error
}

// ReceivableFilter narrows receivable listings; zero values match everything.
type ReceivableFilter struct {
	Status  ledger.ReceivableStatus
	Channel ledger.ReceivableChannel
}

func (f ReceivableFilter) Match(r ledger.ReceivableTransaction) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Channel != "" && r.Channel != f.Channel {
		return false
	}
	return true
}

// SortKeys returns keys deduplicated, without uuid.Nil, in ascending byte
// order. Every backend locks in this order so concurrent operations cannot
// deadlock.
func SortKeys(keys []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(keys))
	for _, k := range keys {
		if k != uuid.Nil {
			out = append(out, k)
		}
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return slices.Compact(out)
}

// Records is the read side of the sub-ledgers plus the directory writes that
// need no journal entry.
type Records interface {
	GetReceivable(ctx context.Context, id uuid.UUID) (ledger.ReceivableTransaction, error)
	ListReceivables(ctx context.Context, f ReceivableFilter) ([]ledger.ReceivableTransaction, error)

	CreateCustomer(ctx context.Context, c ledger.Customer) (ledger.Customer, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (ledger.Customer, error)
	ListCustomers(ctx context.Context) ([]ledger.Customer, error)

	CreateVendor(ctx context.Context, v ledger.Vendor) (ledger.Vendor, error)
	GetVendor(ctx context.Context, id uuid.UUID) (ledger.Vendor, error)
	ListVendors(ctx context.Context) ([]ledger.Vendor, error)

	GetBill(ctx context.Context, id uuid.UUID) (ledger.PayableBill, error)
	ListBills(ctx context.Context, status ledger.BillStatus) ([]ledger.PayableBill, error)

	ListShiftSessions(ctx context.Context) ([]ledger.ShiftSession, error)
}
