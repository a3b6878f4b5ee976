package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/meta"
)

// AccountType enumerates the closed set of account classifications.
type AccountType string

const (
	// AccountTypePettyCash is the physical till. Its balance is force-set at shift close.
	AccountTypePettyCash AccountType = "petty_cash"
	AccountTypeIncome    AccountType = "income"
	// AccountTypeReceivable holds money owed by card networks or customers.
	AccountTypeReceivable AccountType = "receivable"
	// AccountTypePayable carries what the business owes a vendor, as a negative balance.
	AccountTypePayable AccountType = "payable"
	AccountTypeAssets  AccountType = "assets"
	// AccountTypePartnerReceivable holds delivery-partner payouts awaiting settlement.
	AccountTypePartnerReceivable AccountType = "partner_receivable"
)

// AccountTypes lists every account type in display order.
func AccountTypes() []AccountType {
	return []AccountType{
		AccountTypePettyCash,
		AccountTypeIncome,
		AccountTypeReceivable,
		AccountTypePayable,
		AccountTypeAssets,
		AccountTypePartnerReceivable,
	}
}

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypePettyCash, AccountTypeIncome, AccountTypeReceivable,
		AccountTypePayable, AccountTypeAssets, AccountTypePartnerReceivable:
		return true
	}
	return false
}

// ParseAccountType accepts the canonical value case-insensitively.
func ParseAccountType(s string) (AccountType, error) {
	t := AccountType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown account type %q", errs.ErrInvalid, s)
	}
	return t, nil
}

// Account is a named, typed balance.
type Account struct {
	ID              uuid.UUID
	Name            string
	Type            AccountType
	StartingBalance Money
	CurrentBalance  Money
	// Active is false once the account is soft-deleted.
	Active    bool
	CreatedAt time.Time
	Metadata  meta.Metadata `json:"metadata,omitempty"`
}

// EntryKind is the sign of a journal entry.
type EntryKind string

const (
	EntryKindIncome  EntryKind = "income"
	EntryKindExpense EntryKind = "expense"
)

func (k EntryKind) Valid() bool {
	switch k {
	case EntryKindIncome, EntryKindExpense:
		return true
	}
	return false
}

// KindFor returns the entry kind and positive amount that record signed.
func KindFor(signed Money) (EntryKind, Money) {
	if signed < 0 {
		return EntryKindExpense, -signed
	}
	return EntryKindIncome, signed
}

// EntryStatus is always posted today; the field exists so reversal states can be added.
type EntryStatus string

const EntryStatusPosted EntryStatus = "posted"

// JournalEntry is an immutable signed movement against one account.
type JournalEntry struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	// AccountName is a display cache refreshed on read; AccountID is authoritative.
	AccountName string
	Kind        EntryKind
	Amount      Money
	// Date is the business date (midnight UTC); PostedAt is the wall clock.
	Date        time.Time
	PostedAt    time.Time
	Actor       string
	Description string
	Status      EntryStatus
	OperationID uuid.UUID
	Metadata    meta.Metadata `json:"metadata,omitempty"`
}

// Signed returns +Amount for income and -Amount for expense.
func (e JournalEntry) Signed() Money {
	switch e.Kind {
	case EntryKindIncome:
		return e.Amount
	case EntryKindExpense:
		return -e.Amount
	}
	return 0
}

// Validate rejects malformed entries with errs.ErrInvalidEntry.
func (e JournalEntry) Validate() error {
	switch {
	case e.AccountID == uuid.Nil:
		return fmt.Errorf("%w: account reference is required", errs.ErrInvalidEntry)
	case !e.Kind.Valid():
		return fmt.Errorf("%w: kind must be income or expense", errs.ErrInvalidEntry)
	case e.Amount <= 0:
		return fmt.Errorf("%w: amount must be > 0", errs.ErrInvalidEntry)
	case strings.TrimSpace(e.Description) == "":
		return fmt.Errorf("%w: description is required", errs.ErrInvalidEntry)
	}
	if err := e.Metadata.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidEntry, err)
	}
	return nil
}

// BusinessDate truncates t to its UTC calendar day.
func BusinessDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ReceivableStatus is Pending until a settlement consumes the transaction.
type ReceivableStatus string

const (
	ReceivablePending ReceivableStatus = "pending"
	ReceivableSettled ReceivableStatus = "settled"
)

func (s ReceivableStatus) Valid() bool {
	switch s {
	case ReceivablePending, ReceivableSettled:
		return true
	}
	return false
}

// ReceivableChannel tells which settlement pass consumes a receivable.
type ReceivableChannel string

const (
	ChannelCard    ReceivableChannel = "card"
	ChannelPartner ReceivableChannel = "partner"
)

func (c ReceivableChannel) Valid() bool {
	switch c {
	case ChannelCard, ChannelPartner:
		return true
	}
	return false
}

// ReceivableTransaction is revenue recorded as "not yet cash".
type ReceivableTransaction struct {
	ID        uuid.UUID
	Date      time.Time
	Source    string
	Channel   ReceivableChannel
	Amount    Money
	Status    ReceivableStatus
	AccountID uuid.UUID
	// ParentID links a split remainder to the transaction it was carved from.
	ParentID  *uuid.UUID
	CreatedAt time.Time
	SettledAt *time.Time
}

type BillStatus string

const (
	BillPending BillStatus = "pending"
	BillPaid    BillStatus = "paid"
)

func (s BillStatus) Valid() bool {
	switch s {
	case BillPending, BillPaid:
		return true
	}
	return false
}

// PayableBill is an amount owed to a vendor.
type PayableBill struct {
	ID         uuid.UUID
	VendorID   uuid.UUID
	VendorName string
	// PayableAccountID is the payable account the bill was booked against, if any.
	PayableAccountID uuid.UUID
	Amount           Money
	DueDate          time.Time
	IsRecurring      bool
	Description      string
	Status           BillStatus
	CreatedAt        time.Time
	PaidAt           *time.Time
}

type Vendor struct {
	ID   uuid.UUID
	Name string
	// PayableAccountID backs the vendor with a payable account; uuid.Nil when none.
	PayableAccountID uuid.UUID
}

// Customer is a receivable sub-ledger keyed by person.
type Customer struct {
	ID                 uuid.UUID
	Name               string
	OutstandingBalance Money
}

// ShiftSession is the immutable record of one shift close.
type ShiftSession struct {
	ID                  uuid.UUID
	Date                time.Time
	ClosedAt            time.Time
	OpeningBalance      Money
	GrossSales          Money
	CardSales           Money
	PartnerSales        Money
	CustomerCredit      Money
	Expenses            Money
	MoneyAdded          Money
	ForeignCurrency     Money
	ForeignCurrencyNote string
	TheoreticalCash     Money
	PhysicalCount       Money
	Variance            Money
	Actor               string
	OperationID         uuid.UUID
}
