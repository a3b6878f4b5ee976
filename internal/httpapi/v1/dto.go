package v1

import (
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/service/journal"
	"github.com/tinoosan/tillbook/internal/service/ops"
	"github.com/tinoosan/tillbook/internal/service/shift"
)

// Money travels as integer minor units in *_minor fields. The formatted
// string next to it is for display only.

// maxAmountMinor bounds every amount a request may carry. It matches the
// lte tags below and leaves headroom for sums of many amounts in int64.
const maxAmountMinor = 1_000_000_000_000_000

type postAccountRequest struct {
	Name                 string            `json:"name" validate:"required,max=100"`
	Type                 ledger.AccountType `json:"type" validate:"required,oneof=petty_cash income receivable payable assets partner_receivable"`
	StartingBalanceMinor int64             `json:"starting_balance_minor" validate:"gte=0,lte=1000000000000000"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

type patchAccountRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type accountResponse struct {
	ID                   uuid.UUID          `json:"id"`
	Name                 string             `json:"name"`
	Type                 ledger.AccountType `json:"type"`
	StartingBalanceMinor int64              `json:"starting_balance_minor"`
	CurrentBalanceMinor  int64              `json:"current_balance_minor"`
	CurrentBalance       string             `json:"current_balance"`
	Active               bool               `json:"active"`
	CreatedAt            time.Time          `json:"created_at"`
	Metadata             map[string]string  `json:"metadata,omitempty"`
}

type balanceResponse struct {
	AccountID    uuid.UUID `json:"account_id"`
	BalanceMinor int64     `json:"balance_minor"`
	Balance      string    `json:"balance"`
}

type entryResponse struct {
	ID          uuid.UUID         `json:"id"`
	AccountID   uuid.UUID         `json:"account_id"`
	AccountName string            `json:"account_name"`
	Kind        ledger.EntryKind  `json:"kind"`
	AmountMinor int64             `json:"amount_minor"`
	Amount      string            `json:"amount"`
	Date        time.Time         `json:"date"`
	PostedAt    time.Time         `json:"posted_at"`
	Actor       string            `json:"actor,omitempty"`
	Description string            `json:"description"`
	Status      ledger.EntryStatus `json:"status"`
	OperationID uuid.UUID         `json:"operation_id"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type reportResponse struct {
	AccountID            uuid.UUID `json:"account_id"`
	AccountName          string    `json:"account_name"`
	StartingBalanceMinor int64     `json:"starting_balance_minor"`
	LedgerSumMinor       int64     `json:"ledger_sum_minor"`
	BalanceMinor         int64     `json:"balance_minor"`
	DiscrepancyMinor     int64     `json:"discrepancy_minor"`
	Entries              int       `json:"entries"`
	Balanced             bool      `json:"balanced"`
}

type repairResponse struct {
	Repaired bool           `json:"repaired"`
	Entry    *entryResponse `json:"entry,omitempty"`
}

type rolesRequest struct {
	IncomeAccountID             uuid.UUID `json:"income_account_id"`
	CardAccountID               uuid.UUID `json:"card_account_id"`
	PartnerAccountID            uuid.UUID `json:"partner_account_id"`
	ForeignCurrencyAccountID    uuid.UUID `json:"foreign_currency_account_id"`
	CustomerReceivableAccountID uuid.UUID `json:"customer_receivable_account_id"`
	SettlementCardAccountID     uuid.UUID `json:"settlement_card_account_id"`
	PartnerReceivableAccountID  uuid.UUID `json:"partner_receivable_account_id"`
	PettyCashAccountID          uuid.UUID `json:"petty_cash_account_id"`
	CardFeeAccountID            uuid.UUID `json:"card_fee_account_id"`
	CardSourceLabel             string    `json:"card_source_label" validate:"max=50"`
	PartnerSourceLabel          string    `json:"partner_source_label" validate:"max=50"`
}

// rolesResponse has the same shape as the request so clients can round-trip it.
type rolesResponse rolesRequest

func (req rolesRequest) mapping() ledger.RoleMapping {
	m := ledger.RoleMapping{CardSourceLabel: req.CardSourceLabel, PartnerSourceLabel: req.PartnerSourceLabel}
	m.Set(ledger.RoleIncome, req.IncomeAccountID)
	m.Set(ledger.RoleCard, req.CardAccountID)
	m.Set(ledger.RolePartner, req.PartnerAccountID)
	m.Set(ledger.RoleForeignCurrency, req.ForeignCurrencyAccountID)
	m.Set(ledger.RoleCustomerReceivable, req.CustomerReceivableAccountID)
	m.Set(ledger.RoleSettlementCard, req.SettlementCardAccountID)
	m.Set(ledger.RolePartnerReceivable, req.PartnerReceivableAccountID)
	m.Set(ledger.RolePettyCash, req.PettyCashAccountID)
	m.Set(ledger.RoleCardFee, req.CardFeeAccountID)
	return m
}

func toRolesResponse(m ledger.RoleMapping) rolesResponse {
	get := func(role ledger.Role) uuid.UUID {
		id, _ := m.Account(role)
		return id
	}
	return rolesResponse{
		IncomeAccountID:             get(ledger.RoleIncome),
		CardAccountID:               get(ledger.RoleCard),
		PartnerAccountID:            get(ledger.RolePartner),
		ForeignCurrencyAccountID:    get(ledger.RoleForeignCurrency),
		CustomerReceivableAccountID: get(ledger.RoleCustomerReceivable),
		SettlementCardAccountID:     get(ledger.RoleSettlementCard),
		PartnerReceivableAccountID:  get(ledger.RolePartnerReceivable),
		PettyCashAccountID:          get(ledger.RolePettyCash),
		CardFeeAccountID:            get(ledger.RoleCardFee),
		CardSourceLabel:             m.CardLabel(),
		PartnerSourceLabel:          m.PartnerLabel(),
	}
}

type transferRequest struct {
	FromAccountID uuid.UUID `json:"from_account_id" validate:"required"`
	ToAccountID   uuid.UUID `json:"to_account_id" validate:"required"`
	AmountMinor   int64     `json:"amount_minor" validate:"lte=1000000000000000"`
	Note          string    `json:"note,omitempty" validate:"max=200"`
}

type adjustmentRequest struct {
	AccountID   uuid.UUID `json:"account_id" validate:"required"`
	Direction   string    `json:"direction" validate:"required,oneof=add remove"`
	AmountMinor int64     `json:"amount_minor" validate:"lte=1000000000000000"`
	Reason      string    `json:"reason" validate:"required,max=200"`
}

type expenseRequest struct {
	SourceAccountID uuid.UUID  `json:"source_account_id" validate:"required"`
	AmountMinor     int64      `json:"amount_minor" validate:"lte=1000000000000000"`
	Category        string     `json:"category" validate:"required,max=100"`
	Subcategory     string     `json:"subcategory,omitempty" validate:"max=100"`
	VendorID        uuid.UUID  `json:"vendor_id,omitempty"`
	Note            string     `json:"note,omitempty" validate:"max=200"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	Recurring       bool       `json:"recurring,omitempty"`
	Date            *time.Time `json:"date,omitempty"`
}

type expenseResponse struct {
	Receipt receiptResponse `json:"receipt"`
	Bill    *billResponse   `json:"bill,omitempty"`
}

type receiptResponse struct {
	OperationID uuid.UUID       `json:"operation_id"`
	Entries     []entryResponse `json:"entries"`
	Steps       []string        `json:"steps,omitempty"`
}

type floatRequest struct {
	SourceAccountID uuid.UUID `json:"source_account_id" validate:"required"`
	AmountMinor     int64     `json:"amount_minor" validate:"lte=1000000000000000"`
}

type openShiftRequest struct {
	Date  *time.Time    `json:"date,omitempty"`
	Float *floatRequest `json:"float,omitempty"`
}

type salesRequest struct {
	GrossMinor           int64  `json:"gross_minor" validate:"gte=0,lte=1000000000000000"`
	CardMinor            int64  `json:"card_minor" validate:"gte=0,lte=1000000000000000"`
	PartnerMinor         int64  `json:"partner_minor" validate:"gte=0,lte=1000000000000000"`
	ForeignCurrencyMinor int64  `json:"foreign_currency_minor" validate:"gte=0,lte=1000000000000000"`
	ForeignCurrencyNote  string `json:"foreign_currency_note,omitempty" validate:"max=200"`
}

type creditLine struct {
	CustomerID  uuid.UUID `json:"customer_id" validate:"required"`
	AmountMinor int64     `json:"amount_minor" validate:"lte=1000000000000000"`
}

type creditsRequest struct {
	Credits []creditLine `json:"credits" validate:"dive"`
}

// cashCountRequest counts notes by face value in major units; coins are one lump in minor units.
type cashCountRequest struct {
	Notes      map[int64]int64 `json:"notes" validate:"dive,lte=1000000000"`
	CoinsMinor int64           `json:"coins_minor" validate:"lte=1000000000000000"`
}

type closeShiftRequest struct {
	PhysicalCountMinor *int64            `json:"physical_count_minor,omitempty" validate:"required_without=CashCount,excluded_with=CashCount"`
	CashCount          *cashCountRequest `json:"cash_count,omitempty"`
}

type snapshotResponse struct {
	State               shift.State  `json:"state"`
	ShiftID             *uuid.UUID   `json:"shift_id,omitempty"`
	Date                *time.Time   `json:"date,omitempty"`
	OpenedAt            *time.Time   `json:"opened_at,omitempty"`
	OpenedBy            string       `json:"opened_by,omitempty"`
	OpeningBalanceMinor int64        `json:"opening_balance_minor"`
	MoneyAddedMinor     int64        `json:"money_added_minor"`
	ExpensesMinor       int64        `json:"expenses_minor"`
	Sales               salesRequest `json:"sales"`
	Credits             []creditLine `json:"credits"`
	CreditTotalMinor    int64        `json:"credit_total_minor"`
}

type targetResponse struct {
	TargetMinor int64  `json:"target_minor"`
	Target      string `json:"target"`
}

type sessionResponse struct {
	ID                   uuid.UUID `json:"id"`
	Date                 time.Time `json:"date"`
	ClosedAt             time.Time `json:"closed_at"`
	OpeningBalanceMinor  int64     `json:"opening_balance_minor"`
	GrossSalesMinor      int64     `json:"gross_sales_minor"`
	CardSalesMinor       int64     `json:"card_sales_minor"`
	PartnerSalesMinor    int64     `json:"partner_sales_minor"`
	CustomerCreditMinor  int64     `json:"customer_credit_minor"`
	ExpensesMinor        int64     `json:"expenses_minor"`
	MoneyAddedMinor      int64     `json:"money_added_minor"`
	ForeignCurrencyMinor int64     `json:"foreign_currency_minor"`
	ForeignCurrencyNote  string    `json:"foreign_currency_note,omitempty"`
	TheoreticalCashMinor int64     `json:"theoretical_cash_minor"`
	PhysicalCountMinor   int64     `json:"physical_count_minor"`
	VarianceMinor        int64     `json:"variance_minor"`
	Variance             string    `json:"variance"`
	Actor                string    `json:"actor,omitempty"`
	OperationID          uuid.UUID `json:"operation_id"`
}

type receivableResponse struct {
	ID          uuid.UUID                `json:"id"`
	Date        time.Time                `json:"date"`
	Source      string                   `json:"source"`
	Channel     ledger.ReceivableChannel `json:"channel"`
	AmountMinor int64                    `json:"amount_minor"`
	Status      ledger.ReceivableStatus  `json:"status"`
	AccountID   uuid.UUID                `json:"account_id"`
	ParentID    *uuid.UUID               `json:"parent_id,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
	SettledAt   *time.Time               `json:"settled_at,omitempty"`
}

type partnerSettlementRequest struct {
	TransactionID      uuid.UUID `json:"transaction_id" validate:"required"`
	CashMinor          int64     `json:"cash_minor" validate:"lte=1000000000000000"`
	CardMinor          int64     `json:"card_minor" validate:"lte=1000000000000000"`
	PartnerOwedMinor   int64     `json:"partner_owed_minor" validate:"lte=1000000000000000"`
	ServiceChargeMinor int64     `json:"service_charge_minor" validate:"lte=1000000000000000"`
	// Override accepts an allocation that does not sum to the payout.
	Override bool `json:"override,omitempty"`
}

type partnerSettlementResponse struct {
	Receipt       receiptResponse     `json:"receipt"`
	Split         *receivableResponse `json:"split,omitempty"`
	MismatchMinor int64               `json:"mismatch_minor"`
}

type cardBatchRequest struct {
	TransactionIDs  []uuid.UUID `json:"transaction_ids" validate:"required,min=1,dive,required"`
	NetMinor        int64       `json:"net_minor" validate:"lte=1000000000000000"`
	TargetAccountID uuid.UUID   `json:"target_account_id" validate:"required"`
}

type cardBatchResponse struct {
	Receipt    receiptResponse `json:"receipt"`
	GrossMinor int64           `json:"gross_minor"`
	NetMinor   int64           `json:"net_minor"`
	FeeMinor   int64           `json:"fee_minor"`
}

type customerPaymentRequest struct {
	CustomerID      uuid.UUID `json:"customer_id" validate:"required"`
	AmountMinor     int64     `json:"amount_minor" validate:"lte=1000000000000000"`
	TargetAccountID uuid.UUID `json:"target_account_id" validate:"required"`
}

type billPaymentRequest struct {
	BillID          uuid.UUID `json:"bill_id" validate:"required"`
	SourceAccountID uuid.UUID `json:"source_account_id" validate:"required"`
}

type depositRequest struct {
	AmountMinor     int64     `json:"amount_minor" validate:"lte=1000000000000000"`
	TargetAccountID uuid.UUID `json:"target_account_id" validate:"required"`
}

type customerRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type customerResponse struct {
	ID                      uuid.UUID `json:"id"`
	Name                    string    `json:"name"`
	OutstandingBalanceMinor int64     `json:"outstanding_balance_minor"`
}

type vendorRequest struct {
	Name             string    `json:"name" validate:"required,max=100"`
	PayableAccountID uuid.UUID `json:"payable_account_id,omitempty"`
}

type vendorResponse struct {
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	PayableAccountID *uuid.UUID `json:"payable_account_id,omitempty"`
}

type billResponse struct {
	ID               uuid.UUID         `json:"id"`
	VendorID         *uuid.UUID        `json:"vendor_id,omitempty"`
	VendorName       string            `json:"vendor_name,omitempty"`
	PayableAccountID *uuid.UUID        `json:"payable_account_id,omitempty"`
	AmountMinor      int64             `json:"amount_minor"`
	DueDate          time.Time         `json:"due_date"`
	IsRecurring      bool              `json:"is_recurring"`
	Description      string            `json:"description,omitempty"`
	Status           ledger.BillStatus `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
	PaidAt           *time.Time        `json:"paid_at,omitempty"`
}

// listResponse wraps collections so fields can be added without breaking clients.
type listResponse[T any] struct {
	Items []T `json:"items"`
}

func items[S ~[]E, E, T any](in S, f func(E) T) listResponse[T] {
	out := make([]T, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return listResponse[T]{Items: out}
}

func optionalID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Server) toAccountResponse(a ledger.Account) accountResponse {
	return accountResponse{
		ID:                   a.ID,
		Name:                 a.Name,
		Type:                 a.Type,
		StartingBalanceMinor: a.StartingBalance.Minor(),
		CurrentBalanceMinor:  a.CurrentBalance.Minor(),
		CurrentBalance:       a.CurrentBalance.Format(s.currency),
		Active:               a.Active,
		CreatedAt:            a.CreatedAt,
		Metadata:             a.Metadata,
	}
}

func (s *Server) toEntryResponse(e ledger.JournalEntry) entryResponse {
	return entryResponse{
		ID:          e.ID,
		AccountID:   e.AccountID,
		AccountName: e.AccountName,
		Kind:        e.Kind,
		AmountMinor: e.Amount.Minor(),
		Amount:      e.Amount.Format(s.currency),
		Date:        e.Date,
		PostedAt:    e.PostedAt,
		Actor:       e.Actor,
		Description: e.Description,
		Status:      e.Status,
		OperationID: e.OperationID,
		Metadata:    e.Metadata,
	}
}

func (s *Server) toReceiptResponse(r ops.Receipt) receiptResponse {
	return receiptResponse{
		OperationID: r.OperationID,
		Entries:     items(r.Entries, s.toEntryResponse).Items,
		Steps:       r.Steps,
	}
}

func toReportResponse(r journal.Report) reportResponse {
	return reportResponse{
		AccountID:            r.AccountID,
		AccountName:          r.AccountName,
		StartingBalanceMinor: r.StartingBalance.Minor(),
		LedgerSumMinor:       r.LedgerSum.Minor(),
		BalanceMinor:         r.Balance.Minor(),
		DiscrepancyMinor:     r.Discrepancy.Minor(),
		Entries:              r.Entries,
		Balanced:             r.Balanced(),
	}
}

func toSalesDTO(v shift.Sales) salesRequest {
	return salesRequest{
		GrossMinor:           v.Gross.Minor(),
		CardMinor:            v.Card.Minor(),
		PartnerMinor:         v.Partner.Minor(),
		ForeignCurrencyMinor: v.ForeignCurrency.Minor(),
		ForeignCurrencyNote:  v.ForeignCurrencyNote,
	}
}

func toSnapshotResponse(v shift.Snapshot) snapshotResponse {
	return snapshotResponse{
		State:               v.State,
		ShiftID:             optionalID(v.ShiftID),
		Date:                optionalTime(v.Date),
		OpenedAt:            optionalTime(v.OpenedAt),
		OpenedBy:            v.OpenedBy,
		OpeningBalanceMinor: v.OpeningBalance.Minor(),
		MoneyAddedMinor:     v.MoneyAdded.Minor(),
		ExpensesMinor:       v.Expenses.Minor(),
		Sales:               toSalesDTO(v.Sales),
		Credits: items(v.Credits, func(c shift.Credit) creditLine {
			return creditLine{CustomerID: c.CustomerID, AmountMinor: c.Amount.Minor()}
		}).Items,
		CreditTotalMinor: v.CreditTotal.Minor(),
	}
}

func (s *Server) toSessionResponse(v ledger.ShiftSession) sessionResponse {
	return sessionResponse{
		ID:                   v.ID,
		Date:                 v.Date,
		ClosedAt:             v.ClosedAt,
		OpeningBalanceMinor:  v.OpeningBalance.Minor(),
		GrossSalesMinor:      v.GrossSales.Minor(),
		CardSalesMinor:       v.CardSales.Minor(),
		PartnerSalesMinor:    v.PartnerSales.Minor(),
		CustomerCreditMinor:  v.CustomerCredit.Minor(),
		ExpensesMinor:        v.Expenses.Minor(),
		MoneyAddedMinor:      v.MoneyAdded.Minor(),
		ForeignCurrencyMinor: v.ForeignCurrency.Minor(),
		ForeignCurrencyNote:  v.ForeignCurrencyNote,
		TheoreticalCashMinor: v.TheoreticalCash.Minor(),
		PhysicalCountMinor:   v.PhysicalCount.Minor(),
		VarianceMinor:        v.Variance.Minor(),
		Variance:             v.Variance.Format(s.currency),
		Actor:                v.Actor,
		OperationID:          v.OperationID,
	}
}

func toReceivableResponse(r ledger.ReceivableTransaction) receivableResponse {
	return receivableResponse{
		ID:          r.ID,
		Date:        r.Date,
		Source:      r.Source,
		Channel:     r.Channel,
		AmountMinor: r.Amount.Minor(),
		Status:      r.Status,
		AccountID:   r.AccountID,
		ParentID:    r.ParentID,
		CreatedAt:   r.CreatedAt,
		SettledAt:   r.SettledAt,
	}
}

func toCustomerResponse(c ledger.Customer) customerResponse {
	return customerResponse{ID: c.ID, Name: c.Name, OutstandingBalanceMinor: c.OutstandingBalance.Minor()}
}

func toVendorResponse(v ledger.Vendor) vendorResponse {
	return vendorResponse{ID: v.ID, Name: v.Name, PayableAccountID: optionalID(v.PayableAccountID)}
}

func toBillResponse(b ledger.PayableBill) billResponse {
	return billResponse{
		ID:               b.ID,
		VendorID:         optionalID(b.VendorID),
		VendorName:       b.VendorName,
		PayableAccountID: optionalID(b.PayableAccountID),
		AmountMinor:      b.Amount.Minor(),
		DueDate:          b.DueDate,
		IsRecurring:      b.IsRecurring,
		Description:      b.Description,
		Status:           b.Status,
		CreatedAt:        b.CreatedAt,
		PaidAt:           b.PaidAt,
	}
}
