package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
)

// tx implements storage.Tx on one pgx transaction.
type tx struct{ q pgx.Tx }

func notFound(kind string, id uuid.UUID, err error) error {
	if errors.Is(err, errs.ErrNotFound) || errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, errs.ErrNotFound)
	}
	return err
}

func (t *tx) Account(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	a, err := scanAccount(t.q.QueryRow(ctx, `select `+accountCols+` from accounts where id = $1`, id))
	return a, notFound("account", id, err)
}

func (t *tx) AccountsByType(ctx context.Context, at ledger.AccountType) ([]ledger.Account, error) {
	rows, err := t.q.Query(ctx, `select `+accountCols+` from accounts where type = $1 order by name`, at)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAccount)
}

func (t *tx) ApplyDelta(ctx context.Context, id uuid.UUID, signed ledger.Money) (ledger.Money, error) {
	var bal ledger.Money
	err := t.q.QueryRow(ctx, `
		update accounts set current_balance_minor = current_balance_minor + $2
		where id = $1
		returning current_balance_minor
	`, id, signed).Scan(&bal)
	return bal, notFound("account", id, err)
}

func (t *tx) SetBalance(ctx context.Context, id uuid.UUID, balance ledger.Money) (ledger.Money, error) {
	var prev ledger.Money
	err := t.q.QueryRow(ctx, `
		update accounts a set current_balance_minor = $2
		from (select id, current_balance_minor from accounts where id = $1 for update) old
		where a.id = old.id
		returning old.current_balance_minor
	`, id, balance).Scan(&prev)
	return prev, notFound("account", id, err)
}

func (t *tx) AppendEntry(ctx context.Context, e ledger.JournalEntry) error {
	_, err := t.q.Exec(ctx, `
		insert into journal_entries (id, account_id, account_name, kind, amount_minor, date, posted_at, actor, description, status, operation_id, metadata)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, e.ID, e.AccountID, e.AccountName, e.Kind, e.Amount, e.Date, e.PostedAt, e.Actor, e.Description, e.Status, nullable(e.OperationID), encodeMeta(e.Metadata))
	return classify(err)
}

func (t *tx) JournalTotal(ctx context.Context, accountID uuid.UUID) (ledger.Money, int, error) {
	var total ledger.Money
	var n int
	err := t.q.QueryRow(ctx, `
		select coalesce(sum(case kind when 'income' then amount_minor else -amount_minor end), 0), count(*)
		from journal_entries where account_id = $1
	`, accountID).Scan(&total, &n)
	return total, n, err
}

func (t *tx) Receivable(ctx context.Context, id uuid.UUID) (ledger.ReceivableTransaction, error) {
	r, err := scanReceivable(t.q.QueryRow(ctx, `select `+receivableCols+` from receivable_transactions where id = $1`, id))
	return r, notFound("receivable", id, err)
}

func (t *tx) CreateReceivable(ctx context.Context, r ledger.ReceivableTransaction) error {
	_, err := t.q.Exec(ctx, `
		insert into receivable_transactions (`+receivableCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, r.ID, r.Date, r.Source, r.Channel, r.Amount, r.Status, r.AccountID, r.ParentID, r.CreatedAt, r.SettledAt)
	return classify(err)
}

func (t *tx) UpdateReceivable(ctx context.Context, r ledger.ReceivableTransaction) error {
	ct, err := t.q.Exec(ctx, `
		update receivable_transactions set status = $2, settled_at = $3, source = $4
		where id = $1
	`, r.ID, r.Status, r.SettledAt, r.Source)
	if err != nil {
		return classify(err)
	}
	if ct.RowsAffected() == 0 {
		return notFound("receivable", r.ID, errs.ErrNotFound)
	}
	return nil
}

func (t *tx) Customer(ctx context.Context, id uuid.UUID) (ledger.Customer, error) {
	c, err := scanCustomer(t.q.QueryRow(ctx, `select id, name, outstanding_balance_minor from customers where id = $1`, id))
	return c, notFound("customer", id, err)
}

func (t *tx) UpdateCustomer(ctx context.Context, c ledger.Customer) error {
	ct, err := t.q.Exec(ctx, `update customers set name = $2, outstanding_balance_minor = $3 where id = $1`, c.ID, c.Name, c.OutstandingBalance)
	if err != nil {
		return classify(err)
	}
	if ct.RowsAffected() == 0 {
		return notFound("customer", c.ID, errs.ErrNotFound)
	}
	return nil
}

func (t *tx) Vendor(ctx context.Context, id uuid.UUID) (ledger.Vendor, error) {
	v, err := scanVendor(t.q.QueryRow(ctx, `select id, name, payable_account_id from vendors where id = $1`, id))
	return v, notFound("vendor", id, err)
}

func (t *tx) Bill(ctx context.Context, id uuid.UUID) (ledger.PayableBill, error) {
	b, err := scanBill(t.q.QueryRow(ctx, `select `+billCols+` from payable_bills where id = $1`, id))
	return b, notFound("bill", id, err)
}

func (t *tx) CreateBill(ctx context.Context, b ledger.PayableBill) error {
	_, err := t.q.Exec(ctx, `
		insert into payable_bills (`+billCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, b.ID, nullable(b.VendorID), b.VendorName, nullable(b.PayableAccountID), b.Amount, b.DueDate, b.IsRecurring, b.Description, b.Status, b.CreatedAt, b.PaidAt)
	return classify(err)
}

func (t *tx) UpdateBill(ctx context.Context, b ledger.PayableBill) error {
	ct, err := t.q.Exec(ctx, `update payable_bills set status = $2, paid_at = $3 where id = $1`, b.ID, b.Status, b.PaidAt)
	if err != nil {
		return classify(err)
	}
	if ct.RowsAffected() == 0 {
		return notFound("bill", b.ID, errs.ErrNotFound)
	}
	return nil
}

func (t *tx) CreateShiftSession(ctx context.Context, s ledger.ShiftSession) error {
	_, err := t.q.Exec(ctx, `
		insert into shift_sessions (`+sessionCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, s.ID, s.Date, s.ClosedAt, s.OpeningBalance, s.GrossSales, s.CardSales, s.PartnerSales,
		s.CustomerCredit, s.Expenses, s.MoneyAdded, s.ForeignCurrency, s.ForeignCurrencyNote,
		s.TheoreticalCash, s.PhysicalCount, s.Variance, s.Actor, s.OperationID)
	return classify(err)
}

func (t *tx) RoleMapping(ctx context.Context) (ledger.RoleMapping, error) {
	return scanRoles(t.q.QueryRow(ctx, `select `+roleCols+` from role_mappings where id = 1`))
}

// SQLSTATEs mapped by classify.
const (
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
)

// classify maps driver errors onto the errs taxonomy. Errors that carry no
// Postgres code are returned unchanged.
func classify(err error) error {
	var pg *pgconn.PgError
	if err == nil || !errors.As(err, &pg) {
		return err
	}
	switch pg.Code {
	case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %s", errs.ErrContention, pg.Message)
	case codeUniqueViolation:
		if strings.Contains(pg.ConstraintName, "name") {
			return fmt.Errorf("%w: %s", errs.ErrDuplicateName, pg.Detail)
		}
		return fmt.Errorf("%w: %s", errs.ErrDuplicateID, pg.Detail)
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %s", errs.ErrNotFound, pg.Detail)
	case codeCheckViolation:
		return fmt.Errorf("%w: %s", errs.ErrInvalid, pg.ConstraintName)
	}
	return err
}
