// Package postgres provides a pgx-backed storage implementation that satisfies
// the repository interfaces used by the services and the unit of work used by
// the operation runner.
//
// Migrations that create the expected schema live under db/migrations. This
// package maps domain entities to SQL rows and runs the statements.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/meta"
	"github.com/tinoosan/tillbook/internal/storage"
)

// DefaultLockTimeout bounds how long an operation waits for its keys.
const DefaultLockTimeout = 2 * time.Second

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

type Option func(*Store)

// WithLockTimeout overrides DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s := &Store{pool: pool, lockTimeout: DefaultLockTimeout}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// Atomically runs fn in one database transaction. Keys are taken as
// transaction-scoped advisory locks in ascending order, so the wait is bounded
// by lock_timeout and every table shares one lock space.
func (s *Store) Atomically(ctx context.Context, keys []uuid.UUID, fn func(storage.Tx) error) error {
	keys = storage.SortKeys(keys)
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = pgtx.Rollback(ctx) }()

	timeout := fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())
	if _, err := pgtx.Exec(ctx, `select set_config('lock_timeout', $1, true)`, timeout); err != nil {
		return classify(err)
	}
	for _, k := range keys {
		if _, err := pgtx.Exec(ctx, `select pg_advisory_xact_lock(hashtextextended($1, 0))`, k.String()); err != nil {
			err = classify(err)
			if errors.Is(err, errs.ErrContention) {
				return fmt.Errorf("%w: lock on %s not acquired within %s", errs.ErrContention, k, s.lockTimeout)
			}
			return err
		}
	}
	if err := fn(&tx{q: pgtx}); err != nil {
		return classify(err)
	}
	if err := pgtx.Commit(ctx); err != nil {
		if c := classify(err); c != err {
			return c
		}
		return fmt.Errorf("%w: %v", storage.ErrCommitUnknown, err)
	}
	return nil
}

// --- Accounts ---

const accountCols = `id, name, type, starting_balance_minor, current_balance_minor, active, created_at, metadata`

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var a ledger.Account
	var md []byte
	err := row.Scan(&a.ID, &a.Name, &a.Type, &a.StartingBalance, &a.CurrentBalance, &a.Active, &a.CreatedAt, &md)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, errs.ErrNotFound
	}
	if err != nil {
		return ledger.Account{}, err
	}
	a.Metadata = decodeMeta(md)
	return a, nil
}

func decodeMeta(b []byte) meta.Metadata {
	if len(b) == 0 {
		return nil
	}
	var m meta.Metadata
	if err := m.UnmarshalJSON(b); err != nil || len(m) == 0 {
		return nil
	}
	return m
}

func encodeMeta(m meta.Metadata) []byte {
	b, err := m.MarshalStableJSON()
	if err != nil || len(b) == 0 {
		return []byte("{}")
	}
	return b
}

// GetAccount fetches a single account by id.
func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, `select `+accountCols+` from accounts where id = $1`, id))
}

// ListAccounts returns every account ordered by type then name.
func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.pool.Query(ctx, `select `+accountCols+` from accounts order by type, name`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAccount)
}

// CreateAccount inserts an account row.
func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	if err := a.Metadata.Validate(); err != nil {
		return ledger.Account{}, err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		insert into accounts (`+accountCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, a.ID, a.Name, a.Type, a.StartingBalance, a.CurrentBalance, a.Active, a.CreatedAt, encodeMeta(a.Metadata))
	if err != nil {
		return ledger.Account{}, classify(err)
	}
	return a, nil
}

// UpdateAccount updates descriptive fields (name, active, metadata).
// Balances only move through Atomically.
func (s *Store) UpdateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	if err := a.Metadata.Validate(); err != nil {
		return ledger.Account{}, err
	}
	row := s.pool.QueryRow(ctx, `
		update accounts set name = $1, active = $2, metadata = $3
		where id = $4
		returning `+accountCols,
		a.Name, a.Active, encodeMeta(a.Metadata), a.ID)
	out, err := scanAccount(row)
	if err != nil {
		return ledger.Account{}, classify(err)
	}
	return out, nil
}

// --- Journal ---

const entryCols = `e.id, e.account_id, coalesce(a.name, e.account_name), e.kind, e.amount_minor, e.date, e.posted_at, e.actor, e.description, e.status, e.operation_id, e.metadata`

func scanEntry(row pgx.Row) (ledger.JournalEntry, error) {
	var e ledger.JournalEntry
	var opID *uuid.UUID
	var md []byte
	if err := row.Scan(&e.ID, &e.AccountID, &e.AccountName, &e.Kind, &e.Amount, &e.Date, &e.PostedAt, &e.Actor, &e.Description, &e.Status, &opID, &md); err != nil {
		return ledger.JournalEntry{}, err
	}
	e.OperationID = deref(opID)
	e.Date = e.Date.UTC()
	e.Metadata = decodeMeta(md)
	return e, nil
}

// EntriesForAccount streams the account's entries newest first. Account
// names are refreshed from the accounts table.
func (s *Store) EntriesForAccount(ctx context.Context, accountID uuid.UUID) iter.Seq2[ledger.JournalEntry, error] {
	return func(yield func(ledger.JournalEntry, error) bool) {
		rows, err := s.pool.Query(ctx, `
			select `+entryCols+`
			from journal_entries e left join accounts a on a.id = e.account_id
			where e.account_id = $1
			order by e.date desc, e.posted_at desc
		`, accountID)
		if err != nil {
			yield(ledger.JournalEntry{}, err)
			return
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanEntry(rows)
			if !yield(e, err) || err != nil {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(ledger.JournalEntry{}, err)
		}
	}
}

// --- Receivables ---

const receivableCols = `id, date, source, channel, amount_minor, status, account_id, parent_id, created_at, settled_at`

func scanReceivable(row pgx.Row) (ledger.ReceivableTransaction, error) {
	var r ledger.ReceivableTransaction
	err := row.Scan(&r.ID, &r.Date, &r.Source, &r.Channel, &r.Amount, &r.Status, &r.AccountID, &r.ParentID, &r.CreatedAt, &r.SettledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.ReceivableTransaction{}, errs.ErrNotFound
	}
	r.Date = r.Date.UTC()
	return r, err
}

func (s *Store) GetReceivable(ctx context.Context, id uuid.UUID) (ledger.ReceivableTransaction, error) {
	return scanReceivable(s.pool.QueryRow(ctx, `select `+receivableCols+` from receivable_transactions where id = $1`, id))
}

// ListReceivables returns matching receivables newest first.
func (s *Store) ListReceivables(ctx context.Context, f storage.ReceivableFilter) ([]ledger.ReceivableTransaction, error) {
	rows, err := s.pool.Query(ctx, `
		select `+receivableCols+` from receivable_transactions
		where ($1 = '' or status = $1) and ($2 = '' or channel = $2)
		order by date desc, created_at desc
	`, string(f.Status), string(f.Channel))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanReceivable)
}

// --- Customers and vendors ---

func scanCustomer(row pgx.Row) (ledger.Customer, error) {
	var c ledger.Customer
	err := row.Scan(&c.ID, &c.Name, &c.OutstandingBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Customer{}, errs.ErrNotFound
	}
	return c, err
}

func (s *Store) CreateCustomer(ctx context.Context, c ledger.Customer) (ledger.Customer, error) {
	_, err := s.pool.Exec(ctx, `insert into customers (id, name, outstanding_balance_minor) values ($1,$2,$3)`, c.ID, c.Name, c.OutstandingBalance)
	if err != nil {
		return ledger.Customer{}, classify(err)
	}
	return c, nil
}

func (s *Store) GetCustomer(ctx context.Context, id uuid.UUID) (ledger.Customer, error) {
	return scanCustomer(s.pool.QueryRow(ctx, `select id, name, outstanding_balance_minor from customers where id = $1`, id))
}

func (s *Store) ListCustomers(ctx context.Context) ([]ledger.Customer, error) {
	rows, err := s.pool.Query(ctx, `select id, name, outstanding_balance_minor from customers order by name`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanCustomer)
}

func scanVendor(row pgx.Row) (ledger.Vendor, error) {
	var v ledger.Vendor
	var payable *uuid.UUID
	err := row.Scan(&v.ID, &v.Name, &payable)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Vendor{}, errs.ErrNotFound
	}
	v.PayableAccountID = deref(payable)
	return v, err
}

func (s *Store) CreateVendor(ctx context.Context, v ledger.Vendor) (ledger.Vendor, error) {
	_, err := s.pool.Exec(ctx, `insert into vendors (id, name, payable_account_id) values ($1,$2,$3)`, v.ID, v.Name, nullable(v.PayableAccountID))
	if err != nil {
		return ledger.Vendor{}, classify(err)
	}
	return v, nil
}

func (s *Store) GetVendor(ctx context.Context, id uuid.UUID) (ledger.Vendor, error) {
	return scanVendor(s.pool.QueryRow(ctx, `select id, name, payable_account_id from vendors where id = $1`, id))
}

func (s *Store) ListVendors(ctx context.Context) ([]ledger.Vendor, error) {
	rows, err := s.pool.Query(ctx, `select id, name, payable_account_id from vendors order by name`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanVendor)
}

// --- Bills ---

const billCols = `id, vendor_id, vendor_name, payable_account_id, amount_minor, due_date, is_recurring, description, status, created_at, paid_at`

func scanBill(row pgx.Row) (ledger.PayableBill, error) {
	var b ledger.PayableBill
	var vendor, payable *uuid.UUID
	err := row.Scan(&b.ID, &vendor, &b.VendorName, &payable, &b.Amount, &b.DueDate, &b.IsRecurring, &b.Description, &b.Status, &b.CreatedAt, &b.PaidAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.PayableBill{}, errs.ErrNotFound
	}
	b.VendorID, b.PayableAccountID = deref(vendor), deref(payable)
	b.DueDate = b.DueDate.UTC()
	return b, err
}

func (s *Store) GetBill(ctx context.Context, id uuid.UUID) (ledger.PayableBill, error) {
	return scanBill(s.pool.QueryRow(ctx, `select `+billCols+` from payable_bills where id = $1`, id))
}

// ListBills returns bills by due date; an empty status matches all.
func (s *Store) ListBills(ctx context.Context, status ledger.BillStatus) ([]ledger.PayableBill, error) {
	rows, err := s.pool.Query(ctx, `
		select `+billCols+` from payable_bills
		where ($1 = '' or status = $1)
		order by due_date, created_at
	`, string(status))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanBill)
}

// --- Shift sessions ---

const sessionCols = `id, date, closed_at, opening_balance_minor, gross_sales_minor, card_sales_minor, partner_sales_minor,
	customer_credit_minor, expenses_minor, money_added_minor, foreign_currency_minor, foreign_currency_note,
	theoretical_cash_minor, physical_count_minor, variance_minor, actor, operation_id`

func scanSession(row pgx.Row) (ledger.ShiftSession, error) {
	var s ledger.ShiftSession
	err := row.Scan(&s.ID, &s.Date, &s.ClosedAt, &s.OpeningBalance, &s.GrossSales, &s.CardSales, &s.PartnerSales,
		&s.CustomerCredit, &s.Expenses, &s.MoneyAdded, &s.ForeignCurrency, &s.ForeignCurrencyNote,
		&s.TheoreticalCash, &s.PhysicalCount, &s.Variance, &s.Actor, &s.OperationID)
	s.Date = s.Date.UTC()
	return s, err
}

// ListShiftSessions returns closed shifts, most recent first.
func (s *Store) ListShiftSessions(ctx context.Context) ([]ledger.ShiftSession, error) {
	rows, err := s.pool.Query(ctx, `select `+sessionCols+` from shift_sessions order by closed_at desc`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSession)
}

// --- Settings ---

const roleCols = `income_account_id, card_account_id, partner_account_id, foreign_currency_account_id,
	customer_receivable_account_id, settlement_card_account_id, partner_receivable_account_id,
	petty_cash_account_id, card_fee_account_id, card_source_label, partner_source_label`

func scanRoles(row pgx.Row) (ledger.RoleMapping, error) {
	var m ledger.RoleMapping
	ids := make([]*uuid.UUID, len(ledger.Roles()))
	dest := make([]any, 0, len(ids)+2)
	for i := range ids {
		dest = append(dest, &ids[i])
	}
	dest = append(dest, &m.CardSourceLabel, &m.PartnerSourceLabel)
	err := row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.RoleMapping{}, nil
	}
	if err != nil {
		return ledger.RoleMapping{}, err
	}
	for i, r := range ledger.Roles() {
		m.Set(r, deref(ids[i]))
	}
	return m, nil
}

// RoleMapping returns the singleton mapping; unset when never saved.
func (s *Store) RoleMapping(ctx context.Context) (ledger.RoleMapping, error) {
	return scanRoles(s.pool.QueryRow(ctx, `select `+roleCols+` from role_mappings where id = 1`))
}

func (s *Store) SaveRoleMapping(ctx context.Context, m ledger.RoleMapping) error {
	args := make([]any, 0, len(ledger.Roles())+2)
	for _, r := range ledger.Roles() {
		id, _ := m.Account(r)
		args = append(args, nullable(id))
	}
	args = append(args, m.CardSourceLabel, m.PartnerSourceLabel)
	_, err := s.pool.Exec(ctx, `
		insert into role_mappings (id, `+roleCols+`)
		values (1, $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		on conflict (id) do update set
			income_account_id = excluded.income_account_id,
			card_account_id = excluded.card_account_id,
			partner_account_id = excluded.partner_account_id,
			foreign_currency_account_id = excluded.foreign_currency_account_id,
			customer_receivable_account_id = excluded.customer_receivable_account_id,
			settlement_card_account_id = excluded.settlement_card_account_id,
			partner_receivable_account_id = excluded.partner_receivable_account_id,
			petty_cash_account_id = excluded.petty_cash_account_id,
			card_fee_account_id = excluded.card_fee_account_id,
			card_source_label = excluded.card_source_label,
			partner_source_label = excluded.partner_source_label
	`, args...)
	return classify(err)
}

// --- helpers ---

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func nullable(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func deref(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
