package shift

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/meta"
	"github.com/tinoosan/tillbook/internal/service/ops"
	"github.com/tinoosan/tillbook/internal/service/transfer"
	"github.com/tinoosan/tillbook/internal/storage"
)

// Float moves money into the till when the shift opens.
type Float struct {
	SourceAccountID uuid.UUID
	Amount          ledger.Money
}

// Engine serializes shift commands and applies their ledger effects.
type Engine struct {
	mu        sync.Mutex
	m         Machine
	runner    *ops.Runner
	transfers transfer.Service
	log       *slog.Logger
}

// NewEngine returns an engine with no open shift.
func NewEngine(runner *ops.Runner, transfers transfer.Service) *Engine {
	return &Engine{runner: runner, transfers: transfers, log: runner.Logger()}
}

// Snapshot returns a copy of the current shift state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.m.Snapshot()
}

// OpenShift opens the shift for date. A float is moved into the till in one
// operation first; if it fails the shift stays closed.
func (e *Engine) OpenShift(ctx context.Context, date time.Time, float *Float, actor ops.Actor) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.m.State() == StateOpen {
		return Snapshot{}, errs.ErrShiftOpen
	}
	if date.IsZero() {
		date = e.runner.Now()
	}
	id := uuid.New()
	var added ledger.Money
	if float != nil {
		if err := e.injectFloat(ctx, id, date, *float, actor); err != nil {
			return Snapshot{}, err
		}
		added = float.Amount
	}
	opening, err := e.pettyBalance(ctx)
	if err != nil {
		e.log.Debug("opening balance unavailable", "err", err)
	}
	if err := e.m.Open(id, date, e.runner.Now(), actor.Name, opening, added); err != nil {
		return Snapshot{}, err
	}
	e.log.Info("shift opened", "shift_id", id, "date", ledger.BusinessDate(date).Format(time.DateOnly), "actor", actor.Name, "float_minor", added.Minor())
	return e.m.Snapshot(), nil
}

func (e *Engine) injectFloat(ctx context.Context, shiftID uuid.UUID, date time.Time, f Float, actor ops.Actor) error {
	if f.Amount <= 0 {
		return fmt.Errorf("%w: float must be > 0", errs.ErrInvalidAmount)
	}
	settings, err := e.runner.Settings(ctx)
	if err != nil {
		return err
	}
	petty, err := settings.PettyCash()
	if err != nil {
		return err
	}
	if f.SourceAccountID == petty {
		return fmt.Errorf("%w: float source is the till", errs.ErrSameAccount)
	}
	op := ops.Op{Name: "shift.float", Actor: actor, Keys: []uuid.UUID{f.SourceAccountID, petty}, Date: date}
	_, err = e.runner.Run(ctx, op, func(w *ops.Work) error {
		src, err := w.Account(f.SourceAccountID)
		if err != nil {
			return err
		}
		md := meta.Of(meta.KeyShiftID, shiftID.String())
		if _, err := w.Debit(src.ID, f.Amount, "Float Injection: "+src.Name+" -> Petty Cash", md); err != nil {
			return err
		}
		_, err = w.Credit(petty, f.Amount, "Float Received from "+src.Name, md)
		return err
	})
	return err
}

func (e *Engine) pettyBalance(ctx context.Context) (ledger.Money, error) {
	settings, err := e.runner.Settings(ctx)
	if err != nil {
		return 0, err
	}
	petty, err := settings.PettyCash()
	if err != nil {
		return 0, err
	}
	var bal ledger.Money
	err = e.runner.View(ctx, nil, func(tx storage.Tx) error {
		a, err := tx.Account(ctx, petty)
		bal = a.CurrentBalance
		return err
	})
	return bal, err
}

// RecordSales replaces the open shift's sales figures.
func (e *Engine) RecordSales(s Sales) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.m.RecordSales(s)
}

// SetCustomerCredits replaces the shift's credit sales. Every customer must exist.
func (e *Engine) SetCustomerCredits(ctx context.Context, credits []Credit) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.m.requireOpen(); err != nil {
		return err
	}
	err := e.runner.View(ctx, nil, func(tx storage.Tx) error {
		for _, c := range credits {
			if _, err := tx.Customer(ctx, c.CustomerID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return e.m.SetCredits(credits)
}

// PostExpense applies the expense now and adds it to the shift tally.
func (e *Engine) PostExpense(ctx context.Context, exp transfer.Expense, actor ops.Actor) (transfer.ExpenseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.m.requireOpen(); err != nil {
		return transfer.ExpenseResult{}, err
	}
	if exp.Date.IsZero() {
		exp.Date = e.m.date
	}
	res, err := e.transfers.PostExpense(ctx, exp, actor)
	if err != nil {
		return transfer.ExpenseResult{}, err
	}
	return res, e.m.AddExpense(exp.Amount)
}

// Target is the theoretical till balance: live petty cash plus gross less
// everything that did not arrive as cash.
func (e *Engine) Target(ctx context.Context) (ledger.Money, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.m.requireOpen(); err != nil {
		return 0, err
	}
	bal, err := e.pettyBalance(ctx)
	if err != nil {
		return 0, err
	}
	return e.m.Target(bal), nil
}

// closePlan is everything CloseShift resolved before touching the ledger.
type closePlan struct {
	petty, income, card, partner, customers, fc uuid.UUID
	roles                                       ledger.RoleMapping
}

func (p closePlan) keys(credits []Credit) []uuid.UUID {
	keys := []uuid.UUID{p.petty, p.income, p.card, p.partner, p.customers, p.fc}
	for _, c := range credits {
		keys = append(keys, c.CustomerID)
	}
	return keys
}

func (e *Engine) plan(ctx context.Context) (closePlan, error) {
	settings, err := e.runner.Settings(ctx)
	if err != nil {
		return closePlan{}, err
	}
	var p closePlan
	p.roles = settings.Roles
	need := []struct {
		role   ledger.Role
		amount ledger.Money
		dst    *uuid.UUID
	}{
		{ledger.RoleIncome, e.m.sales.Gross, &p.income},
		{ledger.RoleCard, e.m.sales.Card, &p.card},
		{ledger.RolePartner, e.m.sales.Partner, &p.partner},
		{ledger.RoleCustomerReceivable, e.m.creditTotal(), &p.customers},
		{ledger.RoleForeignCurrency, e.m.sales.ForeignCurrency, &p.fc},
	}
	for _, n := range need {
		if n.amount == 0 {
			continue
		}
		if *n.dst, err = ops.Mapped(p.roles, n.role); err != nil {
			return closePlan{}, err
		}
	}
	if p.petty, err = settings.PettyCash(); err != nil {
		return closePlan{}, err
	}
	streams := []uuid.UUID{p.income, p.card, p.partner, p.customers, p.fc}
	if slices.Contains(streams, p.petty) {
		return closePlan{}, fmt.Errorf("%w: petty cash cannot also take a sales stream", errs.ErrInvalid)
	}
	return p, nil
}

// CloseShift reconciles the counted till and records the day in one
// operation. Nothing is applied when any check fails and the shift then
// stays open with its figures intact.
func (e *Engine) CloseShift(ctx context.Context, physicalCount ledger.Money, actor ops.Actor) (ledger.ShiftSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.m.requireOpen(); err != nil {
		return ledger.ShiftSession{}, err
	}
	if physicalCount < 0 {
		return ledger.ShiftSession{}, fmt.Errorf("%w: physical count must be >= 0", errs.ErrInvalidAmount)
	}
	p, err := e.plan(ctx)
	if err != nil {
		return ledger.ShiftSession{}, err
	}

	m := &e.m
	day := m.date.Format(time.DateOnly)
	var session ledger.ShiftSession
	op := ops.Op{Name: "shift.close", Actor: actor, Keys: p.keys(m.credits), Date: m.date}
	_, err = e.runner.Run(ctx, op, func(w *ops.Work) error {
		ctx := w.Context()
		tx := w.Tx()
		md := meta.Of(meta.KeyShiftID, m.id.String())

		if _, err := w.Credit(p.income, m.sales.Gross, "Daily Ops Sales ("+day+")", md); err != nil {
			return err
		}
		if _, err := w.Credit(p.card, m.sales.Card, "Daily Ops Card Sales ("+day+")", md); err != nil {
			return err
		}
		if err := e.pending(w, p.card, ledger.ChannelCard, p.roles.CardLabel(), m.sales.Card); err != nil {
			return err
		}
		if _, err := w.Credit(p.partner, m.sales.Partner, "Daily Ops Partner Sales ("+day+")", md); err != nil {
			return err
		}
		if err := e.pending(w, p.partner, ledger.ChannelPartner, p.roles.PartnerLabel(), m.sales.Partner); err != nil {
			return err
		}
		if _, err := w.Credit(p.customers, m.creditTotal(), "Daily Ops Customer Credits ("+day+")", md); err != nil {
			return err
		}
		note := m.sales.ForeignCurrencyNote
		if note == "" {
			note = "FC"
		}
		if _, err := w.Credit(p.fc, m.sales.ForeignCurrency, "Daily Ops Foreign Currency: "+note+" ("+day+")", md); err != nil {
			return err
		}

		for _, c := range m.credits {
			cust, err := tx.Customer(ctx, c.CustomerID)
			if err != nil {
				return err
			}
			cust.OutstandingBalance += c.Amount
			if err := tx.UpdateCustomer(ctx, cust); err != nil {
				return err
			}
			w.Step("customer " + cust.Name + " +" + c.Amount.String())
		}

		// The till is set to the count. The change from its live balance is
		// explained by the cash takings and the variance.
		live, err := w.ForceBalance(p.petty, physicalCount)
		if err != nil {
			return err
		}
		target := m.Target(live)
		variance := physicalCount - target
		if _, err := w.Journal(p.petty, m.sales.Gross-m.NonCash(), "Daily Ops Cash Sales ("+day+")", md); err != nil {
			return err
		}
		if _, err := w.Journal(p.petty, variance, "Cash Variance ("+day+")", md); err != nil {
			return err
		}

		session = ledger.ShiftSession{
			ID:                  m.id,
			Date:                m.date,
			ClosedAt:            w.Now(),
			OpeningBalance:      m.opening,
			GrossSales:          m.sales.Gross,
			CardSales:           m.sales.Card,
			PartnerSales:        m.sales.Partner,
			CustomerCredit:      m.creditTotal(),
			Expenses:            m.expenses,
			MoneyAdded:          m.moneyAdded,
			ForeignCurrency:     m.sales.ForeignCurrency,
			ForeignCurrencyNote: m.sales.ForeignCurrencyNote,
			TheoreticalCash:     target,
			PhysicalCount:       physicalCount,
			Variance:            variance,
			Actor:               actor.Name,
			OperationID:         w.OperationID(),
		}
		return tx.CreateShiftSession(ctx, session)
	})
	if err != nil {
		return ledger.ShiftSession{}, err
	}
	if session.Variance != 0 {
		e.log.Warn("shift closed with variance", "shift_id", session.ID, "variance_minor", session.Variance.Minor())
	}
	m.Close()
	return session, nil
}

func (e *Engine) pending(w *ops.Work, account uuid.UUID, ch ledger.ReceivableChannel, source string, amount ledger.Money) error {
	if amount <= 0 {
		return nil
	}
	r := ledger.ReceivableTransaction{
		ID:        uuid.New(),
		Date:      w.Date(),
		Source:    source,
		Channel:   ch,
		Amount:    amount,
		Status:    ledger.ReceivablePending,
		AccountID: account,
		CreatedAt: w.Now(),
	}
	if err := w.Tx().CreateReceivable(w.Context(), r); err != nil {
		return err
	}
	w.Step("receivable " + r.ID.String())
	return nil
}
