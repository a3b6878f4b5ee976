// Package shift is the reconciliation engine: a shift opens (optionally with
// a float from another account), accumulates the day's sales figures, and
// closes by reconciling the counted till against the theoretical balance.
package shift

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
)

type State string

const (
	StateClosed State = "closed"
	StateOpen   State = "open"
)

// Sales are the figures keyed in from the POS report.
type Sales struct {
	Gross               ledger.Money
	Card                ledger.Money
	Partner             ledger.Money
	ForeignCurrency     ledger.Money
	ForeignCurrencyNote string
}

// Validate rejects negative figures.
func (s Sales) Validate() error {
	if s.Gross < 0 || s.Card < 0 || s.Partner < 0 || s.ForeignCurrency < 0 {
		return fmt.Errorf("%w: sales figures must be >= 0", errs.ErrInvalidAmount)
	}
	return nil
}

// Credit is a sale taken on a customer's tab.
type Credit struct {
	CustomerID uuid.UUID
	Amount     ledger.Money
}

// Snapshot is the read-only view of the machine.
type Snapshot struct {
	State          State
	ShiftID        uuid.UUID
	Date           time.Time
	OpenedAt       time.Time
	OpenedBy       string
	OpeningBalance ledger.Money
	MoneyAdded     ledger.Money
	Expenses       ledger.Money
	Sales          Sales
	Credits        []Credit
	CreditTotal    ledger.Money
}

// Machine holds the shift state. It has no I/O; the Engine drives it and
// applies ledger effects.
type Machine struct {
	state    State
	id       uuid.UUID
	date     time.Time
	openedAt time.Time
	openedBy string

	opening    ledger.Money
	moneyAdded ledger.Money
	expenses   ledger.Money
	sales      Sales
	credits    []Credit
}

// State reports whether a shift is open. The zero Machine is closed.
func (m *Machine) State() State {
	if m.state == "" {
		return StateClosed
	}
	return m.state
}

// Open starts a shift, resetting every accumulator.
func (m *Machine) Open(id uuid.UUID, date, at time.Time, by string, opening, float ledger.Money) error {
	if m.State() == StateOpen {
		return errs.ErrShiftOpen
	}
	*m = Machine{
		state:      StateOpen,
		id:         id,
		date:       ledger.BusinessDate(date),
		openedAt:   at,
		openedBy:   by,
		opening:    opening,
		moneyAdded: float,
	}
	return nil
}

func (m *Machine) requireOpen() error {
	if m.State() != StateOpen {
		return errs.ErrShiftNotOpen
	}
	return nil
}

// RecordSales replaces the sales figures after validating them.
func (m *Machine) RecordSales(s Sales) error {
	if err := m.requireOpen(); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	m.sales = s
	return nil
}

// SetCredits replaces the credit list. Repeated customers are merged.
func (m *Machine) SetCredits(credits []Credit) error {
	if err := m.requireOpen(); err != nil {
		return err
	}
	merged := make([]Credit, 0, len(credits))
	idx := make(map[uuid.UUID]int, len(credits))
	for _, c := range credits {
		if c.CustomerID == uuid.Nil {
			return fmt.Errorf("%w: customer is required", errs.ErrInvalid)
		}
		if c.Amount <= 0 {
			return fmt.Errorf("%w: credit amount must be > 0", errs.ErrInvalidAmount)
		}
		if i, ok := idx[c.CustomerID]; ok {
			merged[i].Amount += c.Amount
			continue
		}
		idx[c.CustomerID] = len(merged)
		merged = append(merged, c)
	}
	m.credits = merged
	return nil
}

// AddExpense tallies an expense paid from the till.
func (m *Machine) AddExpense(amount ledger.Money) error {
	if err := m.requireOpen(); err != nil {
		return err
	}
	m.expenses += amount
	return nil
}

func (m *Machine) creditTotal() ledger.Money {
	var total ledger.Money
	for _, c := range m.credits {
		total += c.Amount
	}
	return total
}

// NonCash is every part of gross that did not land in the till.
func (m *Machine) NonCash() ledger.Money {
	return m.sales.Card + m.sales.Partner + m.creditTotal() + m.sales.ForeignCurrency
}

// Target is the till balance the count should show given the live balance.
func (m *Machine) Target(pettyCash ledger.Money) ledger.Money {
	return pettyCash + m.sales.Gross - m.NonCash()
}

// Close clears the accumulators.
func (m *Machine) Close() { *m = Machine{state: StateClosed} }

// Snapshot copies the accumulators.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		State:          m.State(),
		ShiftID:        m.id,
		Date:           m.date,
		OpenedAt:       m.openedAt,
		OpenedBy:       m.openedBy,
		OpeningBalance: m.opening,
		MoneyAdded:     m.moneyAdded,
		Expenses:       m.expenses,
		Sales:          m.sales,
		Credits:        append([]Credit(nil), m.credits...),
		CreditTotal:    m.creditTotal(),
	}
}
