package journal

import (
	"context"
	"fmt"
	"iter"

	"github.com/google/uuid"
	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/meta"
	"github.com/tinoosan/tillbook/internal/service/ops"
	"github.com/tinoosan/tillbook/internal/storage"
)

// RepairDescription marks corrective entries written by Repair.
const RepairDescription = "LEDGER REPAIR: reconcile discrepancy"

// Repo defines read operations needed by the service.
type Repo interface {
	GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
	EntriesForAccount(ctx context.Context, accountID uuid.UUID) iter.Seq2[ledger.JournalEntry, error]
}

// Report is the outcome of reconciling one account against its journal.
type Report struct {
	AccountID       uuid.UUID
	AccountName     string
	StartingBalance ledger.Money
	LedgerSum       ledger.Money
	Balance         ledger.Money
	// Discrepancy is Balance - LedgerSum.
	Discrepancy ledger.Money
	Entries     int
}

func (r Report) Balanced() bool { return r.Discrepancy == 0 }

// Service exposes the journal: raw appends, history, and the balance checks.
type Service interface {
	Append(ctx context.Context, e ledger.JournalEntry, actor ops.Actor) (ledger.JournalEntry, error)
	EntriesFor(ctx context.Context, accountID uuid.UUID) (iter.Seq2[ledger.JournalEntry, error], error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (Report, error)
	Repair(ctx context.Context, accountID uuid.UUID, actor ops.Actor) (*ledger.JournalEntry, error)
	Audit(ctx context.Context) ([]Report, error)
}

type service struct {
	repo   Repo
	runner *ops.Runner
}

func New(repo Repo, runner *ops.Runner) Service { return &service{repo: repo, runner: runner} }

// Append inserts e as-is. It never moves the balance; callers that want both
// use the transfer service.
func (s *service) Append(ctx context.Context, e ledger.JournalEntry, actor ops.Actor) (ledger.JournalEntry, error) {
	if err := e.Validate(); err != nil {
		return ledger.JournalEntry{}, err
	}
	op := ops.Op{Name: "journal.append", Actor: actor, Keys: []uuid.UUID{e.AccountID}, Date: e.Date}
	var out ledger.JournalEntry
	_, err := s.runner.Run(ctx, op, func(w *ops.Work) error {
		var err error
		out, err = w.Insert(e)
		return err
	})
	return out, err
}

func (s *service) EntriesFor(ctx context.Context, accountID uuid.UUID) (iter.Seq2[ledger.JournalEntry, error], error) {
	if _, err := s.repo.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.repo.EntriesForAccount(ctx, accountID), nil
}

// Reconcile compares the balance with startingBalance + Σ signed entries,
// holding the account lock so no operation lands between the two reads.
func (s *service) Reconcile(ctx context.Context, accountID uuid.UUID) (Report, error) {
	var rep Report
	err := s.runner.View(ctx, []uuid.UUID{accountID}, func(tx storage.Tx) error {
		var err error
		rep, err = reconcile(ctx, tx, accountID)
		return err
	})
	return rep, err
}

func reconcile(ctx context.Context, tx storage.Tx, accountID uuid.UUID) (Report, error) {
	acc, err := tx.Account(ctx, accountID)
	if err != nil {
		return Report{}, err
	}
	total, n, err := tx.JournalTotal(ctx, accountID)
	if err != nil {
		return Report{}, err
	}
	sum := acc.StartingBalance + total
	return Report{
		AccountID:       acc.ID,
		AccountName:     acc.Name,
		StartingBalance: acc.StartingBalance,
		LedgerSum:       sum,
		Balance:         acc.CurrentBalance,
		Discrepancy:     acc.CurrentBalance - sum,
		Entries:         n,
	}, nil
}

// Repair appends one corrective entry equal to the discrepancy so the journal
// explains the balance again. A balanced account gets no entry.
func (s *service) Repair(ctx context.Context, accountID uuid.UUID, actor ops.Actor) (*ledger.JournalEntry, error) {
	var out *ledger.JournalEntry
	op := ops.Op{Name: "journal.repair", Actor: actor, Keys: []uuid.UUID{accountID}}
	_, err := s.runner.Run(ctx, op, func(w *ops.Work) error {
		out = nil
		rep, err := reconcile(w.Context(), w.Tx(), accountID)
		if err != nil {
			return err
		}
		if rep.Balanced() {
			return nil
		}
		kind, amount := ledger.KindFor(rep.Discrepancy)
		e, err := w.Insert(ledger.JournalEntry{
			AccountID:   accountID,
			Kind:        kind,
			Amount:      amount,
			Description: RepairDescription,
			Metadata:    meta.Of("ledger_sum_minor", fmt.Sprint(rep.LedgerSum.Minor()), "balance_minor", fmt.Sprint(rep.Balance.Minor())),
		})
		if err != nil {
			return err
		}
		out = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out != nil {
		s.runner.Logger().Warn("ledger repaired", "account_id", accountID, "kind", out.Kind, "amount_minor", out.Amount.Minor(), "actor", actor.Name)
	}
	return out, nil
}

// Audit reconciles every account. When any is out of balance the reports are
// returned together with an *errs.IntegrityError naming each one.
func (s *service) Audit(ctx context.Context) ([]Report, error) {
	accounts, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]Report, 0, len(accounts))
	var bad []errs.Discrepancy
	for _, a := range accounts {
		rep, err := s.Reconcile(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
		if !rep.Balanced() {
			bad = append(bad, errs.Discrepancy{
				AccountID:   rep.AccountID,
				AccountName: rep.AccountName,
				LedgerSum:   rep.LedgerSum.Minor(),
				Balance:     rep.Balance.Minor(),
				Difference:  rep.Discrepancy.Minor(),
			})
		}
	}
	if len(bad) > 0 {
		ierr := &errs.IntegrityError{Discrepancies: bad}
		s.runner.Alert(ctx, "integrity", ierr, "accounts", len(bad))
		return reports, ierr
	}
	return reports, nil
}
