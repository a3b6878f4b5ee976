// Package ops runs logical operations as single units of work. Every balance
// mutation made through a Work is journaled in the same unit, and the deltas
// are checked against the journaled sums before the unit commits.
package ops

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/storage"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 50 * time.Millisecond
)

// Actor identifies who requested an operation. Role is informational; the
// core does not authorize.
type Actor struct {
	Name string
	Role string
}

// Op describes one logical operation.
type Op struct {
	Name  string
	Actor Actor
	// Keys are the ids of every record the operation writes.
	Keys []uuid.UUID
	// Date is the business date stamped on entries; zero means today.
	Date time.Time
}

// Receipt is what a committed operation produced.
type Receipt struct {
	OperationID uuid.UUID
	Entries     []ledger.JournalEntry
	Steps       []string
}

type Runner struct {
	store       storage.Atomic
	log         *slog.Logger
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
}

type Option func(*Runner)

func WithMaxAttempts(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func WithBackoff(d time.Duration) Option {
	return func(r *Runner) {
		if d >= 0 {
			r.backoff = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

func NewRunner(store storage.Atomic, log *slog.Logger, opts ...Option) *Runner {
	if log == nil {
		log = slog.Default()
	}
	r := &Runner{store: store, log: log, maxAttempts: DefaultMaxAttempts, backoff: DefaultBackoff, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Runner) Logger() *slog.Logger { return r.log }

func (r *Runner) Now() time.Time { return r.now().UTC() }

// Run executes fn inside one unit of work holding op.Keys. fn may run more
// than once when the store reports contention, each time with a fresh Work.
func (r *Runner) Run(ctx context.Context, op Op, fn func(*Work) error) (Receipt, error) {
	opID := uuid.New()
	var w *Work
	err := r.retry(ctx, op.Name, func() error {
		return r.store.Atomically(ctx, op.Keys, func(tx storage.Tx) error {
			w = newWork(ctx, tx, op, opID, r.Now())
			if err := fn(w); err != nil {
				return err
			}
			return w.verify()
		})
	})
	if err == nil {
		operationsTotal.WithLabelValues(op.Name, "ok").Inc()
		r.log.Info("operation committed", "op", op.Name, "operation_id", opID, "actor", op.Actor.Name, "entries", len(w.entries))
		return Receipt{OperationID: opID, Entries: w.entries, Steps: w.steps}, nil
	}
	if errors.Is(err, storage.ErrCommitUnknown) {
		var steps []string
		if w != nil {
			steps = w.steps
		}
		perr := &errs.PartialApplicationError{Operation: op.Name, OperationID: opID, Completed: steps, Err: err}
		r.Alert(ctx, "partial", perr, "operation_id", opID, "steps", steps)
		err = perr
	}
	var ierr *errs.IntegrityError
	if errors.As(err, &ierr) {
		r.Alert(ctx, "integrity", err, "operation_id", opID, "op", op.Name)
	}
	operationsTotal.WithLabelValues(op.Name, outcome(err)).Inc()
	return Receipt{}, err
}

// View runs a read-only fn holding keys, so the reads see a consistent snapshot.
func (r *Runner) View(ctx context.Context, keys []uuid.UUID, fn func(storage.Tx) error) error {
	return r.retry(ctx, "view", func() error { return r.store.Atomically(ctx, keys, fn) })
}

// Alert logs err at ERROR and counts it as an integrity alert of kind.
func (r *Runner) Alert(ctx context.Context, kind string, err error, attrs ...any) {
	integrityAlerts.WithLabelValues(kind).Inc()
	r.log.ErrorContext(ctx, "integrity alert", append([]any{"kind", kind, "err", err}, attrs...)...)
}

func (r *Runner) retry(ctx context.Context, name string, attempt func() error) error {
	var err error
	for n := 1; n <= r.maxAttempts; n++ {
		err = attempt()
		if err == nil || !errors.Is(err, errs.ErrContention) || n == r.maxAttempts {
			return err
		}
		wait := r.backoff << (n - 1)
		r.log.Warn("contention, retrying", "op", name, "attempt", n, "wait", wait)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}

func outcome(err error) string {
	switch {
	case errors.Is(err, errs.ErrContention):
		return "contention"
	case errors.Is(err, errs.ErrPartialApplication):
		return "partial"
	case errors.Is(err, errs.ErrIntegrity):
		return "integrity"
	case errors.Is(err, errs.ErrNotFound):
		return "not_found"
	case errors.Is(err, errs.ErrConflict):
		return "conflict"
	case errors.Is(err, errs.ErrInvalid):
		return "invalid"
	}
	return "error"
}
