package v1

import (
	"context"
	"time"

	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/service/ops"
	"github.com/tinoosan/tillbook/internal/service/shift"
	"github.com/tinoosan/tillbook/internal/service/transfer"
)

// ShiftEngine is the reconciliation engine as the API drives it.
type ShiftEngine interface {
	Snapshot() shift.Snapshot
	OpenShift(ctx context.Context, date time.Time, float *shift.Float, actor ops.Actor) (shift.Snapshot, error)
	RecordSales(s shift.Sales) error
	SetCustomerCredits(ctx context.Context, credits []shift.Credit) error
	PostExpense(ctx context.Context, exp transfer.Expense, actor ops.Actor) (transfer.ExpenseResult, error)
	Target(ctx context.Context) (ledger.Money, error)
	CloseShift(ctx context.Context, physicalCount ledger.Money, actor ops.Actor) (ledger.ShiftSession, error)
}

// ReadyChecker is optionally implemented by stores to indicate readiness.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}
