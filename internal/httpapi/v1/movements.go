package v1

import (
	"net/http"
	"time"

	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/service/transfer"
)

func (s *Server) postTransfer(w http.ResponseWriter, r *http.Request) {
	req := body[transferRequest](r)
	rec, err := s.Transfers.Transfer(r.Context(), req.FromAccountID, req.ToAccountID, ledger.Money(req.AmountMinor), req.Note, actorFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, s.toReceiptResponse(rec))
}

// postAdjustment is admin-only; requireRole guards the route.
func (s *Server) postAdjustment(w http.ResponseWriter, r *http.Request) {
	req := body[adjustmentRequest](r)
	rec, err := s.Transfers.Adjust(r.Context(), transfer.Adjustment{
		AccountID: req.AccountID,
		Direction: transfer.Direction(req.Direction),
		Amount:    ledger.Money(req.AmountMinor),
		Reason:    req.Reason,
	}, actorFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, s.toReceiptResponse(rec))
}

func (req expenseRequest) expense() transfer.Expense {
	exp := transfer.Expense{
		SourceAccountID: req.SourceAccountID,
		Amount:          ledger.Money(req.AmountMinor),
		Category:        req.Category,
		Subcategory:     req.Subcategory,
		VendorID:        req.VendorID,
		Note:            req.Note,
		Recurring:       req.Recurring,
	}
	exp.DueDate = deref(req.DueDate)
	exp.Date = deref(req.Date)
	return exp
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// postExpense books an expense outside the shift. Payable sources also raise a bill.
func (s *Server) postExpense(w http.ResponseWriter, r *http.Request) {
	res, err := s.Transfers.PostExpense(r.Context(), body[expenseRequest](r).expense(), actorFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, s.toExpenseResponse(res))
}

func (s *Server) toExpenseResponse(res transfer.ExpenseResult) expenseResponse {
	out := expenseResponse{Receipt: s.toReceiptResponse(res.Receipt)}
	if res.Bill != nil {
		b := toBillResponse(*res.Bill)
		out.Bill = &b
	}
	return out
}
