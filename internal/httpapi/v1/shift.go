package v1

import (
	"net/http"

	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/service/shift"
)

func (s *Server) getShift(w http.ResponseWriter, r *http.Request) {
	toJSON(w, http.StatusOK, toSnapshotResponse(s.Shift.Snapshot()))
}

// openShift handles POST /v1/shift/open. An optional float is moved into the
// till before the shift opens.
func (s *Server) openShift(w http.ResponseWriter, r *http.Request) {
	req := body[openShiftRequest](r)
	var float *shift.Float
	if req.Float != nil {
		float = &shift.Float{SourceAccountID: req.Float.SourceAccountID, Amount: ledger.Money(req.Float.AmountMinor)}
	}
	snap, err := s.Shift.OpenShift(r.Context(), deref(req.Date), float, actorFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, toSnapshotResponse(snap))
}

// putSales replaces the POS figures for the open shift.
func (s *Server) putSales(w http.ResponseWriter, r *http.Request) {
	req := body[salesRequest](r)
	err := s.Shift.RecordSales(shift.Sales{
		Gross:               ledger.Money(req.GrossMinor),
		Card:                ledger.Money(req.CardMinor),
		Partner:             ledger.Money(req.PartnerMinor),
		ForeignCurrency:     ledger.Money(req.ForeignCurrencyMinor),
		ForeignCurrencyNote: req.ForeignCurrencyNote,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toSnapshotResponse(s.Shift.Snapshot()))
}

// putCredits replaces the customer credit list for the open shift.
func (s *Server) putCredits(w http.ResponseWriter, r *http.Request) {
	req := body[creditsRequest](r)
	credits := make([]shift.Credit, 0, len(req.Credits))
	for _, c := range req.Credits {
		credits = append(credits, shift.Credit{CustomerID: c.CustomerID, Amount: ledger.Money(c.AmountMinor)})
	}
	if err := s.Shift.SetCustomerCredits(r.Context(), credits); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toSnapshotResponse(s.Shift.Snapshot()))
}

// postShiftExpense posts an expense during the shift. Petty cash expenses count toward the target.
func (s *Server) postShiftExpense(w http.ResponseWriter, r *http.Request) {
	res, err := s.Shift.PostExpense(r.Context(), body[expenseRequest](r).expense(), actorFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, s.toExpenseResponse(res))
}

func (s *Server) getTarget(w http.ResponseWriter, r *http.Request) {
	t, err := s.Shift.Target(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, targetResponse{TargetMinor: t.Minor(), Target: t.Format(s.currency)})
}

// closeShift handles POST /v1/shift/close with either a physical count in
// minor units or a note-by-note cash count.
func (s *Server) closeShift(w http.ResponseWriter, r *http.Request) {
	req := body[closeShiftRequest](r)
	var counted ledger.Money
	if req.PhysicalCountMinor != nil {
		if *req.PhysicalCountMinor > maxAmountMinor {
			writeErr(w, http.StatusUnprocessableEntity, "physical_count_minor: must be at most 1000000000000000", "validation_error")
			return
		}
		counted = ledger.Money(*req.PhysicalCountMinor)
	} else {
		cc := shift.CashCount{Notes: req.CashCount.Notes, Coins: ledger.Money(req.CashCount.CoinsMinor)}
		total, err := cc.Total(s.currency)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		counted = total
	}
	session, err := s.Shift.CloseShift(r.Context(), counted, actorFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, s.toSessionResponse(session))
}

// listShifts handles GET /v1/shifts, newest first.
func (s *Server) listShifts(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.Records.ListShiftSessions(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, items(sessions, s.toSessionResponse))
}
