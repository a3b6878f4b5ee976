package v1

import (
	"net/http"

	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/service/settlement"
	"github.com/tinoosan/tillbook/internal/storage"
)

// listReceivables handles GET /v1/receivables?status=&channel=.
func (s *Server) listReceivables(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.ReceivableFilter{
		Status:  ledger.ReceivableStatus(q.Get("status")),
		Channel: ledger.ReceivableChannel(q.Get("channel")),
	}
	if f.Status != "" && !f.Status.Valid() {
		badRequest(w, "status must be pending or settled")
		return
	}
	if f.Channel != "" && !f.Channel.Valid() {
		badRequest(w, "channel must be card or partner")
		return
	}
	list, err := s.Records.ListReceivables(r.Context(), f)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, items(list, toReceivableResponse))
}

func (s *Server) settlePartner(w http.ResponseWriter, r *http.Request) {
	req := body[partnerSettlementRequest](r)
	alloc := settlement.Allocation{
		Cash:          ledger.Money(req.CashMinor),
		Card:          ledger.Money(req.CardMinor),
		PartnerOwed:   ledger.Money(req.PartnerOwedMinor),
		ServiceCharge: ledger.Money(req.ServiceChargeMinor),
	}
	res, err := s.Settlements.SettlePartner(r.Context(), req.TransactionID, alloc, req.Override, actorFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := partnerSettlementResponse{Receipt: s.toReceiptResponse(res.Receipt), MismatchMinor: res.Mismatch.Minor()}
	if res.Split != nil {
		split := toReceivableResponse(*res.Split)
		out.Split = &split
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) settleCardBatch(w http.ResponseWriter, r *http.Request) {
	req := body[cardBatchRequest](r)
	res, err := s.Settlements.SettleCardBatch(r.Context(), req.TransactionIDs, ledger.Money(req.NetMinor), req.TargetAccountID, actorFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, cardBatchResponse{
		Receipt:    s.toReceiptResponse(res.Receipt),
		GrossMinor: res.Gross.Minor(),
		NetMinor:   res.Net.Minor(),
		FeeMinor:   res.Fee.Minor(),
	})
}

func (s *Server) collectCustomer(w http.ResponseWriter, r *http.Request) {
	req := body[customerPaymentRequest](r)
	rec, err := s.Settlements.CollectCustomer(r.Context(), req.CustomerID, ledger.Money(req.AmountMinor), req.TargetAccountID, actorFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, s.toReceiptResponse(rec))
}

func (s *Server) payBill(w http.ResponseWriter, r *http.Request) {
	req := body[billPaymentRequest](r)
	rec, err := s.Settlements.PayBill(r.Context(), req.BillID, req.SourceAccountID, actorFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, s.toReceiptResponse(rec))
}

// depositCash moves till cash to the bank.
func (s *Server) depositCash(w http.ResponseWriter, r *http.Request) {
	req := body[depositRequest](r)
	rec, err := s.Settlements.DepositCash(r.Context(), ledger.Money(req.AmountMinor), req.TargetAccountID, actorFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, s.toReceiptResponse(rec))
}
