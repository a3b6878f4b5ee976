package v1

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/meta"
)

func idParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid account id")
		return uuid.Nil, false
	}
	return id, true
}

// postAccount handles POST /v1/accounts.
func (s *Server) postAccount(w http.ResponseWriter, r *http.Request) {
	req := body[postAccountRequest](r)
	acc, err := s.Accounts.Create(r.Context(), ledger.Account{
		Name:            req.Name,
		Type:            req.Type,
		StartingBalance: ledger.Money(req.StartingBalanceMinor),
		Metadata:        meta.New(req.Metadata),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, s.toAccountResponse(acc))
}

// listAccounts handles GET /v1/accounts. Inactive accounts are hidden unless ?include_inactive=true.
func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := s.Accounts.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	all := r.URL.Query().Get("include_inactive") == "true"
	out := listResponse[accountResponse]{Items: []accountResponse{}}
	for _, a := range list {
		if a.Active || all {
			out.Items = append(out.Items, s.toAccountResponse(a))
		}
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	acc, err := s.Accounts.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, s.toAccountResponse(acc))
}

// renameAccount handles PATCH /v1/accounts/{id}. Only the name is mutable.
func (s *Server) renameAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	acc, err := s.Accounts.Rename(r.Context(), id, body[patchAccountRequest](r).Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, s.toAccountResponse(acc))
}

// deactivateAccount handles DELETE /v1/accounts/{id} by soft-deactivating (active=false).
func (s *Server) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.Accounts.Deactivate(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getAccountBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	bal, err := s.Accounts.Balance(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, balanceResponse{AccountID: id, BalanceMinor: bal.Minor(), Balance: bal.Format(s.currency)})
}

// getAccountLedger handles GET /v1/accounts/{id}/ledger, newest entry first.
func (s *Server) getAccountLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	seq, err := s.Journal.EntriesFor(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := listResponse[entryResponse]{Items: []entryResponse{}}
	for e, err := range seq {
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		out.Items = append(out.Items, s.toEntryResponse(e))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) reconcileAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	rep, err := s.Journal.Reconcile(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toReportResponse(rep))
}

// repairAccount handles POST /v1/accounts/{id}/repair. A balanced account
// returns repaired=false and no entry.
func (s *Server) repairAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	e, err := s.Journal.Repair(r.Context(), id, actorFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := repairResponse{Repaired: e != nil}
	if e != nil {
		er := s.toEntryResponse(*e)
		resp.Entry = &er
	}
	toJSON(w, http.StatusOK, resp)
}

// audit handles GET /v1/audit. Any discrepancy turns the response into an integrity error.
func (s *Server) audit(w http.ResponseWriter, r *http.Request) {
	reports, err := s.Journal.Audit(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, items(reports, toReportResponse))
}

func (s *Server) getRoles(w http.ResponseWriter, r *http.Request) {
	m, err := s.Accounts.Roles(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toRolesResponse(m))
}

// putRoles replaces the whole mapping; omitted roles become unconfigured.
func (s *Server) putRoles(w http.ResponseWriter, r *http.Request) {
	m, err := s.Accounts.UpdateRoles(r.Context(), body[rolesRequest](r).mapping())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toRolesResponse(m))
}
