package v1

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
)

func (s *Server) postCustomer(w http.ResponseWriter, r *http.Request) {
	req := body[customerRequest](r)
	c, err := s.Records.CreateCustomer(r.Context(), ledger.Customer{ID: uuid.New(), Name: strings.TrimSpace(req.Name)})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, toCustomerResponse(c))
}

func (s *Server) listCustomers(w http.ResponseWriter, r *http.Request) {
	list, err := s.Records.ListCustomers(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, items(list, toCustomerResponse))
}

// postVendor creates a vendor. A backing account, when given, must be an active payable account.
func (s *Server) postVendor(w http.ResponseWriter, r *http.Request) {
	req := body[vendorRequest](r)
	if req.PayableAccountID != uuid.Nil {
		acc, err := s.Accounts.Get(r.Context(), req.PayableAccountID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if acc.Type != ledger.AccountTypePayable {
			s.writeServiceError(w, r, fmt.Errorf("%w: %s is not a payable account", errs.ErrInvalid, acc.Name))
			return
		}
		if !acc.Active {
			s.writeServiceError(w, r, fmt.Errorf("%w: %s", errs.ErrAccountInactive, acc.Name))
			return
		}
	}
	v, err := s.Records.CreateVendor(r.Context(), ledger.Vendor{ID: uuid.New(), Name: strings.TrimSpace(req.Name), PayableAccountID: req.PayableAccountID})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, toVendorResponse(v))
}

func (s *Server) listVendors(w http.ResponseWriter, r *http.Request) {
	list, err := s.Records.ListVendors(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, items(list, toVendorResponse))
}

// listBills handles GET /v1/bills?status=.
func (s *Server) listBills(w http.ResponseWriter, r *http.Request) {
	status := ledger.BillStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		badRequest(w, "status must be pending or paid")
		return
	}
	list, err := s.Records.ListBills(r.Context(), status)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, items(list, toBillResponse))
}
