// Package v1 wires the HTTP surface of the till service.
// It keeps handlers thin, delegating business rules to the service layer.
package v1

import (
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/ulule/limiter/v3"

	"github.com/tinoosan/tillbook/internal/service/account"
	"github.com/tinoosan/tillbook/internal/service/journal"
	"github.com/tinoosan/tillbook/internal/service/settlement"
	"github.com/tinoosan/tillbook/internal/service/transfer"
	"github.com/tinoosan/tillbook/internal/storage"
)

// Deps are the services behind the API.
type Deps struct {
	Accounts    account.Service
	Journal     journal.Service
	Transfers   transfer.Service
	Settlements settlement.Service
	Shift       ShiftEngine
	Records     storage.Records
	// Ready is probed by /readyz when set.
	Ready ReadyChecker
}

// Options configure the ambient HTTP behaviour.
type Options struct {
	// Currency is the ledger currency used for formatting and cash counts.
	Currency string
	Auth     AuthConfig
	// Limiter enables per-client rate limiting when set.
	Limiter *limiter.Limiter
}

// Server wires handlers and middleware using Chi.
type Server struct {
	Deps
	currency string
	validate *validator.Validate
	log      *slog.Logger
	rt       *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
func New(d Deps, opts Options, logger *slog.Logger) *Server {
	if opts.Currency == "" {
		opts.Currency = "LKR"
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)
	if opts.Limiter != nil {
		r.Use(rateLimit(opts.Limiter, logger))
	}
	r.Use(authenticate(opts.Auth, logger))

	s := &Server{
		Deps:     d,
		currency: opts.Currency,
		validate: newValidator(),
		log:      logger,
		rt:       r,
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints and attaches any per-route middleware.
func (s *Server) routes() {
	r := s.rt
	// Accounts
	r.With(validateBody[postAccountRequest](s)).Post("/v1/accounts", s.postAccount)
	r.Get("/v1/accounts", s.listAccounts)
	r.Get("/v1/accounts/{id}", s.getAccount)
	r.With(validateBody[patchAccountRequest](s)).Patch("/v1/accounts/{id}", s.renameAccount)
	r.Delete("/v1/accounts/{id}", s.deactivateAccount)
	r.Get("/v1/accounts/{id}/balance", s.getAccountBalance)
	r.Get("/v1/accounts/{id}/ledger", s.getAccountLedger)
	r.Get("/v1/accounts/{id}/reconcile", s.reconcileAccount)
	r.Post("/v1/accounts/{id}/repair", s.repairAccount)
	r.Get("/v1/audit", s.audit)
	// Settings
	r.Get("/v1/settings/roles", s.getRoles)
	r.With(validateBody[rolesRequest](s)).Put("/v1/settings/roles", s.putRoles)
	// Money movements
	r.With(validateBody[transferRequest](s)).Post("/v1/transfers", s.postTransfer)
	r.With(requireRole(roleAdmin), validateBody[adjustmentRequest](s)).Post("/v1/adjustments", s.postAdjustment)
	r.With(validateBody[expenseRequest](s)).Post("/v1/expenses", s.postExpense)
	// Shift
	r.Get("/v1/shift", s.getShift)
	r.With(validateBody[openShiftRequest](s)).Post("/v1/shift/open", s.openShift)
	r.With(validateBody[salesRequest](s)).Put("/v1/shift/sales", s.putSales)
	r.With(validateBody[creditsRequest](s)).Put("/v1/shift/credits", s.putCredits)
	r.With(validateBody[expenseRequest](s)).Post("/v1/shift/expenses", s.postShiftExpense)
	r.Get("/v1/shift/target", s.getTarget)
	r.With(validateBody[closeShiftRequest](s)).Post("/v1/shift/close", s.closeShift)
	r.Get("/v1/shifts", s.listShifts)
	// Receivables and settlements
	r.Get("/v1/receivables", s.listReceivables)
	r.With(validateBody[partnerSettlementRequest](s)).Post("/v1/settlements/partner", s.settlePartner)
	r.With(validateBody[cardBatchRequest](s)).Post("/v1/settlements/card-batch", s.settleCardBatch)
	r.With(validateBody[customerPaymentRequest](s)).Post("/v1/settlements/customer", s.collectCustomer)
	r.With(validateBody[billPaymentRequest](s)).Post("/v1/settlements/bill", s.payBill)
	r.With(validateBody[depositRequest](s)).Post("/v1/settlements/deposit", s.depositCash)
	// Parties and bills
	r.With(validateBody[customerRequest](s)).Post("/v1/customers", s.postCustomer)
	r.Get("/v1/customers", s.listCustomers)
	r.With(validateBody[vendorRequest](s)).Post("/v1/vendors", s.postVendor)
	r.Get("/v1/vendors", s.listVendors)
	r.Get("/v1/bills", s.listBills)
	// Dictionary
	r.Get("/v1/dictionary/account-types", s.getAccountTypesDictionary)
	r.Get("/v1/dictionary/denominations", s.getDenominationsDictionary)
	// Health and metrics (unversioned)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metricsHandler())
}
