package v1

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3"

	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/service/account"
	"github.com/tinoosan/tillbook/internal/service/journal"
	"github.com/tinoosan/tillbook/internal/service/ops"
	"github.com/tinoosan/tillbook/internal/service/settlement"
	"github.com/tinoosan/tillbook/internal/service/shift"
	"github.com/tinoosan/tillbook/internal/service/transfer"
	"github.com/tinoosan/tillbook/internal/storage/memory"
)

const testSecret = "test-secret"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newServer(t *testing.T, opts Options) *Server {
	t.Helper()
	store := memory.New()
	runner := ops.NewRunner(store, testLogger())
	transfers := transfer.New(runner)
	return New(Deps{
		Accounts:    account.New(store, store),
		Journal:     journal.New(store, runner),
		Transfers:   transfers,
		Settlements: settlement.New(runner),
		Shift:       shift.NewEngine(runner, transfers),
		Records:     store,
	}, opts, testLogger())
}

type call struct {
	method, path string
	body         any
	token        string
}

func do(t *testing.T, h http.Handler, c call) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if c.body != nil {
		b, err := json.Marshal(c.body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(c.method, c.path, rd)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func createAccount(t *testing.T, h http.Handler, name, typ string, bal int64) accountResponse {
	t.Helper()
	rr := do(t, h, call{method: http.MethodPost, path: "/v1/accounts", body: map[string]any{"name": name, "type": typ, "starting_balance_minor": bal}})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[accountResponse](t, rr)
}

func TestAccounts_CRUD(t *testing.T) {
	h := newServer(t, Options{}).Handler()

	till := createAccount(t, h, "Petty Cash", "petty_cash", 150000)
	assert.Equal(t, int64(150000), till.CurrentBalanceMinor)
	assert.Equal(t, "LKR 1500.00", till.CurrentBalance)

	rr := do(t, h, call{method: http.MethodPost, path: "/v1/accounts", body: map[string]any{"name": "petty-cash", "type": "assets"}})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "duplicate_name", decode[errorResponse](t, rr).Code)

	rr = do(t, h, call{method: http.MethodPatch, path: "/v1/accounts/" + till.ID.String(), body: map[string]any{"name": "Front Till"}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Front Till", decode[accountResponse](t, rr).Name)

	rr = do(t, h, call{method: http.MethodGet, path: "/v1/accounts/" + till.ID.String() + "/balance"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(150000), decode[balanceResponse](t, rr).BalanceMinor)

	rr = do(t, h, call{method: http.MethodDelete, path: "/v1/accounts/" + till.ID.String()})
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, h, call{method: http.MethodGet, path: "/v1/accounts"})
	assert.Empty(t, decode[listResponse[accountResponse]](t, rr).Items)
	rr = do(t, h, call{method: http.MethodGet, path: "/v1/accounts?include_inactive=true"})
	assert.Len(t, decode[listResponse[accountResponse]](t, rr).Items, 1)

	rr = do(t, h, call{method: http.MethodGet, path: "/v1/accounts/" + uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(t, h, call{method: http.MethodGet, path: "/v1/accounts/not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRequestValidation(t *testing.T) {
	h := newServer(t, Options{}).Handler()

	rr := do(t, h, call{method: http.MethodPost, path: "/v1/accounts", body: map[string]any{"type": "assets"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	e := decode[errorResponse](t, rr)
	assert.Equal(t, "validation_error", e.Code)
	assert.Contains(t, e.Error, "name")

	rr = do(t, h, call{method: http.MethodPost, path: "/v1/accounts", body: map[string]any{"name": "X", "type": "equity"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, h, call{method: http.MethodPost, path: "/v1/accounts", body: map[string]any{"name": "X", "type": "assets", "colour": "red"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/accounts", bytes.NewBufferString(`{"name":"X","type":"assets"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rr = do(t, h, call{method: http.MethodPost, path: "/v1/shift/close", body: map[string]any{}})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	rr = do(t, h, call{method: http.MethodPost, path: "/v1/shift/close", body: map[string]any{
		"physical_count_minor": 100, "cash_count": map[string]any{"coins_minor": 100},
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	// Amounts past the cap are refused before any arithmetic runs.
	tooBig := int64(maxAmountMinor) + 1
	for _, c := range []struct {
		path string
		body map[string]any
	}{
		{"/v1/transfers", map[string]any{"from_account_id": uuid.New(), "to_account_id": uuid.New(), "amount_minor": tooBig}},
		{"/v1/shift/sales", map[string]any{"gross_minor": tooBig}},
		{"/v1/shift/close", map[string]any{"physical_count_minor": tooBig}},
		{"/v1/shift/close", map[string]any{"cash_count": map[string]any{"notes": map[string]any{"5000": int64(36893488147420)}}}},
	} {
		method := http.MethodPost
		if c.path == "/v1/shift/sales" {
			method = http.MethodPut
		}
		rr = do(t, h, call{method: method, path: c.path, body: c.body})
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, c.path)
		assert.Equal(t, "validation_error", decode[errorResponse](t, rr).Code, c.path)
	}
}

func TestTransferAndLedger(t *testing.T) {
	h := newServer(t, Options{}).Handler()
	till := createAccount(t, h, "Petty Cash", "petty_cash", 100000)
	bank := createAccount(t, h, "Bank", "assets", 0)

	rr := do(t, h, call{method: http.MethodPost, path: "/v1/transfers", body: map[string]any{
		"from_account_id": till.ID, "to_account_id": bank.ID, "amount_minor": 25000, "note": "banking",
	}})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rec := decode[receiptResponse](t, rr)
	require.Len(t, rec.Entries, 2)
	assert.Equal(t, rec.OperationID, rec.Entries[0].OperationID)

	rr = do(t, h, call{method: http.MethodGet, path: "/v1/accounts/" + bank.ID.String() + "/ledger"})
	require.Equal(t, http.StatusOK, rr.Code)
	ledgerRows := decode[listResponse[entryResponse]](t, rr).Items
	require.Len(t, ledgerRows, 1)
	assert.Equal(t, int64(25000), ledgerRows[0].AmountMinor)
	assert.Equal(t, "income", string(ledgerRows[0].Kind))
	assert.Equal(t, "local", ledgerRows[0].Actor)

	rr = do(t, h, call{method: http.MethodGet, path: "/v1/accounts/" + till.ID.String() + "/reconcile"})
	require.Equal(t, http.StatusOK, rr.Code)
	rep := decode[reportResponse](t, rr)
	assert.True(t, rep.Balanced)
	assert.Equal(t, int64(75000), rep.BalanceMinor)

	rr = do(t, h, call{method: http.MethodPost, path: "/v1/transfers", body: map[string]any{
		"from_account_id": till.ID, "to_account_id": till.ID, "amount_minor": 1,
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "same_account", decode[errorResponse](t, rr).Code)

	rr = do(t, h, call{method: http.MethodPost, path: "/v1/transfers", body: map[string]any{
		"from_account_id": till.ID, "to_account_id": bank.ID, "amount_minor": 0,
	}})
	assert.Equal(t, "invalid_amount", decode[errorResponse](t, rr).Code)

	rr = do(t, h, call{method: http.MethodGet, path: "/v1/audit"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[listResponse[reportResponse]](t, rr).Items, 2)
}

func TestShiftLifecycle(t *testing.T) {
	h := newServer(t, Options{Currency: "LKR"}).Handler()
	till := createAccount(t, h, "Petty Cash", "petty_cash", 100000)
	sales := createAccount(t, h, "Sales", "income", 0)
	card := createAccount(t, h, "Card Clearing", "receivable", 0)

	rr := do(t, h, call{method: http.MethodPut, path: "/v1/settings/roles", body: map[string]any{
		"petty_cash_account_id": till.ID, "income_account_id": sales.ID, "card_account_id": card.ID, "card_source_label": "Amex",
	}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Amex", decode[rolesResponse](t, rr).CardSourceLabel)

	rr = do(t, h, call{method: http.MethodPut, path: "/v1/shift/sales", body: map[string]any{"gross_minor": 1}})
	assert.Equal(t, "shift_not_open", decode[errorResponse](t, rr).Code)

	rr = do(t, h, call{method: http.MethodPost, path: "/v1/shift/open", body: map[string]any{}})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, shift.StateOpen, decode[snapshotResponse](t, rr).State)

	rr = do(t, h, call{method: http.MethodPost, path: "/v1/shift/open", body: map[string]any{}})
	assert.Equal(t, "shift_open", decode[errorResponse](t, rr).Code)

	rr = do(t, h, call{method: http.MethodPut, path: "/v1/shift/sales", body: map[string]any{"gross_minor": 60000, "card_minor": 20000}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, call{method: http.MethodGet, path: "/v1/shift/target"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(140000), decode[targetResponse](t, rr).TargetMinor)

	// 1 x 1000 + 4 x 100 rupees plus 50 cents in coins.
	rr = do(t, h, call{method: http.MethodPost, path: "/v1/shift/close", body: map[string]any{
		"cash_count": map[string]any{"notes": map[string]int64{"1000": 1, "100": 4}, "coins_minor": 50},
	}})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	session := decode[sessionResponse](t, rr)
	assert.Equal(t, int64(140050), session.PhysicalCountMinor)
	assert.Equal(t, int64(140000), session.TheoreticalCashMinor)
	assert.Equal(t, int64(50), session.VarianceMinor)

	rr = do(t, h, call{method: http.MethodGet, path: "/v1/shifts"})
	assert.Len(t, decode[listResponse[sessionResponse]](t, rr).Items, 1)

	rr = do(t, h, call{method: http.MethodGet, path: "/v1/receivables?status=pending&channel=card"})
	require.Equal(t, http.StatusOK, rr.Code)
	pending := decode[listResponse[receivableResponse]](t, rr).Items
	require.Len(t, pending, 1)
	assert.Equal(t, "Amex", pending[0].Source)
	assert.Equal(t, int64(20000), pending[0].AmountMinor)

	rr = do(t, h, call{method: http.MethodGet, path: "/v1/receivables?status=lost"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, call{method: http.MethodGet, path: "/v1/shift"})
	assert.Equal(t, shift.StateClosed, decode[snapshotResponse](t, rr).State)

	rr = do(t, h, call{method: http.MethodPost, path: "/v1/shift/close", body: map[string]any{
		"cash_count": map[string]any{"notes": map[string]int64{"3": 1}},
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestSettlementsAndParties(t *testing.T) {
	h := newServer(t, Options{}).Handler()
	till := createAccount(t, h, "Petty Cash", "petty_cash", 100000)
	bank := createAccount(t, h, "Bank", "assets", 0)
	owed := createAccount(t, h, "Owed to Dairy", "payable", 0)

	rr := do(t, h, call{method: http.MethodPost, path: "/v1/vendors", body: map[string]any{"name": "Dairy", "payable_account_id": bank.ID}})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	rr = do(t, h, call{method: http.MethodPost, path: "/v1/vendors", body: map[string]any{"name": "Dairy", "payable_account_id": owed.ID}})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	vendor := decode[vendorResponse](t, rr)

	rr = do(t, h, call{method: http.MethodPost, path: "/v1/expenses", body: map[string]any{
		"source_account_id": owed.ID, "amount_minor": 4000, "category": "Supplies", "vendor_id": vendor.ID,
	}})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	exp := decode[expenseResponse](t, rr)
	require.NotNil(t, exp.Bill)

	rr = do(t, h, call{method: http.MethodGet, path: "/v1/bills?status=pending"})
	require.Len(t, decode[listResponse[billResponse]](t, rr).Items, 1)

	rr = do(t, h, call{method: http.MethodPost, path: "/v1/settlements/bill", body: map[string]any{"bill_id": exp.Bill.ID, "source_account_id": till.ID}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = do(t, h, call{method: http.MethodPost, path: "/v1/settlements/bill", body: map[string]any{"bill_id": exp.Bill.ID, "source_account_id": till.ID}})
	assert.Equal(t, "already_settled", decode[errorResponse](t, rr).Code)

	rr = do(t, h, call{method: http.MethodGet, path: "/v1/accounts/" + owed.ID.String() + "/balance"})
	assert.Equal(t, int64(0), decode[balanceResponse](t, rr).BalanceMinor)

	rr = do(t, h, call{method: http.MethodPut, path: "/v1/settings/roles", body: map[string]any{"petty_cash_account_id": till.ID}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = do(t, h, call{method: http.MethodPost, path: "/v1/settlements/deposit", body: map[string]any{"amount_minor": 30000, "target_account_id": bank.ID}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = do(t, h, call{method: http.MethodGet, path: "/v1/accounts/" + bank.ID.String() + "/balance"})
	assert.Equal(t, int64(30000), decode[balanceResponse](t, rr).BalanceMinor)

	rr = do(t, h, call{method: http.MethodPost, path: "/v1/customers", body: map[string]any{"name": "Ruwan"}})
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = do(t, h, call{method: http.MethodGet, path: "/v1/customers"})
	assert.Len(t, decode[listResponse[customerResponse]](t, rr).Items, 1)

	rr = do(t, h, call{method: http.MethodPost, path: "/v1/settlements/card-batch", body: map[string]any{
		"transaction_ids": []uuid.UUID{}, "net_minor": 1, "target_account_id": bank.ID,
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	rr = do(t, h, call{method: http.MethodPost, path: "/v1/settlements/partner", body: map[string]any{
		"transaction_id": uuid.New(), "cash_minor": 100,
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "unconfigured_mapping", decode[errorResponse](t, rr).Code)
}

func token(t *testing.T, sub, role string, exp time.Time) string {
	t.Helper()
	claims := Claims{Role: role, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sub,
		Issuer:    "tillbook",
		ExpiresAt: jwt.NewNumericDate(exp),
	}}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func TestAuth(t *testing.T) {
	h := newServer(t, Options{Auth: AuthConfig{Secret: testSecret, Issuer: "tillbook"}}).Handler()
	admin := token(t, "nimal", roleAdmin, time.Now().Add(time.Hour))
	staff := token(t, "kasun", "staff", time.Now().Add(time.Hour))

	assert.Equal(t, http.StatusOK, do(t, h, call{method: http.MethodGet, path: "/healthz"}).Code)
	assert.Equal(t, http.StatusOK, do(t, h, call{method: http.MethodGet, path: "/v1/dictionary/denominations"}).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, call{method: http.MethodGet, path: "/v1/accounts"}).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, call{method: http.MethodGet, path: "/v1/accounts", token: "garbage"}).Code)

	expired := token(t, "nimal", roleAdmin, time.Now().Add(-time.Minute))
	rr := do(t, h, call{method: http.MethodGet, path: "/v1/accounts", token: expired})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "token has expired", decode[errorResponse](t, rr).Error)

	rr = do(t, h, call{method: http.MethodPost, path: "/v1/accounts", token: staff, body: map[string]any{"name": "Till", "type": "petty_cash", "starting_balance_minor": 1000}})
	require.Equal(t, http.StatusCreated, rr.Code)
	till := decode[accountResponse](t, rr)

	adj := map[string]any{"account_id": till.ID, "direction": "add", "amount_minor": 500, "reason": "found under drawer"}
	rr = do(t, h, call{method: http.MethodPost, path: "/v1/adjustments", token: staff, body: adj})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = do(t, h, call{method: http.MethodPost, path: "/v1/adjustments", token: admin, body: adj})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rec := decode[receiptResponse](t, rr)
	require.Len(t, rec.Entries, 1)
	assert.Equal(t, "nimal", rec.Entries[0].Actor)
}

func TestRateLimit(t *testing.T) {
	lim := NewLimiter(limiter.Rate{Period: time.Minute, Limit: 2})
	h := newServer(t, Options{Limiter: lim}).Handler()
	for range 2 {
		rr := do(t, h, call{method: http.MethodGet, path: "/v1/accounts"})
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := do(t, h, call{method: http.MethodGet, path: "/v1/accounts"})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusOK, do(t, h, call{method: http.MethodGet, path: "/healthz"}).Code)
}

func TestWriteServiceError(t *testing.T) {
	s := newServer(t, Options{})
	opID := uuid.New()
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&errs.PartialApplicationError{Operation: "shift.close", OperationID: opID, Completed: []string{"a"}, Err: errs.ErrContention}, http.StatusInternalServerError, "partial_application"},
		{&errs.IntegrityError{Discrepancies: []errs.Discrepancy{{AccountName: "Till", Difference: 5}}}, http.StatusInternalServerError, "integrity_error"},
		{fmt.Errorf("lock: %w", errs.ErrContention), http.StatusConflict, "contention"},
		{errs.ErrDuplicateID, http.StatusConflict, "duplicate_id"},
		{errs.ErrAllocationMismatch, http.StatusUnprocessableEntity, "allocation_mismatch"},
		{errs.ErrForbidden, http.StatusForbidden, "forbidden"},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			rr := httptest.NewRecorder()
			s.writeServiceError(rr, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
			assert.Equal(t, tc.status, rr.Code)
			e := decode[errorResponse](t, rr)
			assert.Equal(t, tc.code, e.Code)
			switch tc.code {
			case "partial_application":
				assert.Equal(t, opID.String(), e.OperationID)
				assert.Equal(t, []string{"a"}, e.Completed)
			case "integrity_error":
				require.Len(t, e.Discrepancies, 1)
			case "contention":
				assert.Equal(t, "1", rr.Header().Get("Retry-After"))
			}
		})
	}
}

func TestDictionary(t *testing.T) {
	h := newServer(t, Options{Currency: "GBP"}).Handler()
	rr := do(t, h, call{method: http.MethodGet, path: "/v1/dictionary/denominations"})
	require.Equal(t, http.StatusOK, rr.Code)
	out := decode[struct {
		Currency string `json:"currency"`
		Notes    []struct {
			Face int64 `json:"face"`
		} `json:"notes"`
	}](t, rr)
	assert.Equal(t, "GBP", out.Currency)
	require.Len(t, out.Notes, 4)
	assert.Equal(t, int64(50), out.Notes[0].Face)

	rr = do(t, h, call{method: http.MethodGet, path: "/v1/dictionary/account-types?type=payable"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[listResponse[map[string]any]](t, rr).Items, 1)
	rr = do(t, h, call{method: http.MethodGet, path: "/v1/dictionary/account-types?type=equity"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
