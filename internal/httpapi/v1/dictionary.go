package v1

import (
	"net/http"
	"strings"

	"github.com/tinoosan/tillbook/internal/dictionary"
	"github.com/tinoosan/tillbook/internal/ledger"
)

// GET /v1/dictionary/account-types?type=
func (s *Server) getAccountTypesDictionary(w http.ResponseWriter, r *http.Request) {
	var t *ledger.AccountType
	if ts := r.URL.Query().Get("type"); ts != "" {
		tt, err := ledger.ParseAccountType(ts)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		t = &tt
	}
	toJSON(w, http.StatusOK, listResponse[dictionary.AccountTypeDef]{Items: dictionary.AccountTypes(t)})
}

// GET /v1/dictionary/denominations?currency=
func (s *Server) getDenominationsDictionary(w http.ResponseWriter, r *http.Request) {
	cur := strings.ToUpper(r.URL.Query().Get("currency"))
	if cur == "" {
		cur = strings.ToUpper(s.currency)
	}
	out := struct {
		Currency string                    `json:"currency"`
		Notes    []dictionary.Denomination `json:"notes"`
	}{Currency: cur, Notes: dictionary.Denominations(cur)}
	toJSON(w, http.StatusOK, out)
}
