// Package dictionary holds curated reference data served to clients: the
// account type catalogue with the roles each type usually fills, and the note
// denominations used when counting the till.
package dictionary

import (
	"slices"
	"strings"

	"github.com/tinoosan/tillbook/internal/ledger"
)

type AccountTypeDef struct {
	Type  ledger.AccountType `json:"type"`
	Label string             `json:"label"`
	// ForceSettable marks the one type whose balance shift close overwrites.
	ForceSettable bool          `json:"force_settable"`
	Roles         []ledger.Role `json:"roles"`
}

var accountTypes = []AccountTypeDef{
	{Type: ledger.AccountTypePettyCash, Label: "Petty Cash", ForceSettable: true, Roles: []ledger.Role{ledger.RolePettyCash}},
	{Type: ledger.AccountTypeIncome, Label: "Income", Roles: []ledger.Role{ledger.RoleIncome}},
	{Type: ledger.AccountTypeReceivable, Label: "Receivable", Roles: []ledger.Role{ledger.RoleCard, ledger.RoleCustomerReceivable, ledger.RoleSettlementCard, ledger.RoleForeignCurrency}},
	{Type: ledger.AccountTypePayable, Label: "Payable"},
	{Type: ledger.AccountTypeAssets, Label: "Assets", Roles: []ledger.Role{ledger.RoleSettlementCard, ledger.RoleForeignCurrency, ledger.RoleCardFee}},
	{Type: ledger.AccountTypePartnerReceivable, Label: "Partner Receivable", Roles: []ledger.Role{ledger.RolePartner, ledger.RolePartnerReceivable}},
}

// AccountTypes returns the catalogue, optionally filtered to one type.
func AccountTypes(t *ledger.AccountType) []AccountTypeDef {
	if t == nil {
		return slices.Clone(accountTypes)
	}
	for _, d := range accountTypes {
		if d.Type == *t {
			return []AccountTypeDef{d}
		}
	}
	return nil
}

// Denomination is a note face value in major units (a 5000 rupee note is 5000).
type Denomination struct {
	Face  int64  `json:"face"`
	Label string `json:"label"`
}

var denominations = map[string][]int64{
	"LKR": {5000, 2000, 1000, 500, 100, 50, 20},
	"GBP": {50, 20, 10, 5},
	"USD": {100, 50, 20, 10, 5, 2, 1},
	"EUR": {500, 200, 100, 50, 20, 10, 5},
}

// Denominations returns the notes counted for currency, largest first. Coins
// are never listed; the till count takes them as one lump amount.
func Denominations(currency string) []Denomination {
	faces := denominations[strings.ToUpper(currency)]
	out := make([]Denomination, 0, len(faces))
	for _, f := range faces {
		out = append(out, Denomination{Face: f, Label: strings.ToUpper(currency) + " " + itoa(f)})
	}
	return out
}

// IsNote reports whether face is a known note of currency.
func IsNote(currency string, face int64) bool {
	return slices.Contains(denominations[strings.ToUpper(currency)], face)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
