package shift

import (
	"fmt"
	"math"

	"github.com/tinoosan/tillbook/internal/dictionary"
	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
)

// CashCount is a physical till count. Notes are counted per face value in
// major units; coins are weighed or tallied as one lump amount, which is how
// the till is actually counted.
type CashCount struct {
	Notes map[int64]int64
	Coins ledger.Money
}

// Total returns Σ face·count + coins in minor units of currency. When the
// currency has a known note table, unknown faces are rejected.
func (c CashCount) Total(currency string) (ledger.Money, error) {
	if c.Coins < 0 {
		return 0, fmt.Errorf("%w: coins must be >= 0", errs.ErrInvalidAmount)
	}
	known := len(dictionary.Denominations(currency)) > 0
	total := c.Coins
	for face, count := range c.Notes {
		if face <= 0 || count < 0 {
			return 0, fmt.Errorf("%w: note %d x %d", errs.ErrInvalidAmount, face, count)
		}
		if known && !dictionary.IsNote(currency, face) {
			return 0, fmt.Errorf("%w: %d is not a %s note", errs.ErrInvalid, face, currency)
		}
		unit, err := ledger.MajorUnits(currency, face)
		if err != nil {
			return 0, err
		}
		if unit <= 0 || count > math.MaxInt64/int64(unit) {
			return 0, fmt.Errorf("%w: note %d x %d out of range", errs.ErrInvalidAmount, face, count)
		}
		sub := unit * ledger.Money(count)
		if total > math.MaxInt64-sub {
			return 0, fmt.Errorf("%w: cash count out of range", errs.ErrInvalidAmount)
		}
		total += sub
	}
	return total, nil
}
