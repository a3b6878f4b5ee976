package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/govalues/money"
	"github.com/tinoosan/tillbook/internal/errs"
)

// Money is a signed count of minor currency units (cents). It is never stored
// or compared as floating point.
type Money int64

// ParseMoney converts a user-entered decimal string such as "1250.5" into minor
// units of currency, rounding to the nearest unit.
func ParseMoney(currency, s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount", errs.ErrInvalidAmount)
	}
	amt, err := money.ParseAmount(currency, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrInvalidAmount, err)
	}
	units, ok := amt.MinorUnits()
	if !ok {
		return 0, fmt.Errorf("%w: %q out of range", errs.ErrInvalidAmount, s)
	}
	return Money(units), nil
}

// MajorUnits converts a whole face value (a 5000 note, say) to minor units of currency.
func MajorUnits(currency string, face int64) (Money, error) {
	amt, err := money.NewAmount(currency, face, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrInvalidAmount, err)
	}
	units, ok := amt.MinorUnits()
	if !ok {
		return 0, fmt.Errorf("%w: face value %d out of range", errs.ErrInvalidAmount, face)
	}
	return Money(units), nil
}

// Format renders m with the scale and code of currency, e.g. "LKR 1250.50".
func (m Money) Format(currency string) string {
	amt, err := money.NewAmountFromMinorUnits(currency, int64(m))
	if err != nil {
		return m.String()
	}
	return amt.String()
}

// String renders m at scale 2.
func (m Money) String() string {
	n := int64(m)
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	frac := strconv.FormatInt(n%100, 10)
	if len(frac) == 1 {
		frac = "0" + frac
	}
	return sign + strconv.FormatInt(n/100, 10) + "." + frac
}

func (m Money) Add(o Money) Money { return m + o }
func (m Money) Sub(o Money) Money { return m - o }
func (m Money) Neg() Money { return -m }
func (m Money) IsZero() bool { return m == 0 }
func (m Money) IsPositive() bool { return m > 0 }
func (m Money) IsNegative() bool { return m < 0 }
func (m Money) Minor() int64 { return int64(m) }

func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

// Sum adds up amounts.
func Sum(amounts ...Money) Money {
	var total Money
	for _, a := range amounts {
		total += a
	}
	return total
}
