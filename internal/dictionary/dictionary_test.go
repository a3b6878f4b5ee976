package dictionary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tinoosan/tillbook/internal/ledger"
)

func TestAccountTypesCoverEveryType(t *testing.T) {
	all := AccountTypes(nil)
	assert.Len(t, all, len(ledger.AccountTypes()))
	for _, at := range ledger.AccountTypes() {
		got := AccountTypes(&at)
		if assert.Len(t, got, 1, at) {
			assert.Equal(t, at, got[0].Type)
		}
	}
	pc := ledger.AccountTypePettyCash
	assert.True(t, AccountTypes(&pc)[0].ForceSettable)
}

func TestDenominations(t *testing.T) {
	lkr := Denominations("lkr")
	assert.Len(t, lkr, 7)
	assert.Equal(t, int64(5000), lkr[0].Face)
	assert.Equal(t, "LKR 20", lkr[6].Label)
	assert.True(t, IsNote("LKR", 1000))
	assert.False(t, IsNote("LKR", 10))
	assert.Empty(t, Denominations("XYZ"))
}
