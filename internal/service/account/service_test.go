package account_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/service/account"
	"github.com/tinoosan/tillbook/internal/storage/memory"
)

func setup(t *testing.T) (*memory.Store, account.Service) {
	t.Helper()
	s := memory.New()
	return s, account.New(s, s)
}

func TestCreate(t *testing.T) {
	_, svc := setup(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, ledger.Account{Name: " Main Till ", Type: ledger.AccountTypePettyCash, StartingBalance: 5000})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.Equal(t, "Main Till", a.Name)
	assert.Equal(t, ledger.Money(5000), a.CurrentBalance)
	assert.True(t, a.Active)
	assert.False(t, a.CreatedAt.IsZero())

	_, err = svc.Create(ctx, ledger.Account{ID: a.ID, Name: "Other", Type: ledger.AccountTypeAssets})
	assert.ErrorIs(t, err, errs.ErrDuplicateID)
	assert.ErrorIs(t, err, errs.ErrConflict)

	_, err = svc.Create(ctx, ledger.Account{Name: "main-till", Type: ledger.AccountTypeAssets})
	assert.ErrorIs(t, err, errs.ErrDuplicateName)

	_, err = svc.Create(ctx, ledger.Account{Name: "Float", Type: ledger.AccountTypeAssets, StartingBalance: -1})
	assert.ErrorIs(t, err, errs.ErrInvalidAmount)

	_, err = svc.Create(ctx, ledger.Account{Name: "Bad", Type: "equity"})
	assert.ErrorIs(t, err, errs.ErrInvalid)

	_, err = svc.Create(ctx, ledger.Account{Name: "  ", Type: ledger.AccountTypeAssets})
	assert.ErrorIs(t, err, errs.ErrInvalid)
}

func TestNameFreedByDeactivation(t *testing.T) {
	_, svc := setup(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, ledger.Account{Name: "Bank", Type: ledger.AccountTypeAssets})
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, a.ID))

	_, err = svc.Create(ctx, ledger.Account{Name: "bank", Type: ledger.AccountTypeAssets})
	assert.NoError(t, err)

	got, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestGetAndBalance_NotFound(t *testing.T) {
	_, svc := setup(t)
	_, err := svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = svc.Balance(context.Background(), uuid.New())
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRename(t *testing.T) {
	_, svc := setup(t)
	ctx := context.Background()
	a, _ := svc.Create(ctx, ledger.Account{Name: "Bank", Type: ledger.AccountTypeAssets})
	_, _ = svc.Create(ctx, ledger.Account{Name: "Safe", Type: ledger.AccountTypeAssets})

	got, err := svc.Rename(ctx, a.ID, "Bank of Ceylon")
	require.NoError(t, err)
	assert.Equal(t, "Bank of Ceylon", got.Name)

	_, err = svc.Rename(ctx, a.ID, "SAFE")
	assert.ErrorIs(t, err, errs.ErrDuplicateName)

	_, err = svc.Rename(ctx, a.ID, "")
	assert.ErrorIs(t, err, errs.ErrInvalid)
}

func TestDeactivate_RefusedWhileMapped(t *testing.T) {
	_, svc := setup(t)
	ctx := context.Background()
	income, _ := svc.Create(ctx, ledger.Account{Name: "Sales", Type: ledger.AccountTypeIncome})

	_, err := svc.UpdateRoles(ctx, ledger.RoleMapping{IncomeAccountID: income.ID})
	require.NoError(t, err)

	err = svc.Deactivate(ctx, income.ID)
	assert.ErrorIs(t, err, errs.ErrInvalid)
	assert.ErrorIs(t, err, account.ErrInMapping)

	_, err = svc.UpdateRoles(ctx, ledger.RoleMapping{})
	require.NoError(t, err)
	assert.NoError(t, svc.Deactivate(ctx, income.ID))
}

func TestUpdateRoles_Validation(t *testing.T) {
	_, svc := setup(t)
	ctx := context.Background()
	bank, _ := svc.Create(ctx, ledger.Account{Name: "Bank", Type: ledger.AccountTypeAssets})
	till, _ := svc.Create(ctx, ledger.Account{Name: "Till", Type: ledger.AccountTypePettyCash})
	old, _ := svc.Create(ctx, ledger.Account{Name: "Old", Type: ledger.AccountTypeAssets})
	require.NoError(t, svc.Deactivate(ctx, old.ID))

	_, err := svc.UpdateRoles(ctx, ledger.RoleMapping{PettyCashAccountID: bank.ID})
	assert.ErrorIs(t, err, errs.ErrInvalid)

	_, err = svc.UpdateRoles(ctx, ledger.RoleMapping{CardAccountID: uuid.New()})
	assert.ErrorIs(t, err, errs.ErrInvalid)

	_, err = svc.UpdateRoles(ctx, ledger.RoleMapping{CardAccountID: old.ID})
	assert.ErrorIs(t, err, errs.ErrAccountInactive)

	m, err := svc.UpdateRoles(ctx, ledger.RoleMapping{PettyCashAccountID: till.ID, SettlementCardAccountID: bank.ID, CardSourceLabel: " Amex "})
	require.NoError(t, err)
	assert.Equal(t, "Amex", m.CardSourceLabel)

	got, err := svc.Roles(ctx)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}
