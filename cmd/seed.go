package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/service/account"
)

type seedAccount struct {
	name    string
	typ     ledger.AccountType
	balance ledger.Money
	roles   []ledger.Role
}

var devAccounts = []seedAccount{
	{"Petty Cash", ledger.AccountTypePettyCash, 2000000, []ledger.Role{ledger.RolePettyCash}},
	{"Sales", ledger.AccountTypeIncome, 0, []ledger.Role{ledger.RoleIncome}},
	{"Card Clearing", ledger.AccountTypeReceivable, 0, []ledger.Role{ledger.RoleCard}},
	{"Partner Clearing", ledger.AccountTypePartnerReceivable, 0, []ledger.Role{ledger.RolePartner, ledger.RolePartnerReceivable}},
	{"Customer Tabs", ledger.AccountTypeReceivable, 0, []ledger.Role{ledger.RoleCustomerReceivable}},
	{"Foreign Currency", ledger.AccountTypeAssets, 0, []ledger.Role{ledger.RoleForeignCurrency}},
	{"Bank", ledger.AccountTypeAssets, 10000000, []ledger.Role{ledger.RoleSettlementCard}},
	{"Card Fees", ledger.AccountTypeAssets, 0, []ledger.Role{ledger.RoleCardFee}},
}

// seedDev creates a working chart of accounts and maps every role. It goes
// through the services so both backends are seeded the same way, and does
// nothing when accounts already exist.
func seedDev(ctx context.Context, accounts account.Service, l *slog.Logger) error {
	existing, err := accounts.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		l.Info("DEV seed skipped; accounts exist", "count", len(existing))
		return nil
	}
	m, err := accounts.Roles(ctx)
	if err != nil {
		return err
	}
	ids := map[string]string{}
	for _, sa := range devAccounts {
		a, err := accounts.Create(ctx, ledger.Account{Name: sa.name, Type: sa.typ, StartingBalance: sa.balance})
		if err != nil {
			return fmt.Errorf("seed %s: %w", sa.name, err)
		}
		for _, role := range sa.roles {
			m.Set(role, a.ID)
		}
		ids[sa.name] = a.ID.String()
	}
	if _, err := accounts.UpdateRoles(ctx, m); err != nil {
		return err
	}
	l.Info("DEV seed", "accounts", ids)
	printDevSeedBanner(ids)
	return nil
}

// printDevSeedBanner prints the seeded ids for easy copy/paste.
func printDevSeedBanner(ids map[string]string) {
	fmt.Println("==================== DEV SEED ====================")
	for _, sa := range devAccounts {
		fmt.Printf("%-18s %s\n", sa.name+":", ids[sa.name])
	}
	fmt.Println("==================================================")
}
