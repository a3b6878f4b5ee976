package ops

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/storage"
)

// Mapped returns the account configured for role or ErrUnconfiguredMapping.
func Mapped(m ledger.RoleMapping, role ledger.Role) (uuid.UUID, error) {
	id, ok := m.Account(role)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: no account mapped to role %s", errs.ErrUnconfiguredMapping, role)
	}
	return id, nil
}

// PettyCash resolves the till: the mapped petty cash account, else the only
// active petty_cash account.
func PettyCash(ctx context.Context, tx storage.Tx, m ledger.RoleMapping) (uuid.UUID, error) {
	if id, ok := m.Account(ledger.RolePettyCash); ok {
		return id, nil
	}
	accounts, err := tx.AccountsByType(ctx, ledger.AccountTypePettyCash)
	if err != nil {
		return uuid.Nil, err
	}
	var found uuid.UUID
	n := 0
	for _, a := range accounts {
		if a.Active {
			found = a.ID
			n++
		}
	}
	switch n {
	case 1:
		return found, nil
	case 0:
		return uuid.Nil, fmt.Errorf("%w: no petty cash account", errs.ErrUnconfiguredMapping)
	}
	return uuid.Nil, fmt.Errorf("%w: %d petty cash accounts and none mapped", errs.ErrUnconfiguredMapping, n)
}

// Settings is the role mapping with petty cash already resolved.
type Settings struct {
	Roles     ledger.RoleMapping
	pettyCash uuid.UUID
	pettyErr  error
}

// PettyCash returns the resolved till or why it could not be resolved.
func (s Settings) PettyCash() (uuid.UUID, error) { return s.pettyCash, s.pettyErr }

// Settings reads the role mapping and resolves petty cash in one snapshot.
// Engines call it before Run so the resolved ids can be locked.
func (r *Runner) Settings(ctx context.Context) (Settings, error) {
	var out Settings
	err := r.View(ctx, nil, func(tx storage.Tx) error {
		m, err := tx.RoleMapping(ctx)
		if err != nil {
			return err
		}
		out.Roles = m
		out.pettyCash, out.pettyErr = PettyCash(ctx, tx, m)
		return nil
	})
	return out, err
}
