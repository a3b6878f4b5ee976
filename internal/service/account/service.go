// Package account implements the account rules: immutable type and starting
// balance, editable name, soft-deletes, unique names among active accounts,
// and the role mapping that points logical roles at concrete accounts.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/slug"
)

type Repo interface {
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	RoleMapping(ctx context.Context) (ledger.RoleMapping, error)
}

type Writer interface {
	CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error)
	UpdateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error)
	SaveRoleMapping(ctx context.Context, m ledger.RoleMapping) error
}

type Service interface {
	Create(ctx context.Context, a ledger.Account) (ledger.Account, error)
	Get(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	List(ctx context.Context) ([]ledger.Account, error)
	Balance(ctx context.Context, id uuid.UUID) (ledger.Money, error)
	Rename(ctx context.Context, id uuid.UUID, name string) (ledger.Account, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	Roles(ctx context.Context) (ledger.RoleMapping, error)
	UpdateRoles(ctx context.Context, m ledger.RoleMapping) (ledger.RoleMapping, error)
}

type service struct {
	repo   Repo
	writer Writer
	now    func() time.Time
}

func New(repo Repo, writer Writer) Service {
	return &service{repo: repo, writer: writer, now: time.Now}
}

// ErrInMapping is returned when deactivating an account a role still points at.
var ErrInMapping = errors.New("account is referenced by the role mapping")

func validateCreate(a ledger.Account) error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: name is required", errs.ErrInvalid)
	}
	if !a.Type.Valid() {
		return fmt.Errorf("%w: invalid account type %q", errs.ErrInvalid, a.Type)
	}
	if a.StartingBalance < 0 {
		return fmt.Errorf("%w: starting balance must be >= 0", errs.ErrInvalidAmount)
	}
	if err := a.Metadata.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalid, err)
	}
	return nil
}

func (s *service) Create(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	a.Name = strings.TrimSpace(a.Name)
	if err := validateCreate(a); err != nil {
		return ledger.Account{}, err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	} else if _, err := s.repo.GetAccount(ctx, a.ID); err == nil {
		return ledger.Account{}, errs.ErrDuplicateID
	} else if !errors.Is(err, errs.ErrNotFound) {
		return ledger.Account{}, err
	}
	if err := s.ensureUniqueName(ctx, uuid.Nil, a.Name); err != nil {
		return ledger.Account{}, err
	}
	a.CurrentBalance = a.StartingBalance
	a.Active = true
	a.CreatedAt = s.now().UTC()
	a.Metadata = a.Metadata.Clone()
	return s.writer.CreateAccount(ctx, a)
}

// ensureUniqueName rejects name when it slugs to the same key as another
// active account.
func (s *service) ensureUniqueName(ctx context.Context, self uuid.UUID, name string) error {
	existing, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID == self || !other.Active {
			continue
		}
		if slug.Equal(other.Name, name) {
			return fmt.Errorf("%w: %q", errs.ErrDuplicateName, name)
		}
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	if id == uuid.Nil {
		return ledger.Account{}, errs.ErrInvalid
	}
	return s.repo.GetAccount(ctx, id)
}

func (s *service) List(ctx context.Context) ([]ledger.Account, error) {
	return s.repo.ListAccounts(ctx)
}

func (s *service) Balance(ctx context.Context, id uuid.UUID) (ledger.Money, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return a.CurrentBalance, nil
}

// Rename changes the display name. Entries keep the account id, so history
// follows the account.
func (s *service) Rename(ctx context.Context, id uuid.UUID, name string) (ledger.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ledger.Account{}, fmt.Errorf("%w: name is required", errs.ErrInvalid)
	}
	cur, err := s.Get(ctx, id)
	if err != nil {
		return ledger.Account{}, err
	}
	if cur.Active {
		if err := s.ensureUniqueName(ctx, id, name); err != nil {
			return ledger.Account{}, err
		}
	}
	cur.Name = name
	return s.writer.UpdateAccount(ctx, cur)
}

// Deactivate soft-deletes the account. Accounts a role points at must be
// unmapped first.
func (s *service) Deactivate(ctx context.Context, id uuid.UUID) error {
	acc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	m, err := s.repo.RoleMapping(ctx)
	if err != nil {
		return err
	}
	if role, ok := m.RoleOf(id); ok {
		return fmt.Errorf("%w: %w (role %s)", errs.ErrInvalid, ErrInMapping, role)
	}
	if !acc.Active {
		return nil
	}
	acc.Active = false
	_, err = s.writer.UpdateAccount(ctx, acc)
	return err
}

func (s *service) Roles(ctx context.Context) (ledger.RoleMapping, error) {
	return s.repo.RoleMapping(ctx)
}

// UpdateRoles replaces the mapping. Every mapped id must be an active account
// and the petty cash slot must hold a petty_cash account.
func (s *service) UpdateRoles(ctx context.Context, m ledger.RoleMapping) (ledger.RoleMapping, error) {
	m.CardSourceLabel = strings.TrimSpace(m.CardSourceLabel)
	m.PartnerSourceLabel = strings.TrimSpace(m.PartnerSourceLabel)
	for _, role := range ledger.Roles() {
		id, ok := m.Account(role)
		if !ok {
			continue
		}
		acc, err := s.repo.GetAccount(ctx, id)
		if errors.Is(err, errs.ErrNotFound) {
			return ledger.RoleMapping{}, fmt.Errorf("%w: role %s: account %s not found", errs.ErrInvalid, role, id)
		}
		if err != nil {
			return ledger.RoleMapping{}, err
		}
		if !acc.Active {
			return ledger.RoleMapping{}, fmt.Errorf("%w: role %s: %s", errs.ErrAccountInactive, role, acc.Name)
		}
		if role == ledger.RolePettyCash && acc.Type != ledger.AccountTypePettyCash {
			return ledger.RoleMapping{}, fmt.Errorf("%w: role %s needs a petty_cash account", errs.ErrInvalid, role)
		}
	}
	if err := s.writer.SaveRoleMapping(ctx, m); err != nil {
		return ledger.RoleMapping{}, err
	}
	return m, nil
}
