package ledger

import "github.com/google/uuid"

// Role names a logical account slot that operations resolve through RoleMapping.
type Role string

const (
	RoleIncome             Role = "income"
	RoleCard               Role = "card"
	RolePartner            Role = "partner"
	RoleForeignCurrency    Role = "foreign_currency"
	RoleCustomerReceivable Role = "customer_receivable"
	RoleSettlementCard     Role = "settlement_card"
	RolePartnerReceivable  Role = "partner_receivable"
	RolePettyCash          Role = "petty_cash"
	RoleCardFee            Role = "card_fee"
)

// Roles lists every role.
func Roles() []Role {
	return []Role{
		RoleIncome, RoleCard, RolePartner, RoleForeignCurrency, RoleCustomerReceivable,
		RoleSettlementCard, RolePartnerReceivable, RolePettyCash, RoleCardFee,
	}
}

const (
	DefaultCardSourceLabel    = "Visa/Master"
	DefaultPartnerSourceLabel = "Uber/Deliveroo"
)

// RoleMapping maps roles to concrete accounts. uuid.Nil means unconfigured.
type RoleMapping struct {
	IncomeAccountID             uuid.UUID
	CardAccountID               uuid.UUID
	PartnerAccountID            uuid.UUID
	ForeignCurrencyAccountID    uuid.UUID
	CustomerReceivableAccountID uuid.UUID
	SettlementCardAccountID     uuid.UUID
	PartnerReceivableAccountID  uuid.UUID
	PettyCashAccountID          uuid.UUID
	CardFeeAccountID            uuid.UUID
	CardSourceLabel             string
	PartnerSourceLabel          string
}

// Account returns the account mapped to role, and whether one is configured.
func (m RoleMapping) Account(role Role) (uuid.UUID, bool) {
	var id uuid.UUID
	switch role {
	case RoleIncome:
		id = m.IncomeAccountID
	case RoleCard:
		id = m.CardAccountID
	case RolePartner:
		id = m.PartnerAccountID
	case RoleForeignCurrency:
		id = m.ForeignCurrencyAccountID
	case RoleCustomerReceivable:
		id = m.CustomerReceivableAccountID
	case RoleSettlementCard:
		id = m.SettlementCardAccountID
	case RolePartnerReceivable:
		id = m.PartnerReceivableAccountID
	case RolePettyCash:
		id = m.PettyCashAccountID
	case RoleCardFee:
		id = m.CardFeeAccountID
	}
	return id, id != uuid.Nil
}

// Set assigns id to role; unknown roles are ignored.
func (m *RoleMapping) Set(role Role, id uuid.UUID) {
	switch role {
	case RoleIncome:
		m.IncomeAccountID = id
	case RoleCard:
		m.CardAccountID = id
	case RolePartner:
		m.PartnerAccountID = id
	case RoleForeignCurrency:
		m.ForeignCurrencyAccountID = id
	case RoleCustomerReceivable:
		m.CustomerReceivableAccountID = id
	case RoleSettlementCard:
		m.SettlementCardAccountID = id
	case RolePartnerReceivable:
		m.PartnerReceivableAccountID = id
	case RolePettyCash:
		m.PettyCashAccountID = id
	case RoleCardFee:
		m.CardFeeAccountID = id
	}
}

// RoleOf returns the first role mapped to accountID.
func (m RoleMapping) RoleOf(accountID uuid.UUID) (Role, bool) {
	if accountID == uuid.Nil {
		return "", false
	}
	for _, r := range Roles() {
		if id, ok := m.Account(r); ok && id == accountID {
			return r, true
		}
	}
	return "", false
}

func (m RoleMapping) CardLabel() string {
	if m.CardSourceLabel != "" {
		return m.CardSourceLabel
	}
	return DefaultCardSourceLabel
}

func (m RoleMapping) PartnerLabel() string {
	if m.PartnerSourceLabel != "" {
		return m.PartnerSourceLabel
	}
	return DefaultPartnerSourceLabel
}
