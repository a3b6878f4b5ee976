// Package settlement clears pending receivables and payables: delivery
// partner payouts, card terminal batches, customer tab collections, vendor
// bills and till deposits to the bank.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/meta"
	"github.com/tinoosan/tillbook/internal/service/ops"
	"github.com/tinoosan/tillbook/internal/storage"
)

// Allocation splits a partner payout. PartnerOwed and ServiceCharge are
// deductions the partner kept; they are recorded, not posted.
type Allocation struct {
	Cash          ledger.Money
	Card          ledger.Money
	PartnerOwed   ledger.Money
	ServiceCharge ledger.Money
}

func (a Allocation) Total() ledger.Money {
	return a.Cash + a.Card + a.PartnerOwed + a.ServiceCharge
}

func (a Allocation) Validate() error {
	if a.Cash < 0 || a.Card < 0 || a.PartnerOwed < 0 || a.ServiceCharge < 0 {
		return fmt.Errorf("%w: portions must be >= 0", errs.ErrInvalidAllocation)
	}
	if a.Total() == 0 {
		return fmt.Errorf("%w: at least one portion must be > 0", errs.ErrInvalidAllocation)
	}
	return nil
}

type PartnerResult struct {
	Receipt ops.Receipt
	// Split is the pending card receivable carved out of the payout, if any.
	Split *ledger.ReceivableTransaction
	// Mismatch is allocation total minus the receivable amount; non-zero only with override.
	Mismatch ledger.Money
}

type BatchResult struct {
	Receipt ops.Receipt
	Gross   ledger.Money
	Net     ledger.Money
	Fee     ledger.Money
}

type Service interface {
	SettlePartner(ctx context.Context, txID uuid.UUID, alloc Allocation, override bool, actor ops.Actor) (PartnerResult, error)
	SettleCardBatch(ctx context.Context, txIDs []uuid.UUID, net ledger.Money, targetID uuid.UUID, actor ops.Actor) (BatchResult, error)
	CollectCustomer(ctx context.Context, customerID uuid.UUID, amount ledger.Money, targetID uuid.UUID, actor ops.Actor) (ops.Receipt, error)
	PayBill(ctx context.Context, billID, sourceID uuid.UUID, actor ops.Actor) (ops.Receipt, error)
	DepositCash(ctx context.Context, amount ledger.Money, targetID uuid.UUID, actor ops.Actor) (ops.Receipt, error)
}

type service struct {
	runner *ops.Runner
	log    *slog.Logger
}

func New(runner *ops.Runner) Service { return &service{runner: runner, log: runner.Logger()} }

func minor(m ledger.Money) string { return strconv.FormatInt(m.Minor(), 10) }

// chargePercent is the service charge as a percentage of the payout, 2dp.
func chargePercent(charge, amount ledger.Money) string {
	if amount <= 0 {
		return "0.00"
	}
	return decimal.NewFromInt(charge.Minor()).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(amount.Minor())).
		StringFixed(2)
}

func (s *service) SettlePartner(ctx context.Context, txID uuid.UUID, alloc Allocation, override bool, actor ops.Actor) (PartnerResult, error) {
	if err := alloc.Validate(); err != nil {
		return PartnerResult{}, err
	}
	settings, err := s.runner.Settings(ctx)
	if err != nil {
		return PartnerResult{}, err
	}
	clearing, err := ops.Mapped(settings.Roles, ledger.RolePartnerReceivable)
	if err != nil {
		return PartnerResult{}, err
	}
	var petty, cardTarget uuid.UUID
	if alloc.Cash > 0 {
		if petty, err = settings.PettyCash(); err != nil {
			return PartnerResult{}, err
		}
	}
	if alloc.Card > 0 {
		if cardTarget, err = ops.Mapped(settings.Roles, ledger.RoleSettlementCard); err != nil {
			return PartnerResult{}, err
		}
	}

	var out PartnerResult
	op := ops.Op{Name: "settle.partner", Actor: actor, Keys: []uuid.UUID{txID, clearing, petty, cardTarget}}
	rec, err := s.runner.Run(ctx, op, func(w *ops.Work) error {
		out = PartnerResult{}
		ctx, tx := w.Context(), w.Tx()
		r, err := tx.Receivable(ctx, txID)
		if err != nil {
			return err
		}
		if r.Status != ledger.ReceivablePending {
			return fmt.Errorf("%w: receivable %s", errs.ErrAlreadySettled, r.ID)
		}
		if r.Channel != ledger.ChannelPartner {
			return fmt.Errorf("%w: receivable %s is not a partner payout", errs.ErrInvalidAllocation, r.ID)
		}
		if diff := alloc.Total() - r.Amount; diff != 0 {
			if !override {
				return fmt.Errorf("%w: allocation %s != amount %s", errs.ErrAllocationMismatch, alloc.Total(), r.Amount)
			}
			s.log.Warn("partner settlement allocation overridden", "receivable_id", r.ID, "amount_minor", r.Amount.Minor(), "allocated_minor", alloc.Total().Minor(), "actor", actor.Name)
			out.Mismatch = diff
		}

		rid := meta.Of(meta.KeyReceivableID, r.ID.String())
		cleared := meta.Of(
			meta.KeyReceivableID, r.ID.String(),
			"partner_owed_minor", minor(alloc.PartnerOwed),
			"service_charge_minor", minor(alloc.ServiceCharge),
			"service_charge_pct", chargePercent(alloc.ServiceCharge, r.Amount),
		)
		if _, err := w.Debit(clearing, r.Amount, "Settlement Cleared: "+r.Source, cleared); err != nil {
			return err
		}
		if _, err := w.Credit(petty, alloc.Cash, "Settlement Cash: "+r.Source, rid); err != nil {
			return err
		}
		if alloc.Card > 0 {
			if _, err := w.Credit(cardTarget, alloc.Card, "Settlement Card Split: "+r.Source, rid); err != nil {
				return err
			}
			parent := r.ID
			split := ledger.ReceivableTransaction{
				ID:        uuid.New(),
				Date:      w.Date(),
				Source:    "Partner Split: " + r.Source,
				Channel:   ledger.ChannelCard,
				Amount:    alloc.Card,
				Status:    ledger.ReceivablePending,
				AccountID: cardTarget,
				ParentID:  &parent,
				CreatedAt: w.Now(),
			}
			if err := tx.CreateReceivable(ctx, split); err != nil {
				return err
			}
			w.Step("receivable " + split.ID.String())
			out.Split = &split
		}
		return settle(w, r)
	})
	if err != nil {
		return PartnerResult{}, err
	}
	out.Receipt = rec
	return out, nil
}

func settle(w *ops.Work, r ledger.ReceivableTransaction) error {
	now := w.Now()
	r.Status = ledger.ReceivableSettled
	r.SettledAt = &now
	if err := w.Tx().UpdateReceivable(w.Context(), r); err != nil {
		return err
	}
	w.Step("settled " + r.ID.String())
	return nil
}

// SettleCardBatch clears card receivables against one bank deposit. The
// difference between gross and net is the processor fee.
func (s *service) SettleCardBatch(ctx context.Context, txIDs []uuid.UUID, net ledger.Money, targetID uuid.UUID, actor ops.Actor) (BatchResult, error) {
	if len(txIDs) == 0 {
		return BatchResult{}, fmt.Errorf("%w: no transactions selected", errs.ErrInvalidAllocation)
	}
	if len(storage.SortKeys(txIDs)) != len(txIDs) {
		return BatchResult{}, fmt.Errorf("%w: duplicate or empty transaction ids", errs.ErrInvalidAllocation)
	}
	if net < 0 {
		return BatchResult{}, fmt.Errorf("%w: net received must be >= 0", errs.ErrInvalidAmount)
	}
	if targetID == uuid.Nil {
		return BatchResult{}, fmt.Errorf("%w: target account is required", errs.ErrInvalid)
	}
	settings, err := s.runner.Settings(ctx)
	if err != nil {
		return BatchResult{}, err
	}

	// The receivables' own accounts are debited, so read them first to know what to lock.
	keys := append(slices.Clone(txIDs), targetID, settings.Roles.CardFeeAccountID)
	err = s.runner.View(ctx, nil, func(tx storage.Tx) error {
		for _, id := range txIDs {
			r, err := tx.Receivable(ctx, id)
			if err != nil {
				return err
			}
			keys = append(keys, r.AccountID)
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}

	var out BatchResult
	n := strconv.Itoa(len(txIDs))
	op := ops.Op{Name: "settle.card_batch", Actor: actor, Keys: keys}
	rec, err := s.runner.Run(ctx, op, func(w *ops.Work) error {
		ctx, tx := w.Context(), w.Tx()
		target, err := w.Account(targetID)
		if err != nil {
			return err
		}
		batch := make([]ledger.ReceivableTransaction, 0, len(txIDs))
		var gross ledger.Money
		for _, id := range txIDs {
			r, err := tx.Receivable(ctx, id)
			if err != nil {
				return err
			}
			if r.Status != ledger.ReceivablePending {
				return fmt.Errorf("%w: receivable %s", errs.ErrAlreadySettled, r.ID)
			}
			if r.Channel != ledger.ChannelCard {
				return fmt.Errorf("%w: receivable %s is not a card transaction", errs.ErrInvalidAllocation, r.ID)
			}
			gross += r.Amount
			batch = append(batch, r)
		}
		if net > gross {
			return fmt.Errorf("%w: net %s exceeds gross %s", errs.ErrInvalidAllocation, net, gross)
		}
		fee := gross - net
		var feeAccount uuid.UUID
		if fee > 0 {
			if feeAccount, err = ops.Mapped(settings.Roles, ledger.RoleCardFee); err != nil {
				return err
			}
		}

		for _, r := range batch {
			if _, err := w.Debit(r.AccountID, r.Amount, "Card Settlement: -> "+target.Name, meta.Of(meta.KeyReceivableID, r.ID.String())); err != nil {
				return err
			}
			if err := settle(w, r); err != nil {
				return err
			}
		}
		if _, err := w.Credit(target.ID, net, "Card Settlement Batch Received ("+n+" txs)", nil); err != nil {
			return err
		}
		if _, err := w.Debit(feeAccount, fee, "Card Settlement Fee ("+n+" txs)", nil); err != nil {
			return err
		}
		out = BatchResult{Gross: gross, Net: net, Fee: fee}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}
	out.Receipt = rec
	return out, nil
}

// CollectCustomer takes a payment against a customer's tab. Overpayment is
// accepted; the outstanding balance floors at zero.
func (s *service) CollectCustomer(ctx context.Context, customerID uuid.UUID, amount ledger.Money, targetID uuid.UUID, actor ops.Actor) (ops.Receipt, error) {
	if amount <= 0 {
		return ops.Receipt{}, fmt.Errorf("%w: payment must be > 0", errs.ErrInvalidAmount)
	}
	settings, err := s.runner.Settings(ctx)
	if err != nil {
		return ops.Receipt{}, err
	}
	control, err := ops.Mapped(settings.Roles, ledger.RoleCustomerReceivable)
	if err != nil {
		return ops.Receipt{}, err
	}
	if control == targetID {
		return ops.Receipt{}, fmt.Errorf("%w: target is the customer receivable account", errs.ErrSameAccount)
	}
	op := ops.Op{Name: "settle.customer", Actor: actor, Keys: []uuid.UUID{customerID, targetID, control}}
	return s.runner.Run(ctx, op, func(w *ops.Work) error {
		ctx, tx := w.Context(), w.Tx()
		c, err := tx.Customer(ctx, customerID)
		if err != nil {
			return err
		}
		c.OutstandingBalance = max(0, c.OutstandingBalance-amount)
		if err := tx.UpdateCustomer(ctx, c); err != nil {
			return err
		}
		md := meta.Of(meta.KeyCustomerID, c.ID.String())
		if _, err := w.Credit(targetID, amount, "Customer Payment Received: "+c.Name, md); err != nil {
			return err
		}
		_, err = w.Debit(control, amount, "Customer Credit Paid Off: "+c.Name, md)
		return err
	})
}

// PayBill pays a pending bill from source. When the bill is backed by a
// payable account, the liability (a negative balance) is reduced too.
func (s *service) PayBill(ctx context.Context, billID, sourceID uuid.UUID, actor ops.Actor) (ops.Receipt, error) {
	var liability uuid.UUID
	err := s.runner.View(ctx, nil, func(tx storage.Tx) error {
		b, err := tx.Bill(ctx, billID)
		if err != nil {
			return err
		}
		liability, err = liabilityFor(ctx, tx, b)
		return err
	})
	if err != nil {
		return ops.Receipt{}, err
	}
	if liability != uuid.Nil && liability == sourceID {
		return ops.Receipt{}, fmt.Errorf("%w: source is the bill's payable account", errs.ErrSameAccount)
	}
	op := ops.Op{Name: "settle.bill", Actor: actor, Keys: []uuid.UUID{billID, sourceID, liability}}
	return s.runner.Run(ctx, op, func(w *ops.Work) error {
		ctx, tx := w.Context(), w.Tx()
		b, err := tx.Bill(ctx, billID)
		if err != nil {
			return err
		}
		if b.Status != ledger.BillPending {
			return fmt.Errorf("%w: bill %s", errs.ErrAlreadySettled, b.ID)
		}
		src, err := w.Account(sourceID)
		if err != nil {
			return err
		}
		vendor := b.VendorName
		if vendor == "" {
			vendor = b.Description
		}
		md := meta.Of(meta.KeyBillID, b.ID.String())
		if _, err := w.Debit(src.ID, b.Amount, "Bill Payment to Vendor: "+vendor, md); err != nil {
			return err
		}
		if liability != uuid.Nil {
			acc, err := w.Account(liability)
			if err != nil {
				return err
			}
			if acc.Type == ledger.AccountTypePayable {
				if _, err := w.Credit(acc.ID, b.Amount, "Liability Settlement: Paid from "+src.Name, md); err != nil {
					return err
				}
			}
		}
		now := w.Now()
		b.Status = ledger.BillPaid
		b.PaidAt = &now
		if err := tx.UpdateBill(ctx, b); err != nil {
			return err
		}
		w.Step("paid " + b.ID.String())
		return nil
	})
}

// liabilityFor prefers the vendor's payable account over the one the bill was booked against.
func liabilityFor(ctx context.Context, tx storage.Tx, b ledger.PayableBill) (uuid.UUID, error) {
	if b.VendorID != uuid.Nil {
		v, err := tx.Vendor(ctx, b.VendorID)
		if err != nil {
			return uuid.Nil, err
		}
		if v.PayableAccountID != uuid.Nil {
			return v.PayableAccountID, nil
		}
	}
	return b.PayableAccountID, nil
}

// DepositCash moves cash from the till to target, usually the bank.
func (s *service) DepositCash(ctx context.Context, amount ledger.Money, targetID uuid.UUID, actor ops.Actor) (ops.Receipt, error) {
	if amount <= 0 {
		return ops.Receipt{}, fmt.Errorf("%w: deposit must be > 0", errs.ErrInvalidAmount)
	}
	settings, err := s.runner.Settings(ctx)
	if err != nil {
		return ops.Receipt{}, err
	}
	petty, err := settings.PettyCash()
	if err != nil {
		return ops.Receipt{}, err
	}
	if petty == targetID {
		return ops.Receipt{}, errs.ErrSameAccount
	}
	op := ops.Op{Name: "settle.deposit", Actor: actor, Keys: []uuid.UUID{petty, targetID}}
	return s.runner.Run(ctx, op, func(w *ops.Work) error {
		target, err := w.Account(targetID)
		if err != nil {
			return err
		}
		if _, err := w.Debit(petty, amount, "Bank Deposit: To "+target.Name, nil); err != nil {
			return err
		}
		_, err = w.Credit(target.ID, amount, "Deposit from Petty Cash", nil)
		return err
	})
}
