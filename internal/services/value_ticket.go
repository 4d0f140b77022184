package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/Abrham-amplitude/solana-ticket/internal/keys"
	"github.com/Abrham-amplitude/solana-ticket/internal/models"
	"github.com/Abrham-amplitude/solana-ticket/internal/tokenprog"
)

// ValueTicket is an escrow account credited with the ticket price.
type ValueTicket struct {
	TicketAddress solana.PublicKey `json:"ticket_address"`
	OwnerAddress  solana.PublicKey `json:"owner_address"`
	Price         uint64           `json:"price"`
	TransactionID solana.Signature `json:"transaction_id"`
}

type ValueTicketStatus struct {
	TicketAddress solana.PublicKey `json:"ticket_address"`
	Valid         bool             `json:"valid"`
	Balance       uint64           `json:"balance"`
	Reason        string           `json:"reason,omitempty"`
}

// UseResult describes the transaction that consumed a ticket.
type UseResult struct {
	TicketAddress solana.PublicKey `json:"ticket_address"`
	Holder        solana.PublicKey `json:"holder"`
	Amount        uint64           `json:"amount"`
	TransactionID solana.Signature `json:"transaction_id"`
}

// CreateValueTicket moves price lamports from owner into a fresh escrow
// account. price must reach the rent-exempt minimum of an empty account. The escrow key is retained in the Store so the ticket can be used
// later. On ErrConfirmationTimeout the returned ticket carries the
// submitted signature.
func (e *Engine) CreateValueTicket(ctx context.Context, owner keys.Keypair, price uint64) (ticket *ValueTicket, err error) {
	defer e.observe("create_value_ticket", time.Now(), &err)

	if err := requireSigner(owner, "owner"); err != nil {
		return nil, err
	}
	if price == 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidRequest)
	}
	// 托管账户没有数据，余额低于免租下限的新账户会被集群拒绝
	rent, err := e.ledger.GetMinimumBalanceForRentExemption(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: rent exemption: %v", ErrSubmissionFailed, err)
	}
	if price < rent {
		return nil, fmt.Errorf("%w: price %d is below the rent-exempt minimum of %d lamports", ErrInvalidRequest, price, rent)
	}
	ownerAddr := owner.PublicAddress()

	bal, err := e.balance(ctx, ownerAddr)
	if err != nil {
		return nil, err
	}
	if err := requireFunds(ownerAddr, bal, price+e.cfg.FeeReserve); err != nil {
		return nil, err
	}

	escrow := keys.Generate()
	ticketAddr := escrow.PublicAddress()
	if err := e.store.PutTicketKey(ctx, ticketAddr.String(), escrow); err != nil {
		return nil, fmt.Errorf("%w: retain ticket key: %v", ErrStorage, err)
	}

	sig, err := e.submit(ctx, ownerAddr, []solana.Instruction{
		tokenprog.Transfer(ownerAddr, ticketAddr, price),
	}, owner)
	if err != nil && !errors.Is(err, ErrConfirmationTimeout) {
		if derr := e.store.DeleteTicketKey(ctx, ticketAddr.String()); derr != nil {
			e.log.Warn("drop key of rejected ticket %s: %v", ticketAddr, derr)
		}
		e.log.Error("create value ticket for %s: %v", ownerAddr, err)
		return nil, err
	}

	ticket = &ValueTicket{
		TicketAddress: ticketAddr,
		OwnerAddress:  ownerAddr,
		Price:         price,
		TransactionID: sig,
	}
	status := models.StatusValid
	if err != nil {
		status = models.StatusPending
		e.log.Warn("value ticket %s submitted as %s but unconfirmed", ticketAddr, sig)
	}
	e.record(ctx, &models.Ticket{
		Kind:            models.KindValue,
		Address:         ticketAddr.String(),
		Owner:           ownerAddr.String(),
		Price:           price,
		Status:          status,
		CreateSignature: sig.String(),
	})
	if err == nil {
		e.log.Info("value ticket %s funded with %d lamports by %s (%s)", ticketAddr, price, ownerAddr, sig)
	}
	return ticket, err
}

// VerifyValueTicket reports whether the escrow still holds lamports.
func (e *Engine) VerifyValueTicket(ctx context.Context, ticket solana.PublicKey) (*ValueTicketStatus, error) {
	bal, err := e.balance(ctx, ticket)
	if err != nil {
		return nil, err
	}
	st := &ValueTicketStatus{TicketAddress: ticket, Balance: bal, Valid: bal > 0}
	if !st.Valid {
		st.Reason = "ticket balance is zero (unfunded or already used)"
	}
	return st, nil
}

// UseValueTicket drains the escrow into holder. Holder pays the fee and
// co-signs with the retained escrow key.
func (e *Engine) UseValueTicket(ctx context.Context, ticket solana.PublicKey, holder keys.Keypair) (res *UseResult, err error) {
	defer e.observe("use_value_ticket", time.Now(), &err)

	if err := requireSigner(holder, "holder"); err != nil {
		return nil, err
	}
	st, err := e.VerifyValueTicket(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if !st.Valid {
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidTicket, ticket, st.Reason)
	}

	escrow, err := e.store.TicketKey(ctx, ticket.String())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: no retained escrow key for %s, the ticket cannot sign its release", ErrInvalidTicket, ticket)
		}
		return nil, fmt.Errorf("%w: load ticket key: %v", ErrStorage, err)
	}
	if !escrow.PublicAddress().Equals(ticket) {
		return nil, fmt.Errorf("%w: retained key derives %s, not %s", ErrInvalidTicket, escrow.PublicAddress(), ticket)
	}

	holderAddr := holder.PublicAddress()
	holderBal, err := e.balance(ctx, holderAddr)
	if err != nil {
		return nil, err
	}
	if err := requireFunds(holderAddr, holderBal, e.txFee(2)); err != nil {
		return nil, err
	}

	sig, err := e.submit(ctx, holderAddr, []solana.Instruction{
		tokenprog.Transfer(ticket, holderAddr, st.Balance),
	}, holder, escrow)
	if err != nil && !errors.Is(err, ErrConfirmationTimeout) {
		e.log.Error("use value ticket %s: %v", ticket, err)
		return nil, err
	}

	res = &UseResult{TicketAddress: ticket, Holder: holderAddr, Amount: st.Balance, TransactionID: sig}
	if err != nil {
		e.log.Warn("value ticket %s release submitted as %s but unconfirmed", ticket, sig)
		return res, err
	}

	e.markUsed(ctx, ticket.String(), sig)
	if derr := e.store.DeleteTicketKey(ctx, ticket.String()); derr != nil {
		e.log.Warn("drop key of used ticket %s: %v", ticket, derr)
	}
	e.log.Info("value ticket %s used by %s, released %d lamports (%s)", ticket, holderAddr, st.Balance, sig)
	return res, nil
}

// record is best-effort: the chain already holds the outcome.
func (e *Engine) record(ctx context.Context, t *models.Ticket) {
	if err := e.store.SaveTicket(ctx, t); err != nil {
		e.log.Warn("registry save %s: %v", t.Address, err)
	}
}

func (e *Engine) markUsed(ctx context.Context, address string, sig solana.Signature) {
	if err := e.store.MarkTicketUsed(ctx, address, sig.String(), time.Now()); err != nil && !errors.Is(err, ErrNotFound) {
		e.log.Warn("registry mark used %s: %v", address, err)
	}
}
