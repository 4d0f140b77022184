package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/Abrham-amplitude/solana-ticket/internal/keys"
	"github.com/Abrham-amplitude/solana-ticket/internal/ledger"
	"github.com/Abrham-amplitude/solana-ticket/internal/tokenprog"
)

type TransferResult struct {
	From          solana.PublicKey `json:"from"`
	To            solana.PublicKey `json:"to"`
	Lamports      uint64           `json:"lamports"`
	TransactionID solana.Signature `json:"transaction_id"`
}

func (e *Engine) Balance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	return e.balance(ctx, address)
}

// Transfer sends lamports from one wallet to another. The sender pays the fee.
func (e *Engine) Transfer(ctx context.Context, from keys.Keypair, to solana.PublicKey, lamports uint64) (res *TransferResult, err error) {
	defer e.observe("transfer", time.Now(), &err)

	if err := requireSigner(from, "sender"); err != nil {
		return nil, err
	}
	if lamports == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	fromAddr := from.PublicAddress()
	if fromAddr.Equals(to) {
		return nil, fmt.Errorf("%w: sender and recipient are the same account", ErrInvalidRequest)
	}
	bal, err := e.balance(ctx, fromAddr)
	if err != nil {
		return nil, err
	}
	if err := requireFunds(fromAddr, bal, lamports+e.txFee(1)); err != nil {
		return nil, err
	}

	sig, err := e.submit(ctx, fromAddr, []solana.Instruction{tokenprog.Transfer(fromAddr, to, lamports)}, from)
	if err != nil && !errors.Is(err, ErrConfirmationTimeout) {
		return nil, err
	}
	e.log.Info("transfer %d lamports %s -> %s (%s)", lamports, fromAddr, to, sig)
	return &TransferResult{From: fromAddr, To: to, Lamports: lamports, TransactionID: sig}, err
}

// Airdrop asks the test-network faucet for lamports and waits for it. It
// does not retry; faucet retry loops belong to the caller.
func (e *Engine) Airdrop(ctx context.Context, address solana.PublicKey, lamports uint64) (sig solana.Signature, err error) {
	defer e.observe("airdrop", time.Now(), &err)

	if lamports == 0 {
		return solana.Signature{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	sig, err = e.ledger.RequestAirdrop(ctx, address, lamports)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	if err := e.ledger.ConfirmTransaction(ctx, sig); err != nil {
		if errors.Is(err, ledger.ErrRejected) {
			return sig, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
		}
		return sig, fmt.Errorf("%w: airdrop %s: %v", ErrConfirmationTimeout, sig, err)
	}
	e.log.Info("airdrop %d lamports to %s (%s)", lamports, address, sig)
	return sig, nil
}
