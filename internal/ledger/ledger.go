// Package ledger is the boundary to the Solana cluster. The engine talks to a
// Ledger; production wires the JSON-RPC client, tests wire ledgertest.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrRejected            = errors.New("transaction rejected")
	ErrConfirmationTimeout = errors.New("transaction not confirmed before deadline")
)

// Account is the decoded state of an on-chain account.
type Account struct {
	Lamports   uint64
	Owner      solana.PublicKey
	Data       []byte
	Executable bool
}

// SignatureInfo is one entry of getSignaturesForAddress, newest first.
type SignatureInfo struct {
	Signature solana.Signature
	Slot      uint64
	BlockTime *time.Time
	Failed    bool
}

// TransactionRecord is a confirmed transaction with its decoded body.
type TransactionRecord struct {
	Signature   solana.Signature
	Slot        uint64
	BlockTime   *time.Time
	Failed      bool
	Transaction *solana.Transaction
}

// Ledger covers the RPC surface tickets need. Implementations must be safe
// for concurrent use.
type Ledger interface {
	GetBalance(ctx context.Context, address solana.PublicKey) (uint64, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error)
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	// GetAccount returns ErrNotFound when the account does not exist.
	GetAccount(ctx context.Context, address solana.PublicKey) (*Account, error)
	// SendTransaction submits once. Errors wrap ErrRejected when the node
	// refused the transaction.
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	// ConfirmTransaction waits up to the client's deadline. It returns
	// ErrConfirmationTimeout when the deadline passes and ErrRejected when
	// the transaction landed with an error.
	ConfirmTransaction(ctx context.Context, sig solana.Signature) error
	// GetSignaturesForAddress pages backwards from before (zero = newest).
	GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, before solana.Signature, limit int) ([]SignatureInfo, error)
	GetTransaction(ctx context.Context, sig solana.Signature) (*TransactionRecord, error)
	RequestAirdrop(ctx context.Context, address solana.PublicKey, lamports uint64) (solana.Signature, error)
	Health(ctx context.Context) error
}
