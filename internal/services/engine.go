// Package services implements the ticket protocol: Value-Tickets held as
// escrowed lamports, Asset-Tickets held as single-supply SPL mints, and the
// wallet operations around them.
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
	"github.com/Abrham-amplitude/solana-ticket/utils"
)

const (
	DefaultFeeReserve      uint64 = 100_000
	DefaultAssetFeeMargin  uint64 = 2_500_000
	DefaultHistoryPageSize        = 100

	// signatureFee is the cluster base fee per signature.
	signatureFee uint64 = 5000
	// defaultComputeUnits is what the runtime assumes without a limit instruction.
	defaultComputeUnits uint32 = 200_000
)

type Config struct {
	// FeeReserve is kept on top of a Value-Ticket price in the balance check.
	FeeReserve uint64
	// AssetFeeMargin covers the associated account rent and fees of a mint.
	AssetFeeMargin     uint64
	AttachMetadataMemo bool
	HistoryPageSize    int
	// ComputeUnitPrice 优先费单价（micro-lamports），0 表示不加 compute budget 指令
	ComputeUnitPrice uint64
	ComputeUnitLimit uint32
}

func DefaultConfig() Config {
	return Config{
		FeeReserve:         DefaultFeeReserve,
		AssetFeeMargin:     DefaultAssetFeeMargin,
		AttachMetadataMemo: true,
		HistoryPageSize:    DefaultHistoryPageSize,
	}
}

// Metrics receives one observation per engine operation.
type Metrics interface {
	ObserveOperation(op string, took time.Duration, err error)
}

type nopMetrics struct{}

func (nopMetrics) ObserveOperation(string, time.Duration, error) {}

// Engine drives ticket lifecycles against one Ledger. Safe for concurrent use
// as long as its Ledger and Store are.
type Engine struct {
	ledger  ledger.Ledger
	store   Store
	cfg     Config
	log     *utils.Logger
	metrics Metrics
}

type Option func(*Engine)

func WithStore(s Store) Option { return func(e *Engine) { e.store = s } }

func WithLogger(l *utils.Logger) Option { return func(e *Engine) { e.log = l } }

func WithMetrics(m Metrics) Option { return func(e *Engine) { e.metrics = m } }

func NewEngine(l ledger.Ledger, cfg Config, opts ...Option) *Engine {
	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = DefaultHistoryPageSize
	}
	e := &Engine{
		ledger:  l,
		cfg:     cfg,
		store:   NewMemoryStore(),
		log:     utils.DefaultLogger,
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("engine")
	return e
}

func (e *Engine) Store() Store { return e.store }

func (e *Engine) Ledger() ledger.Ledger { return e.ledger }

// observe is deferred with a pointer to the named error result.
func (e *Engine) observe(op string, start time.Time, err *error) {
	e.metrics.ObserveOperation(op, time.Since(start), *err)
}

// Ready checks the ledger and the registry.
func (e *Engine) Ready(ctx context.Context) error {
	if err := e.ledger.Health(ctx); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// submit builds, signs, sends and confirms one transaction. On a confirmation
// timeout the signature is returned alongside the error.
func (e *Engine) submit(ctx context.Context, payer solana.PublicKey, ixs []solana.Instruction, signers ...keys.Keypair) (solana.Signature, error) {
	blockhash, err := e.ledger.GetLatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: latest blockhash: %v", ErrSubmissionFailed, err)
	}

	ixs = append(e.computeBudget(), ixs...)
	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: build transaction: %v", ErrSubmissionFailed, err)
	}

	privs := make([]solana.PrivateKey, len(signers))
	for i, s := range signers {
		privs[i] = s.PrivateKey()
	}
	_, err = tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		for i := range privs {
			if privs[i].PublicKey().Equals(pk) {
				return &privs[i]
			}
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: sign: %v", ErrSubmissionFailed, err)
	}

	sig, err := e.ledger.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	if err := e.ledger.ConfirmTransaction(ctx, sig); err != nil {
		if errors.Is(err, ledger.ErrRejected) {
			return sig, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
		}
		return sig, fmt.Errorf("%w: %s: %v", ErrConfirmationTimeout, sig, err)
	}
	return sig, nil
}

// computeBudget 设置了优先费时在交易前部加入 compute budget 指令
func (e *Engine) computeBudget() []solana.Instruction {
	if e.cfg.ComputeUnitPrice == 0 {
		return nil
	}
	var ixs []solana.Instruction
	if e.cfg.ComputeUnitLimit > 0 {
		ixs = append(ixs, tokenprog.SetComputeUnitLimit(e.cfg.ComputeUnitLimit))
	}
	return append(ixs, tokenprog.SetComputeUnitPrice(e.cfg.ComputeUnitPrice))
}

// txFee is the fee of a transaction with n signatures, priority fee included.
func (e *Engine) txFee(n int) uint64 {
	units := e.cfg.ComputeUnitLimit
	if units == 0 {
		units = defaultComputeUnits
	}
	return signatureFee*uint64(n) + tokenprog.PriorityFee(e.cfg.ComputeUnitPrice, units)
}

// balance reads a balance, classifying ledger failures.
func (e *Engine) balance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	bal, err := e.ledger.GetBalance(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("%w: balance of %s: %v", ErrSubmissionFailed, address, err)
	}
	return bal, nil
}

func requireFunds(address solana.PublicKey, have, need uint64) error {
	if have < need {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, address, utils.FormatSOL(have), utils.FormatSOL(need))
	}
	return nil
}

func requireSigner(k keys.Keypair, role string) error {
	if k.IsZero() {
		return fmt.Errorf("%w: missing %s keypair", ErrInvalidRequest, role)
	}
	return nil
}
