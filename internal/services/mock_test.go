package services

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/mock"

	"github.com/Abrham-amplitude/solana-ticket/internal/ledger"
)

type mockLedger struct {
	mock.Mock
}

var _ ledger.Ledger = (*mockLedger)(nil)

func (m *mockLedger) GetBalance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockLedger) GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	args := m.Called(ctx, size)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockLedger) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	args := m.Called(ctx)
	return args.Get(0).(solana.Hash), args.Error(1)
}

func (m *mockLedger) GetAccount(ctx context.Context, address solana.PublicKey) (*ledger.Account, error) {
	args := m.Called(ctx, address)
	acc, _ := args.Get(0).(*ledger.Account)
	return acc, args.Error(1)
}

func (m *mockLedger) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	args := m.Called(ctx, tx)
	return args.Get(0).(solana.Signature), args.Error(1)
}

func (m *mockLedger) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	return m.Called(ctx, sig).Error(0)
}

func (m *mockLedger) GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, before solana.Signature, limit int) ([]ledger.SignatureInfo, error) {
	args := m.Called(ctx, address, before, limit)
	sigs, _ := args.Get(0).([]ledger.SignatureInfo)
	return sigs, args.Error(1)
}

func (m *mockLedger) GetTransaction(ctx context.Context, sig solana.Signature) (*ledger.TransactionRecord, error) {
	args := m.Called(ctx, sig)
	rec, _ := args.Get(0).(*ledger.TransactionRecord)
	return rec, args.Error(1)
}

func (m *mockLedger) RequestAirdrop(ctx context.Context, address solana.PublicKey, lamports uint64) (solana.Signature, error) {
	args := m.Called(ctx, address, lamports)
	return args.Get(0).(solana.Signature), args.Error(1)
}

func (m *mockLedger) Health(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
