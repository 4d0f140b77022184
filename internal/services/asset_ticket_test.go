package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abrham-amplitude/solana-ticket/internal/ledger"
	"github.com/Abrham-amplitude/solana-ticket/internal/ledger/ledgertest"
	"github.com/Abrham-amplitude/solana-ticket/internal/tokenprog"
	"github.com/Abrham-amplitude/solana-ticket/utils"
)

func galaSpec() TicketSpec {
	return TicketSpec{
		EventName: "Gala",
		EventDate: "2026-12-31",
		Seat:      SeatInfo{Section: "A", Row: "3", Seat: "12"},
		Price:     250_000_000,
	}
}

func TestAssetTicketLifecycle(t *testing.T) {
	ctx := context.Background()
	e, l := newTestEngine(t)
	owner := funded(l, utils.LamportsPerSOL)

	ticket, err := e.CreateAssetTicket(ctx, owner, galaSpec())
	require.NoError(t, err)
	assert.Equal(t, "Gala Ticket", ticket.Metadata.Name)
	assert.Equal(t, "12", ticket.Metadata.Seat.Seat)

	wantATA, err := tokenprog.AssociatedTokenAddress(owner.PublicAddress(), ticket.MintAddress)
	require.NoError(t, err)
	assert.Equal(t, wantATA, ticket.TokenAccountAddress)

	st, err := e.VerifyAssetTicket(ctx, ticket.MintAddress)
	require.NoError(t, err)
	assert.True(t, st.Valid)
	assert.Equal(t, uint64(1), st.Supply)
	assert.Zero(t, st.Decimals)

	acc, ok := l.Account(ticket.TokenAccountAddress)
	require.True(t, ok)
	ta, err := tokenprog.ParseTokenAccount(acc.Data)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ta.Amount)
	assert.Equal(t, owner.PublicAddress(), ta.Owner)

	info, err := e.GetAssetTicket(ctx, ticket.MintAddress)
	require.NoError(t, err)
	require.NotNil(t, info.Metadata)
	assert.Equal(t, ticket.Metadata, *info.Metadata)
	assert.Equal(t, owner.PublicAddress().String(), info.Owner)

	_, err = e.UseAssetTicket(ctx, owner, ticket.MintAddress)
	require.NoError(t, err)

	st, err = e.VerifyAssetTicket(ctx, ticket.MintAddress)
	require.NoError(t, err)
	assert.False(t, st.Valid)
	assert.True(t, st.Exists)
	assert.Zero(t, st.Supply)

	_, err = e.UseAssetTicket(ctx, owner, ticket.MintAddress)
	assert.ErrorIs(t, err, ErrInvalidTicket)
}

func TestCreateAssetTicketInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	e, l := newTestEngine(t)
	rent := ledgertest.RentExempt(tokenprog.MintSize)

	_, err := e.CreateAssetTicket(ctx, funded(l, rent+DefaultAssetFeeMargin-1), galaSpec())
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Zero(t, l.Submitted())
}

func TestCreateAssetTicketRequiresEventName(t *testing.T) {
	e, l := newTestEngine(t)
	spec := galaSpec()
	spec.EventName = "  "
	_, err := e.CreateAssetTicket(context.Background(), funded(l, utils.LamportsPerSOL), spec)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestConcurrentAssetTicketsGetDistinctMints(t *testing.T) {
	ctx := context.Background()
	e, l := newTestEngine(t)
	owner := funded(l, 10*utils.LamportsPerSOL)

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		mints    = make(map[solana.PublicKey]TicketSpec)
		accounts = make(map[solana.PublicKey]bool)
	)
	for i := 0; i < n; i++ {
		spec := galaSpec()
		spec.EventName = fmt.Sprintf("Gala %d", i)
		spec.Seat.Seat = fmt.Sprint(10 + i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, err := e.CreateAssetTicket(ctx, owner, spec)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			mints[ticket.MintAddress] = spec
			accounts[ticket.TokenAccountAddress] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, mints, n)
	require.Len(t, accounts, n)
	for mint, spec := range mints {
		st, err := e.VerifyAssetTicket(ctx, mint)
		require.NoError(t, err)
		assert.True(t, st.Valid, mint.String())

		info, err := e.GetAssetTicket(ctx, mint)
		require.NoError(t, err)
		require.NotNil(t, info.Metadata, mint.String())
		assert.Equal(t, spec.Metadata(), *info.Metadata)
	}
}

func TestVerifyAssetTicketIsRepeatable(t *testing.T) {
	ctx := context.Background()
	e, l := newTestEngine(t)
	owner := funded(l, utils.LamportsPerSOL)
	ticket, err := e.CreateAssetTicket(ctx, owner, galaSpec())
	require.NoError(t, err)

	first, err := e.VerifyAssetTicket(ctx, ticket.MintAddress)
	require.NoError(t, err)
	second, err := e.VerifyAssetTicket(ctx, ticket.MintAddress)
	require.NoError(t, err)
	assert.True(t, first.Valid)
	assert.Equal(t, first, second)

	_, err = e.UseAssetTicket(ctx, owner, ticket.MintAddress)
	require.NoError(t, err)

	first, err = e.VerifyAssetTicket(ctx, ticket.MintAddress)
	require.NoError(t, err)
	second, err = e.VerifyAssetTicket(ctx, ticket.MintAddress)
	require.NoError(t, err)
	assert.False(t, first.Valid)
	assert.Equal(t, first, second)
}

func TestVerifyAssetTicketRejectsNonMints(t *testing.T) {
	ctx := context.Background()
	e, l := newTestEngine(t)

	missing, err := e.VerifyAssetTicket(ctx, solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.False(t, missing.Valid)
	assert.False(t, missing.Exists)

	wallet := funded(l, 1_000)
	st, err := e.VerifyAssetTicket(ctx, wallet.PublicAddress())
	require.NoError(t, err)
	assert.False(t, st.Valid)
	assert.Contains(t, st.Reason, "token program")

	auth := solana.NewWallet().PublicKey()
	multi := solana.NewWallet().PublicKey()
	l.SetAccount(multi, ledger.Account{
		Lamports: 1,
		Owner:    tokenprog.TokenProgramID,
		Data:     tokenprog.EncodeMint(tokenprog.Mint{MintAuthority: &auth, Supply: 5, IsInitialized: true}),
	})
	st, err = e.VerifyAssetTicket(ctx, multi)
	require.NoError(t, err)
	assert.False(t, st.Valid)
	assert.Equal(t, uint64(5), st.Supply)
}

func TestGetAssetTicketFallsBackToMemo(t *testing.T) {
	ctx := context.Background()
	e, l := newTestEngine(t)
	ticket, err := e.CreateAssetTicket(ctx, funded(l, utils.LamportsPerSOL), galaSpec())
	require.NoError(t, err)

	fresh := NewEngine(l, DefaultConfig(), WithLogger(utils.NewLogger("fresh", "error")))
	info, err := fresh.GetAssetTicket(ctx, ticket.MintAddress)
	require.NoError(t, err)
	require.NotNil(t, info.Metadata)
	assert.Equal(t, ticket.Metadata, *info.Metadata)
	assert.True(t, info.Valid)
}

func TestGetAssetTicketWithoutMemo(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New()
	cfg := DefaultConfig()
	cfg.AttachMetadataMemo = false
	e := NewEngine(l, cfg, WithLogger(utils.NewLogger("test", "error")))
	ticket, err := e.CreateAssetTicket(ctx, funded(l, utils.LamportsPerSOL), galaSpec())
	require.NoError(t, err)

	fresh := NewEngine(l, cfg, WithLogger(utils.NewLogger("fresh", "error")))
	info, err := fresh.GetAssetTicket(ctx, ticket.MintAddress)
	require.NoError(t, err)
	assert.Nil(t, info.Metadata)
	assert.True(t, info.Valid)
}

func TestGetAssetTicketNotFound(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.GetAssetTicket(context.Background(), solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, ErrNotFound)
}
