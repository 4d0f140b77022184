package tokenprog

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	pk, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return pk.PublicKey()
}

func decodeIx(t *testing.T, ix solana.Instruction) Decoded {
	t.Helper()
	data, err := ix.Data()
	require.NoError(t, err)
	var accounts []solana.PublicKey
	for _, m := range ix.Accounts() {
		accounts = append(accounts, m.PublicKey)
	}
	return Decode(ix.ProgramID(), accounts, data)
}

func TestTransferLayout(t *testing.T) {
	from, to := newKey(t), newKey(t)
	ix := Transfer(from, to, 1_000_000)
	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 12)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, uint64(1_000_000), binary.LittleEndian.Uint64(data[4:12]))

	metas := ix.Accounts()
	require.Len(t, metas, 2)
	assert.True(t, metas[0].IsSigner)
	assert.True(t, metas[0].IsWritable)
	assert.False(t, metas[1].IsSigner)
	assert.True(t, metas[1].IsWritable)

	d := decodeIx(t, ix)
	assert.Equal(t, KindSystemTransfer, d.Kind)
	assert.Equal(t, uint64(1_000_000), d.Lamports)
	assert.Equal(t, from, d.Account(0))
	assert.Equal(t, to, d.Account(1))
}

func TestCreateAccountLayout(t *testing.T) {
	funder, mint := newKey(t), newKey(t)
	ix := CreateAccount(funder, mint, 1_461_600, MintSize, TokenProgramID)
	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 52)
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, TokenProgramID[:], data[20:52])
	assert.True(t, ix.Accounts()[1].IsSigner)

	d := decodeIx(t, ix)
	assert.Equal(t, KindCreateAccount, d.Kind)
	assert.Equal(t, uint64(1_461_600), d.Lamports)
	assert.Equal(t, uint64(MintSize), d.Space)
	assert.Equal(t, TokenProgramID, d.Owner)
}

func TestInitializeMintLayout(t *testing.T) {
	mint, auth := newKey(t), newKey(t)
	ix := InitializeMint(mint, 0, auth, nil)
	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 35)
	assert.Equal(t, byte(0), data[0])
	assert.Equal(t, byte(0), data[1])
	assert.Equal(t, auth[:], data[2:34])
	assert.Equal(t, byte(0), data[34])
	assert.Equal(t, RentSysvarID, ix.Accounts()[1].PublicKey)

	withFreeze := InitializeMint(mint, 0, auth, &auth)
	data, err = withFreeze.Data()
	require.NoError(t, err)
	assert.Len(t, data, 67)
	assert.Equal(t, byte(1), data[34])

	d := decodeIx(t, ix)
	assert.Equal(t, KindInitializeMint, d.Kind)
	assert.Equal(t, auth, d.Authority)
}

func TestMintToAndBurn(t *testing.T) {
	mint, dest, auth := newKey(t), newKey(t), newKey(t)

	d := decodeIx(t, MintTo(mint, dest, auth, 1))
	assert.Equal(t, KindMintTo, d.Kind)
	assert.Equal(t, uint64(1), d.Amount)
	assert.Equal(t, mint, d.Account(0))

	d = decodeIx(t, Burn(dest, mint, auth, 1))
	assert.Equal(t, KindBurn, d.Kind)
	assert.Equal(t, mint, d.Account(1))

	d = decodeIx(t, TokenTransfer(dest, newKey(t), auth, 1))
	assert.Equal(t, KindTokenTransfer, d.Kind)
}

func TestTransferCheckedReordersAccounts(t *testing.T) {
	src, mint, dst, owner := newKey(t), newKey(t), newKey(t), newKey(t)
	data := make([]byte, 10)
	data[0] = tokenTransferChecked
	binary.LittleEndian.PutUint64(data[1:9], 1)
	d := Decode(TokenProgramID, []solana.PublicKey{src, mint, dst, owner}, data)
	assert.Equal(t, KindTokenTransfer, d.Kind)
	assert.Equal(t, dst, d.Account(1))
	assert.Equal(t, mint, d.Account(3))
}

func TestAssociatedTokenAccount(t *testing.T) {
	payer, wallet, mint := newKey(t), newKey(t), newKey(t)
	ix, ata, err := CreateAssociatedTokenAccount(payer, wallet, mint)
	require.NoError(t, err)

	again, err := AssociatedTokenAddress(wallet, mint)
	require.NoError(t, err)
	assert.Equal(t, ata, again)

	lib, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	require.NoError(t, err)
	assert.Equal(t, lib, ata)

	data, err := ix.Data()
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Len(t, ix.Accounts(), 6)
	assert.Equal(t, KindCreateAssociatedAccount, decodeIx(t, ix).Kind)
}

func TestMemo(t *testing.T) {
	d := decodeIx(t, Memo([]byte(`{"name":"Gala Ticket"}`)))
	assert.Equal(t, KindMemo, d.Kind)
	assert.Equal(t, `{"name":"Gala Ticket"}`, d.Memo)

	d = Decode(MemoProgramID, nil, []byte{0xff, 0xfe})
	assert.Equal(t, KindUnknown, d.Kind)
}

func TestDecodeMalformed(t *testing.T) {
	a, b := newKey(t), newKey(t)
	assert.Equal(t, KindUnknown, Decode(SystemProgramID, []solana.PublicKey{a, b}, []byte{2, 0}).Kind)
	assert.Equal(t, KindUnknown, Decode(TokenProgramID, []solana.PublicKey{a}, []byte{7, 1, 0, 0, 0, 0, 0, 0, 0}).Kind)
	assert.Equal(t, KindUnknown, Decode(newKey(t), nil, []byte{1, 2, 3}).Kind)
	assert.Equal(t, KindUnknown, Decode(TokenProgramID, nil, nil).Kind)
}

func TestDecodeTransaction(t *testing.T) {
	payer, to := newKey(t), newKey(t)
	tx, err := solana.NewTransaction(
		[]solana.Instruction{Transfer(payer, to, 5), Memo([]byte("hi"))},
		solana.Hash{},
		solana.TransactionPayer(payer),
	)
	require.NoError(t, err)

	decoded := DecodeTransaction(tx)
	require.Len(t, decoded, 2)
	assert.Equal(t, KindSystemTransfer, decoded[0].Kind)
	assert.Equal(t, payer, decoded[0].Account(0))
	assert.Equal(t, to, decoded[0].Account(1))
	assert.Equal(t, KindMemo, decoded[1].Kind)
	assert.Nil(t, DecodeTransaction(nil))
}

func TestMintLayoutRoundTrip(t *testing.T) {
	auth := newKey(t)
	raw := EncodeMint(Mint{MintAuthority: &auth, Supply: 1, Decimals: 0, IsInitialized: true})
	require.Len(t, raw, MintSize)

	m, err := ParseMint(raw)
	require.NoError(t, err)
	require.NotNil(t, m.MintAuthority)
	assert.Equal(t, auth, *m.MintAuthority)
	assert.Equal(t, uint64(1), m.Supply)
	assert.True(t, m.IsInitialized)
	assert.Nil(t, m.FreezeAuthority)

	_, err = ParseMint(raw[:40])
	assert.ErrorIs(t, err, ErrLayout)
}

func TestTokenAccountLayout(t *testing.T) {
	mint, owner := newKey(t), newKey(t)
	raw := EncodeTokenAccount(TokenAccount{Mint: mint, Owner: owner, Amount: 1})
	require.Len(t, raw, TokenAccountSize)

	a, err := ParseTokenAccount(raw)
	require.NoError(t, err)
	assert.Equal(t, mint, a.Mint)
	assert.Equal(t, owner, a.Owner)
	assert.Equal(t, uint64(1), a.Amount)

	_, err = ParseTokenAccount(raw[:64])
	assert.ErrorIs(t, err, ErrLayout)
}

func TestComputeBudget(t *testing.T) {
	data, err := SetComputeUnitLimit(300_000).Data()
	require.NoError(t, err)
	require.Len(t, data, 5)
	assert.Equal(t, byte(2), data[0])
	assert.Equal(t, uint32(300_000), binary.LittleEndian.Uint32(data[1:5]))

	d := decodeIx(t, SetComputeUnitLimit(300_000))
	assert.Equal(t, KindComputeBudget, d.Kind)
	assert.Equal(t, uint32(300_000), d.Units)

	d = decodeIx(t, SetComputeUnitPrice(5_000))
	assert.Equal(t, KindComputeBudget, d.Kind)
	assert.Equal(t, uint64(5_000), d.Price)
	assert.Empty(t, SetComputeUnitPrice(1).Accounts())

	assert.Equal(t, KindUnknown, Decode(ComputeBudgetProgramID, nil, []byte{3, 1}).Kind)
	assert.Equal(t, KindUnknown, Decode(ComputeBudgetProgramID, nil, []byte{9}).Kind)
}

func TestPriorityFee(t *testing.T) {
	assert.Zero(t, PriorityFee(0, 200_000))
	assert.Zero(t, PriorityFee(5_000, 0))
	assert.Equal(t, uint64(1_000), PriorityFee(5_000, 200_000))
	assert.Equal(t, uint64(1), PriorityFee(1, 1))
}
