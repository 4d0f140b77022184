// Package tokenprog encodes and decodes the System, SPL Token, Associated
// Token Account and Memo program instructions used by tickets. Layouts are the
// programs' own; nothing here is negotiable.
package tokenprog

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

var (
	SystemProgramID          = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")
	TokenProgramID           = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgramID = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	MemoProgramID            = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
	RentSysvarID             = solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
)

// System program instruction indexes (u32 LE).
const (
	systemCreateAccount uint32 = 0
	systemTransfer      uint32 = 2
)

// SPL Token instruction discriminators (u8).
const (
	tokenInitializeMint  uint8 = 0
	tokenTransfer        uint8 = 3
	tokenMintTo          uint8 = 7
	tokenBurn            uint8 = 8
	tokenTransferChecked uint8 = 12
	tokenMintToChecked   uint8 = 14
	tokenBurnChecked     uint8 = 15
	tokenInitializeMint2 uint8 = 20
)

// MaxMemoSize keeps a memo inside a single legacy transaction packet.
const MaxMemoSize = 566

// Transfer 构建 System Transfer 指令
// data: u32 2 | u64 lamports
func Transfer(from, to solana.PublicKey, lamports uint64) solana.Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], systemTransfer)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	return solana.NewInstruction(
		SystemProgramID,
		solana.AccountMetaSlice{
			{PublicKey: from, IsSigner: true, IsWritable: true},
			{PublicKey: to, IsSigner: false, IsWritable: true},
		},
		data,
	)
}

// CreateAccount allocates space bytes at newAccount, funded with lamports and
// assigned to owner. data: u32 0 | u64 lamports | u64 space | owner[32]
func CreateAccount(funder, newAccount solana.PublicKey, lamports, space uint64, owner solana.PublicKey) solana.Instruction {
	data := make([]byte, 52)
	binary.LittleEndian.PutUint32(data[0:4], systemCreateAccount)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	binary.LittleEndian.PutUint64(data[12:20], space)
	copy(data[20:52], owner[:])

	return solana.NewInstruction(
		SystemProgramID,
		solana.AccountMetaSlice{
			{PublicKey: funder, IsSigner: true, IsWritable: true},
			{PublicKey: newAccount, IsSigner: true, IsWritable: true},
		},
		data,
	)
}

// InitializeMint data: u8 0 | u8 decimals | authority[32] | COption<Pubkey>
// freeze authority (u8 tag, then 32 bytes when present).
func InitializeMint(mint solana.PublicKey, decimals uint8, mintAuthority solana.PublicKey, freezeAuthority *solana.PublicKey) solana.Instruction {
	data := make([]byte, 0, 67)
	data = append(data, tokenInitializeMint, decimals)
	data = append(data, mintAuthority[:]...)
	if freezeAuthority != nil {
		data = append(data, 1)
		data = append(data, freezeAuthority[:]...)
	} else {
		data = append(data, 0)
	}

	return solana.NewInstruction(
		TokenProgramID,
		solana.AccountMetaSlice{
			{PublicKey: mint, IsSigner: false, IsWritable: true},
			{PublicKey: RentSysvarID, IsSigner: false, IsWritable: false},
		},
		data,
	)
}

// MintTo data: u8 7 | u64 amount
func MintTo(mint, destination, authority solana.PublicKey, amount uint64) solana.Instruction {
	return solana.NewInstruction(
		TokenProgramID,
		solana.AccountMetaSlice{
			{PublicKey: mint, IsSigner: false, IsWritable: true},
			{PublicKey: destination, IsSigner: false, IsWritable: true},
			{PublicKey: authority, IsSigner: true, IsWritable: false},
		},
		amountData(tokenMintTo, amount),
	)
}

// Burn data: u8 8 | u64 amount
func Burn(account, mint, owner solana.PublicKey, amount uint64) solana.Instruction {
	return solana.NewInstruction(
		TokenProgramID,
		solana.AccountMetaSlice{
			{PublicKey: account, IsSigner: false, IsWritable: true},
			{PublicKey: mint, IsSigner: false, IsWritable: true},
			{PublicKey: owner, IsSigner: true, IsWritable: false},
		},
		amountData(tokenBurn, amount),
	)
}

// TokenTransfer data: u8 3 | u64 amount
func TokenTransfer(source, destination, owner solana.PublicKey, amount uint64) solana.Instruction {
	return solana.NewInstruction(
		TokenProgramID,
		solana.AccountMetaSlice{
			{PublicKey: source, IsSigner: false, IsWritable: true},
			{PublicKey: destination, IsSigner: false, IsWritable: true},
			{PublicKey: owner, IsSigner: true, IsWritable: false},
		},
		amountData(tokenTransfer, amount),
	)
}

// AssociatedTokenAddress derives the deterministic token account of wallet
// for mint.
func AssociatedTokenAddress(wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{wallet[:], TokenProgramID[:], mint[:]},
		AssociatedTokenProgramID,
	)
	return addr, err
}

// CreateAssociatedTokenAccount returns the create instruction (empty data)
// and the derived account address.
func CreateAssociatedTokenAccount(payer, wallet, mint solana.PublicKey) (solana.Instruction, solana.PublicKey, error) {
	ata, err := AssociatedTokenAddress(wallet, mint)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	ix := solana.NewInstruction(
		AssociatedTokenProgramID,
		solana.AccountMetaSlice{
			{PublicKey: payer, IsSigner: true, IsWritable: true},
			{PublicKey: ata, IsSigner: false, IsWritable: true},
			{PublicKey: wallet, IsSigner: false, IsWritable: false},
			{PublicKey: mint, IsSigner: false, IsWritable: false},
			{PublicKey: SystemProgramID, IsSigner: false, IsWritable: false},
			{PublicKey: TokenProgramID, IsSigner: false, IsWritable: false},
		},
		[]byte{},
	)
	return ix, ata, nil
}

// Memo 指令（无账户，数据为 UTF-8 文本）
func Memo(text []byte) solana.Instruction {
	return solana.NewInstruction(MemoProgramID, solana.AccountMetaSlice{}, text)
}

func amountData(disc uint8, amount uint64) []byte {
	data := make([]byte, 9)
	data[0] = disc
	binary.LittleEndian.PutUint64(data[1:9], amount)
	return data
}
