package tokenprog

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	MintSize         = 82
	TokenAccountSize = 165
)

var ErrLayout = errors.New("unexpected account layout")

// Mint mirrors the SPL Token mint account.
type Mint struct {
	MintAuthority   *solana.PublicKey
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority *solana.PublicKey
}

// TokenAccount carries the fields tickets care about; the remaining
// optional fields are written empty.
type TokenAccount struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
}

// ParseMint decodes the 82-byte mint layout.
func ParseMint(data []byte) (*Mint, error) {
	if len(data) < MintSize {
		return nil, fmt.Errorf("%w: mint is %d bytes, want %d", ErrLayout, len(data), MintSize)
	}
	m := &Mint{
		MintAuthority:   readCOptionKey(data[0:36]),
		Supply:          binary.LittleEndian.Uint64(data[36:44]),
		Decimals:        data[44],
		IsInitialized:   data[45] == 1,
		FreezeAuthority: readCOptionKey(data[46:82]),
	}
	return m, nil
}

func EncodeMint(m Mint) []byte {
	data := make([]byte, MintSize)
	writeCOptionKey(data[0:36], m.MintAuthority)
	binary.LittleEndian.PutUint64(data[36:44], m.Supply)
	data[44] = m.Decimals
	if m.IsInitialized {
		data[45] = 1
	}
	writeCOptionKey(data[46:82], m.FreezeAuthority)
	return data
}

// ParseTokenAccount decodes mint, owner and amount from the 165-byte layout.
func ParseTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) < TokenAccountSize {
		return nil, fmt.Errorf("%w: token account is %d bytes, want %d", ErrLayout, len(data), TokenAccountSize)
	}
	return &TokenAccount{
		Mint:   solana.PublicKeyFromBytes(data[0:32]),
		Owner:  solana.PublicKeyFromBytes(data[32:64]),
		Amount: binary.LittleEndian.Uint64(data[64:72]),
	}, nil
}

// EncodeTokenAccount writes an initialized account with no delegate.
func EncodeTokenAccount(a TokenAccount) []byte {
	data := make([]byte, TokenAccountSize)
	copy(data[0:32], a.Mint[:])
	copy(data[32:64], a.Owner[:])
	binary.LittleEndian.PutUint64(data[64:72], a.Amount)
	data[108] = 1 // AccountState::Initialized
	return data
}

func readCOptionKey(b []byte) *solana.PublicKey {
	if binary.LittleEndian.Uint32(b[0:4]) != 1 {
		return nil
	}
	pk := solana.PublicKeyFromBytes(b[4:36])
	return &pk
}

func writeCOptionKey(b []byte, pk *solana.PublicKey) {
	if pk == nil {
		return
	}
	binary.LittleEndian.PutUint32(b[0:4], 1)
	copy(b[4:36], pk[:])
}
