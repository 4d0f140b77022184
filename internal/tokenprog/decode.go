package tokenprog

import (
	"unicode/utf8"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindCreateAccount
	KindSystemTransfer
	KindInitializeMint
	KindMintTo
	KindBurn
	KindTokenTransfer
	KindCreateAssociatedAccount
	KindMemo
	KindComputeBudget
)

func (k Kind) String() string {
	switch k {
	case KindCreateAccount:
		return "create_account"
	case KindSystemTransfer:
		return "system_transfer"
	case KindInitializeMint:
		return "initialize_mint"
	case KindMintTo:
		return "mint_to"
	case KindBurn:
		return "burn"
	case KindTokenTransfer:
		return "token_transfer"
	case KindCreateAssociatedAccount:
		return "create_associated_account"
	case KindMemo:
		return "memo"
	case KindComputeBudget:
		return "compute_budget"
	}
	return "unknown"
}

// Decoded is one top-level instruction with its accounts resolved. Only the
// fields relevant to Kind are set.
type Decoded struct {
	Program  solana.PublicKey
	Kind     Kind
	Accounts []solana.PublicKey

	Lamports  uint64 // system transfer, create account
	Space     uint64 // create account
	Owner     solana.PublicKey
	Amount    uint64 // mint to, burn, token transfer
	Decimals  uint8
	Authority solana.PublicKey // initialize mint
	Memo      string
	Units     uint32 // compute unit limit
	Price     uint64 // compute unit price, micro-lamports
}

// Account returns the i-th instruction account or the zero key.
func (d Decoded) Account(i int) solana.PublicKey {
	if i < 0 || i >= len(d.Accounts) {
		return solana.PublicKey{}
	}
	return d.Accounts[i]
}

// Decode classifies a single instruction. Malformed data yields KindUnknown.
func Decode(program solana.PublicKey, accounts []solana.PublicKey, data []byte) Decoded {
	d := Decoded{Program: program, Accounts: accounts}
	switch {
	case program.Equals(SystemProgramID):
		decodeSystem(&d, data)
	case program.Equals(TokenProgramID):
		decodeToken(&d, data)
	case program.Equals(AssociatedTokenProgramID):
		// create (empty or 0) and create_idempotent (1) share the account list
		if len(accounts) >= 4 && (len(data) == 0 || data[0] <= 1) {
			d.Kind = KindCreateAssociatedAccount
		}
	case program.Equals(ComputeBudgetProgramID):
		decodeComputeBudget(&d, data)
	case program.Equals(MemoProgramID):
		if utf8.Valid(data) {
			d.Kind = KindMemo
			d.Memo = string(data)
		}
	}
	return d
}

func decodeSystem(d *Decoded, data []byte) {
	decoder := bin.NewBorshDecoder(data)
	var instrType uint32
	if err := decoder.Decode(&instrType); err != nil {
		return
	}
	switch instrType {
	case systemTransfer:
		var lamports uint64
		if err := decoder.Decode(&lamports); err != nil || len(d.Accounts) < 2 {
			return
		}
		d.Kind = KindSystemTransfer
		d.Lamports = lamports
	case systemCreateAccount:
		var lamports, space uint64
		if err := decoder.Decode(&lamports); err != nil {
			return
		}
		if err := decoder.Decode(&space); err != nil {
			return
		}
		if len(data) < 52 || len(d.Accounts) < 2 {
			return
		}
		d.Kind = KindCreateAccount
		d.Lamports = lamports
		d.Space = space
		d.Owner = solana.PublicKeyFromBytes(data[20:52])
	}
}

func decodeToken(d *Decoded, data []byte) {
	decoder := bin.NewBorshDecoder(data)
	var instrType uint8
	if err := decoder.Decode(&instrType); err != nil {
		return
	}
	switch instrType {
	case tokenInitializeMint, tokenInitializeMint2:
		if len(data) < 34 || len(d.Accounts) < 1 {
			return
		}
		d.Kind = KindInitializeMint
		d.Decimals = data[1]
		d.Authority = solana.PublicKeyFromBytes(data[2:34])
	case tokenMintTo, tokenMintToChecked:
		if d.readAmount(decoder, 3) {
			d.Kind = KindMintTo
		}
	case tokenBurn, tokenBurnChecked:
		if d.readAmount(decoder, 3) {
			d.Kind = KindBurn
		}
	case tokenTransfer:
		if d.readAmount(decoder, 3) {
			d.Kind = KindTokenTransfer
		}
	case tokenTransferChecked:
		// accounts: source, mint, destination, owner
		if d.readAmount(decoder, 4) {
			d.Kind = KindTokenTransfer
			d.Accounts = []solana.PublicKey{d.Accounts[0], d.Accounts[2], d.Accounts[3], d.Accounts[1]}
		}
	}
}

func (d *Decoded) readAmount(decoder *bin.Decoder, minAccounts int) bool {
	var amount uint64
	if err := decoder.Decode(&amount); err != nil || len(d.Accounts) < minAccounts {
		return false
	}
	d.Amount = amount
	return true
}

// DecodeTransaction resolves and classifies every top-level instruction.
// Instructions referencing accounts outside the static key list (address
// lookup tables) are reported as KindUnknown.
func DecodeTransaction(tx *solana.Transaction) []Decoded {
	if tx == nil {
		return nil
	}
	keys := tx.Message.AccountKeys
	out := make([]Decoded, 0, len(tx.Message.Instructions))
	for _, ci := range tx.Message.Instructions {
		if int(ci.ProgramIDIndex) >= len(keys) {
			out = append(out, Decoded{})
			continue
		}
		program := keys[ci.ProgramIDIndex]
		accounts := make([]solana.PublicKey, 0, len(ci.Accounts))
		resolved := true
		for _, idx := range ci.Accounts {
			if int(idx) >= len(keys) {
				resolved = false
				break
			}
			accounts = append(accounts, keys[idx])
		}
		if !resolved {
			out = append(out, Decoded{Program: program})
			continue
		}
		out = append(out, Decode(program, accounts, ci.Data))
	}
	return out
}
