package utils

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL 1 SOL = 1_000_000_000 lamports
const LamportsPerSOL uint64 = 1_000_000_000

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	lamportsPerSOLDec = decimal.NewFromInt(int64(LamportsPerSOL))
)

// LamportsToSOL converts minor units to a decimal SOL value for display.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), 0).Div(lamportsPerSOLDec)
}

// FormatSOL renders lamports as "0.5 SOL".
func FormatSOL(lamports uint64) string {
	return LamportsToSOL(lamports).String() + " SOL"
}

// ParseSOL converts a human SOL amount ("0.5") into lamports. More than nine
// fractional digits, negative and empty values are rejected.
func ParseSOL(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: negative", ErrInvalidAmount)
	}
	lamports := d.Mul(lamportsPerSOLDec)
	if !lamports.Equal(lamports.Truncate(0)) {
		return 0, fmt.Errorf("%w: more than 9 decimal places", ErrInvalidAmount)
	}
	bi := lamports.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	return bi.Uint64(), nil
}
