package utils

import (
	"encoding/base64"
	"errors"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var ErrEmptyTx = errors.New("empty transaction payload")

// DecodeBase64Tx parses a wire transaction as sent to sendTransaction.
func DecodeBase64Tx(b64 string) (*solana.Transaction, error) {
	if b64 == "" {
		return nil, ErrEmptyTx
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(data))
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// EncodeBase64Tx serializes a signed transaction for sendTransaction.
func EncodeBase64Tx(tx *solana.Transaction) (string, error) {
	enc, err := tx.MarshalBinary()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(enc), nil
}
