package keys

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// WalletFile is the canonical persisted wallet.
type WalletFile struct {
	Address   string `json:"address"`
	SecretHex string `json:"secret_hex"`
}

// legacyWallet covers the shapes older tools wrote.
type legacyWallet struct {
	Address       string `json:"address"`
	Pubkey        string `json:"pubkey"`
	WalletAddress string `json:"wallet_address"`
	SecretHex     string `json:"secret_hex"`
	PrivateKey    string `json:"private_key"`
	PrivateKeyHex string `json:"private_key_hex"`
	PrivateKeyB58 string `json:"private_key_base58"`
	HexKey        string `json:"hex_key"`
	Base58Key     string `json:"base58_key"`
}

var ErrAddressMismatch = errors.New("wallet address does not match secret")

func NewWalletFile(k Keypair) WalletFile {
	return WalletFile{Address: k.PublicAddress().String(), SecretHex: Export(k, Hex)}
}

// ParseWallet decodes wallet JSON in the canonical or any legacy layout.
func ParseWallet(data []byte) (Keypair, error) {
	var w legacyWallet
	if err := json.Unmarshal(data, &w); err != nil {
		return Keypair{}, fmt.Errorf("%w: wallet json: %v", ErrDecode, err)
	}

	var (
		k   Keypair
		err error
	)
	switch {
	case w.SecretHex != "":
		k, err = Import(w.SecretHex, Hex)
	case w.PrivateKeyHex != "":
		k, err = Import(w.PrivateKeyHex, Hex)
	case w.HexKey != "":
		k, err = Import(w.HexKey, Hex)
	case w.PrivateKeyB58 != "":
		k, err = Import(w.PrivateKeyB58, Base58)
	case w.Base58Key != "":
		k, err = Import(w.Base58Key, Base58)
	case w.PrivateKey != "":
		// 旧格式 private_key 可能是 hex 也可能是 base58
		if len(w.PrivateKey) == 2*SecretSize {
			if k, err = Import(w.PrivateKey, Hex); err == nil {
				break
			}
		}
		k, err = Import(w.PrivateKey, Base58)
	default:
		return Keypair{}, fmt.Errorf("%w: wallet has no secret field", ErrDecode)
	}
	if err != nil {
		return Keypair{}, err
	}

	for _, addr := range []string{w.Address, w.Pubkey, w.WalletAddress} {
		if addr != "" && addr != k.PublicAddress().String() {
			return Keypair{}, fmt.Errorf("%w: file says %s, secret derives %s", ErrAddressMismatch, addr, k.PublicAddress())
		}
	}
	return k, nil
}

func LoadWallet(path string) (Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Keypair{}, err
	}
	return ParseWallet(data)
}

// SaveWallet writes the canonical layout with owner-only permissions.
func SaveWallet(path string, k Keypair) error {
	data, err := json.MarshalIndent(NewWalletFile(k), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
