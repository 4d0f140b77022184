// Package keys generates, imports and exports ed25519 keypairs in the two
// encodings wallets use: raw hex and base58.
package keys

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

const (
	SeedSize   = ed25519.SeedSize       // 32
	SecretSize = ed25519.PrivateKeySize // 64
)

var (
	ErrInvalidKeyMaterial = errors.New("invalid key material")
	ErrDecode             = errors.New("decode error")
)

type Encoding int

const (
	Hex Encoding = iota
	Base58
)

func (e Encoding) String() string {
	switch e {
	case Hex:
		return "hex"
	case Base58:
		return "base58"
	}
	return fmt.Sprintf("encoding(%d)", int(e))
}

// ParseEncoding accepts "hex" or "base58" (also "b58").
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "hex":
		return Hex, nil
	case "base58", "b58":
		return Base58, nil
	}
	return 0, fmt.Errorf("unknown key encoding %q", name)
}

// Keypair is immutable; the secret is copied in and out.
type Keypair struct {
	secret solana.PrivateKey
}

// Generate returns a keypair with fresh random secret material.
func Generate() Keypair {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic("keys: entropy source failed: " + err.Error())
	}
	return Keypair{secret: solana.PrivateKey(priv)}
}

// FromPrivateKey wraps an existing solana private key.
func FromPrivateKey(pk solana.PrivateKey) (Keypair, error) {
	return fromBytes(pk)
}

// Import decodes s in the given encoding. A 32-byte value is treated as a
// seed, a 64-byte value as seed followed by public key.
func Import(s string, enc Encoding) (Keypair, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Keypair{}, fmt.Errorf("%w: empty %s string", ErrDecode, enc)
	}
	var (
		raw []byte
		err error
	)
	switch enc {
	case Hex:
		raw, err = hex.DecodeString(s)
	case Base58:
		raw, err = base58.Decode(s)
	default:
		return Keypair{}, fmt.Errorf("%w: unsupported encoding %s", ErrDecode, enc)
	}
	if err != nil {
		return Keypair{}, fmt.Errorf("%w: %s: %v", ErrDecode, enc, err)
	}
	return fromBytes(raw)
}

func fromBytes(raw []byte) (Keypair, error) {
	switch len(raw) {
	case SeedSize:
		return Keypair{secret: solana.PrivateKey(ed25519.NewKeyFromSeed(raw))}, nil
	case SecretSize:
		expanded := ed25519.NewKeyFromSeed(raw[:SeedSize])
		if !bytes.Equal(expanded[SeedSize:], raw[SeedSize:]) {
			return Keypair{}, fmt.Errorf("%w: public half does not match seed", ErrInvalidKeyMaterial)
		}
		secret := make([]byte, SecretSize)
		copy(secret, raw)
		return Keypair{secret: solana.PrivateKey(secret)}, nil
	}
	return Keypair{}, fmt.Errorf("%w: %d bytes, want %d or %d", ErrInvalidKeyMaterial, len(raw), SeedSize, SecretSize)
}

// Export encodes the 64-byte secret. Hex output is always 128 characters.
func Export(k Keypair, enc Encoding) string {
	switch enc {
	case Base58:
		return base58.Encode(k.secret)
	default:
		return hex.EncodeToString(k.secret)
	}
}

// Convert re-encodes a secret from one encoding into another.
func Convert(s string, from, to Encoding) (string, Keypair, error) {
	k, err := Import(s, from)
	if err != nil {
		return "", Keypair{}, err
	}
	return Export(k, to), k, nil
}

func (k Keypair) IsZero() bool { return len(k.secret) == 0 }

// PublicAddress is the ledger address of the keypair.
func (k Keypair) PublicAddress() solana.PublicKey {
	if k.IsZero() {
		return solana.PublicKey{}
	}
	return k.secret.PublicKey()
}

// PrivateKey returns a copy usable for transaction signing.
func (k Keypair) PrivateKey() solana.PrivateKey {
	out := make(solana.PrivateKey, len(k.secret))
	copy(out, k.secret)
	return out
}

func (k Keypair) String() string {
	return k.PublicAddress().String()
}
