package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidAddress is returned when an address string cannot be parsed.
var ErrInvalidAddress = errors.New("crypto: invalid address")

// FormatAddress renders a raw 20-byte address in EIP-55 checksum form.
func FormatAddress(addr [20]byte) string {
	return common.Address(addr).Hex()
}

// ParseAddress decodes a 0x-prefixed hex address.
func ParseAddress(raw string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return out, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	copy(out[:], common.HexToAddress(trimmed).Bytes())
	return out, nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(raw string) [20]byte {
	addr, err := ParseAddress(raw)
	if err != nil {
		panic(err)
	}
	return addr
}

// IsZeroAddress reports whether addr is the all-zero address.
func IsZeroAddress(addr [20]byte) bool {
	var zero [20]byte
	return addr == zero
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the account address controlled by the key.
func (k *PublicKey) Address() [20]byte {
	return crypto.PubkeyToAddress(*k.PublicKey)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromHex parses a hex encoded secp256k1 key with or without a 0x
// prefix.
func PrivateKeyFromHex(raw string) (*PrivateKey, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// ModuleAddress derives the deterministic account address of a named module
// from the last 20 bytes of keccak256("dineledger/module/" + name).
func ModuleAddress(name string) [20]byte {
	var out [20]byte
	digest := crypto.Keccak256([]byte("dineledger/module/" + name))
	copy(out[:], digest[12:])
	return out
}
