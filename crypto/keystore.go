package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// SaveToKeystore encrypts key into an Ethereum v3 keystore file at path and
// returns the address it controls. Parent directories are created with 0700.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) ([20]byte, error) {
	var addr [20]byte
	if key == nil {
		return addr, errors.New("crypto: nil private key")
	}
	if path == "" {
		return addr, errors.New("crypto: empty keystore path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return addr, err
	}

	tmpDir, err := os.MkdirTemp(dir, "keystore-")
	if err != nil {
		return addr, err
	}
	defer os.RemoveAll(tmpDir)

	ks := keystore.NewKeyStore(tmpDir, keystore.StandardScryptN, keystore.StandardScryptP)
	account, err := ks.ImportECDSA(key.PrivateKey, passphrase)
	if err != nil {
		return addr, err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return addr, err
	}
	if err := os.Rename(account.URL.Path, path); err != nil {
		return addr, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return addr, err
	}
	return account.Address, nil
}

// LoadFromKeystore decrypts an Ethereum v3 keystore file using the supplied passphrase.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}

	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, err
	}

	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}

// KeystoreAddress reads the plaintext address field of a keystore file so
// callers can identify the operator without the passphrase.
func KeystoreAddress(path string) ([20]byte, error) {
	var addr [20]byte
	raw, err := os.ReadFile(path)
	if err != nil {
		return addr, err
	}
	var envelope struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return addr, fmt.Errorf("crypto: decode keystore: %w", err)
	}
	return ParseAddress("0x" + envelope.Address)
}
