package crypto

import (
	"encoding/hex"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseAddressRoundTrip(t *testing.T) {
	addr, err := ParseAddress("0xf290590d47c81820427a108ce6363607a03aaf1b")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	formatted := FormatAddress(addr)
	if !strings.EqualFold(formatted, "0xf290590d47c81820427a108ce6363607a03aaf1b") {
		t.Fatalf("unexpected address %s", formatted)
	}
	reparsed, err := ParseAddress(formatted)
	if err != nil || reparsed != addr {
		t.Fatalf("checksum form did not round trip: %v", err)
	}
	if _, err := ParseAddress("not-an-address"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if IsZeroAddress(addr) {
		t.Fatalf("parsed address reported as zero")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "operator.keystore")
	saved, err := SaveToKeystore(path, key, "secret")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved != key.PubKey().Address() {
		t.Fatalf("saved address mismatch")
	}
	plain, err := KeystoreAddress(path)
	if err != nil {
		t.Fatalf("keystore address: %v", err)
	}
	if plain != saved {
		t.Fatalf("plaintext address mismatch")
	}
	loaded, err := LoadFromKeystore(path, "secret")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PubKey().Address() != key.PubKey().Address() {
		t.Fatalf("address mismatch after reload")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}

func TestPrivateKeyFromHex(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	encoded := "0x" + hex.EncodeToString(key.Bytes())
	parsed, err := PrivateKeyFromHex(encoded)
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if parsed.PubKey().Address() != key.PubKey().Address() {
		t.Fatalf("address mismatch")
	}
}

func TestModuleAddressIsStable(t *testing.T) {
	a := ModuleAddress("payments")
	if a != ModuleAddress("payments") {
		t.Fatalf("module address not deterministic")
	}
	if a == ModuleAddress("reviews") || IsZeroAddress(a) {
		t.Fatalf("unexpected module address %s", FormatAddress(a))
	}
}
