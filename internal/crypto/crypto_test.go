package crypto

import (
	"bytes"
	"testing"
	"time"
)

func testMasterKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestDeriveMasterKeyDeterministic(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("generate salt: %v", err)
	}
	a := DeriveMasterKey("correct horse battery staple", salt, 1000)
	b := DeriveMasterKey("correct horse battery staple", salt, 1000)
	if !bytes.Equal(a, b) {
		t.Fatalf("expected deterministic derivation for same passphrase/salt/iterations")
	}
	c := DeriveMasterKey("different passphrase", salt, 1000)
	if bytes.Equal(a, c) {
		t.Fatalf("expected different passphrase to derive a different key")
	}
}

func TestWrapUnwrapKeyRoundTrip(t *testing.T) {
	master := testMasterKey()
	plaintext := []byte("this is 32 bytes of key material")

	wrapped, err := WrapKey(master, plaintext)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if bytes.Equal(wrapped, plaintext) {
		t.Fatalf("expected wrapped material to differ from plaintext")
	}

	unwrapped, err := UnwrapKey(master, wrapped)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if !bytes.Equal(unwrapped, plaintext) {
		t.Fatalf("round trip mismatch")
	}
}

func TestUnwrapKeyRejectsTampering(t *testing.T) {
	master := testMasterKey()
	wrapped, _ := WrapKey(master, []byte("secret"))
	wrapped[len(wrapped)-1] ^= 0xFF

	if _, err := UnwrapKey(master, wrapped); err == nil {
		t.Fatalf("expected tampered ciphertext to fail authentication")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testMasterKey()
	aad := []byte("object-id:42")
	ciphertext, err := Encrypt(key, []byte("hello vexfs"), aad)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	plaintext, err := Decrypt(key, ciphertext, aad)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(plaintext) != "hello vexfs" {
		t.Fatalf("unexpected plaintext %q", plaintext)
	}

	if _, err := Decrypt(key, ciphertext, []byte("wrong-aad")); err == nil {
		t.Fatalf("expected mismatched AAD to fail")
	}
}

func TestStoreGetOrCreateActiveIsStable(t *testing.T) {
	store, err := NewStore(testMasterKey(), 2, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	first, err := store.GetOrCreateActive(1, PurposeFileData)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	second, err := store.GetOrCreateActive(1, PurposeFileData)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if first.Version != second.Version {
		t.Fatalf("expected repeated calls to return the same active version")
	}
}

func TestStoreRotateDeprecatesOldActive(t *testing.T) {
	store, _ := NewStore(testMasterKey(), 2, nil)

	v1, err := store.GetOrCreateActive(1, PurposeFileData)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	v2, err := store.Rotate(1, PurposeFileData)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if v2.Version == v1.Version {
		t.Fatalf("expected rotate to mint a new version")
	}

	reloaded, err := store.GetVersion(1, v1.Version)
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	if reloaded.State != StateDeprecated {
		t.Fatalf("expected old active key to become deprecated, got %s", reloaded.State)
	}

	active, err := store.GetOrCreateActive(1, PurposeFileData)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if active.Version != v2.Version {
		t.Fatalf("expected the rotated key to be active")
	}
}

func TestStoreRetiresBeyondRetention(t *testing.T) {
	store, _ := NewStore(testMasterKey(), 1, nil)

	v1, _ := store.GetOrCreateActive(1, PurposeFileData)
	_, err := store.Rotate(1, PurposeFileData)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	_, err = store.Rotate(1, PurposeFileData)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}

	if _, err := store.GetVersion(1, v1.Version); err == nil {
		t.Fatalf("expected the oldest deprecated version to be retired and unavailable")
	}
}

func TestStoreNeedsRotation(t *testing.T) {
	store, _ := NewStore(testMasterKey(), 2, nil)
	if _, err := store.GetOrCreateActive(1, PurposeFileData); err != nil {
		t.Fatalf("get or create: %v", err)
	}

	if store.NeedsRotation(1, time.Hour) {
		t.Fatalf("freshly created key should not need rotation yet")
	}
	if !store.NeedsRotation(1, -time.Hour) {
		t.Fatalf("key older than a negative interval should need rotation")
	}
}
