package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/lspecian/vexfs-sub008/internal/errs"
	"golang.org/x/crypto/pbkdf2"
)

// DefaultKDFIterations matches key_management.rs's
// KEY_DERIVATION_ITERATIONS, overridable via crypto.kdf_iterations.
const DefaultKDFIterations = 100_000

// SaltSize matches key_management.rs's KEY_SALT_SIZE.
const SaltSize = 32

// GenerateSalt returns a fresh random salt for DeriveMasterKey.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, errs.Wrap(err, "crypto", "generate-salt")
	}
	return salt, nil
}

// DeriveMasterKey derives a 32-byte AES-256 master key from a passphrase
// and salt via PBKDF2-HMAC-SHA256, per spec.md §3's "derivation
// (PBKDF2-class)" and §6's `crypto.kdf_iterations` config key.
func DeriveMasterKey(passphrase string, salt []byte, iterations int) []byte {
	if iterations <= 0 {
		iterations = DefaultKDFIterations
	}
	return pbkdf2.Key([]byte(passphrase), salt, iterations, 32, sha256.New)
}

// WrapKey encrypts plaintext key material under the master key using
// AES-256-GCM, for at-rest persistence of a Key's Material, per spec.md
// §3's "material is never stored plaintext except in volatile memory."
func WrapKey(masterKey, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, errs.Wrap(err, "crypto", "wrap-key-cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(err, "crypto", "wrap-key-gcm")
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errs.Wrap(err, "crypto", "wrap-key-nonce")
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// UnwrapKey reverses WrapKey.
func UnwrapKey(masterKey, wrapped []byte) ([]byte, error) {
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, errs.Wrap(err, "crypto", "unwrap-key-cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(err, "crypto", "unwrap-key-gcm")
	}
	nonceSize := gcm.NonceSize()
	if len(wrapped) < nonceSize {
		return nil, errs.Wrap(errs.ErrCorrupt, "crypto", "unwrap-key-short")
	}
	nonce, ciphertext := wrapped[:nonceSize], wrapped[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCorrupt, "crypto", "unwrap-key-auth-failed")
	}
	return plaintext, nil
}

// Encrypt seals plaintext under key using AES-256-GCM, the data-plane
// counterpart to WrapKey (which protects key material itself).
func Encrypt(key, plaintext, additionalData []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.Wrap(err, "crypto", "encrypt-cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(err, "crypto", "encrypt-gcm")
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errs.Wrap(err, "crypto", "encrypt-nonce")
	}
	return gcm.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Decrypt reverses Encrypt.
func Decrypt(key, ciphertext, additionalData []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.Wrap(err, "crypto", "decrypt-cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(err, "crypto", "decrypt-gcm")
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errs.Wrap(errs.ErrCorrupt, "crypto", "decrypt-short")
	}
	nonce, body := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, body, additionalData)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCorrupt, "crypto", "decrypt-auth-failed")
	}
	return plaintext, nil
}
