// Package vault implements symmetric encryption of tenant credential
// strings using AES-256-GCM.
//
// Every secret is stored as a ciphertext/nonce/tag triple, never as
// plaintext. The encryption key is derived deterministically from a single
// configured secret, so there is no separate key storage and no rotation
// mechanism; rotating the secret invalidates every stored credential. This
// is a known limitation of the design.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/cloudpad/tenantvault/internal/common"
)

const (
	nonceSize = 12
	tagSize   = 16
	keySize   = 32
)

// keySalt pins the Argon2id derivation so the same configured secret always
// yields the same AES key across processes and restarts.
var keySalt = []byte("tenantvault.credential-key.v1")

// Vault seals and opens credential strings with a process-lifetime key.
// The key is injected at construction; nothing here reads ambient state.
type Vault struct {
	key []byte
}

// New derives the AES-256 key from the configured secret via Argon2id and
// returns a ready-to-use Vault.
func New(secret string) *Vault {
	key := argon2.IDKey([]byte(secret), keySalt, 1, 64*1024, 4, keySize)
	return &Vault{key: key}
}

// Sealed is one encrypted secret: AES-GCM ciphertext with the nonce used to
// produce it and the 16-byte authentication tag kept separately.
type Sealed struct {
	Ciphertext []byte
	Nonce      []byte
	Tag        []byte
}

// Encrypt seals plaintext under the vault key with a fresh random nonce.
// Encrypting the same plaintext twice yields different triples.
func (v *Vault) Encrypt(plaintext string) (*Sealed, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce generation: %w", err)
	}

	aesgcm, err := v.newGCM()
	if err != nil {
		return nil, err
	}

	// Seal appends the tag to the ciphertext; split it off so the triple
	// is explicit in storage.
	out := aesgcm.Seal(nil, nonce, []byte(plaintext), nil)
	n := len(out) - tagSize

	return &Sealed{
		Ciphertext: out[:n],
		Nonce:      nonce,
		Tag:        out[n:],
	}, nil
}

// Decrypt opens a sealed triple and returns the original plaintext. A
// failed tag verification (tampered data or wrong key) is reported as
// common.ErrAuthentication and is never retried by callers.
func (v *Vault) Decrypt(s *Sealed) (string, error) {
	if s == nil || len(s.Nonce) != nonceSize || len(s.Tag) != tagSize {
		return "", fmt.Errorf("%w: malformed sealed value", common.ErrAuthentication)
	}

	aesgcm, err := v.newGCM()
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(s.Ciphertext)+tagSize)
	sealed = append(sealed, s.Ciphertext...)
	sealed = append(sealed, s.Tag...)

	plaintext, err := aesgcm.Open(nil, s.Nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrAuthentication, err)
	}

	out := string(plaintext)
	Wipe(plaintext)
	return out, nil
}

func (v *Vault) newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Wipe overwrites the contents of b with zeros. Used to drop decrypted key
// material from memory as soon as a client has been built from it.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
