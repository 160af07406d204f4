// Package cryptox seals small local blobs (the persisted session) with
// AES-GCM under a key derived from a passphrase with Argon2id.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"

	"golang.org/x/crypto/argon2"
)

const nonceSize = 12

var ErrSealedBlobTooShort = errors.New("sealed blob too short")

// DeriveKey stretches password with salt into a 32-byte AES-256 key.
func DeriveKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// EncryptEntry serializes entry to JSON and encrypts it with AES-GCM under key.
// A fresh 12-byte nonce is generated per call and returned separately.
func EncryptEntry(entry any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(entry)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	return aesgcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// DecryptEntry reverses EncryptEntry, unmarshalling the plaintext into v.
func DecryptEntry(ciphertext, nonce, key []byte, v any) error {
	aesgcm, err := newGCM(key)
	if err != nil {
		return err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return err
	}

	return json.Unmarshal(plaintext, v)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Sealer packs values into self-contained blobs (nonce || ciphertext).
type Sealer struct {
	key []byte
}

func NewSealer(passphrase, salt []byte) *Sealer {
	return &Sealer{key: DeriveKey(passphrase, salt)}
}

func (s *Sealer) Seal(v any) ([]byte, error) {
	ciphertext, nonce, err := EncryptEntry(v, s.key)
	if err != nil {
		return nil, err
	}
	return append(nonce, ciphertext...), nil
}

func (s *Sealer) Open(blob []byte, v any) error {
	if len(blob) <= nonceSize {
		return ErrSealedBlobTooShort
	}
	return DecryptEntry(blob[nonceSize:], blob[:nonceSize], s.key, v)
}
