package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrDecryptFailed indicates authentication failure or malformed input.
// Decryption fails closed: callers get an error, never corrupted plaintext.
var ErrDecryptFailed = errors.New("decryption failed")

// Seal encrypts plaintext with AES-256-GCM under the given key using a
// fresh random nonce, and returns base64(nonce || ciphertext+tag) for
// storage.
func Seal(key, plaintext []byte) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a Seal-produced value. It verifies the auth tag and
// returns ErrDecryptFailed on any mismatch or malformed input.
func Open(key []byte, encoded string) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid encoding", ErrDecryptFailed)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("%w: truncated input", ErrDecryptFailed)
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecryptFailed)
	}
	return plaintext, nil
}

// SealVector encrypts an embedding vector for at-rest storage.
func SealVector(key []byte, vector []float32) (string, error) {
	return Seal(key, EncodeVector(vector))
}

// OpenVector decrypts a SealVector-produced value.
func OpenVector(key []byte, encoded string) ([]float32, error) {
	raw, err := Open(key, encoded)
	if err != nil {
		return nil, err
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("%w: invalid vector payload", ErrDecryptFailed)
	}
	return DecodeVector(raw), nil
}

// EncodeVector converts a float32 slice to little-endian bytes.
func EncodeVector(vector []float32) []byte {
	buf := make([]byte, len(vector)*4)
	for i, f := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector converts little-endian bytes back to a float32 slice.
func DecodeVector(data []byte) []float32 {
	vector := make([]float32, len(data)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vector
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return aead, nil
}
