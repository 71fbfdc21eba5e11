// Package secretbox sella y abre strings cortos con AES-256-GCM.
//
// Se usa para no exponer el código de activación en claro dentro del link
// que viaja en el email.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	EnvMasterKey      = "SECRETBOX_MASTER_KEY"
	nonceSizeGCM      = 12  // 96 bits
	requiredKeyLength = 32  // AES-256
	sep               = "|" // nonce|ciphertext (ambos en base64)
	hkdfInfo          = "hellomail/secretbox/v1"
)

var (
	ErrEmptyKey     = errors.New("secretbox: empty master key")
	ErrInvalidInput = errors.New("secretbox: formato inválido, esperado base64(nonce)|base64(ciphertext)")
)

// Box sella/abre con una clave fija. Es seguro para uso concurrente.
type Box struct {
	aead cipher.AEAD
	rand io.Reader
}

// New construye un Box a partir de la clave maestra.
// Acepta base64 (std o raw) o hex de 32 bytes; cualquier otro valor se
// trata como passphrase y se deriva con HKDF-SHA256.
func New(key string) (*Box, error) {
	kb, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(kb)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Box{aead: aead, rand: rand.Reader}, nil
}

func parseKey(key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrEmptyKey
	}
	if b, err := base64.StdEncoding.DecodeString(key); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(key); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if len(key) == 2*requiredKeyLength {
		if h, err := hex.DecodeString(key); err == nil {
			return h, nil
		}
	}

	out := make([]byte, requiredKeyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(key), nil, []byte(hkdfInfo)), out); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return out, nil
}

// Seal cifra plain y devuelve base64(nonce)|base64(ciphertext).
func (b *Box) Seal(plain string) (string, error) {
	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(b.rand, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}
	ct := b.aead.Seal(nil, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Open revierte Seal. Falla si el texto fue alterado.
func (b *Box) Open(sealed string) (string, error) {
	parts := strings.Split(sealed, sep)
	if len(parts) != 2 {
		return "", ErrInvalidInput
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(nonce) != nonceSizeGCM {
		return "", fmt.Errorf("nonce inválido: esperado %d bytes, obtuvo %d", nonceSizeGCM, len(nonce))
	}
	pt, err := b.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("gcm auth/decrypt: %w", err)
	}
	return string(pt), nil
}
