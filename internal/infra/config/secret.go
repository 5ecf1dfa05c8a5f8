package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"concierge-ai/internal/domain"
)

// ConfigKeyEnv holds the passphrase that unlocks enc: values.
const ConfigKeyEnv = "CONCIERGE_CONFIG_KEY"

// SecretPrefix marks an encrypted config value.
const SecretPrefix = "enc:"

// Sealed value layout, base64url without padding: version | salt | nonce | ciphertext.
const (
	sealVersion byte = 1
	saltSize         = 16
)

// Argon2id parameters for the key derivation.
const (
	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 4
	keySize    = 32
)

// EncryptValue seals plaintext with AES-256-GCM under a key derived from
// passphrase. The result excludes SecretPrefix.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	aead, err := aeadFor(passphrase, salt)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	blob := make([]byte, 0, 1+saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	blob = append(blob, sealVersion)
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = aead.Seal(blob, nonce, []byte(plaintext), []byte{sealVersion})
	return base64.RawURLEncoding.EncodeToString(blob), nil
}

// DecryptValue opens a value produced by EncryptValue. Every failure wraps
// domain.ErrDecryption.
func DecryptValue(sealed, passphrase string) (string, error) {
	plain, err := open(sealed, passphrase)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrDecryption, err)
	}
	return plain, nil
}

func open(sealed, passphrase string) (string, error) {
	blob, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(blob) < 1+saltSize || blob[0] != sealVersion {
		return "", errors.New("unrecognised sealed value")
	}
	salt, rest := blob[1:1+saltSize], blob[1+saltSize:]

	aead, err := aeadFor(passphrase, salt)
	if err != nil {
		return "", err
	}
	if len(rest) < aead.NonceSize() {
		return "", errors.New("sealed value truncated")
	}
	nonce, ciphertext := rest[:aead.NonceSize()], rest[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte{sealVersion})
	if err != nil {
		return "", errors.New("wrong passphrase or corrupted value")
	}
	return string(plain), nil
}

func aeadFor(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(passphrase), salt, kdfTime, kdfMemory, kdfThreads, keySize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// secretRef names one secret-bearing field for error messages.
type secretRef struct {
	field *string
	name  string
}

func (c *Config) secrets() []secretRef {
	refs := []secretRef{
		{&c.Oracle.APIKey, "oracle.api_key"},
		{&c.Movies.APIKey, "movies.api_key"},
	}
	for i := range c.LLM.Providers {
		p := &c.LLM.Providers[i]
		refs = append(refs, secretRef{&p.APIKey, "llm.providers[" + p.Name + "].api_key"})
	}
	for i := range c.Gateway.Tokens {
		tok := &c.Gateway.Tokens[i]
		refs = append(refs, secretRef{&tok.Token, "gateway.tokens[" + tok.Name + "].token"})
	}
	return refs
}

// decryptSecrets replaces every enc: value in cfg with its plaintext.
func decryptSecrets(cfg *Config, passphrase string) error {
	for _, ref := range cfg.secrets() {
		sealed, ok := strings.CutPrefix(*ref.field, SecretPrefix)
		if !ok {
			continue
		}
		plain, err := DecryptValue(sealed, passphrase)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		*ref.field = plain
	}
	return nil
}
