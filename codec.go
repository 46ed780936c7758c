package claimsx

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fernet/fernet-go"
)

// KeySource supplies the symmetric claims key. Implementations live in the
// secrets package; the key is requested for every codec call and not retained.
type KeySource interface {
	EncryptionKey(ctx context.Context) (string, error)
}

// StaticKey is a KeySource returning a fixed key, used in tests and the CLI.
type StaticKey string

// EncryptionKey implements KeySource.
func (k StaticKey) EncryptionKey(context.Context) (string, error) {
	return string(k), nil
}

// Encrypt seals plaintext as a Fernet token under key.
func Encrypt(key string, plaintext []byte) (string, error) {
	k, err := decodeKey(key)
	if err != nil {
		return "", err
	}
	tok, err := fernet.EncryptAndSign(plaintext, k)
	if err != nil {
		return "", newError(ErrCodeInternal, err)
	}
	return string(tok), nil
}

// Decrypt opens a Fernet token produced under key. A maxAge of zero or less
// disables the staleness check.
func Decrypt(key, token string, maxAge time.Duration) ([]byte, error) {
	k, err := decodeKey(key)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(token) == "" {
		return nil, newError(ErrCodeDecryption, errors.New("ciphertext is empty"))
	}
	ttl := maxAge
	if ttl <= 0 {
		ttl = -1
	}
	msg := fernet.VerifyAndDecrypt([]byte(token), ttl, []*fernet.Key{k})
	if msg == nil {
		return nil, newError(ErrCodeDecryption, errors.New("token is malformed, tampered, stale or sealed under another key"))
	}
	return msg, nil
}

func decodeKey(key string) (*fernet.Key, error) {
	if strings.TrimSpace(key) == "" {
		return nil, newError(ErrCodeConfiguration, errors.New("encryption key is empty"))
	}
	k, err := fernet.DecodeKey(key)
	if err != nil {
		// The decode error never includes key material.
		return nil, newError(ErrCodeConfiguration, err)
	}
	return k, nil
}

// Codec encrypts and decrypts claims documents with a key resolved per call.
type Codec struct {
	keys   KeySource
	maxAge time.Duration
}

// CodecOption customizes a Codec.
type CodecOption func(*Codec)

// WithMaxAge rejects tokens older than d on Decrypt.
func WithMaxAge(d time.Duration) CodecOption {
	return func(c *Codec) {
		c.maxAge = d
	}
}

// NewCodec builds a Codec around keys.
func NewCodec(keys KeySource, opts ...CodecOption) *Codec {
	c := &Codec{keys: keys}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encrypt seals plaintext with the current key.
func (c *Codec) Encrypt(ctx context.Context, plaintext []byte) (string, error) {
	key, err := c.key(ctx)
	if err != nil {
		return "", err
	}
	return Encrypt(key, plaintext)
}

// Decrypt opens token with the current key.
func (c *Codec) Decrypt(ctx context.Context, token string) ([]byte, error) {
	key, err := c.key(ctx)
	if err != nil {
		return nil, err
	}
	return Decrypt(key, token, c.maxAge)
}

// EncryptDocument serializes and seals a claims document.
func (c *Codec) EncryptDocument(ctx context.Context, doc ClaimsDocument) (string, error) {
	raw, err := doc.JSON()
	if err != nil {
		return "", newError(ErrCodeInternal, err)
	}
	return c.Encrypt(ctx, []byte(raw))
}

// DecryptDocument opens and deserializes a claims document. A payload that
// decrypts but does not decode is reported as a decryption failure.
func (c *Codec) DecryptDocument(ctx context.Context, token string) (ClaimsDocument, error) {
	raw, err := c.Decrypt(ctx, token)
	if err != nil {
		return ClaimsDocument{}, err
	}
	doc, err := ParseClaimsDocument(raw)
	if err != nil {
		return ClaimsDocument{}, newError(ErrCodeDecryption, err)
	}
	return doc, nil
}

func (c *Codec) key(ctx context.Context) (string, error) {
	if c == nil || c.keys == nil {
		return "", newError(ErrCodeConfiguration, errors.New("no key source configured"))
	}
	key, err := c.keys.EncryptionKey(ctx)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return "", err
		}
		return "", newError(ErrCodeSecretUnavailable, err)
	}
	return key, nil
}
