package claimsx

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fernet/fernet-go"
)

func newFernetKey(t *testing.T) string {
	t.Helper()
	var k fernet.Key
	if err := k.Generate(); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return k.Encode()
}

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec(StaticKey(newFernetKey(t)))
	ctx := context.Background()

	doc := NewClaimsDocument("5f0e-uuid", []string{"moped-editor", "moped-viewer"}, 4, 1)
	token, err := codec.EncryptDocument(ctx, doc)
	if err != nil {
		t.Fatalf("EncryptDocument: %v", err)
	}
	if strings.Contains(token, "moped-editor") {
		t.Fatal("ciphertext contains plaintext role")
	}

	got, err := codec.DecryptDocument(ctx, token)
	if err != nil {
		t.Fatalf("DecryptDocument: %v", err)
	}
	want, _ := doc.JSON()
	gotJSON, _ := got.JSON()
	if gotJSON != want {
		t.Fatalf("round trip mismatch:\n got %s\nwant %s", gotJSON, want)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	token, err := Encrypt(newFernetKey(t), []byte(`{"x-hasura-user-id":"a"}`))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	_, err = Decrypt(newFernetKey(t), token, 0)
	if !IsDecryption(err) {
		t.Fatalf("expected decryption error, got %v", err)
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	key := newFernetKey(t)
	token, err := Encrypt(key, []byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	for name, bad := range map[string]string{
		"empty":     "",
		"garbage":   "not-a-fernet-token",
		"truncated": token[:len(token)-4],
	} {
		if _, err := Decrypt(key, bad, 0); !IsDecryption(err) {
			t.Fatalf("%s: expected decryption error, got %v", name, err)
		}
	}
}

func TestDecryptMaxAge(t *testing.T) {
	key := newFernetKey(t)
	token, err := Encrypt(key, []byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt(key, token, time.Hour); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}

	// Fernet timestamps have second resolution.
	time.Sleep(1100 * time.Millisecond)
	if _, err := Decrypt(key, token, time.Nanosecond); !IsDecryption(err) {
		t.Fatalf("expected stale token rejection, got %v", err)
	}
	if _, err := Decrypt(key, token, 0); err != nil {
		t.Fatalf("zero max age should disable staleness check: %v", err)
	}
}

func TestCodecKeyErrors(t *testing.T) {
	ctx := context.Background()

	if _, err := NewCodec(StaticKey("")).Encrypt(ctx, []byte("x")); CodeOf(err) != ErrCodeConfiguration {
		t.Fatalf("empty key: expected configuration error, got %v", err)
	}
	if _, err := NewCodec(StaticKey("short")).Encrypt(ctx, []byte("x")); CodeOf(err) != ErrCodeConfiguration {
		t.Fatalf("bad key: expected configuration error, got %v", err)
	}
	if _, err := NewCodec(nil).Decrypt(ctx, "x"); CodeOf(err) != ErrCodeConfiguration {
		t.Fatalf("nil source: expected configuration error, got %v", err)
	}

	outage := errors.New("network down")
	_, err := NewCodec(keyFunc(func(context.Context) (string, error) { return "", outage })).Encrypt(ctx, []byte("x"))
	if CodeOf(err) != ErrCodeSecretUnavailable || !errors.Is(err, outage) {
		t.Fatalf("expected wrapped secret_unavailable, got %v", err)
	}
}

func TestDecryptDocumentRejectsNonJSON(t *testing.T) {
	key := newFernetKey(t)
	token, err := Encrypt(key, []byte("not json"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := NewCodec(StaticKey(key)).DecryptDocument(context.Background(), token); !IsDecryption(err) {
		t.Fatalf("expected decryption error, got %v", err)
	}
}

type keyFunc func(context.Context) (string, error)

func (f keyFunc) EncryptionKey(ctx context.Context) (string, error) { return f(ctx) }
