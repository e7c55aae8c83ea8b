// Package payment verifies signed payment-provider callbacks.
package payment

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Verifier checks HMAC-SHA512 signatures over a callback payload.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Canonical serializes payload with object keys in sorted order, no
// insignificant whitespace and no HTML escaping. Numbers must have been
// decoded as json.Number to keep their original text.
func Canonical(payload map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Sign returns the hex signature of payload.
func (v *Verifier) Sign(payload map[string]any) (string, error) {
	body, err := Canonical(payload)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha512.New, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether signature matches payload. The comparison is
// constant time.
func (v *Verifier) Verify(payload map[string]any, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	want, err := v.Sign(payload)
	if err != nil {
		return false
	}
	wantBytes, _ := hex.DecodeString(want)
	return hmac.Equal(got, wantBytes)
}
