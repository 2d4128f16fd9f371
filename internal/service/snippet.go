package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
)

// Redirect form fields carrying the encoded checkout snippet and its signature
const (
	SnippetField          = "klarna_snippet"
	SnippetSignatureField = "klarna_snippet_sig"
)

// ErrSnippetSignature is returned for a snippet that was not issued by this service
var ErrSnippetSignature = errors.New("invalid checkout snippet signature")

// SnippetSigner signs the encoded snippet handed to the buyer's browser so the
// snippet page only embeds markup this service received from the provider.
type SnippetSigner struct {
	key []byte
}

// NewSnippetSigner creates a signer keyed with the merchant's shared secret
func NewSnippetSigner(secret string) *SnippetSigner {
	return &SnippetSigner{key: []byte(secret)}
}

// Sign returns the hex HMAC-SHA256 of the encoded snippet, bound to orderID
func (s *SnippetSigner) Sign(orderID int64, encoded string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(strconv.FormatInt(orderID, 10)))
	mac.Write([]byte{0})
	mac.Write([]byte(encoded))
	return hex.EncodeToString(mac.Sum(nil))
}

// Decode verifies signature and reverses the encoding applied to the redirect
// form field. An empty snippet is an error.
func (s *SnippetSigner) Decode(orderID int64, encoded, signature string) (string, error) {
	if len(s.key) == 0 {
		return "", errors.New("snippet signing key is not configured")
	}
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return "", ErrSnippetSignature
	}
	want, _ := hex.DecodeString(s.Sign(orderID, encoded))
	if !hmac.Equal(sig, want) {
		return "", ErrSnippetSignature
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid snippet encoding: %w", err)
	}
	if len(raw) == 0 {
		return "", errors.New("empty checkout snippet")
	}
	return string(raw), nil
}
