package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var ErrMissingSecret = errors.New("payment: gateway key secret is not configured")

// Signer checks payment callbacks. The signature is the hex HMAC-SHA256 of
// "order_id|payment_id" keyed with the gateway secret.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Signer{secret: []byte(secret)}, nil
}

func (s *Signer) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time. Signatures are matched byte for byte, so
// an upper-cased hex digest does not verify.
func (s *Signer) Verify(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	expected := s.Sign(orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
