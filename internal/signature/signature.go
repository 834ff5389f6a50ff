// Package signature checks payment gateway checkout callbacks.
//
// The gateway signs "<order_id>|<payment_id>" with HMAC-SHA256 keyed by the
// merchant secret and sends the hex digest back through the browser.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	ErrMissingInput  = errors.New("order id, payment id and signature are required")
	ErrMissingSecret = errors.New("signing secret is not configured")
)

// Sign returns the hex HMAC-SHA256 of orderID|paymentID keyed by secret.
func Sign(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the digest and compares it to signature in constant time.
// A mismatch is reported as false with a nil error.
func Verify(orderID, paymentID, signature, secret string) (bool, error) {
	if secret == "" {
		return false, ErrMissingSecret
	}
	if orderID == "" || paymentID == "" || signature == "" {
		return false, ErrMissingInput
	}
	expected := Sign(orderID, paymentID, secret)
	return hmac.Equal([]byte(expected), []byte(signature)), nil
}

// Verifier binds the merchant secret so callers do not pass it around.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Configured reports whether a secret is set. Without one every Verify call
// fails with ErrMissingSecret.
func (v *Verifier) Configured() bool {
	return v.secret != ""
}

func (v *Verifier) Verify(orderID, paymentID, signature string) (bool, error) {
	return Verify(orderID, paymentID, signature, v.secret)
}
