package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

var (
	ErrBadSignature   = errors.New("webhook signature mismatch")
	ErrStaleSignature = errors.New("webhook signature timestamp outside tolerance")
)

// SignHMAC returns lowercase hex HMAC-SHA256 over "<unix ts>.<body>".
func SignHMAC(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC is the receiver side of SignHMAC. tolerance <= 0 skips the
// timestamp age check.
func VerifyHMAC(secret, tsHeader string, body []byte, provided string, now time.Time, tolerance time.Duration) error {
	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age < -tolerance || age > tolerance {
			return ErrStaleSignature
		}
	}
	want, err := hex.DecodeString(provided)
	if err != nil {
		return ErrBadSignature
	}
	got, _ := hex.DecodeString(SignHMAC(secret, ts, body))
	if !hmac.Equal(want, got) {
		return ErrBadSignature
	}
	return nil
}
