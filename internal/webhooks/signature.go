// Package webhooks receives provider callbacks: voice call completion events
// and inbound chat messages.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// signatureTolerance bounds how old a signed timestamp may be; replays past
// this window are rejected even with a valid signature.
const signatureTolerance = 300 * time.Second

var (
	errSignatureFormat  = errors.New("malformed signature header")
	errSignatureExpired = errors.New("signature timestamp outside tolerance")
	errSignatureInvalid = errors.New("signature mismatch")
)

// ValidateSignature checks a "t={unix},v0={hex hmac}" header against the raw
// request body. The signed message is "{timestamp}.{body}" with an HMAC-SHA256
// over it; comparison is constant time.
func ValidateSignature(secret, header string, body []byte, now time.Time) error {
	var timestamp, signature string
	for _, part := range strings.Split(header, ",") {
		switch {
		case strings.HasPrefix(part, "t="):
			timestamp = strings.TrimPrefix(part, "t=")
		case strings.HasPrefix(part, "v0="):
			signature = strings.TrimPrefix(part, "v0=")
		}
	}
	if timestamp == "" || signature == "" {
		return errSignatureFormat
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return errSignatureFormat
	}
	age := now.Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return errSignatureExpired
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.%s", timestamp, body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return errSignatureInvalid
	}
	return nil
}

// SignPayload produces the header value ValidateSignature accepts. Used by
// tests and the provider simulator.
func SignPayload(secret string, body []byte, now time.Time) string {
	timestamp := strconv.FormatInt(now.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.%s", timestamp, body)
	return fmt.Sprintf("t=%s,v0=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}
