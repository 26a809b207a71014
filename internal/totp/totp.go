// Package totp implements RFC 6238 one-time codes and single-use backup
// codes for two-factor authentication.
package totp

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	secretBytes = 20 // 160 bits
	digits      = otp.DigitsSix
	period      = 30
	skew        = 1
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Engine generates and validates time-based one-time codes.
type Engine struct {
	issuer string
	now    func() time.Time
}

// NewEngine creates an Engine labelling provisioning URIs with issuer.
func NewEngine(issuer string) *Engine {
	return &Engine{issuer: issuer, now: time.Now}
}

// GenerateSecretKey returns a random Base32 secret.
func (e *Engine) GenerateSecretKey() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return secretEncoding.EncodeToString(b), nil
}

// QRCodeURI returns the otpauth:// provisioning URI for an authenticator app.
func (e *Engine) QRCodeURI(email, secret string) string {
	label := percentEncode(e.issuer) + ":" + percentEncode(email)
	return fmt.Sprintf("otpauth://totp/%s?secret=%s&issuer=%s&algorithm=SHA1&digits=6&period=%d",
		label, percentEncode(secret), percentEncode(e.issuer), period)
}

// percentEncode escapes everything but unreserved characters. Spaces become
// %20, never '+', since authenticator apps differ on form decoding.
func percentEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// ValidateCode reports whether code is valid for secret in the current
// 30-second step or one step either side. Malformed input is simply invalid.
func (e *Engine) ValidateCode(secret, code string) bool {
	_, ok := e.MatchCode(secret, code)
	return ok
}

// MatchCode is ValidateCode that also returns the matched time step, which
// callers use to reject a second use of the same code.
func (e *Engine) MatchCode(secret, code string) (int64, bool) {
	secret = strings.TrimSpace(secret)
	code = strings.TrimSpace(code)
	if secret == "" || !isSixDigits(code) {
		return 0, false
	}

	now := e.now()
	current := now.Unix() / period
	opts := totp.ValidateOpts{Period: period, Skew: 0, Digits: digits, Algorithm: otp.AlgorithmSHA1}

	for offset := -skew; offset <= skew; offset++ {
		at := now.Add(time.Duration(offset*period) * time.Second)
		expected, err := totp.GenerateCodeCustom(secret, at, opts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return current + int64(offset), true
		}
	}
	return 0, false
}

// GenerateCode returns the code for secret at t.
func (e *Engine) GenerateCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, totp.ValidateOpts{
		Period:    period,
		Digits:    digits,
		Algorithm: otp.AlgorithmSHA1,
	})
}

func isSixDigits(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
