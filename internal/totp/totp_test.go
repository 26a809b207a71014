package totp

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func engineAt(t time.Time) *Engine {
	e := NewEngine("Hickory")
	e.now = func() time.Time { return t }
	return e
}

func TestGenerateSecretKey(t *testing.T) {
	e := NewEngine("Hickory")

	secret, err := e.GenerateSecretKey()
	require.NoError(t, err)
	assert.Len(t, secret, 32)
	assert.GreaterOrEqual(t, len(secret), 16)
	assert.NotContains(t, secret, "=")

	raw, err := secretEncoding.DecodeString(secret)
	require.NoError(t, err)
	assert.Len(t, raw, secretBytes)

	other, err := e.GenerateSecretKey()
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)
}

func TestQRCodeURI(t *testing.T) {
	e := NewEngine("Hickory")
	uri := e.QRCodeURI("ada+desk@example.com", "JBSWY3DPEHPK3PXP")

	assert.Equal(t,
		"otpauth://totp/Hickory:ada%2Bdesk%40example.com?secret=JBSWY3DPEHPK3PXP&issuer=Hickory&algorithm=SHA1&digits=6&period=30",
		uri)

	parsed, err := url.Parse(uri)
	require.NoError(t, err)
	assert.Equal(t, "otpauth", parsed.Scheme)
	assert.Equal(t, "totp", parsed.Host)
	assert.Equal(t, "Hickory", parsed.Query().Get("issuer"))
	assert.Equal(t, "/Hickory:ada+desk@example.com", parsed.Path)
}

func TestQRCodeURI_EscapesIssuerAndEmail(t *testing.T) {
	e := NewEngine("Hickory Desk")
	uri := e.QRCodeURI("a b@example.com", "JBSWY3DPEHPK3PXP")

	assert.True(t, strings.HasPrefix(uri, "otpauth://totp/Hickory%20Desk:a%20b%40example.com?"))
	assert.Contains(t, uri, "issuer=Hickory%20Desk")
	assert.NotContains(t, uri, "+")
}

func TestValidateCode_CurrentAndAdjacentWindows(t *testing.T) {
	now := time.Date(2026, 4, 10, 8, 30, 15, 0, time.UTC)
	e := engineAt(now)
	secret, err := e.GenerateSecretKey()
	require.NoError(t, err)

	for _, offset := range []int{-1, 0, 1} {
		code, err := e.GenerateCode(secret, now.Add(time.Duration(offset*30)*time.Second))
		require.NoError(t, err)
		assert.True(t, e.ValidateCode(secret, code), "offset %d", offset)
	}
}

func TestValidateCode_ThreeWindowsAwayFails(t *testing.T) {
	now := time.Date(2026, 4, 10, 8, 30, 15, 0, time.UTC)
	e := engineAt(now)
	secret := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

	current, err := e.GenerateCode(secret, now)
	require.NoError(t, err)

	for _, offset := range []int{-3, 3} {
		code, err := e.GenerateCode(secret, now.Add(time.Duration(offset*30)*time.Second))
		require.NoError(t, err)
		if code == current {
			continue
		}
		assert.False(t, e.ValidateCode(secret, code), "offset %d", offset)
	}
}

func TestMatchCode_ReturnsStep(t *testing.T) {
	now := time.Date(2026, 4, 10, 8, 30, 15, 0, time.UTC)
	e := engineAt(now)
	secret := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

	prev, err := e.GenerateCode(secret, now.Add(-30*time.Second))
	require.NoError(t, err)

	step, ok := e.MatchCode(secret, prev)
	require.True(t, ok)
	assert.Equal(t, now.Unix()/30-1, step)
}

func TestValidateCode_MalformedInputIsFalse(t *testing.T) {
	e := NewEngine("Hickory")
	secret := "JBSWY3DPEHPK3PXP"

	assert.False(t, e.ValidateCode("", "123456"))
	assert.False(t, e.ValidateCode(secret, ""))
	assert.False(t, e.ValidateCode(secret, "12345"))
	assert.False(t, e.ValidateCode(secret, "abcdef"))
	assert.False(t, e.ValidateCode("!!!not-base32!!!", "123456"))
}

func TestIsSixDigits(t *testing.T) {
	assert.True(t, isSixDigits("000000"))
	assert.False(t, isSixDigits("0000000"))
	assert.False(t, isSixDigits("00000a"))
}
