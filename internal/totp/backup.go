package totp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// DefaultBackupCodeCount is the number of codes issued per batch.
const DefaultBackupCodeCount = 10

const backupAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateBackupCodes returns count distinct codes formatted XXXX-XXXX.
func GenerateBackupCodes(count int) ([]string, error) {
	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)

	for len(codes) < count {
		code, err := randomBackupCode()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

func randomBackupCode() (string, error) {
	var b strings.Builder
	b.Grow(9)
	max := big.NewInt(int64(len(backupAlphabet)))
	for i := 0; i < 8; i++ {
		if i == 4 {
			b.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random index: %w", err)
		}
		b.WriteByte(backupAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeBackupCode strips dashes and whitespace and uppercases code.
func NormalizeBackupCode(code string) string {
	code = strings.ReplaceAll(code, "-", "")
	return strings.ToUpper(strings.Join(strings.Fields(code), ""))
}

// LooksLikeBackupCode is the fallback used when a caller does not say which
// kind of code it submitted: a dash and exactly nine characters.
func LooksLikeBackupCode(code string) bool {
	return strings.Contains(code, "-") && len(code) == 9
}

func hashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(NormalizeBackupCode(code)))
	return hex.EncodeToString(sum[:])
}

// HashBackupCodes hashes each normalized code and serializes the hashes.
func HashBackupCodes(codes []string) (string, error) {
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = hashBackupCode(c)
	}
	out, err := json.Marshal(hashes)
	if err != nil {
		return "", fmt.Errorf("marshal backup code hashes: %w", err)
	}
	return string(out), nil
}

// ValidateBackupCode checks input against the serialized hashes. On a match
// it returns a new serialization without that hash. Otherwise it returns
// false and stored unchanged.
func ValidateBackupCode(input, stored string) (bool, string) {
	if strings.TrimSpace(input) == "" || stored == "" {
		return false, stored
	}

	var hashes []string
	if err := json.Unmarshal([]byte(stored), &hashes); err != nil {
		return false, stored
	}

	candidate := []byte(hashBackupCode(input))
	match := -1
	for i, h := range hashes {
		if subtle.ConstantTimeCompare(candidate, []byte(h)) == 1 {
			match = i
		}
	}
	if match < 0 {
		return false, stored
	}

	remaining := make([]string, 0, len(hashes)-1)
	remaining = append(remaining, hashes[:match]...)
	remaining = append(remaining, hashes[match+1:]...)
	out, err := json.Marshal(remaining)
	if err != nil {
		return false, stored
	}
	return true, string(out)
}

// CountBackupCodes returns how many unused codes stored holds.
func CountBackupCodes(stored string) int {
	if stored == "" {
		return 0
	}
	var hashes []string
	if err := json.Unmarshal([]byte(stored), &hashes); err != nil {
		return 0
	}
	return len(hashes)
}
