package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/gosimple/slug"
)

var adjectives = []string{
	"Bullish", "Bearish", "Swift", "Steady", "Patient",
	"Sharp", "Bold", "Calm", "Golden", "Silver",
	"Iron", "Quick", "Disciplined", "Lucky", "Prime",
}

var nouns = []string{
	"Trader", "Scalper", "Hedger", "Pip", "Candle",
	"Falcon", "Bull", "Bear", "Wolf", "Hawk",
	"Lion", "Shark", "Fox", "Tiger", "Eagle",
}

// maxUsernameBase leaves room for a "_XXXX" suffix within the 50 character column.
const maxUsernameBase = 40

func randomIndex(n int) (int64, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}

// GenerateNickname creates a random nickname in the format "Adjective_Noun_XXXX"
func GenerateNickname() (string, error) {
	adj, err := randomIndex(len(adjectives))
	if err != nil {
		return "", fmt.Errorf("failed to generate random adjective: %w", err)
	}
	noun, err := randomIndex(len(nouns))
	if err != nil {
		return "", fmt.Errorf("failed to generate random noun: %w", err)
	}
	suffix, err := randomIndex(10000)
	if err != nil {
		return "", fmt.Errorf("failed to generate random suffix: %w", err)
	}
	return fmt.Sprintf("%s_%s_%04d", adjectives[adj], nouns[noun], suffix), nil
}

// UsernameBase turns the first non-empty candidate (a full name, an email
// local part) into a lowercase username stem. It returns "" when nothing
// usable remains.
func UsernameBase(candidates ...string) string {
	for _, c := range candidates {
		if at := strings.IndexByte(c, '@'); at >= 0 {
			c = c[:at]
		}
		base := strings.ReplaceAll(slug.Make(c), "-", "_")
		if len(base) > maxUsernameBase {
			base = strings.TrimRight(base[:maxUsernameBase], "_")
		}
		if base != "" {
			return base
		}
	}
	return ""
}

// WithSuffix appends a random four digit suffix to base.
func WithSuffix(base string) (string, error) {
	suffix, err := randomIndex(10000)
	if err != nil {
		return "", fmt.Errorf("failed to generate random suffix: %w", err)
	}
	return fmt.Sprintf("%s_%04d", base, suffix), nil
}
