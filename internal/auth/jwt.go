package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TokenTTL is how long a session token stays valid.
	TokenTTL = 24 * time.Hour
	issuer   = "trading-challenges"
)

var (
	ErrSecretNotSet = errors.New("jwt secret not initialized")
	ErrInvalidToken = errors.New("invalid token")
)

var signingKey []byte

// InitJWT sets the HMAC key used to sign and verify session tokens.
func InitJWT(secret string) {
	signingKey = []byte(secret)
}

// Claims carry the user id and role so handlers can authorize without a
// database round trip. A role change takes effect on the next login.
type Claims struct {
	UserID uint   `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func GenerateToken(userID uint, role string) (string, error) {
	return issueAt(userID, role, time.Now())
}

func issueAt(userID uint, role string, now time.Time) (string, error) {
	if len(signingKey) == 0 {
		return "", ErrSecretNotSet
	}
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken accepts only HS256 tokens from this issuer that carry an
// expiry. Every rejection wraps ErrInvalidToken.
func ValidateToken(raw string) (*Claims, error) {
	if len(signingKey) == 0 {
		return nil, ErrSecretNotSet
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == 0 {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return &claims, nil
}
