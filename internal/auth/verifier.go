package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks Supabase-issued access tokens locally using the project's
// JWT secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier returns a verifier for HS256 tokens signed with secret.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &Verifier{secret: []byte(secret), now: time.Now}, nil
}

// Verify validates token and returns the user it was issued to. The token
// must be HS256, unexpired and carry a subject.
func (v *Verifier) Verify(token string) (*User, error) {
	claims, err := v.Claims(token)
	if err != nil {
		return nil, err
	}
	return &User{
		ID:    getStringClaim(claims, "sub"),
		Email: getStringClaim(claims, "email"),
		Role:  getStringClaim(claims, "role"),
	}, nil
}

// Claims validates token like Verify and returns its full claim set.
func (v *Verifier) Claims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("jwt parse: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("jwt invalid")
	}

	if getStringClaim(claims, "sub") == "" {
		return nil, fmt.Errorf("jwt has no subject")
	}
	return claims, nil
}

func getStringClaim(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}
