package security

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService verifies the bearer tokens issued for identity-provider
// sessions. The `sub` claim carries the provider's token identifier, which
// is the foreign key into the users table.
type TokenService struct {
	secret    []byte
	expiresIn time.Duration
}

func NewTokenService(secret string, expiresIn time.Duration) *TokenService {
	return &TokenService{
		secret:    []byte(secret),
		expiresIn: expiresIn,
	}
}

// CreateForSubject creates a token for the given token identifier using the
// default TTL. Used by tests and local development; production tokens come
// from the identity provider.
func (t *TokenService) CreateForSubject(subject string) (string, error) {
	return t.CreateWithTTL(subject, t.expiresIn)
}

// CreateWithTTL creates a token with an explicit TTL.
func (t *TokenService) CreateWithTTL(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Subject validates a token and returns the token identifier it carries.
func (t *TokenService) Subject(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", jwt.ErrSignatureInvalid
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", jwt.ErrTokenMalformed
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", jwt.ErrTokenInvalidSubject
	}
	return sub, nil
}
