package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"lectern/portal/internal/model"
)

type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// NewSessionToken issues a signed session token for an identity. The server
// only verifies tokens; issuing lives here so tests and provisioning tooling
// share one implementation.
func NewSessionToken(secret, issuer, identityID string, ttl time.Duration, name, email string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Name:  name,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseSessionToken verifies a token and returns the identity it carries.
func ParseSessionToken(secret, issuer, tokenString string) (model.Identity, error) {
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		options = append(options, jwt.WithIssuer(issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, options...)
	if err != nil {
		return model.Identity{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return model.Identity{}, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return model.Identity{}, jwt.ErrTokenInvalidSubject
	}
	return model.Identity{
		ID:          claims.Subject,
		DisplayName: claims.Name,
		Email:       claims.Email,
	}, nil
}
