package auth

import (
	stderrors "errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/larder/larder-backend/pkg/config"
	"github.com/larder/larder-backend/pkg/errors"
)

// Claims are the access-token claims issued by the identity provider
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
}

// Identity returns the user id, falling back to the registered subject
func (c *Claims) Identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}

// Verifier validates HS256 bearer tokens. It never issues tokens.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier returns nil when no secret is configured, which disables
// authentication.
func NewVerifier(cfg *config.JWTConfig) *Verifier {
	if cfg == nil || cfg.Secret == "" {
		return nil
	}
	return &Verifier{secret: []byte(cfg.Secret), issuer: cfg.Issuer}
}

// Enabled reports whether tokens are checked
func (v *Verifier) Enabled() bool {
	return v != nil
}

// Verify parses tokenString and returns its claims
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.TokenExpired()
		}
		return nil, errors.TokenInvalid()
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Identity() == "" {
		return nil, errors.TokenInvalid()
	}

	return claims, nil
}
