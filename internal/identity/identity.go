// Package identity verifies bearer tokens issued by the external identity
// provider and exposes the claims the rest of the service relies on.
package identity

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/safar/storefront/internal/config"
	"github.com/safar/storefront/internal/models"
)

var (
	// ErrInvalidToken is returned when the token is malformed, badly signed,
	// or issued for another audience.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
)

// Claims is the verified subset of a token.
type Claims struct {
	Subject string
	Email   string
	Roles   []string
}

// HasRole reports whether the claims grant role. Role names compare
// case-insensitively.
func HasRole(c *Claims, role models.Role) bool {
	if c == nil {
		return false
	}
	for _, r := range c.Roles {
		if strings.EqualFold(r, string(role)) {
			return true
		}
	}
	return false
}

// Role collapses the claimed roles to the local role model.
func (c *Claims) Role() models.Role {
	if HasRole(c, models.RoleAdmin) {
		return models.RoleAdmin
	}
	return models.RoleUser
}

// Verifier validates tokens against the configured issuer, audience and
// signing key.
type Verifier struct {
	parser     *jwt.Parser
	hmacSecret []byte
	rsaKey     *rsa.PublicKey
	rolesClaim string
	emailClaim string
}

func NewVerifier(cfg config.AuthConfig) (*Verifier, error) {
	v := &Verifier{
		rolesClaim: cfg.RolesClaim,
		emailClaim: cfg.EmailClaim,
	}

	var methods []string
	if cfg.HMACSecret != "" {
		v.hmacSecret = []byte(cfg.HMACSecret)
		methods = append(methods, "HS256", "HS384", "HS512")
	}
	if cfg.RSAPublicKeyPEM != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.RSAPublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parse rsa public key: %w", err)
		}
		v.rsaKey = key
		methods = append(methods, "RS256", "RS384", "RS512")
	}
	if len(methods) == 0 {
		return nil, errors.New("no token verification key configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	v.parser = jwt.NewParser(opts...)

	return v, nil
}

func (v *Verifier) keyFunc(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if v.hmacSecret != nil {
			return v.hmacSecret, nil
		}
	case *jwt.SigningMethodRSA:
		if v.rsaKey != nil {
			return v.rsaKey, nil
		}
	}
	return nil, ErrInvalidToken
}

// Verify checks the token's signature and registered claims and extracts
// subject, email and roles.
func (v *Verifier) Verify(_ context.Context, tokenString string) (*Claims, error) {
	mapClaims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, mapClaims, v.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	subject, err := mapClaims.GetSubject()
	if err != nil || subject == "" {
		return nil, ErrInvalidToken
	}

	return &Claims{
		Subject: subject,
		Email:   v.email(mapClaims),
		Roles:   stringList(mapClaims[v.rolesClaim]),
	}, nil
}

func (v *Verifier) email(claims jwt.MapClaims) string {
	for _, key := range []string{v.emailClaim, "email"} {
		if key == "" {
			continue
		}
		if s, ok := claims[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func stringList(raw any) []string {
	switch val := raw.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
