package jwt

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoKeys       = errors.New("no verification keys")
)

// Validator checks bearer tokens against a set of PEM certificates. The
// token's "kid" header selects the certificate by subject common name.
type Validator struct {
	keys     []*x509.Certificate
	iss, aud string
}

func NewValidator(pubPemPaths []string, issuer, audience string) (*Validator, error) {
	var certs []*x509.Certificate
	for _, p := range pubPemPaths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		block, _ := pem.Decode(b)
		if block == nil {
			return nil, fmt.Errorf("%s: invalid pem", p)
		}
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		certs = append(certs, c)
	}
	return &Validator{keys: certs, iss: issuer, aud: audience}, nil
}

// Enabled reports whether any key is configured.
func (v *Validator) Enabled() bool { return v != nil && len(v.keys) > 0 }

func (v *Validator) Verify(tokenStr string) (jwt.MapClaims, error) {
	if !v.Enabled() {
		return nil, ErrNoKeys
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"})}
	if v.iss != "" {
		opts = append(opts, jwt.WithIssuer(v.iss))
	}
	if v.aud != "" {
		opts = append(opts, jwt.WithAudience(v.aud))
	}
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		for _, c := range v.keys {
			if c.Subject.CommonName == kid {
				return c.PublicKey, nil
			}
		}
		return v.keys[0].PublicKey, nil
	}, opts...)
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, _ := tok.Claims.(jwt.MapClaims)
	return claims, nil
}
