package utils

import (
	"errors"
	"fmt"
	"time"

	"mediaqueue/models"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var (
	ErrInvalidToken     = errors.New("invalid token format")
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token not yet valid")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrInvalidIssuer    = errors.New("invalid issuer")
	ErrMissingSubject   = errors.New("token has no subject")
)

// VerifyConfig holds verification configuration. SecretKey (HS256) takes
// precedence over PublicKey (RS256, *rsa.PublicKey) when both are set.
type VerifyConfig struct {
	SecretKey      []byte
	PublicKey      any
	ExpectedIssuer string        // optional
	ClockSkew      time.Duration // tolerance for exp and iat
}

func (c VerifyConfig) key() (any, []jose.SignatureAlgorithm, error) {
	switch {
	case c.SecretKey != nil:
		return c.SecretKey, []jose.SignatureAlgorithm{jose.HS256}, nil
	case c.PublicKey != nil:
		return c.PublicKey, []jose.SignatureAlgorithm{jose.RS256}, nil
	}
	return nil, nil, errors.New("no verification key provided")
}

// VerifyUploadToken verifies a bearer token and returns its claims. The
// subject is the owner key and must be present.
func VerifyUploadToken(tokenString string, config VerifyConfig) (*models.UploadClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	key, algs, err := config.key()
	if err != nil {
		return nil, err
	}

	tok, err := jwt.ParseSigned(tokenString, algs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims := &models.UploadClaims{}
	if err := tok.Claims(key, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if err := checkClaims(claims, config, time.Now()); err != nil {
		return nil, err
	}
	return claims, nil
}

func checkClaims(c *models.UploadClaims, config VerifyConfig, now time.Time) error {
	skew := config.ClockSkew
	if c.ExpiresAt > 0 && now.Add(-skew).After(time.Unix(c.ExpiresAt, 0)) {
		return ErrTokenExpired
	}
	if c.IssuedAt > 0 && time.Unix(c.IssuedAt, 0).After(now.Add(skew)) {
		return ErrTokenNotYetValid
	}
	if config.ExpectedIssuer != "" && c.Issuer != config.ExpectedIssuer {
		return fmt.Errorf("%w: expected %q, got %q", ErrInvalidIssuer, config.ExpectedIssuer, c.Issuer)
	}
	if c.Subject == "" {
		return ErrMissingSubject
	}
	return nil
}

// CreateUploadToken signs claims with an HMAC secret.
func CreateUploadToken(claims *models.UploadClaims, secret []byte) (string, error) {
	if claims == nil {
		return "", errors.New("claims cannot be nil")
	}
	if len(secret) == 0 {
		return "", errors.New("signing secret cannot be empty")
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: secret}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}
	return jwt.Signed(signer).Claims(claims).Serialize()
}
