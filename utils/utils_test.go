package utils

import (
	"errors"
	"testing"
	"time"

	"mediaqueue/models"
)

var secret = []byte("test-secret-key-for-jwt-signing-at-least-32-bytes-long")

func TestUploadTokenRoundTrip(t *testing.T) {
	now := time.Now().Unix()
	token, err := CreateUploadToken(&models.UploadClaims{
		Issuer: "intake", Subject: "alice", IssuedAt: now, ExpiresAt: now + 60,
	}, secret)
	if err != nil {
		t.Fatalf("CreateUploadToken: %v", err)
	}

	claims, err := VerifyUploadToken(token, VerifyConfig{SecretKey: secret, ExpectedIssuer: "intake"})
	if err != nil {
		t.Fatalf("VerifyUploadToken: %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("subject = %q", claims.Subject)
	}
}

func TestUploadTokenRejections(t *testing.T) {
	now := time.Now().Unix()
	sign := func(c models.UploadClaims) string {
		tok, err := CreateUploadToken(&c, secret)
		if err != nil {
			t.Fatal(err)
		}
		return tok
	}

	tests := []struct {
		name  string
		token string
		cfg   VerifyConfig
		want  error
	}{
		{"empty", "", VerifyConfig{SecretKey: secret}, ErrInvalidToken},
		{"garbage", "not.a.jwt", VerifyConfig{SecretKey: secret}, ErrInvalidToken},
		{"expired", sign(models.UploadClaims{Subject: "a", ExpiresAt: now - 100}), VerifyConfig{SecretKey: secret}, ErrTokenExpired},
		{"future", sign(models.UploadClaims{Subject: "a", IssuedAt: now + 3600}), VerifyConfig{SecretKey: secret}, ErrTokenNotYetValid},
		{"issuer", sign(models.UploadClaims{Subject: "a", Issuer: "x"}), VerifyConfig{SecretKey: secret, ExpectedIssuer: "y"}, ErrInvalidIssuer},
		{"no subject", sign(models.UploadClaims{}), VerifyConfig{SecretKey: secret}, ErrMissingSubject},
		{"wrong key", sign(models.UploadClaims{Subject: "a"}), VerifyConfig{SecretKey: []byte("another-secret-another-secret-0000")}, ErrInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyUploadToken(tt.token, tt.cfg)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGenerateRandomHex(t *testing.T) {
	a, _ := GenerateRandomHex(8)
	b, _ := GenerateRandomHex(8)
	if len(a) != 16 || a == b {
		t.Errorf("GenerateRandomHex = %q, %q", a, b)
	}
}

func TestCheckClaimsClockSkew(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := &models.UploadClaims{Subject: "a", ExpiresAt: now.Unix() - 5}
	if err := checkClaims(c, VerifyConfig{}, now); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("err = %v, want expired", err)
	}
	if err := checkClaims(c, VerifyConfig{ClockSkew: 10 * time.Second}, now); err != nil {
		t.Errorf("skew should tolerate 5s: %v", err)
	}
}
