package signing

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const reportTokenInfo = "enclavekeeper report token v1"

// DeriveKey expands secret into a 32-byte key bound to info, so the JWT key
// is never the raw HMAC key.
func DeriveKey(secret, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// ReportClaims is the payload of a report token.
type ReportClaims struct {
	jwt.RegisteredClaims
	ReportID       string `json:"rid"`
	Signature      string `json:"sig"`
	AuditLogDigest string `json:"dig"`
}

// TokenIssuer mints HS256 tokens that let a third party check a report's
// id, signature and digest without fetching the report body.
type TokenIssuer struct {
	key      []byte
	issuer   string
	validity time.Duration
	now      func() time.Time
}

func NewTokenIssuer(secret, issuer string, validity time.Duration) (*TokenIssuer, error) {
	key, err := DeriveKey(secret, reportTokenInfo)
	if err != nil {
		return nil, fmt.Errorf("derive token key: %w", err)
	}
	return &TokenIssuer{key: key, issuer: issuer, validity: validity, now: time.Now}, nil
}

func (t *TokenIssuer) Issue(reportID, signature, digest string) (string, error) {
	now := t.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ReportClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   reportID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.validity)),
		},
		ReportID:       reportID,
		Signature:      signature,
		AuditLogDigest: digest,
	})
	return token.SignedString(t.key)
}

var ErrInvalidToken = errors.New("invalid report token")

func (t *TokenIssuer) Parse(tokenString string) (*ReportClaims, error) {
	claims := &ReportClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(tok *jwt.Token) (any, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
