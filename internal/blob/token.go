package blob

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UploadClaims are carried by a signed upload target. A token authorizes one
// PUT of at most MaxBytes to Pathname.
type UploadClaims struct {
	Pathname    string `json:"pathname"`
	ContentType string `json:"contentType"`
	MaxBytes    int64  `json:"maxBytes"`
	jwt.RegisteredClaims
}

type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenSigner(secret string, ttl time.Duration) *TokenSigner {
	return &TokenSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (s *TokenSigner) WithClock(now func() time.Time) *TokenSigner {
	s.now = now
	return s
}

func (s *TokenSigner) Sign(pathname, contentType string, maxBytes int64) (string, time.Time, error) {
	issued := s.now()
	expiresAt := issued.Add(s.ttl)
	claims := UploadClaims{
		Pathname:    pathname,
		ContentType: contentType,
		MaxBytes:    maxBytes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   pathname,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign upload token: %w", err)
	}
	return token, expiresAt, nil
}

var ErrTokenExpired = errors.New("upload token has expired")

func (s *TokenSigner) Verify(tokenString string) (*UploadClaims, error) {
	claims := &UploadClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("invalid upload token: %w", err)
	}
	if !token.Valid || claims.Pathname == "" {
		return nil, errors.New("invalid upload token")
	}
	return claims, nil
}
