// Package token は署名付き・期限付きアイデンティティトークンの発行と検証を提供する。
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 検証失敗の種別を表すセンチネルエラー。
var (
	// ErrInvalidSignature は署名検証の失敗を示す。
	ErrInvalidSignature = errors.New("token signature is invalid")
	// ErrExpired はトークンの有効期限切れを示す。
	ErrExpired = errors.New("token is expired")
	// ErrMalformed はトークンの構造不正を示す。
	ErrMalformed = errors.New("token is malformed")
)

// Authority はアイデンティティトークンの発行と検証を行う。
// トークンはサーバー側に保存されない。有効性は署名と
// 有効期限の再検証のみで判定されるため、検証側は水平スケール可能。
type Authority struct {
	secret   []byte
	method   jwt.SigningMethod
	lifetime time.Duration
	now      func() time.Time
}

// New はAuthorityを生成する。
// algorithmにはHMAC系のアルゴリズム名（HS256/HS384/HS512）を指定する。
func New(secret []byte, algorithm string, lifetime time.Duration) (*Authority, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("signing secret must not be empty")
	}
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, fmt.Errorf("unsupported signing algorithm: %s", algorithm)
	}
	if !strings.HasPrefix(algorithm, "HS") {
		return nil, fmt.Errorf("signing algorithm must be HMAC based, got %s", algorithm)
	}
	if lifetime <= 0 {
		return nil, fmt.Errorf("token lifetime must be positive")
	}
	return &Authority{
		secret:   secret,
		method:   method,
		lifetime: lifetime,
		now:      time.Now,
	}, nil
}

// SetClock は現在時刻の取得関数を差し替える。テスト用。
func (a *Authority) SetClock(now func() time.Time) {
	a.now = now
}

// Lifetime は発行するトークンの有効期間を返す。
func (a *Authority) Lifetime() time.Duration {
	return a.lifetime
}

// Issue は指定アイデンティティの署名付きトークンを発行する。
// 有効期限は現在時刻 + 設定された有効期間。
func (a *Authority) Issue(identityID string) (string, time.Time, error) {
	now := a.now()
	expiresAt := now.Add(a.lifetime)

	token := jwt.NewWithClaims(a.method, jwt.RegisteredClaims{
		Subject:   identityID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})

	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify はトークンを検証し、有効な場合はアイデンティティIDを返す。
// 署名不正はErrInvalidSignature、期限切れはErrExpired、
// 構造不正はErrMalformedを返す。クロックスキューは補償しない。
func (a *Authority) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return a.secret, nil
		},
		jwt.WithValidMethods([]string{a.method.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", ErrInvalidSignature
		default:
			return "", ErrMalformed
		}
	}

	if claims.Subject == "" {
		return "", ErrMalformed
	}

	return claims.Subject, nil
}
