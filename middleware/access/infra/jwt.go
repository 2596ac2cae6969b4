package infra

import (
	"errors"
	"fmt"
	"time"

	"access-gateway/middleware/access/domain"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid admin token")

// JWTValidator valida tokens HS256 da API administrativa.
// O papel vem da claim "role".
type JWTValidator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

type JWTOption func(*JWTValidator)

func WithIssuer(iss string) JWTOption {
	return func(v *JWTValidator) { v.issuer = iss }
}

func WithJWTClock(now func() time.Time) JWTOption {
	return func(v *JWTValidator) { v.now = now }
}

func NewJWTValidator(secret string, opts ...JWTOption) *JWTValidator {
	v := &JWTValidator{secret: []byte(secret), issuer: "access-gateway", now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *JWTValidator) Validate(token string) (domain.AdminClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return domain.AdminClaims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	sub, _ := claims.GetSubject()
	role, _ := claims["role"].(string)
	return domain.AdminClaims{Subject: sub, Role: role}, nil
}

// Issue assina um token para o operador. Usado pelo subcomando "token" do gateway.
func (v *JWTValidator) Issue(subject, role string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"iss":  v.issuer,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
