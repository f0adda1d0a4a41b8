package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/frahmantamala/smartwater-vending/internal"
)

const (
	RoleOperator = "operator"

	issuer = "smartwater-vending"
)

// Claims carried by an operator token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) IsOperator() bool {
	return c.Role == RoleOperator
}

type TokenVerifier interface {
	Verify(tokenString string) (*Claims, error)
}

var ErrSigningKeyMissing = errors.New("jwt private key not configured")

// TokenService signs and verifies RS256 operator tokens. A service built
// without a private key can only verify.
type TokenService struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	ttl        time.Duration
	now        func() time.Time
}

func NewTokenService(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey, ttl time.Duration) *TokenService {
	if publicKey == nil && privateKey != nil {
		publicKey = &privateKey.PublicKey
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenService{
		privateKey: privateKey,
		publicKey:  publicKey,
		ttl:        ttl,
		now:        time.Now,
	}
}

// NewTokenServiceFromConfig loads whichever keys are configured.
func NewTokenServiceFromConfig(cfg apperrors.SecurityConfig) (*TokenService, error) {
	var (
		priv *rsa.PrivateKey
		pub  *rsa.PublicKey
		err  error
	)
	if cfg.JWTPrivateKey != "" {
		if priv, err = cfg.GetPrivateKey(); err != nil {
			return nil, err
		}
	}
	if cfg.JWTPublicKey != "" {
		if pub, err = cfg.GetPublicKey(); err != nil {
			return nil, err
		}
	}
	return NewTokenService(priv, pub, cfg.OperatorTokenDuration), nil
}

// Issue signs a token for subject with the given role. A zero ttl uses the
// configured operator token duration.
func (s *TokenService) Issue(subject, role string, ttl time.Duration) (string, time.Time, error) {
	if s.privateKey == nil {
		return "", time.Time{}, ErrSigningKeyMissing
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify parses tokenString and returns its claims. Failures are reported as
// INVALID_TOKEN or TOKEN_EXPIRED.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	if s.publicKey == nil {
		return nil, apperrors.NewUnauthorizedError("Token verification is not configured", apperrors.ErrCodeInvalidToken)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.publicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.NewUnauthorizedError("Token has expired", apperrors.ErrCodeTokenExpired).WithCause(err)
		}
		return nil, apperrors.NewUnauthorizedError("Invalid token", apperrors.ErrCodeInvalidToken).WithCause(err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, apperrors.NewUnauthorizedError("Invalid token", apperrors.ErrCodeInvalidToken)
	}
	return claims, nil
}

type claimsKey struct{}

func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, claimsKey{}, claims)
	return apperrors.ContextWithOperator(ctx, claims.Subject)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok && claims != nil
}
