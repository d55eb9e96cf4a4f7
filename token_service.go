package lifecycle

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// LifecycleClaims carries the narrow scope a token grants. Third-party
// tokens expire exactly when their credential does; session tokens carry
// no expiry semantics of their own because inactivity is enforced by the
// SessionGuard regardless of token validity.
type LifecycleClaims struct {
	jwt.RegisteredClaims
	PrincipalID string `json:"pid,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

// TokenService signs and validates the tokens returned by the login
// endpoints.
type TokenService interface {
	GenerateForCredential(principal *AuthenticatedPrincipal) (string, error)
	GenerateForSession(session *AdminSession) (string, error)
	Validate(tokenString string) (*LifecycleClaims, error)
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	clock      Clock
	logger     Logger
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, issuer string, audience jwt.ClaimStrings, clock Clock, logger Logger) TokenService {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		signingKey: signingKey,
		issuer:     issuer,
		audience:   audience,
		clock:      clock,
		logger:     logger,
	}
}

// GenerateForCredential mints a token whose exp equals the credential's
// expiresAt; no sliding expiry.
func (ts *TokenServiceImpl) GenerateForCredential(principal *AuthenticatedPrincipal) (string, error) {
	if principal == nil {
		return "", errors.New("principal must not be nil", errors.CategoryInternal)
	}

	now := ts.clock.Now()
	claims := &LifecycleClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   principal.CredentialID,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(principal.ExpiresAt),
		},
		PrincipalID: principal.Username,
		Scope:       principal.Scope,
	}

	return ts.signClaims(claims)
}

// GenerateForSession mints an admin session token. The registered expiry
// is a backstop; the authoritative check is the SessionGuard.
func (ts *TokenServiceImpl) GenerateForSession(session *AdminSession) (string, error) {
	if session == nil {
		return "", errors.New("session must not be nil", errors.CategoryInternal)
	}

	now := ts.clock.Now()
	claims := &LifecycleClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   session.ID.String(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
		PrincipalID: session.PrincipalID,
	}

	return ts.signClaims(claims)
}

func (ts *TokenServiceImpl) signClaims(claims *LifecycleClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning structured claims
func (ts *TokenServiceImpl) Validate(tokenString string) (*LifecycleClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &LifecycleClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token service validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrCredentialExpired
		}
		return nil, errors.Wrap(err, errors.CategoryAuth, "unable to validate token").
			WithTextCode(TextCodeInvalidCreds)
	}

	if claims, ok := token.Claims.(*LifecycleClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("token service validate could not decode or validate claims")
	return nil, ErrInvalidCredentials
}
