package lifecycle

import (
	"context"

	"github.com/google/uuid"
)

// IdentityVerifier is the host-supplied admin directory. The portal owns
// who its administrators are; this package only manages their sessions
// once verified.
type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context, identifier, password string) error
}

// IdentityVerifierFunc adapts a plain function to IdentityVerifier.
type IdentityVerifierFunc func(ctx context.Context, identifier, password string) error

func (f IdentityVerifierFunc) VerifyIdentity(ctx context.Context, identifier, password string) error {
	return f(ctx, identifier, password)
}

// AdminAuthenticator is the front door for administrative access: it
// verifies the identity against the host directory, starts the
// inactivity-tracked session, and mints the session token.
type AdminAuthenticator struct {
	verifier IdentityVerifier
	guard    SessionGuard
	tokens   TokenService
	logger   Logger
}

// NewAdminAuthenticator returns a new AdminAuthenticator
func NewAdminAuthenticator(verifier IdentityVerifier, guard SessionGuard, tokens TokenService) *AdminAuthenticator {
	return &AdminAuthenticator{
		verifier: verifier,
		guard:    guard,
		tokens:   tokens,
		logger:   defLogger{},
	}
}

func (a *AdminAuthenticator) WithLogger(logger Logger) *AdminAuthenticator {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// Login verifies the identifier and password, replaces any previous
// session for the principal, and returns the session token. A fresh
// login after an inactivity expiry goes through here like any other;
// expiry is indistinguishable from logout.
func (a *AdminAuthenticator) Login(ctx context.Context, identifier, password string) (string, error) {
	if err := a.verifier.VerifyIdentity(ctx, identifier, password); err != nil {
		a.logger.Error("admin login verify identity: %v", err)
		return "", ErrInvalidCredentials
	}

	token, err := a.tokens.GenerateForSession(&AdminSession{
		ID:          uuid.New(),
		PrincipalID: identifier,
	})
	if err != nil {
		a.logger.Error("admin login token: %v", err)
		return "", err
	}

	if _, err := a.guard.StartSession(ctx, identifier, token); err != nil {
		a.logger.Error("admin login start session: %v", err)
		return "", err
	}

	return token, nil
}

// Logout expires the principal's session. The logout side effect fires
// through the guard's claim, so a concurrent sweep cannot double-fire.
func (a *AdminAuthenticator) Logout(ctx context.Context, principalID string) error {
	return a.guard.Expire(ctx, principalID)
}

// SessionFromToken validates the raw token and confirms the backing
// session is still within its inactivity window.
func (a *AdminAuthenticator) SessionFromToken(ctx context.Context, raw string) (*LifecycleClaims, error) {
	claims, err := a.tokens.Validate(raw)
	if err != nil {
		a.logger.Error("session from token validation: %v", err)
		return nil, err
	}

	ok, err := a.guard.IsValid(ctx, claims.PrincipalID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionExpired
	}

	return claims, nil
}
