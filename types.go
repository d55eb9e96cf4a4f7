package lifecycle

import (
	"fmt"
	"time"
)

// Logger is the minimal logging surface the package depends on.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds lifecycle options sourced from the host application.
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	// GetSessionTimeout is the inactivity window for admin sessions.
	GetSessionTimeout() time.Duration
	// GetCredentialDuration is the association-controlled lifetime of a
	// third-party credential.
	GetCredentialDuration() time.Duration
	// GetSweepInterval is how often the background expiry scans run.
	GetSweepInterval() time.Duration
	// GetPasswordHashCost is the bcrypt cost for credential hashes.
	GetPasswordHashCost() int
}

const (
	// DefaultSessionTimeout is the fixed inactivity window.
	DefaultSessionTimeout = 10 * time.Minute
	// DefaultCredentialDuration is the association default for issued
	// third-party accounts.
	DefaultCredentialDuration = 8 * time.Hour
	// DefaultSweepInterval paces the background expiry scans.
	DefaultSweepInterval = 60 * time.Second
)

// AuthenticatedPrincipal is the narrow identity a validated third-party
// credential resolves to. The capability set is fixed: read-only
// therapist lookup, independent of any admin-family role.
type AuthenticatedPrincipal struct {
	CredentialID string
	Username     string
	Scope        string
	ExpiresAt    time.Time
}

// ScopeThirdPartyReadOnly is the single capability set a third-party
// credential grants.
const ScopeThirdPartyReadOnly = "third-party:read-only"

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] LIFECYCLE "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] LIFECYCLE "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] LIFECYCLE "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
