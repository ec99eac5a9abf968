package membership

import (
	"context"
	"time"
)

// Logger is the structured logger used across the package. Arguments after
// the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the process wide options the core needs. It is read only
// after startup.
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() time.Duration
	GetIssuer() string
	GetAudience() []string
	GetBcryptCost() int
}

// IdentityResolver turns verified claims into a live identity.
type IdentityResolver interface {
	ResolveClaims(ctx context.Context, claims SessionClaims) (*Identity, error)
}

// AuditAppender is the sink every sensitive operation writes to.
type AuditAppender interface {
	Append(ctx context.Context, entry AuditEntry)
}

// Clock returns the current time. Components accept one for tests.
type Clock func() time.Time

func normalizeClock(c Clock) Clock {
	if c == nil {
		return func() time.Time { return time.Now().UTC() }
	}
	return c
}
