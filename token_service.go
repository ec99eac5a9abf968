package membership

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-membership/metrics"
	"github.com/google/uuid"
)

// DefaultTokenTTL is used when neither the caller nor Config set a TTL.
const DefaultTokenTTL = 60 * time.Minute

// MinSigningKeyBytes is the shortest HS256 key we accept.
const MinSigningKeyBytes = 32

// TokenService issues and verifies signed, time bounded session tokens.
// Verification is stateless; a token stays valid until it expires.
type TokenService struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	now        Clock
	logger     Logger
	metrics    *metrics.Collector
}

// TokenOption customizes a TokenService.
type TokenOption func(*TokenService)

// WithTokenClock injects the clock used for issuing and verifying.
func WithTokenClock(clock Clock) TokenOption {
	return func(ts *TokenService) {
		if clock != nil {
			ts.now = clock
		}
	}
}

// WithTokenLogger overrides the logger.
func WithTokenLogger(logger Logger) TokenOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// WithTokenMetrics records verification outcomes.
func WithTokenMetrics(m *metrics.Collector) TokenOption {
	return func(ts *TokenService) {
		ts.metrics = m
	}
}

// NewTokenService creates a TokenService from Config. The signing key must
// come from configuration and be at least MinSigningKeyBytes long.
func NewTokenService(cfg Config, opts ...TokenOption) (*TokenService, error) {
	if cfg == nil || len(cfg.GetSigningKey()) < MinSigningKeyBytes {
		return nil, ErrMissingSigningKey
	}

	ttl := cfg.GetTokenExpiration()
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	var aud jwt.ClaimStrings
	if a := cfg.GetAudience(); len(a) > 0 {
		aud = append(jwt.ClaimStrings(nil), a...)
	}

	ts := &TokenService{
		signingKey: []byte(cfg.GetSigningKey()),
		ttl:        ttl,
		issuer:     cfg.GetIssuer(),
		audience:   aud,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	ts.now = normalizeClock(ts.now)
	ts.logger = normalizeLogger(ts.logger, "tokens")

	return ts, nil
}

// DefaultTTL returns the configured token lifetime.
func (ts *TokenService) DefaultTTL() time.Duration {
	return ts.ttl
}

// IssueToken signs claims for ttl. A non positive ttl uses the default.
func (ts *TokenService) IssueToken(claims SessionClaims, ttl time.Duration) (string, error) {
	if claims.Subject == "" {
		return "", goerrors.New("token subject is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}
	if ttl <= 0 {
		ttl = ts.ttl
	}

	now := ts.now()
	wire := &jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   claims.Subject,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        claims.TokenID,
		},
		NationalCode: claims.NationalCode,
		Role:         string(claims.RoleSnapshot),
	}
	if wire.ID == "" {
		wire.ID = uuid.NewString()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, wire)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

// VerifyToken checks signature, structure and expiry. It is all or nothing:
// any failure yields ErrTokenInvalidOrExpired.
func (ts *TokenService) VerifyToken(tokenString string) (SessionClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience[0]))
	}

	wire := &jwtClaims{}
	token, err := jwt.ParseWithClaims(tokenString, wire, func(t *jwt.Token) (any, error) {
		return ts.signingKey, nil
	}, parserOptions...)
	if err != nil {
		reason := "malformed"
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			reason = "expired"
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			reason = "signature"
		}
		ts.logger.Debug("token verification failed", "reason", reason, "error", err)
		ts.metrics.TokenVerified(reason)
		return SessionClaims{}, tokenError(reason, err)
	}

	if !token.Valid || wire.Subject == "" {
		ts.metrics.TokenVerified("malformed")
		return SessionClaims{}, tokenError("malformed", nil)
	}

	ts.metrics.TokenVerified("ok")
	return wire.toSession(), nil
}

func tokenError(reason string, source error) error {
	clone := ErrTokenInvalidOrExpired.Clone()
	if clone == nil {
		return ErrTokenInvalidOrExpired
	}
	if source != nil {
		clone.Source = source
	}
	return clone.WithMetadata(map[string]any{"reason": reason})
}
