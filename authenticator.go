package membership

import (
	"context"
	"fmt"

	"github.com/goliatone/go-membership/metrics"
)

// TokenTypeBearer is the fixed token type label of a SessionArtifact.
const TokenTypeBearer = "bearer"

// SessionArtifact is what a successful login yields. Transport is up to
// the caller.
type SessionArtifact struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Principal is an authenticated caller. Authorization decisions use
// Identity; Claims is kept for logging and token metadata.
type Principal struct {
	Identity *Identity
	Claims   SessionClaims
}

// IdentityProvider verifies secrets and resolves token claims.
type IdentityProvider interface {
	IdentityResolver
	Authenticate(ctx context.Context, memberNumber, secret string) (*Identity, error)
}

// Auther is the token verification boundary: it turns secrets into
// session tokens and bearer tokens into principals.
type Auther struct {
	provider IdentityProvider
	tokens   *TokenService
	audit    AuditAppender
	logger   Logger
	metrics  *metrics.Collector
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, tokens *TokenService) *Auther {
	return &Auther{
		provider: provider,
		tokens:   tokens,
		audit:    noopAuditAppender{},
		logger:   defLogger("auth"),
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = normalizeLogger(logger, "auth")
	return s
}

// WithAuditAppender configures where login events are recorded.
func (s *Auther) WithAuditAppender(audit AuditAppender) *Auther {
	s.audit = normalizeAuditAppender(audit)
	return s
}

// WithMetrics counts login outcomes.
func (s *Auther) WithMetrics(m *metrics.Collector) *Auther {
	s.metrics = m
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() *TokenService {
	return s.tokens
}

// Login authenticates memberNumber and issues a session token carrying the
// member number, national code and a role snapshot.
func (s *Auther) Login(ctx context.Context, memberNumber, secret, sourceAddress string) (*SessionArtifact, error) {
	identity, err := s.provider.Authenticate(ctx, memberNumber, secret)
	if err != nil {
		s.logger.Warn("login failed", "member_number", memberNumber, "error", err)
		s.metrics.Login(false)
		s.audit.Append(ctx, AuditEntry{
			Action:        ActionLoginFailure,
			Entity:        EntityIdentity,
			Description:   fmt.Sprintf("login failed for member number %s", memberNumber),
			SourceAddress: sourceAddress,
		})
		return nil, err
	}

	token, err := s.tokens.IssueToken(ClaimsForIdentity(identity), 0)
	if err != nil {
		s.logger.Error("login failed to issue token", "identity_id", identity.ID, "error", err)
		s.metrics.Login(false)
		return nil, err
	}

	s.metrics.Login(true)
	s.audit.Append(ctx, AuditEntry{
		ActorID:       &identity.ID,
		Action:        ActionLoginSuccess,
		Entity:        EntityIdentity,
		EntityID:      &identity.ID,
		SourceAddress: sourceAddress,
	})

	return &SessionArtifact{
		AccessToken: token,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int(s.tokens.DefaultTTL().Seconds()),
	}, nil
}

// Authorize verifies a bearer token and resolves it to a live, active
// identity. Nothing protected should run before this succeeds.
func (s *Auther) Authorize(ctx context.Context, token string) (*Principal, error) {
	claims, err := s.tokens.VerifyToken(token)
	if err != nil {
		return nil, err
	}

	identity, err := s.provider.ResolveClaims(ctx, claims)
	if err != nil {
		s.logger.Debug("token subject could not be resolved", "subject", claims.Subject, "error", err)
		return nil, err
	}

	if !identity.Active {
		return nil, ErrInactiveIdentity
	}

	return &Principal{
		Identity: identity,
		Claims:   claims,
	}, nil
}

// AuthorizeRole is Authorize followed by RequireRole on the live identity.
func (s *Auther) AuthorizeRole(ctx context.Context, token string, role RoleName) (*Principal, error) {
	principal, err := s.Authorize(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := RequireRole(principal.Identity, role); err != nil {
		return nil, err
	}
	return principal, nil
}
