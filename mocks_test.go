package membership_test

import (
	"context"
	"sync"
	"time"

	membership "github.com/goliatone/go-membership"
	"github.com/stretchr/testify/mock"
)

// MockIdentityProvider implements membership.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) Authenticate(ctx context.Context, memberNumber, secret string) (*membership.Identity, error) {
	args := m.Called(ctx, memberNumber, secret)
	identity, _ := args.Get(0).(*membership.Identity)
	return identity, args.Error(1)
}

func (m *MockIdentityProvider) ResolveClaims(ctx context.Context, claims membership.SessionClaims) (*membership.Identity, error) {
	args := m.Called(ctx, claims)
	identity, _ := args.Get(0).(*membership.Identity)
	return identity, args.Error(1)
}

// MockConfig implements membership.Config
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) GetSigningKey() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetTokenExpiration() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func (m *MockConfig) GetIssuer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetAudience() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *MockConfig) GetBcryptCost() int {
	args := m.Called()
	return args.Int(0)
}

func newMockConfig() *MockConfig {
	cfg := new(MockConfig)
	cfg.On("GetSigningKey").Return(testSigningKey)
	cfg.On("GetTokenExpiration").Return(time.Hour)
	cfg.On("GetIssuer").Return("membership-test")
	cfg.On("GetAudience").Return([]string{"membership:api"})
	cfg.On("GetBcryptCost").Return(4)
	return cfg
}

// recordingAppender keeps every entry in memory.
type recordingAppender struct {
	mu       sync.Mutex
	entries  []membership.AuditEntry
	contexts []context.Context
}

func (r *recordingAppender) Append(ctx context.Context, entry membership.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	r.contexts = append(r.contexts, ctx)
}

func (r *recordingAppender) LastContext() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.contexts) == 0 {
		return nil
	}
	return r.contexts[len(r.contexts)-1]
}

func (r *recordingAppender) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func (r *recordingAppender) Last() membership.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return membership.AuditEntry{}
	}
	return r.entries[len(r.entries)-1]
}
