package membership_test

import (
	"context"
	"sync"
	"testing"
	"time"

	membership "github.com/goliatone/go-membership"
	"github.com/goliatone/go-membership/config"
	"github.com/goliatone/go-membership/metrics"
	"github.com/goliatone/go-membership/persistence"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

const testSigningKey = "test-signing-key-0123456789abcdef"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Token.SigningKey = testSigningKey
	cfg.Security.BcryptCost = bcrypt.MinCost
	return cfg
}

type fixture struct {
	db       *bun.DB
	repos    membership.RepositoryManager
	clock    *fakeClock
	metrics  *metrics.Collector
	registry *membership.Registry
	audit    *membership.AuditPipeline
	tokens   *membership.TokenService
	auther   *membership.Auther
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := persistence.OpenAndMigrate(context.Background(), persistence.Options{
		Driver: persistence.DriverSQLite,
		DSN:    ":memory:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := testConfig()
	db := newTestDB(t)
	clock := newFakeClock()
	collector := metrics.New(prometheus.NewRegistry())
	repos := membership.NewRepositoryManager(db)
	repos.MustValidate()

	registry := membership.NewRegistry(repos,
		membership.NewCredentialStore(cfg.GetBcryptCost()),
		membership.WithRegistryLogger(membership.NopLogger()),
		membership.WithRegistryMetrics(collector),
	)

	audit := membership.NewAuditPipeline(repos,
		membership.WithAuditClock(clock.Now),
		membership.WithAuditLogger(membership.NopLogger()),
		membership.WithAuditMetrics(collector),
		membership.WithAuditBatchSize(2),
	)

	tokens, err := membership.NewTokenService(cfg,
		membership.WithTokenClock(clock.Now),
		membership.WithTokenMetrics(collector),
	)
	require.NoError(t, err)

	auther := membership.NewAuthenticator(registry, tokens).
		WithLogger(membership.NopLogger()).
		WithAuditAppender(audit).
		WithMetrics(collector)

	return &fixture{
		db:       db,
		repos:    repos,
		clock:    clock,
		metrics:  collector,
		registry: registry,
		audit:    audit,
		tokens:   tokens,
		auther:   auther,
	}
}

func registration(memberNumber, nationalCode string) membership.RegistrationInput {
	return membership.RegistrationInput{
		MemberNumber: memberNumber,
		NationalCode: nationalCode,
		PhoneNumber:  "09121234567",
		Gender:       "sister",
		Address:      "Tehran, Enghelab St.",
	}
}

func (f *fixture) register(t *testing.T, memberNumber, nationalCode string) *membership.Identity {
	t.Helper()
	identity, err := f.registry.Register(context.Background(), registration(memberNumber, nationalCode))
	require.NoError(t, err)
	return identity
}

func (f *fixture) promote(t *testing.T, identity *membership.Identity, role membership.RoleName) *membership.Identity {
	t.Helper()
	updated, err := f.registry.AdminUpdate(context.Background(), identity.ID, membership.AdminPatch{Role: &role})
	require.NoError(t, err)
	return updated
}

func (f *fixture) countIdentities(t *testing.T) int {
	t.Helper()
	n, err := f.db.NewSelect().Model((*membership.Identity)(nil)).Count(context.Background())
	require.NoError(t, err)
	return n
}

func (f *fixture) countProfiles(t *testing.T) int {
	t.Helper()
	n, err := f.db.NewSelect().Model((*membership.Profile)(nil)).Count(context.Background())
	require.NoError(t, err)
	return n
}

func ptr[T any](v T) *T { return &v }
