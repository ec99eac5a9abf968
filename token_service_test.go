package membership_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	membership "github.com/goliatone/go-membership"
	"github.com/goliatone/go-membership/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenService(t *testing.T, clock *fakeClock, opts ...membership.TokenOption) *membership.TokenService {
	t.Helper()
	opts = append([]membership.TokenOption{membership.WithTokenClock(clock.Now)}, opts...)
	ts, err := membership.NewTokenService(testConfig(), opts...)
	require.NoError(t, err)
	return ts
}

func TestNewTokenServiceRequiresSigningKey(t *testing.T) {
	for _, key := range []string{"", "too-short"} {
		cfg := testConfig()
		cfg.Token.SigningKey = key

		ts, err := membership.NewTokenService(cfg)
		assert.Nil(t, ts)
		assert.ErrorIs(t, err, membership.ErrMissingSigningKey)
	}

	ts, err := membership.NewTokenService(nil)
	assert.Nil(t, ts)
	assert.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	clock := newFakeClock()
	ts := newTokenService(t, clock)

	claims := membership.SessionClaims{
		Subject:      "4001234567",
		NationalCode: "0123456789",
		RoleSnapshot: membership.RoleUser,
	}

	token, err := ts.IssueToken(claims, 60*time.Minute)
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	got, err := ts.VerifyToken(token)
	require.NoError(t, err)

	assert.Equal(t, claims.Subject, got.Subject)
	assert.Equal(t, claims.NationalCode, got.NationalCode)
	assert.Equal(t, claims.RoleSnapshot, got.RoleSnapshot)
	assert.NotEmpty(t, got.TokenID)
	issuedAt := newFakeClock().Now()
	assert.True(t, issuedAt.Equal(got.IssuedAt))
	assert.True(t, issuedAt.Add(60*time.Minute).Equal(got.ExpiresAt))
}

func TestTokenExpiresWithClock(t *testing.T) {
	clock := newFakeClock()
	ts := newTokenService(t, clock)

	token, err := ts.IssueToken(membership.SessionClaims{Subject: "4001234567", NationalCode: "0123456789"}, 60*time.Minute)
	require.NoError(t, err)

	clock.Advance(61 * time.Minute)
	_, err = ts.VerifyToken(token)
	require.Error(t, err)
	assert.True(t, membership.IsTokenInvalid(err))
}

func TestTokenExpiresExactlyAtExpiry(t *testing.T) {
	clock := newFakeClock()
	ts := newTokenService(t, clock)

	token, err := ts.IssueToken(membership.SessionClaims{Subject: "1"}, time.Minute)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = ts.VerifyToken(token)
	assert.True(t, membership.IsTokenInvalid(err))
}

func TestTokenDefaultTTL(t *testing.T) {
	clock := newFakeClock()
	ts := newTokenService(t, clock)

	token, err := ts.IssueToken(membership.SessionClaims{Subject: "1"}, 0)
	require.NoError(t, err)

	got, err := ts.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, membership.DefaultTokenTTL, got.ExpiresAt.Sub(got.IssuedAt))
	assert.Equal(t, membership.DefaultTokenTTL, ts.DefaultTTL())
}

func TestTokenRequiresSubject(t *testing.T) {
	ts := newTokenService(t, newFakeClock())

	_, err := ts.IssueToken(membership.SessionClaims{NationalCode: "0123456789"}, time.Minute)
	assert.Error(t, err)
}

func TestTokenWithoutNationalCodeVerifies(t *testing.T) {
	ts := newTokenService(t, newFakeClock())

	token, err := ts.IssueToken(membership.SessionClaims{Subject: "4001234567"}, time.Hour)
	require.NoError(t, err)

	// the national code is matched against the live identity by ResolveClaims
	claims, err := ts.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "4001234567", claims.Subject)
	assert.Empty(t, claims.NationalCode)
}

func TestVerifyTokenRejections(t *testing.T) {
	clock := newFakeClock()
	ts := newTokenService(t, clock)

	valid, err := ts.IssueToken(membership.SessionClaims{Subject: "4001234567"}, time.Hour)
	require.NoError(t, err)

	sign := func(method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
		token, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return token
	}
	exp := clock.Now().Add(time.Hour).Unix()

	tests := []struct {
		name  string
		token string
	}{
		{name: "Empty", token: ""},
		{name: "Garbage", token: "not.a.token"},
		{name: "Tampered signature", token: valid[:len(valid)-2] + "xx"},
		{name: "Tampered payload", token: strings.Replace(valid, ".", ".e", 1)},
		{name: "Wrong key", token: sign(jwt.SigningMethodHS256, []byte("another-signing-key-0123456789abcdef"), jwt.MapClaims{"sub": "1", "exp": exp, "iss": "go-membership"})},
		{name: "Wrong algorithm", token: sign(jwt.SigningMethodHS512, []byte(testSigningKey), jwt.MapClaims{"sub": "1", "exp": exp, "iss": "go-membership"})},
		{name: "None algorithm", token: sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"sub": "1", "exp": exp, "iss": "go-membership"})},
		{name: "Missing expiry", token: sign(jwt.SigningMethodHS256, []byte(testSigningKey), jwt.MapClaims{"sub": "1", "iss": "go-membership"})},
		{name: "Missing subject", token: sign(jwt.SigningMethodHS256, []byte(testSigningKey), jwt.MapClaims{"exp": exp, "iss": "go-membership"})},
		{name: "Wrong issuer", token: sign(jwt.SigningMethodHS256, []byte(testSigningKey), jwt.MapClaims{"sub": "1", "exp": exp, "iss": "someone-else"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ts.VerifyToken(tt.token)
			require.Error(t, err)
			assert.True(t, membership.IsTokenInvalid(err))
			assert.Empty(t, claims.Subject)
		})
	}
}

func TestTokenVerificationMetrics(t *testing.T) {
	clock := newFakeClock()
	collector := metrics.New(prometheus.NewRegistry())
	ts := newTokenService(t, clock, membership.WithTokenMetrics(collector))

	token, err := ts.IssueToken(membership.SessionClaims{Subject: "1"}, time.Minute)
	require.NoError(t, err)

	_, _ = ts.VerifyToken(token)
	clock.Advance(2 * time.Minute)
	_, _ = ts.VerifyToken(token)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.TokenVerifications.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.TokenVerifications.WithLabelValues("expired")))
}
