package membership

import (
	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// MaxSecretBytes is the bcrypt input limit. Longer secrets are truncated
// before hashing and verification.
const MaxSecretBytes = 72

// CredentialStore hashes and verifies member secrets.
type CredentialStore struct {
	cost  int
	dummy []byte
}

// NewCredentialStore returns a store with the given bcrypt cost. Values out
// of the bcrypt range fall back to the build default. The digest Equalize
// compares against is computed here, at the same cost.
func NewCredentialStore(cost int) *CredentialStore {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = defaultBcryptCost()
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("membership-timing-equalizer"), cost)
	return &CredentialStore{cost: cost, dummy: dummy}
}

// Hash returns a salted bcrypt digest of secret.
func (s *CredentialStore) Hash(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword(truncateSecret(secret), s.cost)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash secret")
	}
	return string(h), nil
}

// Verify reports whether secret matches digest. Malformed digests are a
// mismatch, never an error.
func (s *CredentialStore) Verify(secret, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), truncateSecret(secret)) == nil
}

// Equalize spends the same work as a real Verify so callers can hide
// whether an account exists.
func (s *CredentialStore) Equalize(secret string) {
	if len(s.dummy) == 0 {
		return
	}
	_ = bcrypt.CompareHashAndPassword(s.dummy, truncateSecret(secret))
}

// Cost returns the configured bcrypt cost.
func (s *CredentialStore) Cost() int {
	return s.cost
}

func truncateSecret(secret string) []byte {
	b := []byte(secret)
	if len(b) > MaxSecretBytes {
		b = b[:MaxSecretBytes]
	}
	return b
}
