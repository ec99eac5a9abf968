package membership

import (
	"context"

	"github.com/goliatone/go-membership/metrics"
	"github.com/uptrace/bun"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Registry owns the Identity and Profile lifecycle and the uniqueness of
// the two natural keys.
type Registry struct {
	repos       RepositoryManager
	credentials *CredentialStore
	logger      Logger
	metrics     *metrics.Collector
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger overrides the logger.
func WithRegistryLogger(logger Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRegistryMetrics records registration outcomes.
func WithRegistryMetrics(m *metrics.Collector) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates a Registry. A nil credential store uses the default
// bcrypt cost.
func NewRegistry(repos RepositoryManager, credentials *CredentialStore, opts ...RegistryOption) *Registry {
	if credentials == nil {
		credentials = NewCredentialStore(0)
	}
	r := &Registry{
		repos:       repos,
		credentials: credentials,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.logger = normalizeLogger(r.logger, "registry")
	return r
}

// Register creates an Identity and its Profile in one transaction. The
// initial secret is the member number.
func (r *Registry) Register(ctx context.Context, input RegistrationInput) (*Identity, error) {
	input.Normalize()
	if err := input.Validate(); err != nil {
		r.metrics.Registration("invalid")
		return nil, newValidationError("invalid registration input", err)
	}

	secretHash, err := r.credentials.Hash(input.MemberNumber)
	if err != nil {
		r.metrics.Registration("error")
		return nil, err
	}

	var created *Identity
	err = r.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := r.CheckUniquenessTx(ctx, tx, input.NationalCode, input.MemberNumber, 0); err != nil {
			return err
		}

		role, err := r.repos.Roles().EnsureTx(ctx, tx, RoleUser)
		if err != nil {
			return err
		}

		identity := &Identity{
			MemberNumber: input.MemberNumber,
			SecretHash:   secretHash,
			RoleID:       role.ID,
			Active:       true,
		}
		if err := r.repos.Identities().CreateTx(ctx, tx, identity); err != nil {
			return err
		}

		profile := &Profile{
			IdentityID:   identity.ID,
			NationalCode: input.NationalCode,
			PhoneNumber:  input.PhoneNumber,
			Gender:       Gender(input.Gender),
			Address:      input.Address,
			Notes:        input.Notes,
		}
		if err := r.repos.Identities().CreateProfileTx(ctx, tx, profile); err != nil {
			return err
		}

		created, err = r.repos.Identities().GetByIDTx(ctx, tx, identity.ID)
		return err
	})
	if err != nil {
		switch {
		case IsConflict(err):
			r.metrics.Registration("conflict")
			r.logger.Info("registration rejected", "member_number", input.MemberNumber, "key", ConflictKeyOf(err))
		default:
			r.metrics.Registration("error")
			r.logger.Error("registration failed", "member_number", input.MemberNumber, "error", err)
		}
		return nil, err
	}

	r.metrics.Registration("ok")
	r.logger.Debug("identity registered", "id", created.ID)
	return created, nil
}

// Authenticate resolves memberNumber exactly and verifies secret. Unknown
// member numbers, wrong secrets and inactive identities all produce
// ErrInvalidCredentials after one bcrypt comparison.
func (r *Registry) Authenticate(ctx context.Context, memberNumber, secret string) (*Identity, error) {
	identity, err := r.repos.Identities().GetByMemberNumber(ctx, memberNumber)
	if err != nil {
		if IsNotFound(err) {
			r.credentials.Equalize(secret)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !r.credentials.Verify(secret, identity.SecretHash) {
		return nil, ErrInvalidCredentials
	}

	if !identity.Active {
		return nil, ErrInvalidCredentials
	}

	return identity, nil
}

// UpdateProfile applies a partial patch to the identity's own profile.
func (r *Registry) UpdateProfile(ctx context.Context, identityID int64, patch ProfilePatch) (*Identity, error) {
	return r.AdminUpdate(ctx, identityID, AdminPatch{ProfilePatch: patch})
}

// AdminUpdate is UpdateProfile plus activation and role changes.
func (r *Registry) AdminUpdate(ctx context.Context, identityID int64, patch AdminPatch) (*Identity, error) {
	patch.Normalize()
	if err := patch.Validate(); err != nil {
		return nil, newValidationError("invalid profile update", err)
	}

	var updated *Identity
	err := r.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		identity, err := r.repos.Identities().GetByIDTx(ctx, tx, identityID)
		if err != nil {
			return err
		}

		if err := r.applyProfilePatchTx(ctx, tx, identity, patch.ProfilePatch); err != nil {
			return err
		}

		if err := r.applyIdentityPatchTx(ctx, tx, identity, patch); err != nil {
			return err
		}

		updated, err = r.repos.Identities().GetByIDTx(ctx, tx, identityID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *Registry) applyProfilePatchTx(ctx context.Context, tx bun.IDB, identity *Identity, patch ProfilePatch) error {
	if patch.IsEmpty() {
		return nil
	}
	profile := identity.Profile
	if profile == nil {
		return ErrProfileNotFound
	}

	var columns []string
	if patch.NationalCode != nil && *patch.NationalCode != profile.NationalCode {
		if err := r.CheckUniquenessTx(ctx, tx, *patch.NationalCode, identity.MemberNumber, identity.ID); err != nil {
			return err
		}
		profile.NationalCode = *patch.NationalCode
		columns = append(columns, "national_code")
	}
	if patch.PhoneNumber != nil {
		profile.PhoneNumber = *patch.PhoneNumber
		columns = append(columns, "phone_number")
	}
	if patch.Gender != nil {
		profile.Gender = Gender(*patch.Gender)
		columns = append(columns, "gender")
	}
	if patch.Address != nil {
		profile.Address = *patch.Address
		columns = append(columns, "address")
	}
	if patch.Notes != nil {
		profile.Notes = *patch.Notes
		columns = append(columns, "notes")
	}
	if len(columns) == 0 {
		return nil
	}

	return r.repos.Identities().UpdateProfileTx(ctx, tx, profile, columns...)
}

func (r *Registry) applyIdentityPatchTx(ctx context.Context, tx bun.IDB, identity *Identity, patch AdminPatch) error {
	var columns []string
	if patch.Active != nil && *patch.Active != identity.Active {
		identity.Active = *patch.Active
		columns = append(columns, "is_active")
	}
	if patch.Role != nil && *patch.Role != identity.RoleName() {
		role, err := r.repos.Roles().EnsureTx(ctx, tx, *patch.Role)
		if err != nil {
			return err
		}
		identity.RoleID = role.ID
		identity.Role = role
		columns = append(columns, "role_id")
	}
	if len(columns) == 0 {
		return nil
	}

	return r.repos.Identities().UpdateTx(ctx, tx, identity, columns...)
}

// Get loads an identity with its role and profile.
func (r *Registry) Get(ctx context.Context, id int64) (*Identity, error) {
	return r.repos.Identities().GetByID(ctx, id)
}

// GetByMemberNumber loads an identity by its business key.
func (r *Registry) GetByMemberNumber(ctx context.Context, memberNumber string) (*Identity, error) {
	return r.repos.Identities().GetByMemberNumber(ctx, memberNumber)
}

// List pages through identities ordered by id.
func (r *Registry) List(ctx context.Context, skip, limit int) ([]*Identity, int, error) {
	skip, limit = clampPage(skip, limit)
	return r.repos.Identities().List(ctx, skip, limit)
}

// IsMemberNumberAvailable reports whether memberNumber is still free.
func (r *Registry) IsMemberNumberAvailable(ctx context.Context, memberNumber string) (bool, error) {
	owner, err := r.repos.Identities().OwnerOfMemberNumberTx(ctx, r.repos.DB(), memberNumber)
	if err != nil {
		return false, err
	}
	return owner == 0, nil
}

// Delete removes an identity and its profile together.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	return r.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return r.repos.Identities().DeleteTx(ctx, tx, id)
	})
}

// ResolveClaims returns the live identity named by claims. Both the member
// number and the national code must match.
func (r *Registry) ResolveClaims(ctx context.Context, claims SessionClaims) (*Identity, error) {
	if claims.Subject == "" || claims.NationalCode == "" {
		return nil, tokenError("incomplete_claims", nil)
	}

	identity, err := r.repos.Identities().GetByMemberNumber(ctx, claims.Subject)
	if err != nil {
		if IsNotFound(err) {
			return nil, tokenError("unknown_subject", nil)
		}
		return nil, err
	}

	if identity.NationalCode() != claims.NationalCode {
		return nil, tokenError("subject_mismatch", nil)
	}

	return identity, nil
}

// SeedRoles makes sure every default role exists. Failures are logged and
// skipped; it returns how many roles are in place.
func (r *Registry) SeedRoles(ctx context.Context) int {
	seeded := 0
	for _, name := range DefaultRoles() {
		if _, err := r.repos.Roles().Ensure(ctx, name); err != nil {
			r.logger.Warn("failed to seed role", "role", name, "error", err)
			continue
		}
		seeded++
	}
	r.logger.Info("roles seeded", "count", seeded)
	return seeded
}

func clampPage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return skip, limit
}

var _ IdentityResolver = (*Registry)(nil)
