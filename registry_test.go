package membership_test

import (
	"context"
	"strings"
	"testing"

	membership "github.com/goliatone/go-membership"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterThenAuthenticateWithMemberNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	identity := f.register(t, "4001234567", "0123456789")

	assert.NotZero(t, identity.ID)
	assert.Equal(t, "4001234567", identity.MemberNumber)
	assert.True(t, identity.Active)
	assert.Equal(t, membership.RoleUser, identity.RoleName())
	require.NotNil(t, identity.Profile)
	assert.Equal(t, "0123456789", identity.Profile.NationalCode)
	assert.Equal(t, membership.GenderSister, identity.Profile.Gender)
	assert.NotEqual(t, "4001234567", identity.SecretHash)
	assert.False(t, identity.CreatedAt.IsZero())

	got, err := f.registry.Authenticate(ctx, "4001234567", "4001234567")
	require.NoError(t, err)
	assert.Equal(t, identity.ID, got.ID)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Registrations.WithLabelValues("ok")))
}

func TestRegisterDuplicateMemberNumber(t *testing.T) {
	f := newFixture(t)
	f.register(t, "4001234567", "0123456789")

	for _, nationalCode := range []string{"0123456789", "9999999999"} {
		_, err := f.registry.Register(context.Background(), registration("4001234567", nationalCode))
		require.Error(t, err)
		assert.True(t, membership.IsConflict(err))
		assert.Equal(t, membership.ConflictMemberNumber, membership.ConflictKeyOf(err))
	}

	assert.Equal(t, 1, f.countIdentities(t))
	assert.Equal(t, 1, f.countProfiles(t))
}

func TestRegisterDuplicateNationalCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	memberA := f.register(t, "1000", "1111111111")

	_, err := f.registry.Register(ctx, registration("2000", "1111111111"))
	require.Error(t, err)
	assert.True(t, membership.IsConflict(err))
	assert.Equal(t, membership.ConflictNationalCode, membership.ConflictKeyOf(err))

	assert.Equal(t, 1, f.countIdentities(t))
	assert.Equal(t, 1, f.countProfiles(t))

	identities, total, err := f.registry.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, memberA.ID, identities[0].ID)

	available, err := f.registry.IsMemberNumberAvailable(ctx, "2000")
	require.NoError(t, err)
	assert.True(t, available)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		edit  func(*membership.RegistrationInput)
		field string
	}{
		{name: "Missing member number", edit: func(in *membership.RegistrationInput) { in.MemberNumber = "" }, field: "member_number"},
		{name: "Non digit member number", edit: func(in *membership.RegistrationInput) { in.MemberNumber = "40A" }, field: "member_number"},
		{name: "Short national code", edit: func(in *membership.RegistrationInput) { in.NationalCode = "12345" }, field: "national_code"},
		{name: "Non digit national code", edit: func(in *membership.RegistrationInput) { in.NationalCode = "01234567AB" }, field: "national_code"},
		{name: "Short phone", edit: func(in *membership.RegistrationInput) { in.PhoneNumber = "0912" }, field: "phone_number"},
		{name: "Unknown gender", edit: func(in *membership.RegistrationInput) { in.Gender = "other" }, field: "gender"},
		{name: "Long address", edit: func(in *membership.RegistrationInput) { in.Address = strings.Repeat("x", 201) }, field: "address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := registration("4001234567", "0123456789")
			tt.edit(&in)

			_, err := f.registry.Register(context.Background(), in)
			require.Error(t, err)
			assert.True(t, membership.IsValidation(err))
		})
	}

	assert.Equal(t, 0, f.countIdentities(t))
}

func TestRegisterNormalizesGenderAlias(t *testing.T) {
	f := newFixture(t)

	in := registration(" 4001234567 ", "0123456789")
	in.Gender = "برادر"

	identity, err := f.registry.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "4001234567", identity.MemberNumber)
	assert.Equal(t, membership.GenderBrother, identity.Profile.Gender)
}

func TestStorageConstraintIsTranslatedToConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	existing := f.register(t, "4001234567", "0123456789")

	// bypass the registry check, as a concurrent registration would
	err := f.repos.Identities().Create(ctx, &membership.Identity{
		MemberNumber: "4001234567",
		SecretHash:   "x",
		RoleID:       existing.RoleID,
		Active:       true,
	})
	require.Error(t, err)
	assert.True(t, membership.IsConflict(err))
	assert.Equal(t, membership.ConflictMemberNumber, membership.ConflictKeyOf(err))
}

func TestCheckUniquenessCrossKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.register(t, "1000", "1111111111")
	b := f.register(t, "2000", "2222222222")

	tests := []struct {
		name         string
		nationalCode string
		memberNumber string
		exclude      int64
		conflict     membership.ConflictKey
	}{
		{name: "Both keys free", nationalCode: "3333333333", memberNumber: "3000"},
		{name: "Own keys excluded", nationalCode: b.NationalCode(), memberNumber: b.MemberNumber, exclude: b.ID},
		{name: "Own keys without exclusion", nationalCode: b.NationalCode(), memberNumber: b.MemberNumber, conflict: membership.ConflictMemberNumber},
		{name: "National code owned by another record", nationalCode: a.NationalCode(), memberNumber: b.MemberNumber, exclude: b.ID, conflict: membership.ConflictNationalCode},
		{name: "Member number owned by another record", nationalCode: b.NationalCode(), memberNumber: a.MemberNumber, exclude: b.ID, conflict: membership.ConflictMemberNumber},
		{name: "Keys split across two records", nationalCode: a.NationalCode(), memberNumber: b.MemberNumber, conflict: membership.ConflictMemberNumber},
		{name: "Empty keys are skipped", exclude: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.registry.CheckUniqueness(ctx, tt.nationalCode, tt.memberNumber, tt.exclude)
			if tt.conflict == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.conflict, membership.ConflictKeyOf(err))
		})
	}
}

func TestCheckUniquenessExcludesByOwningIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	role, err := f.repos.Roles().Ensure(ctx, membership.RoleUser)
	require.NoError(t, err)

	// an identity without profile shifts identity ids away from profile ids
	orphan := &membership.Identity{MemberNumber: "9000", SecretHash: "x", RoleID: role.ID, Active: true}
	require.NoError(t, f.repos.Identities().Create(ctx, orphan))

	member := f.register(t, "1000", "1111111111")
	require.NotEqual(t, member.ID, member.Profile.ID)

	assert.NoError(t, f.registry.CheckUniqueness(ctx, "1111111111", "", member.ID))

	err = f.registry.CheckUniqueness(ctx, "1111111111", "", member.Profile.ID)
	require.Error(t, err)
	assert.Equal(t, membership.ConflictNationalCode, membership.ConflictKeyOf(err))
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.register(t, "1000", "1111111111")
	b := f.register(t, "2000", "2222222222")

	t.Run("Partial patch keeps other fields", func(t *testing.T) {
		updated, err := f.registry.UpdateProfile(ctx, b.ID, membership.ProfilePatch{
			PhoneNumber: ptr("09351234567"),
			Notes:       ptr("prefers evening calls"),
		})
		require.NoError(t, err)
		assert.Equal(t, "09351234567", updated.Profile.PhoneNumber)
		assert.Equal(t, "prefers evening calls", updated.Profile.Notes)
		assert.Equal(t, "2222222222", updated.Profile.NationalCode)
		assert.Equal(t, b.Profile.Address, updated.Profile.Address)
		assert.Equal(t, membership.GenderSister, updated.Profile.Gender)
	})

	t.Run("Re-submitting own national code is not a conflict", func(t *testing.T) {
		_, err := f.registry.UpdateProfile(ctx, b.ID, membership.ProfilePatch{NationalCode: ptr("2222222222")})
		assert.NoError(t, err)
	})

	t.Run("Taking another member's national code conflicts", func(t *testing.T) {
		_, err := f.registry.UpdateProfile(ctx, b.ID, membership.ProfilePatch{
			NationalCode: ptr(a.NationalCode()),
			Address:      ptr("should not be written"),
		})
		require.Error(t, err)
		assert.Equal(t, membership.ConflictNationalCode, membership.ConflictKeyOf(err))

		current, err := f.registry.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "2222222222", current.NationalCode())
		assert.NotEqual(t, "should not be written", current.Profile.Address)
	})

	t.Run("Changing to a free national code", func(t *testing.T) {
		updated, err := f.registry.UpdateProfile(ctx, b.ID, membership.ProfilePatch{NationalCode: ptr("3333333333")})
		require.NoError(t, err)
		assert.Equal(t, "3333333333", updated.NationalCode())
	})

	t.Run("Invalid patch", func(t *testing.T) {
		_, err := f.registry.UpdateProfile(ctx, b.ID, membership.ProfilePatch{Gender: ptr("unknown")})
		assert.True(t, membership.IsValidation(err))

		_, err = f.registry.UpdateProfile(ctx, b.ID, membership.ProfilePatch{NationalCode: ptr("")})
		assert.True(t, membership.IsValidation(err))
	})

	t.Run("Unknown identity", func(t *testing.T) {
		_, err := f.registry.UpdateProfile(ctx, 4242, membership.ProfilePatch{Notes: ptr("x")})
		require.Error(t, err)
		assert.True(t, membership.IsNotFound(err))
	})
}

func TestAdminUpdateRoleAndActivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := f.register(t, "1000", "1111111111")

	promoted := f.promote(t, member, membership.RoleModerator)
	assert.Equal(t, membership.RoleModerator, promoted.RoleName())

	updated, err := f.registry.AdminUpdate(ctx, member.ID, membership.AdminPatch{Active: ptr(false)})
	require.NoError(t, err)
	assert.False(t, updated.Active)

	bogus := membership.RoleName("root")
	_, err = f.registry.AdminUpdate(ctx, member.ID, membership.AdminPatch{Role: &bogus})
	assert.True(t, membership.IsValidation(err))
}

func TestResolveClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := f.register(t, "1000", "1111111111")

	got, err := f.registry.ResolveClaims(ctx, membership.ClaimsForIdentity(member))
	require.NoError(t, err)
	assert.Equal(t, member.ID, got.ID)

	tests := []struct {
		name   string
		claims membership.SessionClaims
	}{
		{name: "National code mismatch", claims: membership.SessionClaims{Subject: "1000", NationalCode: "2222222222"}},
		{name: "Unknown subject", claims: membership.SessionClaims{Subject: "9999", NationalCode: "1111111111"}},
		{name: "Missing national code", claims: membership.SessionClaims{Subject: "1000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.registry.ResolveClaims(ctx, tt.claims)
			require.Error(t, err)
			assert.True(t, membership.IsTokenInvalid(err))
		})
	}
}

func TestSeedRolesIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, 3, f.registry.SeedRoles(ctx))
	assert.Equal(t, 3, f.registry.SeedRoles(ctx))

	roles, err := f.repos.Roles().List(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 3)
	for _, role := range roles {
		assert.True(t, role.Name.IsValid())
		assert.NotEmpty(t, role.Description)
	}
}

func TestListPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, nc := range []string{"1111111111", "2222222222", "3333333333"} {
		f.register(t, string(rune('1'+i))+"00", nc)
	}

	page, total, err := f.registry.List(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "200", page[0].MemberNumber)
	assert.NotNil(t, page[0].Profile)
	assert.NotNil(t, page[0].Role)
}

func TestDeleteRemovesProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := f.register(t, "1000", "1111111111")

	require.NoError(t, f.registry.Delete(ctx, member.ID))
	assert.Equal(t, 0, f.countIdentities(t))
	assert.Equal(t, 0, f.countProfiles(t))

	_, err := f.registry.Get(ctx, member.ID)
	assert.True(t, membership.IsNotFound(err))

	err = f.registry.Delete(ctx, member.ID)
	assert.True(t, membership.IsNotFound(err))

	// the national code is free again
	f.register(t, "2000", "1111111111")
}
