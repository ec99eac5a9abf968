package membership

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Gender is the closed set of profile genders.
type Gender string

const (
	GenderSister  Gender = "sister"
	GenderBrother Gender = "brother"
)

// IsValid checks the closed enum.
func (g Gender) IsValid() bool {
	switch g {
	case GenderSister, GenderBrother:
		return true
	default:
		return false
	}
}

// ParseGender accepts the canonical values and the localized aliases used
// by registration forms.
func ParseGender(s string) (Gender, bool) {
	switch s {
	case "sister", "خواهر":
		return GenderSister, true
	case "brother", "برادر":
		return GenderBrother, true
	default:
		return Gender(s), false
	}
}

// Role is a named, fixed category. The permissions of a role come from
// PermissionsForRole, never from this row.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rl"`
	ID            int64    `bun:"id,pk,autoincrement" json:"id"`
	Name          RoleName `bun:"name,notnull,unique" json:"name"`
	Description   string   `bun:"description" json:"description,omitempty"`
}

// Identity is one registered member.
type Identity struct {
	bun.BaseModel `bun:"table:identities,alias:idn"`
	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	MemberNumber  string    `bun:"member_number,notnull,unique" json:"member_number"`
	SecretHash    string    `bun:"secret_hash,notnull" json:"-"`
	RoleID        int64     `bun:"role_id,notnull" json:"role_id"`
	Role          *Role     `bun:"rel:belongs-to,join:role_id=id" json:"role,omitempty"`
	Active        bool      `bun:"is_active,notnull" json:"is_active"`
	Profile       *Profile  `bun:"rel:has-one,join:id=identity_id" json:"profile,omitempty"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// RoleName returns the live role name, empty when the relation is not loaded.
func (i *Identity) RoleName() RoleName {
	if i == nil || i.Role == nil {
		return ""
	}
	return i.Role.Name
}

// NationalCode returns the profile national code, empty without profile.
func (i *Identity) NationalCode() string {
	if i == nil || i.Profile == nil {
		return ""
	}
	return i.Profile.NationalCode
}

var _ bun.BeforeAppendModelHook = (*Identity)(nil)

// BeforeAppendModel keeps the timestamps server assigned.
func (i *Identity) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	stampModel(query, &i.CreatedAt, &i.UpdatedAt)
	return nil
}

// Profile holds the person specific attributes of an Identity.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`
	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	IdentityID    int64     `bun:"identity_id,notnull,unique" json:"identity_id"`
	NationalCode  string    `bun:"national_code,notnull,unique" json:"national_code"`
	PhoneNumber   string    `bun:"phone_number,notnull" json:"phone_number"`
	Gender        Gender    `bun:"gender,notnull" json:"gender"`
	Address       string    `bun:"address" json:"address,omitempty"`
	Notes         string    `bun:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

var _ bun.BeforeAppendModelHook = (*Profile)(nil)

// BeforeAppendModel keeps the timestamps server assigned.
func (p *Profile) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	stampModel(query, &p.CreatedAt, &p.UpdatedAt)
	return nil
}

func stampModel(query bun.Query, createdAt, updatedAt *time.Time) {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if createdAt.IsZero() {
			*createdAt = now
		}
		if updatedAt.IsZero() {
			*updatedAt = *createdAt
		}
	case *bun.UpdateQuery:
		*updatedAt = now
	}
}

// AuditEvent is an immutable record of a sensitive action.
type AuditEvent struct {
	bun.BaseModel `bun:"table:audit_events,alias:aud"`
	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	ActorID       *int64    `bun:"actor_id" json:"actor_id,omitempty"`
	Action        string    `bun:"action,notnull" json:"action"`
	Entity        *string   `bun:"entity" json:"entity,omitempty"`
	EntityID      *int64    `bun:"entity_id" json:"entity_id,omitempty"`
	Description   *string   `bun:"description" json:"description,omitempty"`
	SourceAddress *string   `bun:"source_address" json:"source_address,omitempty"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}
