package membership

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the decoded payload of a session token. It is never
// stored and it is not an Identity: the role snapshot may be stale and must
// not drive authorization.
type SessionClaims struct {
	Subject      string
	NationalCode string
	RoleSnapshot RoleName
	TokenID      string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// MemberNumber is an alias for Subject.
func (c SessionClaims) MemberNumber() string {
	return c.Subject
}

// ClaimsForIdentity builds the login claims for an identity.
func ClaimsForIdentity(identity *Identity) SessionClaims {
	return SessionClaims{
		Subject:      identity.MemberNumber,
		NationalCode: identity.NationalCode(),
		RoleSnapshot: identity.RoleName(),
	}
}

// jwtClaims is the wire representation of SessionClaims.
type jwtClaims struct {
	jwt.RegisteredClaims
	NationalCode string `json:"national_code,omitempty"`
	Role         string `json:"role,omitempty"`
}

func (c *jwtClaims) toSession() SessionClaims {
	out := SessionClaims{
		Subject:      c.Subject,
		NationalCode: c.NationalCode,
		RoleSnapshot: RoleName(c.Role),
		TokenID:      c.ID,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time.UTC()
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return out
}
