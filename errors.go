package membership

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeTokenInvalid       = "TOKEN_INVALID_OR_EXPIRED"
	TextCodeConflict           = "IDENTITY_CONFLICT"
	TextCodeNotFound           = "IDENTITY_NOT_FOUND"
	TextCodeProfileNotFound    = "PROFILE_NOT_FOUND"
	TextCodeForbidden          = "FORBIDDEN"
	TextCodeValidation         = "VALIDATION_FAILED"
	TextCodeInactiveIdentity   = "IDENTITY_INACTIVE"
	TextCodeMissingSigningKey  = "MISSING_SIGNING_KEY"
)

// ErrInvalidCredentials is returned for unknown member numbers and wrong
// secrets alike. Callers must not be able to tell the two apart.
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenInvalidOrExpired covers bad signatures, malformed tokens and expiry.
var ErrTokenInvalidOrExpired = goerrors.New("token is invalid or expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrConflict is the uniqueness violation on member number or national code.
var ErrConflict = goerrors.New("member number or national code already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeConflict).
	WithCode(goerrors.CodeConflict)

// ErrIdentityNotFound is returned when a target identity does not exist.
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrProfileNotFound is returned when an identity has no profile row.
var ErrProfileNotFound = goerrors.New("profile not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeProfileNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrForbidden is returned by role and ownership checks.
var ErrForbidden = goerrors.New("insufficient permissions", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrInactiveIdentity is returned by the guard when a token belongs to a
// deactivated identity.
var ErrInactiveIdentity = goerrors.New("identity is not active", goerrors.CategoryAuthz).
	WithTextCode(TextCodeInactiveIdentity).
	WithCode(goerrors.CodeForbidden)

// ErrMissingSigningKey is a construction error for the token service.
var ErrMissingSigningKey = goerrors.New("token signing key is missing or too short", goerrors.CategoryInternal).
	WithTextCode(TextCodeMissingSigningKey)

// ConflictKey names the natural key that collided.
type ConflictKey string

const (
	ConflictMemberNumber ConflictKey = "member_number"
	ConflictNationalCode ConflictKey = "national_code"
)

func newConflictError(key ConflictKey, source error) error {
	clone := ErrConflict.Clone()
	if clone == nil {
		return ErrConflict
	}
	if source != nil {
		clone.Source = source
	}
	return clone.WithMetadata(map[string]any{
		"key": string(key),
	})
}

func newForbiddenError(meta map[string]any) error {
	clone := ErrForbidden.Clone()
	if clone == nil {
		return ErrForbidden
	}
	return clone.WithMetadata(meta)
}

func newValidationError(message string, err error) error {
	meta := map[string]any{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				meta[field] = ferr.Error()
			}
		}
	}

	return goerrors.Wrap(err, goerrors.CategoryValidation, message).
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(meta)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

// IsConflict reports whether err is a uniqueness violation.
func IsConflict(err error) bool {
	return hasTextCode(err, TextCodeConflict)
}

// ConflictKeyOf returns which natural key collided, if known.
func ConflictKeyOf(err error) ConflictKey {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != TextCodeConflict {
		return ""
	}
	if key, ok := richErr.Metadata["key"].(string); ok {
		return ConflictKey(key)
	}
	return ""
}

// IsForbidden reports whether err is an authorization failure.
func IsForbidden(err error) bool {
	return hasTextCode(err, TextCodeForbidden) || hasTextCode(err, TextCodeInactiveIdentity)
}

// IsNotFound reports whether err is a missing identity or profile.
func IsNotFound(err error) bool {
	return hasTextCode(err, TextCodeNotFound) || hasTextCode(err, TextCodeProfileNotFound)
}

// IsValidation reports whether err is an input shape error.
func IsValidation(err error) bool {
	return hasTextCode(err, TextCodeValidation)
}

// IsTokenInvalid reports whether err is a token verification failure.
func IsTokenInvalid(err error) bool {
	return hasTextCode(err, TextCodeTokenInvalid)
}

// isUniqueViolation recognises storage level unique constraint failures for
// the dialects we support.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

// uniqueViolationKey guesses the natural key from the constraint message.
func uniqueViolationKey(err error) ConflictKey {
	msg := err.Error()
	if strings.Contains(msg, "national_code") {
		return ConflictNationalCode
	}
	return ConflictMemberNumber
}
