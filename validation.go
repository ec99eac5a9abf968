package membership

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

const (
	NationalCodeLength = 10
	PhoneNumberLength  = 11
	MaxAddressLength   = 200
	MaxMemberNumberLen = 20

	// phoneRegion is the numbering plan phone numbers are checked against.
	phoneRegion = "IR"
)

// RegistrationInput is what a new member provides. The member number also
// becomes the initial secret.
type RegistrationInput struct {
	MemberNumber string `json:"member_number"`
	NationalCode string `json:"national_code"`
	PhoneNumber  string `json:"phone_number"`
	Gender       string `json:"gender"`
	Address      string `json:"address"`
	Notes        string `json:"notes,omitempty"`
}

// Normalize trims whitespace and maps gender aliases to canonical values.
func (in *RegistrationInput) Normalize() {
	in.MemberNumber = strings.TrimSpace(in.MemberNumber)
	in.NationalCode = strings.TrimSpace(in.NationalCode)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	in.Address = strings.TrimSpace(in.Address)
	if g, ok := ParseGender(strings.TrimSpace(in.Gender)); ok {
		in.Gender = string(g)
	}
}

func (in RegistrationInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.MemberNumber, withRequired(memberNumberRules())...),
		validation.Field(&in.NationalCode, withRequired(nationalCodeRules())...),
		validation.Field(&in.PhoneNumber, withRequired(phoneRules())...),
		validation.Field(&in.Gender, validation.Required, validation.By(validGender)),
		validation.Field(&in.Address, validation.Length(0, MaxAddressLength)),
	)
}

// ProfilePatch is a partial self service update. Nil fields are left as is.
type ProfilePatch struct {
	NationalCode *string `json:"national_code,omitempty"`
	PhoneNumber  *string `json:"phone_number,omitempty"`
	Gender       *string `json:"gender,omitempty"`
	Address      *string `json:"address,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

// IsEmpty reports whether the patch carries no fields.
func (p ProfilePatch) IsEmpty() bool {
	return p.NationalCode == nil && p.PhoneNumber == nil && p.Gender == nil &&
		p.Address == nil && p.Notes == nil
}

// Normalize trims values and maps gender aliases.
func (p *ProfilePatch) Normalize() {
	trimPtr(p.NationalCode)
	trimPtr(p.PhoneNumber)
	trimPtr(p.Address)
	if p.Gender != nil {
		if g, ok := ParseGender(strings.TrimSpace(*p.Gender)); ok {
			v := string(g)
			p.Gender = &v
		}
	}
}

func (p ProfilePatch) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.NationalCode, withNilOrNotEmpty(nationalCodeRules())...),
		validation.Field(&p.PhoneNumber, withNilOrNotEmpty(phoneRules())...),
		validation.Field(&p.Gender, validation.NilOrNotEmpty, validation.By(validGender)),
		validation.Field(&p.Address, validation.Length(0, MaxAddressLength)),
	)
}

// AdminPatch extends ProfilePatch with fields only admins may change.
type AdminPatch struct {
	ProfilePatch
	Active *bool     `json:"is_active,omitempty"`
	Role   *RoleName `json:"role,omitempty"`
}

// IsEmpty reports whether the patch carries no fields.
func (p AdminPatch) IsEmpty() bool {
	return p.ProfilePatch.IsEmpty() && p.Active == nil && p.Role == nil
}

func (p AdminPatch) Validate() error {
	if err := p.ProfilePatch.Validate(); err != nil {
		return err
	}
	return validation.ValidateStruct(&p,
		validation.Field(&p.Role, validation.By(validRole)),
	)
}

func memberNumberRules() []validation.Rule {
	return []validation.Rule{
		validation.Length(1, MaxMemberNumberLen),
		is.Digit,
	}
}

func nationalCodeRules() []validation.Rule {
	return []validation.Rule{
		validation.Length(NationalCodeLength, NationalCodeLength),
		is.Digit,
	}
}

func phoneRules() []validation.Rule {
	return []validation.Rule{
		validation.Length(PhoneNumberLength, PhoneNumberLength),
		is.Digit,
		validation.By(possiblePhoneNumber),
	}
}

func withRequired(rules []validation.Rule) []validation.Rule {
	return append([]validation.Rule{validation.Required}, rules...)
}

func withNilOrNotEmpty(rules []validation.Rule) []validation.Rule {
	return append([]validation.Rule{validation.NilOrNotEmpty}, rules...)
}

func possiblePhoneNumber(value any) error {
	s, ok := indirectString(value)
	if !ok || s == "" {
		return nil
	}
	num, err := phonenumbers.Parse(s, phoneRegion)
	if err != nil || !phonenumbers.IsPossibleNumber(num) {
		return errors.New("must be a valid phone number")
	}
	return nil
}

func validGender(value any) error {
	s, ok := indirectString(value)
	if !ok || s == "" {
		return nil
	}
	if !Gender(s).IsValid() {
		return errors.New("must be one of: sister, brother")
	}
	return nil
}

func validRole(value any) error {
	var r RoleName
	switch v := value.(type) {
	case *RoleName:
		if v == nil {
			return nil
		}
		r = *v
	case RoleName:
		r = v
	default:
		return nil
	}
	if !r.IsValid() {
		return errors.New("must be one of: user, moderator, admin")
	}
	return nil
}

func indirectString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case *string:
		if v == nil {
			return "", false
		}
		return *v, true
	default:
		return "", false
	}
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}
