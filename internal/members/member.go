// Package members implements the /members REST service used as a load target.
package members

import (
	"unicode"

	"github.com/pingcap/errors"
)

const (
	maxIDLength   = 50
	maxNameLength = 100

	GenderMale   = "male"
	GenderFemale = "female"
)

var (
	ErrNotFound = errors.New("member not found")
	ErrExists   = errors.New("member already exists")
	ErrInvalid  = errors.New("invalid member")
)

// Member is one row of the members table.
type Member struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Gender string `json:"gender"`
}

// ValidateID accepts 1..50 ASCII letters, digits, '-' and '_'.
func ValidateID(id string) error {
	if id == "" || len(id) > maxIDLength {
		return errors.Annotatef(ErrInvalid, "id must be 1..%d characters", maxIDLength)
	}
	for _, c := range id {
		if !isASCIIAlnum(c) && c != '-' && c != '_' {
			return errors.Annotatef(ErrInvalid, "id contains invalid character %q", c)
		}
	}
	return nil
}

// Validate checks the id, the name and the gender of m.
func (m Member) Validate() error {
	if err := ValidateID(m.ID); err != nil {
		return err
	}
	n := len([]rune(m.Name))
	if n == 0 || n > maxNameLength {
		return errors.Annotatef(ErrInvalid, "name must be 1..%d characters", maxNameLength)
	}
	for _, c := range m.Name {
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != ' ' && c != '-' && c != '_' {
			return errors.Annotatef(ErrInvalid, "name contains invalid character %q", c)
		}
	}
	if m.Gender != GenderMale && m.Gender != GenderFemale {
		return errors.Annotatef(ErrInvalid, "gender must be %q or %q", GenderMale, GenderFemale)
	}
	return nil
}

func isASCIIAlnum(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// IsNotFound reports whether err was caused by a missing member.
func IsNotFound(err error) bool { return errors.Cause(err) == ErrNotFound }

// IsExists reports whether err was caused by a duplicate id.
func IsExists(err error) bool { return errors.Cause(err) == ErrExists }

// IsInvalid reports whether err was caused by failed validation.
func IsInvalid(err error) bool { return errors.Cause(err) == ErrInvalid }
