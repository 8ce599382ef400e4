package member

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/maktaba/core"
)

// Kind is the directory a member belongs to.
type Kind string

const (
	KindStudent   Kind = "student"
	KindTeacher   Kind = "teacher"
	KindLibrarian Kind = "librarian"
)

var AllKinds = []Kind{KindStudent, KindTeacher, KindLibrarian}

func (k Kind) IsValid() bool {
	switch k {
	case KindStudent, KindTeacher, KindLibrarian:
		return true
	}
	return false
}

// IsStaff reports whether members of this kind may run circulation desk operations.
func (k Kind) IsStaff() bool {
	return k == KindTeacher || k == KindLibrarian
}

type Member struct {
	ID        string    `json:"id"`
	School    string    `json:"school"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Class     string    `json:"class,omitempty"` // students only
	IsAdmin   bool      `json:"isAdmin"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"` // UTC
	UpdatedAt time.Time `json:"updatedAt"` // UTC
}

func (m Member) IsStaff() bool { return m.Kind.IsStaff() }

// Summary returns the display fields attached to populated loans.
func (m Member) Summary() Summary {
	return Summary{ID: m.ID, Kind: m.Kind, Name: m.Name, Class: m.Class}
}

type Summary struct {
	ID    string `json:"id"`
	Kind  Kind   `json:"kind"`
	Name  string `json:"name"`
	Class string `json:"class,omitempty"`
}

// NewMember contains information needed to create a new Member.
type NewMember struct {
	School  string `json:"school" validate:"required,alphanum_"`
	Kind    Kind   `json:"kind" validate:"required,memberkind"`
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"omitempty,email"`
	Class   string `json:"class"`
	IsAdmin bool   `json:"isAdmin"`
}

func (nm *NewMember) Validate(validate *validator.Validate) error {
	nm.School = core.CleanString(nm.School)
	nm.Kind = Kind(core.CleanString(string(nm.Kind), true /* lower */))
	nm.Name = core.CleanString(nm.Name)
	nm.Email = core.CleanString(nm.Email, true /* lower */)
	nm.Class = core.CleanString(nm.Class)
	return validate.Struct(nm)
}

type GetFilter struct {
	ID     string
	School string
	Kinds  []Kind // any of
}

type QueryFilter struct {
	School string `query:"-"`
	Kind   Kind   `query:"kind"`
	Class  string `query:"class"`
	Search string `query:"search"`
}

func (qf *QueryFilter) Clean() {
	qf.Kind = Kind(core.CleanString(string(qf.Kind), true /* lower */))
	qf.Class = core.CleanString(qf.Class)
	qf.Search = core.CleanString(qf.Search)
}
