package org

import (
	"fmt"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/pamoja/core"
)

// Organization kinds. Schools and companies share one shape; Kind is the
// single polymorphic tag carried by every row referencing an organization.
type Kind string

const (
	KindSchool  Kind = "school"
	KindCompany Kind = "company"
)

var AllKinds = []Kind{KindSchool, KindCompany}

func (k Kind) Valid() bool { return k == KindSchool || k == KindCompany }

// Organization statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
)

// Ref is the polymorphic handle to an Organization, stored by memberships,
// branch requests and partnership members. All kind dispatch goes through
// Ref / Service.Resolve; business code never switches on Kind directly.
type Ref struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

func (r Ref) IsZero() bool     { return r.Kind == "" && r.ID == "" }
func (r Ref) Equal(o Ref) bool { return r.Kind == o.Kind && r.ID == o.ID }
func (r Ref) String() string   { return fmt.Sprintf("%s:%s", r.Kind, r.ID) }

type Organization struct {
	ID        string `json:"id"`
	Kind      Kind   `json:"kind"`
	Name      string `json:"name"`
	Certified bool   `json:"certified"`
	Status    string `json:"status"`

	// ParentID links a branch under its main organization (same Kind).
	// A branch cannot itself have branches.
	ParentID null.String `json:"parent_id"`

	// ShareMembersWithBranches controls whether branch members inherit
	// main-organization visibility. Company-only; always false for schools.
	ShareMembersWithBranches bool `json:"share_members_with_branches"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

func (o Organization) Ref() Ref        { return Ref{Kind: o.Kind, ID: o.ID} }
func (o Organization) IsBranch() bool  { return o.ParentID.Valid }
func (o Organization) Confirmed() bool { return o.Status == StatusConfirmed }

func (o Organization) SharesMembersWithBranches() bool {
	return o.Kind == KindCompany && o.ShareMembersWithBranches
}

// NewOrganization contains information needed to register a new Organization.
type NewOrganization struct {
	Kind                     Kind   `json:"kind" validate:"required,orgkind"`
	Name                     string `json:"name" validate:"required"`
	ShareMembersWithBranches bool   `json:"share_members_with_branches"`
}

func (no *NewOrganization) Validate(validate *validator.Validate) error {
	no.Name = core.CleanString(no.Name)
	return validate.Struct(no)
}

// UpdateOrganization defines what may be modified on an existing Organization.
type UpdateOrganization struct {
	Name                     string `json:"name"`
	Certified                *bool  `json:"certified"`
	ShareMembersWithBranches *bool  `json:"share_members_with_branches"`
}

func (uo *UpdateOrganization) Validate(validate *validator.Validate, orig Organization) error {
	if name := core.CleanString(uo.Name); name != "" {
		uo.Name = name
	} else {
		uo.Name = orig.Name
	}
	return validate.Struct(uo)
}

type QueryFilter struct {
	Search string `query:"search"`
	Kind   Kind   `query:"kind"`
	Status string `query:"status"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Kind == "" && qf.Status == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

var (
	orgKindTag  = "orgkind"
	orgKindText = "invalid organization kind"
)

// RegisterValidators registers org-specific validators on the app validator.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(orgKindTag, func(fl validator.FieldLevel) bool {
		return Kind(fl.Field().String()).Valid()
	})
	core.RegisterCustomTranslation(validate, translator, orgKindTag, orgKindText)
}
