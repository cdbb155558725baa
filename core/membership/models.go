package membership

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/pamoja/core"
	"github.com/trezcool/pamoja/core/org"
)

// Roles
const (
	RoleMember      = "member"
	RoleIntervenant = "intervenant"
	RoleReferent    = "referent"
	RoleAdmin       = "admin"
	RoleSuperadmin  = "superadmin"
)

// Membership statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
)

var (
	AllRoles = []string{RoleMember, RoleIntervenant, RoleReferent, RoleAdmin, RoleSuperadmin}

	rolePriorities = map[string]int{
		RoleSuperadmin: 30,
		RoleAdmin:      20,

		// intervenant & referent are parallel specializations, both below admin
		RoleReferent:    11,
		RoleIntervenant: 10,

		RoleMember: 1,
	}

	// per-capability allow-lists; other components treat these as ground
	// truth and never re-derive role ranking ad hoc
	manageMembersRoles      = map[string]bool{RoleAdmin: true, RoleSuperadmin: true}
	manageProjectsRoles     = map[string]bool{RoleReferent: true, RoleIntervenant: true, RoleAdmin: true, RoleSuperadmin: true}
	assignBadgesRoles       = map[string]bool{RoleReferent: true, RoleAdmin: true, RoleSuperadmin: true}
	managePartnershipsRoles = map[string]bool{RoleAdmin: true, RoleSuperadmin: true}
	manageBranchesRoles     = map[string]bool{RoleAdmin: true, RoleSuperadmin: true}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

func ValidRole(role string) bool {
	_, ok := rolePriorities[role]
	return ok
}

// Membership is the join row granting a User a role and status within one
// Organization. (UserID, Org) is unique.
type Membership struct {
	ID     string  `json:"id"`
	UserID string  `json:"user_id"`
	Org    org.Ref `json:"org"`
	Role   string  `json:"role"`
	Status string  `json:"status"`

	ConfirmedAt null.Time `json:"confirmed_at"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

func (m Membership) Confirmed() bool  { return m.Status == StatusConfirmed }
func (m Membership) Admin() bool      { return m.Role == RoleAdmin || m.Role == RoleSuperadmin }
func (m Membership) Superadmin() bool { return m.Role == RoleSuperadmin }

// Capability predicates. All of them are false while the membership is still
// pending: a pending row grants no capability regardless of its stored role.

func (m Membership) CanManageMembers() bool      { return m.Confirmed() && manageMembersRoles[m.Role] }
func (m Membership) CanManageProjects() bool     { return m.Confirmed() && manageProjectsRoles[m.Role] }
func (m Membership) CanAssignBadges() bool       { return m.Confirmed() && assignBadgesRoles[m.Role] }
func (m Membership) CanManagePartnerships() bool {
	return m.Confirmed() && managePartnershipsRoles[m.Role]
}
func (m Membership) CanManageBranches() bool { return m.Confirmed() && manageBranchesRoles[m.Role] }

// NewMembership contains information needed to create a new Membership.
// Memberships are created pending; they are confirmed by an admin of the
// organization, or automatically for the owner superadmin on email
// confirmation.
type NewMembership struct {
	UserID string  `json:"user_id" validate:"required"`
	Org    org.Ref `json:"org" validate:"required"`
	Role   string  `json:"role" validate:"required,memrole"`
}

func (nm *NewMembership) Validate(validate *validator.Validate) error {
	return validate.Struct(nm)
}

// UpdateMembershipRole carries a role change request.
type UpdateMembershipRole struct {
	Role string `json:"role" validate:"required,memrole"`
}

func (um *UpdateMembershipRole) Validate(validate *validator.Validate) error {
	return validate.Struct(um)
}

type QueryFilter struct {
	Role   string `query:"role"`
	Status string `query:"status"`
}

func (qf *QueryFilter) IsEmpty() bool { return qf.Role == "" && qf.Status == "" }

var (
	memRoleTag  = "memrole"
	memRoleText = "invalid membership role"
)

// RegisterValidators registers membership-specific validators on the app validator.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(memRoleTag, func(fl validator.FieldLevel) bool {
		return ValidRole(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, memRoleTag, memRoleText)
}
