package partnership

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/pamoja/core"
	"github.com/trezcool/pamoja/core/org"
)

// Partnership types.
const (
	TypeBilateral    = "bilateral"
	TypeMultilateral = "multilateral"
)

// Aggregate partnership statuses. This track records the initiator's own
// administrative decision; each participant's buy-in lives on its Member row.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusRejected  = "rejected"
)

// Per-member statuses.
const (
	MemberPending   = "pending"
	MemberConfirmed = "confirmed"
	MemberDeclined  = "declined"
)

// Roles a participating organization takes within a partnership.
const (
	RolePartner     = "partner"
	RoleSponsor     = "sponsor"
	RoleBeneficiary = "beneficiary"
)

var memberRoles = map[string]bool{RolePartner: true, RoleSponsor: true, RoleBeneficiary: true}

func ValidMemberRole(role string) bool { return memberRoles[role] }

// Partnership is a multi-party collaboration across two or more
// organizations, independent of the branch hierarchy.
type Partnership struct {
	ID        string  `json:"id"`
	Initiator org.Ref `json:"initiator"`
	Type      string  `json:"type"`
	Status    string  `json:"status"`

	ShareMembers   bool `json:"share_members"`
	ShareProjects  bool `json:"share_projects"`
	HasSponsorship bool `json:"has_sponsorship"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

func (p Partnership) Confirmed() bool { return p.Status == StatusConfirmed }

// Member is one organization's participation row. The participant alone
// decides its own Status.
type Member struct {
	ID            string  `json:"id"`
	PartnershipID string  `json:"partnership_id"`
	Participant   org.Ref `json:"participant"`
	Role          string  `json:"role"`
	Status        string  `json:"status"`

	ConfirmedAt null.Time `json:"confirmed_at"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

func (m Member) Confirmed() bool { return m.Status == MemberConfirmed }

// NewMember describes one participant in a partnership being created or
// extended.
type NewMember struct {
	Participant org.Ref `json:"participant" validate:"required"`
	Role        string  `json:"role" validate:"required,partrole"`
}

func (nm *NewMember) Validate(validate *validator.Validate) error {
	return validate.Struct(nm)
}

// NewPartnership contains information needed to create a Partnership.
// Members must not repeat the initiator; the initiator's own row is created
// implicitly, pre-confirmed.
type NewPartnership struct {
	Initiator      org.Ref     `json:"initiator" validate:"required"`
	InitiatorRole  string      `json:"initiator_role" validate:"required,partrole"`
	Members        []NewMember `json:"members" validate:"required,min=1,dive"`
	ShareMembers   bool        `json:"share_members"`
	ShareProjects  bool        `json:"share_projects"`
	HasSponsorship bool        `json:"has_sponsorship"`
}

func (np *NewPartnership) Validate(validate *validator.Validate) error {
	if err := validate.Struct(np); err != nil {
		return err
	}
	seen := map[string]bool{np.Initiator.String(): true}
	for _, m := range np.Members {
		if seen[m.Participant.String()] {
			return core.NewValidationError(nil,
				core.FieldError{Field: "members", Error: "duplicate participant"})
		}
		seen[m.Participant.String()] = true
	}
	return nil
}

var (
	partRoleTag  = "partrole"
	partRoleText = "invalid partnership role"
)

// RegisterValidators registers partnership-specific validators on the app validator.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(partRoleTag, func(fl validator.FieldLevel) bool {
		return ValidMemberRole(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, partRoleTag, partRoleText)
}
