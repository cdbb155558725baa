package membership

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/pamoja/core"
	"github.com/trezcool/pamoja/core/org"
	"github.com/trezcool/pamoja/core/user"
)

var (
	ErrNotFound = errors.New("membership not found")

	// permission rejections
	ErrPermissionDenied = core.NewPermissionError("permission denied")
	ErrSuperadminLocked = core.NewPermissionError("superadmin membership cannot be removed; transfer it first")

	// invariant violations
	ErrAlreadyMember    = core.NewConflictError("user is already a member of this organization")
	ErrSuperadminExists = core.NewConflictError("organization already has a superadmin")
)

type (
	Repository interface {
		CreateMembership(ctx context.Context, m Membership) (Membership, error)
		GetMembership(ctx context.Context, id string) (Membership, error)
		GetMembershipForUser(ctx context.Context, userID string, ref org.Ref) (Membership, error)
		QueryMembershipsByOrg(ctx context.Context, ref org.Ref, filter QueryFilter) ([]Membership, error)
		QueryMembershipsByUser(ctx context.Context, userID string) ([]Membership, error)
		QueryPendingSuperadminMemberships(ctx context.Context, userID string) ([]Membership, error)
		SuperadminExists(ctx context.Context, ref org.Ref, excluded ...Membership) (bool, error)
		SetMembershipStatus(ctx context.Context, m Membership, status string) (Membership, error)
		SetMembershipRole(ctx context.Context, m Membership, role string) (Membership, error)
		// TransferSuperadminRole atomically demotes `from` to admin and
		// promotes `to` to superadmin; it is the only sanctioned way to
		// move the superadmin seat.
		TransferSuperadminRole(ctx context.Context, from, to Membership) error
		// ConfirmOwnerMembership confirms m and its organization in one
		// transaction (owner email-confirmation cascade).
		ConfirmOwnerMembership(ctx context.Context, m Membership) (Membership, error)
		DeleteMembership(ctx context.Context, id string) error
	}

	ServiceInterface interface {
		Create(ctx context.Context, nm NewMembership) (Membership, error)
		GetByID(ctx context.Context, id string) (Membership, error)
		For(ctx context.Context, userID string, ref org.Ref) (Membership, error)
		QueryByOrg(ctx context.Context, ref org.Ref, filter QueryFilter) ([]Membership, error)
		QueryByUser(ctx context.Context, userID string) ([]Membership, error)
		Confirm(ctx context.Context, actor, target Membership) (Membership, error)
		Unconfirm(ctx context.Context, actor, target Membership) (Membership, error)
		UpdateRole(ctx context.Context, actor, target Membership, newRole string) (Membership, error)
		TransferSuperadmin(ctx context.Context, actor, target Membership) error
		Destroy(ctx context.Context, actor, target Membership) error
		ConfirmAccount(ctx context.Context, usr user.User) error
	}

	Service struct {
		repo     Repository
		userRepo user.Repository
		mailSvc  core.EmailService
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, userRepo user.Repository, mailSvc core.EmailService) *Service {
	return &Service{repo: repo, userRepo: userRepo, mailSvc: mailSvc}
}

// Create adds a pending Membership for a user in an organization.
// At most one membership may exist per (user, organization) pair, and at most
// one superadmin per organization; both are re-checked here and backed by
// unique indexes in storage.
func (svc *Service) Create(ctx context.Context, nm NewMembership) (Membership, error) {
	if _, err := svc.repo.GetMembershipForUser(ctx, nm.UserID, nm.Org); err == nil {
		return Membership{}, ErrAlreadyMember
	} else if errors.Cause(err) != ErrNotFound {
		return Membership{}, err
	}

	if nm.Role == RoleSuperadmin {
		exists, err := svc.repo.SuperadminExists(ctx, nm.Org)
		if err != nil {
			return Membership{}, err
		}
		if exists {
			return Membership{}, ErrSuperadminExists
		}
	}

	now := time.Now().UTC()
	m := Membership{
		ID:        uuid.New().String(),
		UserID:    nm.UserID,
		Org:       nm.Org,
		Role:      nm.Role,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m, err := svc.repo.CreateMembership(ctx, m)
	if err != nil {
		return Membership{}, err
	}
	svc.notify(ctx, m, "You have been invited", "membership-invite")
	return m, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Membership, error) {
	return svc.repo.GetMembership(ctx, id)
}

// For returns the actor's membership in the given organization, if any.
func (svc *Service) For(ctx context.Context, userID string, ref org.Ref) (Membership, error) {
	return svc.repo.GetMembershipForUser(ctx, userID, ref)
}

func (svc *Service) QueryByOrg(ctx context.Context, ref org.Ref, filter QueryFilter) ([]Membership, error) {
	return svc.repo.QueryMembershipsByOrg(ctx, ref, filter)
}

func (svc *Service) QueryByUser(ctx context.Context, userID string) ([]Membership, error) {
	return svc.repo.QueryMembershipsByUser(ctx, userID)
}

// Confirm marks target confirmed. Confirming an already-confirmed membership
// is a no-op, not an error.
func (svc *Service) Confirm(ctx context.Context, actor, target Membership) (Membership, error) {
	if err := checkManageRights(actor, target); err != nil {
		return Membership{}, err
	}
	if target.Confirmed() {
		return target, nil
	}
	m, err := svc.repo.SetMembershipStatus(ctx, target, StatusConfirmed)
	if err != nil {
		return Membership{}, err
	}
	svc.notify(ctx, m, "Your membership has been confirmed", "membership-confirmed")
	return m, nil
}

// Unconfirm moves target back to pending, revoking all its capabilities.
// Idempotent. The superadmin seat cannot be unconfirmed; it must be
// transferred first.
func (svc *Service) Unconfirm(ctx context.Context, actor, target Membership) (Membership, error) {
	if err := checkManageRights(actor, target); err != nil {
		return Membership{}, err
	}
	if target.Superadmin() {
		return Membership{}, ErrSuperadminLocked
	}
	if !target.Confirmed() {
		return target, nil
	}
	return svc.repo.SetMembershipStatus(ctx, target, StatusPending)
}

// UpdateRole changes target's role.
// Granting admin or superadmin requires a superadmin actor; granting
// superadmin also conflicts while the seat is taken. A superadmin target
// cannot be demoted here; use TransferSuperadmin.
func (svc *Service) UpdateRole(ctx context.Context, actor, target Membership, newRole string) (Membership, error) {
	if err := checkManageRights(actor, target); err != nil {
		return Membership{}, err
	}
	if newRole == target.Role {
		return target, nil
	}
	if target.Superadmin() {
		return Membership{}, ErrSuperadminLocked
	}
	if RolePriority(newRole) >= RolePriority(RoleAdmin) && !actor.Superadmin() {
		return Membership{}, ErrPermissionDenied
	}
	if newRole == RoleSuperadmin {
		exists, err := svc.repo.SuperadminExists(ctx, target.Org, target)
		if err != nil {
			return Membership{}, err
		}
		if exists {
			return Membership{}, ErrSuperadminExists
		}
	}
	return svc.repo.SetMembershipRole(ctx, target, newRole)
}

// TransferSuperadmin moves the superadmin seat from actor to target (both in
// the same organization), demoting actor to admin. Atomic.
func (svc *Service) TransferSuperadmin(ctx context.Context, actor, target Membership) error {
	if !actor.Superadmin() || !actor.Confirmed() {
		return ErrPermissionDenied
	}
	if !actor.Org.Equal(target.Org) || actor.ID == target.ID {
		return ErrPermissionDenied
	}
	if !target.Confirmed() {
		return core.NewConflictError("superadmin seat cannot be transferred to a pending membership")
	}
	return svc.repo.TransferSuperadminRole(ctx, actor, target)
}

// Destroy removes a membership row.
// Rules:
//   - a superadmin membership can never be destroyed directly;
//   - users may remove their own (non-superadmin) membership;
//   - otherwise the actor needs confirmed admin rank in the same org, and
//     only a superadmin may remove another admin.
func (svc *Service) Destroy(ctx context.Context, actor, target Membership) error {
	if target.Superadmin() {
		return ErrSuperadminLocked
	}
	if actor.ID == target.ID { // self-removal
		return svc.repo.DeleteMembership(ctx, target.ID)
	}
	if err := checkManageRights(actor, target); err != nil {
		return err
	}
	if target.Admin() && !actor.Superadmin() {
		return ErrPermissionDenied
	}
	return svc.repo.DeleteMembership(ctx, target.ID)
}

// ConfirmAccount runs the owner email-confirmation cascade: every pending
// superadmin membership of usr is confirmed together with its organization.
func (svc *Service) ConfirmAccount(ctx context.Context, usr user.User) error {
	pending, err := svc.repo.QueryPendingSuperadminMemberships(ctx, usr.ID)
	if err != nil {
		return err
	}
	for _, m := range pending {
		if _, err = svc.repo.ConfirmOwnerMembership(ctx, m); err != nil {
			return errors.Wrapf(err, "confirming owner membership %s", m.ID)
		}
	}
	return nil
}

func checkManageRights(actor, target Membership) error {
	if !actor.CanManageMembers() || !actor.Org.Equal(target.Org) {
		return ErrPermissionDenied
	}
	return nil
}

// notify emails the membership's user, best effort.
func (svc *Service) notify(ctx context.Context, m Membership, subject, template string) {
	usr, err := svc.userRepo.GetUserByID(ctx, m.UserID)
	if err != nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      subject,
		TemplateName: template,
		TemplateData: struct {
			User       user.User
			Membership Membership
		}{usr, m},
	})
}
