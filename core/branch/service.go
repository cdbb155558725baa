package branch

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/pamoja/core"
	"github.com/trezcool/pamoja/core/membership"
	"github.com/trezcool/pamoja/core/org"
	"github.com/trezcool/pamoja/core/user"
)

var (
	ErrNotFound = errors.New("branch request not found")

	ErrNotSuperadmin = core.NewPermissionError("only the organization's superadmin may do this")
	ErrNotRecipient  = core.NewPermissionError("only the recipient organization may decide this request")
	ErrNotInitiator  = core.NewPermissionError("only the initiator organization may cancel this request")

	ErrKindMismatch    = core.NewValidationError(errors.New("branch links require organizations of the same kind"))
	ErrSelfLink        = core.NewValidationError(errors.New("an organization cannot be its own branch"))
	ErrParentIsBranch  = core.NewConflictError("a branch cannot recruit branches of its own")
	ErrChildHasParent  = core.NewConflictError("organization is already a branch of another organization")
	ErrAlreadyDecided  = core.NewConflictError("branch request has already been decided")
	ErrDuplicateInvite = core.NewConflictError("a pending branch request between these organizations already exists")
)

type (
	Repository interface {
		CreateRequest(ctx context.Context, r Request) (Request, error)
		GetRequest(ctx context.Context, id string) (Request, error)
		QueryRequestsByOrg(ctx context.Context, ref org.Ref) ([]Request, error)
		PendingRequestExists(ctx context.Context, parent, child org.Ref) (bool, error)
		// ConfirmRequest marks r confirmed and links child.parent_id to
		// parent in one transaction. The only path that mutates the
		// organization hierarchy.
		ConfirmRequest(ctx context.Context, r Request) (Request, error)
		RejectRequest(ctx context.Context, r Request) (Request, error)
		DeleteRequest(ctx context.Context, id string) error
		// DetachBranch clears child.parent_id.
		DetachBranch(ctx context.Context, child org.Ref) error
	}

	ServiceInterface interface {
		Invite(ctx context.Context, actor user.User, nr NewRequest) (Request, error)
		GetByID(ctx context.Context, id string) (Request, error)
		QueryByOrg(ctx context.Context, ref org.Ref) ([]Request, error)
		Confirm(ctx context.Context, actor user.User, r Request) (Request, error)
		Reject(ctx context.Context, actor user.User, r Request) (Request, error)
		Cancel(ctx context.Context, actor user.User, r Request) error
		Detach(ctx context.Context, actor user.User, child org.Ref) error
	}

	Service struct {
		repo     Repository
		orgRepo  org.Repository
		memRepo  membership.Repository
		userRepo user.Repository
		mailSvc  core.EmailService
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(
	repo Repository,
	orgRepo org.Repository,
	memRepo membership.Repository,
	userRepo user.Repository,
	mailSvc core.EmailService,
) *Service {
	return &Service{repo: repo, orgRepo: orgRepo, memRepo: memRepo, userRepo: userRepo, mailSvc: mailSvc}
}

// Invite proposes a branch link between nr.Parent and nr.Child, initiated by
// whichever side the actor controls. The actor must hold a confirmed
// superadmin membership on the initiator organization.
func (svc *Service) Invite(ctx context.Context, actor user.User, nr NewRequest) (Request, error) {
	if nr.Parent.Kind != nr.Child.Kind {
		return Request{}, ErrKindMismatch
	}
	if nr.Parent.Equal(nr.Child) {
		return Request{}, ErrSelfLink
	}
	if err := svc.checkSuperadmin(ctx, actor, nr.Initiator()); err != nil {
		return Request{}, err
	}

	parent, err := svc.orgRepo.GetOrganization(ctx, nr.Parent)
	if err != nil {
		return Request{}, err
	}
	if parent.IsBranch() { // no 2-level chains
		return Request{}, ErrParentIsBranch
	}
	child, err := svc.orgRepo.GetOrganization(ctx, nr.Child)
	if err != nil {
		return Request{}, err
	}
	if child.IsBranch() {
		return Request{}, ErrChildHasParent
	}
	if exists, err := svc.repo.PendingRequestExists(ctx, nr.Parent, nr.Child); err != nil {
		return Request{}, err
	} else if exists {
		return Request{}, ErrDuplicateInvite
	}

	r := Request{
		ID:        uuid.New().String(),
		Parent:    nr.Parent,
		Child:     nr.Child,
		Initiator: nr.Initiator(),
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	r, err = svc.repo.CreateRequest(ctx, r)
	if err != nil {
		return Request{}, err
	}
	svc.notifyAdmins(ctx, r.Recipient(), "Branch invitation received", "branch-invite", r)
	return r, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Request, error) {
	return svc.repo.GetRequest(ctx, id)
}

func (svc *Service) QueryByOrg(ctx context.Context, ref org.Ref) ([]Request, error) {
	return svc.repo.QueryRequestsByOrg(ctx, ref)
}

// Confirm accepts the request and links the child under the parent.
// Only a superadmin of the recipient organization may confirm, and only
// while the request is still pending: deciding a decided request is a
// conflict, never a silent re-fire.
func (svc *Service) Confirm(ctx context.Context, actor user.User, r Request) (Request, error) {
	if err := svc.checkSuperadmin(ctx, actor, r.Recipient()); err != nil {
		return Request{}, err
	}
	if !r.Pending() {
		return Request{}, ErrAlreadyDecided
	}

	// the child may have been linked elsewhere since this request was made
	child, err := svc.orgRepo.GetOrganization(ctx, r.Child)
	if err != nil {
		return Request{}, err
	}
	if child.IsBranch() {
		return Request{}, ErrChildHasParent
	}

	r.Status = StatusConfirmed
	r.ConfirmedAt = null.TimeFrom(time.Now().UTC())
	r, err = svc.repo.ConfirmRequest(ctx, r)
	if err != nil {
		return Request{}, err
	}
	svc.notifyAdmins(ctx, r.Initiator, "Branch invitation accepted", "branch-confirmed", r)
	return r, nil
}

// Reject declines the request; the hierarchy is untouched.
func (svc *Service) Reject(ctx context.Context, actor user.User, r Request) (Request, error) {
	if err := svc.checkSuperadmin(ctx, actor, r.Recipient()); err != nil {
		return Request{}, err
	}
	if !r.Pending() {
		return Request{}, ErrAlreadyDecided
	}
	r.Status = StatusRejected
	r, err := svc.repo.RejectRequest(ctx, r)
	if err != nil {
		return Request{}, err
	}
	svc.notifyAdmins(ctx, r.Initiator, "Branch invitation declined", "branch-rejected", r)
	return r, nil
}

// Cancel withdraws a still-pending request. Initiator superadmin only.
func (svc *Service) Cancel(ctx context.Context, actor user.User, r Request) error {
	if err := svc.checkSuperadmin(ctx, actor, r.Initiator); err != nil {
		if core.IsPermissionDenied(err) {
			return ErrNotInitiator
		}
		return err
	}
	if !r.Pending() {
		return ErrAlreadyDecided
	}
	return svc.repo.DeleteRequest(ctx, r.ID)
}

// Detach unlinks a branch from its parent. A superadmin of either side may
// detach.
func (svc *Service) Detach(ctx context.Context, actor user.User, childRef org.Ref) error {
	child, err := svc.orgRepo.GetOrganization(ctx, childRef)
	if err != nil {
		return err
	}
	if !child.IsBranch() {
		return core.NewConflictError("organization is not a branch")
	}
	parentRef := org.Ref{Kind: child.Kind, ID: child.ParentID.String}
	if err = svc.checkSuperadmin(ctx, actor, childRef); err != nil {
		if err = svc.checkSuperadmin(ctx, actor, parentRef); err != nil {
			return err
		}
	}
	return svc.repo.DetachBranch(ctx, childRef)
}

func (svc *Service) checkSuperadmin(ctx context.Context, actor user.User, ref org.Ref) error {
	m, err := svc.memRepo.GetMembershipForUser(ctx, actor.ID, ref)
	if err != nil {
		if errors.Cause(err) == membership.ErrNotFound {
			return ErrNotSuperadmin
		}
		return err
	}
	if !m.Superadmin() || !m.Confirmed() {
		return ErrNotSuperadmin
	}
	return nil
}

// notifyAdmins emails the admins of an organization, best effort; a failed
// notification never affects the underlying state transition.
func (svc *Service) notifyAdmins(ctx context.Context, ref org.Ref, subject, template string, r Request) {
	admins, err := svc.memRepo.QueryMembershipsByOrg(ctx, ref, membership.QueryFilter{Status: membership.StatusConfirmed})
	if err != nil {
		return
	}
	var to []mail.Address
	for _, m := range admins {
		if !m.Admin() {
			continue
		}
		usr, err := svc.userRepo.GetUserByID(ctx, m.UserID)
		if err != nil {
			continue
		}
		to = append(to, mail.Address{Name: usr.Name, Address: usr.Email})
	}
	if len(to) == 0 {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           to,
		Subject:      subject,
		TemplateName: template,
		TemplateData: struct{ Request Request }{r},
	})
}
