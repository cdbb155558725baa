package partnership

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
	ErrNotFound       = errors.New("partnership not found")
	ErrMemberNotFound = errors.New("partnership member not found")

	ErrNotInitiator   = core.NewPermissionError("only the initiator organization's superadmin may do this")
	ErrNotParticipant = core.NewPermissionError("only the participant organization may decide its own membership")

	ErrDuplicateMember = core.NewConflictError("organization already participates in this partnership")
)

type (
	Repository interface {
		// CreatePartnership persists p and all its member rows in one
		// transaction.
		CreatePartnership(ctx context.Context, p Partnership, members []Member) (Partnership, error)
		GetPartnership(ctx context.Context, id string) (Partnership, error)
		QueryPartnershipsByOrg(ctx context.Context, ref org.Ref) ([]Partnership, error)
		// QueryActivePartnershipsByOrg returns partnerships where ref's own
		// member row is confirmed AND the aggregate status is confirmed.
		QueryActivePartnershipsByOrg(ctx context.Context, ref org.Ref) ([]Partnership, error)
		QueryMembers(ctx context.Context, partnershipID string) ([]Member, error)
		GetMember(ctx context.Context, id string) (Member, error)
		CreateMember(ctx context.Context, m Member) (Member, error)
		SetMemberStatus(ctx context.Context, m Member, status string) (Member, error)
		SetPartnershipStatus(ctx context.Context, p Partnership, status string) (Partnership, error)
		DeletePartnership(ctx context.Context, id string) error
	}

	ServiceInterface interface {
		Create(ctx context.Context, actor user.User, np NewPartnership) (Partnership, error)
		GetByID(ctx context.Context, id string) (Partnership, error)
		QueryByOrg(ctx context.Context, ref org.Ref) ([]Partnership, error)
		ActiveForOrg(ctx context.Context, ref org.Ref) ([]Partnership, error)
		Members(ctx context.Context, p Partnership) ([]Member, error)
		Member(ctx context.Context, id string) (Member, error)
		AddMember(ctx context.Context, actor user.User, p Partnership, nm NewMember) (Member, error)
		ConfirmMember(ctx context.Context, actor user.User, m Member) (Member, error)
		DeclineMember(ctx context.Context, actor user.User, m Member) (Member, error)
		ConfirmPartnership(ctx context.Context, actor user.User, p Partnership) (Partnership, error)
		RejectPartnership(ctx context.Context, actor user.User, p Partnership) (Partnership, error)
		Destroy(ctx context.Context, actor user.User, p Partnership) error
	}

	Service struct {
		repo     Repository
		memRepo  membership.Repository
		userRepo user.Repository
		mailSvc  core.EmailService
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, memRepo membership.Repository, userRepo user.Repository, mailSvc core.EmailService) *Service {
	return &Service{repo: repo, memRepo: memRepo, userRepo: userRepo, mailSvc: mailSvc}
}

// Create opens a partnership. The actor must be a confirmed superadmin of
// the initiator; the initiator's own member row is created pre-confirmed,
// every other participant starts pending.
func (svc *Service) Create(ctx context.Context, actor user.User, np NewPartnership) (Partnership, error) {
	if err := svc.checkSuperadmin(ctx, actor, np.Initiator); err != nil {
		return Partnership{}, err
	}

	now := time.Now().UTC()
	ptype := TypeMultilateral
	if len(np.Members) == 1 {
		ptype = TypeBilateral
	}
	p := Partnership{
		ID:             uuid.New().String(),
		Initiator:      np.Initiator,
		Type:           ptype,
		Status:         StatusPending,
		ShareMembers:   np.ShareMembers,
		ShareProjects:  np.ShareProjects,
		HasSponsorship: np.HasSponsorship,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	members := make([]Member, 0, len(np.Members)+1)
	members = append(members, Member{
		ID:            uuid.New().String(),
		PartnershipID: p.ID,
		Participant:   np.Initiator,
		Role:          np.InitiatorRole,
		Status:        MemberConfirmed,
		ConfirmedAt:   null.TimeFrom(now),
		CreatedAt:     now,
	})
	for _, nm := range np.Members {
		members = append(members, Member{
			ID:            uuid.New().String(),
			PartnershipID: p.ID,
			Participant:   nm.Participant,
			Role:          nm.Role,
			Status:        MemberPending,
			CreatedAt:     now,
		})
	}

	p, err := svc.repo.CreatePartnership(ctx, p, members)
	if err != nil {
		return Partnership{}, err
	}
	for _, m := range members[1:] {
		svc.notifyAdmins(ctx, m.Participant, "Partnership invitation received", "partnership-invite", p)
	}
	return p, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Partnership, error) {
	return svc.repo.GetPartnership(ctx, id)
}

func (svc *Service) QueryByOrg(ctx context.Context, ref org.Ref) ([]Partnership, error) {
	return svc.repo.QueryPartnershipsByOrg(ctx, ref)
}

// ActiveForOrg returns the partnerships that are live for ref: its own
// member row confirmed and the aggregate status confirmed.
func (svc *Service) ActiveForOrg(ctx context.Context, ref org.Ref) ([]Partnership, error) {
	return svc.repo.QueryActivePartnershipsByOrg(ctx, ref)
}

func (svc *Service) Members(ctx context.Context, p Partnership) ([]Member, error) {
	return svc.repo.QueryMembers(ctx, p.ID)
}

func (svc *Service) Member(ctx context.Context, id string) (Member, error) {
	return svc.repo.GetMember(ctx, id)
}

// AddMember appends a new pending participant. Initiator superadmin only.
func (svc *Service) AddMember(ctx context.Context, actor user.User, p Partnership, nm NewMember) (Member, error) {
	if err := svc.checkSuperadmin(ctx, actor, p.Initiator); err != nil {
		if core.IsPermissionDenied(err) {
			return Member{}, ErrNotInitiator
		}
		return Member{}, err
	}
	existing, err := svc.repo.QueryMembers(ctx, p.ID)
	if err != nil {
		return Member{}, err
	}
	for _, m := range existing {
		if m.Participant.Equal(nm.Participant) {
			return Member{}, ErrDuplicateMember
		}
	}
	m := Member{
		ID:            uuid.New().String(),
		PartnershipID: p.ID,
		Participant:   nm.Participant,
		Role:          nm.Role,
		Status:        MemberPending,
		CreatedAt:     time.Now().UTC(),
	}
	m, err = svc.repo.CreateMember(ctx, m)
	if err != nil {
		return Member{}, err
	}
	svc.notifyAdmins(ctx, m.Participant, "Partnership invitation received", "partnership-invite", p)
	return m, nil
}

// ConfirmMember records the participant's buy-in. Only a confirmed
// superadmin of the participant organization may confirm, and only that
// row's status moves; the aggregate track is untouched. Idempotent.
func (svc *Service) ConfirmMember(ctx context.Context, actor user.User, m Member) (Member, error) {
	if err := svc.checkSuperadmin(ctx, actor, m.Participant); err != nil {
		if core.IsPermissionDenied(err) {
			return Member{}, ErrNotParticipant
		}
		return Member{}, err
	}
	if m.Confirmed() {
		return m, nil
	}
	return svc.repo.SetMemberStatus(ctx, m, MemberConfirmed)
}

// DeclineMember records the participant's refusal. Idempotent.
func (svc *Service) DeclineMember(ctx context.Context, actor user.User, m Member) (Member, error) {
	if err := svc.checkSuperadmin(ctx, actor, m.Participant); err != nil {
		if core.IsPermissionDenied(err) {
			return Member{}, ErrNotParticipant
		}
		return Member{}, err
	}
	if m.Status == MemberDeclined {
		return m, nil
	}
	return svc.repo.SetMemberStatus(ctx, m, MemberDeclined)
}

// ConfirmPartnership sets the aggregate (initiator-decision) track.
func (svc *Service) ConfirmPartnership(ctx context.Context, actor user.User, p Partnership) (Partnership, error) {
	if err := svc.checkSuperadmin(ctx, actor, p.Initiator); err != nil {
		if core.IsPermissionDenied(err) {
			return Partnership{}, ErrNotInitiator
		}
		return Partnership{}, err
	}
	if p.Confirmed() {
		return p, nil
	}
	return svc.repo.SetPartnershipStatus(ctx, p, StatusConfirmed)
}

func (svc *Service) RejectPartnership(ctx context.Context, actor user.User, p Partnership) (Partnership, error) {
	if err := svc.checkSuperadmin(ctx, actor, p.Initiator); err != nil {
		if core.IsPermissionDenied(err) {
			return Partnership{}, ErrNotInitiator
		}
		return Partnership{}, err
	}
	if p.Status == StatusRejected {
		return p, nil
	}
	return svc.repo.SetPartnershipStatus(ctx, p, StatusRejected)
}

// Destroy removes the partnership and all member rows, regardless of member
// confirmation states. Initiator superadmin only.
func (svc *Service) Destroy(ctx context.Context, actor user.User, p Partnership) error {
	if err := svc.checkSuperadmin(ctx, actor, p.Initiator); err != nil {
		if core.IsPermissionDenied(err) {
			return ErrNotInitiator
		}
		return err
	}
	return svc.repo.DeletePartnership(ctx, p.ID)
}

func (svc *Service) checkSuperadmin(ctx context.Context, actor user.User, ref org.Ref) error {
	m, err := svc.memRepo.GetMembershipForUser(ctx, actor.ID, ref)
	if err != nil {
		if errors.Cause(err) == membership.ErrNotFound {
			return core.NewPermissionError("only the organization's superadmin may do this")
		}
		return err
	}
	if !m.Superadmin() || !m.Confirmed() {
		return core.NewPermissionError("only the organization's superadmin may do this")
	}
	return nil
}

// notifyAdmins emails an organization's admins, best effort.
func (svc *Service) notifyAdmins(ctx context.Context, ref org.Ref, subject, template string, p Partnership) {
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
		TemplateData: struct{ Partnership Partnership }{p},
	})
}
