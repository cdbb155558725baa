package branch_test

import (
	"context"
	"testing"

	"github.com/trezcool/pamoja/core"
	"github.com/trezcool/pamoja/core/branch"
	"github.com/trezcool/pamoja/core/membership"
	"github.com/trezcool/pamoja/core/org"
	"github.com/trezcool/pamoja/core/user"
	emailsvc "github.com/trezcool/pamoja/services/email"
	inmemdb "github.com/trezcool/pamoja/storage/database/inmem"
	testutil "github.com/trezcool/pamoja/tests"
)

type fixture struct {
	usrRepo user.Repository
	orgRepo org.Repository
	memRepo membership.Repository
	svc     *branch.Service

	parent, child org.Organization
	parentBoss    user.User
	childBoss     user.User
}

// newFixture seeds two confirmed schools, each with its own confirmed
// superadmin.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	f := &fixture{
		usrRepo: inmemdb.NewUserRepository(db),
		orgRepo: inmemdb.NewOrgRepository(db),
		memRepo: inmemdb.NewMembershipRepository(db),
	}
	f.svc = branch.NewService(
		inmemdb.NewBranchRepository(db), f.orgRepo, f.memRepo, f.usrRepo, emailsvc.NewConsoleServiceMock())

	f.parent = testutil.CreateOrg(t, f.orgRepo, org.KindSchool, "Lycée Principal", true)
	f.child = testutil.CreateOrg(t, f.orgRepo, org.KindSchool, "Annexe Nord", true)
	f.parentBoss = testutil.CreateUser(t, f.usrRepo, "P Boss", "pboss1", "pboss@test.test", "", true)
	f.childBoss = testutil.CreateUser(t, f.usrRepo, "C Boss", "cboss1", "cboss@test.test", "", true)
	testutil.CreateMembership(t, f.memRepo, f.parentBoss, f.parent, membership.RoleSuperadmin, true)
	testutil.CreateMembership(t, f.memRepo, f.childBoss, f.child, membership.RoleSuperadmin, true)
	return f
}

func (f *fixture) invite(t *testing.T) branch.Request {
	t.Helper()
	r, err := f.svc.Invite(context.Background(), f.parentBoss, branch.NewRequest{
		Parent: f.parent.Ref(), Child: f.child.Ref(), AsParent: true})
	if err != nil {
		t.Fatalf("Invite() failed: %v", err)
	}
	return r
}

func TestInvite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.invite(t)
	if r.Status != branch.StatusPending {
		t.Errorf("status = %q, want pending", r.Status)
	}
	if !r.Initiator.Equal(f.parent.Ref()) || !r.Recipient().Equal(f.child.Ref()) {
		t.Error("initiator/recipient sides are wrong")
	}
	if n := len(emailsvc.SentMessages); n == 0 || emailsvc.SentMessages[n-1].Subject != "Branch invitation received" {
		t.Error("recipient admins were not notified")
	}

	// duplicate while pending
	if _, err := f.svc.Invite(ctx, f.parentBoss, branch.NewRequest{
		Parent: f.parent.Ref(), Child: f.child.Ref(), AsParent: true}); err != branch.ErrDuplicateInvite {
		t.Errorf("duplicate invite error = %v, want ErrDuplicateInvite", err)
	}
}

func TestInviteGates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	company := testutil.CreateOrg(t, f.orgRepo, org.KindCompany, "Acme", true)

	tests := []struct {
		name  string
		actor user.User
		nr    branch.NewRequest
		err   error
	}{
		{
			name:  "kind mismatch",
			actor: f.parentBoss,
			nr:    branch.NewRequest{Parent: f.parent.Ref(), Child: company.Ref(), AsParent: true},
			err:   branch.ErrKindMismatch,
		},
		{
			name:  "self link",
			actor: f.parentBoss,
			nr:    branch.NewRequest{Parent: f.parent.Ref(), Child: f.parent.Ref(), AsParent: true},
			err:   branch.ErrSelfLink,
		},
		{
			name:  "initiator is not the actor's org",
			actor: f.parentBoss,
			nr:    branch.NewRequest{Parent: f.parent.Ref(), Child: f.child.Ref(), AsParent: false},
			err:   branch.ErrNotSuperadmin,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Invite(ctx, tt.actor, tt.nr); err != tt.err {
				t.Errorf("Invite() error = %v, want %v", err, tt.err)
			}
		})
	}

	// a plain member of the initiator side cannot invite either
	member := testutil.CreateUser(t, f.usrRepo, "M", "mem001", "mm@test.test", "", true)
	testutil.CreateMembership(t, f.memRepo, member, f.parent, membership.RoleAdmin, true)
	if _, err := f.svc.Invite(ctx, member, branch.NewRequest{
		Parent: f.parent.Ref(), Child: f.child.Ref(), AsParent: true}); err != branch.ErrNotSuperadmin {
		t.Errorf("admin invite error = %v, want ErrNotSuperadmin", err)
	}
}

func TestInviteHierarchyGates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// link child under parent first
	r := f.invite(t)
	if _, err := f.svc.Confirm(ctx, f.childBoss, r); err != nil {
		t.Fatalf("Confirm() failed: %v", err)
	}

	// the branch cannot recruit branches of its own
	leaf := testutil.CreateOrg(t, f.orgRepo, org.KindSchool, "Annexe Sud", true)
	if _, err := f.svc.Invite(ctx, f.childBoss, branch.NewRequest{
		Parent: f.child.Ref(), Child: leaf.Ref(), AsParent: true}); err != branch.ErrParentIsBranch {
		t.Errorf("branch-as-parent error = %v, want ErrParentIsBranch", err)
	}

	// a linked org cannot be recruited elsewhere
	other := testutil.CreateOrg(t, f.orgRepo, org.KindSchool, "Lycée B", true)
	otherBoss := testutil.CreateUser(t, f.usrRepo, "O", "oboss1", "ob@test.test", "", true)
	testutil.CreateMembership(t, f.memRepo, otherBoss, other, membership.RoleSuperadmin, true)
	if _, err := f.svc.Invite(ctx, otherBoss, branch.NewRequest{
		Parent: other.Ref(), Child: f.child.Ref(), AsParent: true}); err != branch.ErrChildHasParent {
		t.Errorf("already-linked child error = %v, want ErrChildHasParent", err)
	}
}

func TestConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.invite(t)

	// the initiator side cannot decide its own request
	if _, err := f.svc.Confirm(ctx, f.parentBoss, r); err != branch.ErrNotSuperadmin {
		t.Errorf("initiator confirm error = %v, want ErrNotSuperadmin", err)
	}

	r, err := f.svc.Confirm(ctx, f.childBoss, r)
	if err != nil {
		t.Fatalf("Confirm() failed: %v", err)
	}
	if r.Status != branch.StatusConfirmed || !r.ConfirmedAt.Valid {
		t.Error("Confirm() must set status and ConfirmedAt")
	}

	child, err := f.orgRepo.GetOrganization(ctx, f.child.Ref())
	if err != nil {
		t.Fatalf("GetOrganization() failed: %v", err)
	}
	if !child.IsBranch() || child.ParentID.String != f.parent.ID {
		t.Error("confirming must link the child under the parent")
	}

	// deciding a decided request conflicts
	if _, err = f.svc.Confirm(ctx, f.childBoss, r); err != branch.ErrAlreadyDecided {
		t.Errorf("re-confirm error = %v, want ErrAlreadyDecided", err)
	}
	if _, err = f.svc.Reject(ctx, f.childBoss, r); err != branch.ErrAlreadyDecided {
		t.Errorf("reject-after-confirm error = %v, want ErrAlreadyDecided", err)
	}
}

func TestConfirmChildLinkedElsewhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.invite(t)

	// meanwhile the child joins another parent
	other := testutil.CreateOrg(t, f.orgRepo, org.KindSchool, "Lycée C", true)
	otherBoss := testutil.CreateUser(t, f.usrRepo, "O", "oboss2", "ob2@test.test", "", true)
	testutil.CreateMembership(t, f.memRepo, otherBoss, other, membership.RoleSuperadmin, true)
	r2, err := f.svc.Invite(ctx, f.childBoss, branch.NewRequest{Parent: other.Ref(), Child: f.child.Ref()})
	if err != nil {
		t.Fatalf("Invite() failed: %v", err)
	}
	if _, err = f.svc.Confirm(ctx, otherBoss, r2); err != nil {
		t.Fatalf("Confirm() failed: %v", err)
	}

	if _, err = f.svc.Confirm(ctx, f.childBoss, r); err != branch.ErrChildHasParent {
		t.Errorf("stale request confirm error = %v, want ErrChildHasParent", err)
	}
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.invite(t)

	r, err := f.svc.Reject(ctx, f.childBoss, r)
	if err != nil {
		t.Fatalf("Reject() failed: %v", err)
	}
	if r.Status != branch.StatusRejected {
		t.Errorf("status = %q, want rejected", r.Status)
	}
	if n := len(emailsvc.SentMessages); n == 0 || emailsvc.SentMessages[n-1].Subject != "Branch invitation declined" {
		t.Error("initiator admins were not notified")
	}

	child, err := f.orgRepo.GetOrganization(ctx, f.child.Ref())
	if err != nil {
		t.Fatalf("GetOrganization() failed: %v", err)
	}
	if child.IsBranch() {
		t.Error("rejecting must leave the hierarchy untouched")
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.invite(t)

	// recipient cannot cancel
	if err := f.svc.Cancel(ctx, f.childBoss, r); err != branch.ErrNotInitiator {
		t.Errorf("recipient cancel error = %v, want ErrNotInitiator", err)
	}

	if err := f.svc.Cancel(ctx, f.parentBoss, r); err != nil {
		t.Fatalf("Cancel() failed: %v", err)
	}
	if _, err := f.svc.GetByID(ctx, r.ID); err != branch.ErrNotFound {
		t.Errorf("cancelled request lookup error = %v, want ErrNotFound", err)
	}

	// a decided request can no longer be cancelled
	r2 := f.invite(t)
	if _, err := f.svc.Reject(ctx, f.childBoss, r2); err != nil {
		t.Fatalf("Reject() failed: %v", err)
	}
	if err := f.svc.Cancel(ctx, f.parentBoss, r2); err != branch.ErrAlreadyDecided {
		t.Errorf("decided cancel error = %v, want ErrAlreadyDecided", err)
	}
}

func TestDetach(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// not a branch yet
	if err := f.svc.Detach(ctx, f.parentBoss, f.child.Ref()); !core.IsConflict(err) {
		t.Errorf("detach non-branch error = %v, want conflict", err)
	}

	r := f.invite(t)
	if _, err := f.svc.Confirm(ctx, f.childBoss, r); err != nil {
		t.Fatalf("Confirm() failed: %v", err)
	}

	// outsiders may not detach
	outsider := testutil.CreateUser(t, f.usrRepo, "X", "outsid", "x@test.test", "", true)
	if err := f.svc.Detach(ctx, outsider, f.child.Ref()); err != branch.ErrNotSuperadmin {
		t.Errorf("outsider detach error = %v, want ErrNotSuperadmin", err)
	}

	// either side's superadmin may
	if err := f.svc.Detach(ctx, f.parentBoss, f.child.Ref()); err != nil {
		t.Fatalf("Detach() failed: %v", err)
	}
	child, err := f.orgRepo.GetOrganization(ctx, f.child.Ref())
	if err != nil {
		t.Fatalf("GetOrganization() failed: %v", err)
	}
	if child.IsBranch() {
		t.Error("Detach() must clear the parent link")
	}
}
