package access_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/pamoja/core/access"
	"github.com/trezcool/pamoja/core/membership"
	"github.com/trezcool/pamoja/core/org"
	"github.com/trezcool/pamoja/core/partnership"
	"github.com/trezcool/pamoja/core/user"
	inmemdb "github.com/trezcool/pamoja/storage/database/inmem"
	testutil "github.com/trezcool/pamoja/tests"
)

func TestPolicyAllowed(t *testing.T) {
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	usrRepo := inmemdb.NewUserRepository(db)
	orgRepo := inmemdb.NewOrgRepository(db)
	memRepo := inmemdb.NewMembershipRepository(db)
	policy := access.NewPolicy(memRepo)
	ctx := context.Background()

	o := testutil.CreateOrg(t, orgRepo, org.KindSchool, "Lycée A", true)
	ref := o.Ref()

	allActions := []access.Action{
		access.ActionView,
		access.ActionManageMembers,
		access.ActionManageProjects,
		access.ActionAssignBadges,
		access.ActionManagePartnerships,
		access.ActionManageBranches,
	}

	newActor := func(uname, role string, confirmed bool) user.User {
		usr := testutil.CreateUser(t, usrRepo, uname, uname, uname+"@test.test", "", true)
		if role != "" {
			testutil.CreateMembership(t, memRepo, usr, o, role, confirmed)
		}
		return usr
	}

	tests := []struct {
		name    string
		actor   user.User
		allowed map[access.Action]bool
	}{
		{
			name:    "no membership",
			actor:   newActor("nobody", "", false),
			allowed: map[access.Action]bool{},
		},
		{
			name:    "pending admin grants nothing",
			actor:   newActor("pendadm", membership.RoleAdmin, false),
			allowed: map[access.Action]bool{},
		},
		{
			name:  "confirmed member",
			actor: newActor("member", membership.RoleMember, true),
			allowed: map[access.Action]bool{
				access.ActionView: true,
			},
		},
		{
			name:  "confirmed intervenant",
			actor: newActor("interv", membership.RoleIntervenant, true),
			allowed: map[access.Action]bool{
				access.ActionView:           true,
				access.ActionManageProjects: true,
			},
		},
		{
			name:  "confirmed referent",
			actor: newActor("refer", membership.RoleReferent, true),
			allowed: map[access.Action]bool{
				access.ActionView:           true,
				access.ActionManageProjects: true,
				access.ActionAssignBadges:   true,
			},
		},
		{
			name:  "confirmed admin",
			actor: newActor("admin", membership.RoleAdmin, true),
			allowed: map[access.Action]bool{
				access.ActionView:               true,
				access.ActionManageMembers:      true,
				access.ActionManageProjects:     true,
				access.ActionAssignBadges:       true,
				access.ActionManagePartnerships: true,
				access.ActionManageBranches:     true,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, action := range allActions {
				got, err := policy.Allowed(ctx, tt.actor, action, ref)
				if err != nil {
					t.Fatalf("Allowed(%s) failed: %v", action, err)
				}
				if got != tt.allowed[action] {
					t.Errorf("Allowed(%s) = %v, want %v", action, got, tt.allowed[action])
				}
			}
		})
	}

	// the operator flag bypasses the membership model entirely
	operator := testutil.CreateUser(t, usrRepo, "Op", "operat", "op@test.test", "", true)
	operator.IsAdmin = true
	for _, action := range allActions {
		if got, _ := policy.Allowed(ctx, operator, action, ref); !got {
			t.Errorf("operator Allowed(%s) = false, want true", action)
		}
	}

	// Authorize surfaces denials as ErrNotAuthorized
	nobody := testutil.CreateUser(t, usrRepo, "N", "nobod2", "n2@test.test", "", true)
	if err := policy.Authorize(ctx, nobody, access.ActionView, ref); err != access.ErrNotAuthorized {
		t.Errorf("Authorize() error = %v, want ErrNotAuthorized", err)
	}
}

type scopeFixture struct {
	usrRepo  user.Repository
	orgRepo  org.Repository
	memRepo  membership.Repository
	partRepo partnership.Repository
	scope    *access.Scope
}

func newScopeFixture(t *testing.T) *scopeFixture {
	t.Helper()
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	f := &scopeFixture{
		usrRepo:  inmemdb.NewUserRepository(db),
		orgRepo:  inmemdb.NewOrgRepository(db),
		memRepo:  inmemdb.NewMembershipRepository(db),
		partRepo: inmemdb.NewPartnershipRepository(db),
	}
	f.scope = access.NewScope(f.memRepo, f.orgRepo, f.usrRepo, f.partRepo)
	return f
}

// activePartnership links the two orgs in a confirmed, fully bought-in
// partnership.
func (f *scopeFixture) activePartnership(t *testing.T, a, b org.Ref, shareMembers bool) {
	t.Helper()
	now := time.Now().UTC()
	p := partnership.Partnership{
		ID:           uuid.New().String(),
		Initiator:    a,
		Type:         partnership.TypeBilateral,
		Status:       partnership.StatusConfirmed,
		ShareMembers: shareMembers,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	members := []partnership.Member{
		{ID: uuid.New().String(), PartnershipID: p.ID, Participant: a, Role: partnership.RolePartner,
			Status: partnership.MemberConfirmed, ConfirmedAt: null.TimeFrom(now), CreatedAt: now},
		{ID: uuid.New().String(), PartnershipID: p.ID, Participant: b, Role: partnership.RolePartner,
			Status: partnership.MemberConfirmed, ConfirmedAt: null.TimeFrom(now), CreatedAt: now},
	}
	if _, err := f.partRepo.CreatePartnership(context.Background(), p, members); err != nil {
		t.Fatalf("creating partnership: %v", err)
	}
}

func userNames(users []user.User) []string {
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Name)
	}
	return names
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestVisibleUsers(t *testing.T) {
	f := newScopeFixture(t)
	ctx := context.Background()

	school := testutil.CreateOrg(t, f.orgRepo, org.KindSchool, "Lycée A", true)
	other := testutil.CreateOrg(t, f.orgRepo, org.KindSchool, "Lycée B", true)

	actor := testutil.CreateUser(t, f.usrRepo, "Actor", "actor1", "actor@test.test", "", true)
	alice := testutil.CreateUser(t, f.usrRepo, "Alice", "alice1", "alice@test.test", "", true)
	bob := testutil.CreateUser(t, f.usrRepo, "Bob", "bob001", "bob@test.test", "", true)
	carol := testutil.CreateUser(t, f.usrRepo, "Carol", "carol1", "carol@test.test", "", true)
	dave := testutil.CreateUser(t, f.usrRepo, "Dave", "dave01", "dave@test.test", "", true)
	boss := testutil.CreateUser(t, f.usrRepo, "Boss", "boss01", "boss@test.test", "", true)

	testutil.CreateMembership(t, f.memRepo, actor, school, membership.RoleMember, true)
	testutil.CreateMembership(t, f.memRepo, alice, school, membership.RoleMember, true)
	testutil.CreateMembership(t, f.memRepo, bob, school, membership.RoleReferent, true)
	testutil.CreateMembership(t, f.memRepo, carol, school, membership.RoleMember, false) // pending, invisible
	testutil.CreateMembership(t, f.memRepo, boss, school, membership.RoleAdmin, true)    // admin, held back
	testutil.CreateMembership(t, f.memRepo, dave, other, membership.RoleMember, true)    // elsewhere

	got, err := f.scope.VisibleUsers(ctx, actor)
	if err != nil {
		t.Fatalf("VisibleUsers() failed: %v", err)
	}
	// sorted by name; actor excluded; pending, admins and outsiders invisible
	if want := []string{"Alice", "Bob"}; !equalStrings(userNames(got), want) {
		t.Errorf("VisibleUsers() = %v, want %v", userNames(got), want)
	}

	// a member-manager sees the organization's admins too
	gotBoss, err := f.scope.VisibleUsers(ctx, boss)
	if err != nil {
		t.Fatalf("VisibleUsers() failed: %v", err)
	}
	if want := []string{"Actor", "Alice", "Bob"}; !equalStrings(userNames(gotBoss), want) {
		t.Errorf("manager VisibleUsers() = %v, want %v", userNames(gotBoss), want)
	}

	// operators see everyone
	op := testutil.CreateUser(t, f.usrRepo, "Op", "operat", "op@test.test", "", true)
	op.IsAdmin = true
	gotOp, err := f.scope.VisibleUsers(ctx, op)
	if err != nil {
		t.Fatalf("VisibleUsers() failed: %v", err)
	}
	if len(gotOp) != 7 {
		t.Errorf("operator VisibleUsers() = %d users, want 7", len(gotOp))
	}
}

func TestVisibleUsersBranchSharing(t *testing.T) {
	f := newScopeFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	main, err := f.orgRepo.CreateOrganization(ctx, org.Organization{
		ID: uuid.New().String(), Kind: org.KindCompany, Name: "Acme",
		Status: org.StatusConfirmed, ShareMembersWithBranches: true,
		CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("creating org: %v", err)
	}
	brnch, err := f.orgRepo.CreateOrganization(ctx, org.Organization{
		ID: uuid.New().String(), Kind: org.KindCompany, Name: "Acme Sud",
		Status: org.StatusConfirmed, ParentID: null.StringFrom(main.ID),
		CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("creating org: %v", err)
	}

	actor := testutil.CreateUser(t, f.usrRepo, "Actor", "actor2", "a2@test.test", "", true)
	hqUser := testutil.CreateUser(t, f.usrRepo, "Hqu", "hquser", "hq@test.test", "", true)
	testutil.CreateMembership(t, f.memRepo, actor, brnch, membership.RoleMember, true)
	testutil.CreateMembership(t, f.memRepo, hqUser, main, membership.RoleMember, true)

	got, err := f.scope.VisibleUsers(ctx, actor)
	if err != nil {
		t.Fatalf("VisibleUsers() failed: %v", err)
	}
	if want := []string{"Hqu"}; !equalStrings(userNames(got), want) {
		t.Errorf("branch VisibleUsers() = %v, want %v", userNames(got), want)
	}

	// and main-side members see the branch
	gotHq, err := f.scope.VisibleUsers(ctx, hqUser)
	if err != nil {
		t.Fatalf("VisibleUsers() failed: %v", err)
	}
	if want := []string{"Actor"}; !equalStrings(userNames(gotHq), want) {
		t.Errorf("main VisibleUsers() = %v, want %v", userNames(gotHq), want)
	}
}

func TestVisibleUsersPartnershipSharing(t *testing.T) {
	f := newScopeFixture(t)
	ctx := context.Background()

	school := testutil.CreateOrg(t, f.orgRepo, org.KindSchool, "Lycée A", true)
	sharing := testutil.CreateOrg(t, f.orgRepo, org.KindCompany, "Acme", true)
	silent := testutil.CreateOrg(t, f.orgRepo, org.KindCompany, "Globex", true)

	actor := testutil.CreateUser(t, f.usrRepo, "Actor", "actor3", "a3@test.test", "", true)
	pat := testutil.CreateUser(t, f.usrRepo, "Pat", "pat001", "pat@test.test", "", true)
	quinn := testutil.CreateUser(t, f.usrRepo, "Quinn", "quinn1", "q@test.test", "", true)
	testutil.CreateMembership(t, f.memRepo, actor, school, membership.RoleMember, true)
	testutil.CreateMembership(t, f.memRepo, pat, sharing, membership.RoleMember, true)
	testutil.CreateMembership(t, f.memRepo, quinn, silent, membership.RoleMember, true)

	f.activePartnership(t, school.Ref(), sharing.Ref(), true)
	f.activePartnership(t, school.Ref(), silent.Ref(), false)

	got, err := f.scope.VisibleUsers(ctx, actor)
	if err != nil {
		t.Fatalf("VisibleUsers() failed: %v", err)
	}
	// only the member-sharing partnership extends visibility
	if want := []string{"Pat"}; !equalStrings(userNames(got), want) {
		t.Errorf("VisibleUsers() = %v, want %v", userNames(got), want)
	}
}

func TestVisibleOrgs(t *testing.T) {
	f := newScopeFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	school := testutil.CreateOrg(t, f.orgRepo, org.KindSchool, "Lycée A", true)
	partner := testutil.CreateOrg(t, f.orgRepo, org.KindCompany, "Acme", true)
	testutil.CreateOrg(t, f.orgRepo, org.KindCompany, "Unrelated", true)
	brnch, err := f.orgRepo.CreateOrganization(ctx, org.Organization{
		ID: uuid.New().String(), Kind: org.KindSchool, Name: "Annexe",
		Status: org.StatusConfirmed, ParentID: null.StringFrom(school.ID),
		CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("creating org: %v", err)
	}
	_ = brnch

	actor := testutil.CreateUser(t, f.usrRepo, "Actor", "actor4", "a4@test.test", "", true)
	testutil.CreateMembership(t, f.memRepo, actor, school, membership.RoleMember, true)
	f.activePartnership(t, school.Ref(), partner.Ref(), false)

	got, err := f.scope.VisibleOrgs(ctx, actor)
	if err != nil {
		t.Fatalf("VisibleOrgs() failed: %v", err)
	}
	// own org, its branch and the active partner org; name ascending
	want := []string{"Acme", "Annexe", "Lycée A"}
	names := make([]string, 0, len(got))
	for _, o := range got {
		names = append(names, o.Name)
	}
	if !equalStrings(names, want) {
		t.Errorf("VisibleOrgs() = %v, want %v", names, want)
	}

	// certified orgs sort first
	certified, err := f.orgRepo.CreateOrganization(ctx, org.Organization{
		ID: uuid.New().String(), Kind: org.KindCompany, Name: "Zeta Certified",
		Certified: true, Status: org.StatusConfirmed, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("creating org: %v", err)
	}
	f.activePartnership(t, school.Ref(), certified.Ref(), false)

	got, err = f.scope.VisibleOrgs(ctx, actor)
	if err != nil {
		t.Fatalf("VisibleOrgs() failed: %v", err)
	}
	if len(got) == 0 || got[0].Name != "Zeta Certified" {
		t.Error("certified organizations must sort first")
	}

	// a pending membership still reveals the org itself, nothing beyond
	outsider := testutil.CreateUser(t, f.usrRepo, "Out", "outsid", "out@test.test", "", true)
	testutil.CreateMembership(t, f.memRepo, outsider, school, membership.RoleMember, false)
	gotOut, err := f.scope.VisibleOrgs(ctx, outsider)
	if err != nil {
		t.Fatalf("VisibleOrgs() failed: %v", err)
	}
	if len(gotOut) != 1 || gotOut[0].ID != school.ID {
		t.Errorf("pending VisibleOrgs() = %d orgs, want just the org itself", len(gotOut))
	}
}
