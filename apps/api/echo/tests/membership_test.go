package tests

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/pamoja/core/membership"
	"github.com/trezcool/pamoja/core/org"
	testutil "github.com/trezcool/pamoja/tests"
)

func membersPath(ref org.Ref, extra string) string {
	return fmt.Sprintf("/v1/orgs/%s/%s/members%s", ref.Kind, ref.ID, extra)
}

func Test_membershipApi_lifecycle(t *testing.T) {
	o := testutil.CreateOrg(t, orgRepo, org.KindSchool, "Lycée API", true)
	ref := o.Ref()

	boss := testutil.CreateUser(t, usrRepo, "Boss", "mboss1", "mboss@test.test", "", true)
	testutil.CreateMembership(t, memRepo, boss, o, membership.RoleSuperadmin, true)
	bossToken := getToken(t, boss)

	newbie := testutil.CreateUser(t, usrRepo, "Newbie", "newbie", "newbie@test.test", "", true)
	newbieToken := getToken(t, newbie)

	// no token
	rec := do(t, http.MethodGet, membersPath(ref, ""), "", nil)
	wantCode(t, rec, http.StatusUnauthorized)

	// a non-member cannot list
	rec = do(t, http.MethodGet, membersPath(ref, ""), newbieToken, nil)
	wantCode(t, rec, http.StatusForbidden)

	// nor invite
	rec = do(t, http.MethodPost, membersPath(ref, ""), newbieToken,
		membership.NewMembership{UserID: newbie.ID, Role: membership.RoleMember})
	wantCode(t, rec, http.StatusForbidden)

	// the superadmin invites
	rec = do(t, http.MethodPost, membersPath(ref, ""), bossToken,
		membership.NewMembership{UserID: newbie.ID, Role: membership.RoleMember})
	wantCode(t, rec, http.StatusCreated)
	var m membership.Membership
	decode(t, rec, &m)
	assert.Equal(t, membership.StatusPending, m.Status)
	assert.Equal(t, newbie.ID, m.UserID)

	// a second invite for the same pair conflicts
	rec = do(t, http.MethodPost, membersPath(ref, ""), bossToken,
		membership.NewMembership{UserID: newbie.ID, Role: membership.RoleMember})
	wantCode(t, rec, http.StatusConflict)

	// pending membership still denies listing
	rec = do(t, http.MethodGet, membersPath(ref, ""), newbieToken, nil)
	wantCode(t, rec, http.StatusForbidden)

	// confirm
	rec = do(t, http.MethodPost, membersPath(ref, "/"+m.ID+"/confirm"), bossToken, nil)
	wantCode(t, rec, http.StatusOK)
	decode(t, rec, &m)
	assert.Equal(t, membership.StatusConfirmed, m.Status)
	assert.True(t, m.ConfirmedAt.Valid)

	// now the member can list; admins included in the row listing
	rec = do(t, http.MethodGet, membersPath(ref, ""), newbieToken, nil)
	wantCode(t, rec, http.StatusOK)
	var members []membership.Membership
	decode(t, rec, &members)
	assert.Len(t, members, 2)

	// ...but cannot confirm others
	rec = do(t, http.MethodPost, membersPath(ref, "/"+m.ID+"/unconfirm"), newbieToken, nil)
	wantCode(t, rec, http.StatusForbidden)

	// role update by the superadmin
	rec = do(t, http.MethodPut, membersPath(ref, "/"+m.ID+"/role"), bossToken,
		membership.UpdateMembershipRole{Role: membership.RoleAdmin})
	wantCode(t, rec, http.StatusOK)
	decode(t, rec, &m)
	assert.Equal(t, membership.RoleAdmin, m.Role)

	// an invalid role never reaches the service
	rec = do(t, http.MethodPut, membersPath(ref, "/"+m.ID+"/role"), bossToken,
		membership.UpdateMembershipRole{Role: "king"})
	wantCode(t, rec, http.StatusBadRequest)

	// granting a second superadmin conflicts
	rec = do(t, http.MethodPut, membersPath(ref, "/"+m.ID+"/role"), bossToken,
		membership.UpdateMembershipRole{Role: membership.RoleSuperadmin})
	wantCode(t, rec, http.StatusConflict)

	// removal
	rec = do(t, http.MethodDelete, membersPath(ref, "/"+m.ID), bossToken, nil)
	wantCode(t, rec, http.StatusNoContent)
	rec = do(t, http.MethodGet, membersPath(ref, "/"+m.ID), bossToken, nil)
	wantCode(t, rec, http.StatusNotFound)
}

func Test_membershipApi_transferSuperadmin(t *testing.T) {
	o := testutil.CreateOrg(t, orgRepo, org.KindCompany, "Acme API", true)
	ref := o.Ref()

	boss := testutil.CreateUser(t, usrRepo, "Boss", "tboss1", "tboss@test.test", "", true)
	next := testutil.CreateUser(t, usrRepo, "Next", "tnext1", "tnext@test.test", "", true)
	sa := testutil.CreateMembership(t, memRepo, boss, o, membership.RoleSuperadmin, true)
	adm := testutil.CreateMembership(t, memRepo, next, o, membership.RoleAdmin, true)
	bossToken := getToken(t, boss)
	nextToken := getToken(t, next)

	// the superadmin row cannot be removed, only transferred
	rec := do(t, http.MethodDelete, membersPath(ref, "/"+sa.ID), bossToken, nil)
	wantCode(t, rec, http.StatusForbidden)

	// only the seat holder may transfer
	rec = do(t, http.MethodPost, membersPath(ref, "/"+sa.ID+"/transfer-superadmin"), nextToken, nil)
	wantCode(t, rec, http.StatusForbidden)

	rec = do(t, http.MethodPost, membersPath(ref, "/"+adm.ID+"/transfer-superadmin"), bossToken, nil)
	wantCode(t, rec, http.StatusNoContent)

	rec = do(t, http.MethodGet, membersPath(ref, "/"+adm.ID), bossToken, nil)
	wantCode(t, rec, http.StatusOK)
	var m membership.Membership
	decode(t, rec, &m)
	assert.Equal(t, membership.RoleSuperadmin, m.Role)
}

func Test_membershipApi_crossOrgTarget(t *testing.T) {
	o1 := testutil.CreateOrg(t, orgRepo, org.KindSchool, "Lycée X", true)
	o2 := testutil.CreateOrg(t, orgRepo, org.KindSchool, "Lycée Y", true)

	boss := testutil.CreateUser(t, usrRepo, "Boss", "xboss1", "xboss@test.test", "", true)
	stranger := testutil.CreateUser(t, usrRepo, "Str", "strang", "str@test.test", "", true)
	testutil.CreateMembership(t, memRepo, boss, o1, membership.RoleSuperadmin, true)
	foreign := testutil.CreateMembership(t, memRepo, stranger, o2, membership.RoleMember, true)
	bossToken := getToken(t, boss)

	// a membership row of another organization is invisible through o1's URLs
	rec := do(t, http.MethodGet, membersPath(o1.Ref(), "/"+foreign.ID), bossToken, nil)
	wantCode(t, rec, http.StatusNotFound)
	rec = do(t, http.MethodPost, membersPath(o1.Ref(), "/"+foreign.ID+"/confirm"), bossToken, nil)
	wantCode(t, rec, http.StatusNotFound)
}

func Test_membershipApi_badKind(t *testing.T) {
	boss := testutil.CreateUser(t, usrRepo, "Boss", "kboss1", "kboss@test.test", "", true)
	token := getToken(t, boss)

	rec := do(t, http.MethodGet, "/v1/orgs/club/some-id/members", token, nil)
	wantCode(t, rec, http.StatusNotFound)
}
