package tests

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/pamoja/core/membership"
	"github.com/trezcool/pamoja/core/org"
	"github.com/trezcool/pamoja/core/user"
	testutil "github.com/trezcool/pamoja/tests"
)

func orgPath(ref org.Ref, extra string) string {
	return fmt.Sprintf("/v1/orgs/%s/%s%s", ref.Kind, ref.ID, extra)
}

func Test_orgApi_register(t *testing.T) {
	ctx := context.Background()
	usr := testutil.CreateUser(t, usrRepo, "Founder One", "found01", "found01@test.test", "", true)
	token := getToken(t, usr)

	rec := do(t, http.MethodPost, "/v1/orgs", "", org.NewOrganization{Kind: org.KindSchool, Name: "Collège Nord"})
	wantCode(t, rec, http.StatusUnauthorized)

	// the owner has not confirmed their email yet: everything stays pending
	rec = do(t, http.MethodPost, "/v1/orgs", token, org.NewOrganization{Kind: org.KindSchool, Name: "Collège Nord"})
	wantCode(t, rec, http.StatusCreated)
	var o org.Organization
	decode(t, rec, &o)
	assert.Equal(t, org.StatusPending, o.Status)

	m, err := memRepo.GetMembershipForUser(ctx, usr.ID, o.Ref())
	if err != nil {
		t.Fatalf("GetMembershipForUser() failed: %v", err)
	}
	assert.Equal(t, membership.RoleSuperadmin, m.Role)
	assert.Equal(t, membership.StatusPending, m.Status)

	// confirming the email takes the org and its superadmin seat live
	confirmToken, err := user.MakeToken(usr, "email-confirm")
	if err != nil {
		t.Fatalf("MakeToken() failed: %v", err)
	}
	rec = do(t, http.MethodPost, "/v1/users/email-confirm",
		"", user.ConfirmUserEmail{UID: user.EncodeUID(usr), Token: confirmToken})
	wantCode(t, rec, http.StatusOK)

	if o, err = orgRepo.GetOrganization(ctx, o.Ref()); err != nil {
		t.Fatalf("GetOrganization() failed: %v", err)
	}
	assert.Equal(t, org.StatusConfirmed, o.Status)
	if m, err = memRepo.GetMembership(ctx, m.ID); err != nil {
		t.Fatalf("GetMembership() failed: %v", err)
	}
	assert.Equal(t, membership.StatusConfirmed, m.Status)
	assert.True(t, m.ConfirmedAt.Valid)
}

func Test_orgApi_register_confirmedOwner(t *testing.T) {
	ctx := context.Background()
	usr := testutil.CreateUser(t, usrRepo, "Founder Two", "found02", "found02@test.test", "", true)
	if _, err := usrRepo.ConfirmUserEmail(ctx, usr); err != nil {
		t.Fatalf("ConfirmUserEmail() failed: %v", err)
	}

	rec := do(t, http.MethodPost, "/v1/orgs", getToken(t, usr),
		org.NewOrganization{Kind: org.KindCompany, Name: "Atelier Sud", ShareMembersWithBranches: true})
	wantCode(t, rec, http.StatusCreated)
	var o org.Organization
	decode(t, rec, &o)
	assert.Equal(t, org.StatusConfirmed, o.Status)
	assert.True(t, o.ShareMembersWithBranches)

	m, err := memRepo.GetMembershipForUser(ctx, usr.ID, o.Ref())
	if err != nil {
		t.Fatalf("GetMembershipForUser() failed: %v", err)
	}
	assert.Equal(t, membership.RoleSuperadmin, m.Role)
	assert.Equal(t, membership.StatusConfirmed, m.Status)
}

func Test_orgApi_certification(t *testing.T) {
	o := testutil.CreateOrg(t, orgRepo, org.KindSchool, "Lycée Certifiable", true)
	boss := testutil.CreateUser(t, usrRepo, "Cert Boss", "certbs1", "certbs@test.test", "", true)
	testutil.CreateMembership(t, memRepo, boss, o, membership.RoleSuperadmin, true)
	plain := testutil.CreateUser(t, usrRepo, "Cert Member", "certmb1", "certmb@test.test", "", true)
	testutil.CreateMembership(t, memRepo, plain, o, membership.RoleMember, true)
	adm := createAdmin(t, "certadm", "certadm@test.test")

	yes := true
	rec := do(t, http.MethodPut, orgPath(o.Ref(), ""), getToken(t, plain), org.UpdateOrganization{Certified: &yes})
	wantCode(t, rec, http.StatusForbidden)

	// a superadmin may rename but cannot self-certify
	rec = do(t, http.MethodPut, orgPath(o.Ref(), ""), getToken(t, boss),
		org.UpdateOrganization{Name: "Lycée Renommé", Certified: &yes})
	wantCode(t, rec, http.StatusOK)
	var got org.Organization
	decode(t, rec, &got)
	assert.Equal(t, "Lycée Renommé", got.Name)
	assert.False(t, got.Certified)

	// certifying without a name must not blank the name
	rec = do(t, http.MethodPut, orgPath(o.Ref(), ""), getToken(t, adm), org.UpdateOrganization{Certified: &yes})
	wantCode(t, rec, http.StatusOK)
	decode(t, rec, &got)
	assert.True(t, got.Certified)
	assert.Equal(t, "Lycée Renommé", got.Name)
}

func Test_orgApi_query(t *testing.T) {
	o := testutil.CreateOrg(t, orgRepo, org.KindCompany, "Zinzolin Industries", true)
	boss := testutil.CreateUser(t, usrRepo, "Q Boss", "qboss01", "qboss@test.test", "", true)
	testutil.CreateMembership(t, memRepo, boss, o, membership.RoleSuperadmin, true)
	loner := testutil.CreateUser(t, usrRepo, "Q Loner", "qloner1", "qloner@test.test", "", true)
	adm := createAdmin(t, "qadmin1", "qadmin@test.test")

	rec := do(t, http.MethodGet, "/v1/orgs", getToken(t, boss), nil)
	wantCode(t, rec, http.StatusOK)
	var orgs []org.Organization
	decode(t, rec, &orgs)
	names := make([]string, 0, len(orgs))
	for _, got := range orgs {
		names = append(names, got.Name)
	}
	assert.Contains(t, names, "Zinzolin Industries")

	// no memberships, nothing to see
	rec = do(t, http.MethodGet, "/v1/orgs", getToken(t, loner), nil)
	wantCode(t, rec, http.StatusOK)
	decode(t, rec, &orgs)
	assert.Empty(t, orgs)

	// admins filter the whole directory
	rec = do(t, http.MethodGet, "/v1/orgs?search=zinzolin", getToken(t, adm), nil)
	wantCode(t, rec, http.StatusOK)
	decode(t, rec, &orgs)
	assert.Len(t, orgs, 1)
	assert.Equal(t, o.ID, orgs[0].ID)
}

func Test_orgApi_retrieve(t *testing.T) {
	o := testutil.CreateOrg(t, orgRepo, org.KindSchool, "Lycée Introuvable", true)
	usr := testutil.CreateUser(t, usrRepo, "R User", "ruser01", "ruser@test.test", "", true)
	token := getToken(t, usr)

	rec := do(t, http.MethodGet, orgPath(o.Ref(), ""), token, nil)
	wantCode(t, rec, http.StatusOK)

	// unknown kinds and IDs both read as not found
	rec = do(t, http.MethodGet, "/v1/orgs/club/"+o.ID, token, nil)
	wantCode(t, rec, http.StatusNotFound)
	rec = do(t, http.MethodGet, "/v1/orgs/school/nope", token, nil)
	wantCode(t, rec, http.StatusNotFound)

	rec = do(t, http.MethodGet, orgPath(o.Ref(), "/branches"), token, nil)
	wantCode(t, rec, http.StatusOK)
	var branches []org.Organization
	decode(t, rec, &branches)
	assert.Empty(t, branches)
}
