package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/pamoja/core/membership"
	"github.com/trezcool/pamoja/core/org"
	"github.com/trezcool/pamoja/core/partnership"
	testutil "github.com/trezcool/pamoja/tests"
)

type partnerOrgs struct {
	school, company      org.Organization
	schoolBoss, compBoss string // tokens
	schoolMember         string
}

func seedPartnerOrgs(t *testing.T, schoolName, companyName string) partnerOrgs {
	t.Helper()
	school := testutil.CreateOrg(t, orgRepo, org.KindSchool, schoolName, true)
	company := testutil.CreateOrg(t, orgRepo, org.KindCompany, companyName, true)
	sb := testutil.CreateUser(t, usrRepo, "SB "+schoolName, "sb"+school.ID[:4], "sb."+school.ID[:8]+"@test.test", "", true)
	cb := testutil.CreateUser(t, usrRepo, "CB "+companyName, "cb"+company.ID[:4], "cb."+company.ID[:8]+"@test.test", "", true)
	sm := testutil.CreateUser(t, usrRepo, "SM "+schoolName, "sm"+school.ID[:4], "sm."+school.ID[:8]+"@test.test", "", true)
	testutil.CreateMembership(t, memRepo, sb, school, membership.RoleSuperadmin, true)
	testutil.CreateMembership(t, memRepo, cb, company, membership.RoleSuperadmin, true)
	testutil.CreateMembership(t, memRepo, sm, school, membership.RoleMember, true)
	return partnerOrgs{
		school: school, company: company,
		schoolBoss: getToken(t, sb), compBoss: getToken(t, cb), schoolMember: getToken(t, sm),
	}
}

func Test_partnershipApi_lifecycle(t *testing.T) {
	po := seedPartnerOrgs(t, "Lycée Partenaire", "Mécène SARL")
	data := partnership.NewPartnership{
		Initiator:      po.school.Ref(),
		InitiatorRole:  partnership.RoleBeneficiary,
		Members:        []partnership.NewMember{{Participant: po.company.Ref(), Role: partnership.RoleSponsor}},
		HasSponsorship: true,
	}

	rec := do(t, http.MethodPost, "/v1/partnerships", "", data)
	wantCode(t, rec, http.StatusUnauthorized)

	// only a superadmin of the initiating org may open a partnership
	rec = do(t, http.MethodPost, "/v1/partnerships", po.schoolMember, data)
	wantCode(t, rec, http.StatusForbidden)

	rec = do(t, http.MethodPost, "/v1/partnerships", po.schoolBoss, data)
	wantCode(t, rec, http.StatusCreated)
	var p partnership.Partnership
	decode(t, rec, &p)
	assert.Equal(t, partnership.TypeBilateral, p.Type)
	assert.Equal(t, partnership.StatusPending, p.Status)
	assert.True(t, p.HasSponsorship)

	// the initiator's own member row comes pre-confirmed
	rec = do(t, http.MethodGet, "/v1/partnerships/"+p.ID+"/members", po.schoolBoss, nil)
	wantCode(t, rec, http.StatusOK)
	var members []partnership.Member
	decode(t, rec, &members)
	assert.Len(t, members, 2)
	byOrg := make(map[string]partnership.Member, len(members))
	for _, m := range members {
		byOrg[m.Participant.ID] = m
	}
	assert.Equal(t, partnership.MemberConfirmed, byOrg[po.school.ID].Status)
	assert.Equal(t, partnership.MemberPending, byOrg[po.company.ID].Status)

	// each invitee answers for itself
	invitee := byOrg[po.company.ID]
	rec = do(t, http.MethodPost, "/v1/partnerships/"+p.ID+"/members/"+invitee.ID+"/confirm", po.schoolBoss, nil)
	wantCode(t, rec, http.StatusForbidden)
	rec = do(t, http.MethodPost, "/v1/partnerships/"+p.ID+"/members/"+invitee.ID+"/confirm", po.compBoss, nil)
	wantCode(t, rec, http.StatusOK)
	decode(t, rec, &invitee)
	assert.Equal(t, partnership.MemberConfirmed, invitee.Status)
	assert.True(t, invitee.ConfirmedAt.Valid)

	// member buy-in alone is not enough: the aggregate is still pending
	activePath := "/v1/partnerships?kind=company&org=" + po.company.ID + "&active=true"
	rec = do(t, http.MethodGet, activePath, po.compBoss, nil)
	wantCode(t, rec, http.StatusOK)
	var ps []partnership.Partnership
	decode(t, rec, &ps)
	assert.Empty(t, ps)

	rec = do(t, http.MethodPost, "/v1/partnerships/"+p.ID+"/confirm", po.compBoss, nil)
	wantCode(t, rec, http.StatusForbidden)
	rec = do(t, http.MethodPost, "/v1/partnerships/"+p.ID+"/confirm", po.schoolBoss, nil)
	wantCode(t, rec, http.StatusOK)

	rec = do(t, http.MethodGet, activePath, po.compBoss, nil)
	wantCode(t, rec, http.StatusOK)
	decode(t, rec, &ps)
	assert.Len(t, ps, 1)
}

func Test_partnershipApi_addMember(t *testing.T) {
	po := seedPartnerOrgs(t, "Lycée Élargi", "Donateur SA")
	third := testutil.CreateOrg(t, orgRepo, org.KindCompany, "Troisième SARL", true)

	rec := do(t, http.MethodPost, "/v1/partnerships", po.schoolBoss, partnership.NewPartnership{
		Initiator:     po.school.Ref(),
		InitiatorRole: partnership.RoleBeneficiary,
		Members:       []partnership.NewMember{{Participant: po.company.Ref(), Role: partnership.RoleSponsor}},
	})
	wantCode(t, rec, http.StatusCreated)
	var p partnership.Partnership
	decode(t, rec, &p)

	newMember := partnership.NewMember{Participant: third.Ref(), Role: partnership.RolePartner}
	rec = do(t, http.MethodPost, "/v1/partnerships/"+p.ID+"/members", po.compBoss, newMember)
	wantCode(t, rec, http.StatusForbidden)

	rec = do(t, http.MethodPost, "/v1/partnerships/"+p.ID+"/members", po.schoolBoss,
		partnership.NewMember{Participant: third.Ref(), Role: "benefactor"})
	wantCode(t, rec, http.StatusBadRequest)

	rec = do(t, http.MethodPost, "/v1/partnerships/"+p.ID+"/members", po.schoolBoss, newMember)
	wantCode(t, rec, http.StatusCreated)
	var m partnership.Member
	decode(t, rec, &m)
	assert.Equal(t, partnership.MemberPending, m.Status)

	rec = do(t, http.MethodPost, "/v1/partnerships/"+p.ID+"/members", po.schoolBoss, newMember)
	wantCode(t, rec, http.StatusConflict)
}

func Test_partnershipApi_decline(t *testing.T) {
	po := seedPartnerOrgs(t, "Lycée Refusé", "Réticent SARL")

	rec := do(t, http.MethodPost, "/v1/partnerships", po.schoolBoss, partnership.NewPartnership{
		Initiator:     po.school.Ref(),
		InitiatorRole: partnership.RolePartner,
		Members:       []partnership.NewMember{{Participant: po.company.Ref(), Role: partnership.RolePartner}},
	})
	wantCode(t, rec, http.StatusCreated)
	var p partnership.Partnership
	decode(t, rec, &p)

	rec = do(t, http.MethodGet, "/v1/partnerships/"+p.ID+"/members", po.compBoss, nil)
	wantCode(t, rec, http.StatusOK)
	var members []partnership.Member
	decode(t, rec, &members)
	var invitee partnership.Member
	for _, m := range members {
		if m.Participant.ID == po.company.ID {
			invitee = m
		}
	}

	rec = do(t, http.MethodPost, "/v1/partnerships/"+p.ID+"/members/"+invitee.ID+"/decline", po.compBoss, nil)
	wantCode(t, rec, http.StatusOK)
	decode(t, rec, &invitee)
	assert.Equal(t, partnership.MemberDeclined, invitee.Status)
	assert.False(t, invitee.ConfirmedAt.Valid)

	// winding down is the initiator's call
	rec = do(t, http.MethodDelete, "/v1/partnerships/"+p.ID, po.compBoss, nil)
	wantCode(t, rec, http.StatusForbidden)
	rec = do(t, http.MethodDelete, "/v1/partnerships/"+p.ID, po.schoolBoss, nil)
	wantCode(t, rec, http.StatusNoContent)
	rec = do(t, http.MethodGet, "/v1/partnerships/"+p.ID, po.schoolBoss, nil)
	wantCode(t, rec, http.StatusNotFound)
}

func Test_partnershipApi_query(t *testing.T) {
	po := seedPartnerOrgs(t, "Lycée Curieux", "Visible SARL")

	rec := do(t, http.MethodGet, "/v1/partnerships", po.schoolBoss, nil)
	wantCode(t, rec, http.StatusBadRequest)

	// outsiders cannot browse an org's partnerships
	outsider := testutil.CreateUser(t, usrRepo, "Out", "out"+po.school.ID[:4], "out."+po.school.ID[:8]+"@test.test", "", true)
	rec = do(t, http.MethodGet, "/v1/partnerships?kind=school&org="+po.school.ID, getToken(t, outsider), nil)
	wantCode(t, rec, http.StatusForbidden)

	rec = do(t, http.MethodGet, "/v1/partnerships?kind=school&org="+po.school.ID, po.schoolMember, nil)
	wantCode(t, rec, http.StatusOK)
	var ps []partnership.Partnership
	decode(t, rec, &ps)
	assert.Empty(t, ps)
}
