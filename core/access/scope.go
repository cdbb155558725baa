package access

import (
	"context"
	"sort"

	"github.com/trezcool/pamoja/core/membership"
	"github.com/trezcool/pamoja/core/org"
	"github.com/trezcool/pamoja/core/partnership"
	"github.com/trezcool/pamoja/core/user"
)

// Scope resolves the subset of users/organizations visible to an actor.
type Scope struct {
	memRepo  membership.Repository
	orgRepo  org.Repository
	userRepo user.Repository
	partRepo partnership.Repository
}

func NewScope(
	memRepo membership.Repository,
	orgRepo org.Repository,
	userRepo user.Repository,
	partRepo partnership.Repository,
) *Scope {
	return &Scope{memRepo: memRepo, orgRepo: orgRepo, userRepo: userRepo, partRepo: partRepo}
}

// VisibleUsers computes the users the actor may list: the union of confirmed
// co-members across every organization the actor confirmedly belongs to,
// extended by branch/main sharing (companies opting in) and by active
// member-sharing partnerships. Organization admins and superadmins are kept
// out of general visibility unless the actor manages members in that
// organization. Results are ordered name ascending with the user ID as a
// stable tie-break, for pagination consistency.
func (s *Scope) VisibleUsers(ctx context.Context, actor user.User) ([]user.User, error) {
	if actor.IsAdmin {
		users, err := s.userRepo.QueryAllUsers(ctx)
		if err != nil {
			return nil, err
		}
		sortUsers(users)
		return users, nil
	}

	memberships, err := s.memRepo.QueryMembershipsByUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	type orgView struct {
		ref        org.Ref
		seesAdmins bool
	}
	var views []orgView
	seenOrgs := make(map[string]bool)
	addOrg := func(ref org.Ref, seesAdmins bool) {
		if seenOrgs[ref.String()] {
			return
		}
		seenOrgs[ref.String()] = true
		views = append(views, orgView{ref, seesAdmins})
	}

	for _, m := range memberships {
		if !m.Confirmed() {
			continue
		}
		addOrg(m.Org, m.CanManageMembers())

		o, err := s.orgRepo.GetOrganization(ctx, m.Org)
		if err != nil {
			continue
		}
		// branch members inherit main-company visibility when shared
		if o.IsBranch() {
			main, err := s.orgRepo.GetOrganization(ctx, org.Ref{Kind: o.Kind, ID: o.ParentID.String})
			if err == nil && main.SharesMembersWithBranches() {
				addOrg(main.Ref(), false)
			}
		} else if o.SharesMembersWithBranches() {
			branches, err := s.orgRepo.QueryBranches(ctx, o.Ref())
			if err == nil {
				for _, b := range branches {
					addOrg(b.Ref(), false)
				}
			}
		}

		// member-sharing partnerships extend visibility to partner orgs
		active, err := s.partRepo.QueryActivePartnershipsByOrg(ctx, m.Org)
		if err != nil {
			continue
		}
		for _, p := range active {
			if !p.ShareMembers {
				continue
			}
			pms, err := s.partRepo.QueryMembers(ctx, p.ID)
			if err != nil {
				continue
			}
			for _, pm := range pms {
				if pm.Confirmed() && !pm.Participant.Equal(m.Org) {
					addOrg(pm.Participant, false)
				}
			}
		}
	}

	seenUsers := map[string]bool{actor.ID: true}
	var ids []string
	for _, v := range views {
		members, err := s.memRepo.QueryMembershipsByOrg(ctx, v.ref, membership.QueryFilter{Status: membership.StatusConfirmed})
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if m.Admin() && !v.seesAdmins {
				continue
			}
			if seenUsers[m.UserID] {
				continue
			}
			seenUsers[m.UserID] = true
			ids = append(ids, m.UserID)
		}
	}

	users, err := s.userRepo.QueryUsersByID(ctx, ids...)
	if err != nil {
		return nil, err
	}
	sortUsers(users)
	return users, nil
}

// VisibleOrgs computes the organizations visible to the actor: those it
// belongs to (any status), their mains/branches, and active partner
// organizations. Ordered certified descending then name ascending, with the
// org ID as a stable tie-break.
func (s *Scope) VisibleOrgs(ctx context.Context, actor user.User) ([]org.Organization, error) {
	if actor.IsAdmin {
		orgs, err := s.orgRepo.QueryAllOrganizations(ctx)
		if err != nil {
			return nil, err
		}
		sortOrgs(orgs)
		return orgs, nil
	}

	memberships, err := s.memRepo.QueryMembershipsByUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var orgs []org.Organization
	add := func(o org.Organization) {
		if seen[o.Ref().String()] {
			return
		}
		seen[o.Ref().String()] = true
		orgs = append(orgs, o)
	}

	for _, m := range memberships {
		o, err := s.orgRepo.GetOrganization(ctx, m.Org)
		if err != nil {
			continue
		}
		add(o)
		if !m.Confirmed() {
			continue
		}
		if o.IsBranch() {
			if main, err := s.orgRepo.GetOrganization(ctx, org.Ref{Kind: o.Kind, ID: o.ParentID.String}); err == nil {
				add(main)
			}
		} else {
			if branches, err := s.orgRepo.QueryBranches(ctx, o.Ref()); err == nil {
				for _, b := range branches {
					add(b)
				}
			}
		}
		if active, err := s.partRepo.QueryActivePartnershipsByOrg(ctx, m.Org); err == nil {
			for _, p := range active {
				pms, err := s.partRepo.QueryMembers(ctx, p.ID)
				if err != nil {
					continue
				}
				for _, pm := range pms {
					if !pm.Confirmed() || pm.Participant.Equal(m.Org) {
						continue
					}
					if po, err := s.orgRepo.GetOrganization(ctx, pm.Participant); err == nil {
						add(po)
					}
				}
			}
		}
	}

	sortOrgs(orgs)
	return orgs, nil
}

func sortUsers(users []user.User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].ID < users[j].ID
	})
}

func sortOrgs(orgs []org.Organization) {
	sort.Slice(orgs, func(i, j int) bool {
		if orgs[i].Certified != orgs[j].Certified {
			return orgs[i].Certified
		}
		if orgs[i].Name != orgs[j].Name {
			return orgs[i].Name < orgs[j].Name
		}
		return orgs[i].ID < orgs[j].ID
	})
}
