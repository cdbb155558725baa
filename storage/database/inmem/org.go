package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/pamoja/core/org"
)

type orgRepository struct {
	db *DB
}

func NewOrgRepository(db *DB) org.Repository {
	return &orgRepository{db: db}
}

func (repo *orgRepository) query() []org.Organization {
	orgs := make([]org.Organization, 0, len(repo.db.orgs))
	for _, o := range repo.db.orgs {
		orgs = append(orgs, *o)
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].ID < orgs[j].ID })
	return orgs
}

func (repo *orgRepository) CreateOrganization(_ context.Context, o org.Organization) (org.Organization, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.orgs[o.Ref().String()] = &o
	return o, nil
}

func (repo *orgRepository) GetOrganization(_ context.Context, ref org.Ref) (org.Organization, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if o, ok := repo.db.orgs[ref.String()]; ok {
		return *o, nil
	}
	return org.Organization{}, org.ErrNotFound
}

func (repo *orgRepository) QueryAllOrganizations(_ context.Context) ([]org.Organization, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.query(), nil
}

func (repo *orgRepository) FilterOrganizations(_ context.Context, filter org.QueryFilter) ([]org.Organization, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var orgs []org.Organization
	search := strings.ToLower(filter.Search)
	for _, o := range repo.query() {
		if search != "" && !strings.Contains(strings.ToLower(o.Name), search) {
			continue
		}
		if filter.Kind != "" && o.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		orgs = append(orgs, o)
	}
	return orgs, nil
}

func (repo *orgRepository) UpdateOrganization(_ context.Context, o org.Organization, certified, shareMembers *bool) (org.Organization, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.orgs[o.Ref().String()]
	if !ok {
		return org.Organization{}, org.ErrNotFound
	}
	orig.Name = o.Name
	orig.UpdatedAt = o.UpdatedAt
	if certified != nil {
		orig.Certified = *certified
	}
	if shareMembers != nil {
		orig.ShareMembersWithBranches = *shareMembers
	}
	return *orig, nil
}

func (repo *orgRepository) QueryBranches(_ context.Context, parent org.Ref) ([]org.Organization, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var branches []org.Organization
	for _, o := range repo.query() {
		if o.Kind == parent.Kind && o.ParentID.Valid && o.ParentID.String == parent.ID {
			branches = append(branches, o)
		}
	}
	return branches, nil
}

func (repo *orgRepository) DeleteOrganizationsByID(_ context.Context, kind org.Kind, ids ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for _, id := range ids {
		delete(repo.db.orgs, org.Ref{Kind: kind, ID: id}.String())
	}
	return nil
}
