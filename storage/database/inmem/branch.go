package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/pamoja/core/branch"
	"github.com/trezcool/pamoja/core/org"
)

type branchRepository struct {
	db *DB
}

func NewBranchRepository(db *DB) branch.Repository {
	return &branchRepository{db: db}
}

func (repo *branchRepository) query() []branch.Request {
	reqs := make([]branch.Request, 0, len(repo.db.branchRequests))
	for _, r := range repo.db.branchRequests {
		reqs = append(reqs, *r)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].ID < reqs[j].ID })
	return reqs
}

func (repo *branchRepository) CreateRequest(_ context.Context, r branch.Request) (branch.Request, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.branchRequests[r.ID] = &r
	return r, nil
}

func (repo *branchRepository) GetRequest(_ context.Context, id string) (branch.Request, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if r, ok := repo.db.branchRequests[id]; ok {
		return *r, nil
	}
	return branch.Request{}, branch.ErrNotFound
}

func (repo *branchRepository) QueryRequestsByOrg(_ context.Context, ref org.Ref) ([]branch.Request, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var reqs []branch.Request
	for _, r := range repo.query() {
		if r.Parent.Equal(ref) || r.Child.Equal(ref) {
			reqs = append(reqs, r)
		}
	}
	return reqs, nil
}

func (repo *branchRepository) PendingRequestExists(_ context.Context, parent, child org.Ref) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, r := range repo.db.branchRequests {
		if r.Parent.Equal(parent) && r.Child.Equal(child) && r.Status == branch.StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (repo *branchRepository) ConfirmRequest(_ context.Context, r branch.Request) (branch.Request, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.branchRequests[r.ID]
	if !ok {
		return branch.Request{}, branch.ErrNotFound
	}
	child, ok := repo.db.orgs[r.Child.String()]
	if !ok {
		return branch.Request{}, org.ErrNotFound
	}
	orig.Status = branch.StatusConfirmed
	orig.ConfirmedAt = r.ConfirmedAt
	child.ParentID = null.StringFrom(r.Parent.ID)
	child.UpdatedAt = time.Now().UTC()
	return *orig, nil
}

func (repo *branchRepository) RejectRequest(_ context.Context, r branch.Request) (branch.Request, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.branchRequests[r.ID]
	if !ok {
		return branch.Request{}, branch.ErrNotFound
	}
	orig.Status = branch.StatusRejected
	return *orig, nil
}

func (repo *branchRepository) DeleteRequest(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.branchRequests, id)
	return nil
}

func (repo *branchRepository) DetachBranch(_ context.Context, childRef org.Ref) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	child, ok := repo.db.orgs[childRef.String()]
	if !ok {
		return org.ErrNotFound
	}
	child.ParentID = null.String{}
	child.UpdatedAt = time.Now().UTC()
	return nil
}
