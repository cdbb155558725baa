package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/pamoja/core/membership"
	"github.com/trezcool/pamoja/core/org"
)

type membershipRepository struct {
	db *DB
}

func NewMembershipRepository(db *DB) membership.Repository {
	return &membershipRepository{db: db}
}

func (repo *membershipRepository) query() []membership.Membership {
	mems := make([]membership.Membership, 0, len(repo.db.memberships))
	for _, m := range repo.db.memberships {
		mems = append(mems, *m)
	}
	sort.Slice(mems, func(i, j int) bool { return mems[i].ID < mems[j].ID })
	return mems
}

func (repo *membershipRepository) CreateMembership(_ context.Context, m membership.Membership) (membership.Membership, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	// unique (user, org) pair; storage-level backstop
	for _, existing := range repo.db.memberships {
		if existing.UserID == m.UserID && existing.Org.Equal(m.Org) {
			return membership.Membership{}, membership.ErrAlreadyMember
		}
	}
	// partial unique: one superadmin per org
	if m.Role == membership.RoleSuperadmin {
		for _, existing := range repo.db.memberships {
			if existing.Org.Equal(m.Org) && existing.Role == membership.RoleSuperadmin {
				return membership.Membership{}, membership.ErrSuperadminExists
			}
		}
	}
	repo.db.memberships[m.ID] = &m
	return m, nil
}

func (repo *membershipRepository) GetMembership(_ context.Context, id string) (membership.Membership, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if m, ok := repo.db.memberships[id]; ok {
		return *m, nil
	}
	return membership.Membership{}, membership.ErrNotFound
}

func (repo *membershipRepository) GetMembershipForUser(_ context.Context, userID string, ref org.Ref) (membership.Membership, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, m := range repo.query() {
		if m.UserID == userID && m.Org.Equal(ref) {
			return m, nil
		}
	}
	return membership.Membership{}, membership.ErrNotFound
}

func (repo *membershipRepository) QueryMembershipsByOrg(_ context.Context, ref org.Ref, filter membership.QueryFilter) ([]membership.Membership, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var mems []membership.Membership
	for _, m := range repo.query() {
		if !m.Org.Equal(ref) {
			continue
		}
		if filter.Role != "" && m.Role != filter.Role {
			continue
		}
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		mems = append(mems, m)
	}
	return mems, nil
}

func (repo *membershipRepository) QueryMembershipsByUser(_ context.Context, userID string) ([]membership.Membership, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var mems []membership.Membership
	for _, m := range repo.query() {
		if m.UserID == userID {
			mems = append(mems, m)
		}
	}
	return mems, nil
}

func (repo *membershipRepository) QueryPendingSuperadminMemberships(_ context.Context, userID string) ([]membership.Membership, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var mems []membership.Membership
	for _, m := range repo.query() {
		if m.UserID == userID && m.Role == membership.RoleSuperadmin && m.Status == membership.StatusPending {
			mems = append(mems, m)
		}
	}
	return mems, nil
}

func (repo *membershipRepository) SuperadminExists(_ context.Context, ref org.Ref, excluded ...membership.Membership) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	excl := make(map[string]bool, len(excluded))
	for _, m := range excluded {
		excl[m.ID] = true
	}
	for _, m := range repo.db.memberships {
		if m.Org.Equal(ref) && m.Role == membership.RoleSuperadmin && !excl[m.ID] {
			return true, nil
		}
	}
	return false, nil
}

func (repo *membershipRepository) SetMembershipStatus(_ context.Context, m membership.Membership, status string) (membership.Membership, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.memberships[m.ID]
	if !ok {
		return membership.Membership{}, membership.ErrNotFound
	}
	orig.Status = status
	orig.UpdatedAt = time.Now().UTC()
	if status == membership.StatusConfirmed {
		orig.ConfirmedAt = null.TimeFrom(orig.UpdatedAt)
	} else {
		orig.ConfirmedAt = null.Time{}
	}
	return *orig, nil
}

func (repo *membershipRepository) SetMembershipRole(_ context.Context, m membership.Membership, role string) (membership.Membership, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.memberships[m.ID]
	if !ok {
		return membership.Membership{}, membership.ErrNotFound
	}
	orig.Role = role
	orig.UpdatedAt = time.Now().UTC()
	return *orig, nil
}

func (repo *membershipRepository) TransferSuperadminRole(_ context.Context, from, to membership.Membership) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	origFrom, ok := repo.db.memberships[from.ID]
	if !ok {
		return membership.ErrNotFound
	}
	origTo, ok := repo.db.memberships[to.ID]
	if !ok {
		return membership.ErrNotFound
	}
	now := time.Now().UTC()
	origFrom.Role = membership.RoleAdmin
	origTo.Role = membership.RoleSuperadmin
	origFrom.UpdatedAt, origTo.UpdatedAt = now, now
	return nil
}

func (repo *membershipRepository) ConfirmOwnerMembership(_ context.Context, m membership.Membership) (membership.Membership, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.memberships[m.ID]
	if !ok {
		return membership.Membership{}, membership.ErrNotFound
	}
	now := time.Now().UTC()
	orig.Status = membership.StatusConfirmed
	orig.ConfirmedAt = null.TimeFrom(now)
	orig.UpdatedAt = now
	if o, ok := repo.db.orgs[orig.Org.String()]; ok {
		o.Status = org.StatusConfirmed
		o.UpdatedAt = now
	}
	return *orig, nil
}

func (repo *membershipRepository) DeleteMembership(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.memberships, id)
	return nil
}
