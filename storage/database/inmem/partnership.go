package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/pamoja/core/org"
	"github.com/trezcool/pamoja/core/partnership"
)

type partnershipRepository struct {
	db *DB
}

func NewPartnershipRepository(db *DB) partnership.Repository {
	return &partnershipRepository{db: db}
}

func (repo *partnershipRepository) queryMembers(partnershipID string) []partnership.Member {
	var members []partnership.Member
	for _, m := range repo.db.partMembers {
		if m.PartnershipID == partnershipID {
			members = append(members, *m)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].CreatedAt.Before(members[j].CreatedAt) })
	return members
}

func (repo *partnershipRepository) CreatePartnership(_ context.Context, p partnership.Partnership, members []partnership.Member) (partnership.Partnership, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.partnerships[p.ID] = &p
	for i := range members {
		m := members[i]
		repo.db.partMembers[m.ID] = &m
	}
	return p, nil
}

func (repo *partnershipRepository) GetPartnership(_ context.Context, id string) (partnership.Partnership, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.partnerships[id]; ok {
		return *p, nil
	}
	return partnership.Partnership{}, partnership.ErrNotFound
}

func (repo *partnershipRepository) QueryPartnershipsByOrg(_ context.Context, ref org.Ref) ([]partnership.Partnership, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var ps []partnership.Partnership
	for _, m := range repo.db.partMembers {
		if !m.Participant.Equal(ref) {
			continue
		}
		if p, ok := repo.db.partnerships[m.PartnershipID]; ok {
			ps = append(ps, *p)
		}
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
	return ps, nil
}

func (repo *partnershipRepository) QueryActivePartnershipsByOrg(_ context.Context, ref org.Ref) ([]partnership.Partnership, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var ps []partnership.Partnership
	for _, m := range repo.db.partMembers {
		if !m.Participant.Equal(ref) || m.Status != partnership.MemberConfirmed {
			continue
		}
		if p, ok := repo.db.partnerships[m.PartnershipID]; ok && p.Status == partnership.StatusConfirmed {
			ps = append(ps, *p)
		}
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
	return ps, nil
}

func (repo *partnershipRepository) QueryMembers(_ context.Context, partnershipID string) ([]partnership.Member, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.queryMembers(partnershipID), nil
}

func (repo *partnershipRepository) GetMember(_ context.Context, id string) (partnership.Member, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if m, ok := repo.db.partMembers[id]; ok {
		return *m, nil
	}
	return partnership.Member{}, partnership.ErrMemberNotFound
}

func (repo *partnershipRepository) CreateMember(_ context.Context, m partnership.Member) (partnership.Member, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.partMembers[m.ID] = &m
	return m, nil
}

func (repo *partnershipRepository) SetMemberStatus(_ context.Context, m partnership.Member, status string) (partnership.Member, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.partMembers[m.ID]
	if !ok {
		return partnership.Member{}, partnership.ErrMemberNotFound
	}
	orig.Status = status
	if status == partnership.MemberConfirmed {
		orig.ConfirmedAt = null.TimeFrom(time.Now().UTC())
	} else {
		orig.ConfirmedAt = null.Time{}
	}
	return *orig, nil
}

func (repo *partnershipRepository) SetPartnershipStatus(_ context.Context, p partnership.Partnership, status string) (partnership.Partnership, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.partnerships[p.ID]
	if !ok {
		return partnership.Partnership{}, partnership.ErrNotFound
	}
	orig.Status = status
	orig.UpdatedAt = time.Now().UTC()
	return *orig, nil
}

func (repo *partnershipRepository) DeletePartnership(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.partnerships, id)
	for mid, m := range repo.db.partMembers {
		if m.PartnershipID == id {
			delete(repo.db.partMembers, mid)
		}
	}
	return nil
}
