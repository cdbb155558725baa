package org

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("organization not found")

type (
	Repository interface {
		CreateOrganization(ctx context.Context, o Organization) (Organization, error)
		GetOrganization(ctx context.Context, ref Ref) (Organization, error)
		QueryAllOrganizations(ctx context.Context) ([]Organization, error)
		// FilterOrganizations applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Organization.Name.
		FilterOrganizations(ctx context.Context, filter QueryFilter) ([]Organization, error)
		UpdateOrganization(ctx context.Context, o Organization, certified, shareMembers *bool) (Organization, error)
		QueryBranches(ctx context.Context, parent Ref) ([]Organization, error)
		DeleteOrganizationsByID(ctx context.Context, kind Kind, ids ...string) error
	}

	ServiceInterface interface {
		Create(ctx context.Context, no NewOrganization) (Organization, error)
		Resolve(ctx context.Context, ref Ref) (Organization, error)
		QueryAll(ctx context.Context) ([]Organization, error)
		Filter(ctx context.Context, filter QueryFilter) ([]Organization, error)
		Update(ctx context.Context, ref Ref, uo UpdateOrganization) (Organization, error)
		Branches(ctx context.Context, parent Ref) ([]Organization, error)
		Delete(ctx context.Context, kind Kind, ids ...string) error
	}

	Service struct {
		repo Repository
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create registers a new Organization in pending status. The registering
// user's pending superadmin membership is created by the membership service;
// both are confirmed together once the owner confirms their email address.
func (svc *Service) Create(ctx context.Context, no NewOrganization) (Organization, error) {
	now := time.Now().UTC()
	o := Organization{
		ID:        uuid.New().String(),
		Kind:      no.Kind,
		Name:      no.Name,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if no.Kind == KindCompany {
		o.ShareMembersWithBranches = no.ShareMembersWithBranches
	}
	return svc.repo.CreateOrganization(ctx, o)
}

// Resolve loads the Organization a polymorphic Ref points to.
func (svc *Service) Resolve(ctx context.Context, ref Ref) (Organization, error) {
	return svc.repo.GetOrganization(ctx, ref)
}

func (svc *Service) QueryAll(ctx context.Context) ([]Organization, error) {
	return svc.repo.QueryAllOrganizations(ctx)
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter) ([]Organization, error) {
	return svc.repo.FilterOrganizations(ctx, filter)
}

func (svc *Service) Update(ctx context.Context, ref Ref, uo UpdateOrganization) (Organization, error) {
	orig, err := svc.repo.GetOrganization(ctx, ref)
	if err != nil {
		return Organization{}, err
	}
	if uo.Name != "" {
		orig.Name = uo.Name
	}
	orig.UpdatedAt = time.Now().UTC()
	if orig.Kind != KindCompany {
		uo.ShareMembersWithBranches = nil
	}
	return svc.repo.UpdateOrganization(ctx, orig, uo.Certified, uo.ShareMembersWithBranches)
}

func (svc *Service) Branches(ctx context.Context, parent Ref) ([]Organization, error) {
	return svc.repo.QueryBranches(ctx, parent)
}

func (svc *Service) Delete(ctx context.Context, kind Kind, ids ...string) error {
	return svc.repo.DeleteOrganizationsByID(ctx, kind, ids...)
}
