package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/pamoja/core/membership"
	"github.com/trezcool/pamoja/core/org"
	"github.com/trezcool/pamoja/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:        uuid.New().String(),
		Name:      name,
		Username:  uname,
		Email:     email,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func CreateOrg(
	t *testing.T,
	repo org.Repository,
	kind org.Kind,
	name string,
	confirmed bool,
) org.Organization {
	t.Helper()

	now := time.Now().UTC()
	status := org.StatusPending
	if confirmed {
		status = org.StatusConfirmed
	}
	o, err := repo.CreateOrganization(context.Background(), org.Organization{
		ID:        uuid.New().String(),
		Kind:      kind,
		Name:      name,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("createOrg() failed: %v", err)
	}
	return o
}

func CreateMembership(
	t *testing.T,
	repo membership.Repository,
	usr user.User,
	o org.Organization,
	role string,
	confirmed bool,
) membership.Membership {
	t.Helper()

	now := time.Now().UTC()
	m := membership.Membership{
		ID:        uuid.New().String(),
		UserID:    usr.ID,
		Org:       o.Ref(),
		Role:      role,
		Status:    membership.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if confirmed {
		m.Status = membership.StatusConfirmed
		m.ConfirmedAt = null.TimeFrom(now)
	}
	m, err := repo.CreateMembership(context.Background(), m)
	if err != nil {
		t.Fatalf("createMembership() failed: %v", err)
	}
	return m
}
