package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/pamoja/core"
	"github.com/trezcool/pamoja/core/membership"
	"github.com/trezcool/pamoja/core/org"
	"github.com/trezcool/pamoja/core/user"
)

// addSuperadmin bootstraps an organization together with its confirmed
// superadmin, bypassing the email confirmation round-trip.
func (cli *commandLine) addSuperadmin(kind org.Kind, orgName, uname, email, pwd string) error {
	ctx := context.Background()
	now := time.Now().UTC()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, uname)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{
			ID:             uuid.New().String(),
			Name:           uname,
			Username:       uname,
			Email:          email,
			IsActive:       true,
			EmailConfirmed: true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err = usr.SetPassword(pwd); err != nil {
			return err
		}
		if usr, err = cli.usrRepo.CreateUser(ctx, usr); err != nil {
			return err
		}
	}

	o, err := cli.orgRepo.CreateOrganization(ctx, org.Organization{
		ID:        uuid.New().String(),
		Kind:      kind,
		Name:      core.CleanString(orgName),
		Status:    org.StatusConfirmed,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return err
	}

	_, err = cli.memRepo.CreateMembership(ctx, membership.Membership{
		ID:          uuid.New().String(),
		UserID:      usr.ID,
		Org:         o.Ref(),
		Role:        membership.RoleSuperadmin,
		Status:      membership.StatusConfirmed,
		ConfirmedAt: null.TimeFrom(now),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	return err
}
