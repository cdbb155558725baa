package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/pamoja/core/access"
	"github.com/trezcool/pamoja/core/membership"
	"github.com/trezcool/pamoja/core/org"
)

type membershipApi struct {
	opts *Options
}

func registerMembershipAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := membershipApi{opts: opts}

	mg := g.Group("/orgs/:kind/:id/members", jwt)
	mg.GET("", api.query)
	mg.POST("", api.invite)

	dg := mg.Group("/:mid")
	dg.GET("", api.retrieve)
	dg.POST("/confirm", api.confirm)
	dg.POST("/unconfirm", api.unconfirm)
	dg.PUT("/role", api.updateRole)
	dg.POST("/transfer-superadmin", api.transferSuperadmin)
	dg.DELETE("", api.destroy)
}

// actorAndTarget resolves the caller's own membership in the organization and
// the targeted membership row. The target must belong to the same org.
func (api *membershipApi) actorAndTarget(ctx echo.Context, ref org.Ref) (actor, target membership.Membership, err error) {
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return actor, target, errors.Wrap(err, "getting context user")
	}
	actor, err = api.opts.MembershipSvc.For(ctx.Request().Context(), ctxUsr.ID, ref)
	if err != nil {
		if errors.Cause(err) == membership.ErrNotFound {
			return actor, target, errHttpForbidden
		}
		return actor, target, errors.Wrap(err, "getting actor membership")
	}
	target, err = api.opts.MembershipSvc.GetByID(ctx.Request().Context(), ctx.Param("mid"))
	if err != nil {
		return actor, target, errors.Wrap(err, "getting membership")
	}
	if !target.Org.Equal(ref) {
		return actor, target, errHttpNotFound
	}
	return actor, target, nil
}

func (api *membershipApi) query(ctx echo.Context) error {
	ref, err := orgRefFromParams(ctx)
	if err != nil {
		return err
	}
	if _, err = authorize(ctx, api.opts.UserSvc, api.opts.Policy, access.ActionView, ref); err != nil {
		return err
	}

	filter := new(membership.QueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []membership.Membership{})
	}

	members, err := api.opts.MembershipSvc.QueryByOrg(ctx.Request().Context(), ref, *filter)
	if err != nil {
		return errors.Wrap(err, "querying memberships")
	}
	if members == nil {
		members = []membership.Membership{}
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *membershipApi) invite(ctx echo.Context) error {
	ref, err := orgRefFromParams(ctx)
	if err != nil {
		return err
	}
	if _, err = authorize(ctx, api.opts.UserSvc, api.opts.Policy, access.ActionManageMembers, ref); err != nil {
		return err
	}

	var data membership.NewMembership
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMembership")
	}
	data.Org = ref
	if err = data.Validate(api.opts.Validate); err != nil {
		return err
	}

	m, err := api.opts.MembershipSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating membership")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *membershipApi) retrieve(ctx echo.Context) error {
	ref, err := orgRefFromParams(ctx)
	if err != nil {
		return err
	}
	if _, err = authorize(ctx, api.opts.UserSvc, api.opts.Policy, access.ActionView, ref); err != nil {
		return err
	}

	m, err := api.opts.MembershipSvc.GetByID(ctx.Request().Context(), ctx.Param("mid"))
	if err != nil {
		return errors.Wrap(err, "getting membership")
	}
	if !m.Org.Equal(ref) {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *membershipApi) confirm(ctx echo.Context) error {
	ref, err := orgRefFromParams(ctx)
	if err != nil {
		return err
	}
	actor, target, err := api.actorAndTarget(ctx, ref)
	if err != nil {
		return err
	}

	m, err := api.opts.MembershipSvc.Confirm(ctx.Request().Context(), actor, target)
	if err != nil {
		return errors.Wrap(err, "confirming membership")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *membershipApi) unconfirm(ctx echo.Context) error {
	ref, err := orgRefFromParams(ctx)
	if err != nil {
		return err
	}
	actor, target, err := api.actorAndTarget(ctx, ref)
	if err != nil {
		return err
	}

	m, err := api.opts.MembershipSvc.Unconfirm(ctx.Request().Context(), actor, target)
	if err != nil {
		return errors.Wrap(err, "unconfirming membership")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *membershipApi) updateRole(ctx echo.Context) error {
	ref, err := orgRefFromParams(ctx)
	if err != nil {
		return err
	}
	actor, target, err := api.actorAndTarget(ctx, ref)
	if err != nil {
		return err
	}

	var data membership.UpdateMembershipRole
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateMembershipRole")
	}
	if err = data.Validate(api.opts.Validate); err != nil {
		return err
	}

	m, err := api.opts.MembershipSvc.UpdateRole(ctx.Request().Context(), actor, target, data.Role)
	if err != nil {
		return errors.Wrap(err, "updating membership role")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *membershipApi) transferSuperadmin(ctx echo.Context) error {
	ref, err := orgRefFromParams(ctx)
	if err != nil {
		return err
	}
	actor, target, err := api.actorAndTarget(ctx, ref)
	if err != nil {
		return err
	}

	if err = api.opts.MembershipSvc.TransferSuperadmin(ctx.Request().Context(), actor, target); err != nil {
		return errors.Wrap(err, "transferring superadmin seat")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *membershipApi) destroy(ctx echo.Context) error {
	ref, err := orgRefFromParams(ctx)
	if err != nil {
		return err
	}
	actor, target, err := api.actorAndTarget(ctx, ref)
	if err != nil {
		return err
	}

	if err = api.opts.MembershipSvc.Destroy(ctx.Request().Context(), actor, target); err != nil {
		return errors.Wrap(err, "removing membership")
	}
	return ctx.NoContent(http.StatusNoContent)
}
