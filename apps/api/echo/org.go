package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/pamoja/core/access"
	"github.com/trezcool/pamoja/core/membership"
	"github.com/trezcool/pamoja/core/org"
)

type orgApi struct {
	opts *Options
}

func registerOrgAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := orgApi{opts: opts}

	og := g.Group("/orgs", jwt)
	og.POST("", api.create)
	og.GET("", api.query)

	dg := og.Group("/:kind/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.GET("/branches", api.branches)
	dg.DELETE("/parent", api.detach)
}

// create registers an organization. The caller becomes its pending
// superadmin; both go live once the caller confirms their email address.
func (api *orgApi) create(ctx echo.Context) error {
	var data org.NewOrganization
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewOrganization")
	}
	if err := data.Validate(api.opts.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	o, err := api.opts.OrgSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating organization")
	}

	nm := membership.NewMembership{UserID: ctxUsr.ID, Org: o.Ref(), Role: membership.RoleSuperadmin}
	if _, err = api.opts.MembershipSvc.Create(ctx.Request().Context(), nm); err != nil {
		return errors.Wrap(err, "creating superadmin membership")
	}

	if ctxUsr.EmailConfirmed {
		// already-verified owners do not wait for another email round-trip
		if err = api.opts.MembershipSvc.ConfirmAccount(ctx.Request().Context(), ctxUsr); err != nil {
			return errors.Wrap(err, "confirming owner membership")
		}
		if o, err = api.opts.OrgSvc.Resolve(ctx.Request().Context(), o.Ref()); err != nil {
			return errors.Wrap(err, "resolving organization")
		}
	}
	return ctx.JSON(http.StatusCreated, o)
}

func (api *orgApi) query(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	filter := new(org.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []org.Organization{})
	}
	filter.Clean()

	var orgs []org.Organization
	if ctxUsr.IsAdmin && !filter.IsEmpty() {
		orgs, err = api.opts.OrgSvc.Filter(ctx.Request().Context(), *filter)
	} else {
		orgs, err = api.opts.Scope.VisibleOrgs(ctx.Request().Context(), ctxUsr)
	}
	if err != nil {
		return errors.Wrap(err, "querying organizations")
	}
	if orgs == nil {
		orgs = []org.Organization{}
	}
	return ctx.JSON(http.StatusOK, orgs)
}

func (api *orgApi) retrieve(ctx echo.Context) error {
	ref, err := orgRefFromParams(ctx)
	if err != nil {
		return err
	}
	o, err := api.opts.OrgSvc.Resolve(ctx.Request().Context(), ref)
	if err != nil {
		return errors.Wrap(err, "resolving organization")
	}
	return ctx.JSON(http.StatusOK, o)
}

func (api *orgApi) update(ctx echo.Context) error {
	ref, err := orgRefFromParams(ctx)
	if err != nil {
		return err
	}

	ctxUsr, err := authorize(ctx, api.opts.UserSvc, api.opts.Policy, access.ActionManageMembers, ref)
	if err != nil {
		return err
	}

	var data org.UpdateOrganization
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateOrganization")
	}
	if !ctxUsr.IsAdmin {
		// certification is an operator decision
		data.Certified = nil
	}

	orig, err := api.opts.OrgSvc.Resolve(ctx.Request().Context(), ref)
	if err != nil {
		return errors.Wrap(err, "resolving organization")
	}
	if err = data.Validate(api.opts.Validate, orig); err != nil {
		return err
	}

	o, err := api.opts.OrgSvc.Update(ctx.Request().Context(), ref, data)
	if err != nil {
		return errors.Wrap(err, "updating organization")
	}
	return ctx.JSON(http.StatusOK, o)
}

func (api *orgApi) branches(ctx echo.Context) error {
	ref, err := orgRefFromParams(ctx)
	if err != nil {
		return err
	}
	branches, err := api.opts.OrgSvc.Branches(ctx.Request().Context(), ref)
	if err != nil {
		return errors.Wrap(err, "querying branches")
	}
	if branches == nil {
		branches = []org.Organization{}
	}
	return ctx.JSON(http.StatusOK, branches)
}

// detach unlinks the organization from its parent.
func (api *orgApi) detach(ctx echo.Context) error {
	ref, err := orgRefFromParams(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.opts.BranchSvc.Detach(ctx.Request().Context(), ctxUsr, ref); err != nil {
		return errors.Wrap(err, "detaching branch")
	}
	return ctx.NoContent(http.StatusNoContent)
}
