package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/pamoja/core/access"
	"github.com/trezcool/pamoja/core/branch"
	"github.com/trezcool/pamoja/core/org"
)

type branchApi struct {
	opts *Options
}

func registerBranchAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := branchApi{opts: opts}

	bg := g.Group("/branch-requests", jwt)
	bg.POST("", api.invite)
	bg.GET("", api.query)

	dg := bg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.POST("/confirm", api.confirm)
	dg.POST("/reject", api.reject)
	dg.DELETE("", api.cancel)
}

func (api *branchApi) invite(ctx echo.Context) error {
	var data branch.NewRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRequest")
	}
	if err := data.Validate(api.opts.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	r, err := api.opts.BranchSvc.Invite(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "creating branch request")
	}
	return ctx.JSON(http.StatusCreated, r)
}

// query lists the requests an organization is party to, either side.
func (api *branchApi) query(ctx echo.Context) error {
	ref := org.Ref{Kind: org.Kind(ctx.QueryParam("kind")), ID: ctx.QueryParam("org")}
	if !ref.Kind.Valid() || ref.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "kind and org query params are required")
	}
	if _, err := authorize(ctx, api.opts.UserSvc, api.opts.Policy, access.ActionManageBranches, ref); err != nil {
		return err
	}

	reqs, err := api.opts.BranchSvc.QueryByOrg(ctx.Request().Context(), ref)
	if err != nil {
		return errors.Wrap(err, "querying branch requests")
	}
	if reqs == nil {
		reqs = []branch.Request{}
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *branchApi) getRequest(ctx echo.Context) (branch.Request, error) {
	r, err := api.opts.BranchSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return branch.Request{}, errors.Wrap(err, "getting branch request")
	}
	return r, nil
}

func (api *branchApi) retrieve(ctx echo.Context) error {
	r, err := api.getRequest(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *branchApi) confirm(ctx echo.Context) error {
	r, err := api.getRequest(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	r, err = api.opts.BranchSvc.Confirm(ctx.Request().Context(), ctxUsr, r)
	if err != nil {
		return errors.Wrap(err, "confirming branch request")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *branchApi) reject(ctx echo.Context) error {
	r, err := api.getRequest(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	r, err = api.opts.BranchSvc.Reject(ctx.Request().Context(), ctxUsr, r)
	if err != nil {
		return errors.Wrap(err, "rejecting branch request")
	}
	return ctx.JSON(http.StatusOK, r)
}

// cancel withdraws a pending request; only the initiating side may do this.
func (api *branchApi) cancel(ctx echo.Context) error {
	r, err := api.getRequest(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err = api.opts.BranchSvc.Cancel(ctx.Request().Context(), ctxUsr, r); err != nil {
		return errors.Wrap(err, "cancelling branch request")
	}
	return ctx.NoContent(http.StatusNoContent)
}
