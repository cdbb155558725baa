package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/pamoja/core/access"
	"github.com/trezcool/pamoja/core/org"
	"github.com/trezcool/pamoja/core/partnership"
)

type partnershipApi struct {
	opts *Options
}

func registerPartnershipAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := partnershipApi{opts: opts}

	pg := g.Group("/partnerships", jwt)
	pg.POST("", api.create)
	pg.GET("", api.query)

	dg := pg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.GET("/members", api.members)
	dg.POST("/members", api.addMember)
	dg.POST("/members/:mid/confirm", api.confirmMember)
	dg.POST("/members/:mid/decline", api.declineMember)
	dg.POST("/confirm", api.confirm)
	dg.POST("/reject", api.reject)
	dg.DELETE("", api.destroy)
}

func (api *partnershipApi) create(ctx echo.Context) error {
	var data partnership.NewPartnership
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPartnership")
	}
	if err := data.Validate(api.opts.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	p, err := api.opts.PartnershipSvc.Create(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "creating partnership")
	}
	return ctx.JSON(http.StatusCreated, p)
}

// query lists an organization's partnerships; `active=true` keeps only those
// live for that organization (own row confirmed + aggregate confirmed).
func (api *partnershipApi) query(ctx echo.Context) error {
	ref := org.Ref{Kind: org.Kind(ctx.QueryParam("kind")), ID: ctx.QueryParam("org")}
	if !ref.Kind.Valid() || ref.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "kind and org query params are required")
	}
	if _, err := authorize(ctx, api.opts.UserSvc, api.opts.Policy, access.ActionView, ref); err != nil {
		return err
	}

	var ps []partnership.Partnership
	var err error
	if ctx.QueryParam("active") == "true" {
		ps, err = api.opts.PartnershipSvc.ActiveForOrg(ctx.Request().Context(), ref)
	} else {
		ps, err = api.opts.PartnershipSvc.QueryByOrg(ctx.Request().Context(), ref)
	}
	if err != nil {
		return errors.Wrap(err, "querying partnerships")
	}
	if ps == nil {
		ps = []partnership.Partnership{}
	}
	return ctx.JSON(http.StatusOK, ps)
}

func (api *partnershipApi) getPartnership(ctx echo.Context) (partnership.Partnership, error) {
	p, err := api.opts.PartnershipSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return partnership.Partnership{}, errors.Wrap(err, "getting partnership")
	}
	return p, nil
}

func (api *partnershipApi) retrieve(ctx echo.Context) error {
	p, err := api.getPartnership(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *partnershipApi) members(ctx echo.Context) error {
	p, err := api.getPartnership(ctx)
	if err != nil {
		return err
	}
	members, err := api.opts.PartnershipSvc.Members(ctx.Request().Context(), p)
	if err != nil {
		return errors.Wrap(err, "querying partnership members")
	}
	if members == nil {
		members = []partnership.Member{}
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *partnershipApi) addMember(ctx echo.Context) error {
	p, err := api.getPartnership(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data partnership.NewMember
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMember")
	}
	if err = data.Validate(api.opts.Validate); err != nil {
		return err
	}

	m, err := api.opts.PartnershipSvc.AddMember(ctx.Request().Context(), ctxUsr, p, data)
	if err != nil {
		return errors.Wrap(err, "adding partnership member")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *partnershipApi) getMember(ctx echo.Context) (partnership.Member, error) {
	m, err := api.opts.PartnershipSvc.Member(ctx.Request().Context(), ctx.Param("mid"))
	if err != nil {
		return partnership.Member{}, errors.Wrap(err, "getting partnership member")
	}
	if m.PartnershipID != ctx.Param("id") {
		return partnership.Member{}, errHttpNotFound
	}
	return m, nil
}

func (api *partnershipApi) confirmMember(ctx echo.Context) error {
	m, err := api.getMember(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	m, err = api.opts.PartnershipSvc.ConfirmMember(ctx.Request().Context(), ctxUsr, m)
	if err != nil {
		return errors.Wrap(err, "confirming partnership member")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *partnershipApi) declineMember(ctx echo.Context) error {
	m, err := api.getMember(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	m, err = api.opts.PartnershipSvc.DeclineMember(ctx.Request().Context(), ctxUsr, m)
	if err != nil {
		return errors.Wrap(err, "declining partnership member")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *partnershipApi) confirm(ctx echo.Context) error {
	p, err := api.getPartnership(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	p, err = api.opts.PartnershipSvc.ConfirmPartnership(ctx.Request().Context(), ctxUsr, p)
	if err != nil {
		return errors.Wrap(err, "confirming partnership")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *partnershipApi) reject(ctx echo.Context) error {
	p, err := api.getPartnership(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	p, err = api.opts.PartnershipSvc.RejectPartnership(ctx.Request().Context(), ctxUsr, p)
	if err != nil {
		return errors.Wrap(err, "rejecting partnership")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *partnershipApi) destroy(ctx echo.Context) error {
	p, err := api.getPartnership(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err = api.opts.PartnershipSvc.Destroy(ctx.Request().Context(), ctxUsr, p); err != nil {
		return errors.Wrap(err, "destroying partnership")
	}
	return ctx.NoContent(http.StatusNoContent)
}
