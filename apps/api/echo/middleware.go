package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/pamoja/core/access"
	"github.com/trezcool/pamoja/core/org"
	"github.com/trezcool/pamoja/core/user"
)

// adminMiddleware restricts an endpoint to platform operators.
func adminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// orgRefFromParams resolves the conventional :kind/:id path params pair.
func orgRefFromParams(ctx echo.Context) (org.Ref, error) {
	kind := org.Kind(ctx.Param("kind"))
	if !kind.Valid() {
		return org.Ref{}, errHttpNotFound
	}
	return org.Ref{Kind: kind, ID: ctx.Param("id")}, nil
}

// authorize resolves the context user and checks the action against the
// organization-scoped policy.
func authorize(ctx echo.Context, svc user.ServiceInterface, policy *access.Policy, action access.Action, ref org.Ref) (user.User, error) {
	usr, err := getContextUser(ctx, svc)
	if err != nil {
		return user.User{}, errors.Wrap(err, "getting context user")
	}
	if err = policy.Authorize(ctx.Request().Context(), usr, action, ref); err != nil {
		return user.User{}, err
	}
	return usr, nil
}
