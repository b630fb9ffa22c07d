package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/access"
	"github.com/educarcms/educar/core/school"
	"github.com/educarcms/educar/core/user"
)

var (
	accessContextKey = "access"
	homePath         = "/"
)

func superuserMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if !usr.IsSuperuser {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// tenantMiddleware resolves the school of the :slug param and the membership of the
// authenticated user in it, then stores the resulting access.Context.
func tenantMiddleware(usrSvc *user.Service, schoolSvc *school.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, usrSvc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			rctx := ctx.Request().Context()

			sch, err := schoolSvc.GetBySlug(rctx, ctx.Param("slug"))
			if err != nil {
				if core.IsNotFound(err) {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding school by slug")
			}
			m, err := schoolSvc.GetMember(rctx, sch.ID, usr.ID)
			if err != nil && !core.IsNotFound(err) {
				return errors.Wrap(err, "finding membership")
			}

			ac := access.Context{User: usr, School: sch, Member: m}
			if d := access.RequireMember(ac); !d.Allowed {
				return deny(d, homePath)
			}
			ctx.Set(accessContextKey, ac)
			return next(ctx)
		}
	}
}

// guardMiddleware denies the request, redirecting to the school dashboard, when one of guards does.
func guardMiddleware(guards ...access.Guard) echo.MiddlewareFunc {
	guard := access.Chain(guards...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ac := getAccess(ctx)
			if d := guard(ac); !d.Allowed {
				return deny(d, schoolPath(ac.School.Slug, "dashboard"))
			}
			return next(ctx)
		}
	}
}

var (
	adminOnly = guardMiddleware(access.RequireAdmin)
	staffOnly = guardMiddleware(access.RequireStaff)
)

func getAccess(ctx echo.Context) access.Context {
	ac, _ := ctx.Get(accessContextKey).(access.Context)
	return ac
}

// schoolPath builds the API path of a tenant resource.
func schoolPath(slug string, parts ...string) string {
	p := "/v1/school/" + slug
	if len(parts) > 0 {
		p += "/" + strings.Join(parts, "/")
	}
	return p
}
