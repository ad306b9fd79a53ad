package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/shuleapp/shule/core/auth"
)

const contextPermsKey = "permissions"

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.Permissions().ManageUsers && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func superAdminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.Permissions().Global {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// schoolPermissionMiddleware resolves the caller's permission surface, checks
// that it covers the school addressed by the :id route param and passes the
// allowed predicate, then stashes it in the context for handlers.
// Deny-by-default: an empty surface never passes.
func schoolPermissionMiddleware(allowed func(auth.Permissions) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			perms := claims.Permissions()
			if perms.IsEmpty() || !perms.AllowsSchool(ctx.Param("id")) || !allowed(perms) {
				return errHttpForbidden
			}
			ctx.Set(contextPermsKey, perms)
			return next(ctx)
		}
	}
}

// permissionMiddleware gates a route on the caller's resolved permission
// surface alone; for routes not scoped by a school route param.
func permissionMiddleware(allowed func(auth.Permissions) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			perms := claims.Permissions()
			if perms.IsEmpty() || !allowed(perms) {
				return errHttpForbidden
			}
			ctx.Set(contextPermsKey, perms)
			return next(ctx)
		}
	}
}

func getContextPermissions(ctx echo.Context) auth.Permissions {
	if perms, ok := ctx.Get(contextPermsKey).(auth.Permissions); ok {
		return perms
	}
	if claims, err := getContextClaims(ctx); err == nil {
		return claims.Permissions()
	}
	return auth.Permissions{}
}
