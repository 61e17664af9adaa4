package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/basic-school-api/internal/models"
	appErrors "github.com/noah-isme/basic-school-api/pkg/errors"
	"github.com/noah-isme/basic-school-api/pkg/response"
)

// RBAC enforces role-based access control for routes.
func RBAC(allowed ...models.UserRole) gin.HandlerFunc {
	allowedRoles := make(map[models.UserRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedRoles[role] = struct{}{}
	}

	return func(c *gin.Context) {
		claims, ok := CurrentUser(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		if _, ok := allowedRoles[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" may not perform this action"))
			return
		}
		c.Next()
	}
}

// RequireStaffLeads limits a route to administrators and head teachers.
func RequireStaffLeads() gin.HandlerFunc {
	return RBAC(models.RoleAdmin, models.RoleHeadteacher)
}
