package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/basic-school-api/internal/middleware"
	appErrors "github.com/noah-isme/basic-school-api/pkg/errors"
	"github.com/noah-isme/basic-school-api/pkg/response"
)

func actorID(c *gin.Context) string {
	if claims, ok := middleware.CurrentUser(c); ok {
		return claims.UserID
	}
	return ""
}

// bindJSON decodes the body into dst and writes a validation error on failure.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}

// optionalIntQuery parses an integer query parameter. A missing parameter yields 0.
func optionalIntQuery(c *gin.Context, key string) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, key+" must be an integer"))
		return 0, false
	}
	return v, true
}

func pageParams(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		page = 1
	}
	size, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		size = 20
	}
	return page, size
}
