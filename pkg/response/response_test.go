package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/basic-school-api/internal/models"
	appErrors "github.com/noah-isme/basic-school-api/pkg/errors"
)

func TestJSONWithPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	JSON(c, http.StatusOK, []string{"a"}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, map[string]interface{}{"is_default": true})

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, float64(1), body["pagination"].(map[string]interface{})["total_count"])
	assert.Equal(t, true, body["meta"].(map[string]interface{})["is_default"])
}

func TestErrorRecordsServerFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, errors.New("database exploded"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.True(t, c.IsAborted())
	require.Len(t, c.Errors, 1)

	var body Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
}

func TestErrorCarriesDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, appErrors.WithDetails(appErrors.ErrInvalidGradingSystem, "bands overlap", map[string]string{"rule": "OVERLAP"}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, c.Errors)
	assert.Contains(t, w.Body.String(), `"rule":"OVERLAP"`)
}
