package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/basic-school-api/internal/models"
	"github.com/noah-isme/basic-school-api/internal/service"
	appErrors "github.com/noah-isme/basic-school-api/pkg/errors"
)

type stubValidator struct {
	claims *models.JWTClaims
	err    error
	seen   string
}

func (s *stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	s.seen = token
	return s.claims, s.err
}

type recordingAudit struct {
	entries []*models.AuditLog
	err     error
}

func (r *recordingAudit) Create(ctx context.Context, log *models.AuditLog) error {
	r.entries = append(r.entries, log)
	return r.err
}

func init() {
	gin.SetMode(gin.TestMode)
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error.Code
}

func TestJWT(t *testing.T) {
	validator := &stubValidator{claims: &models.JWTClaims{UserID: "u1", Role: models.RoleTeacher}}
	r := gin.New()
	r.GET("/me", JWT(validator), func(c *gin.Context) {
		claims, ok := CurrentUser(c)
		require.True(t, ok)
		c.String(http.StatusOK, claims.UserID)
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"empty token", "Bearer  ", http.StatusUnauthorized},
		{"valid", "Bearer good-token", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
	assert.Equal(t, "good-token", validator.seen)
}

func TestJWTPropagatesValidatorError(t *testing.T) {
	validator := &stubValidator{err: appErrors.Clone(appErrors.ErrForbidden, "account has no school role")}
	r := gin.New()
	r.GET("/me", JWT(validator), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer x")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, w))
}

func TestRBAC(t *testing.T) {
	route := func(role models.UserRole) *httptest.ResponseRecorder {
		r := gin.New()
		r.POST("/grading-systems", func(c *gin.Context) {
			if role != "" {
				c.Set(ContextUserKey, &models.JWTClaims{UserID: "u1", Role: role})
			}
			c.Next()
		}, RequireStaffLeads(), func(c *gin.Context) { c.Status(http.StatusCreated) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/grading-systems", nil))
		return w
	}

	assert.Equal(t, http.StatusCreated, route(models.RoleAdmin).Code)
	assert.Equal(t, http.StatusCreated, route(models.RoleHeadteacher).Code)
	assert.Equal(t, http.StatusForbidden, route(models.RoleTeacher).Code)
	assert.Equal(t, http.StatusUnauthorized, route("").Code)
}

func TestAuditRecordsSuccessfulMutations(t *testing.T) {
	writer := &recordingAudit{}
	r := gin.New()
	r.POST("/classes/:id/promote", func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "head-1", Role: models.RoleHeadteacher})
		c.Next()
	}, Audit(writer, zap.NewNop(), models.AuditActionClassPromote, "class"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.POST("/classes/:id/graduate", Audit(writer, nil, models.AuditActionClassGraduate, "class"), func(c *gin.Context) {
		c.Status(http.StatusPreconditionFailed)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/classes/c7/promote", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/classes/c9/graduate", nil))

	require.Len(t, writer.entries, 1)
	entry := writer.entries[0]
	assert.Equal(t, models.AuditActionClassPromote, entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "head-1", *entry.UserID)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "c7", *entry.ResourceID)
	assert.Contains(t, string(entry.NewValues), `"/classes/:id/promote"`)
}

func TestAuditWriteFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	writer := &recordingAudit{err: errors.New("insert failed")}
	r := gin.New()
	r.POST("/bece/results", Audit(writer, zap.New(core), models.AuditActionBECERecord, "bece_result"), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/bece/results", nil))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, logs.FilterMessage("audit log write failed").Len())
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/grades/report-card/:studentId", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/grades/report-card/s1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.Contains(t, body, `path="/grades/report-card/:studentId"`)
	assert.Contains(t, body, `path="unmatched"`)
	assert.NotContains(t, body, `/grades/report-card/s1`)
}

func TestResponseMeta(t *testing.T) {
	r := gin.New()
	r.Use(WithResponseMeta())
	var meta map[string]interface{}
	r.GET("/grading-systems/current", func(c *gin.Context) {
		assert.Nil(t, ExtractMeta(c))
		SetCacheHit(c, true)
		SetMeta(c, "", "ignored")
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/grading-systems/current", nil))

	require.NotNil(t, meta)
	assert.Equal(t, true, meta[MetaCacheHit])
	assert.Contains(t, meta, MetaProcessingTime)
	assert.NotContains(t, meta, "")
	assert.Nil(t, ExtractMeta(nil))
}
