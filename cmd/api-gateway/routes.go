package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/basic-school-api/internal/handler"
	"github.com/noah-isme/basic-school-api/internal/middleware"
	"github.com/noah-isme/basic-school-api/internal/models"
	"github.com/noah-isme/basic-school-api/internal/service"
	"github.com/noah-isme/basic-school-api/pkg/config"
	"github.com/noah-isme/basic-school-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/basic-school-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/basic-school-api/pkg/middleware/requestid"
)

type routeDeps struct {
	auth    middleware.TokenValidator
	metrics *service.MetricsService
	audit   middleware.AuditWriter

	health        *handler.MetricsHandler
	gradingSystem *handler.GradingSystemHandler
	grades        *handler.GradeHandler
	bece          *handler.BECEHandler
	classes       *handler.ClassHandler
	promotions    *handler.PromotionHandler
	subjects      *handler.SubjectHandler
	students      *handler.StudentHandler
	terms         *handler.TermHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routeDeps) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))

	r.GET("/health", deps.health.Health)
	r.GET("/ready", deps.health.Ready)
	r.GET("/metrics", deps.health.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(deps.audit, logr, action, resource)
	}
	leads := middleware.RequireStaffLeads()
	staff := middleware.RBAC(models.RoleAdmin, models.RoleHeadteacher, models.RoleTeacher)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(deps.auth), staff, middleware.WithResponseMeta())

	systems := api.Group("/grading-systems")
	systems.GET("", deps.gradingSystem.List)
	systems.GET("/current", deps.gradingSystem.Current)
	systems.GET("/current/resolve", deps.gradingSystem.Resolve)
	systems.GET("/:id", deps.gradingSystem.Get)
	systems.POST("", leads, audit(models.AuditActionGradingSystemCreate, "grading_system"), deps.gradingSystem.Create)
	systems.PUT("/:id", leads, audit(models.AuditActionGradingSystemUpdate, "grading_system"), deps.gradingSystem.Update)
	systems.POST("/:id/activate", leads, audit(models.AuditActionGradingSystemActivate, "grading_system"), deps.gradingSystem.Activate)
	systems.POST("/regrade", leads, audit(models.AuditActionGradesRegrade, "grade"), deps.gradingSystem.Regrade)

	grades := api.Group("/grades")
	grades.GET("", deps.grades.List)
	grades.POST("", deps.grades.Upsert)
	grades.POST("/bulk", deps.grades.Bulk)
	grades.POST("/finalize", leads, audit(models.AuditActionGradesFinalize, "grade"), deps.grades.Finalize)
	grades.GET("/report-card/:studentId", deps.grades.ReportCard)
	grades.GET("/class-report", deps.grades.ClassReport)

	bece := api.Group("/bece")
	bece.POST("/results", leads, audit(models.AuditActionBECERecord, "bece_result"), deps.bece.Record)
	bece.GET("/students/:studentId", deps.bece.StudentAggregate)
	bece.GET("/classes/:classId/summary", deps.bece.ClassSummary)
	bece.POST("/aggregate", deps.bece.Preview)

	classes := api.Group("/classes")
	classes.GET("", deps.classes.List)
	classes.POST("", leads, deps.classes.Create)
	classes.GET("/:id", deps.classes.Get)
	classes.PUT("/:id", leads, deps.classes.Update)
	classes.GET("/:id/subjects", deps.classes.Subjects)
	classes.GET("/:id/progression", deps.promotions.Progression)
	classes.POST("/:id/promote", leads, audit(models.AuditActionClassPromote, "class"), deps.promotions.Promote)
	classes.POST("/:id/graduate", leads, audit(models.AuditActionClassGraduate, "class"), deps.promotions.Graduate)

	subjects := api.Group("/subjects")
	subjects.GET("", deps.subjects.List)
	subjects.GET("/:id", deps.subjects.Get)
	subjects.POST("", leads, deps.subjects.Create)

	students := api.Group("/students")
	students.GET("", deps.students.List)
	students.GET("/:id", deps.students.Get)

	terms := api.Group("/terms")
	terms.GET("", deps.terms.List)
	terms.GET("/active", deps.terms.Active)

	return r
}
