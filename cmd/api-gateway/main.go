package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/basic-school-api/api/swagger"
	"github.com/noah-isme/basic-school-api/internal/handler"
	"github.com/noah-isme/basic-school-api/internal/repository"
	"github.com/noah-isme/basic-school-api/internal/service"
	"github.com/noah-isme/basic-school-api/pkg/cache"
	"github.com/noah-isme/basic-school-api/pkg/config"
	"github.com/noah-isme/basic-school-api/pkg/database"
	"github.com/noah-isme/basic-school-api/pkg/grading"
	"github.com/noah-isme/basic-school-api/pkg/jobs"
	"github.com/noah-isme/basic-school-api/pkg/logger"
)

// @title Basic School Grading API
// @version 1.0.0
// @description Grade bands, composite scores, BECE aggregates and class progression for basic schools.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis, cfg.Cache.Enabled)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	// A typed nil client must not reach the cache repository as a non-nil interface.
	var cacheClient redis.UniversalClient
	if redisClient != nil {
		cacheClient = redisClient
	}

	classifier, err := grading.ParseClassifier(cfg.BECE.Classification)
	if err != nil {
		return fmt.Errorf("parse BECE_CLASSIFICATION: %w", err)
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	gradingRepo := repository.NewGradingSystemRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	beceRepo := repository.NewBECEResultRepository(db)
	classRepo := repository.NewClassRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	termRepo := repository.NewTermRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(cacheClient, cfg.Cache.Prefix, logr)
	defer cacheRepo.Close()

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.GradingTTL, logr, cfg.Cache.Enabled)

	queue := jobs.NewQueue("regrade", jobs.QueueConfig{
		Workers:    cfg.Regrade.Workers,
		MaxRetries: cfg.Regrade.MaxRetries,
		RetryDelay: cfg.Regrade.RetryDelay,
		Logger:     logr,
	})

	gradingSvc := service.NewGradingSystemService(gradingRepo, termRepo, cacheSvc, queue, cfg.Cache.GradingTTL, validate, logr)
	gradeSvc := service.NewGradeService(gradeRepo, studentRepo, gradingSvc, metricsSvc, validate, logr)
	beceSvc := service.NewBECEService(beceRepo, studentRepo, cacheSvc, metricsSvc, service.BECEConfig{
		BestOf:     cfg.BECE.BestOf,
		Classifier: classifier,
		SummaryTTL: cfg.Cache.SummaryTTL,
	}, validate, logr)
	classSvc := service.NewClassService(classRepo, subjectRepo, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, logr)
	termSvc := service.NewTermService(termRepo, logr)
	promotionSvc := service.NewPromotionService(classRepo, studentRepo, beceSvc, metricsSvc, 0, validate, logr)
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		JWTSecret: cfg.Auth.JWTSecret,
		Issuer:    cfg.Auth.Issuer,
		Audience:  cfg.Auth.Audience,
	})

	queue.Register(service.JobTypeRegrade, gradeSvc.HandleRegradeJob)
	queue.Start(ctx)
	defer queue.Stop()

	checks := map[string]handler.ReadinessCheck{"database": db.PingContext}
	if cacheClient != nil {
		checks["cache"] = cacheRepo.Ping
	}

	swagger.SwaggerInfo.BasePath = cfg.APIPrefix
	router := newRouter(cfg, logr, routeDeps{
		auth:          authSvc,
		metrics:       metricsSvc,
		audit:         auditRepo,
		health:        handler.NewMetricsHandler(metricsSvc, checks),
		gradingSystem: handler.NewGradingSystemHandler(gradingSvc),
		grades:        handler.NewGradeHandler(gradeSvc),
		bece:          handler.NewBECEHandler(beceSvc),
		classes:       handler.NewClassHandler(classSvc),
		promotions:    handler.NewPromotionHandler(promotionSvc),
		subjects:      handler.NewSubjectHandler(subjectSvc),
		students:      handler.NewStudentHandler(studentSvc),
		terms:         handler.NewTermHandler(termSvc),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

