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

	"github.com/common-nighthawk/go-figure"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-adp-assessments/api/swagger"
	"github.com/noah-isme/sma-adp-assessments/internal/handler"
	"github.com/noah-isme/sma-adp-assessments/internal/middleware"
	"github.com/noah-isme/sma-adp-assessments/internal/models"
	"github.com/noah-isme/sma-adp-assessments/internal/repository"
	"github.com/noah-isme/sma-adp-assessments/internal/service"
	"github.com/noah-isme/sma-adp-assessments/pkg/cache"
	"github.com/noah-isme/sma-adp-assessments/pkg/config"
	"github.com/noah-isme/sma-adp-assessments/pkg/database"
	"github.com/noah-isme/sma-adp-assessments/pkg/events"
	"github.com/noah-isme/sma-adp-assessments/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-adp-assessments/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-adp-assessments/pkg/middleware/requestid"
	"github.com/noah-isme/sma-adp-assessments/pkg/session"
	"github.com/noah-isme/sma-adp-assessments/pkg/storage"
)

// @title Teacher Assessment Portal API
// @version 1.0.0
// @description Read-only teacher API next to the assessment portal pages
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	figure.NewFigure("Teacher Portal", "", true).Print()
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	loc := cfg.Location()
	validate := validator.New()
	metrics := service.NewMetricsService()

	users := repository.NewUserRepository(db)
	teachers := repository.NewTeacherRepository(db)
	semesters := repository.NewSemesterRepository(db)
	assignments := repository.NewTeacherAssignmentRepository(db)
	lookups := repository.NewLookupRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	bankRepo := repository.NewQuestionBankRepository(db)
	resultRepo := repository.NewResultRepository(db)
	reportRepo := repository.NewReportRepository(db)
	imageRepo := repository.NewImageRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	bus := events.NewBus(logr)
	defer bus.Close() //nolint:errcheck
	activity := service.NewActivityService(bus, activityRepo, logr)
	if err := bus.Subscribe(ctx, events.TopicActivity, activity.Persist); err != nil {
		logr.Fatal("failed to subscribe activity log", zap.Error(err))
	}

	var cacheRepo service.CacheRepository
	if cfg.ReportCache.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, report cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			cacheRepo = repository.NewCacheRepository(client, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.ReportCache.TTL, logr, cacheRepo != nil)

	media, err := storage.NewLocalStorage(cfg.Media.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare media storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Media.SignedURLSecret, cfg.Media.SignedURLTTL)

	access := service.NewAccessService(teachers, semesters, assignments, loc, logr)
	authSvc := service.NewAuthService(users, activity, validate, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      cfg.JWT.Issuer,
		LoginPerMin: cfg.Login.RatePerMinute,
		LoginBurst:  cfg.Login.Burst,
	})
	assessmentSvc := service.NewAssessmentService(assessmentRepo, lookups, access, cacheSvc, activity, metrics, validate, logr, loc)
	questionSvc := service.NewQuestionService(questionRepo, assessmentRepo, imageRepo, access, cacheSvc, activity, validate, logr, cfg.Questions.DeletePolicy)
	bankSvc := service.NewQuestionBankService(bankRepo, questionRepo, assessmentRepo, imageRepo, access, cacheSvc, activity, validate, logr)
	resultSvc := service.NewResultService(resultRepo, assessmentRepo, questionRepo, access, cacheSvc, activity, metrics, validate, logr)
	reportSvc := service.NewReportService(reportRepo, access, cacheSvc, metrics, logr)
	imageSvc := service.NewImageService(imageRepo, media, signer, activity, cfg.Media.MaxFileSizeBytes, cfg.Media.AllowedMIMEs, logr)

	tmpl, err := handler.Templates()
	if err != nil {
		logr.Fatal("failed to parse templates", zap.Error(err))
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metrics, cfg.APIPrefix))
	r.SetHTMLTemplate(tmpl)

	routes := handler.RouteConfig{
		APIPrefix:    cfg.APIPrefix,
		Session:      session.Middleware(cfg.Session),
		TeacherGuard: middleware.RequireTeacher(access, logr),
		APIGuard: []gin.HandlerFunc{
			middleware.JWT(authSvc),
			middleware.RequireRoles(models.RoleTeacher),
			middleware.TokenScope(access, logr),
		},
		CORS: corsmiddleware.New(cfg.CORS.AllowedOrigins),
	}
	if cfg.Docs.Enabled {
		routes.Docs = ginSwagger.WrapHandler(swaggerFiles.Handler)
	}

	handler.RegisterRoutes(r, handler.Handlers{
		Auth:        handler.NewAuthHandler(authSvc, logr),
		Assessments: handler.NewAssessmentHandler(assessmentSvc, access, logr),
		Questions:   handler.NewQuestionHandler(questionSvc, imageSvc, access, logr),
		Bank:        handler.NewQuestionBankHandler(bankSvc, assessmentSvc, access, logr),
		Results:     handler.NewResultHandler(resultSvc, assessmentSvc, access, logr),
		Reports:     handler.NewReportHandler(reportSvc, access, logr),
		Images:      handler.NewImageHandler(imageSvc, cfg.Media.MaxFileSizeBytes, logr),
		Metrics:     handler.NewMetricsHandler(metrics, db),
	}, routes)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Error("forced shutdown", zap.Error(err))
	}
}
