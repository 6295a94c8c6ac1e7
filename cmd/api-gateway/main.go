package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/campus-enroll-api/api/swagger"
	"github.com/noah-isme/campus-enroll-api/internal/authz"
	"github.com/noah-isme/campus-enroll-api/internal/handler"
	"github.com/noah-isme/campus-enroll-api/internal/middleware"
	"github.com/noah-isme/campus-enroll-api/internal/repository"
	"github.com/noah-isme/campus-enroll-api/internal/service"
	"github.com/noah-isme/campus-enroll-api/pkg/cache"
	"github.com/noah-isme/campus-enroll-api/pkg/config"
	"github.com/noah-isme/campus-enroll-api/pkg/database"
	"github.com/noah-isme/campus-enroll-api/pkg/jobs"
	"github.com/noah-isme/campus-enroll-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-enroll-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-enroll-api/pkg/middleware/requestid"
)

// @title Campus Enroll API
// @version 1.0.0
// @description Course enrollment with capacity-bounded admission, waitlisting and role-scoped access
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	// Redis only backs the read-side catalog cache; the API still serves
	// without it.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, catalog cache disabled", zap.Error(err))
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	auditSvc := service.NewAuditService(auditRepo, metricsSvc, logr)
	if cfg.Audit.Async {
		auditSvc.StartAsync(context.Background(), jobs.QueueConfig{
			Workers:    cfg.Audit.Workers,
			BufferSize: cfg.Audit.BufferSize,
			MaxRetries: cfg.Audit.MaxRetries,
			RetryDelay: cfg.Audit.RetryDelay,
			Logger:     logr,
		})
		defer auditSvc.Stop()
	}

	engine := authz.NewEngine(assignmentRepo, auditSvc, logr)
	auditSvc.SetAuthorizer(engine)

	authSvc := service.NewAuthService(userRepo, auditSvc, validate, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, engine, auditSvc, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, cacheRepo, engine, auditSvc, metricsSvc, validate, logr, cfg.Catalog.CacheEnabled, cfg.Catalog.CacheTTL)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, engine, auditSvc, validate, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, engine, auditSvc, validate, logr)
	announcementSvc := service.NewAnnouncementService(announcementRepo, engine, auditSvc, validate, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	courseHandler := handler.NewCourseHandler(courseSvc, enrollmentSvc)
	studentHandler := handler.NewStudentHandler(enrollmentSvc, announcementSvc)
	facultyHandler := handler.NewFacultyHandler(enrollmentSvc, assignmentSvc, announcementSvc)
	adminHandler := handler.NewAdminHandler(userSvc, courseSvc, assignmentSvc, enrollmentSvc, auditSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.POST("/auth/change-password", authHandler.ChangePassword)
	authed.GET("/auth/me", authHandler.Me)

	authed.GET("/courses", courseHandler.List)
	authed.GET("/courses/:id", courseHandler.Get)
	authed.GET("/courses/:id/seats", courseHandler.Seats)
	authed.GET("/departments", courseHandler.ListDepartments)

	student := authed.Group("/student")
	student.POST("/enrollments", studentHandler.Enroll)
	student.GET("/enrollments", studentHandler.ListEnrollments)
	student.DELETE("/enrollments/:courseId", studentHandler.Withdraw)
	student.GET("/announcements", studentHandler.ListAnnouncements)

	faculty := authed.Group("/faculty")
	faculty.GET("/assignments", facultyHandler.ListAssignments)
	faculty.GET("/courses/:courseId/roster", facultyHandler.Roster)
	faculty.PUT("/enrollments/:id/status", facultyHandler.SetStatus)
	faculty.POST("/announcements", facultyHandler.PostAnnouncement)
	faculty.GET("/announcements", facultyHandler.ListAnnouncements)

	admin := authed.Group("/admin")
	admin.POST("/users", adminHandler.CreateUser)
	admin.GET("/users", adminHandler.ListUsers)
	admin.GET("/users/:id", adminHandler.GetUser)
	admin.PUT("/users/:id/role", adminHandler.ChangeRole)
	admin.DELETE("/users/:id", adminHandler.DeleteUser)
	admin.POST("/courses", adminHandler.CreateCourse)
	admin.PUT("/courses/:id", adminHandler.UpdateCourse)
	admin.DELETE("/courses/:id", adminHandler.DeleteCourse)
	admin.GET("/courses/:id/roster", adminHandler.Roster)
	admin.POST("/departments", adminHandler.CreateDepartment)
	admin.PUT("/faculty/:facultyId/assignments", adminHandler.ReplaceAssignments)
	admin.GET("/faculty/:facultyId/assignments", adminHandler.ListAssignments)
	admin.PUT("/enrollments/:id/status", adminHandler.SetEnrollmentStatus)
	admin.GET("/audit-logs", adminHandler.ListAuditLogs)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
