package main

import (
	"context"
	"crypto/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/erms-api/internal/auth"
	"github.com/noah-isme/erms-api/internal/config"
	"github.com/noah-isme/erms-api/internal/database"
	"github.com/noah-isme/erms-api/internal/handler"
	"github.com/noah-isme/erms-api/internal/middleware"
	"github.com/noah-isme/erms-api/internal/observability"
	"github.com/noah-isme/erms-api/internal/repository"
	"github.com/noah-isme/erms-api/internal/router"
	"github.com/noah-isme/erms-api/internal/service"
	cloud "github.com/noah-isme/erms-api/pkg/cloudinary"
)

const maxRequestBody = 12 * 1024 * 1024

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL, cfg.AppEnv == "development")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis not configured; dashboard cache and cross-node delivery disabled")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to nats")
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	var storage service.FileStorage
	cloudCfg := cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}
	if cloudCfg.Enabled() {
		uploader, err := cloud.New(cloudCfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cloudinary client")
		}
		storage = uploader
	} else {
		logger.Warn().Msg("cloudinary not configured; uploads are disabled")
	}

	observability.RegisterMetrics()
	validate := validator.New(validator.WithRequiredStructEnabled())
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	materialRepo := repository.NewMaterialRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	scoreRepo := repository.NewExamScoreRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	dashboardService := service.NewDashboardService(service.DashboardRepositories{
		Users:       userRepo,
		Classes:     classRepo,
		Enrollments: enrollmentRepo,
		Materials:   materialRepo,
		Submissions: submissionRepo,
		Messages:    messageRepo,
	}, redisClient, cfg.DashboardCacheTTL, logger)

	authService := service.NewAuthService(userRepo, issuer, validate, logger, bcrypt.DefaultCost)
	userService := service.NewUserService(userRepo, classRepo, validate, activityService, logger, bcrypt.DefaultCost)
	classService := service.NewClassService(classRepo, enrollmentRepo, userRepo, validate, activityService, dashboardService, logger, service.NewCodeGenerator(rand.Reader))
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, classRepo, userRepo, validate, activityService, dashboardService, logger)
	materialService := service.NewMaterialService(materialRepo, classRepo, enrollmentRepo, storage, validate, activityService, dashboardService, logger)
	submissionService := service.NewSubmissionService(submissionRepo, materialRepo, classRepo, enrollmentRepo, storage, validate, activityService, dashboardService, logger)
	gradeService := service.NewGradeService(scoreRepo, classRepo, enrollmentRepo, validate, activityService, dashboardService, logger, cfg.GradeWeights, cfg.PassingGrade)
	messageService := service.NewMessageService(messageRepo, userRepo, service.MessageBroker{
		Redis:   redisClient,
		NATS:    natsConn,
		Channel: cfg.RealtimeChannel,
	}, validate, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	messageService.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    maxRequestBody,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.CORSAllowOrigins,
		AccessLog:    cfg.AppEnv == "development",
	})

	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	router.Register(app, cfg, router.Dependencies{
		AuthHandler:          handler.NewAuthHandler(authService, logger),
		AdminUserHandler:     handler.NewAdminUserHandler(userService, logger),
		AdminActivityHandler: handler.NewAdminActivityHandler(activityService, dashboardService, logger),
		ClassHandler:         handler.NewClassHandler(classService, logger),
		EnrollmentHandler:    handler.NewEnrollmentHandler(enrollmentService, logger),
		MaterialHandler:      handler.NewMaterialHandler(materialService, logger),
		SubmissionHandler:    handler.NewSubmissionHandler(submissionService, logger),
		GradeHandler:         handler.NewGradeHandler(gradeService, logger),
		MessageHandler:       handler.NewMessageHandler(messageService, logger),
		DashboardHandler:     handler.NewDashboardHandler(dashboardService, logger),
		JWTMiddleware:        middleware.JWTProtected(issuer),
		LoginLimiter:         middleware.RateLimit("auth", cfg.LoginRateLimit, time.Minute),
		HealthProbes:         probes,
	})

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Msg("starting http server")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(ctx, app, logger)
}

func waitForShutdown(ctx context.Context, app *fiber.App, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
