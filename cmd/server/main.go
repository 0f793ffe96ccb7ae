package main // entry point for the identity service

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/fitstack/identity-service/internal/config"
	"github.com/fitstack/identity-service/internal/database"
	"github.com/fitstack/identity-service/internal/handler"
	"github.com/fitstack/identity-service/internal/lockout"
	"github.com/fitstack/identity-service/internal/logger"
	"github.com/fitstack/identity-service/internal/mail"
	"github.com/fitstack/identity-service/internal/middleware"
	"github.com/fitstack/identity-service/internal/queue"
	"github.com/fitstack/identity-service/internal/repository"
	"github.com/fitstack/identity-service/internal/router"
	"github.com/fitstack/identity-service/internal/service"
	"github.com/fitstack/identity-service/internal/token"
)

func main() {
	_ = godotenv.Load() // a missing .env file is fine in deployed environments

	cfg := config.Load()
	if err := logger.Init(cfg.LogLevel, cfg.Env == "prod"); err != nil {
		log.Fatalf("logger init: %v", err)
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.L().Fatalw("database open failed", "err", err)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := database.SeedRoles(ctx, db); err != nil {
		cancel()
		logger.L().Fatalw("role seeding failed", "err", err)
	}
	cancel()

	codec := token.NewCodec(cfg.JWTKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	mailer := mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)
	locks := lockout.New()

	svc := service.NewUserService(db, repository.NewManager(), codec, mailer, locks,
		queue.Publisher{}, cfg.ClientURL, cfg.MaxLoginAttempts)

	go queue.StartLifecycleConsumer()

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.L().Infow("redis unavailable, response cache disabled")
	}
	cacheCfg := config.LoadCacheConfig()

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			logger.L().Infow("request",
				"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	e.Use(middleware.CORS(cfg.ClientURL, cfg.CORSAllowedMethods, cfg.CORSAllowedHeaders))

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(svc), codec, svc)
	router.RegisterUsers(e, handler.NewUserHandler(svc), codec, svc, cacheCfg, rdb)

	addr := ":" + cfg.Port
	logger.L().Infow("listening", "addr", addr, "env", cfg.Env)
	if err := e.Start(addr); err != nil {
		logger.L().Fatalw("server stopped", "err", err)
	}
}
