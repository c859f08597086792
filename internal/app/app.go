package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"auth-core-service/internal/config"
	"auth-core-service/internal/database"
	"auth-core-service/internal/http/router"
	"auth-core-service/internal/observability"
	"auth-core-service/internal/repository"
	"auth-core-service/internal/security"
	"auth-core-service/internal/service"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *gorm.DB
	Redis         *redis.Client
	Server        *http.Server
	Observability *observability.Runtime

	Orchestrator *service.AuthOrchestrator
	Issuer       *service.AuthTokenIssuer
	Guard        *service.LoginAttemptGuard
	Families     *service.RefreshTokenFamilyManager
	Recorder     *service.SecurityEventRecorder
	SecondFactor *service.SecondFactorService
	Sweeper      *service.RetentionSweeper
}

// Bootstrap wires config, observability, storage, repositories and services
// into a runnable App. Callers that only migrate or sweep still go through
// here so every entry point shares the same wiring.
func Bootstrap(ctx context.Context) (*App, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	runtime, err := observability.InitRuntime(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}
	logger := runtime.Logger

	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	credRepo := repository.NewCredentialRepository(db)
	tokenRepo := repository.NewAuthTokenRepository(db)
	refreshRepo := repository.NewRefreshTokenRepository(db)
	eventRepo := repository.NewSecurityEventRepository(db)
	secondFactorRepo := repository.NewSecondFactorRepository(db)

	recorder := service.NewSecurityEventRecorder(eventRepo)
	guard := service.NewLoginAttemptGuard(credRepo, service.LockoutPolicy{
		Threshold: cfg.LockoutThreshold,
		BaseLock:  cfg.LockoutBaseLock,
		MaxLock:   cfg.LockoutMaxLock,
	})
	limiter := service.NewRedisMagicLinkLimiter(redisClient, "", service.MagicLinkPolicy{
		MaxPerWindow: cfg.MagicLinkMaxPerWindow,
		Window:       cfg.MagicLinkWindow,
	})
	issuer := service.NewAuthTokenIssuer(tokenRepo, limiter,
		service.NewRedisConsumedTokenCache(redisClient, ""),
		cfg.TokenPepper,
		service.TokenTTLs{
			PasswordReset:     cfg.PasswordResetTTL,
			EmailVerification: cfg.EmailVerificationTTL,
			EmailChange:       cfg.EmailChangeTTL,
			MagicLink:         cfg.MagicLinkTTL,
		})
	families := service.NewRefreshTokenFamilyManager(refreshRepo, cfg.TokenPepper, cfg.RefreshTokenTTL)
	secondFactor := service.NewSecondFactorService(secondFactorRepo, cfg.TokenPepper, cfg.SmsCodeTTL, cfg.SmsMaxAttempts)
	verifier := service.NewBcryptCredentialVerifier(credRepo)
	jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret)
	orchestrator := service.NewAuthOrchestrator(guard, families, issuer, recorder, verifier, verifier, jwtMgr, cfg.JWTAccessTTL)
	sweeper := service.NewRetentionSweeper(tokenRepo, refreshRepo, credRepo, cfg.RetentionWindow)

	handler := router.NewRouter(router.Dependencies{
		DB:             db,
		Redis:          redisClient,
		EnableOTelHTTP: cfg.OTELTracesEnabled,
	})
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		DB:            db,
		Redis:         redisClient,
		Server:        server,
		Observability: runtime,
		Orchestrator:  orchestrator,
		Issuer:        issuer,
		Guard:         guard,
		Families:      families,
		Recorder:      recorder,
		SecondFactor:  secondFactor,
		Sweeper:       sweeper,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then drains and shuts everything
// down in dependency order.
func (a *App) Run(ctx context.Context) error {
	if err := database.Migrate(a.DB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.Server.Shutdown(drainCtx)
	})
	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if cerr := a.Close(shutdownCtx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Migrate applies schema migrations and exits.
func (a *App) Migrate(ctx context.Context) error {
	if err := database.Migrate(a.DB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.Logger.InfoContext(ctx, "schema migration complete")
	return nil
}

// Cleanup runs one retention sweep and exits.
func (a *App) Cleanup(ctx context.Context) error {
	_, err := a.Sweeper.Sweep(ctx, a.Logger)
	return err
}

func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := a.Observability.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
