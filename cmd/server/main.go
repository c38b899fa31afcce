package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"transcendence/backend/internal/audit"
	auditrepo "transcendence/backend/internal/audit/repository"
	"transcendence/backend/internal/config"
	"transcendence/backend/internal/db"
	"transcendence/backend/internal/db/migrate"
	healthhandler "transcendence/backend/internal/health/handler"
	"transcendence/backend/internal/identity/credentials"
	identityhandler "transcendence/backend/internal/identity/handler"
	"transcendence/backend/internal/identity/service"
	"transcendence/backend/internal/logging"
	"transcendence/backend/internal/mfa"
	mfarepo "transcendence/backend/internal/mfa/repository"
	"transcendence/backend/internal/security"
	"transcendence/backend/internal/server"
	"transcendence/backend/internal/server/interceptors"
	"transcendence/backend/internal/session"
	sessiondomain "transcendence/backend/internal/session/domain"
	sessionrepo "transcendence/backend/internal/session/repository"
	"transcendence/backend/internal/telemetry"
	oteltelemetry "transcendence/backend/internal/telemetry/otel"
	userrepo "transcendence/backend/internal/user/repository"
)

const serviceName = "transcendence-backend"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(serviceName, version, cfg.LogFormat, logging.ParseLevel(cfg.LogLevel), os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := oteltelemetry.NewProviders(ctx, oteltelemetry.Options{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceName:    serviceName,
		ServiceVersion: version,
		Insecure:       cfg.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	if cfg.AutoMigrate {
		if err := migrate.Run(cfg.DatabaseURL, "up"); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied")
	}
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	metrics, err := telemetry.NewAuthMetrics(providers.MeterProvider)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	auditor := audit.NewLogger(auditrepo.NewPostgresRepository(pool), interceptors.ClientIP, logger,
		oteltelemetry.NewAuditSink(providers.LoggerProvider))

	users := userrepo.NewPostgresRepository(pool)
	sessions := sessionrepo.NewPostgresRepository(pool)
	verifier, err := security.NewPasswordVerifier(security.NewHasher(security.DefaultArgon2Params()))
	if err != nil {
		return fmt.Errorf("password verifier: %w", err)
	}
	creds := credentials.NewChecker(users, verifier, logger)
	tokens, err := security.NewEphemeralTokenProvider(cfg.AccessTTL())
	if err != nil {
		return fmt.Errorf("token provider: %w", err)
	}

	var cipher *mfa.SecretCipher
	if key := cfg.TOTPKey(); key != nil {
		if cipher, err = mfa.NewSecretCipher(key); err != nil {
			return fmt.Errorf("totp cipher: %w", err)
		}
	} else {
		logger.Warn("TOTP_ENC_KEY is not set; two-factor authentication is unavailable")
	}
	twoFactor := mfa.NewEngine(creds, mfarepo.NewPostgresRepository(pool), mfa.Config{
		Cipher:            cipher,
		Issuer:            cfg.TOTPIssuer,
		RecoveryCodeCount: cfg.RecoveryCodeCount,
		Auditor:           auditor,
		Observer:          metrics,
	})

	authSvc := service.NewAuthService(users, sessions, creds, twoFactor, tokens, service.Config{
		Policy: sessiondomain.ReauthPolicy{
			RollingWindow: cfg.RollingWindow(),
			ForcedWindow:  cfg.ForcedWindow(),
		},
		Pruner:   session.NewPruner(sessions, cfg.MaxSessionsPerUser, logger, metrics),
		Auditor:  auditor,
		Observer: metrics,
		Logger:   logger,
	})

	health := healthhandler.NewServer(pool)
	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewRouter(server.HTTPDeps{
			Identity: identityhandler.NewHandler(authSvc, twoFactor, cfg.AccessTTL(), logger),
			Health:   health,
			Logger:   logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.HealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.HealthAddr, err)
		}
		grpcSrv = grpc.NewServer()
		server.RegisterServices(grpcSrv, server.GRPCDeps{Health: health})
		go func() {
			logger.Info("grpc health server listening", "addr", cfg.HealthAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		logger.Error("server failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	logger.Info("server stopped")
	return runErr
}
