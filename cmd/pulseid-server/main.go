package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pulseid/pulseid/internal/config"
	"github.com/pulseid/pulseid/internal/domain/audit"
	"github.com/pulseid/pulseid/internal/domain/consent"
	"github.com/pulseid/pulseid/internal/domain/doctor"
	"github.com/pulseid/pulseid/internal/domain/identity"
	"github.com/pulseid/pulseid/internal/domain/patient"
	"github.com/pulseid/pulseid/internal/platform/auth"
	"github.com/pulseid/pulseid/internal/platform/db"
	"github.com/pulseid/pulseid/internal/platform/middleware"
	"github.com/pulseid/pulseid/internal/platform/notification"
)

// directoryAdapter exposes the patient and doctor services as the consent
// engine's Directory, keeping the consent package free of domain imports.
// Lookup misses are translated to the consent package's own NotFound so its
// handlers can map them to client errors.
type directoryAdapter struct {
	patients *patient.Service
	doctors  *doctor.Service
}

func translateNotFound(err error) error {
	if errors.Is(err, patient.ErrNotFound) || errors.Is(err, doctor.ErrNotFound) {
		return consent.ErrNotFound
	}
	return err
}

func (a *directoryAdapter) subject(p *patient.Patient) *consent.Subject {
	return &consent.Subject{
		ID:            p.ID,
		UserID:        p.UserID,
		HealthID:      p.HealthID,
		FullName:      p.FullName,
		Email:         p.Email,
		ContactNumber: p.ContactNumber,
	}
}

func (a *directoryAdapter) SubjectByID(ctx context.Context, id uuid.UUID) (*consent.Subject, error) {
	p, err := a.patients.GetByID(ctx, id)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return a.subject(p), nil
}

func (a *directoryAdapter) SubjectByUserID(ctx context.Context, userID uuid.UUID) (*consent.Subject, error) {
	p, err := a.patients.GetByUserID(ctx, userID)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return a.subject(p), nil
}

func (a *directoryAdapter) SubjectByHealthID(ctx context.Context, healthID string) (*consent.Subject, error) {
	p, err := a.patients.GetByHealthID(ctx, healthID)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return a.subject(p), nil
}

func (a *directoryAdapter) practitioner(d *doctor.Doctor) *consent.Practitioner {
	return &consent.Practitioner{
		ID:                 d.ID,
		UserID:             d.UserID,
		FullName:           d.FullName,
		Email:              d.Email,
		Verified:           d.IsVerified,
		AuthorizationLevel: d.AuthorizationLevel,
	}
}

func (a *directoryAdapter) PractitionerByID(ctx context.Context, id uuid.UUID) (*consent.Practitioner, error) {
	d, err := a.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return a.practitioner(d), nil
}

func (a *directoryAdapter) PractitionerByUserID(ctx context.Context, userID uuid.UUID) (*consent.Practitioner, error) {
	d, err := a.doctors.GetByUserID(ctx, userID)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return a.practitioner(d), nil
}

// patientResolverAdapter lets the doctor package look up patients by health
// ID without importing the patient package.
type patientResolverAdapter struct {
	patients *patient.Service
}

func (a *patientResolverAdapter) ResolveHealthID(ctx context.Context, healthID string) (*doctor.PatientRef, error) {
	p, err := a.patients.GetByHealthID(ctx, healthID)
	if err != nil {
		if errors.Is(err, patient.ErrNotFound) {
			return nil, doctor.ErrNotFound
		}
		return nil, err
	}
	return &doctor.PatientRef{
		ID:       p.ID,
		UserID:   p.UserID,
		HealthID: p.HealthID,
		FullName: p.FullName,
	}, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "pulseid-server",
		Short: "PulseID health records API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			dir, _ := cmd.Flags().GetString("dir")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating tenant schema: tenant_%s\n", name)
			if err := db.CreateTenantSchema(ctx, pool, name, dir); err != nil {
				return err
			}
			fmt.Println("Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")
	createCmd.Flags().String("dir", "./migrations", "Path to migrations directory")

	cmd.AddCommand(createCmd)
	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Redis is optional: without it OTP throttling is disabled.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, OTP throttling disabled")
			redisClient = nil
		} else {
			defer redisClient.Close()
			logger.Info().Msg("connected to redis")
		}
	}

	// Auth
	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL())
	revoked := auth.NewTokenRevocationStore()
	defer revoked.Close()

	// Notifications: console transport stands in for the SMS/email gateway.
	console := &notification.ConsoleSender{Logger: logger}
	notifier := notification.NewDispatcher(console, console, notification.NewTemplateEngine(), logger)
	defer notifier.Wait()

	// Services
	auditSvc := audit.NewService(audit.NewRepoPG(pool))
	patientSvc := patient.NewService(patient.NewRepoPG(pool), cfg.PublicBaseURL)

	consentSvc := consent.NewService(consent.NewRepoPG(pool), nil, auditSvc, notifier, logger).
		WithPool(pool)
	if redisClient != nil && cfg.OTPThrottle() > 0 {
		consentSvc.WithThrottle(redisClient, cfg.OTPThrottle())
	}

	doctorSvc := doctor.NewService(doctor.NewRepoPG(pool), consentSvc, auditSvc, notifier,
		&patientResolverAdapter{patients: patientSvc}, logger).WithPool(pool)

	identitySvc := identity.NewService(identity.NewRepoPG(pool), patientSvc, doctorSvc,
		issuer, revoked, auditSvc, logger).WithPool(pool)

	// The directory closes the consent <-> patient/doctor loop.
	directory := &directoryAdapter{patients: patientSvc, doctors: doctorSvc}
	consentSvc.SetDirectory(directory)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	var authMW echo.MiddlewareFunc
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware()
	} else {
		authMW = auth.JWTMiddleware(issuer, revoked)
	}

	// The public group carries registration and login; everything else goes
	// through the session-guarded group. Tenant resolution runs on both so
	// login hits the right schema.
	public := e.Group("/api/v1",
		db.TenantMiddleware(pool, cfg.DefaultTenant),
		middleware.RateLimit(rateLimitCfg))
	api := e.Group("/api/v1",
		authMW,
		db.TenantMiddleware(pool, cfg.DefaultTenant),
		middleware.RateLimit(rateLimitCfg))

	// Handlers
	identity.NewHandler(identitySvc).RegisterRoutes(public, api)
	patient.NewHandler(patientSvc, doctorSvc, consentSvc, auditSvc).RegisterRoutes(api)
	doctor.NewHandler(doctorSvc).RegisterRoutes(api)
	consent.NewHandler(consentSvc, directory).RegisterRoutes(api)
	audit.NewHandler(auditSvc).RegisterRoutes(api)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
