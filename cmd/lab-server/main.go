package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dentallab/labdesk/internal/config"
	"github.com/dentallab/labdesk/internal/domain/dentition"
	"github.com/dentallab/labdesk/internal/domain/labrequest"
	"github.com/dentallab/labdesk/internal/domain/quote"
	"github.com/dentallab/labdesk/internal/domain/revision"
	"github.com/dentallab/labdesk/internal/platform/auth"
	"github.com/dentallab/labdesk/internal/platform/db"
	"github.com/dentallab/labdesk/internal/platform/metrics"
	"github.com/dentallab/labdesk/internal/platform/middleware"
	"github.com/dentallab/labdesk/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "lab-server",
		Short: "Dental lab treatment plan and pricing server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(quoteCmd())
	rootCmd.AddCommand(positionsCmd())

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
		Short: "Run database migrations (postgres only)",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetInt("to")

			ctx := context.Background()
			migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.UpTo(ctx, target)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().Int("to", 0, "Stop after this version (0 applies everything)")
	cmd.AddCommand(upCmd)

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(os.Stdout, statuses)
			return nil
		},
	})

	return cmd
}

func openMigrator(ctx context.Context) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.StoreDriver != config.DriverPostgres {
		return nil, nil, fmt.Errorf("migrations only apply to STORE_DRIVER=%s; the sqlite store creates its schema on open", config.DriverPostgres)
	}
	pool, err := db.NewPool(ctx, poolOptions(cfg))
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrations.FS), pool.Close, nil
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func quoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a treatment plan read from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")

			var in io.Reader = os.Stdin
			if path != "" && path != "-" {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runQuote(pricingCalculator(), in, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("file", "-", "Plan file, or - for stdin")
	return cmd
}

// pricingCalculator prices with the configured table when the configuration
// loads, and with the built-in defaults otherwise.
func pricingCalculator() *quote.Calculator {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "using default prices: %v\n", err)
		return quote.DefaultCalculator()
	}
	calc, err := cfg.Calculator()
	if err != nil {
		fmt.Fprintf(os.Stderr, "using default prices: %v\n", err)
		return quote.DefaultCalculator()
	}
	return calc
}

func runQuote(calc *quote.Calculator, in io.Reader, out io.Writer) error {
	var plan quote.Plan
	dec := json.NewDecoder(in)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&plan); err != nil {
		return fmt.Errorf("decode plan: %w", err)
	}
	resp, err := plan.Quote(calc)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func positionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "Print the dental chart in arch order",
		RunE: func(cmd *cobra.Command, args []string) error {
			printPositions(cmd.OutOrStdout())
			return nil
		},
	}
}

func printPositions(w io.Writer) {
	for _, arch := range []dentition.Arch{dentition.ArchUpper, dentition.ArchLower} {
		fmt.Fprintf(w, "%s:\n", arch)
		for _, id := range dentition.SequenceFor(arch) {
			fmt.Fprintf(w, "  %2d  %s  %s\n", dentition.IndexOf(id), id, dentition.TypeOf(id))
		}
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func poolOptions(cfg *config.Config) db.PoolOptions {
	return db.PoolOptions{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		AppName:  "lab-server",
	}
}

// store bundles the request repository with its health probe and cleanup.
type store struct {
	repo   labrequest.Repository
	pinger db.Pinger
	close  func()
}

func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		repo, err := labrequest.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &store{repo: repo, pinger: repo, close: func() { _ = repo.Close() }}, nil
	default:
		pool, err := db.NewPool(ctx, poolOptions(cfg))
		if err != nil {
			return nil, err
		}
		return &store{repo: labrequest.NewRepoPG(pool), pinger: pool, close: pool.Close}, nil
	}
}

// newServer builds the echo instance with every route registered. Background
// work such as session cleanup stops when ctx is done.
func newServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger, st *store, col *metrics.Collector) (*echo.Echo, error) {
	calc, err := cfg.Calculator()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Metrics(col))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", "X-Request-ID", auth.HeaderUserID, auth.HeaderUserName, auth.HeaderUserRole},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Identity middleware
	if cfg.IsDev() {
		e.Use(auth.DevIdentityMiddleware())
	} else {
		e.Use(auth.IdentityMiddleware())
	}

	// Audit middleware
	e.Use(middleware.Audit(logger))

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(st.pinger, cfg.StoreDriver))
	e.GET("/metrics", echo.WrapHandler(col.Handler()))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	dentition.NewHandler().RegisterRoutes(apiV1)
	quote.NewHandler(calc, col).RegisterRoutes(apiV1)
	revision.NewHandler().RegisterRoutes(apiV1)

	sessions := labrequest.NewSessionManager(col, cfg.SessionIdleTTL)
	sessions.StartCleanup(ctx)
	svc := labrequest.NewService(st.repo, calc, sessions, col, logger)
	labrequest.NewHandler(svc).RegisterRoutes(apiV1)

	return e, nil
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Store
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer st.close()
	logger.Info().Str("driver", cfg.StoreDriver).Msg("store ready")

	e, err := newServer(ctx, cfg, logger, st, metrics.NewCollector("labdesk"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

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
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
