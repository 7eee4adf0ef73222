package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/guestbook/internal/auth"
	"github.com/saltyorg/guestbook/internal/config"
	"github.com/saltyorg/guestbook/internal/database"
	"github.com/saltyorg/guestbook/internal/guestbook"
	"github.com/saltyorg/guestbook/internal/httpclient"
	"github.com/saltyorg/guestbook/internal/janitor"
	"github.com/saltyorg/guestbook/internal/logging"
	"github.com/saltyorg/guestbook/internal/notification"
	"github.com/saltyorg/guestbook/internal/web"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var (
	port        int
	bind        string
	allowSubnet string
	databaseURL string
	order       string
	envFile     string
	verbosity   int

	// Timeout flags (advanced)
	httpTimeout     time.Duration
	websocketPing   time.Duration
	acquireTimeout  time.Duration
	shutdownTimeout time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "guestbook",
		Short: "Guestbook - sign and read a shared guest list",
		Long:  `Guestbook serves a web page where visitors leave their name and a message, backed by SQLite or PostgreSQL.`,
		RunE:  run,
	}

	defaults := config.DefaultTimeoutConfig()

	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP server port (required, or set PORT env var)")
	rootCmd.Flags().StringVarP(&bind, "bind", "b", "", "IP address to bind to (e.g., 127.0.0.1, 0.0.0.0)")
	rootCmd.Flags().StringVarP(&allowSubnet, "allow-subnet", "a", "", "CIDR subnet allowed to connect (e.g., 192.168.1.0/24)")
	rootCmd.Flags().StringVarP(&databaseURL, "database-url", "d", "", "postgres:// or sqlite:// DSN (or set DATABASE_URL env var)")
	rootCmd.Flags().StringVar(&order, "order", "", "Default listing order, asc or desc (or set GUESTBOOK_ORDER env var)")
	rootCmd.Flags().StringVar(&envFile, "env-file", ".env", "Dotenv file to load before reading the environment")
	rootCmd.Flags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")

	rootCmd.Flags().DurationVar(&httpTimeout, "http-timeout", defaults.HTTPClient, "Timeout for requests to the identity provider")
	rootCmd.Flags().DurationVar(&websocketPing, "websocket-ping", defaults.WebSocketPing, "Interval between live feed keepalive pings")
	rootCmd.Flags().DurationVar(&acquireTimeout, "acquire-timeout", defaults.PoolAcquire, "How long a request waits for a database connection (or set DB_ACQUIRE_TIMEOUT)")
	rootCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", defaults.Shutdown, "Grace period for in-flight requests on shutdown")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("guestbook %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig merges the environment (after .env) with explicitly set flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	loader := config.NewLoader(config.EnvGetter{})
	cfg := config.Load(loader)

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = port
	}
	if flags.Changed("bind") {
		cfg.Bind = bind
	}
	if flags.Changed("allow-subnet") {
		cfg.AllowSubnet = allowSubnet
	}
	if flags.Changed("database-url") {
		cfg.DatabaseURL = databaseURL
	}
	if flags.Changed("order") {
		cfg.Order = order
	}
	if !flags.Changed("acquire-timeout") {
		acquireTimeout = loader.Duration("DB_ACQUIRE_TIMEOUT", acquireTimeout)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	defaultOrder, err := guestbook.ParseOrder(cfg.Order, guestbook.Ascending)
	if err != nil {
		return fmt.Errorf("invalid GUESTBOOK_ORDER: %w", err)
	}

	if cfg.Log.File == "" {
		cfg.Log.File = logging.FilePathForDB(cfg.DatabaseURL)
	}
	logCloser := logging.Apply(logging.LevelForVerbosity(verbosity), cfg.Log)
	defer logCloser.Close()

	config.SetGlobalTimeouts(&config.TimeoutConfig{
		HTTPClient:    httpTimeout,
		WebSocketPing: websocketPing,
		PoolAcquire:   acquireTimeout,
		Shutdown:      shutdownTimeout,
	})

	// Warn if binding to all interfaces without an allow list
	if (cfg.Bind == "" || cfg.Bind == "0.0.0.0" || cfg.Bind == "::") && cfg.AllowSubnet == "" {
		log.Warn().Msg("Server is accessible from all interfaces without subnet restrictions. Consider using --bind or --allow-subnet for security.")
	}

	log.Info().
		Str("version", version).
		Int("port", cfg.Port).
		Str("bind", cfg.Bind).
		Str("allow_subnet", cfg.AllowSubnet).
		Str("order", defaultOrder.String()).
		Bool("login", cfg.Auth.Enabled()).
		Msg("Starting Guestbook")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Open(ctx, database.Config{
		DSN:            cfg.DatabaseURL,
		MinConns:       cfg.PoolMin,
		MaxConns:       cfg.PoolMax,
		AcquireTimeout: acquireTimeout,
	})
	if err != nil {
		if errors.Is(err, database.ErrConfiguration) {
			log.Fatal().Err(err).Msg("Invalid database configuration")
		}
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := pool.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Connection pool did not drain cleanly")
		}
	}()

	if err := pool.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to create database schema")
	}

	repo := guestbook.NewRepository(pool)

	var (
		provider *auth.Provider
		sessions *auth.SessionStore
	)
	if cfg.Auth.Enabled() {
		sealer, err := auth.NewSealer(cfg.Auth.SessionSecret)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid SESSION_SECRET")
		}
		sessions = auth.NewSessionStore(pool, sealer)
		provider = auth.NewProvider(cfg.Auth, httpclient.NewTraceClient("auth0", httpTimeout))
		log.Info().Str("domain", cfg.Auth.Domain).Msg("Auth0 login enabled")
	}

	jan := janitor.New()
	if err := scheduleMaintenance(jan, cfg, pool, sessions); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule maintenance")
	}
	jan.Start()
	defer jan.Stop()

	opts := web.Options{
		Port:         cfg.Port,
		Bind:         cfg.Bind,
		AllowedNet:   cfg.AllowedNet(),
		DefaultOrder: defaultOrder,
		Version:      version,
		IsDev:        cfg.DevMode,
	}
	if notifier := newNotifier(cfg.Notify); notifier != nil {
		notifier.Start()
		defer notifier.Stop()
		opts.Notifier = notifier
	}

	server, err := web.NewServer(opts, repo, pool, provider, sessions)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create web server")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Server error")
		return err
	}

	log.Info().Msg("Guestbook stopped")
	return nil
}

// newNotifier returns a manager for the configured targets, or nil when none are set
func newNotifier(cfg config.NotifyConfig) *notification.Manager {
	if !cfg.Enabled() {
		return nil
	}

	client := httpclient.NewTraceClient("notify", config.GetTimeouts().HTTPClient)
	m := notification.NewManager()
	if cfg.WebhookURL != "" {
		m.RegisterProvider(notification.NewWebhookProvider(notification.WebhookConfig{
			URL:     cfg.WebhookURL,
			Headers: notification.ParseWebhookHeaders(cfg.WebhookHeaders),
		}, client))
	}
	if cfg.DiscordWebhookURL != "" {
		m.RegisterProvider(notification.NewDiscordProvider(notification.DiscordConfig{
			WebhookURL: cfg.DiscordWebhookURL,
			Username:   cfg.DiscordUsername,
			AvatarURL:  cfg.DiscordAvatarURL,
		}, client))
	}
	return m
}

// scheduleMaintenance registers the periodic housekeeping tasks
func scheduleMaintenance(jan *janitor.Manager, cfg *config.Config, pool *database.Pool, sessions *auth.SessionStore) error {
	tasks := []janitor.Task{
		{
			Name:     "optimize",
			Schedule: "@daily",
			Run:      pool.Optimize,
		},
		{
			Name:     "pool-stats",
			Schedule: "@every 5m",
			Run: func(ctx context.Context) error {
				s := pool.Stats()
				log.Debug().
					Int("max", s.Max).
					Int("in_use", s.InUse).
					Int("idle", s.Idle).
					Int("peak", s.Peak).
					Uint64("acquired", s.Acquired).
					Uint64("exhausted", s.Exhausted).
					Msg("Connection pool stats")
				return nil
			},
		},
	}

	if sessions != nil {
		tasks = append(tasks, janitor.Task{
			Name:     "prune-sessions",
			Schedule: cfg.Auth.PruneSchedule,
			Run: func(ctx context.Context) error {
				_, err := sessions.PruneExpired(ctx)
				return err
			},
		})
	}

	for _, task := range tasks {
		if err := jan.Add(task); err != nil {
			return err
		}
	}
	return nil
}
