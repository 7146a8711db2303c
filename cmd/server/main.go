package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ZayedOfficial/truthshield/internal/clinical"
	"github.com/ZayedOfficial/truthshield/internal/config"
	"github.com/ZayedOfficial/truthshield/internal/discrepancy"
	"github.com/ZayedOfficial/truthshield/internal/engine"
	"github.com/ZayedOfficial/truthshield/internal/intake"
	"github.com/ZayedOfficial/truthshield/internal/mcq"
	"github.com/ZayedOfficial/truthshield/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()

	rootCmd := &cobra.Command{
		Use:          "truthshield",
		Short:        "TruthShield clinical discrepancy service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), v)
		},
	}
	bindServeFlags(rootCmd, v)

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and web UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), v)
		},
	}
	bindServeFlags(serve, v)

	rootCmd.AddCommand(serve)
	rootCmd.AddCommand(analyzeCmd(v))
	rootCmd.AddCommand(scenariosCmd())
	return rootCmd
}

func bindServeFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().String("port", "", "Server port (default 7860)")
	cmd.Flags().String("model-endpoint", "", "Base URL of an OpenAI-compatible model server")
	cmd.Flags().String("model-name", "", "Model to request from the model server")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		for key, flag := range map[string]string{
			"PORT":           "port",
			"MODEL_ENDPOINT": "model-endpoint",
			"MODEL_NAME":     "model-name",
		} {
			if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return logger.Level(level)
}

// app is the wired service graph shared by serve and analyze.
type app struct {
	catalog  *clinical.Catalog
	engine   *engine.Engine
	analyzer *discrepancy.Analyzer
	synth    *mcq.Synthesizer
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	catalog, err := clinical.Load()
	if err != nil {
		return nil, err
	}

	var client engine.Client
	if cfg.ModelEndpoint != "" {
		client = engine.NewHTTPClient(cfg.ModelEndpoint, cfg.ModelName, cfg.ModelAPIKey)
	}
	eng := engine.New(client, engine.WithTimeout(cfg.GeneratorTimeout), engine.WithLogger(logger))

	return &app{
		catalog:  catalog,
		engine:   eng,
		analyzer: discrepancy.NewAnalyzer(catalog, eng, logger),
		synth:    mcq.NewSynthesizer(eng, catalog.Bank(), logger),
	}, nil
}

func runServer(ctx context.Context, v *viper.Viper) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	gin.SetMode(cfg.GinMode)
	logger := newLogger(cfg, os.Stdout)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info().Msg("scanning for model server")
	if err := a.engine.Load(ctx); err != nil {
		logger.Info().Err(err).Msg("starting in simulation mode, use engine sync once the model server is up")
	}

	var db server.HealthChecker
	if cfg.EnableDB {
		pool, err := connectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer pool.Close()
		db = pool
	}

	store, closeStore, err := newSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	staticRoot := cfg.StaticRoot
	if staticRoot == "" {
		staticRoot = server.DetectStaticRoot()
	}

	router := server.NewRouter(server.Deps{
		Engine:      a.engine,
		Catalog:     a.catalog,
		Intake:      intake.NewController(store, a.synth, a.catalog, cfg.QuestionCount, logger),
		Analyzer:    a.analyzer,
		DB:          db,
		StaticRoot:  staticRoot,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.GeneratorTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	logger.Info().Str("port", cfg.Port).Str("store", cfg.SessionStore).Str("static", staticRoot).Msg("server listening")
	waitForShutdown(srv, logger)
	return nil
}

func newSessionStore(ctx context.Context, cfg *config.Config) (intake.Store, func(), error) {
	if cfg.SessionStore != config.StoreRedis {
		return intake.NewMemoryStore(cfg.SessionTTL), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return intake.NewRedisStore(rdb, cfg.SessionTTL), func() { _ = rdb.Close() }, nil
}

func connectDB(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

func waitForShutdown(srv *http.Server, logger zerolog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
