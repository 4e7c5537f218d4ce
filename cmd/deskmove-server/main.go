package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/me/deskmove/internal/config"
	"github.com/me/deskmove/internal/engine"
	"github.com/me/deskmove/internal/gateway"
	"github.com/me/deskmove/internal/logging"
	"github.com/me/deskmove/internal/scheduler"
	"github.com/me/deskmove/internal/server"
	"github.com/me/deskmove/internal/store"
	"github.com/me/deskmove/pkg/graph"
	"github.com/me/deskmove/pkg/model"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "Listen address (overrides server.addr)")
	dbPath := flag.String("db", "", "History database path (overrides server.db_path)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "", "Log format: text, json")
	simulate := flag.Bool("simulate", false, "Use the in-memory simulated tenant instead of Graph")
	fixture := flag.String("fixture", "", "YAML tenant fixture for --simulate")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	// Flags are applied through the environment so config validation sees them.
	if *simulate {
		os.Setenv(config.EnvPrefix+"_GATEWAY_SIMULATE", "true")
	}
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	override(&cfg.Server.Addr, *addr)
	override(&cfg.Server.DBPath, *dbPath)
	override(&cfg.Server.LogLevel, *logLevel)
	override(&cfg.Server.LogFormat, *logFormat)
	override(&cfg.Gateway.SimulateFixture, *fixture)
	if *debug {
		cfg.Server.LogLevel = "debug"
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.Server.LogLevel), cfg.Server.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	st, err := store.NewSQLiteStore(cfg.Server.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(context.Background()); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("database ready", "path", cfg.Server.DBPath)

	gw, gwName, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}

	events := server.NewBroadcaster(256, logger)
	history := scheduler.Funcs{
		Completed: func(s model.JobSummary) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := st.SaveSummary(ctx, s); err != nil {
				logger.Error("save job summary", "job_id", s.JobID, "error", err)
			}
		},
	}
	observer := scheduler.Multi{scheduler.NewLogObserver(logger), history, events}

	eng := engine.New(gw, cfg.EngineConfig(), logger)
	eng.SetNotifier(observer.OnLog)
	queue := scheduler.NewQueue(eng, cfg.QueueConfig(), observer, logger)

	srv := server.New(cfg.Server, queue, logger,
		server.WithHistory(st),
		server.WithEvents(events),
		server.WithGatewayName(gwName),
	)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := queue.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler stopped", "error", err)
		}
	}()

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr, "gateway", gwName)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if s := queue.Stats(); s.Active+s.Monitoring > 0 {
		logger.Warn("in-flight jobs abandoned", "active", s.Active, "monitoring", s.Monitoring)
	}
	logger.Info("server stopped")
	return nil
}

// newGateway builds the Graph-backed gateway, or the simulated tenant when
// gateway.simulate is set.
func newGateway(cfg *config.Config, logger *slog.Logger) (gateway.Gateway, string, error) {
	if !cfg.Gateway.Simulate {
		client := graph.NewClient(cfg.GraphConfig(), logger)
		return gateway.NewGraph(client, logger), "graph", nil
	}

	mem := gateway.NewMemory()
	if path := cfg.Gateway.SimulateFixture; path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, "", fmt.Errorf("open fixture: %w", err)
		}
		defer f.Close()
		if err := mem.LoadFixture(f); err != nil {
			return nil, "", fmt.Errorf("load fixture %s: %w", path, err)
		}
	} else if err := mem.LoadFixture(strings.NewReader(gateway.DemoFixture)); err != nil {
		return nil, "", fmt.Errorf("load demo fixture: %w", err)
	}
	mem.Simulate(gateway.DefaultSimulationConfig())
	logger.Warn("using simulated tenant; no directory changes leave this process")
	return mem, "memory", nil
}
