// Command ensotalk is a voice front end for a chat assistant: it records the
// microphone, transcribes, sends the text to the OpenClaw gateway (or another
// chat backend) and speaks the reply.
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
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/ensotalk/internal/app"
	"github.com/MrWong99/ensotalk/internal/config"
	"github.com/MrWong99/ensotalk/internal/health"
	"github.com/MrWong99/ensotalk/internal/journal"
	"github.com/MrWong99/ensotalk/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "ensotalk.yaml", "path to the YAML configuration file")
	noConsole := flag.Bool("no-console", false, "do not read commands from stdin")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ensotalk: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	levelVar := new(slog.LevelVar)
	levelVar.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar})))

	slog.Info("ensotalk starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Credentials ───────────────────────────────────────────────────────────
	creds, secrets, err := config.ResolveCredentials(cfg)
	if err != nil {
		slog.Warn("openclaw config unavailable; using explicit api keys only", "err", err)
	}

	// ── Telemetry ─────────────────────────────────────────────────────────────
	var opts []app.Option
	opts = append(opts, app.WithLevelVar(levelVar))
	var tel *observe.Telemetry
	if cfg.Telemetry.IsEnabled() {
		tel, err = observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: version,
		})
		if err != nil {
			slog.Error("failed to initialise telemetry", "err", err)
			return 1
		}
		opts = append(opts, app.WithCloser(func() error {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return tel.Shutdown(sctx)
		}))
	}
	metrics := observe.DefaultMetrics()
	opts = append(opts, app.WithMetrics(metrics))

	// ── Journal ───────────────────────────────────────────────────────────────
	if dsn := cfg.Journal.PostgresDSN; dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to open journal database", "err", err)
			return 1
		}
		store := journal.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			slog.Error("failed to migrate journal database", "err", err)
			return 1
		}
		opts = append(opts,
			app.WithJournal(store),
			app.WithChecker(health.PingCheck("journal", pool)),
			app.WithCloser(func() error { pool.Close(); return nil }),
		)
		slog.Info("journal: postgres")
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	built, err := buildProviders(cfg, reg, secrets)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	for _, c := range built.closers {
		opts = append(opts, app.WithCloser(c.Close))
	}

	application, err := app.New(cfg, creds, built.Providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return application.Run(gctx) })

	if addr := cfg.Server.ListenAddr; addr != "off" {
		srv := newHTTPServer(addr, application, tel, metrics)
		g.Go(func() error {
			slog.Info("http listening", "addr", addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if _, err := os.Stat(*configPath); err == nil {
		w, err := config.NewWatcher(*configPath, application.ApplyConfig)
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	if !*noConsole {
		con := &console{
			ctrl:    application.Controller(),
			journal: application.Journal(),
			in:      os.Stdin,
			out:     os.Stdout,
		}
		fmt.Println(consoleHelp)
		g.Go(func() error { return con.Run(gctx) })
	}

	slog.Info("ready, press Ctrl+C to shut down")

	code := 0
	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// newHTTPServer serves the health probes and, when telemetry is enabled,
// Prometheus metrics.
func newHTTPServer(addr string, a *app.App, tel *observe.Telemetry, m *observe.Metrics) *http.Server {
	mux := http.NewServeMux()
	a.Health().Register(mux)
	if tel != nil {
		mux.Handle("GET /metrics", tel.MetricsHandler())
	}
	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(m)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
