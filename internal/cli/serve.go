package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/opensource-finance/tenderwatch/internal/analysis"
	"github.com/opensource-finance/tenderwatch/internal/api"
	"github.com/opensource-finance/tenderwatch/internal/bus"
	"github.com/opensource-finance/tenderwatch/internal/cache"
	"github.com/opensource-finance/tenderwatch/internal/domain"
	"github.com/opensource-finance/tenderwatch/internal/opinion"
	"github.com/opensource-finance/tenderwatch/internal/repository"
	"github.com/opensource-finance/tenderwatch/internal/rules"
	"github.com/opensource-finance/tenderwatch/internal/worker"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Run the HTTP API server with the configured repository, cache and event bus.

Stored claims are replayed into the vendor profiles at startup unless
engine.hydrateonstart is false. On the pro tier, or with worker.enabled,
claims published to tenderwatch.claim.submitted are analysed in the
background.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, cmd.OutOrStdout())
		},
	}

	cmd.Flags().String("host", "", "listen host (overrides server.host)")
	cmd.Flags().Int("port", 0, "listen port (overrides server.port)")
	_ = a.v.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	_ = a.v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	return cmd
}

func (a *app) serve(ctx context.Context, out io.Writer) error {
	cfg := a.cfg

	slog.Info("starting tenderwatch",
		"version", a.build.Version,
		"commit", a.build.Commit,
		"build_date", a.build.BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"opinion", cfg.Opinion.Provider,
	)

	if !cfg.Tracing.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
	} else {
		slog.Info("tracing enabled", "service_name", cfg.Tracing.ServiceName)
	}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	engine, err := rules.NewEngine()
	if err != nil {
		return fmt.Errorf("initialize rule engine: %w", err)
	}
	defer engine.Close()

	scorer, err := opinion.New(cfg.Opinion)
	if err != nil {
		return fmt.Errorf("initialize secondary opinion: %w", err)
	}

	svc := analysis.NewService(analysis.Options{
		Policy:             cfg.Policy,
		Rules:              engine,
		Opinion:            scorer,
		Repository:         repo,
		Cache:              cacheImpl,
		Bus:                busImpl,
		MaxDetectorWorkers: cfg.Engine.MaxDetectorWorkers,
		BatchConcurrency:   cfg.Engine.BatchConcurrency,
		AnalysisTTL:        cfg.Cache.AnalysisTTL,
	})

	if cfg.Engine.HydrateOnStart {
		if err := svc.Hydrate(ctx); err != nil {
			return fmt.Errorf("hydrate state: %w", err)
		}
	}
	slog.Info("analysis service initialized",
		"detectors", svc.Registry().Len(),
		"custom_rules", engine.RulesCount(),
		"claims", svc.Tracker().Len(),
	)

	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, svc)
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		}
	}

	srv := api.NewServer(cfg.Server, svc, repo, cacheImpl, busImpl, a.build.Version)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("tenderwatch is ready", "addr", srv.Addr())
	printBanner(out, cfg, a.build.Version)

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case serveErr = <-errCh:
		slog.Error("server failed", "error", serveErr)
	}

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("tenderwatch shutdown complete")
	return serveErr
}

func printBanner(w io.Writer, cfg *domain.Config, version string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  TenderWatch - procurement claim risk scoring")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Version:  %s\n", version)
	fmt.Fprintf(w, "  Tier:     %s\n", cfg.Tier)
	fmt.Fprintf(w, "  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Endpoints:")
	fmt.Fprintln(w, "    POST /claims/analyze              - Analyse and record a claim")
	fmt.Fprintln(w, "    POST /claims/evaluate             - Dry-run analysis")
	fmt.Fprintln(w, "    POST /claims/batch                - Analyse many claims")
	fmt.Fprintln(w, "    POST /claims/queue                - Queue a claim for the worker")
	fmt.Fprintln(w, "    GET  /analyses/{id}/report        - Fraud report")
	fmt.Fprintln(w, "    GET  /vendors/{id}/risk           - Vendor risk profile")
	fmt.Fprintln(w, "    PUT  /vendors/{id}/success-rate   - Record approval history")
	fmt.Fprintln(w, "    GET  /detectors                   - Registered detectors")
	fmt.Fprintln(w, "    POST /rules                       - Create a custom rule")
	fmt.Fprintln(w, "    GET  /health                      - Health check")
	fmt.Fprintln(w, "    GET  /metrics                     - Prometheus metrics")
	fmt.Fprintln(w)
}
