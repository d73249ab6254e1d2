// Command lumen serves personalised article recommendations and
// article-level text generation over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hoanghai1803/lumen/internal/api"
	"github.com/hoanghai1803/lumen/internal/config"
	"github.com/hoanghai1803/lumen/internal/scheduler"
)

var version = "dev"

var (
	configPath string
	dataDir    string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "lumen",
	Short:        "Recommendation and generation service",
	Long:         "Lumen ranks articles per reader and serves summaries, answers and reasons with provider fallback.",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		// Load configuration (auto-creates default if missing).
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		slog.SetDefault(slog.New(cfg.Logging.Handler(os.Stderr)))

		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "path to data directory")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("lumen", version)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and background jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, dataDir)
		if err != nil {
			return err
		}
		defer a.Close()

		sched, err := scheduler.New("UTC", 10*time.Minute)
		if err != nil {
			return err
		}
		if err := sched.Add(scheduler.JobCacheSweep, cfg.Cache.SweepSchedule, scheduler.CacheSweep(a.cache)); err != nil {
			return err
		}
		if len(cfg.Feeds.Sources) > 0 {
			if err := sched.Add(scheduler.JobFeedIngest, cfg.Feeds.RefreshSchedule, scheduler.FeedIngest(a.ingester)); err != nil {
				return err
			}
			// Fill an empty article store without waiting for the first tick.
			go sched.RunNow(scheduler.JobFeedIngest, scheduler.FeedIngest(a.ingester))
		}
		sched.Start()

		router := api.NewRouter(a.services(), api.Options{
			CacheSecret:           cfg.Server.CacheSecret,
			GenerateRatePerMinute: cfg.Server.RateLimitPerMinute,
		})
		srv := &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      2 * cfg.AI.CallTimeout(),
			IdleTimeout:       2 * time.Minute,
		}

		errCh := make(chan error, 1)
		go func() {
			slog.Info("starting server", "addr", "http://"+srv.Addr, "version", version)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
		case <-ctx.Done():
			slog.Info("shutting down")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown", "error", err)
		}
		sched.Stop(shutdownCtx)
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch every configured feed once and store the articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Feeds.Sources) == 0 {
			return errors.New("no feeds configured: add [[feeds.sources]] to the config file")
		}

		a, err := newApp(cmd.Context(), cfg, dataDir)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.ingester.Run(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Fetched %d articles, %d new or changed, %d errors\n", stats.Fetched, stats.Changed, stats.Errors)
		for _, f := range stats.Failed {
			fmt.Printf("  failed: %s: %s\n", f.Source, f.Error)
		}
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired response cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Cache.Backend == "memory" {
			return errors.New("the memory cache lives inside the server process; nothing to sweep")
		}

		a, err := newApp(cmd.Context(), cfg, dataDir)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.cache.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d expired entries\n", n)
		return nil
	},
}
