package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dd0wney/posh-debugger/pkg/api"
	"github.com/dd0wney/posh-debugger/pkg/config"
	"github.com/dd0wney/posh-debugger/pkg/logging"
	"github.com/dd0wney/posh-debugger/pkg/metrics"
	"github.com/dd0wney/posh-debugger/pkg/notify"
	"github.com/dd0wney/posh-debugger/pkg/plan"
	"github.com/dd0wney/posh-debugger/pkg/plan/watch"
	"github.com/dd0wney/posh-debugger/pkg/plan/xposh"
	"github.com/dd0wney/posh-debugger/pkg/telemetry"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const systemMetricsInterval = 15 * time.Second

type serveOptions struct {
	planPath   string
	listenAddr string
	httpAddr   string
	script     string
	console    bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the telemetry server and operator HTTP surface",
		Long: `Loads the plan, accepts robot connections on the telemetry port and serves
health, metrics, GraphQL and session control over HTTP until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if opts.planPath != "" {
				cfg.Plan.Path = opts.planPath
			}
			if opts.listenAddr != "" {
				cfg.Telemetry.ListenAddr = opts.listenAddr
			}
			if cmd.Flags().Changed("http") {
				cfg.HTTP.ListenAddr = opts.httpAddr
			}
			if opts.script != "" {
				cfg.Telemetry.Script = opts.script
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			var console io.Reader
			if opts.console {
				console = cmd.InOrStdin()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, console, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.planPath, "plan", "p", "", "Plan document (overrides plan.path)")
	cmd.Flags().StringVarP(&opts.listenAddr, "listen", "l", "", "Telemetry listen address (overrides telemetry.listen_addr)")
	cmd.Flags().StringVar(&opts.httpAddr, "http", "", "HTTP listen address, empty to disable (overrides http.listen_addr)")
	cmd.Flags().StringVarP(&opts.script, "script", "s", "", "Command script streamed to each robot (overrides telemetry.script)")
	cmd.Flags().BoolVar(&opts.console, "console", false, "Read operator commands from stdin")
	return cmd
}

// serve runs every component until ctx is cancelled or one of them fails.
func serve(ctx context.Context, cfg config.Config, console io.Reader, out io.Writer) error {
	// Every session and the console write here concurrently.
	out = &syncWriter{w: out}

	logger := cfg.Logger()
	logging.SetDefaultLogger(logger)
	startTime := time.Now()

	m := metrics.NewRegistry()
	reg := plan.NewRegistry()

	loaderOpts := []xposh.Option{xposh.WithLogger(logger), xposh.WithMetrics(m)}
	if cfg.Plan.LegacyReferenceScan {
		loaderOpts = append(loaderOpts, xposh.WithLegacyReferenceScan())
	}
	loader := xposh.NewLoader(reg, loaderOpts...)

	var reload func() (*xposh.Result, error)
	if cfg.Plan.Path != "" {
		reload = func() (*xposh.Result, error) { return loader.LoadFile(cfg.Plan.Path) }
		if _, err := reload(); err != nil {
			return fmt.Errorf("initial plan load: %w", err)
		}
	} else {
		logger.Warn("no plan configured; telemetry will mark nothing until one is loaded")
	}

	hub := notify.NewHub(logger, m)
	defer hub.Shutdown()
	publisher, err := notify.NewPublisher(cfg.Notify.Transport, cfg.Notify.Addr)
	if err != nil {
		return err
	}
	if publisher != nil {
		hub.Attach(publisher)
		logger.Info("publishing dirty events",
			logging.String("transport", cfg.Notify.Transport),
			logging.String("addr", cfg.Notify.Addr))
	}

	var watcher *watch.Watcher
	if cfg.Plan.Watch {
		watcher, err = watch.New(loader, watch.Config{
			Path:     cfg.Plan.Path,
			Debounce: cfg.Plan.Debounce,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
	}

	serverCfg := cfg.ServerConfig()
	serverCfg.Session.Echo = out
	telemetryServer := telemetry.NewServer(serverCfg, telemetry.Deps{
		Registry: reg,
		Hub:      hub,
		Metrics:  m,
		Logger:   logger,
	})

	httpCfg := api.DefaultConfig()
	httpCfg.ListenAddr = cfg.HTTP.ListenAddr
	httpServer, err := api.NewServer(httpCfg, api.Deps{
		Registry:  reg,
		Telemetry: telemetryServer,
		Hub:       hub,
		Watcher:   watcher,
		Reload:    reload,
		Metrics:   m,
		Logger:    logger,
		Version:   Version,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := telemetryServer.Start(gctx); err != nil {
			if gctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("telemetry server: %w", err)
		}
		<-gctx.Done()
		return telemetryServer.Stop()
	})

	if watcher != nil {
		g.Go(func() error {
			if err := watcher.Start(gctx); err != nil {
				watcher.Stop()
				return fmt.Errorf("plan watcher: %w", err)
			}
			<-gctx.Done()
			watcher.Stop()
			return nil
		})
	}

	if cfg.HTTP.ListenAddr != "" {
		g.Go(func() error {
			return httpServer.ListenAndServe(gctx)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(systemMetricsInterval)
		defer ticker.Stop()
		for {
			m.UpdateSystemMetrics(startTime)
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	if console != nil {
		// Not in the group: a blocked stdin read must not hold up shutdown.
		quit := make(chan struct{})
		go func() {
			runConsole(console, out, telemetryServer, reg)
			close(quit)
		}()
		g.Go(func() error {
			select {
			case <-quit:
				return errQuit
			case <-gctx.Done():
				return nil
			}
		})
	}

	logger.Info("posh-debugger running",
		logging.String("telemetry", cfg.Telemetry.ListenAddr),
		logging.String("http", cfg.HTTP.ListenAddr),
		logging.Path(cfg.Plan.Path))

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		return err
	}
	logger.Info("posh-debugger stopped")
	return nil
}

// syncWriter serializes writes to w.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
