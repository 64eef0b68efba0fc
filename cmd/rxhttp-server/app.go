package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/rxhttp-go/internal/infra/buildinfo"
	"github.com/yndnr/rxhttp-go/internal/infra/confloader"
	"github.com/yndnr/rxhttp-go/internal/infra/shutdown"
	"github.com/yndnr/rxhttp-go/internal/server/config"
	"github.com/yndnr/rxhttp-go/internal/server/httpserver"
	"github.com/yndnr/rxhttp-go/internal/telemetry/logger"
	"github.com/yndnr/rxhttp-go/internal/telemetry/metric"
	"github.com/yndnr/rxhttp-go/internal/telemetry/tracer"
	"github.com/yndnr/rxhttp-go/internal/transport"
	"github.com/yndnr/rxhttp-go/pkg/concurrent"
)

const shutdownTimeout = 30 * time.Second

// App creates the command line application.
func App() *cli.App {
	return &cli.App{
		Name:    "rxhttp-server",
		Usage:   "Reactive HTTP/1.x server",
		Version: buildinfo.String(),
		Commands: []*cli.Command{
			serveCommand(),
			versionCommand(),
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				EnvVars: []string{"RXHTTP_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "HTTP listen address",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
			},
			&cli.BoolFlag{
				Name:  "metrics",
				Usage: "Serve Prometheus metrics",
			},
			&cli.BoolFlag{
				Name:  "trace-subscriptions",
				Usage: "Trace every producer subscription",
			},
		},
		Action: func(c *cli.Context) error {
			return serve(c.Context, c.String("config"), flagOverrides(c))
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "rxhttp-server %s\n", buildinfo.String())
			return nil
		},
	}
}

// flagOverrides maps the flags the user set to configuration keys.
func flagOverrides(c *cli.Context) map[string]any {
	flags := make(map[string]any)
	if c.IsSet("addr") {
		flags["server.http.addr"] = c.String("addr")
	}
	if c.IsSet("log-level") {
		flags["log.level"] = c.String("log-level")
	}
	if c.IsSet("metrics") {
		flags["metrics.enabled"] = c.Bool("metrics")
	}
	if c.IsSet("trace-subscriptions") {
		flags["trace.subscriptions"] = c.Bool("trace-subscriptions")
	}
	return flags
}

// loadConfig loads configuration from file, environment and flags.
func loadConfig(loader *confloader.Loader) (*config.ServerConfig, error) {
	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLoader(configFile string, flags map[string]any) *confloader.Loader {
	opts := []confloader.Option{confloader.WithFlags(flags)}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	return confloader.NewLoader(opts...)
}

// httpConfig translates the file configuration into the server's.
func httpConfig(cfg *config.ServerConfig, executor concurrent.Executor, metrics *metric.Registry, log *slog.Logger) httpserver.Config {
	h := cfg.Server.HTTP
	adm := cfg.Server.Admission
	return httpserver.Config{
		Addr:            h.Addr,
		CloseGraceDelay: h.CloseGraceDelay,
		Transport: transport.Options{
			ReadTimeout:   h.ReadTimeout,
			IdleTimeout:   h.IdleTimeout,
			WriteTimeout:  h.WriteTimeout,
			MaxHeaderSize: h.MaxHeaderSize,
			MaxChunkSize:  h.MaxChunkSize,
		},
		SplicePrefetch: h.SplicePrefetch,
		Filter: httpserver.ChainFilters(
			httpserver.NetworkACL(adm.AllowList, log),
			httpserver.RateLimit(adm.RateLimit, adm.RateBurst),
		),
		Executor: executor,
		Metrics:  metrics,
		Logger:   log,
	}
}

func serve(ctx context.Context, configFile string, flags map[string]any) error {
	loader := newLoader(configFile, flags)
	cfg, err := loadConfig(loader)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(log)

	log.Info("starting rxhttp-server", append(buildinfo.LogAttrs(), "config", configFile)...)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	shutdownHandler := shutdown.NewHandler(shutdownTimeout, log)

	// Hooks run in reverse order: the executor registered first closes last.
	executor := concurrent.NewExecutor()
	shutdownHandler.OnShutdownClose("executor", executor)

	var registry *metric.Registry
	if cfg.Metrics.Enabled {
		registry = metric.NewRegistry()
	}
	if cfg.Trace.Subscriptions {
		uninstall := tracer.New(log.With("component", "tracer"), registry).Install()
		shutdownHandler.OnShutdown("tracer", func(context.Context) error {
			uninstall()
			return nil
		})
	}

	server, err := httpserver.Bind(httpConfig(cfg, executor, registry, log), newDemoService(executor))
	if err != nil {
		executor.CloseAsync().Await(context.Background())
		return fmt.Errorf("bind http server: %w", err)
	}
	shutdownHandler.OnShutdownClose("http server", server)

	if registry != nil {
		registry.MustRegister(metric.NewCollector(server.Stats))
		ms := metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, registry, log).
			RequireToken(cfg.Metrics.AuthToken)
		if err := ms.Start(); err != nil {
			server.Shutdown(context.Background())
			executor.CloseAsync().Await(context.Background())
			return fmt.Errorf("start metrics server: %w", err)
		}
		shutdownHandler.OnShutdown("metrics server", ms.Stop)
	}

	if path := loader.FilePath(); path != "" {
		watcher, err := watchConfig(loader, path, log)
		if err != nil {
			log.Warn("configuration reload disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown("config watcher", func(context.Context) error { return watcher.Stop() })
		}
	}

	log.Info("server started, press Ctrl+C to stop", "address", server.ListenAddress().String())
	if err := shutdownHandler.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}

// watchConfig reloads the configuration file on change and applies the
// settings that can change at runtime. Only log.level does today.
func watchConfig(loader *confloader.Loader, path string, log *slog.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(path); err != nil {
		watcher.Stop()
		return nil, err
	}
	watcher.OnChange(func(string) { applyReload(loader, log) })
	watcher.StartAsync()
	return watcher, nil
}

func applyReload(loader *confloader.Loader, log *slog.Logger) {
	fresh := config.Default()
	if err := loader.Reload(fresh); err != nil {
		log.Warn("configuration reload failed", "error", err)
		return
	}
	if err := config.Verify(fresh); err != nil {
		log.Warn("reloaded configuration rejected", "error", err)
		return
	}
	before := logger.Level()
	if err := logger.SetLevel(fresh.Log.Level); err != nil {
		log.Warn("reloaded log level rejected", "error", err)
		return
	}
	if after := logger.Level(); after != before {
		log.Info("log level changed", "from", before, "to", after)
	}
}
