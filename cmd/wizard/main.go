// Command wizard serves the multi-step personal/address form.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gabrielmiguelok/golivekit-wizard/client"
	"github.com/gabrielmiguelok/golivekit-wizard/internal/config"
	"github.com/gabrielmiguelok/golivekit-wizard/internal/server"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/logging"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/retry"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/shutdown"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/state"
)

var version = "0.1.0"

func main() {
	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		if err := runServe(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "config":
		if err := runConfig(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "version", "-v", "--version":
		fmt.Printf("wizard v%s\n", version)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`wizard v%s

Usage: wizard [command] [flags]

Commands:
  serve      Start the HTTP server (default)
  config     Print the effective configuration as YAML
  version    Print version
  help       Show this help

Flags:
  -config <path>   YAML configuration file (default: wizard.yaml)
  -addr <addr>     Listen address, overrides the configuration

Environment variables prefixed WIZARD_ override the file; see
internal/config for the full list.
`, version)
}

func loadConfig(name string, args []string) (*config.Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("config", "wizard.yaml", "YAML configuration file")
	addr := fs.String("addr", "", "listen address")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*path)
	if err != nil {
		return nil, err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	return cfg, nil
}

func runConfig(args []string) error {
	cfg, err := loadConfig("config", args)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = os.Stdout.Write(out)
	return err
}

func runServe(args []string) error {
	cfg, err := loadConfig("serve", args)
	if err != nil {
		return err
	}
	log := cfg.Logger()
	logging.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hooks := shutdown.NewGroup(log)

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	hooks.Add("store", shutdown.PriorityStore, func(context.Context) error {
		return closeStore()
	})

	srv := server.New(server.Config{
		Store:           store,
		Assets:          client.Assets(),
		SessionTTL:      cfg.Wizard.SessionTTL,
		SubmitDelay:     cfg.Wizard.SubmitDelay,
		Logger:          log,
		Version:         version,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		EventsPerSecond: cfg.Limits.EventsPerSecond,
		EventBurst:      cfg.Limits.EventBurst,
		MaxConnsPerIP:   cfg.Limits.MaxConnsPerIP,
	})
	hooks.Add("sessions", shutdown.PrioritySessions, func(context.Context) error {
		srv.Close()
		return nil
	})

	if cfg.Wizard.SweepSchedule != "" {
		sweeper, err := server.NewSweeper(cfg.Wizard.SweepSchedule, srv.Registry(), store, srv.Limiter(), cfg.Wizard.SessionTTL, log)
		if err != nil {
			_ = hooks.Run(context.Background())
			return err
		}
		sweeper.Start()
		hooks.Add("sweeper", shutdown.PrioritySweeper, func(context.Context) error {
			sweeper.Stop()
			return nil
		})
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	hooks.Add("http", shutdown.PriorityHTTP, httpSrv.Shutdown)

	errc := make(chan error, 1)
	go func() {
		log.Info("listening",
			logging.String("addr", cfg.Server.Addr),
			logging.String("store", cfg.Store.Backend),
		)
		errc <- httpSrv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := hooks.Run(shutdownCtx); err != nil {
		return errors.Join(serveErr, fmt.Errorf("shutdown: %w", err))
	}
	return serveErr
}

// openStore builds the configured backend. The returned func releases it;
// for the memory backend it first writes the snapshot file.
func openStore(ctx context.Context, cfg *config.Config, log logging.Logger) (state.Store, func() error, error) {
	policy := retry.DefaultPolicy()
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("store unavailable, retrying",
			logging.String("backend", cfg.Store.Backend),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Err(err),
		)
	}

	switch cfg.Store.Backend {
	case config.BackendSQLite:
		s, err := retry.DoValue(ctx, policy, func(context.Context) (*state.SQLiteStore, error) {
			return state.NewSQLiteStore(cfg.Store.SQLitePath)
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case config.BackendRedis:
		rc := state.DefaultRedisConfig()
		rc.Addr = cfg.Store.Redis.Addr
		rc.Password = cfg.Store.Redis.Password
		rc.DB = cfg.Store.Redis.DB
		s, err := retry.DoValue(ctx, policy, func(ctx context.Context) (*state.RedisStore, error) {
			return state.NewRedisStore(ctx, rc)
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	default:
		s := state.NewMemoryStore()
		path := cfg.Store.SnapshotPath
		if path == "" {
			return s, s.Close, nil
		}
		n, err := s.LoadFile(path)
		if err != nil {
			return nil, nil, err
		}
		log.Info("snapshot restored", logging.String("path", path), logging.Int("entries", n))
		return s, func() error {
			if _, err := s.Sweep(context.Background()); err != nil {
				log.Warn("sweep before snapshot", logging.Err(err))
			}
			return errors.Join(s.SaveFile(path), s.Close())
		}, nil
	}
}
