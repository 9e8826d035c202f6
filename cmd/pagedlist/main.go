// Command pagedlist browses and exports paginated item lists served over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/pagedlist/internal/config"
	"github.com/Sternrassler/pagedlist/pkg/client"
	"github.com/Sternrassler/pagedlist/pkg/logging"
	"github.com/Sternrassler/pagedlist/pkg/source"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app holds what the subcommands share. Subcommands populate it in PreRunE
// via a.init, so the bare root command only prints help.
type app struct {
	configPath string

	cfg     *config.Config
	logger  zerolog.Logger
	redis   *redis.Client
	client  *client.Client
	metrics *http.Server
	closers []func()
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "pagedlist",
		Short:        "Browse and export paginated item lists",
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML configuration file")
	flags.String("base-url", "", "base URL of the item API")
	flags.String("endpoint", "/items", "list endpoint path")
	flags.String("items-field", "", "envelope field holding the item array (empty for a bare array)")
	flags.Int("page-size", 20, "items per page")
	flags.String("redis-addr", "", "Redis address for the page cache and shared rate-limit budget")
	flags.String("log-level", "info", "log level (debug, info, warn, error, disabled)")
	flags.Bool("log-pretty", false, "human-readable log output")
	flags.String("metrics-addr", "", "serve /health and /metrics on this address")

	root.AddCommand(newBrowseCmd(a), newExportCmd(a))
	return root
}

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"base-url":     "api.base_url",
	"endpoint":     "api.endpoint",
	"items-field":  "api.items_field",
	"page-size":    "pager.page_size",
	"redis-addr":   "redis.addr",
	"log-level":    "log.level",
	"log-pretty":   "log.pretty",
	"metrics-addr": "metrics.addr",
}

// preRun is the PreRunE of every subcommand that talks to the item API.
func (a *app) preRun(cmd *cobra.Command, args []string) error {
	return a.init(cmd)
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	for flag, key := range flagKeys {
		if err := cfg.Viper().BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	a.cfg = cfg

	logCfg := cfg.Logging()
	logCfg.Output = cmd.ErrOrStderr()
	a.logger = logging.Setup(logCfg)

	if opts := cfg.Redis(); opts != nil {
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(cmd.Context()).Err(); err != nil {
			a.redis.Close()
			return fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
		a.closers = append(a.closers, func() { a.redis.Close() })
		a.logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	}

	if addr := cfg.GetString("metrics.addr"); addr != "" {
		a.metrics = newMetricsServer(addr)
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
			}
		}()
		a.closers = append(a.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			a.metrics.Shutdown(ctx)
		})
		a.logger.Info().Str("addr", addr).Msg("Serving /health and /metrics")
	}

	return nil
}

// source builds the HTTP item source wrapped in logging, metrics and validation.
func (a *app) source() (source.ItemSource, error) {
	clientCfg, err := a.cfg.Client(a.redis)
	if err != nil {
		return nil, err
	}
	logger := a.logger.With().Str("component", "http-client").Logger()
	clientCfg.Logger = &logger

	c, err := client.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	a.client = c
	a.closers = append(a.closers, func() { c.Close() })

	return source.Chain(c,
		source.WithLogging(a.logger.With().Str("component", "source").Logger()),
		source.WithMetrics(),
		source.WithValidation(),
	), nil
}

// close releases everything init and source acquired, newest first.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
