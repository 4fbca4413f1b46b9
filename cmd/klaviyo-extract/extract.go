package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/klaviyo-extractor/internal/config"
	"github.com/Sternrassler/klaviyo-extractor/pkg/client"
	"github.com/Sternrassler/klaviyo-extractor/pkg/extract"
	"github.com/Sternrassler/klaviyo-extractor/pkg/logging"
	"github.com/Sternrassler/klaviyo-extractor/pkg/resolver"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type extractFlags struct {
	start  string
	end    string
	format string
}

func newExtractCmd(root *rootFlags) *cobra.Command {
	flags := &extractFlags{}

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract the reporting dataset for a date range",
		Example: `  klaviyo-extract extract --start 2024-01-01 --end 2024-01-31
  klaviyo-extract extract --start 2024-01-01 --end 2024-01-31 --format table --tier small`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, root, flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.start, "start", "", "first day of the range (YYYY-MM-DD)")
	f.StringVar(&flags.end, "end", "", "last day of the range, inclusive (YYYY-MM-DD)")
	f.StringVar(&flags.format, "format", string(formatJSON), "output format (json, yaml, table)")
	f.String("tier", "medium", "rate limit tier (small, medium, large, xl)")
	f.String("metrics-addr", "", "serve /metrics and /healthz on this address during the run")
	f.String("redis-addr", "", "Redis address for the response cache and quota tracking")
	f.Duration("timeout", 10*time.Minute, "abort the run after this long (0 disables)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

// flagBindings maps configuration keys to the flags that override them.
func flagBindings(fs *pflag.FlagSet) map[string]*pflag.Flag {
	return map[string]*pflag.Flag{
		"tier":         fs.Lookup("tier"),
		"metrics_addr": fs.Lookup("metrics-addr"),
		"redis.addr":   fs.Lookup("redis-addr"),
		"run_timeout":  fs.Lookup("timeout"),
		"log.level":    fs.Lookup("log-level"),
		"log.pretty":   fs.Lookup("log-pretty"),
		"log.file":     fs.Lookup("log-file"),
	}
}

func runExtract(cmd *cobra.Command, root *rootFlags, flags *extractFlags) error {
	format, err := parseFormat(flags.format)
	if err != nil {
		return err
	}

	dr, err := extract.ParseDateRange(flags.start, flags.end)
	if err != nil {
		return err
	}

	cfg, _, err := config.Load(config.Options{
		ConfigFile: root.configFile,
		EnvFiles:   root.envFiles,
		Flags:      flagBindings(cmd.Flags()),
	})
	if err != nil {
		return err
	}

	logCfg := cfg.Logging()
	logCfg.Output = zerolog.SyncWriter(cmd.ErrOrStderr())
	base, closer := logging.Setup(logCfg)
	defer closer.Close()

	logger := logging.NewLogger("cli")
	logger.Debug().Stringer("config", cfg).Msg("Configuration loaded")

	ctx := cmd.Context()
	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
	}

	clientCfg, err := cfg.Client()
	if err != nil {
		return err
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,

			ContextTimeoutEnabled: true,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable - running without cache and quota tracking")
		} else {
			logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
			clientCfg.Redis = rdb
		}
	}

	c, err := client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer c.Close()

	if cfg.MetricsAddr != "" {
		srv, err := startServer(cfg.MetricsAddr, newRouter(c), logger)
		if err != nil {
			return err
		}
		defer shutdownServer(srv, logger)
	}

	res := resolver.New(c, base)
	orch := extract.NewOrchestrator(extract.NewExtractor(c, res, cfg.Extract()), res, cfg.Orchestrator())

	events, unsubscribe := orch.Subscribe(64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range events {
			logProgress(logger, e)
		}
	}()

	ds, err := orch.ExtractAll(ctx, dr)
	unsubscribe()
	<-done
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), format, ds)
}

func logProgress(logger zerolog.Logger, e extract.ProgressEvent) {
	event := logger.Info()
	if e.Degraded != nil {
		event = logger.Warn().Str("reason", e.Degraded.String())
	}

	event = event.Str("run_id", e.RunID).Stringer("state", e.State)
	if e.Category != 0 {
		event = event.Stringer("category", e.Category)
	}
	event.Msg("Extraction progress")
}
