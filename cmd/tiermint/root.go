package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/vitwit/tiermint"
	"github.com/vitwit/tiermint/logger"
	"github.com/vitwit/tiermint/metrics"
	"github.com/vitwit/tiermint/types"
	"golang.org/x/sync/errgroup"
)

type app struct {
	in  io.Reader
	out io.Writer

	configPath  string
	metricsAddr string
	jsonOutput  bool
	devLogs     bool

	ui *ui
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	a := &app{in: in, out: out}

	root := &cobra.Command{
		Use:   "tiermint",
		Short: "Mint tiered NFTs and follow them to confirmation",
		Long: `tiermint mints from a TierNFT contract. The price paid selects the tier;
the minted token's metadata is decoded from its on-chain data URI.

Configuration comes from --config (YAML, JSON or TOML), TIERMINT_* environment
variables and flags, in increasing precedence. The signing key is only read
from TIERMINT_PRIVATE_KEY or the config file.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.ui = newUI(a.out, a.jsonOutput)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "config file")
	pf.String("network", "", "network name ("+networkNames()+")")
	pf.String("rpc-url", "", "JSON-RPC endpoint")
	pf.String("ws-url", "", "websocket endpoint used for new heads")
	pf.String("contract", "", "TierNFT contract address")
	pf.String("mint-function", "", "payable mint entrypoint: mint or safeMint")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.Int("confirmations", 0, "required confirmations (default per network)")
	pf.Duration("timeout", 0, "confirmation timeout (default 5m)")
	pf.Uint64("max-blocks", 0, "blocks to wait for inclusion (default 50)")
	pf.Duration("poll-interval", 0, "receipt and head polling interval (default 2s)")
	pf.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	pf.BoolVar(&a.jsonOutput, "json", false, "print JSON instead of text")
	pf.BoolVar(&a.devLogs, "dev-logs", false, "human readable logs")

	root.AddCommand(
		a.tiersCmd(),
		a.statusCmd(),
		a.mintCmd(),
		a.watchCmd(),
		a.versionCmd(),
	)
	return root
}

// run loads the config, builds a Minter and runs fn while serving metrics
// when --metrics-addr is set. SIGINT and SIGTERM cancel ctx.
func (a *app) run(cmd *cobra.Command, opts []tiermint.Option, fn func(ctx context.Context, m *tiermint.Minter) error) error {
	cfg, err := loadConfig(a.configPath, cmd.Flags())
	if err != nil {
		return a.ui.fail(err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := logger.NewZapLogger(cfg.LogLevel, a.devLogs)
	if err != nil {
		return a.ui.fail(err)
	}
	defer func() { _ = log.Sync() }()
	opts = append([]tiermint.Option{tiermint.WithLogger(log)}, opts...)

	var registry *prometheus.Registry
	if a.metricsAddr != "" {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec, err := metrics.NewPrometheusRecorder(registry)
		if err != nil {
			return a.ui.fail(err)
		}
		opts = append(opts, tiermint.WithMetrics(rec))
	}

	m, err := tiermint.New(ctx, cfg, opts...)
	if err != nil {
		return a.ui.fail(err)
	}
	defer m.Close()

	if registry == nil {
		if err := fn(ctx, m); err != nil {
			return a.ui.fail(err)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:              a.metricsAddr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		log.Info("serving metrics", map[string]any{"addr": a.metricsAddr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		defer stop()
		return fn(gctx, m)
	})

	if err := g.Wait(); err != nil {
		return a.ui.fail(err)
	}
	return nil
}

func networkNames() string {
	names := ""
	for i, n := range types.SupportedNetworks() {
		if i > 0 {
			names += ", "
		}
		names += n.String()
	}
	return names
}
