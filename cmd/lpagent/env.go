// cmd/lpagent/env.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc"
	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/idl"
	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/programs/computebudget"
	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/solana-lp-agent/internal/config"
	"github.com/rovshanmuradov/solana-lp-agent/internal/decoder"
	"github.com/rovshanmuradov/solana-lp-agent/internal/events"
	"github.com/rovshanmuradov/solana-lp-agent/internal/logger"
	"github.com/rovshanmuradov/solana-lp-agent/internal/summary"
	"github.com/rovshanmuradov/solana-lp-agent/internal/valuation"
	"github.com/rovshanmuradov/solana-lp-agent/internal/wallet"
)

// env - зависимости одной команды CLI.
type env struct {
	cfg      *config.Config
	log      *logger.Logger
	pool     *rpc.Pool
	client   *solbc.Client
	registry *idl.Registry
	decoder  *decoder.Decoder
	bus      *events.Bus
	wallet   *wallet.Wallet
	owner    solana.PublicKey

	metrics    prometheus.Registerer
	gatherer   prometheus.Gatherer
	metricsSrv *http.Server
}

func newEnv(c *cli.Context) (*env, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.FromLogConfig(cfg.Log))
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	pool, err := rpc.NewPool(cfg.RPCList, log.Logger)
	if err != nil {
		return nil, err
	}
	client := solbc.NewClient(pool, solanarpc.CommitmentType(cfg.Commitment), log.Logger)

	fetcher := idl.NewFetcher(cfg.IDL.LocalDir, cfg.IDL.RepositoryURLs, client, log.Logger)
	registry := idl.NewRegistry(fetcher, log.Logger)

	e := &env{
		cfg:      cfg,
		log:      log,
		pool:     pool,
		client:   client,
		registry: registry,
		decoder:  decoder.NewDecoder(registry, decoder.NewChainResolver(client, log.Logger), log.Logger),
		bus:      events.NewBus(log.Logger, events.DefaultBufferSize),
	}
	e.bus.Subscribe(events.NewLogHandler(log.Logger), events.AllTypes()...)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		e.metrics, e.gatherer = reg, reg
		if addr := c.String("metrics-addr"); addr != "" {
			e.serveMetrics(addr, reg)
		}
	}

	if cfg.WalletKey != "" {
		if e.wallet, err = wallet.NewWallet(cfg.WalletKey); err != nil {
			return nil, fmt.Errorf("invalid wallet_key: %w", err)
		}
	}
	if path := c.String("wallets"); path != "" {
		wallets, err := wallet.LoadWallets(path)
		if err != nil {
			return nil, err
		}
		if e.wallet, err = selectWallet(wallets, c.String("wallet")); err != nil {
			return nil, err
		}
	}
	if e.wallet != nil {
		e.owner = e.wallet.PublicKey
	}
	if owner := c.String("owner"); owner != "" {
		if e.owner, err = solana.PublicKeyFromBase58(owner); err != nil {
			return nil, fmt.Errorf("invalid --owner: %w", err)
		}
	}
	return e, nil
}

func (e *env) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.bus.Shutdown(ctx); err != nil {
		e.log.Debug("Event bus shutdown", zap.Error(err))
	}
	if e.metricsSrv != nil {
		if err := e.metricsSrv.Shutdown(ctx); err != nil {
			e.log.Debug("Metrics server shutdown", zap.Error(err))
		}
	}
	if e.gatherer != nil {
		totals, err := metricTotals(e.gatherer)
		if err != nil {
			e.log.Warn("Failed to gather metrics", zap.Error(err))
		}
		for _, name := range sortedKeys(totals) {
			e.log.Info("Metric", zap.String("name", name), zap.Float64("value", totals[name]))
		}
	}
	_ = e.log.Sync()
}

func (e *env) serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	e.metricsSrv = &http.Server{Addr: addr, Handler: mux}

	go func() {
		e.log.Info("Starting metrics HTTP server", zap.String("addr", addr))
		if err := e.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error("Metrics server error", zap.Error(err))
		}
	}()
}

// metricTotals суммирует значения каждого семейства метрик по всем меткам.
// Для гистограмм берётся число наблюдений.
func metricTotals(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	totals := make(map[string]float64, len(families))
	for _, mf := range families {
		var sum float64
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue() + m.GetGauge().GetValue() + float64(m.GetHistogram().GetSampleCount())
		}
		totals[mf.GetName()] = sum
	}
	return totals, err
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// selectWallet выбирает кошелёк из CSV по имени; имя можно не указывать,
// если кошелёк один.
func selectWallet(wallets map[string]*wallet.Wallet, name string) (*wallet.Wallet, error) {
	if name == "" {
		if len(wallets) == 1 {
			for _, w := range wallets {
				return w, nil
			}
		}
		return nil, fmt.Errorf("%d wallets loaded, choose one with --wallet", len(wallets))
	}
	w, ok := wallets[name]
	if !ok {
		return nil, fmt.Errorf("wallet %q not found", name)
	}
	return w, nil
}

func (e *env) summaryService() (*summary.Service, error) {
	if e.owner.IsZero() {
		return nil, errors.New("reference owner is required: set wallet_key or --owner")
	}
	static, err := valuation.NewStaticOracle(e.cfg.Price.Static)
	if err != nil {
		return nil, err
	}
	valLog := e.log.WithComponent("valuation")
	oracle := valuation.NewCachedOracle(static, e.cfg.Price.TTL(), valLog)
	val := valuation.NewValuator(oracle, valuation.NewMetadataCache(e.client, valLog), valLog)
	return summary.NewService(e.client, e.decoder, val, e.owner, e.log.Logger,
		summary.WithMetrics(e.metrics),
		summary.WithEvents(e.bus),
	), nil
}

func (e *env) transactionManager() *transaction.Manager {
	estimator := computebudget.NewEstimator(computebudget.SettingsFromConfig(e.cfg.ComputeBudget), e.client, e.client, e.log.Logger)
	return transaction.NewManager(e.client, estimator, e.registry, transaction.ConfigFromApp(e.cfg), e.log.Logger,
		transaction.WithMetrics(e.metrics),
		transaction.WithEvents(e.bus),
	)
}
