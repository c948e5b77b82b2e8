package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"autotrader/config"
	"autotrader/gateway"
	"autotrader/infrastructure/logger"
	"autotrader/infrastructure/monitor"
	"autotrader/internal/engine"
	"autotrader/market"
	"autotrader/metrics"
	"autotrader/strategy"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "path to config file")
	monitorAddr := flag.String("monitorAddr", "", "monitor listen address, overrides config")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logg.Close()

	collector := metrics.New(metrics.DefaultConfig())

	deps := engine.Dependencies{
		Source:      market.NewHTTPSource(cfg.Market.BaseURL),
		Logger:      logg,
		Metrics:     collector,
		RiskLimits:  cfg.Risk,
		CacheConfig: cfg.Cache.ToCacheConfig(),
		SimConfig:   cfg.Sim,
	}
	mode := engine.Mode(cfg.Engine.Mode)
	if mode == engine.ModeLive {
		deps.Gateway = gateway.NewRESTGateway(
			cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.APISecret)
	}
	eng := engine.New(deps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := engine.Options{
		Mode:           mode,
		Strategy:       cfg.Strategy.Name,
		StrategyParams: strategy.Params(cfg.Strategy.Params),
		Symbol:         cfg.Engine.Symbol,
		Interval:       cfg.Engine.Interval,
		CyclePeriod:    time.Duration(cfg.Engine.CycleSeconds) * time.Second,
		StopTimeout:    time.Duration(cfg.Engine.StopTimeout) * time.Second,
		InitialBalance: cfg.Engine.Balance,
	}
	if err := eng.Start(ctx, opts); err != nil {
		logg.Error("engine start failed", zap.Error(err))
		os.Exit(1)
	}

	var mon *monitor.Server
	addr := cfg.Monitor.Addr
	if *monitorAddr != "" {
		addr = *monitorAddr
	}
	if addr != "" {
		monCfg := monitor.DefaultConfig()
		monCfg.Addr = addr
		mon = monitor.New(monCfg, eng, collector.Handler(), logg)
		mon.Start()
	}

	watcher, err := config.NewWatcher(*cfgPath, config.DefaultWatcherConfig(), logg, func(next config.AppConfig) error {
		return eng.ReconfigureRisk(next.Risk)
	})
	if err != nil {
		logg.Warn("config watcher unavailable", zap.Error(err))
	} else {
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logg.Warn("sd_notify ready failed", zap.Error(err))
	} else if ok {
		logg.Info("systemd notified ready")
	}
	go watchdogLoop(ctx, logg)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logg.Info("signal received, shutting down", zap.String("signal", sig.String()))
	daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := eng.Stop(stopCtx); err != nil {
		logg.Error("engine stop failed", zap.Error(err))
	}
	if mon != nil {
		if err := mon.Stop(stopCtx); err != nil {
			logg.Warn("monitor stop failed", zap.Error(err))
		}
	}
	cancel()
}

// watchdogLoop keeps the systemd watchdog fed at half its interval. A no-op
// when the watchdog is not configured.
func watchdogLoop(ctx context.Context, logg *logger.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				logg.Warn("sd_notify watchdog failed", zap.Error(err))
			}
		}
	}
}
