package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"autotrader/config"
	"autotrader/gateway"
	"autotrader/infrastructure/logger"
	"autotrader/internal/engine"
	"autotrader/market"
	"autotrader/strategy"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "path to config file")
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

	deps := engine.Dependencies{
		Source:      market.NewHTTPSource(cfg.Market.BaseURL),
		Logger:      logg,
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

	cycle := time.Duration(cfg.Engine.CycleSeconds) * time.Second
	if cycle <= 0 {
		cycle = time.Second
	}
	opts := engine.Options{
		Mode:           mode,
		Strategy:       cfg.Strategy.Name,
		StrategyParams: strategy.Params(cfg.Strategy.Params),
		Symbol:         cfg.Engine.Symbol,
		Interval:       cfg.Engine.Interval,
		CyclePeriod:    cycle,
		StopTimeout:    time.Duration(cfg.Engine.StopTimeout) * time.Second,
		InitialBalance: cfg.Engine.Balance,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Printf("trader console, symbol %s, mode %s\n", cfg.Engine.Symbol, cfg.Engine.Mode)
	fmt.Println("commands: start stop pause resume status orders cancel <id> quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "start":
			if err := eng.Start(ctx, opts); err != nil {
				fmt.Println("error:", err)
			} else {
				fmt.Println("started")
			}
		case "stop":
			if err := eng.Stop(ctx); err != nil {
				fmt.Println("error:", err)
			} else {
				fmt.Println("stopped")
			}
		case "pause":
			if err := eng.Pause(); err != nil {
				fmt.Println("error:", err)
			} else {
				fmt.Println("paused")
			}
		case "resume":
			if err := eng.Resume(); err != nil {
				fmt.Println("error:", err)
			} else {
				fmt.Println("resumed")
			}
		case "status":
			printStatus(eng.Status())
		case "orders":
			orders := eng.ListActiveOrders()
			if len(orders) == 0 {
				fmt.Println("no active orders")
				continue
			}
			for _, o := range orders {
				fmt.Printf("%s  %-4s %-6s %s  amount=%.4f filled=%.4f status=%s\n",
					o.ID, o.Side, o.Type, o.Symbol, o.Amount, o.FilledAmount, o.Status)
			}
		case "cancel":
			if len(fields) < 2 {
				fmt.Println("usage: cancel <order-id>")
				continue
			}
			if eng.CancelOrder(ctx, fields[1]) {
				fmt.Println("cancel requested")
			} else {
				fmt.Println("order not found or already terminal")
			}
		case "quit", "exit":
			if err := eng.Stop(ctx); err != nil {
				fmt.Println("error:", err)
			}
			fmt.Println("bye")
			return
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}

	// stdin closed, stop cleanly
	eng.Stop(ctx)
}

func printStatus(st engine.Status) {
	fmt.Printf("state:         %s\n", st.State)
	fmt.Printf("mode:          %s\n", st.Mode)
	if !st.StartTime.IsZero() {
		fmt.Printf("started:       %s\n", st.StartTime.Format(time.RFC3339))
		fmt.Printf("uptime:        %s\n", st.Uptime.Round(time.Second))
	}
	fmt.Printf("active orders: %d\n", st.ActiveOrders)
	fmt.Printf("total trades:  %d\n", st.TotalTrades)
	fmt.Printf("balance:       %.2f\n", st.Balance)
	fmt.Printf("daily pnl:     %.2f\n", st.DailyPnL)
	if st.LastFault != "" {
		fmt.Printf("last fault:    %s\n", st.LastFault)
	}
}
