package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"escrowgate/internal/acquirer"
	"escrowgate/internal/config"
	"escrowgate/internal/custodian"
	"escrowgate/internal/escrow"
	"escrowgate/internal/fees"
	"escrowgate/internal/gateway"
	"escrowgate/internal/server"
	"escrowgate/internal/tokengate"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting escrow payment gateway")

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	var store escrow.Store
	if cfg.Database.URL != "" {
		pgStore, err := escrow.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pgStore.Close()
		store = pgStore
		logger.Info("escrow store backed by postgres")
	} else {
		store = escrow.NewMemoryStore()
		logger.Warn("DATABASE_URL not set, escrow records are held in memory only")
	}

	var oracle tokengate.Oracle
	if cfg.Chain.RPCURL != "" && cfg.Chain.TokenContract != "" {
		ethOracle, err := tokengate.NewEthOracle(ctx, tokengate.EthOracleConfig{
			RPCURL:          cfg.Chain.RPCURL,
			TokenContract:   cfg.Chain.TokenContract,
			MinBalanceUnits: cfg.Chain.MinBalanceUnits,
		})
		if err != nil {
			logger.Fatal("failed to initialize token oracle", zap.Error(err))
		}
		oracle = ethOracle
		logger.Info("token oracle connected",
			zap.String("contract", cfg.Chain.TokenContract),
			zap.Int64("min_balance_units", cfg.Chain.MinBalanceUnits))
	} else {
		oracle = tokengate.StaticOracle{Err: errors.New("web3 oracle not configured")}
		logger.Warn("token oracle not configured, all callers pay the standard fee")
	}

	adapters := make([]acquirer.Adapter, 0, len(cfg.Acquirers))
	for _, acqCfg := range cfg.Acquirers {
		switch acqCfg.Name {
		case "acquirer_a":
			adapters = append(adapters, acquirer.NewAcquirerA(acqCfg))
		case "acquirer_b":
			adapters = append(adapters, acquirer.NewAcquirerB(acqCfg))
		default:
			logger.Warn("unknown acquirer in priority list, skipping",
				zap.String("acquirer", acqCfg.Name))
		}
	}
	if len(adapters) == 0 {
		logger.Fatal("no usable acquirer adapters configured")
	}

	router := acquirer.NewRouter(adapters, logger)
	custodianClient := custodian.NewHTTPClient(cfg.Custodian)
	ledger := escrow.NewLedger(store, custodianClient, escrow.LedgerOptions{
		PlatformRecipient:  cfg.Custodian.PlatformRecipient,
		StrictReleaseOrder: cfg.Escrow.StrictReleaseOrder,
	}, logger)

	policy := fees.Policy{
		HolderPercent:   cfg.Fees.HolderPercent,
		StandardPercent: cfg.Fees.StandardPercent,
	}
	orchestrator := gateway.NewOrchestrator(oracle, policy, router, ledger, logger)

	apiServer := server.NewServer(cfg, orchestrator, ledger, oracle, store, logger)

	go func() {
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server stopped unexpectedly", zap.Error(err))
		}
	}()

	logger.Info("gateway started",
		zap.Int("port", cfg.Server.HTTPPort),
		zap.Int("acquirers", len(adapters)),
		zap.String("holder_fee_percent", cfg.Fees.HolderPercent.String()),
		zap.String("standard_fee_percent", cfg.Fees.StandardPercent.String()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
}
