package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"

	"github.com/coldbell/restake/backend/internal/apiserver"
	"github.com/coldbell/restake/backend/internal/auditor"
	"github.com/coldbell/restake/backend/internal/config"
	"github.com/coldbell/restake/backend/internal/indexer"
	"github.com/coldbell/restake/backend/internal/localnet"
	"github.com/coldbell/restake/backend/internal/logging"
	"github.com/coldbell/restake/backend/internal/lrt"
	"github.com/coldbell/restake/backend/internal/store"
)

func main() {
	bootstrapLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := run(bootstrapLogger); err != nil {
		bootstrapLogger.Error("localnet exited with error", "err", err)
		os.Exit(1)
	}
}

func run(bootstrapLogger *slog.Logger) error {
	netCfg, err := config.LoadLocalnetConfig()
	if err != nil {
		bootstrapLogger.Error("failed to load localnet config", "err", err)
		return err
	}
	auditCfg, err := config.LoadAuditorConfig()
	if err != nil {
		bootstrapLogger.Error("failed to load auditor config", "err", err)
		return err
	}
	indexCfg, err := config.LoadIndexerConfig()
	if err != nil {
		bootstrapLogger.Error("failed to load indexer config", "err", err)
		return err
	}
	apiCfg, err := config.LoadAPIServerConfig()
	if err != nil {
		bootstrapLogger.Error("failed to load api-server config", "err", err)
		return err
	}

	var closers []func() error
	defer func() {
		for _, closeLogger := range closers {
			if closeErr := closeLogger(); closeErr != nil {
				bootstrapLogger.Error("failed to close logger", "err", closeErr)
			}
		}
	}()
	newLogger := func(name string, cfg config.LogConfig) (*slog.Logger, error) {
		logger, closeLogger, err := logging.New(name, cfg)
		if err != nil {
			bootstrapLogger.Error("failed to initialize logger", "service", name, "err", err)
			return nil, err
		}
		closers = append(closers, closeLogger)
		return logger, nil
	}

	logger, err := newLogger("localnet", netCfg.Log)
	if err != nil {
		return err
	}
	if source, sourceErr := config.CurrentConfigSource(); sourceErr == nil {
		logger.Info("configuration loaded", "phase", source.Phase, "path", source.Path, "loaded", source.Loaded)
	}

	variant, err := lrt.ParseVariant(netCfg.Variant)
	if err != nil {
		return err
	}
	net, err := localnet.New(logger, localnet.Config{
		Variant:            variant,
		LRTProgramID:       netCfg.LRTProgramID,
		AVSProgramID:       netCfg.AVSProgramID,
		RestakingProgramID: netCfg.RestakingProgramID,
		InputMint:          netCfg.InputMint,
		InputDecimals:      netCfg.InputDecimals,
		RestakedMint:       netCfg.RestakedMint,
		AVSTokenMint:       netCfg.AVSTokenMint,
		FaucetAuthority:    netCfg.FaucetAuthority,
		FaucetMaxAmount:    netCfg.FaucetMaxAmount,
	})
	if err != nil {
		logger.Error("failed to start localnet", "err", err)
		return err
	}

	auditLogger, err := newLogger("auditor", auditCfg.Log)
	if err != nil {
		return err
	}
	audit := auditor.New(auditCfg, net, auditLogger)

	deps := apiserver.Deps{
		Net:               net,
		Findings:          audit,
		FaucetEnabled:     netCfg.FaucetEnabled,
		DelegateAuthority: netCfg.DelegateAuthority,
	}

	var indexSvc *indexer.Service
	if indexCfg.DBDSN != "" {
		indexLogger, err := newLogger("indexer", indexCfg.Log)
		if err != nil {
			return err
		}
		st, err := store.New(indexCfg.DBDSN)
		if err != nil {
			logger.Error("failed to initialize store", "err", err)
			return err
		}
		indexSvc = indexer.NewWithJournal(indexCfg, net, st, indexLogger)
		deps.History = st
	} else {
		logger.Info("indexer disabled; set INDEXER_DB_DSN to journal transactions")
	}

	apiLogger, err := newLogger("api-server", apiCfg.Log)
	if err != nil {
		return err
	}
	api := apiserver.New(apiCfg, deps, apiLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return audit.Run(ctx) })
	if indexSvc != nil {
		group.Go(func() error { return indexSvc.Run(ctx) })
	}
	group.Go(func() error { return api.Run(ctx) })

	logger.Info("localnet running",
		"variant", variant.String(),
		"lrt_program", netCfg.LRTProgramID.String(),
		"input_mint", netCfg.InputMint.String(),
		"faucet", netCfg.FaucetEnabled,
	)
	return group.Wait()
}
