package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coldbell/restake/backend/internal/config"
	"github.com/coldbell/restake/backend/internal/localnet"
	"github.com/coldbell/restake/backend/internal/runtime"
	"github.com/coldbell/restake/backend/internal/store"
)

// Journal persists what the indexer observes.
type Journal interface {
	RecordReceipt(ctx context.Context, receipt runtime.Receipt) error
	RecordPoolSnapshots(ctx context.Context, snaps []store.PoolSnapshot) error
	Close() error
}

type Service struct {
	cfg     config.IndexerConfig
	net     *localnet.Localnet
	journal Journal
	logger  *slog.Logger
}

func New(cfg config.IndexerConfig, net *localnet.Localnet, logger *slog.Logger) (*Service, error) {
	st, err := store.New(cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	return NewWithJournal(cfg, net, st, logger), nil
}

func NewWithJournal(cfg config.IndexerConfig, net *localnet.Localnet, journal Journal, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:     cfg,
		net:     net,
		journal: journal,
		logger:  logger,
	}
}

func (s *Service) Run(ctx context.Context) error {
	defer func() {
		if err := s.journal.Close(); err != nil {
			s.logger.Error("failed to close store", "err", err)
		}
	}()

	receipts, unsubscribe := s.net.Runtime().Subscribe(s.cfg.ReceiptBuffer)
	defer unsubscribe()

	s.logger.Info("indexer started",
		"db_driver", "postgres",
		"variant", s.net.Variant().String(),
		"snapshot_interval", s.cfg.SnapshotInterval.String(),
	)

	if err := s.snapshotOnce(ctx); err != nil {
		s.logger.Error("initial snapshot failed", "err", err)
	}

	ticker := time.NewTicker(s.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("indexer stopped")
			return nil
		case receipt, ok := <-receipts:
			if !ok {
				return nil
			}
			if err := s.journal.RecordReceipt(ctx, receipt); err != nil {
				s.logger.Error("failed to record receipt",
					"signature", receipt.Signature.String(),
					"slot", receipt.Slot,
					"err", err,
				)
			}
		case <-ticker.C:
			if err := s.snapshotOnce(ctx); err != nil {
				s.logger.Error("snapshot failed", "err", err)
			}
		}
	}
}

func (s *Service) snapshotOnce(ctx context.Context) error {
	views, err := s.net.Client().Pools()
	if err != nil {
		return fmt.Errorf("list pools: %w", err)
	}
	slot := s.net.Ledger().Slot()
	snaps := make([]store.PoolSnapshot, 0, len(views))
	for _, view := range views {
		snaps = append(snaps, snapshotOf(view, slot))
	}
	if err := s.journal.RecordPoolSnapshots(ctx, snaps); err != nil {
		return err
	}
	s.logger.Info("snapshot complete", "slot", slot, "pools", len(snaps))
	return nil
}

func snapshotOf(view localnet.PoolView, slot uint64) store.PoolSnapshot {
	return store.PoolSnapshot{
		Pool:              view.Address.String(),
		Variant:           view.Variant,
		InputMint:         view.Pool.InputTokenMint.String(),
		OutputMint:        view.Pool.OutputTokenMint.String(),
		RestakedMint:      view.Pool.RestakedTokenMint.String(),
		DelegateAuthority: view.Pool.DelegateAuthority.String(),
		InputVault:        view.InputVault,
		RestakedVault:     view.RestakedVault,
		AVSVault:          view.AVSVault,
		OutputSupply:      view.OutputSupply,
		Slot:              slot,
	}
}
