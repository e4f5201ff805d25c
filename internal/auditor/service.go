package auditor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/restake/backend/internal/config"
	"github.com/coldbell/restake/backend/internal/localnet"
)

const (
	CheckConservation      = "conservation"
	CheckDelegateAuthority = "delegate_authority"
	CheckMintAuthority     = "mint_authority"
)

// Finding is one violated pool invariant.
type Finding struct {
	Pool   solana.PublicKey `json:"pool"`
	Check  string           `json:"check"`
	Detail string           `json:"detail"`
	Slot   uint64           `json:"slot"`
}

// PoolLister is the read side the auditor needs.
type PoolLister interface {
	Pools() ([]localnet.PoolView, error)
}

type Service struct {
	cfg    config.AuditorConfig
	pools  PoolLister
	slot   func() uint64
	logger *slog.Logger

	mu       sync.RWMutex
	findings []Finding
	lastRun  time.Time
}

func New(cfg config.AuditorConfig, net *localnet.Localnet, logger *slog.Logger) *Service {
	return newService(cfg, net.Client(), net.Ledger().Slot, logger)
}

func newService(cfg config.AuditorConfig, pools PoolLister, slot func() uint64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:    cfg,
		pools:  pools,
		slot:   slot,
		logger: logger,
	}
}

func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("auditor started", "poll_interval", s.cfg.PollInterval.String())

	if err := s.tick(ctx); err != nil {
		s.logger.Error("auditor tick failed", "err", err)
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("auditor stopped")
			return nil
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.logger.Error("auditor tick failed", "err", err)
			}
		}
	}
}

// Findings returns the result of the most recent audit.
func (s *Service) Findings() ([]Finding, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Finding, len(s.findings))
	copy(out, s.findings)
	return out, s.lastRun
}

func (s *Service) tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slot := s.slot()
	views, err := s.pools.Pools()
	if err != nil {
		return fmt.Errorf("list pools: %w", err)
	}

	findings := Audit(views, slot)
	for _, finding := range findings {
		s.logger.Warn("pool invariant violated",
			"pool", finding.Pool.String(),
			"check", finding.Check,
			"detail", finding.Detail,
			"slot", finding.Slot,
		)
	}

	s.mu.Lock()
	s.findings = findings
	s.lastRun = time.Now().UTC()
	s.mu.Unlock()

	s.logger.Debug("audit complete", "slot", slot, "pools", len(views), "findings", len(findings))
	return nil
}

// Audit checks every pool for full backing of its receipt supply and for
// the authorities Initialize installs.
func Audit(views []localnet.PoolView, slot uint64) []Finding {
	var findings []Finding
	add := func(pool solana.PublicKey, check, detail string) {
		findings = append(findings, Finding{Pool: pool, Check: check, Detail: detail, Slot: slot})
	}

	for _, view := range views {
		backing, err := view.Backing()
		switch {
		case err != nil:
			add(view.Address, CheckConservation, fmt.Sprintf("backing overflows: %v", err))
		case backing != view.OutputSupply:
			add(view.Address, CheckConservation, fmt.Sprintf(
				"output supply %d != backing %d (input %d, restaked %d, avs %d)",
				view.OutputSupply, backing, view.InputVault, view.RestakedVault, view.AVSVault,
			))
		}
		if view.Pool.DelegateAuthority.IsZero() {
			add(view.Address, CheckDelegateAuthority, "delegate authority is unset")
		}
		if !view.OutputMintAuthority.Equals(view.Address) {
			add(view.Address, CheckMintAuthority, fmt.Sprintf("output mint authority is %s", view.OutputMintAuthority))
		}
	}
	return findings
}
