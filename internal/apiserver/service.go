package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/restake/backend/internal/auditor"
	"github.com/coldbell/restake/backend/internal/config"
	"github.com/coldbell/restake/backend/internal/localnet"
	"github.com/coldbell/restake/backend/internal/store"
)

// History is the read side of the indexer store.
type History interface {
	ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]store.TransactionRecord, int, int, error)
	ListPoolSnapshots(ctx context.Context, filter store.SnapshotFilter) ([]store.SnapshotRecord, int, int, error)
}

// Findings exposes the latest audit.
type Findings interface {
	Findings() ([]auditor.Finding, time.Time)
}

// Deps are the components the server fronts. History and Findings are
// optional.
type Deps struct {
	Net      *localnet.Localnet
	History  History
	Findings Findings

	FaucetEnabled bool
	// DelegateAuthority is used for pools created without one; zero falls
	// back to the creator.
	DelegateAuthority solana.PublicKey
}

// Service fronts a localnet over HTTP. Requests name their signer and the
// server submits as that key without checking a signature, so it is not an
// authorization boundary.
type Service struct {
	cfg              config.APIServerConfig
	deps             Deps
	client           *localnet.Client
	logger           *slog.Logger
	allowAllOrigins  bool
	allowedOriginSet map[string]struct{}
}

func New(cfg config.APIServerConfig, deps Deps, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	allowAllOrigins := false
	allowedOriginSet := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			allowAllOrigins = true
			continue
		}
		allowedOriginSet[trimmed] = struct{}{}
	}
	if len(allowedOriginSet) == 0 && !allowAllOrigins {
		allowAllOrigins = true
	}

	return &Service{
		cfg:              cfg,
		deps:             deps,
		client:           deps.Net.Client(),
		logger:           logger,
		allowAllOrigins:  allowAllOrigins,
		allowedOriginSet: allowedOriginSet,
	}
}

func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/pools", s.handlePoolsRoot)
	mux.HandleFunc("/v1/pools/", s.handlePoolSubroutes)
	mux.HandleFunc("/v1/accounts/", s.handleAccount)
	mux.HandleFunc("/v1/faucet", s.handleFaucet)
	mux.HandleFunc("/v1/transactions", s.handleTransactions)
	mux.HandleFunc("/v1/audit", s.handleAudit)
	mux.HandleFunc("/ws", s.handleWebsocket)
	return s.withCORS(mux)
}

func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	s.logger.Info("api-server started",
		"listen_addr", s.cfg.ListenAddr,
		"variant", s.deps.Net.Variant().String(),
		"history", s.deps.History != nil,
		"allowed_origins", strings.Join(s.cfg.AllowedOrigins, ","),
	)

	select {
	case <-ctx.Done():
		s.logger.Info("api-server stopping")
		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("shutdown api-server: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	}
}

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type healthResponse struct {
	OK      bool   `json:"ok"`
	Variant string `json:"variant"`
	Slot    uint64 `json:"slot"`
}

type errorResponse struct {
	Error string   `json:"error"`
	Code  uint32   `json:"code,omitempty"`
	Name  string   `json:"name,omitempty"`
	Logs  []string `json:"logs,omitempty"`
}

type auditResponse struct {
	Findings []auditor.Finding `json:"findings"`
	RanAt    int64             `json:"ran_at"`
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	s.respondJSON(w, http.StatusOK, healthResponse{
		OK:      true,
		Variant: s.deps.Net.Variant().String(),
		Slot:    s.deps.Net.Ledger().Slot(),
	})
}

func (s *Service) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	if s.deps.History == nil {
		s.respondError(w, http.StatusServiceUnavailable, "transaction history is not enabled")
		return
	}

	limit, err := parseOptionalInt(r, "limit", 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := parseOptionalInt(r, "offset", 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	success, err := parseOptionalBool(r, "success")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, normalizedLimit, normalizedOffset, err := s.deps.History.ListTransactions(r.Context(), store.TransactionFilter{
		Signer:      strings.TrimSpace(r.URL.Query().Get("signer")),
		Instruction: strings.TrimSpace(r.URL.Query().Get("instruction")),
		Success:     success,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		s.logger.Error("list transactions failed", "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	s.respondJSON(w, http.StatusOK, listResponse[store.TransactionRecord]{
		Items:  items,
		Limit:  normalizedLimit,
		Offset: normalizedOffset,
	})
}

func (s *Service) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	if s.deps.Findings == nil {
		s.respondError(w, http.StatusServiceUnavailable, "auditor is not running")
		return
	}
	findings, ranAt := s.deps.Findings.Findings()
	response := auditResponse{Findings: findings}
	if !ranAt.IsZero() {
		response.RanAt = ranAt.Unix()
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Service) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			allowed := s.isOriginAllowed(origin)
			if allowed {
				if s.allowAllOrigins {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Set("Access-Control-Max-Age", "300")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Service) isOriginAllowed(origin string) bool {
	if origin == "" || s.allowAllOrigins {
		return true
	}
	_, ok := s.allowedOriginSet[origin]
	return ok
}

func parseOptionalInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseOptionalBool(r *http.Request, key string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return &value, nil
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, fmt.Errorf("request body is required")
	}
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return body, nil
}

func (s *Service) respondMethodNotAllowed(w http.ResponseWriter) {
	s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (s *Service) respondError(w http.ResponseWriter, code int, message string) {
	s.respondJSON(w, code, errorResponse{Error: message})
}

func (s *Service) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to write JSON response", "err", err)
	}
}
