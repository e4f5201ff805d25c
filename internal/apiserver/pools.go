package apiserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/restake/backend/internal/ledger"
	"github.com/coldbell/restake/backend/internal/localnet"
	"github.com/coldbell/restake/backend/internal/lrt"
	"github.com/coldbell/restake/backend/internal/runtime"
	"github.com/coldbell/restake/backend/internal/store"
)

// poolOperations maps URL segments onto pool instructions.
var poolOperations = map[string]string{
	"deposit":                     lrt.InstructionDeposit,
	"withdraw":                    lrt.InstructionWithdraw,
	"delegate":                    lrt.InstructionDelegate,
	"undelegate":                  lrt.InstructionUndelegate,
	"withdraw-delegated-stake":    lrt.InstructionWithdrawDelegatedStake,
	"transfer-delegate-authority": lrt.InstructionTransferDelegateAuthority,
}

type poolResponse struct {
	Address             string     `json:"address"`
	Variant             string     `json:"variant"`
	InputMint           string     `json:"input_mint"`
	OutputMint          string     `json:"output_mint"`
	RestakedMint        string     `json:"restaked_mint,omitempty"`
	DelegateAuthority   string     `json:"delegate_authority"`
	OutputMintAuthority string     `json:"output_mint_authority"`
	InputVault          amountView `json:"input_vault"`
	RestakedVault       amountView `json:"restaked_vault"`
	AVSVault            amountView `json:"avs_vault"`
	OutputSupply        amountView `json:"output_supply"`
	Liquidity           amountView `json:"liquidity"`
}

type executionResponse struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	Events    []runtime.Event `json:"events"`
	Logs      []string        `json:"logs"`
	Pool      *poolResponse   `json:"pool,omitempty"`
}

type balanceResponse struct {
	Mint  string `json:"mint"`
	Label string `json:"label"`
	amountView
}

type accountResponse struct {
	Owner    string            `json:"owner"`
	Balances []balanceResponse `json:"balances"`
}

type faucetResponse struct {
	Owner   string     `json:"owner"`
	Account string     `json:"account"`
	Funded  amountView `json:"funded"`
}

func (s *Service) decimals() uint8 {
	return s.deps.Net.Config().InputDecimals
}

func (s *Service) newPoolResponse(view localnet.PoolView) poolResponse {
	decimals := s.decimals()
	response := poolResponse{
		Address:             view.Address.String(),
		Variant:             view.Variant,
		InputMint:           view.Pool.InputTokenMint.String(),
		OutputMint:          view.Pool.OutputTokenMint.String(),
		DelegateAuthority:   view.Pool.DelegateAuthority.String(),
		OutputMintAuthority: view.OutputMintAuthority.String(),
		InputVault:          newAmountView(view.InputVault, decimals),
		RestakedVault:       newAmountView(view.RestakedVault, decimals),
		AVSVault:            newAmountView(view.AVSVault, decimals),
		OutputSupply:        newAmountView(view.OutputSupply, decimals),
	}
	if view.Pool.Restaked {
		response.RestakedMint = view.Pool.RestakedTokenMint.String()
	}
	if liquidity, err := ledger.CheckedAdd(view.InputVault, view.RestakedVault); err == nil {
		response.Liquidity = newAmountView(liquidity, decimals)
	}
	return response
}

func (s *Service) handlePoolsRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		views, err := s.client.Pools()
		if err != nil {
			s.logger.Error("list pools failed", "err", err)
			s.respondError(w, http.StatusInternalServerError, "failed to list pools")
			return
		}
		items := make([]poolResponse, 0, len(views))
		for _, view := range views {
			items = append(items, s.newPoolResponse(view))
		}
		s.respondJSON(w, http.StatusOK, listResponse[poolResponse]{Items: items, Limit: len(items)})

	case http.MethodPost:
		body, err := readBody(r)
		if err == nil {
			err = validJSONBody(body)
		}
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		creator, err := parsePubkeyField(body, "creator", true)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		authority, err := parsePubkeyField(body, "delegate_authority", false)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if authority.IsZero() {
			authority = s.deps.DelegateAuthority
		}
		if authority.IsZero() {
			authority = creator
		}

		pool, receipt, err := s.client.CreatePool(r.Context(), creator, authority)
		if err != nil {
			s.respondExecutionError(w, err, receipt)
			return
		}
		s.logger.Info("pool created", "pool", pool.String(), "creator", creator.String(), "delegate_authority", authority.String())
		s.respondExecution(w, http.StatusCreated, pool, receipt)

	default:
		s.respondMethodNotAllowed(w)
	}
}

func (s *Service) handlePoolSubroutes(w http.ResponseWriter, r *http.Request) {
	rawPool, tail := splitSubroute(r.URL.Path, "/v1/pools/")
	if rawPool == "" {
		s.respondError(w, http.StatusNotFound, "pool address is required")
		return
	}
	pool, err := solana.PublicKeyFromBase58(rawPool)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid pool address")
		return
	}

	switch {
	case tail == "":
		if r.Method != http.MethodGet {
			s.respondMethodNotAllowed(w)
			return
		}
		view, err := s.client.View(pool)
		if err != nil {
			s.respondPoolLookupError(w, pool, err)
			return
		}
		s.respondJSON(w, http.StatusOK, s.newPoolResponse(view))

	case tail == "snapshots":
		if r.Method != http.MethodGet {
			s.respondMethodNotAllowed(w)
			return
		}
		s.handlePoolSnapshots(w, r, pool)

	default:
		instruction, ok := poolOperations[tail]
		if !ok {
			s.respondError(w, http.StatusNotFound, "unknown pool operation")
			return
		}
		if r.Method != http.MethodPost {
			s.respondMethodNotAllowed(w)
			return
		}
		s.handlePoolOperation(w, r, pool, instruction)
	}
}

func (s *Service) handlePoolSnapshots(w http.ResponseWriter, r *http.Request, pool solana.PublicKey) {
	if s.deps.History == nil {
		s.respondError(w, http.StatusServiceUnavailable, "pool history is not enabled")
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
	items, normalizedLimit, normalizedOffset, err := s.deps.History.ListPoolSnapshots(r.Context(), store.SnapshotFilter{
		Pool:   pool.String(),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.logger.Error("list pool snapshots failed", "pool", pool.String(), "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to list pool snapshots")
		return
	}
	s.respondJSON(w, http.StatusOK, listResponse[store.SnapshotRecord]{
		Items:  items,
		Limit:  normalizedLimit,
		Offset: normalizedOffset,
	})
}

func (s *Service) handlePoolOperation(w http.ResponseWriter, r *http.Request, pool solana.PublicKey, instruction string) {
	body, err := readBody(r)
	if err == nil {
		err = validJSONBody(body)
	}
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	signer, err := parsePubkeyField(body, "signer", true)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var amount uint64
	var newAuthority solana.PublicKey
	if instruction == lrt.InstructionTransferDelegateAuthority {
		newAuthority, err = parsePubkeyField(body, "new_authority", true)
	} else {
		amount, err = parseAmount(body, s.decimals())
	}
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.client.Pool(pool); err != nil {
		s.respondPoolLookupError(w, pool, err)
		return
	}

	receipt, err := s.client.Execute(r.Context(), instruction, pool, signer, amount, newAuthority)
	if err != nil {
		s.respondExecutionError(w, err, receipt)
		return
	}
	s.respondExecution(w, http.StatusOK, pool, receipt)
}

func (s *Service) handleAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	rawOwner, tail := splitSubroute(r.URL.Path, "/v1/accounts/")
	if rawOwner == "" || tail != "" {
		s.respondError(w, http.StatusNotFound, "account address is required")
		return
	}
	owner, err := solana.PublicKeyFromBase58(rawOwner)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	type holding struct {
		label string
		mint  solana.PublicKey
	}
	cfg := s.deps.Net.Config()
	holdings := []holding{{label: "input", mint: cfg.InputMint}}
	if restaking := s.deps.Net.Restaking(); restaking != nil {
		holdings = append(holdings, holding{label: "restaked", mint: restaking.RestakedMint})
	}
	views, err := s.client.Pools()
	if err != nil {
		s.logger.Error("list pools failed", "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to list pools")
		return
	}
	for _, view := range views {
		holdings = append(holdings, holding{label: "receipt:" + view.Address.String(), mint: view.Pool.OutputTokenMint})
	}

	response := accountResponse{Owner: owner.String(), Balances: make([]balanceResponse, 0, len(holdings))}
	for _, h := range holdings {
		amount, err := s.client.BalanceOf(owner, h.mint)
		if err != nil {
			s.logger.Error("read balance failed", "owner", owner.String(), "mint", h.mint.String(), "err", err)
			s.respondError(w, http.StatusInternalServerError, "failed to read balances")
			return
		}
		response.Balances = append(response.Balances, balanceResponse{
			Mint:       h.mint.String(),
			Label:      h.label,
			amountView: newAmountView(amount, s.decimals()),
		})
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Service) handleFaucet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondMethodNotAllowed(w)
		return
	}
	if !s.deps.FaucetEnabled {
		s.respondError(w, http.StatusForbidden, "faucet is disabled")
		return
	}
	body, err := readBody(r)
	if err == nil {
		err = validJSONBody(body)
	}
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	owner, err := parsePubkeyField(body, "owner", true)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(body, s.decimals())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := s.deps.Net.Faucet(r.Context(), owner, amount)
	if err != nil {
		if errors.Is(err, localnet.ErrFaucetLimit) || errors.Is(err, lrt.ErrInvalidAmount) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("faucet failed", "owner", owner.String(), "err", err)
		s.respondError(w, http.StatusInternalServerError, "faucet failed")
		return
	}
	s.respondJSON(w, http.StatusOK, faucetResponse{
		Owner:   owner.String(),
		Account: account.String(),
		Funded:  newAmountView(amount, s.decimals()),
	})
}

func (s *Service) respondExecution(w http.ResponseWriter, code int, pool solana.PublicKey, receipt *runtime.Receipt) {
	response := executionResponse{
		Signature: receipt.Signature.String(),
		Slot:      receipt.Slot,
		Events:    receipt.Events,
		Logs:      receipt.Logs,
	}
	if view, err := s.client.View(pool); err == nil {
		poolView := s.newPoolResponse(view)
		response.Pool = &poolView
	}
	s.respondJSON(w, code, response)
}

// respondExecutionError reports program failures as 422 with their code.
func (s *Service) respondExecutionError(w http.ResponseWriter, err error, receipt *runtime.Receipt) {
	response := errorResponse{Error: err.Error()}
	if receipt != nil {
		response.Logs = receipt.Logs
	}
	if perr, ok := lrt.CodeOf(err); ok {
		response.Code = perr.Code
		response.Name = perr.Name
		s.respondJSON(w, http.StatusUnprocessableEntity, response)
		return
	}
	s.respondJSON(w, http.StatusBadRequest, response)
}

func (s *Service) respondPoolLookupError(w http.ResponseWriter, pool solana.PublicKey, err error) {
	if errors.Is(err, ledger.ErrAccountNotFound) || errors.Is(err, lrt.ErrAccountMismatch) {
		s.respondError(w, http.StatusNotFound, "pool not found")
		return
	}
	s.logger.Error("read pool failed", "pool", pool.String(), "err", err)
	s.respondError(w, http.StatusInternalServerError, "failed to read pool")
}

func splitSubroute(path, prefix string) (string, string) {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return "", ""
	}
	segments := strings.Split(trimmed, "/")
	id := strings.TrimSpace(segments[0])
	if len(segments) == 1 {
		return id, ""
	}
	return id, strings.Join(segments[1:], "/")
}
