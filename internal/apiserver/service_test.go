package apiserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/coldbell/restake/backend/internal/auditor"
	"github.com/coldbell/restake/backend/internal/config"
	"github.com/coldbell/restake/backend/internal/localnet"
	"github.com/coldbell/restake/backend/internal/logging"
	"github.com/coldbell/restake/backend/internal/lrt"
	"github.com/coldbell/restake/backend/internal/store"
)

type harness struct {
	t      *testing.T
	net    *localnet.Localnet
	server *httptest.Server
}

func newHarness(t *testing.T, variant lrt.Variant, mutate func(*Deps)) *harness {
	t.Helper()
	logger := logging.Discard()
	net, err := localnet.New(logger, localnet.Config{Variant: variant, InputDecimals: 2, FaucetMaxAmount: 10_000})
	if err != nil {
		t.Fatalf("localnet: %v", err)
	}
	deps := Deps{Net: net, FaucetEnabled: true}
	if mutate != nil {
		mutate(&deps)
	}
	svc := New(config.APIServerConfig{AllowedOrigins: []string{"http://localhost:3000"}}, deps, logger)
	server := httptest.NewServer(svc.Handler())
	t.Cleanup(server.Close)
	return &harness{t: t, net: net, server: server}
}

func (h *harness) do(method, path string, body any) (int, []byte) {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	if err != nil {
		h.t.Fatalf("new request: %v", err)
	}
	resp, err := h.server.Client().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response: %v", err)
	}
	return resp.StatusCode, payload
}

func (h *harness) expect(method, path string, body any, status int) gjson.Result {
	h.t.Helper()
	code, payload := h.do(method, path, body)
	if code != status {
		h.t.Fatalf("%s %s = %d, want %d: %s", method, path, code, status, payload)
	}
	return gjson.ParseBytes(payload)
}

func (h *harness) createPool(creator, authority solana.PublicKey) string {
	h.t.Helper()
	result := h.expect(http.MethodPost, "/v1/pools", map[string]any{
		"creator":            creator.String(),
		"delegate_authority": authority.String(),
	}, http.StatusCreated)
	pool := result.Get("pool.address").String()
	if pool == "" {
		h.t.Fatalf("pool address missing: %s", result.Raw)
	}
	return pool
}

func TestHealth(t *testing.T) {
	h := newHarness(t, lrt.VariantRestaked, nil)
	result := h.expect(http.MethodGet, "/healthz", nil, http.StatusOK)
	if !result.Get("ok").Bool() || result.Get("variant").String() != "restaked" {
		t.Fatalf("unexpected health %s", result.Raw)
	}
	h.expect(http.MethodPost, "/healthz", nil, http.StatusMethodNotAllowed)
}

func TestPoolLifecycle(t *testing.T) {
	for _, variant := range []lrt.Variant{lrt.VariantDirect, lrt.VariantRestaked} {
		t.Run(variant.String(), func(t *testing.T) {
			h := newHarness(t, variant, nil)
			creator := solana.NewWallet().PublicKey()
			authority := solana.NewWallet().PublicKey()
			user := solana.NewWallet().PublicKey()

			pool := h.createPool(creator, authority)
			list := h.expect(http.MethodGet, "/v1/pools", nil, http.StatusOK)
			if list.Get("items.#").Int() != 1 || list.Get("items.0.address").String() != pool {
				t.Fatalf("unexpected pool list %s", list.Raw)
			}

			h.expect(http.MethodPost, "/v1/faucet", map[string]any{"owner": user.String(), "ui_amount": "1.5"}, http.StatusOK)

			deposit := h.expect(http.MethodPost, "/v1/pools/"+pool+"/deposit", map[string]any{
				"signer":    user.String(),
				"ui_amount": "1.25",
			}, http.StatusOK)
			if got := deposit.Get("pool.output_supply.amount").String(); got != "125" {
				t.Fatalf("output supply = %s, want 125", got)
			}
			if got := deposit.Get("pool.output_supply.ui_amount").String(); got != "1.25" {
				t.Fatalf("ui output supply = %s", got)
			}
			if !deposit.Get("events.#(name==\"deposit\")").Exists() {
				t.Fatalf("deposit event missing: %s", deposit.Raw)
			}

			h.expect(http.MethodPost, "/v1/pools/"+pool+"/delegate", map[string]any{
				"signer": authority.String(),
				"amount": 100,
			}, http.StatusOK)

			withdraw := h.expect(http.MethodPost, "/v1/pools/"+pool+"/withdraw", map[string]any{
				"signer": user.String(),
				"amount": "26",
			}, http.StatusUnprocessableEntity)
			if withdraw.Get("code").Uint() != uint64(lrt.ErrInsufficientLiquidity.Code) {
				t.Fatalf("withdraw error = %s", withdraw.Raw)
			}

			view := h.expect(http.MethodGet, "/v1/pools/"+pool, nil, http.StatusOK)
			if view.Get("avs_vault.amount").String() != "100" || view.Get("liquidity.amount").String() != "25" {
				t.Fatalf("unexpected pool view %s", view.Raw)
			}

			account := h.expect(http.MethodGet, "/v1/accounts/"+user.String(), nil, http.StatusOK)
			if got := account.Get("balances.#(label==\"input\").amount").String(); got != "25" {
				t.Fatalf("input balance = %s: %s", got, account.Raw)
			}
			if got := account.Get("balances.#(mint==\"" + view.Get("output_mint").String() + "\").amount").String(); got != "125" {
				t.Fatalf("receipt balance = %s: %s", got, account.Raw)
			}
		})
	}
}

func TestDelegateAuthorityOverHTTP(t *testing.T) {
	h := newHarness(t, lrt.VariantDirect, nil)
	a := solana.NewWallet().PublicKey()
	b := solana.NewWallet().PublicKey()
	user := solana.NewWallet().PublicKey()
	pool := h.createPool(a, a)

	h.expect(http.MethodPost, "/v1/faucet", map[string]any{"owner": user.String(), "amount": 50}, http.StatusOK)
	h.expect(http.MethodPost, "/v1/pools/"+pool+"/deposit", map[string]any{"signer": user.String(), "amount": 50}, http.StatusOK)
	h.expect(http.MethodPost, "/v1/pools/"+pool+"/delegate", map[string]any{"signer": a.String(), "amount": 10}, http.StatusOK)

	h.expect(http.MethodPost, "/v1/pools/"+pool+"/transfer-delegate-authority", map[string]any{
		"signer":        a.String(),
		"new_authority": b.String(),
	}, http.StatusOK)

	denied := h.expect(http.MethodPost, "/v1/pools/"+pool+"/undelegate", map[string]any{"signer": a.String(), "amount": 1}, http.StatusUnprocessableEntity)
	if denied.Get("name").String() != "Unauthorized" {
		t.Fatalf("unexpected error %s", denied.Raw)
	}
	h.expect(http.MethodPost, "/v1/pools/"+pool+"/undelegate", map[string]any{"signer": b.String(), "amount": 1}, http.StatusOK)
}

func TestPoolRequestValidation(t *testing.T) {
	h := newHarness(t, lrt.VariantDirect, nil)
	creator := solana.NewWallet().PublicKey()
	pool := h.createPool(creator, creator)
	missing := solana.NewWallet().PublicKey().String()

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"bad pool address", http.MethodGet, "/v1/pools/not-a-key", nil, http.StatusBadRequest},
		{"missing pool", http.MethodGet, "/v1/pools/" + missing, nil, http.StatusNotFound},
		{"missing pool operation", http.MethodPost, "/v1/pools/" + missing + "/deposit", map[string]any{"signer": creator.String(), "amount": 1}, http.StatusNotFound},
		{"unknown operation", http.MethodPost, "/v1/pools/" + pool + "/stake", map[string]any{}, http.StatusNotFound},
		{"operation needs post", http.MethodGet, "/v1/pools/" + pool + "/deposit", nil, http.StatusMethodNotAllowed},
		{"missing signer", http.MethodPost, "/v1/pools/" + pool + "/deposit", map[string]any{"amount": 1}, http.StatusBadRequest},
		{"missing amount", http.MethodPost, "/v1/pools/" + pool + "/deposit", map[string]any{"signer": creator.String()}, http.StatusBadRequest},
		{"fractional raw amount", http.MethodPost, "/v1/pools/" + pool + "/deposit", map[string]any{"signer": creator.String(), "amount": 1.5}, http.StatusBadRequest},
		{"too precise ui amount", http.MethodPost, "/v1/pools/" + pool + "/deposit", map[string]any{"signer": creator.String(), "ui_amount": "0.001"}, http.StatusBadRequest},
		{"zero amount", http.MethodPost, "/v1/pools/" + pool + "/deposit", map[string]any{"signer": creator.String(), "amount": 0}, http.StatusUnprocessableEntity},
		{"array body", http.MethodPost, "/v1/pools", []string{"x"}, http.StatusBadRequest},
		{"faucet over limit", http.MethodPost, "/v1/faucet", map[string]any{"owner": creator.String(), "amount": 10_001}, http.StatusBadRequest},
		{"history disabled", http.MethodGet, "/v1/transactions", nil, http.StatusServiceUnavailable},
		{"audit disabled", http.MethodGet, "/v1/audit", nil, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h.t = t
			h.expect(tc.method, tc.path, tc.body, tc.status)
		})
	}
}

func TestFaucetDisabled(t *testing.T) {
	h := newHarness(t, lrt.VariantDirect, func(d *Deps) { d.FaucetEnabled = false })
	h.expect(http.MethodPost, "/v1/faucet", map[string]any{"owner": solana.NewWallet().PublicKey().String(), "amount": 1}, http.StatusForbidden)
}

func TestDefaultDelegateAuthority(t *testing.T) {
	fallback := solana.NewWallet().PublicKey()
	h := newHarness(t, lrt.VariantDirect, func(d *Deps) { d.DelegateAuthority = fallback })
	result := h.expect(http.MethodPost, "/v1/pools", map[string]any{"creator": solana.NewWallet().PublicKey().String()}, http.StatusCreated)
	if got := result.Get("pool.delegate_authority").String(); got != fallback.String() {
		t.Fatalf("delegate authority = %s, want %s", got, fallback)
	}
}

type stubHistory struct {
	filter store.TransactionFilter
}

func (s *stubHistory) ListTransactions(_ context.Context, filter store.TransactionFilter) ([]store.TransactionRecord, int, int, error) {
	s.filter = filter
	return []store.TransactionRecord{{Signature: "sig", Instruction: "deposit", Success: true}}, 50, 0, nil
}

func (s *stubHistory) ListPoolSnapshots(_ context.Context, filter store.SnapshotFilter) ([]store.SnapshotRecord, int, int, error) {
	return []store.SnapshotRecord{{Pool: filter.Pool, OutputSupply: "7"}}, 50, 0, nil
}

type stubFindings struct{}

func (stubFindings) Findings() ([]auditor.Finding, time.Time) {
	return []auditor.Finding{{Check: auditor.CheckConservation, Detail: "short"}}, time.Unix(1700000000, 0)
}

func TestHistoryAndAudit(t *testing.T) {
	history := &stubHistory{}
	h := newHarness(t, lrt.VariantDirect, func(d *Deps) {
		d.History = history
		d.Findings = stubFindings{}
	})

	result := h.expect(http.MethodGet, "/v1/transactions?signer=abc&success=true&limit=5", nil, http.StatusOK)
	if result.Get("items.0.signature").String() != "sig" {
		t.Fatalf("unexpected transactions %s", result.Raw)
	}
	if history.filter.Signer != "abc" || history.filter.Limit != 5 || history.filter.Success == nil || !*history.filter.Success {
		t.Fatalf("filter not forwarded: %+v", history.filter)
	}
	h.expect(http.MethodGet, "/v1/transactions?success=maybe", nil, http.StatusBadRequest)

	pool := solana.NewWallet().PublicKey().String()
	snaps := h.expect(http.MethodGet, "/v1/pools/"+pool+"/snapshots", nil, http.StatusOK)
	if snaps.Get("items.0.pool").String() != pool {
		t.Fatalf("unexpected snapshots %s", snaps.Raw)
	}

	audit := h.expect(http.MethodGet, "/v1/audit", nil, http.StatusOK)
	if audit.Get("findings.0.check").String() != auditor.CheckConservation || audit.Get("ran_at").Int() != 1700000000 {
		t.Fatalf("unexpected audit %s", audit.Raw)
	}
}

func TestCORS(t *testing.T) {
	h := newHarness(t, lrt.VariantDirect, nil)
	req, err := http.NewRequest(http.MethodOptions, h.server.URL+"/v1/pools", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := h.server.Client().Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("unexpected preflight %d %v", resp.StatusCode, resp.Header)
	}

	req.Header.Set("Origin", "http://evil.example")
	resp, err = h.server.Client().Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("foreign origin allowed")
	}
}

func TestWebsocketStreamsReceipts(t *testing.T) {
	h := newHarness(t, lrt.VariantDirect, nil)
	creator := solana.NewWallet().PublicKey()
	user := solana.NewWallet().PublicKey()
	pool := h.createPool(creator, creator)
	h.expect(http.MethodPost, "/v1/faucet", map[string]any{"owner": user.String(), "amount": 10}, http.StatusOK)

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() gjson.Result {
		t.Helper()
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		return gjson.ParseBytes(payload)
	}

	if err := conn.WriteJSON(websocketSubscribeRequest{Type: "subscribe", Channel: "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := read(); msg.Get("type").String() != "error" {
		t.Fatalf("expected error for unknown channel: %s", msg.Raw)
	}

	for _, channel := range []string{channelReceipts, channelPoolPrefix + pool} {
		if err := conn.WriteJSON(websocketSubscribeRequest{Type: "subscribe", Channel: channel}); err != nil {
			t.Fatalf("write: %v", err)
		}
		if msg := read(); msg.Get("type").String() != "subscribed" || msg.Get("channel").String() != channel {
			t.Fatalf("unexpected ack %s", msg.Raw)
		}
	}

	h.expect(http.MethodPost, "/v1/pools/"+pool+"/deposit", map[string]any{"signer": user.String(), "amount": 3}, http.StatusOK)

	receipt := read()
	if receipt.Get("channel").String() != channelReceipts || !receipt.Get("data.events.#(name==\"deposit\")").Exists() {
		t.Fatalf("unexpected receipt event %s", receipt.Raw)
	}
	view := read()
	if view.Get("channel").String() != channelPoolPrefix+pool || view.Get("data.output_supply.amount").String() != "3" {
		t.Fatalf("unexpected pool event %s", view.Raw)
	}
}

func TestParseUIAmount(t *testing.T) {
	cases := []struct {
		raw     string
		want    uint64
		wantErr bool
	}{
		{"1.25", 125, false},
		{"0", 0, false},
		{"3", 300, false},
		{"0.001", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
		{"184467440737095516.16", 0, true},
	}
	for _, tc := range cases {
		got, err := parseUIAmount(tc.raw, 2)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseUIAmount(%q) expected error", tc.raw)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("parseUIAmount(%q) = %d, %v; want %d", tc.raw, got, err, tc.want)
		}
	}
	if got := formatUIAmount(125, 2); got != "1.25" {
		t.Fatalf("formatUIAmount = %s", got)
	}
}
