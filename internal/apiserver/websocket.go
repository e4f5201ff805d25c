package apiserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"

	"github.com/coldbell/restake/backend/internal/runtime"
)

const (
	channelReceipts   = "receipts"
	channelPoolPrefix = "pool."
)

type websocketSubscribeRequest struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

type websocketEnvelope struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	TS      int64  `json:"ts"`
}

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// handleWebsocket streams receipts and pool views. Clients send
// {"type":"subscribe","channel":"receipts"} or "pool.<address>"; every
// request is acknowledged before events for it are sent.
func (s *Service) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	upgrader := websocketUpgrader
	upgrader.CheckOrigin = func(req *http.Request) bool {
		return s.isOriginAllowed(strings.TrimSpace(req.Header.Get("Origin")))
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	receipts, unsubscribe := s.deps.Net.Runtime().Subscribe(64)
	defer unsubscribe()

	requests := make(chan websocketSubscribeRequest, 16)
	readErrCh := make(chan error, 1)
	go s.websocketReadLoop(ctx, conn, requests, readErrCh)

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	subs := make(map[string]struct{})
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErrCh:
			if err != nil {
				s.logger.Debug("websocket read loop ended", "err", err)
			}
			return
		case request := <-requests:
			envelope := websocketEnvelope{Type: request.Type + "d", Channel: request.Channel, TS: time.Now().Unix()}
			switch request.Type {
			case "subscribe":
				if !validChannel(request.Channel) {
					envelope = websocketEnvelope{Type: "error", Channel: request.Channel, Error: "unknown channel", TS: time.Now().Unix()}
					break
				}
				subs[request.Channel] = struct{}{}
			case "unsubscribe":
				delete(subs, request.Channel)
			}
			if err := writeWebsocketJSON(conn, envelope); err != nil {
				return
			}
		case receipt, ok := <-receipts:
			if !ok {
				return
			}
			if err := s.publishReceipt(conn, subs, receipt); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

func (s *Service) publishReceipt(conn *websocket.Conn, subs map[string]struct{}, receipt runtime.Receipt) error {
	now := time.Now().Unix()
	if _, ok := subs[channelReceipts]; ok {
		if err := writeWebsocketJSON(conn, websocketEnvelope{Type: "event", Channel: channelReceipts, Data: receipt, TS: now}); err != nil {
			return err
		}
	}
	if !receipt.Succeeded() {
		return nil
	}
	for channel := range subs {
		if !strings.HasPrefix(channel, channelPoolPrefix) {
			continue
		}
		pool, err := solana.PublicKeyFromBase58(strings.TrimPrefix(channel, channelPoolPrefix))
		if err != nil {
			continue
		}
		view, err := s.client.View(pool)
		if err != nil {
			if werr := writeWebsocketJSON(conn, websocketEnvelope{Type: "error", Channel: channel, Error: "failed to read pool", TS: now}); werr != nil {
				return werr
			}
			continue
		}
		if err := writeWebsocketJSON(conn, websocketEnvelope{Type: "event", Channel: channel, Data: s.newPoolResponse(view), TS: now}); err != nil {
			return err
		}
	}
	return nil
}

func validChannel(channel string) bool {
	if channel == channelReceipts {
		return true
	}
	if !strings.HasPrefix(channel, channelPoolPrefix) {
		return false
	}
	_, err := solana.PublicKeyFromBase58(strings.TrimPrefix(channel, channelPoolPrefix))
	return err == nil
}

func (s *Service) websocketReadLoop(ctx context.Context, conn *websocket.Conn, requests chan<- websocketSubscribeRequest, readErrCh chan<- error) {
	conn.SetReadLimit(64 * 1024)
	if err := conn.SetReadDeadline(time.Now().Add(90 * time.Second)); err == nil {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		})
	}
	for {
		var message websocketSubscribeRequest
		if err := conn.ReadJSON(&message); err != nil {
			readErrCh <- err
			return
		}
		message.Type = strings.ToLower(strings.TrimSpace(message.Type))
		message.Channel = strings.TrimSpace(message.Channel)
		if message.Channel == "" || (message.Type != "subscribe" && message.Type != "unsubscribe") {
			continue
		}
		select {
		case requests <- message:
		case <-ctx.Done():
			readErrCh <- nil
			return
		}
	}
}

func writeWebsocketJSON(conn *websocket.Conn, payload websocketEnvelope) error {
	if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return conn.WriteJSON(payload)
}
