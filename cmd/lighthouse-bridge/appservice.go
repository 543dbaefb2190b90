// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bureau-foundation/lighthouse/bridge"
	"github.com/bureau-foundation/lighthouse/lib/clock"
	"github.com/bureau-foundation/lighthouse/lib/netutil"
	"github.com/bureau-foundation/lighthouse/lib/secret"
	"github.com/bureau-foundation/lighthouse/lib/service"
	"github.com/bureau-foundation/lighthouse/messaging"
)

// maxTransactionBody bounds one pushed transaction.
const maxTransactionBody = 16 << 20

// transactionRelay is the part of the engine the appservice listener
// drives. *bridge.Bridge implements it.
type transactionRelay interface {
	HandleTransaction(ctx context.Context, transaction messaging.Transaction) bridge.TransactionReport
}

type appserviceConfig struct {
	Relay   transactionRelay
	HSToken *secret.Buffer
	// Window is how long a processed transaction ID is remembered.
	Window time.Duration
	Clock  clock.Clock
	Logger *slog.Logger
}

// appserviceHandler serves the homeserver-facing API.
type appserviceHandler struct {
	relay  transactionRelay
	window time.Duration
	clock  clock.Clock
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]time.Time
}

func newAppserviceHandler(config appserviceConfig) http.Handler {
	if config.Relay == nil || config.HSToken == nil || config.Logger == nil {
		panic("newAppserviceHandler: Relay, HSToken, and Logger are required")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	handler := &appserviceHandler{
		relay:  config.Relay,
		window: config.Window,
		clock:  clk,
		logger: config.Logger,
		seen:   make(map[string]time.Time),
	}

	authenticated := http.NewServeMux()
	// The legacy path also takes POST, which older homeservers send.
	authenticated.HandleFunc("POST /transactions/{txnId}", handler.handleTransaction)
	for _, prefix := range []string{"/_matrix/app/v1", ""} {
		authenticated.HandleFunc("PUT "+prefix+"/transactions/{txnId}", handler.handleTransaction)
		authenticated.HandleFunc("GET "+prefix+"/users/{userId}", handler.handleUserQuery)
		authenticated.HandleFunc("GET "+prefix+"/rooms/{alias}", handler.handleRoomQuery)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.Handle("/", service.RequireBearer(config.HSToken, config.Logger, authenticated))
	return mux
}

func (h *appserviceHandler) handleTransaction(writer http.ResponseWriter, request *http.Request) {
	txnID := request.PathValue("txnId")

	var transaction messaging.Transaction
	if err := netutil.DecodeRequest(request.Body, maxTransactionBody, &transaction); err != nil {
		writeMatrixError(writer, http.StatusBadRequest, messaging.ErrCodeBadJSON, "invalid transaction body")
		return
	}

	if !h.remember(txnID) {
		h.logger.Debug("replayed transaction acknowledged", "txn_id", txnID)
		netutil.WriteJSON(writer, http.StatusOK, struct{}{})
		return
	}

	report := h.relay.HandleTransaction(request.Context(), transaction)
	h.logger.Debug("transaction processed",
		"txn_id", txnID,
		"events", len(transaction.Events),
		"forwarded", report.Forwarded,
		"dropped", report.Dropped,
		"failed", report.Failed,
	)
	netutil.WriteJSON(writer, http.StatusOK, struct{}{})
}

// remember records txnID and reports whether it is new. Entries older
// than the window are pruned on the way.
func (h *appserviceHandler) remember(txnID string) bool {
	now := h.clock.Now()
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, at := range h.seen {
		if now.Sub(at) >= h.window {
			delete(h.seen, id)
		}
	}
	if _, ok := h.seen[txnID]; ok {
		return false
	}
	h.seen[txnID] = now
	return true
}

// Puppets are provisioned on demand, so every user in the namespace
// is acknowledged.
func (h *appserviceHandler) handleUserQuery(writer http.ResponseWriter, request *http.Request) {
	netutil.WriteJSON(writer, http.StatusOK, struct{}{})
}

// Rooms exist only after an explicit enable.
func (h *appserviceHandler) handleRoomQuery(writer http.ResponseWriter, request *http.Request) {
	writeMatrixError(writer, http.StatusNotFound, messaging.ErrCodeNotFound, "rooms are created by the bridge admin API")
}

func handleHealth(writer http.ResponseWriter, request *http.Request) {
	netutil.WriteJSON(writer, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": serviceName,
	})
}

func writeMatrixError(writer http.ResponseWriter, status int, errcode, message string) {
	netutil.WriteJSON(writer, status, map[string]string{"errcode": errcode, "error": message})
}
