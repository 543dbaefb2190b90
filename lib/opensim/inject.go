// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package opensim

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/lighthouse/lib/clock"
	"github.com/bureau-foundation/lighthouse/lib/netutil"
	"github.com/bureau-foundation/lighthouse/lib/secret"
	"github.com/bureau-foundation/lighthouse/lib/service"
)

// maxInjectBody bounds an inject request body.
const maxInjectBody = 64 << 10

// GroupInjector broadcasts an instant message to a group's chat
// session. In a region this is the groups messaging module.
type GroupInjector interface {
	SendMessageToGroup(ctx context.Context, im InstantMessage, groupID uuid.UUID) error
}

// InjectHandlerConfig holds the parameters for NewInjectHandler.
type InjectHandlerConfig struct {
	Secret   *secret.Buffer
	Injector GroupInjector
	// Clock stamps injected messages. Defaults to clock.Real().
	Clock  clock.Clock
	Logger *slog.Logger
}

type injectHandler struct {
	injector GroupInjector
	clock    clock.Clock
	logger   *slog.Logger
}

// injectBody distinguishes absent fields from empty ones.
type injectBody struct {
	GroupUUID *string `json:"group_uuid"`
	FromName  *string `json:"from_name"`
	Message   *string `json:"message"`
}

// NewInjectHandler returns the region-side handler for InjectPath.
// Requests must carry the shared secret in X-Bridge-Secret. Panics if
// Secret, Injector, or Logger is nil.
func NewInjectHandler(config InjectHandlerConfig) http.Handler {
	if config.Secret == nil || config.Injector == nil || config.Logger == nil {
		panic("opensim.NewInjectHandler: Secret, Injector, and Logger are required")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	handler := &injectHandler{
		injector: config.Injector,
		clock:    clk,
		logger:   config.Logger,
	}
	return service.RequireHeaderSecret(SecretHeader, config.Secret, config.Logger, handler)
}

func (h *injectHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writeError(writer, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body injectBody
	if err := netutil.DecodeRequest(request.Body, maxInjectBody, &body); err != nil {
		writeError(writer, http.StatusBadRequest, "invalid body")
		return
	}
	if body.GroupUUID == nil || body.FromName == nil || body.Message == nil {
		writeError(writer, http.StatusBadRequest, "missing fields")
		return
	}
	groupID, err := uuid.Parse(*body.GroupUUID)
	if err != nil {
		writeError(writer, http.StatusBadRequest, "invalid group UUID")
		return
	}
	if strings.TrimSpace(*body.Message) == "" {
		writeError(writer, http.StatusBadRequest, "empty message")
		return
	}

	im := h.instantMessage(groupID, *body.FromName, *body.Message)
	if err := h.injector.SendMessageToGroup(request.Context(), im, groupID); err != nil {
		h.logger.Error("group injection failed", "group_id", groupID, "error", err)
		writeError(writer, http.StatusInternalServerError, "internal error")
		return
	}

	h.logger.Info("injected matrix message into group",
		"group_id", groupID,
		"from_name", *body.FromName,
	)
	netutil.WriteJSON(writer, http.StatusOK, map[string]bool{"ok": true})
}

func (h *injectHandler) instantMessage(groupID uuid.UUID, fromName, message string) InstantMessage {
	if strings.TrimSpace(fromName) == "" {
		fromName = "unknown"
	}
	return InstantMessage{
		FromAgentID:   uuid.Nil,
		FromAgentName: InjectedNamePrefix + fromName,
		Dialog:        DialogSessionSend,
		SessionID:     groupID,
		Message:       message,
		FromGroup:     true,
		Timestamp:     uint32(h.clock.Now().Unix()),
		BinaryBucket:  []byte(BridgeBucket),
	}
}

func writeError(writer http.ResponseWriter, status int, message string) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(map[string]string{"error": message})
}
