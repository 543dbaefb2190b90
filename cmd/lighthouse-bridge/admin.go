// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/lighthouse/bridge"
	"github.com/bureau-foundation/lighthouse/lib/bridgestore"
	"github.com/bureau-foundation/lighthouse/lib/clock"
	"github.com/bureau-foundation/lighthouse/lib/netutil"
	"github.com/bureau-foundation/lighthouse/lib/opensim"
	"github.com/bureau-foundation/lighthouse/lib/ref"
	"github.com/bureau-foundation/lighthouse/lib/secret"
	"github.com/bureau-foundation/lighthouse/lib/service"
	"github.com/bureau-foundation/lighthouse/lib/version"
)

const maxAdminBody = 64 << 10

// engine is the part of the bridge the OpenSim listener drives.
// *bridge.Bridge implements it.
type engine interface {
	EnsureRoom(ctx context.Context, groupID uuid.UUID, groupName string, founderID uuid.UUID) (ref.RoomID, error)
	Resync(ctx context.Context, groupID uuid.UUID) (bridge.ResyncReport, error)
	Disable(ctx context.Context, groupID uuid.UUID) error
	Bindings(ctx context.Context) ([]bridgestore.Binding, error)
	RelayOutbound(ctx context.Context, message opensim.GroupMessage) (bridge.Outcome, error)
	Stats() bridge.Stats
}

// storeStats is satisfied by *bridgestore.Store.
type storeStats interface {
	Stats(ctx context.Context) (bridgestore.Stats, error)
}

type adminConfig struct {
	Engine     engine
	Store      storeStats
	Secret     *secret.Buffer
	Homeserver ref.ServerName
	Bot        ref.UserID
	Clock      clock.Clock
	Logger     *slog.Logger
}

// adminHandler serves the OpenSim event endpoint and the admin API.
type adminHandler struct {
	engine     engine
	store      storeStats
	homeserver ref.ServerName
	bot        ref.UserID
	clock      clock.Clock
	startedAt  time.Time
	logger     *slog.Logger
}

func newAdminHandler(config adminConfig) http.Handler {
	if config.Engine == nil || config.Store == nil || config.Secret == nil || config.Logger == nil {
		panic("newAdminHandler: Engine, Store, Secret, and Logger are required")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	handler := &adminHandler{
		engine:     config.Engine,
		store:      config.Store,
		homeserver: config.Homeserver,
		bot:        config.Bot,
		clock:      clk,
		startedAt:  clk.Now(),
		logger:     config.Logger,
	}

	authenticated := http.NewServeMux()
	authenticated.HandleFunc("POST /os/event", handler.handleEvent)
	authenticated.HandleFunc("POST /admin/bridge/enable", handler.handleEnable)
	authenticated.HandleFunc("POST /admin/bridge/resync", handler.handleResync)
	authenticated.HandleFunc("POST /admin/bridge/disable", handler.handleDisable)
	authenticated.HandleFunc("GET /admin/bridge/list", handler.handleList)
	authenticated.HandleFunc("GET /admin/status", handler.handleStatus)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.Handle("/", service.RequireHeaderSecret(opensim.SecretHeader, config.Secret, config.Logger, authenticated))
	return mux
}

func (h *adminHandler) handleEvent(writer http.ResponseWriter, request *http.Request) {
	var event opensim.Event
	if err := netutil.DecodeRequest(request.Body, maxAdminBody, &event); err != nil {
		writeError(writer, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if event.Type != opensim.EventTypeGroupMessage {
		writeError(writer, http.StatusBadRequest, "unsupported event type")
		return
	}
	message, err := event.GroupMessage()
	if err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.engine.RelayOutbound(request.Context(), message)
	if err != nil {
		h.logger.Error("outbound relay failed",
			"group_id", message.GroupID,
			"sender_id", message.SenderID,
			"error", err,
		)
		writeError(writer, http.StatusInternalServerError, "relay failed")
		return
	}
	netutil.WriteJSON(writer, http.StatusOK, map[string]any{"ok": true, "outcome": outcome.String()})
}

type enableRequest struct {
	GroupUUID         string `json:"GroupUuid"`
	GroupName         string `json:"GroupName"`
	FounderAvatarUUID string `json:"FounderAvatarUuid"`
}

func (h *adminHandler) handleEnable(writer http.ResponseWriter, request *http.Request) {
	var body enableRequest
	if err := netutil.DecodeRequest(request.Body, maxAdminBody, &body); err != nil {
		writeError(writer, http.StatusBadRequest, "invalid JSON body")
		return
	}
	groupID, err := uuid.Parse(body.GroupUUID)
	if err != nil {
		writeError(writer, http.StatusBadRequest, "GroupUuid must be a UUID")
		return
	}
	founderID, err := uuid.Parse(body.FounderAvatarUUID)
	if err != nil || founderID == uuid.Nil {
		writeError(writer, http.StatusBadRequest, "FounderAvatarUuid must be a non-null UUID")
		return
	}

	roomID, err := h.engine.EnsureRoom(request.Context(), groupID, body.GroupName, founderID)
	if err != nil {
		h.logger.Error("enabling bridge failed", "group_id", groupID, "error", err)
		h.writeEngineError(writer, err)
		return
	}
	netutil.WriteJSON(writer, http.StatusOK, map[string]string{
		"groupUuid": groupID.String(),
		"roomId":    roomID.String(),
	})
}

type groupRequest struct {
	GroupUUID string `json:"GroupUuid"`
}

func (h *adminHandler) decodeGroup(writer http.ResponseWriter, request *http.Request) (uuid.UUID, bool) {
	var body groupRequest
	if err := netutil.DecodeRequest(request.Body, maxAdminBody, &body); err != nil {
		writeError(writer, http.StatusBadRequest, "invalid JSON body")
		return uuid.Nil, false
	}
	groupID, err := uuid.Parse(body.GroupUUID)
	if err != nil {
		writeError(writer, http.StatusBadRequest, "GroupUuid must be a UUID")
		return uuid.Nil, false
	}
	return groupID, true
}

type resyncResponse struct {
	Status   string                 `json:"status"`
	RoomID   string                 `json:"roomId"`
	Members  int                    `json:"members"`
	Synced   int                    `json:"synced"`
	Failures []bridge.MemberFailure `json:"failures,omitempty"`
}

func (h *adminHandler) handleResync(writer http.ResponseWriter, request *http.Request) {
	groupID, ok := h.decodeGroup(writer, request)
	if !ok {
		return
	}
	report, err := h.engine.Resync(request.Context(), groupID)
	if err != nil {
		h.logger.Error("resync failed", "group_id", groupID, "error", err)
		h.writeEngineError(writer, err)
		return
	}
	status := "resynced"
	if !report.Complete() {
		status = "partial"
	}
	netutil.WriteJSON(writer, http.StatusOK, resyncResponse{
		Status:   status,
		RoomID:   report.RoomID.String(),
		Members:  report.Members,
		Synced:   report.Synced,
		Failures: report.Failures,
	})
}

func (h *adminHandler) handleDisable(writer http.ResponseWriter, request *http.Request) {
	groupID, ok := h.decodeGroup(writer, request)
	if !ok {
		return
	}
	if err := h.engine.Disable(request.Context(), groupID); err != nil {
		h.writeEngineError(writer, err)
		return
	}
	h.logger.Info("group bridge disabled", "group_id", groupID)
	netutil.WriteJSON(writer, http.StatusOK, map[string]string{"status": "disabled"})
}

type bindingView struct {
	GroupUUID   string    `json:"groupUuid"`
	RoomID      string    `json:"roomId"`
	ActivatedBy string    `json:"activatedBy"`
	ActivatedAt time.Time `json:"activatedAt"`
}

func (h *adminHandler) handleList(writer http.ResponseWriter, request *http.Request) {
	bindings, err := h.engine.Bindings(request.Context())
	if err != nil {
		h.logger.Error("listing bridges failed", "error", err)
		writeError(writer, http.StatusInternalServerError, "listing bridges failed")
		return
	}
	views := make([]bindingView, 0, len(bindings))
	for _, binding := range bindings {
		views = append(views, bindingView{
			GroupUUID:   binding.GroupID.String(),
			RoomID:      binding.RoomID.String(),
			ActivatedBy: binding.ActivatedBy.String(),
			ActivatedAt: binding.ActivatedAt.UTC(),
		})
	}
	netutil.WriteJSON(writer, http.StatusOK, map[string]any{"bridges": views, "count": len(views)})
}

type statusResponse struct {
	Service       string            `json:"service"`
	Version       string            `json:"version"`
	Homeserver    string            `json:"homeserver"`
	Bot           string            `json:"bot"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Bridges       bridgestore.Stats `json:"bridges"`
	Relay         bridge.Stats      `json:"relay"`
}

func (h *adminHandler) handleStatus(writer http.ResponseWriter, request *http.Request) {
	stats, err := h.store.Stats(request.Context())
	if err != nil {
		h.logger.Error("reading store stats failed", "error", err)
		writeError(writer, http.StatusInternalServerError, "store unavailable")
		return
	}
	netutil.WriteJSON(writer, http.StatusOK, statusResponse{
		Service:       serviceName,
		Version:       version.Info(),
		Homeserver:    h.homeserver.String(),
		Bot:           h.bot.String(),
		UptimeSeconds: h.clock.Now().Sub(h.startedAt).Seconds(),
		Bridges:       stats,
		Relay:         h.engine.Stats(),
	})
}

// writeEngineError maps bridge errors onto admin status codes. Anything
// unrecognized is a failed remote dependency.
func (h *adminHandler) writeEngineError(writer http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bridge.ErrNotBridged):
		writeError(writer, http.StatusConflict, "group is not bridged")
	case errors.Is(err, bridgestore.ErrRoomClaimed):
		writeError(writer, http.StatusConflict, "room is bridged to another group")
	default:
		writeError(writer, http.StatusBadGateway, err.Error())
	}
}

func writeError(writer http.ResponseWriter, status int, message string) {
	netutil.WriteJSON(writer, status, map[string]string{"error": message})
}
