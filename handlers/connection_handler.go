package handlers

import (
	"errors"
	"log/slog"

	"cms-publisher/helper"
	"cms-publisher/middleware"
	"cms-publisher/models"
	"cms-publisher/services"

	"github.com/gin-gonic/gin"
)

type ConnectionHandler struct {
	base
	connections services.ConnectionStore
	gate        services.FeatureGate
}

func NewConnectionHandler(connections services.ConnectionStore, gate services.FeatureGate, h *helper.HTTPHelper, logger *slog.Logger) *ConnectionHandler {
	return &ConnectionHandler{base: newBase(h, logger), connections: connections, gate: gate}
}

func (h *ConnectionHandler) ListConnections(c *gin.Context) {
	conns, err := h.connections.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Success", conns)
}

// Connect validates the credentials against the platform and stores them.
// Reconnecting an existing platform does not count against the plan limit.
func (h *ConnectionHandler) Connect(c *gin.Context) {
	platform, ok := h.platformParam(c)
	if !ok {
		return
	}
	var req models.ConnectPlatformRequest
	if !h.Helper.BindJSON(c, &req) {
		return
	}
	creds, err := req.Credentials()
	if err != nil {
		h.Helper.SendBadRequest(c, err.Error(), h.Helper.EmptyJsonMap())
		return
	}

	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	_, err = h.connections.Get(ctx, userID, platform)
	switch {
	case errors.Is(err, services.ErrNotConnected):
		count, err := h.connections.CountConnected(ctx, userID)
		if err != nil {
			h.sendError(c, err)
			return
		}
		if err := h.gate.RequireBelowLimit(middleware.Plan(c), services.LimitConnectedPlatforms, count); err != nil {
			h.sendError(c, err)
			return
		}
	case err != nil:
		h.sendError(c, err)
		return
	}

	conn, err := h.connections.Connect(ctx, userID, platform, creds)
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Platform connected", conn)
}

func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	platform, ok := h.platformParam(c)
	if !ok {
		return
	}

	if err := h.connections.Disconnect(c.Request.Context(), middleware.UserID(c), platform); err != nil {
		h.sendError(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Platform disconnected", h.Helper.EmptyJsonMap())
}
