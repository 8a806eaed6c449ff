package handlers

import (
	"log/slog"

	"cms-publisher/helper"
	"cms-publisher/services"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes the queue operations an external scheduler calls.
type AdminHandler struct {
	base
	queue      services.PublishQueue
	maxRetries int
}

func NewAdminHandler(queue services.PublishQueue, maxRetries int, h *helper.HTTPHelper, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{base: newBase(h, logger), queue: queue, maxRetries: maxRetries}
}

func (h *AdminHandler) ProcessQueue(c *gin.Context) {
	report, err := h.queue.ProcessDue(c.Request.Context())
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Queue processed", report)
}

func (h *AdminHandler) RetryFailed(c *gin.Context) {
	report, err := h.queue.RetryFailed(c.Request.Context(), h.maxRetries)
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Retries attempted", report)
}
