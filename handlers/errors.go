package handlers

import (
	"errors"
	"log/slog"
	"strconv"

	"cms-publisher/helper"
	"cms-publisher/models"
	"cms-publisher/platforms"
	"cms-publisher/services"

	"github.com/gin-gonic/gin"
)

// base is shared by every handler: the response envelope and a logger for
// failures the client cannot act on.
type base struct {
	Helper *helper.HTTPHelper
	logger *slog.Logger
}

func newBase(h *helper.HTTPHelper, logger *slog.Logger) base {
	if h == nil {
		h = helper.NewHTTPHelper()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return base{Helper: h, logger: logger}
}

// sendError maps service and platform errors onto envelope codes.
func (b base) sendError(c *gin.Context, err error) {
	var authErr *platforms.AuthError
	var platformErr *platforms.PlatformError
	empty := b.Helper.EmptyJsonMap()

	switch {
	case errors.Is(err, services.ErrArticleNotFound),
		errors.Is(err, services.ErrTagNotFound),
		errors.Is(err, services.ErrUserNotFound):
		b.Helper.SendNotFoundError(c, err.Error(), empty)
	case errors.Is(err, services.ErrNotConnected):
		b.Helper.SendNotFoundError(c, err.Error(), empty)
	case errors.Is(err, services.ErrUnauthorized):
		b.Helper.SendUnauthorizedError(c, err.Error(), empty)
	case errors.Is(err, services.ErrTagExists):
		b.Helper.SendConflict(c, err.Error(), empty)
	case errors.Is(err, services.ErrFeatureLocked), errors.Is(err, services.ErrPlanLimitReached):
		b.Helper.SendForbidden(c, err.Error(), empty)
	case errors.Is(err, services.ErrNotYetPublished),
		errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrUnknownPlatform):
		b.Helper.SendBadRequest(c, err.Error(), empty)
	case errors.As(err, &authErr):
		b.Helper.SendBadRequest(c, "credentials rejected: "+authErr.Message, empty)
	case errors.As(err, &platformErr):
		b.Helper.SendBadRequest(c, platforms.Message(err), empty)
	default:
		b.logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		b.Helper.SendDatabaseError(c, "internal error", empty)
	}
}

func (b base) idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		b.Helper.SendBadRequest(c, "Invalid "+name, b.Helper.EmptyJsonMap())
		return 0, false
	}
	return uint(id), true
}

func (b base) platformParam(c *gin.Context) (models.Platform, bool) {
	platform, err := models.ParsePlatform(c.Param("platform"))
	if err != nil {
		b.Helper.SendBadRequest(c, err.Error(), b.Helper.EmptyJsonMap())
		return "", false
	}
	return platform, true
}
