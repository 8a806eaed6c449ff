package handlers

import (
	"log/slog"

	"cms-publisher/helper"
	"cms-publisher/middleware"
	"cms-publisher/services"

	"github.com/gin-gonic/gin"
)

type ProfileHandler struct {
	base
	userService services.UserService
}

func NewProfileHandler(userService services.UserService, h *helper.HTTPHelper, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{base: newBase(h, logger), userService: userService}
}

func (h *ProfileHandler) GetProfile(c *gin.Context) {
	user, err := h.userService.GetUserByID(middleware.UserID(c))
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Profile loaded", user)
}
