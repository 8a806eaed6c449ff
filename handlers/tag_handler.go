package handlers

import (
	"log/slog"

	"cms-publisher/helper"
	"cms-publisher/models"
	"cms-publisher/services"

	"github.com/gin-gonic/gin"
)

type TagHandler struct {
	base
	tagService services.TagService
}

func NewTagHandler(tagService services.TagService, h *helper.HTTPHelper, logger *slog.Logger) *TagHandler {
	return &TagHandler{base: newBase(h, logger), tagService: tagService}
}

// CreateTag is mounted behind the admin role check.
func (h *TagHandler) CreateTag(c *gin.Context) {
	var req models.CreateTagRequest
	if !h.Helper.BindJSON(c, &req) {
		return
	}

	tag, err := h.tagService.CreateTag(req)
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Tag created successfully", tag)
}

func (h *TagHandler) GetTags(c *gin.Context) {
	tags, err := h.tagService.GetTags()
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Success", tags)
}

func (h *TagHandler) GetTag(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	tag, err := h.tagService.GetTag(id)
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Success", tag)
}
