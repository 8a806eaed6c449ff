package handlers

import (
	"log/slog"

	"cms-publisher/helper"
	"cms-publisher/middleware"
	"cms-publisher/models"
	"cms-publisher/services"

	"github.com/gin-gonic/gin"
)

const maxPageSize = 100

type ArticleHandler struct {
	base
	articleService services.ArticleService
}

func NewArticleHandler(articleService services.ArticleService, h *helper.HTTPHelper, logger *slog.Logger) *ArticleHandler {
	return &ArticleHandler{base: newBase(h, logger), articleService: articleService}
}

func (h *ArticleHandler) CreateArticle(c *gin.Context) {
	var req models.CreateArticleRequest
	if !h.Helper.BindJSON(c, &req) {
		return
	}

	article, err := h.articleService.CreateArticle(req, middleware.UserID(c))
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Article created", article)
}

func (h *ArticleHandler) GetArticles(c *gin.Context) {
	h.listArticles(c, false)
}

func (h *ArticleHandler) GetPublicArticles(c *gin.Context) {
	h.listArticles(c, true)
}

func (h *ArticleHandler) listArticles(c *gin.Context, isPublic bool) {
	var params models.ArticleListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.Helper.SendBadRequest(c, err.Error(), h.Helper.EmptyJsonMap())
		return
	}
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 || params.Limit > maxPageSize {
		params.Limit = 10
	}

	articles, total, err := h.articleService.GetArticles(params, middleware.UserID(c), isPublic)
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Success", gin.H{
		"articles":   articles,
		"pagination": h.Helper.GeneratePaging(c, 0, 0, params.Limit, params.Page, int(total)),
	})
}

func (h *ArticleHandler) GetArticle(c *gin.Context) {
	h.getArticle(c, false)
}

func (h *ArticleHandler) GetPublicArticle(c *gin.Context) {
	h.getArticle(c, true)
}

func (h *ArticleHandler) getArticle(c *gin.Context, isPublic bool) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	article, err := h.articleService.GetArticle(id, middleware.UserID(c), isPublic)
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Success", article)
}

func (h *ArticleHandler) UpdateArticle(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var req models.UpdateArticleRequest
	if !h.Helper.BindJSON(c, &req) {
		return
	}

	article, err := h.articleService.UpdateArticle(id, req, middleware.UserID(c))
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Article updated", article)
}

func (h *ArticleHandler) DeleteArticle(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	if err := h.articleService.DeleteArticle(id, middleware.UserID(c)); err != nil {
		h.sendError(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Article deleted successfully", h.Helper.EmptyJsonMap())
}

// PublishToSite publishes on the built-in site only.
func (h *ArticleHandler) PublishToSite(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	article, err := h.articleService.PublishToSite(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Article published", article)
}
