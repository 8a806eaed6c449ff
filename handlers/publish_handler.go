package handlers

import (
	"log/slog"
	"time"

	"cms-publisher/helper"
	"cms-publisher/middleware"
	"cms-publisher/models"
	"cms-publisher/platforms"
	"cms-publisher/services"

	"github.com/gin-gonic/gin"
)

type PublishHandler struct {
	base
	articles     services.ArticleService
	orchestrator services.PublishOrchestrator
	ledger       services.PublishLedger
	queue        services.PublishQueue
	gate         services.FeatureGate
	maxRetries   int
	maxRetryAge  time.Duration
	now          func() time.Time
}

type PublishHandlerDeps struct {
	Articles     services.ArticleService
	Orchestrator services.PublishOrchestrator
	Ledger       services.PublishLedger
	Queue        services.PublishQueue
	Gate         services.FeatureGate
	MaxRetries   int
	MaxRetryAge  time.Duration
}

func NewPublishHandler(deps PublishHandlerDeps, h *helper.HTTPHelper, logger *slog.Logger) *PublishHandler {
	return &PublishHandler{
		base:         newBase(h, logger),
		articles:     deps.Articles,
		orchestrator: deps.Orchestrator,
		ledger:       deps.Ledger,
		queue:        deps.Queue,
		gate:         deps.Gate,
		maxRetries:   deps.MaxRetries,
		maxRetryAge:  deps.MaxRetryAge,
		now:          time.Now,
	}
}

// PublishToOne handles POST /articles/:id/publish/:platform.
func (h *PublishHandler) PublishToOne(c *gin.Context) {
	platform, ok := h.platformParam(c)
	if !ok {
		return
	}
	var req models.PublishOneRequest
	if c.Request.ContentLength > 0 && !h.Helper.BindJSON(c, &req) {
		return
	}
	article, ok := h.ownedArticle(c)
	if !ok || !h.withinMonthlyQuota(c, 1) {
		return
	}

	outcome, err := h.orchestrator.PublishToOne(c.Request.Context(), article, middleware.UserID(c), platform, platforms.PublishOptions{Draft: req.Draft})
	if err != nil {
		h.sendError(c, err)
		return
	}

	message := "Published"
	if !outcome.Success {
		message = outcome.Error
	}
	h.Helper.SendSuccess(c, message, outcome)
}

// PublishToMultiple handles POST /articles/:id/publish. Partial success is
// reported in the summary, never as a request failure.
func (h *PublishHandler) PublishToMultiple(c *gin.Context) {
	var req models.PublishRequest
	if !h.Helper.BindJSON(c, &req) {
		return
	}
	targets, err := models.ParsePlatforms(req.Platforms)
	if err != nil {
		h.Helper.SendBadRequest(c, err.Error(), h.Helper.EmptyJsonMap())
		return
	}
	if len(targets) > 1 && !h.requireFeature(c, services.FeatureMultiPlatformPublish) {
		return
	}
	article, ok := h.ownedArticle(c)
	if !ok || !h.withinMonthlyQuota(c, len(targets)) {
		return
	}

	outcomes, err := h.orchestrator.PublishToMultiple(c.Request.Context(), article, middleware.UserID(c), targets, platforms.PublishOptions{Draft: req.Draft})
	if err != nil {
		h.sendError(c, err)
		return
	}

	summary := models.Summarize(outcomes)
	h.Helper.SendSuccess(c, summary.Message, gin.H{
		"outcomes": outcomes,
		"summary":  summary,
	})
}

func (h *PublishHandler) BulkPublish(c *gin.Context) {
	var req models.BulkPublishRequest
	if !h.Helper.BindJSON(c, &req) {
		return
	}
	targets, err := models.ParsePlatforms(req.Platforms)
	if err != nil {
		h.Helper.SendBadRequest(c, err.Error(), h.Helper.EmptyJsonMap())
		return
	}
	if !h.requireFeature(c, services.FeatureBulkPublish) {
		return
	}
	if !h.withinMonthlyQuota(c, len(targets)*len(req.ArticleIDs)) {
		return
	}

	results := h.orchestrator.BulkPublish(c.Request.Context(), middleware.UserID(c), req.ArticleIDs, targets, platforms.PublishOptions{Draft: req.Draft})
	h.Helper.SendSuccess(c, "Bulk publish finished", results)
}

// UpdatePublishedPost handles PUT /articles/:id/publish/:platform.
func (h *PublishHandler) UpdatePublishedPost(c *gin.Context) {
	platform, ok := h.platformParam(c)
	if !ok {
		return
	}
	if !h.requireFeature(c, services.FeaturePostUpdates) {
		return
	}
	article, ok := h.ownedArticle(c)
	if !ok {
		return
	}

	outcome, err := h.orchestrator.UpdatePublishedPost(c.Request.Context(), article, middleware.UserID(c), platform)
	if err != nil {
		h.sendError(c, err)
		return
	}

	message := "Post updated"
	if !outcome.Success {
		message = outcome.Error
	}
	h.Helper.SendSuccess(c, message, outcome)
}

func (h *PublishHandler) ListRecords(c *gin.Context) {
	article, ok := h.ownedArticle(c)
	if !ok {
		return
	}

	records, err := h.ledger.ListForArticle(c.Request.Context(), article.ID)
	if err != nil {
		h.sendError(c, err)
		return
	}
	jobs, err := h.queue.ListJobs(c.Request.Context(), article.ID)
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Success", gin.H{
		"records": records,
		"jobs":    jobs,
	})
}

func (h *PublishHandler) Schedule(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var req models.SchedulePublishRequest
	if !h.Helper.BindJSON(c, &req) {
		return
	}
	targets, err := models.ParsePlatforms(req.Platforms)
	if err != nil {
		h.Helper.SendBadRequest(c, err.Error(), h.Helper.EmptyJsonMap())
		return
	}
	if !h.requireFeature(c, services.FeatureScheduledPublish) {
		return
	}
	if len(targets) > 1 && !h.requireFeature(c, services.FeatureMultiPlatformPublish) {
		return
	}

	job, err := h.queue.Enqueue(c.Request.Context(), middleware.UserID(c), id, targets, req.ScheduleAt, req.Draft)
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Publish scheduled", job)
}

// ListFailures returns the user's records that will not be retried again.
func (h *PublishHandler) ListFailures(c *gin.Context) {
	records, err := h.ledger.Exhausted(c.Request.Context(), middleware.UserID(c), h.maxRetries, h.maxRetryAge)
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Success", records)
}

func (h *PublishHandler) ownedArticle(c *gin.Context) (*models.Article, bool) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return nil, false
	}
	article, err := h.articles.GetOwnedArticle(id, middleware.UserID(c))
	if err != nil {
		h.sendError(c, err)
		return nil, false
	}
	return article, true
}

func (h *PublishHandler) requireFeature(c *gin.Context, feature services.Feature) bool {
	if err := h.gate.RequireFeature(middleware.Plan(c), feature); err != nil {
		h.sendError(c, err)
		return false
	}
	return true
}

// withinMonthlyQuota checks that n more publishes fit in this month's plan.
func (h *PublishHandler) withinMonthlyQuota(c *gin.Context, n int) bool {
	now := h.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	used, err := h.ledger.CountPublishesSince(c.Request.Context(), middleware.UserID(c), monthStart)
	if err != nil {
		h.sendError(c, err)
		return false
	}
	if n < 1 {
		n = 1
	}
	if err := h.gate.RequireBelowLimit(middleware.Plan(c), services.LimitMonthlyPublishes, used+int64(n)-1); err != nil {
		h.sendError(c, err)
		return false
	}
	return true
}
