package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cms-publisher/events"
	"cms-publisher/metrics"
	"cms-publisher/models"
	"cms-publisher/platforms"
	"cms-publisher/repositories"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPlatformTimeout = 30 * time.Second
	defaultBulkConcurrency = 4

	pendingMessage = "still in progress, check the publish records for the result"
)

// PublishOrchestrator drives publish attempts against remote platforms and
// records every attempt in the ledger.
type PublishOrchestrator interface {
	PublishToOne(ctx context.Context, article *models.Article, userID uint, platform models.Platform, opts platforms.PublishOptions) (models.PublishOutcome, error)
	PublishToMultiple(ctx context.Context, article *models.Article, userID uint, targets []models.Platform, opts platforms.PublishOptions) ([]models.PublishOutcome, error)
	BulkPublish(ctx context.Context, userID uint, articleIDs []uint, targets []models.Platform, opts platforms.PublishOptions) []models.ArticlePublishResult
	UpdatePublishedPost(ctx context.Context, article *models.Article, userID uint, platform models.Platform) (models.PublishOutcome, error)
	// RetryRecord claims a failed attempt and replays it as its owner, with
	// retry_count+1. It returns ErrRetryInProgress when the claim is lost.
	RetryRecord(ctx context.Context, record models.PublishRecord) (models.PublishOutcome, error)
	// Drain waits for attempts that outlived their callers.
	Drain(ctx context.Context) error
}

// OrchestratorDeps wires collaborators into the orchestrator.
type OrchestratorDeps struct {
	Registry    *platforms.Registry
	Connections ConnectionStore
	Ledger      PublishLedger
	Articles    repositories.ArticleRepository
	Events      events.Publisher
	Logger      *slog.Logger

	// PlatformTimeout bounds one adapter call, including a refresh retry.
	PlatformTimeout time.Duration
	BulkConcurrency int
	// OnPromoted runs after an article is promoted to PUBLISHED.
	OnPromoted func(articleID uint)
}

type publishOrchestrator struct {
	registry        *platforms.Registry
	connections     ConnectionStore
	ledger          PublishLedger
	articles        repositories.ArticleRepository
	events          events.Publisher
	logger          *slog.Logger
	platformTimeout time.Duration
	bulkConcurrency int
	onPromoted      func(articleID uint)
	now             func() time.Time
	inflight        sync.WaitGroup
}

func NewPublishOrchestrator(deps OrchestratorDeps) PublishOrchestrator {
	o := &publishOrchestrator{
		registry:        deps.Registry,
		connections:     deps.Connections,
		ledger:          deps.Ledger,
		articles:        deps.Articles,
		events:          deps.Events,
		logger:          deps.Logger,
		platformTimeout: deps.PlatformTimeout,
		bulkConcurrency: deps.BulkConcurrency,
		onPromoted:      deps.OnPromoted,
		now:             time.Now,
	}
	if o.events == nil {
		o.events = events.NopPublisher{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.platformTimeout <= 0 {
		o.platformTimeout = defaultPlatformTimeout
	}
	if o.bulkConcurrency <= 0 {
		o.bulkConcurrency = defaultBulkConcurrency
	}
	return o
}

// attempt is one (article, platform) unit of work.
type attempt struct {
	article    models.Article
	userID     uint
	platform   models.Platform
	operation  models.PublishOperation
	opts       platforms.PublishOptions
	postID     string
	retryCount int
	batchID    string
}

func (o *publishOrchestrator) PublishToOne(ctx context.Context, article *models.Article, userID uint, platform models.Platform, opts platforms.PublishOptions) (models.PublishOutcome, error) {
	if article.AuthorID != userID {
		return models.PublishOutcome{}, ErrUnauthorized
	}

	outcome, err := o.run(ctx, attempt{
		article:   *article,
		userID:    userID,
		platform:  platform,
		operation: models.OperationPublish,
		opts:      opts,
		batchID:   uuid.NewString(),
	})
	if err != nil {
		return models.PublishOutcome{}, err
	}

	o.reload(article)
	return outcome, nil
}

type indexedOutcome struct {
	index   int
	outcome models.PublishOutcome
}

func (o *publishOrchestrator) PublishToMultiple(ctx context.Context, article *models.Article, userID uint, targets []models.Platform, opts platforms.PublishOptions) ([]models.PublishOutcome, error) {
	if article.AuthorID != userID {
		return nil, ErrUnauthorized
	}
	targets = uniquePlatforms(targets)
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no platforms requested", ErrInvalidInput)
	}

	outcomes := o.fanOut(ctx, *article, userID, targets, opts, uuid.NewString())
	o.reload(article)
	return outcomes, nil
}

// fanOut runs one goroutine per platform. The goroutines are detached from
// ctx so a caller that stops waiting does not lose their ledger writes;
// platforms that have not answered by then are reported as pending.
func (o *publishOrchestrator) fanOut(ctx context.Context, article models.Article, userID uint, targets []models.Platform, opts platforms.PublishOptions, batchID string) []models.PublishOutcome {
	detached := context.WithoutCancel(ctx)
	results := make(chan indexedOutcome, len(targets))

	for i, platform := range targets {
		o.inflight.Add(1)
		go func() {
			defer o.inflight.Done()
			outcome, err := o.run(detached, attempt{
				article:   article,
				userID:    userID,
				platform:  platform,
				operation: models.OperationPublish,
				opts:      opts,
				batchID:   batchID,
			})
			if err != nil {
				outcome = models.PublishOutcome{Platform: platform, Error: userMessage(err)}
			}
			results <- indexedOutcome{index: i, outcome: outcome}
		}()
	}

	outcomes := make([]models.PublishOutcome, len(targets))
	received := make([]bool, len(targets))
	for range targets {
		select {
		case r := <-results:
			outcomes[r.index] = r.outcome
			received[r.index] = true
		case <-ctx.Done():
			for i, ok := range received {
				if !ok {
					outcomes[i] = models.PublishOutcome{Platform: targets[i], Pending: true, Error: pendingMessage}
				}
			}
			o.logger.Warn("caller stopped waiting for publish fan-out", "article_id", article.ID, "batch_id", batchID, "error", ctx.Err())
			return outcomes
		}
	}
	return outcomes
}

func (o *publishOrchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *publishOrchestrator) BulkPublish(ctx context.Context, userID uint, articleIDs []uint, targets []models.Platform, opts platforms.PublishOptions) []models.ArticlePublishResult {
	targets = uniquePlatforms(targets)
	results := make([]models.ArticlePublishResult, len(articleIDs))
	batchID := uuid.NewString()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.bulkConcurrency)
	for i, articleID := range articleIDs {
		g.Go(func() error {
			if gctx.Err() != nil {
				results[i] = models.ArticlePublishResult{
					ArticleID: articleID,
					Outcomes:  []models.PublishOutcome{},
					Summary:   models.Summarize(nil),
					Error:     "not started before the request ended",
				}
				return nil
			}
			results[i] = o.publishArticle(gctx, userID, articleID, targets, opts, batchID)
			return nil
		})
	}
	// workers never return errors; one article failing leaves the rest running
	_ = g.Wait()

	return results
}

func (o *publishOrchestrator) publishArticle(ctx context.Context, userID, articleID uint, targets []models.Platform, opts platforms.PublishOptions, batchID string) models.ArticlePublishResult {
	result := models.ArticlePublishResult{ArticleID: articleID, Outcomes: []models.PublishOutcome{}}

	article, err := o.articles.GetByID(articleID)
	switch {
	case errors.Is(err, repositories.ErrNotFound), err == nil && article.AuthorID != userID:
		result.Error = ErrArticleNotFound.Error()
		result.Summary = models.Summarize(nil)
		return result
	case err != nil:
		o.logger.Error("load article for bulk publish", "article_id", articleID, "error", err)
		result.Error = "article could not be loaded"
		result.Summary = models.Summarize(nil)
		return result
	}
	if len(targets) == 0 {
		result.Error = "no platforms requested"
		result.Summary = models.Summarize(nil)
		return result
	}

	result.Outcomes = o.fanOut(ctx, *article, userID, targets, opts, batchID)
	result.Summary = models.Summarize(result.Outcomes)
	return result
}

func (o *publishOrchestrator) UpdatePublishedPost(ctx context.Context, article *models.Article, userID uint, platform models.Platform) (models.PublishOutcome, error) {
	if article.AuthorID != userID {
		return models.PublishOutcome{}, ErrUnauthorized
	}

	latest, err := o.ledger.LatestFor(ctx, article.ID, platform)
	if err != nil {
		return models.PublishOutcome{}, fmt.Errorf("load latest record: %w", err)
	}
	if latest == nil || !latest.IsLive() {
		return models.PublishOutcome{}, ErrNotYetPublished
	}

	outcome, err := o.run(ctx, attempt{
		article:   *article,
		userID:    userID,
		platform:  platform,
		operation: models.OperationUpdate,
		opts:      platforms.PublishOptions{Draft: latest.Draft},
		postID:    latest.PlatformPostID,
		batchID:   uuid.NewString(),
	})
	if err != nil {
		return models.PublishOutcome{}, err
	}
	o.reload(article)
	return outcome, nil
}

func (o *publishOrchestrator) RetryRecord(ctx context.Context, record models.PublishRecord) (models.PublishOutcome, error) {
	supersedes := record.ID
	claim := &models.PublishRecord{
		ArticleID:            record.ArticleID,
		PlatformConnectionID: record.PlatformConnectionID,
		Platform:             record.Platform,
		Operation:            record.Operation,
		Draft:                record.Draft,
		PlatformPostID:       record.PlatformPostID,
		RetryCount:           record.RetryCount + 1,
		BatchID:              record.BatchID,
		SupersedesID:         &supersedes,
	}
	claimed, err := o.ledger.Claim(ctx, claim)
	if err != nil {
		return models.PublishOutcome{}, err
	}
	if !claimed {
		return models.PublishOutcome{}, ErrRetryInProgress
	}

	// a claim must always be answered by an outcome row
	o.inflight.Add(1)
	defer o.inflight.Done()
	ctx = context.WithoutCancel(ctx)

	outcome, err := o.retryClaimed(ctx, claim)
	if err != nil {
		return o.abandon(ctx, claim, err), nil
	}
	return outcome, nil
}

func (o *publishOrchestrator) retryClaimed(ctx context.Context, claim *models.PublishRecord) (models.PublishOutcome, error) {
	article, err := o.articles.GetByID(claim.ArticleID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.PublishOutcome{}, ErrArticleNotFound
		}
		return models.PublishOutcome{}, err
	}

	return o.run(ctx, attempt{
		article:    *article,
		userID:     article.AuthorID,
		platform:   claim.Platform,
		operation:  claim.Operation,
		opts:       platforms.PublishOptions{Draft: claim.Draft},
		postID:     claim.PlatformPostID,
		retryCount: claim.RetryCount,
		batchID:    claim.BatchID,
	})
}

// abandon answers a claim whose retry could not reach the adapter with a
// FAILED row. Missing articles, connections and adapters are permanent.
func (o *publishOrchestrator) abandon(ctx context.Context, claim *models.PublishRecord, cause error) models.PublishOutcome {
	kind := models.ErrorKindTransient
	if errors.Is(cause, ErrNotConnected) || errors.Is(cause, ErrArticleNotFound) || errors.Is(cause, ErrUnknownPlatform) {
		kind = models.ErrorKindPermanent
	}
	record := &models.PublishRecord{
		ArticleID:            claim.ArticleID,
		PlatformConnectionID: claim.PlatformConnectionID,
		Platform:             claim.Platform,
		Operation:            claim.Operation,
		Draft:                claim.Draft,
		PlatformPostID:       claim.PlatformPostID,
		Status:               models.PublishStatusFailed,
		ErrorKind:            kind,
		LastError:            userMessage(cause),
		RetryCount:           claim.RetryCount,
		BatchID:              claim.BatchID,
	}
	o.logger.Warn("retry not started",
		"article_id", claim.ArticleID,
		"platform", claim.Platform,
		"error_kind", kind,
		"error", cause)
	if err := o.ledger.Record(ctx, record); err != nil {
		o.logger.Error("ledger write failed", "article_id", claim.ArticleID, "platform", claim.Platform, "error", err)
	}
	return outcomeOf(record)
}

// run executes one attempt. The returned error is set only when the attempt
// never reached the adapter; every other result is written to the ledger.
func (o *publishOrchestrator) run(ctx context.Context, a attempt) (models.PublishOutcome, error) {
	log := o.logger.With("article_id", a.article.ID, "platform", a.platform, "operation", a.operation, "retry", a.retryCount)
	log.Debug("publish requested")

	adapter, err := o.registry.Resolve(a.platform)
	if err != nil {
		return models.PublishOutcome{}, fmt.Errorf("%w: %s", ErrUnknownPlatform, a.platform)
	}
	creds, conn, err := o.connections.GetValidCredentials(ctx, a.userID, a.platform)
	if err != nil {
		log.Debug("credentials unavailable", "error", err)
		return models.PublishOutcome{}, err
	}
	log.Debug("credentials resolved", "connection_id", conn.ID)

	started := time.Now()
	ref, err := o.invokeWithRefresh(ctx, log, adapter, a, creds)
	elapsed := time.Since(started)

	record := &models.PublishRecord{
		ArticleID:            a.article.ID,
		PlatformConnectionID: conn.ID,
		Platform:             a.platform,
		Operation:            a.operation,
		Draft:                a.opts.Draft,
		PlatformPostID:       a.postID,
		RetryCount:           a.retryCount,
		BatchID:              a.batchID,
	}
	if err == nil {
		at := o.now().UTC()
		record.Status = models.PublishStatusPublished
		record.PublishedAt = &at
		if ref.PostID != "" {
			record.PlatformPostID = ref.PostID
		}
		record.URL = ref.URL
		log.Debug("publish succeeded", "post_id", record.PlatformPostID)
	} else {
		record.Status = models.PublishStatusFailed
		record.ErrorKind = platforms.KindOf(err)
		record.LastError = platforms.Message(err)
		if record.ErrorKind == models.ErrorKindTransient {
			log.Debug("publish failed transiently", "error", err)
		} else {
			log.Debug("publish failed permanently", "error", err)
		}
	}

	if recErr := o.ledger.Record(ctx, record); recErr != nil {
		log.Error("ledger write failed", "error", recErr)
	}
	metrics.ObservePublishAttempt(a.platform, a.operation, record.ErrorKind, elapsed)
	o.emit(ctx, log, a, record)

	if record.PublishedAt != nil {
		o.promote(ctx, log, a.article.ID, *record.PublishedAt)
	}

	return outcomeOf(record), nil
}

// invokeWithRefresh calls the adapter and answers an AuthError with exactly
// one refresh and retry.
func (o *publishOrchestrator) invokeWithRefresh(ctx context.Context, log *slog.Logger, adapter platforms.Adapter, a attempt, creds models.Credentials) (platforms.PostRef, error) {
	ctx, cancel := context.WithTimeout(ctx, o.platformTimeout)
	defer cancel()

	ref, err := o.invoke(ctx, log, adapter, a, creds)
	var authErr *platforms.AuthError
	if !errors.As(err, &authErr) {
		return ref, err
	}

	log.Debug("credentials rejected, refreshing", "status", authErr.StatusCode)
	refreshed, refreshErr := o.connections.RefreshAndPersist(ctx, a.userID, a.platform)
	if refreshErr != nil {
		return platforms.PostRef{}, refreshErr
	}
	return o.invoke(ctx, log, adapter, a, refreshed)
}

func (o *publishOrchestrator) invoke(ctx context.Context, log *slog.Logger, adapter platforms.Adapter, a attempt, creds models.Credentials) (platforms.PostRef, error) {
	log.Debug("adapter invoked")
	if a.operation == models.OperationUpdate {
		return adapter.UpdatePublished(ctx, a.article, creds, a.postID)
	}
	return adapter.Publish(ctx, a.article, creds, a.opts)
}

func (o *publishOrchestrator) promote(ctx context.Context, log *slog.Logger, articleID uint, at time.Time) {
	promoted, err := o.articles.PromoteToPublished(ctx, articleID, at)
	if err != nil {
		log.Error("promote article", "error", err)
		return
	}
	if promoted {
		log.Info("article promoted to published")
		if o.onPromoted != nil {
			o.onPromoted(articleID)
		}
	}
}

func (o *publishOrchestrator) emit(ctx context.Context, log *slog.Logger, a attempt, record *models.PublishRecord) {
	err := o.events.Publish(ctx, events.PublishEvent{
		RecordID:   record.ID,
		ArticleID:  record.ArticleID,
		UserID:     a.userID,
		Platform:   record.Platform,
		Operation:  record.Operation,
		Success:    record.Status == models.PublishStatusPublished,
		PostID:     record.PlatformPostID,
		URL:        record.URL,
		ErrorKind:  record.ErrorKind,
		Error:      record.LastError,
		RetryCount: record.RetryCount,
		BatchID:    record.BatchID,
		OccurredAt: o.now().UTC(),
	})
	metrics.IncEvent(err == nil)
	if err != nil {
		log.Warn("publish event not delivered", "error", err)
	}
}

// reload refreshes the caller's copy after a possible promotion.
func (o *publishOrchestrator) reload(article *models.Article) {
	fresh, err := o.articles.GetByID(article.ID)
	if err != nil {
		o.logger.Warn("reload article", "article_id", article.ID, "error", err)
		return
	}
	*article = *fresh
}

func outcomeOf(record *models.PublishRecord) models.PublishOutcome {
	outcome := models.PublishOutcome{
		Platform: record.Platform,
		RecordID: record.ID,
	}
	if record.Status == models.PublishStatusPublished {
		outcome.Success = true
		outcome.PostID = record.PlatformPostID
		outcome.URL = record.URL
		return outcome
	}
	outcome.Error = record.LastError
	outcome.Retryable = record.ErrorKind == models.ErrorKindTransient
	return outcome
}

// userMessage renders errors that stopped an attempt before the adapter.
func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotConnected):
		return ErrNotConnected.Error()
	case errors.Is(err, ErrUnknownPlatform):
		return ErrUnknownPlatform.Error()
	case errors.Is(err, ErrArticleNotFound):
		return ErrArticleNotFound.Error()
	default:
		return "publish could not be started"
	}
}

// uniquePlatforms drops repeats, keeping the first occurrence.
func uniquePlatforms(targets []models.Platform) []models.Platform {
	seen := make(map[models.Platform]struct{}, len(targets))
	result := make([]models.Platform, 0, len(targets))
	for _, p := range targets {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		result = append(result, p)
	}
	return result
}
