package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"cms-publisher/config"
	"cms-publisher/events"
	"cms-publisher/models"
	"cms-publisher/platforms"
	"cms-publisher/repositories"
	"cms-publisher/security"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := config.InitDB(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		DSN:    fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name),
		Silent: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type publishFunc func(ctx context.Context, article models.Article, creds models.Credentials, opts platforms.PublishOptions) (platforms.PostRef, error)
type updateFunc func(ctx context.Context, article models.Article, creds models.Credentials, postID string) (platforms.PostRef, error)

// fakeAdapter is a scripted platform adapter that counts its calls.
type fakeAdapter struct {
	platform    models.Platform
	maxTags     int
	account     platforms.AccountInfo
	validateErr error
	publish     publishFunc
	update      updateFunc

	mu       sync.Mutex
	calls    map[string]int
	lastCred models.Credentials
}

var _ platforms.Adapter = (*fakeAdapter)(nil)

func newFakeAdapter(platform models.Platform) *fakeAdapter {
	return &fakeAdapter{platform: platform, calls: map[string]int{}}
}

func (f *fakeAdapter) count(method string, creds models.Credentials) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	if creds != nil {
		f.lastCred = creds
	}
}

func (f *fakeAdapter) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeAdapter) LastCredentials() models.Credentials {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCred
}

func (f *fakeAdapter) Platform() models.Platform { return f.platform }

func (f *fakeAdapter) MaxTags() int { return f.maxTags }

func (f *fakeAdapter) ValidateCredentials(_ context.Context, creds models.Credentials) (platforms.AccountInfo, error) {
	f.count("validate", creds)
	return f.account, f.validateErr
}

func (f *fakeAdapter) Publish(ctx context.Context, article models.Article, creds models.Credentials, opts platforms.PublishOptions) (platforms.PostRef, error) {
	f.count("publish", creds)
	if f.publish == nil {
		return platforms.PostRef{PostID: fmt.Sprintf("%s-%d", strings.ToLower(string(f.platform)), article.ID)}, nil
	}
	return f.publish(ctx, article, creds, opts)
}

func (f *fakeAdapter) UpdatePublished(ctx context.Context, article models.Article, creds models.Credentials, postID string) (platforms.PostRef, error) {
	f.count("update", creds)
	if f.update == nil {
		return platforms.PostRef{PostID: postID}, nil
	}
	return f.update(ctx, article, creds, postID)
}

// refreshingAdapter adds OAuth refresh to a fakeAdapter.
type refreshingAdapter struct {
	*fakeAdapter
	refresh func(ctx context.Context, creds models.Credentials) (models.Credentials, error)
}

var _ platforms.Refresher = (*refreshingAdapter)(nil)

func (r *refreshingAdapter) Refresh(ctx context.Context, creds models.Credentials) (models.Credentials, error) {
	r.count("refresh", nil)
	return r.refresh(ctx, creds)
}

// recordingPublisher keeps every event it receives.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.PublishEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e events.PublishEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type testEnv struct {
	db           *gorm.DB
	registry     *platforms.Registry
	articleRepo  repositories.ArticleRepository
	connRepo     repositories.ConnectionRepository
	connections  ConnectionStore
	ledger       PublishLedger
	orchestrator *publishOrchestrator
	queue        *publishQueue
	events       *recordingPublisher
	user         models.User
}

func newTestEnv(t *testing.T, adapters ...platforms.Adapter) *testEnv {
	t.Helper()
	db := newTestDB(t)
	logger := discardLogger()

	cipher, err := security.NewCipher("test-passphrase")
	require.NoError(t, err)

	env := &testEnv{
		db:          db,
		registry:    platforms.NewRegistry(adapters...),
		articleRepo: repositories.NewArticleRepository(db),
		connRepo:    repositories.NewConnectionRepository(db),
		events:      &recordingPublisher{},
	}
	env.connections = NewConnectionStore(env.connRepo, env.registry, cipher, logger)
	env.ledger = NewPublishLedger(repositories.NewPublishRecordRepository(db))
	env.orchestrator = NewPublishOrchestrator(OrchestratorDeps{
		Registry:        env.registry,
		Connections:     env.connections,
		Ledger:          env.ledger,
		Articles:        env.articleRepo,
		Events:          env.events,
		Logger:          logger,
		PlatformTimeout: 2 * time.Second,
		BulkConcurrency: 2,
	}).(*publishOrchestrator)
	env.queue = NewPublishQueue(
		repositories.NewQueueJobRepository(db),
		env.articleRepo,
		env.registry,
		env.ledger,
		env.orchestrator,
		QueueConfig{MaxRetryAge: 24 * time.Hour, RetryBaseDelay: time.Minute, RetryMaxDelay: time.Hour},
		logger,
	).(*publishQueue)

	env.user = env.newUser(t, "ada", models.PlanPro)
	return env
}

func (e *testEnv) newUser(t *testing.T, name string, plan models.SubscriptionPlan) models.User {
	t.Helper()
	user := models.User{Username: name, Email: name + "@example.com", Role: models.RoleWriter, Plan: plan}
	require.NoError(t, repositories.NewUserRepository(e.db).Create(&user))
	return user
}

func (e *testEnv) connect(t *testing.T, platform models.Platform, creds models.Credentials) {
	t.Helper()
	_, err := e.connections.Connect(context.Background(), e.user.ID, platform, creds)
	require.NoError(t, err)
}

func (e *testEnv) draftArticle(t *testing.T, authorID uint) *models.Article {
	t.Helper()
	article := &models.Article{
		AuthorID: authorID,
		Title:    "X",
		Content:  "<p>hi</p>",
		Status:   models.ArticleStatusDraft,
		Tags:     models.TagList{"go", "web"},
	}
	require.NoError(t, e.articleRepo.Create(article))
	return article
}

func (e *testEnv) records(t *testing.T, articleID uint, platform models.Platform) []models.PublishRecord {
	t.Helper()
	all, err := e.ledger.ListForArticle(context.Background(), articleID)
	require.NoError(t, err)
	var matched []models.PublishRecord
	for _, r := range all {
		if r.Platform == platform {
			matched = append(matched, r)
		}
	}
	return matched
}

func transientTimeout(platform models.Platform) error {
	return platforms.NewTransientError(platform, "request timed out", context.DeadlineExceeded)
}
