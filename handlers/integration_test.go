package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cms-publisher/config"
	"cms-publisher/helper"
	"cms-publisher/middleware"
	"cms-publisher/models"
	"cms-publisher/platforms"
	"cms-publisher/repositories"
	"cms-publisher/security"
	"cms-publisher/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

// stubAdapter succeeds unless failing is set, in which case it reports an
// outage.
type stubAdapter struct {
	platform models.Platform
	failing  bool
}

func (s *stubAdapter) Platform() models.Platform { return s.platform }

func (s *stubAdapter) MaxTags() int { return 4 }

func (s *stubAdapter) ValidateCredentials(context.Context, models.Credentials) (platforms.AccountInfo, error) {
	return platforms.AccountInfo{Username: "ada"}, nil
}

func (s *stubAdapter) Publish(_ context.Context, article models.Article, _ models.Credentials, _ platforms.PublishOptions) (platforms.PostRef, error) {
	if s.failing {
		return platforms.PostRef{}, &platforms.PlatformError{Platform: s.platform, Kind: models.ErrorKindTransient, StatusCode: 503, Message: "service unavailable"}
	}
	id := fmt.Sprintf("%s-%d", strings.ToLower(string(s.platform)), article.ID)
	return platforms.PostRef{PostID: id, URL: "https://example.com/" + id}, nil
}

func (s *stubAdapter) UpdatePublished(_ context.Context, _ models.Article, _ models.Credentials, postID string) (platforms.PostRef, error) {
	return platforms.PostRef{PostID: postID, URL: "https://example.com/" + postID}, nil
}

type envelope struct {
	Code        int             `json:"code"`
	CodeType    string          `json:"code_type"`
	CodeMessage json.RawMessage `json:"code_message"`
	Data        json.RawMessage `json:"data"`
}

type IntegrationTestSuite struct {
	suite.Suite
	db     *gorm.DB
	router *gin.Engine
	tokens map[string]string
	users  map[string]models.User
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}

func (suite *IntegrationTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(suite.T().Name())
	db, err := config.InitDB(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		DSN:    fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", name),
		Silent: true,
	})
	suite.Require().NoError(err)
	suite.db = db

	suite.setupRouter()
	suite.seedUsers()
}

func (suite *IntegrationTestSuite) TearDownTest() {
	if sqlDB, err := suite.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (suite *IntegrationTestSuite) setupRouter() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	httpHelper := helper.NewHTTPHelper()

	cipher, err := security.NewCipher("test-passphrase")
	suite.Require().NoError(err)

	registry := platforms.NewRegistry(
		&stubAdapter{platform: models.PlatformDevTo},
		&stubAdapter{platform: models.PlatformGhost, failing: true},
		&stubAdapter{platform: models.PlatformHashnode},
	)

	userRepo := repositories.NewUserRepository(suite.db)
	articleRepo := repositories.NewArticleRepository(suite.db)
	tagRepo := repositories.NewTagRepository(suite.db)

	userService := services.NewUserService(userRepo)
	tagService := services.NewTagService(tagRepo, articleRepo)
	articleService := services.NewArticleService(articleRepo, tagService, logger)
	connections := services.NewConnectionStore(repositories.NewConnectionRepository(suite.db), registry, cipher, logger)
	ledger := services.NewPublishLedger(repositories.NewPublishRecordRepository(suite.db))
	orchestrator := services.NewPublishOrchestrator(services.OrchestratorDeps{
		Registry:        registry,
		Connections:     connections,
		Ledger:          ledger,
		Articles:        articleRepo,
		Logger:          logger,
		PlatformTimeout: 2 * time.Second,
		OnPromoted:      func(uint) { _ = tagService.RecountUsage() },
	})
	queue := services.NewPublishQueue(
		repositories.NewQueueJobRepository(suite.db),
		articleRepo,
		registry,
		ledger,
		orchestrator,
		services.QueueConfig{MaxRetryAge: time.Hour, RetryBaseDelay: time.Minute, RetryMaxDelay: time.Hour},
		logger,
	)
	gate := services.NewFeatureGate()

	suite.router = NewRouter(RouterDeps{
		JWTSecret:   testSecret,
		Users:       userService,
		Profile:     NewProfileHandler(userService, httpHelper, logger),
		Articles:    NewArticleHandler(articleService, httpHelper, logger),
		Tags:        NewTagHandler(tagService, httpHelper, logger),
		Connections: NewConnectionHandler(connections, gate, httpHelper, logger),
		Publishing: NewPublishHandler(PublishHandlerDeps{
			Articles:     articleService,
			Orchestrator: orchestrator,
			Ledger:       ledger,
			Queue:        queue,
			Gate:         gate,
			MaxRetries:   3,
			MaxRetryAge:  time.Hour,
		}, httpHelper, logger),
		Admin: NewAdminHandler(queue, 3, httpHelper, logger),
	})
}

func (suite *IntegrationTestSuite) seedUsers() {
	suite.tokens = map[string]string{}
	suite.users = map[string]models.User{}

	seed := []models.User{
		{Username: "ada", Email: "ada@example.com", Role: models.RoleWriter, Plan: models.PlanPro},
		{Username: "fred", Email: "fred@example.com", Role: models.RoleWriter, Plan: models.PlanFree},
		{Username: "root", Email: "root@example.com", Role: models.RoleAdmin, Plan: models.PlanBusiness},
	}
	userRepo := repositories.NewUserRepository(suite.db)
	for _, user := range seed {
		suite.Require().NoError(userRepo.Create(&user))

		token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
			UserID:   user.ID,
			Username: user.Username,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		signed, err := token.SignedString([]byte(testSecret))
		suite.Require().NoError(err)

		suite.tokens[user.Username] = signed
		suite.users[user.Username] = user
	}
}

func (suite *IntegrationTestSuite) do(as, method, path string, payload interface{}) (*httptest.ResponseRecorder, envelope) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		suite.Require().NoError(err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+suite.tokens[as])
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (suite *IntegrationTestSuite) createArticle(as, title string, tags ...string) models.Article {
	w, env := suite.do(as, http.MethodPost, "/api/v1/articles", models.CreateArticleRequest{
		Title:   title,
		Content: "<h1>" + title + "</h1><p>body</p>",
		Tags:    tags,
	})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var article models.Article
	suite.Require().NoError(json.Unmarshal(env.Data, &article))
	return article
}

func (suite *IntegrationTestSuite) connect(as string, platform models.Platform, req models.ConnectPlatformRequest) *httptest.ResponseRecorder {
	w, _ := suite.do(as, http.MethodPut, "/api/v1/connections/"+string(platform), req)
	return w
}

func (suite *IntegrationTestSuite) TestGetProfile() {
	w, env := suite.do("ada", http.MethodGet, "/api/v1/profile", nil)
	suite.Equal(http.StatusOK, w.Code)

	var user models.User
	suite.Require().NoError(json.Unmarshal(env.Data, &user))
	suite.Equal("ada", user.Username)
	suite.Equal(models.PlanPro, user.Plan)

	w, _ = suite.do("", http.MethodGet, "/api/v1/profile", nil)
	suite.Equal(http.StatusUnauthorized, w.Code)
}

func (suite *IntegrationTestSuite) TestArticleLifecycle() {
	w, env := suite.do("ada", http.MethodPost, "/api/v1/articles", map[string]interface{}{"content": "no title"})
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("validationError", env.CodeType)

	article := suite.createArticle("ada", "Hello", "go", "web")
	suite.Equal(models.ArticleStatusDraft, article.Status)

	w, _ = suite.do("fred", http.MethodGet, fmt.Sprintf("/api/v1/articles/%d", article.ID), nil)
	suite.Equal(http.StatusUnauthorized, w.Code)

	w, _ = suite.do("", http.MethodGet, fmt.Sprintf("/api/v1/public/articles/%d", article.ID), nil)
	suite.Equal(http.StatusNotFound, w.Code, "drafts stay private")

	w, env = suite.do("ada", http.MethodPut, fmt.Sprintf("/api/v1/articles/%d", article.ID), models.UpdateArticleRequest{
		Title:   "Hello again",
		Content: "<p>updated</p>",
		Tags:    []string{"go"},
	})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w, env = suite.do("ada", http.MethodPost, fmt.Sprintf("/api/v1/articles/%d/publish-site", article.ID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var published models.Article
	suite.Require().NoError(json.Unmarshal(env.Data, &published))
	suite.Equal(models.ArticleStatusPublished, published.Status)
	suite.Equal("Hello again", published.Title)

	w, env = suite.do("", http.MethodGet, "/api/v1/public/articles?limit=5", nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var list struct {
		Articles   []models.Article       `json:"articles"`
		Pagination map[string]interface{} `json:"pagination"`
	}
	suite.Require().NoError(json.Unmarshal(env.Data, &list))
	suite.Len(list.Articles, 1)
	suite.EqualValues(1, list.Pagination["total_records"])

	w, _ = suite.do("ada", http.MethodDelete, fmt.Sprintf("/api/v1/articles/%d", article.ID), nil)
	suite.Equal(http.StatusOK, w.Code)
	w, _ = suite.do("ada", http.MethodGet, fmt.Sprintf("/api/v1/articles/%d", article.ID), nil)
	suite.Equal(http.StatusNotFound, w.Code)
}

func (suite *IntegrationTestSuite) TestTagsRequireAdminToCreate() {
	w, _ := suite.do("ada", http.MethodPost, "/api/v1/tags", models.CreateTagRequest{Name: "go"})
	suite.Equal(http.StatusForbidden, w.Code)

	w, _ = suite.do("root", http.MethodPost, "/api/v1/tags", models.CreateTagRequest{Name: "go"})
	suite.Equal(http.StatusOK, w.Code)

	w, env := suite.do("root", http.MethodPost, "/api/v1/tags", models.CreateTagRequest{Name: "go"})
	suite.Equal(http.StatusConflict, w.Code)
	suite.Equal("conflict", env.CodeType)

	w, env = suite.do("ada", http.MethodGet, "/api/v1/tags", nil)
	suite.Equal(http.StatusOK, w.Code)
	var tags []models.Tag
	suite.Require().NoError(json.Unmarshal(env.Data, &tags))
	suite.Len(tags, 1)
}

func (suite *IntegrationTestSuite) TestPartialPublishAcrossPlatforms() {
	suite.Require().Equal(http.StatusOK, suite.connect("ada", models.PlatformDevTo, models.ConnectPlatformRequest{APIKey: "dev-key"}).Code)
	suite.Require().Equal(http.StatusOK, suite.connect("ada", models.PlatformGhost, models.ConnectPlatformRequest{
		APIKey:  "id:secret",
		SiteURL: "https://blog.example.com",
	}).Code)

	article := suite.createArticle("ada", "Fan out", "go")

	w, env := suite.do("ada", http.MethodPost, fmt.Sprintf("/api/v1/articles/%d/publish", article.ID), models.PublishRequest{
		Platforms: []string{"devto", "GHOST"},
	})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var result struct {
		Outcomes []models.PublishOutcome `json:"outcomes"`
		Summary  models.PublishSummary   `json:"summary"`
	}
	suite.Require().NoError(json.Unmarshal(env.Data, &result))
	suite.Equal("1/2 succeeded", result.Summary.Message)
	suite.Require().Len(result.Outcomes, 2)
	suite.True(result.Outcomes[0].Success)
	suite.Equal(fmt.Sprintf("devto-%d", article.ID), result.Outcomes[0].PostID)
	suite.False(result.Outcomes[1].Success)
	suite.True(result.Outcomes[1].Retryable)

	w, env = suite.do("ada", http.MethodGet, fmt.Sprintf("/api/v1/articles/%d", article.ID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var reloaded models.Article
	suite.Require().NoError(json.Unmarshal(env.Data, &reloaded))
	suite.Equal(models.ArticleStatusPublished, reloaded.Status)

	w, env = suite.do("ada", http.MethodGet, fmt.Sprintf("/api/v1/articles/%d/publish-records", article.ID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var history struct {
		Records []models.PublishRecord `json:"records"`
	}
	suite.Require().NoError(json.Unmarshal(env.Data, &history))
	suite.Len(history.Records, 2)

	// the live post can be updated, the failed one cannot
	w, _ = suite.do("ada", http.MethodPut, fmt.Sprintf("/api/v1/articles/%d/publish/DEVTO", article.ID), nil)
	suite.Equal(http.StatusOK, w.Code)
	w, env = suite.do("ada", http.MethodPut, fmt.Sprintf("/api/v1/articles/%d/publish/GHOST", article.ID), nil)
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("badRequest", env.CodeType)
}

func (suite *IntegrationTestSuite) TestPublishWithoutConnection() {
	article := suite.createArticle("ada", "Lonely")

	w, env := suite.do("ada", http.MethodPost, fmt.Sprintf("/api/v1/articles/%d/publish/HASHNODE", article.ID), nil)
	suite.Equal(http.StatusNotFound, w.Code)
	suite.Equal("notFound", env.CodeType)

	w, _ = suite.do("ada", http.MethodPost, fmt.Sprintf("/api/v1/articles/%d/publish/MEDIUM", article.ID), nil)
	suite.Equal(http.StatusBadRequest, w.Code)

	w, env = suite.do("ada", http.MethodGet, fmt.Sprintf("/api/v1/articles/%d/publish-records", article.ID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var history struct {
		Records []models.PublishRecord `json:"records"`
	}
	suite.Require().NoError(json.Unmarshal(env.Data, &history))
	suite.Empty(history.Records)
}

func (suite *IntegrationTestSuite) TestFreePlanGates() {
	suite.Require().Equal(http.StatusOK, suite.connect("fred", models.PlatformDevTo, models.ConnectPlatformRequest{APIKey: "a"}).Code)
	suite.Require().Equal(http.StatusOK, suite.connect("fred", models.PlatformHashnode, models.ConnectPlatformRequest{APIKey: "b"}).Code)
	// reconnecting does not count against the limit
	suite.Equal(http.StatusOK, suite.connect("fred", models.PlatformDevTo, models.ConnectPlatformRequest{APIKey: "c"}).Code)
	suite.Equal(http.StatusForbidden, suite.connect("fred", models.PlatformGhost, models.ConnectPlatformRequest{APIKey: "id:s", SiteURL: "https://x.example.com"}).Code)

	article := suite.createArticle("fred", "Free")

	w, env := suite.do("fred", http.MethodPost, fmt.Sprintf("/api/v1/articles/%d/publish", article.ID), models.PublishRequest{
		Platforms: []string{"DEVTO", "HASHNODE"},
	})
	suite.Equal(http.StatusForbidden, w.Code)
	suite.Equal("forbidden", env.CodeType)

	w, _ = suite.do("fred", http.MethodPost, "/api/v1/articles/bulk-publish", models.BulkPublishRequest{
		ArticleIDs: []uint{article.ID},
		Platforms:  []string{"DEVTO"},
	})
	suite.Equal(http.StatusForbidden, w.Code)

	w, _ = suite.do("fred", http.MethodPost, fmt.Sprintf("/api/v1/articles/%d/schedule", article.ID), models.SchedulePublishRequest{
		Platforms:  []string{"DEVTO"},
		ScheduleAt: time.Now().Add(time.Hour),
	})
	suite.Equal(http.StatusForbidden, w.Code)

	w, _ = suite.do("fred", http.MethodPost, fmt.Sprintf("/api/v1/articles/%d/publish/DEVTO", article.ID), nil)
	suite.Equal(http.StatusOK, w.Code)
}

func (suite *IntegrationTestSuite) TestBulkPublish() {
	suite.Require().Equal(http.StatusOK, suite.connect("root", models.PlatformDevTo, models.ConnectPlatformRequest{APIKey: "k"}).Code)
	first := suite.createArticle("root", "One")
	second := suite.createArticle("root", "Two")
	foreign := suite.createArticle("ada", "Not yours")

	w, env := suite.do("root", http.MethodPost, "/api/v1/articles/bulk-publish", models.BulkPublishRequest{
		ArticleIDs: []uint{first.ID, foreign.ID, second.ID},
		Platforms:  []string{"DEVTO"},
	})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var results []models.ArticlePublishResult
	suite.Require().NoError(json.Unmarshal(env.Data, &results))
	suite.Require().Len(results, 3)
	suite.Equal("1/1 succeeded", results[0].Summary.Message)
	suite.Equal(services.ErrArticleNotFound.Error(), results[1].Error)
	suite.Equal("1/1 succeeded", results[2].Summary.Message)
}

func (suite *IntegrationTestSuite) TestScheduleAndProcessQueue() {
	suite.Require().Equal(http.StatusOK, suite.connect("ada", models.PlatformDevTo, models.ConnectPlatformRequest{APIKey: "k"}).Code)
	article := suite.createArticle("ada", "Later")

	w, env := suite.do("ada", http.MethodPost, fmt.Sprintf("/api/v1/articles/%d/schedule", article.ID), models.SchedulePublishRequest{
		Platforms:  []string{"DEVTO"},
		ScheduleAt: time.Now().Add(-time.Minute),
	})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var job models.PublishQueueJob
	suite.Require().NoError(json.Unmarshal(env.Data, &job))
	suite.Equal(models.QueueJobPending, job.Status)

	w, _ = suite.do("ada", http.MethodPost, "/api/v1/admin/queue/process", nil)
	suite.Equal(http.StatusForbidden, w.Code)

	w, env = suite.do("root", http.MethodPost, "/api/v1/admin/queue/process", nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var report services.ProcessReport
	suite.Require().NoError(json.Unmarshal(env.Data, &report))
	suite.Equal(1, report.Completed)

	// a second run finds nothing to do
	w, env = suite.do("root", http.MethodPost, "/api/v1/admin/queue/process", nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.Require().NoError(json.Unmarshal(env.Data, &report))
	suite.Zero(report.Due)

	w, env = suite.do("ada", http.MethodGet, fmt.Sprintf("/api/v1/articles/%d/publish-records", article.ID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var history struct {
		Records []models.PublishRecord   `json:"records"`
		Jobs    []models.PublishQueueJob `json:"jobs"`
	}
	suite.Require().NoError(json.Unmarshal(env.Data, &history))
	suite.Len(history.Records, 1)
	suite.Require().Len(history.Jobs, 1)
	suite.Equal(models.QueueJobCompleted, history.Jobs[0].Status)

	w, env = suite.do("root", http.MethodPost, "/api/v1/admin/queue/retry", nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var retry services.RetryReport
	suite.Require().NoError(json.Unmarshal(env.Data, &retry))
	suite.Zero(retry.Examined)
}

func (suite *IntegrationTestSuite) TestConnectionsListAndDisconnect() {
	suite.Require().Equal(http.StatusOK, suite.connect("ada", models.PlatformDevTo, models.ConnectPlatformRequest{APIKey: "secret-key"}).Code)

	w, env := suite.do("ada", http.MethodGet, "/api/v1/connections", nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.NotContains(string(env.Data), "secret-key")
	var conns []models.PlatformConnection
	suite.Require().NoError(json.Unmarshal(env.Data, &conns))
	suite.Require().Len(conns, 1)
	suite.Equal("ada", conns[0].MetadataString("username"))

	w, _ = suite.do("ada", http.MethodPut, "/api/v1/connections/DEVTO", map[string]string{})
	suite.Equal(http.StatusBadRequest, w.Code, "credentials are required")

	w, _ = suite.do("ada", http.MethodDelete, "/api/v1/connections/DEVTO", nil)
	suite.Equal(http.StatusOK, w.Code)
	w, _ = suite.do("ada", http.MethodDelete, "/api/v1/connections/DEVTO", nil)
	suite.Equal(http.StatusNotFound, w.Code)

	w, env = suite.do("ada", http.MethodGet, "/api/v1/publish/failures", nil)
	suite.Equal(http.StatusOK, w.Code)
	var failures []models.PublishRecord
	suite.Require().NoError(json.Unmarshal(env.Data, &failures))
	suite.Empty(failures)
}

func (suite *IntegrationTestSuite) TestHealthAndMetrics() {
	w, _ := suite.do("", http.MethodGet, "/health", nil)
	suite.Equal(http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	suite.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	suite.Equal(http.StatusOK, w.Code)
}
