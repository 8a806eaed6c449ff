package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cms-publisher/config"
	"cms-publisher/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservePublishAttemptLabels(t *testing.T) {
	ok := publishAttempts.WithLabelValues("GHOST", "publish", ResultSucceeded)
	failed := publishAttempts.WithLabelValues("GHOST", "publish", ResultFailedTransient)
	beforeOK, beforeFailed := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	ObservePublishAttempt(models.PlatformGhost, models.OperationPublish, models.ErrorKindNone, time.Second)
	ObservePublishAttempt(models.PlatformGhost, models.OperationPublish, models.ErrorKindTransient, time.Second)
	ObservePublishAttempt(models.PlatformGhost, models.OperationPublish, models.ErrorKindTransient, time.Second)

	assert.Equal(t, beforeOK+1, testutil.ToFloat64(ok))
	assert.Equal(t, beforeFailed+2, testutil.ToFloat64(failed))
}

func TestGinMiddlewareUsesRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/articles/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	counter := httpRequests.WithLabelValues(http.MethodGet, "/articles/:id", "204")
	before := testutil.ToFloat64(counter)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/articles/42", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestUpdateQueueGauges(t *testing.T) {
	db, err := config.InitDB(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		DSN:    "file:metrics_gauges?mode=memory&cache=shared",
		Silent: true,
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	for _, status := range []models.QueueJobStatus{models.QueueJobPending, models.QueueJobPending, models.QueueJobFailed} {
		require.NoError(t, db.Create(&models.PublishQueueJob{
			ArticleID:  1,
			UserID:     1,
			Platforms:  []models.Platform{models.PlatformDevTo},
			ScheduleAt: now,
			Status:     status,
		}).Error)
	}

	UpdateQueueGauges(context.Background(), db, slog.Default())

	assert.Equal(t, float64(2), testutil.ToFloat64(queueJobsByStatus.WithLabelValues("PENDING")))
	assert.Equal(t, float64(1), testutil.ToFloat64(queueJobsByStatus.WithLabelValues("FAILED")))
	assert.Equal(t, float64(0), testutil.ToFloat64(queueJobsByStatus.WithLabelValues("COMPLETED")))
}
