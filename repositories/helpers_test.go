package repositories

import (
	"fmt"
	"strings"
	"testing"

	"cms-publisher/config"
	"cms-publisher/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := config.InitDB(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
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

func seedUser(t *testing.T, db *gorm.DB, name string) models.User {
	t.Helper()
	user := models.User{Username: name, Email: name + "@example.com", Role: models.RoleWriter, Plan: models.PlanPro}
	require.NoError(t, NewUserRepository(db).Create(&user))
	return user
}

func seedArticle(t *testing.T, db *gorm.DB, authorID uint, tags ...string) models.Article {
	t.Helper()
	article := models.Article{
		AuthorID: authorID,
		Title:    "X",
		Content:  "<p>hi</p>",
		Status:   models.ArticleStatusDraft,
		Tags:     models.TagList(tags),
	}
	require.NoError(t, NewArticleRepository(db).Create(&article))
	return article
}
