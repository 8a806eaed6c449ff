package repositories

import (
	"context"
	"fmt"
	"time"

	"cms-publisher/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConnectionRepository interface {
	Upsert(ctx context.Context, conn *models.PlatformConnection) error
	Get(ctx context.Context, userID uint, platform models.Platform) (*models.PlatformConnection, error)
	ListByUser(ctx context.Context, userID uint) ([]models.PlatformConnection, error)
	UpdateCredentials(ctx context.Context, id uint, sealed []byte, syncedAt time.Time) error
	SetStatus(ctx context.Context, id uint, status models.ConnectionStatus) error
	Delete(ctx context.Context, userID uint, platform models.Platform) (bool, error)
	CountConnected(ctx context.Context, userID uint) (int64, error)
}

type connectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

// Upsert inserts the connection or, when the (user, platform) pair already
// exists, replaces its credentials, status and metadata in place.
func (r *connectionRepository) Upsert(ctx context.Context, conn *models.PlatformConnection) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "platform"}},
		DoUpdates: clause.AssignmentColumns([]string{"credentials", "status", "metadata", "last_sync_at", "updated_at"}),
	}).Create(conn).Error
	if err != nil {
		return fmt.Errorf("upsert connection: %w", err)
	}

	stored, err := r.Get(ctx, conn.UserID, conn.Platform)
	if err != nil {
		return err
	}
	*conn = *stored
	return nil
}

func (r *connectionRepository) Get(ctx context.Context, userID uint, platform models.Platform) (*models.PlatformConnection, error) {
	var conn models.PlatformConnection
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND platform = ?", userID, platform).
		First(&conn).Error
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *connectionRepository) ListByUser(ctx context.Context, userID uint) ([]models.PlatformConnection, error) {
	var conns []models.PlatformConnection
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("platform asc").
		Find(&conns).Error
	return conns, err
}

// UpdateCredentials stores refreshed credentials. Concurrent refreshes are
// last-write-wins.
func (r *connectionRepository) UpdateCredentials(ctx context.Context, id uint, sealed []byte, syncedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.PlatformConnection{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"credentials":  sealed,
			"status":       models.ConnectionConnected,
			"last_sync_at": syncedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update credentials: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *connectionRepository) SetStatus(ctx context.Context, id uint, status models.ConnectionStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.PlatformConnection{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *connectionRepository) Delete(ctx context.Context, userID uint, platform models.Platform) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND platform = ?", userID, platform).
		Delete(&models.PlatformConnection{})
	return res.RowsAffected > 0, res.Error
}

func (r *connectionRepository) CountConnected(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PlatformConnection{}).
		Where("user_id = ? AND status = ?", userID, models.ConnectionConnected).
		Count(&count).Error
	return count, err
}
