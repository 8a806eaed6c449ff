package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"cms-publisher/metrics"
	"cms-publisher/models"
	"cms-publisher/platforms"
	"cms-publisher/repositories"
	"cms-publisher/security"

	"gorm.io/datatypes"
)

// ConnectionStore owns platform connections and the sealed credentials
// behind them.
type ConnectionStore interface {
	Connect(ctx context.Context, userID uint, platform models.Platform, creds models.Credentials) (*models.PlatformConnection, error)
	Get(ctx context.Context, userID uint, platform models.Platform) (*models.PlatformConnection, error)
	List(ctx context.Context, userID uint) ([]models.PlatformConnection, error)
	Disconnect(ctx context.Context, userID uint, platform models.Platform) error
	CountConnected(ctx context.Context, userID uint) (int64, error)
	GetValidCredentials(ctx context.Context, userID uint, platform models.Platform) (models.Credentials, *models.PlatformConnection, error)
	// RefreshAndPersist renews OAuth credentials and stores them. Failures
	// come back as permanent platform errors.
	RefreshAndPersist(ctx context.Context, userID uint, platform models.Platform) (models.Credentials, error)
}

type connectionStore struct {
	repo     repositories.ConnectionRepository
	registry *platforms.Registry
	cipher   *security.Cipher
	logger   *slog.Logger
	now      func() time.Time
}

func NewConnectionStore(repo repositories.ConnectionRepository, registry *platforms.Registry, cipher *security.Cipher, logger *slog.Logger) ConnectionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &connectionStore{
		repo:     repo,
		registry: registry,
		cipher:   cipher,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *connectionStore) Connect(ctx context.Context, userID uint, platform models.Platform, creds models.Credentials) (*models.PlatformConnection, error) {
	adapter, err := s.registry.Resolve(platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}

	info, err := adapter.ValidateCredentials(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("validate %s credentials: %w", platform, err)
	}

	if pair, ok := creds.(models.OAuthPair); ok && len(info.Site) > 0 {
		site := maps.Clone(info.Site)
		maps.Copy(site, pair.Site)
		pair.Site = site
		creds = pair
	}

	sealed, err := s.seal(creds)
	if err != nil {
		return nil, err
	}

	metadata := datatypes.JSONMap{}
	if info.Username != "" {
		metadata["username"] = info.Username
	}
	for k, v := range info.Site {
		metadata[k] = v
	}

	syncedAt := s.now().UTC()
	conn := &models.PlatformConnection{
		UserID:      userID,
		Platform:    platform,
		Credentials: sealed,
		Status:      models.ConnectionConnected,
		Metadata:    metadata,
		LastSyncAt:  &syncedAt,
	}
	if err := s.repo.Upsert(ctx, conn); err != nil {
		return nil, err
	}

	s.logger.Info("platform connected", "user_id", userID, "platform", platform, "account", info.Username)
	return conn, nil
}

func (s *connectionStore) Get(ctx context.Context, userID uint, platform models.Platform) (*models.PlatformConnection, error) {
	conn, err := s.repo.Get(ctx, userID, platform)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrNotConnected
		}
		return nil, err
	}
	return conn, nil
}

func (s *connectionStore) List(ctx context.Context, userID uint) ([]models.PlatformConnection, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *connectionStore) Disconnect(ctx context.Context, userID uint, platform models.Platform) error {
	deleted, err := s.repo.Delete(ctx, userID, platform)
	if err != nil {
		return fmt.Errorf("disconnect %s: %w", platform, err)
	}
	if !deleted {
		return ErrNotConnected
	}
	s.logger.Info("platform disconnected", "user_id", userID, "platform", platform)
	return nil
}

func (s *connectionStore) CountConnected(ctx context.Context, userID uint) (int64, error) {
	return s.repo.CountConnected(ctx, userID)
}

func (s *connectionStore) GetValidCredentials(ctx context.Context, userID uint, platform models.Platform) (models.Credentials, *models.PlatformConnection, error) {
	conn, err := s.Get(ctx, userID, platform)
	if err != nil {
		return nil, nil, err
	}
	if conn.Status != models.ConnectionConnected {
		return nil, nil, fmt.Errorf("%w: connection is %s", ErrNotConnected, conn.Status)
	}

	creds, err := s.open(conn.Credentials)
	if err != nil {
		return nil, nil, fmt.Errorf("%s credentials: %w", platform, err)
	}
	return creds, conn, nil
}

func (s *connectionStore) RefreshAndPersist(ctx context.Context, userID uint, platform models.Platform) (models.Credentials, error) {
	creds, conn, err := s.GetValidCredentials(ctx, userID, platform)
	if err != nil {
		return nil, platforms.NewPermanentError(platform, "credentials unavailable for refresh", err)
	}

	adapter, err := s.registry.Resolve(platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}
	refresher, ok := adapter.(platforms.Refresher)
	if !ok || creds.Kind() != models.CredentialOAuth {
		return nil, platforms.NewPermanentError(platform, "credentials were rejected and cannot be refreshed, reconnect the account", nil)
	}

	refreshed, err := refresher.Refresh(ctx, creds)
	if err != nil {
		metrics.IncCredentialRefresh(platform, false)
		s.logger.Warn("credential refresh failed", "user_id", userID, "platform", platform, "error", err)
		message := "credential refresh failed: " + platforms.Message(err)
		// A provider outage leaves the stored credentials usable.
		if platforms.KindOf(err) == models.ErrorKindTransient {
			return nil, platforms.NewTransientError(platform, message, err)
		}
		if statusErr := s.repo.SetStatus(ctx, conn.ID, models.ConnectionError); statusErr != nil {
			s.logger.Error("mark connection errored", "connection_id", conn.ID, "error", statusErr)
		}
		return nil, platforms.NewPermanentError(platform, message, err)
	}
	metrics.IncCredentialRefresh(platform, true)

	sealed, err := s.seal(refreshed)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCredentials(ctx, conn.ID, sealed, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("persist refreshed credentials: %w", err)
	}

	s.logger.Debug("credentials refreshed", "user_id", userID, "platform", platform)
	return refreshed, nil
}

func (s *connectionStore) seal(creds models.Credentials) ([]byte, error) {
	raw, err := models.MarshalCredentials(creds)
	if err != nil {
		return nil, err
	}
	sealed, err := s.cipher.Seal(raw)
	if err != nil {
		return nil, fmt.Errorf("seal credentials: %w", err)
	}
	return sealed, nil
}

func (s *connectionStore) open(sealed []byte) (models.Credentials, error) {
	raw, err := s.cipher.Open(sealed)
	if err != nil {
		return nil, err
	}
	return models.UnmarshalCredentials(raw)
}
