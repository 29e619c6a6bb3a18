package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/brightpaw/vetdesk-ai-platform/pkg/logging"
)

// ErrClinicNotFound is returned when no clinic matches the lookup.
var ErrClinicNotFound = errors.New("clinic: not found")

const cacheTTL = 5 * time.Minute

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store loads clinic configuration from Postgres with a Redis cache in
// front. Voice webhooks resolve the clinic on every tool call, so the
// cache keeps the hot path off the database.
type Store struct {
	pool   rowQuerier
	cache  *redis.Client
	logger *logging.Logger
}

// NewStore creates a clinic store. The Redis client is optional; without
// it every read goes to Postgres.
func NewStore(pool *pgxpool.Pool, cache *redis.Client, logger *logging.Logger) *Store {
	if pool == nil {
		panic("clinic: pgx pool required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{pool: pool, cache: cache, logger: logger}
}

func newStoreWithQuerier(q rowQuerier, cache *redis.Client, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{pool: q, cache: cache, logger: logger}
}

// Get loads a clinic's configuration by id.
func (s *Store) Get(ctx context.Context, clinicID string) (*Config, error) {
	if s.cache != nil {
		data, err := s.cache.Get(ctx, fmt.Sprintf("clinic:config:%s", clinicID)).Bytes()
		if err == nil {
			var cfg Config
			if jsonErr := json.Unmarshal(data, &cfg); jsonErr == nil {
				return &cfg, nil
			}
			// Corrupt cache entry falls through to Postgres.
		} else if err != redis.Nil {
			s.logger.Warn("clinic: cache read failed", "error", err, "clinic_id", clinicID)
		}
	}

	cfg, err := s.fetch(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	s.fillCache(ctx, cfg)
	return cfg, nil
}

// LookupByNumber resolves a clinic id from the phone number a caller dialed.
func (s *Store) LookupByNumber(ctx context.Context, number string) (string, error) {
	query := `SELECT id FROM clinics WHERE phone = $1 AND deleted_at IS NULL`
	var id string
	if err := s.pool.QueryRow(ctx, query, number).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrClinicNotFound
		}
		return "", fmt.Errorf("clinic: lookup by number: %w", err)
	}
	return id, nil
}

func (s *Store) fetch(ctx context.Context, clinicID string) (*Config, error) {
	query := `
		SELECT id, name, phone, timezone, integration_type, capacity_override,
			   pms_username, pms_password, pms_site_id,
			   notify_email_enabled, notify_email_recipients
		FROM clinics
		WHERE id = $1 AND deleted_at IS NULL
	`
	var (
		cfg        Config
		override   *int
		recipients []string
	)
	err := s.pool.QueryRow(ctx, query, clinicID).Scan(
		&cfg.ClinicID,
		&cfg.Name,
		&cfg.Phone,
		&cfg.Timezone,
		&cfg.Integration,
		&override,
		&cfg.PMSCredentials.Username,
		&cfg.PMSCredentials.Password,
		&cfg.PMSCredentials.SiteID,
		&cfg.Notifications.EmailEnabled,
		&recipients,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, fmt.Errorf("clinic: load config: %w", err)
	}
	cfg.CapacityOverride = override
	cfg.Notifications.EmailRecipients = recipients
	return &cfg, nil
}

func (s *Store) fillCache(ctx context.Context, cfg *Config) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cfg.cacheKey(), data, cacheTTL).Err(); err != nil {
		s.logger.Warn("clinic: cache write failed", "error", err, "clinic_id", cfg.ClinicID)
	}
}

// Invalidate drops the cached config after an update.
func (s *Store) Invalidate(ctx context.Context, clinicID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, fmt.Sprintf("clinic:config:%s", clinicID)).Err(); err != nil {
		s.logger.Warn("clinic: cache invalidate failed", "error", err, "clinic_id", clinicID)
	}
}
