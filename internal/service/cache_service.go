package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-assessments/internal/models"
	"github.com/noah-isme/sma-adp-assessments/pkg/cache"
	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
)

// CacheRepository abstracts persistence for cached report payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService wraps the report cache with metrics and best-effort logging.
// A disabled service behaves as a permanent miss.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get fills dest from the cache and reports whether it was a hit. Backend
// errors are logged and count as a miss.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) bool {
	if !s.Enabled() {
		return false
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}
	return err == nil
}

// Set stores value under key. Failures are logged only.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !s.Enabled() {
		return
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate removes cached values matching pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}

// cachedLoad returns the cached value for key or computes it with load and
// stores the result.
func cachedLoad[T any](ctx context.Context, cache *CacheService, key string, load func() (*T, error)) (*T, error) {
	var cached T
	if cache.Get(ctx, key, &cached) {
		return &cached, nil
	}
	value, err := load()
	if err != nil {
		return nil, err
	}
	cache.Set(ctx, key, value, 0)
	return value, nil
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

type pairLister interface {
	ListPairs(ctx context.Context, assessmentID string) ([]models.ClassSubjectPair, error)
}

// reportCache drops cached class reports after writes that change them. With a
// nil cache every call is a no-op.
type reportCache struct {
	cache  cacheInvalidator
	pairs  pairLister
	logger *zap.Logger
}

func (r reportCache) clearPairs(ctx context.Context, pairs ...models.ClassSubjectPair) {
	if r.cache == nil {
		return
	}
	seen := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		if seen[p.Key()] {
			continue
		}
		seen[p.Key()] = true
		if err := r.cache.Invalidate(ctx, cache.ReportPattern(p.ClassID, p.SubjectID)); err != nil {
			r.logger.Warn("failed to invalidate report cache",
				zap.String("class_id", p.ClassID),
				zap.String("subject_id", p.SubjectID),
				zap.Error(err))
		}
	}
}

func (r reportCache) clearAssessment(ctx context.Context, assessmentID string) {
	if r.cache == nil {
		return
	}
	pairs, err := r.pairs.ListPairs(ctx, assessmentID)
	if err != nil {
		r.logger.Warn("list pairs for cache invalidation", zap.String("assessment_id", assessmentID), zap.Error(err))
		return
	}
	r.clearPairs(ctx, pairs...)
}
