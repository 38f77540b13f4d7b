package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/sma-adp-assessments/pkg/config"
)

// NewRedis returns a configured Redis client used by the report cache.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	return client, nil
}

// ReportKey builds the cache key for a class report scope.
func ReportKey(teacherID, semesterID, classID, subjectID string) string {
	return fmt.Sprintf("reports:class:%s:%s:%s:%s", teacherID, semesterID, classID, subjectID)
}

// ReportPattern matches every cached report touching a class/subject pair, whichever
// teacher or semester produced it.
func ReportPattern(classID, subjectID string) string {
	return fmt.Sprintf("reports:class:*:*:%s:%s", classID, subjectID)
}
