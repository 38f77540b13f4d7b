package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 12*time.Hour, cfg.Session.MaxAge)
	assert.Equal(t, QuestionDeleteBlock, cfg.Questions.DeletePolicy)
	assert.Equal(t, []string{"image/png", "image/jpeg", "image/gif", "image/webp"}, cfg.Media.AllowedMIMEs)
	assert.Equal(t, int64(5*1024*1024), cfg.Media.MaxFileSizeBytes)
	assert.Equal(t, 5*time.Minute, cfg.ReportCache.TTL)
}

func TestFromViperDeletePolicy(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	v.Set("QUESTION_DELETE_POLICY", " CASCADE ")
	assert.Equal(t, QuestionDeleteCascade, fromViper(v).Questions.DeletePolicy)

	v.Set("QUESTION_DELETE_POLICY", "soft")
	assert.Equal(t, QuestionDeleteBlock, fromViper(v).Questions.DeletePolicy)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	assert.Equal(t, 90*time.Second, parseDuration("90s", time.Minute))
}

func TestLocation(t *testing.T) {
	assert.Equal(t, time.UTC, (&Config{}).Location())
	assert.Equal(t, time.UTC, (&Config{Timezone: "Nowhere/Invalid"}).Location())
}
