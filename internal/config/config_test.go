package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("MODE", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("TOKEN_TTL", "")
	t.Setenv("CORS_ORIGINS", "")

	cfg := FromEnv()
	assert.Equal(t, ModeOffline, cfg.Mode)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 8*time.Hour, cfg.TokenTTL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.True(t, cfg.EnableLocalAuth)
}

func TestFromEnvOnlineDefaultsToMongo(t *testing.T) {
	t.Setenv("MODE", "online")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("ANALYTICS_CACHE_TTL", "90s")
	t.Setenv("ENABLE_LOCAL_AUTH", "no")

	cfg := FromEnv()
	assert.Equal(t, "mongo", cfg.DBDriver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 90*time.Second, cfg.AnalyticsCacheTTL)
	assert.False(t, cfg.EnableLocalAuth)
}

func TestNewLogger(t *testing.T) {
	l := Config{LogLevel: "debug", LogFormat: "json"}.NewLogger()
	assert.Equal(t, logrus.DebugLevel, l.Level)
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)

	l = Config{LogLevel: "nonsense"}.NewLogger()
	assert.Equal(t, logrus.InfoLevel, l.Level)
}
