package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("template-service")
	require.NoError(t, err)

	assert.Equal(t, 8084, cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.Equal(t, 0.5, cfg.Matching.DefaultConfidenceThreshold)
	assert.Equal(t, 30*time.Minute, cfg.Matching.CacheTTL)

	// The Redis fast path carries its own lifetime, distinct from the
	// relational cache rows
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
	assert.Empty(t, cfg.Cache.Addr)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "db.internal", Port: 5432, User: "svc", Password: "pw",
		Database: "templates", SSLMode: "require",
	}
	assert.Equal(t,
		"host=db.internal port=5432 user=svc password=pw dbname=templates sslmode=require",
		cfg.DSN())
}
