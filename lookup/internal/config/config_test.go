package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frothly/episode-mesh/lookup/internal/resource"
)

func userDef(t *testing.T) resource.Def {
	t.Helper()
	d, err := resource.Lookup("user")
	require.NoError(t, err)
	return d
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LOOKUP_SOURCE", "")
	t.Setenv("LOOKUP_ADDR", "")
	cfg, err := Load(userDef(t))
	require.NoError(t, err)
	assert.Equal(t, ":5003", cfg.Addr)
	assert.Equal(t, SourceFile, cfg.Source)
	assert.Equal(t, "users.json", cfg.File)
	assert.Equal(t, "users", cfg.Table)
	assert.Equal(t, 2, cfg.InitialVersion)
	assert.Equal(t, time.Second, cfg.LatencyUnit)
}

func TestLoadValidatesSource(t *testing.T) {
	t.Setenv("LOOKUP_SOURCE", "postgres")
	t.Setenv("LOOKUP_DATABASE_URL", "")
	t.Setenv("DATABASE_URL", "")
	_, err := Load(userDef(t))
	assert.Error(t, err)

	t.Setenv("LOOKUP_SOURCE", "s3")
	t.Setenv("LOOKUP_S3_BUCKET", "")
	_, err = Load(userDef(t))
	assert.Error(t, err)

	t.Setenv("LOOKUP_SOURCE", "redis")
	_, err = Load(userDef(t))
	assert.Error(t, err)
}

func TestLoadRejectsBadInitialVersion(t *testing.T) {
	t.Setenv("LOOKUP_SOURCE", "file")
	t.Setenv("LOOKUP_INITIAL_API_VERSION", "0")
	_, err := Load(userDef(t))
	assert.Error(t, err)
}
