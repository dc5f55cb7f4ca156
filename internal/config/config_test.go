package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("RESET_INTERVAL_SEC", "60")

	cfg := Load()

	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, "gcm", cfg.StoreRoot)
	assert.Equal(t, "America/Sao_Paulo", cfg.Timezone)
	assert.Equal(t, 60*time.Second, cfg.ResetInterval)
	assert.Equal(t, "marker+scan", cfg.StalenessPolicy)
}

func TestLoad_ClampsResetInterval(t *testing.T) {
	t.Setenv("RESET_INTERVAL_SEC", "1")
	assert.Equal(t, MinResetInterval, Load().ResetInterval)

	t.Setenv("RESET_INTERVAL_SEC", "86400")
	assert.Equal(t, MaxResetInterval, Load().ResetInterval)
}

func TestLoad_BackendAndRoot(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("STORE_ROOT", "/cidade/")

	cfg := Load()

	assert.Equal(t, BackendRedis, cfg.StoreBackend)
	assert.Equal(t, "cidade", cfg.StoreRoot)
}

func TestLoad_UnknownBackendFallsBack(t *testing.T) {
	t.Setenv("STORE_BACKEND", "firebase")
	assert.Equal(t, BackendMemory, Load().StoreBackend)
}

func TestRegionHashes(t *testing.T) {
	hashes := regionHashes([]string{
		"REGION_PASSWORD_HASH_macro1=$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"REGION_PASSWORD_HASH_MACRO2=",
		"REGION_PASSWORD_HASH_=x",
		"PATH=/usr/bin",
	})

	require.Len(t, hashes, 1)
	assert.Contains(t, hashes, "MACRO1")
}
