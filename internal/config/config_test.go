package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAPIKeys(t *testing.T) {
	keys, err := parseAPIKeys("k1:admin, k2:player,k3:premium")
	require.NoError(t, err)
	assert.Equal(t, map[string]Role{
		"k1": RoleAdmin,
		"k2": RolePlayer,
		"k3": RolePremium,
	}, keys)

	keys, err = parseAPIKeys("")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = parseAPIKeys("k1")
	assert.Error(t, err, "missing role")

	_, err = parseAPIKeys("k1:superuser")
	assert.Error(t, err, "unknown role")

	_, err = parseAPIKeys(":admin")
	assert.Error(t, err, "empty key")
}

func TestTierForRole(t *testing.T) {
	// Higher roles always get at least the capacity and refill of lower ones.
	anon := TierForRole(RoleAnonymous)
	player := TierForRole(RolePlayer)
	premium := TierForRole(RolePremium)
	admin := TierForRole(RoleAdmin)

	assert.Greater(t, player.MaxTokens, anon.MaxTokens)
	assert.Greater(t, premium.MaxTokens, player.MaxTokens)
	assert.Greater(t, admin.MaxTokens, premium.MaxTokens)
	assert.Greater(t, player.RefillPerSecond, anon.RefillPerSecond)

	// Unknown roles fall back to the anonymous tier.
	assert.Equal(t, anon, TierForRole(Role("mystery")))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.NotZero(t, cfg.QdrantPort)
	assert.NotEmpty(t, cfg.HTTPPort)
	assert.Positive(t, cfg.TopK)
	assert.Positive(t, cfg.MinScore)
	assert.NotEmpty(t, cfg.ChatModel)
	assert.NotNil(t, cfg.APIKeys)
}
