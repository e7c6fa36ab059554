package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MINIMAX_API_KEY", "mm-key")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("MAX_PER_REGION", "")
	t.Setenv("MAX_NEW_ARTICLE_AGE_MINUTES", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
	assert.Equal(t, "mm-key", cfg.LLMAPIKey)
	assert.Equal(t, 80, cfg.MaxPerRegion)
	assert.Equal(t, 30*time.Minute, cfg.NewArticleAge)
	assert.Equal(t, 7*24*time.Hour, cfg.MaxArticleAge)
	assert.Equal(t, StoreFile, cfg.StoreDriver)
	assert.NoError(t, cfg.RequireLLM())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LLM_API_KEY", "explicit")
	t.Setenv("MINIMAX_API_KEY", "mm-key")
	t.Setenv("MAX_PER_REGION", "5")
	t.Setenv("MAX_NEW_ARTICLE_AGE_MINUTES", "120")
	t.Setenv("TEST_MODE", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "explicit", cfg.LLMAPIKey)
	assert.Equal(t, 5, cfg.MaxPerRegion)
	assert.Equal(t, 2*time.Hour, cfg.NewArticleAge)
	assert.True(t, cfg.TestMode)
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	t.Setenv("MAX_CLASSIFY", "lots")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.MaxClassify)
}

func TestValidate_PostgresNeedsURL(t *testing.T) {
	t.Setenv("STORE_DRIVER", StorePostgres)
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestRequireLLM_Gemini(t *testing.T) {
	t.Setenv("LLM_PROVIDER", ProviderGemini)
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.EqualError(t, cfg.RequireLLM(), "GEMINI_API_KEY is required")
}

func TestLoad_GeminiModelDefault(t *testing.T) {
	t.Setenv("LLM_PROVIDER", ProviderGemini)
	t.Setenv("LLM_MODEL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gemini-1.5-flash", cfg.LLMModel)
}

func TestLoad_TestModeFlags(t *testing.T) {
	t.Setenv("MAX_PER_REGION", "")
	for _, v := range []string{"1", "true", "YES"} {
		t.Setenv("TEST_MODE", v)
		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.TestMode, v)
		assert.Equal(t, 3, cfg.MaxPerRegion, "test mode caps translations per region")
	}

	t.Setenv("TEST_MODE", "no")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.TestMode)
	assert.Equal(t, 80, cfg.MaxPerRegion)
}

func TestLoad_Debug(t *testing.T) {
	t.Setenv("DEBUG", "yes")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
}
