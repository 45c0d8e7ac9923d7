package session

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	t.Run("browser", func(t *testing.T) {
		s, err := New(Config{Kind: KindBrowser, Browser: BrowserConfig{ChatURL: "https://chatgpt.com/"}}, logger)
		require.NoError(t, err)
		assert.Equal(t, KindBrowser, s.Kind())
		assert.False(t, s.State().Open)
	})

	t.Run("browser without url", func(t *testing.T) {
		_, err := New(Config{Kind: KindBrowser}, logger)
		assert.Error(t, err)
	})

	t.Run("ollama api", func(t *testing.T) {
		s, err := New(Config{Kind: KindAPI, RotateAfterTokens: 20000, API: APIConfig{Provider: ProviderOllama, Model: "mistral"}}, logger)
		require.NoError(t, err)
		assert.Equal(t, KindAPI, s.Kind())
		assert.Equal(t, 40, s.State().RotationThreshold)
	})

	t.Run("api key from env", func(t *testing.T) {
		t.Setenv("WARDEN_TEST_KEY", "sk-test")
		s, err := New(Config{Kind: KindAPI, API: APIConfig{Provider: ProviderAnthropic, APIKeyEnv: "WARDEN_TEST_KEY"}}, logger)
		require.NoError(t, err)
		assert.Equal(t, KindAPI, s.Kind())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(Config{Kind: KindAPI, API: APIConfig{Provider: "palm"}}, logger)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported provider")
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := New(Config{Kind: "telnet"}, logger)
		assert.Error(t, err)
	})

	t.Run("factory builds fresh sessions", func(t *testing.T) {
		f := NewFactory(Config{Kind: KindAPI, API: APIConfig{Provider: ProviderOpenAI}}, logger)
		a, err := f()
		require.NoError(t, err)
		b, err := f()
		require.NoError(t, err)
		assert.NotSame(t, a, b)
	})
}
