package browser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateChatURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		allowed []string
		code    string
	}{
		{name: "https ok", url: "https://chatgpt.com/"},
		{name: "http ok", url: "http://localhost:3000/chat"},
		{name: "missing host", url: "chatgpt.com", code: ErrCodeValidation},
		{name: "file scheme", url: "file:///etc/passwd", code: ErrCodeValidation},
		{name: "javascript scheme", url: "javascript://alert", code: ErrCodeSecurity},
		{name: "allowed exact", url: "https://chatgpt.com/", allowed: []string{"chatgpt.com"}},
		{name: "allowed wildcard", url: "https://eu.chat.example.com/", allowed: []string{"*.example.com"}},
		{name: "allowed dot prefix", url: "https://example.com/", allowed: []string{".example.com"}},
		{name: "not allowed", url: "https://evil.test/", allowed: []string{"chatgpt.com"}, code: ErrCodeSecurity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChatURL(tt.url, tt.allowed)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var be *BrowserError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, tt.code, be.Code)
		})
	}
}

func TestIsValidSelector(t *testing.T) {
	assert.True(t, IsValidSelector(DefaultInputSelector))
	assert.True(t, IsValidSelector(DefaultSendSelector))
	assert.True(t, IsValidSelector(DefaultReplySelector))
	assert.False(t, IsValidSelector(""))
	assert.False(t, IsValidSelector("  "))
	assert.False(t, IsValidSelector(`img[onerror="x"]`))
	assert.False(t, IsValidSelector("<script>"))
}

func TestProfileValidate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, Profile{ChatURL: "https://chatgpt.com/"}.Validate())
	})

	t.Run("bad selector", func(t *testing.T) {
		err := Profile{ChatURL: "https://chatgpt.com/", SendSelector: "javascript:void(0)"}.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "send_selector")
	})

	t.Run("bad port", func(t *testing.T) {
		err := Profile{ChatURL: "https://chatgpt.com/", CDPPort: 80}.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CDP port")
	})

	t.Run("missing url", func(t *testing.T) {
		assert.Error(t, Profile{}.Validate())
	})
}

func TestProfileWithDefaults(t *testing.T) {
	p := Profile{ChatURL: "https://chatgpt.com/", ReplySelector: ".reply"}.withDefaults()
	assert.Equal(t, DefaultInputSelector, p.InputSelector)
	assert.Equal(t, DefaultSendSelector, p.SendSelector)
	assert.Equal(t, ".reply", p.ReplySelector)
}
