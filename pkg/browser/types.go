// Package browser launches Chrome with a persistent profile and drives a chat page.
package browser

import "time"

const (
	DefaultInputSelector = "textarea, #prompt-textarea"
	DefaultSendSelector  = `button[data-testid="send-button"]`
	DefaultReplySelector = `[data-message-author-role="assistant"]`

	defaultInputWait    = 15 * time.Second
	defaultNavigateWait = 30 * time.Second
	defaultTypePause    = 500 * time.Millisecond
)

// Profile configures the browser and the chat page selectors.
type Profile struct {
	ChatURL       string   `json:"chat_url"`
	UserDataDir   string   `json:"user_data_dir,omitempty"`
	ChromePath    string   `json:"chrome_path,omitempty"`
	Headless      bool     `json:"headless"`
	NoSandbox     bool     `json:"no_sandbox"`
	CDPPort       int      `json:"cdp_port,omitempty"`
	InputSelector string   `json:"input_selector,omitempty"`
	SendSelector  string   `json:"send_selector,omitempty"`
	ReplySelector string   `json:"reply_selector,omitempty"`
	AllowedHosts  []string `json:"allowed_hosts,omitempty"`
}

// withDefaults fills empty selectors.
func (p Profile) withDefaults() Profile {
	if p.InputSelector == "" {
		p.InputSelector = DefaultInputSelector
	}
	if p.SendSelector == "" {
		p.SendSelector = DefaultSendSelector
	}
	if p.ReplySelector == "" {
		p.ReplySelector = DefaultReplySelector
	}
	return p
}

// BrowserError carries a machine-readable code with the message.
type BrowserError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *BrowserError) Error() string {
	return e.Message
}

// Error codes
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNavigation      = "NAVIGATION_ERROR"
	ErrCodeTimeout         = "TIMEOUT_ERROR"
	ErrCodeElementNotFound = "ELEMENT_NOT_FOUND"
	ErrCodeSecurity        = "SECURITY_ERROR"
	ErrCodeBrowserCrash    = "BROWSER_CRASH"
	ErrCodeConfiguration   = "CONFIGURATION_ERROR"
)
