package browser

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateChatURL checks that rawURL is an http(s) URL and, when
// allowedHosts is set, that its host matches one of them.
func ValidateChatURL(rawURL string, allowedHosts []string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return &BrowserError{
			Code:    ErrCodeValidation,
			Message: fmt.Sprintf("Invalid URL format: %s", rawURL),
		}
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &BrowserError{
			Code:    ErrCodeSecurity,
			Message: fmt.Sprintf("Unsupported URL scheme: %s", parsed.Scheme),
			Details: map[string]interface{}{"url": rawURL},
		}
	}

	if len(allowedHosts) == 0 {
		return nil
	}

	host := parsed.Hostname()
	for _, pattern := range allowedHosts {
		if matchDomain(host, pattern) {
			return nil
		}
	}
	return &BrowserError{
		Code:    ErrCodeSecurity,
		Message: fmt.Sprintf("Domain not in allowed list: %s", host),
		Details: map[string]interface{}{"url": rawURL, "domain": host},
	}
}

// matchDomain supports exact hosts, "*.example.com" and ".example.com".
func matchDomain(host, pattern string) bool {
	if host == pattern {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[2:]
		return strings.HasSuffix(host, "."+suffix) || host == suffix
	}
	if strings.HasPrefix(pattern, ".") {
		return strings.HasSuffix(host, pattern) || host == pattern[1:]
	}
	return false
}

// IsValidSelector rejects empty selectors and obvious script injection.
func IsValidSelector(selector string) bool {
	if strings.TrimSpace(selector) == "" {
		return false
	}

	dangerous := []string{"<script", "javascript:", "onerror=", "onload="}
	lower := strings.ToLower(selector)
	for _, pattern := range dangerous {
		if strings.Contains(lower, pattern) {
			return false
		}
	}
	return true
}

// Validate checks the profile before launch.
func (p Profile) Validate() error {
	if err := ValidateChatURL(p.ChatURL, p.AllowedHosts); err != nil {
		return err
	}

	p = p.withDefaults()
	for name, sel := range map[string]string{
		"input_selector": p.InputSelector,
		"send_selector":  p.SendSelector,
		"reply_selector": p.ReplySelector,
	} {
		if !IsValidSelector(sel) {
			return &BrowserError{
				Code:    ErrCodeValidation,
				Message: fmt.Sprintf("Invalid %s: %q", name, sel),
			}
		}
	}

	if p.CDPPort != 0 && (p.CDPPort < 1024 || p.CDPPort > 65535) {
		return &BrowserError{
			Code:    ErrCodeValidation,
			Message: fmt.Sprintf("CDP port must be between 1024 and 65535, got %d", p.CDPPort),
		}
	}
	return nil
}
