package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harun/warden/pkg/agent"
	"github.com/harun/warden/pkg/controlapi"
)

// DefaultClientTimeout is the default timeout for control API requests.
const DefaultClientTimeout = 10 * time.Second

// apiClient talks to a running daemon's control API.
type apiClient struct {
	baseURL string
	secret  string
	http    *http.Client
}

// newAPIClient resolves the address from --addr, then the config file.
func newAPIClient() (*apiClient, error) {
	addr := apiAddr
	secret := ""

	if addr == "" || cfgFile != "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		if addr == "" {
			addr = cfg.Control.Addr()
		}
		secret = cfg.Control.SharedSecret
	}

	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}

	return &apiClient{
		baseURL: strings.TrimRight(addr, "/"),
		secret:  secret,
		http:    &http.Client{Timeout: DefaultClientTimeout},
	}, nil
}

func (c *apiClient) do(method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		req.Header.Set(controlapi.SecretHeader, c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// status fetches the agent status snapshot.
func (c *apiClient) status() (agent.Status, error) {
	var st agent.Status
	data, err := c.do(http.MethodGet, "/api/status", nil)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("failed to parse status: %w", err)
	}
	return st, nil
}

// action posts a lifecycle action and reports the success flag.
func (c *apiClient) action(name string) (bool, error) {
	data, err := c.do(http.MethodPost, "/api/"+name, nil)
	if err != nil {
		return false, err
	}

	var resp struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return false, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp.Success, nil
}
