package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"rssnotify/commands"
	"strings"
	"time"
)

// Client runs commands on a running server
type Client struct {
	baseURL    string
	adminToken string
	httpClient *http.Client
}

func NewClient(baseURL, adminToken string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		adminToken: adminToken,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// RemoteError is a command failure reported by the server. It unwraps to the
// matching commands error for the response status.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusForbidden:
		return commands.ErrNotAdmin
	case http.StatusBadRequest:
		return commands.ErrUsage
	case http.StatusNotFound:
		return commands.ErrUnknownCommand
	default:
		return nil
	}
}

// Execute runs the named command with args and returns its output
func (c *Client) Execute(ctx context.Context, name string, args []string) (string, error) {
	body, err := json.Marshal(CommandRequest{Args: args})
	if err != nil {
		return "", err
	}

	endpoint := c.baseURL + "/commands/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("cannot reach server at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	var out CommandResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("invalid response from server (%s): %w", resp.Status, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := out.Error
		if msg == "" {
			msg = resp.Status
		}
		return "", &RemoteError{StatusCode: resp.StatusCode, Message: msg}
	}
	return out.Output, nil
}
