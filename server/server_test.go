package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"rssnotify/commands"
	"rssnotify/models"
	"rssnotify/server"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	feeds map[string]string
}

func (f *fakeBackend) Feeds(ctx context.Context) (map[string]string, error) {
	return f.feeds, nil
}

func (f *fakeBackend) Subscriptions(ctx context.Context) (map[string][]string, error) {
	return map[string][]string{}, nil
}

func (f *fakeBackend) AddFeeds(ctx context.Context, urls []string) ([]models.Feed, error) {
	out := make([]models.Feed, 0, len(urls))
	for _, url := range urls {
		f.feeds["abc123"] = url
		out = append(out, models.Feed{ID: "abc123", URL: url})
	}
	return out, nil
}

func (f *fakeBackend) RemoveFeeds(ctx context.Context, ids []string) ([]string, []string, error) {
	return nil, ids, nil
}

func (f *fakeBackend) Subscribe(ctx context.Context, id string, channels []string) (bool, error) {
	return false, nil
}

func (f *fakeBackend) Unsubscribe(ctx context.Context, id string, channels []string) ([]string, []string, bool, error) {
	return nil, nil, false, nil
}

func (f *fakeBackend) Check(ctx context.Context) ([]models.CheckResult, error) {
	return nil, nil
}

const adminToken = "s3cret"

func newApp() *fiber.App {
	return server.Server(&server.ServerConfig{
		Handler:     commands.NewHandler(&fakeBackend{feeds: map[string]string{}}),
		Broadcaster: server.NewBroadcaster(),
		AdminToken:  adminToken,
	})
}

func TestCommandEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		command    string
		body       string
		token      string
		wantStatus int
		wantOutput string
		wantError  string
	}{
		{
			name:       "list feeds without admin",
			command:    "list-feeds",
			wantStatus: fiber.StatusOK,
			wantOutput: "No feeds registered.",
		},
		{
			name:       "add feed as admin",
			command:    "add-feed",
			body:       `{"args":["https://example.com/rss"]}`,
			token:      adminToken,
			wantStatus: fiber.StatusOK,
			wantOutput: "Added feeds:\nabc123: https://example.com/rss",
		},
		{
			name:       "add feed with wrong token",
			command:    "add-feed",
			body:       `{"args":["https://example.com/rss"]}`,
			token:      "guess",
			wantStatus: fiber.StatusForbidden,
			wantError:  "command requires admin",
		},
		{
			name:       "missing arguments",
			command:    "subscribe",
			body:       `{"args":["abc123"]}`,
			token:      adminToken,
			wantStatus: fiber.StatusBadRequest,
			wantError:  "usage",
		},
		{
			name:       "unknown command",
			command:    "frobnicate",
			wantStatus: fiber.StatusNotFound,
			wantError:  "unknown command",
		},
		{
			name:       "malformed body",
			command:    "add-feed",
			body:       `{"args":`,
			token:      adminToken,
			wantStatus: fiber.StatusBadRequest,
			wantError:  "invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp()

			req := httptest.NewRequest("POST", "/commands/"+tt.command, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var out server.CommandResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			assert.Equal(t, tt.wantOutput, out.Output)
			assert.Contains(t, out.Error, tt.wantError)
		})
	}
}

func TestEmptyAdminTokenDisablesAdmin(t *testing.T) {
	app := server.Server(&server.ServerConfig{
		Handler:     commands.NewHandler(&fakeBackend{feeds: map[string]string{}}),
		Broadcaster: server.NewBroadcaster(),
	})

	req := httptest.NewRequest("POST", "/commands/check", nil)
	req.Header.Set("Authorization", "Bearer ")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	app := newApp()

	resp, err := app.Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "rssnotify_sse_clients")
}

func TestClient(t *testing.T) {
	app := newApp()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	t.Cleanup(func() { app.ShutdownWithTimeout(time.Second) })

	baseURL := "http://" + ln.Addr().String()
	ctx := context.Background()

	out, err := server.NewClient(baseURL, adminToken).Execute(ctx, "add-feed", []string{"https://example.com/rss"})
	require.NoError(t, err)
	assert.Equal(t, "Added feeds:\nabc123: https://example.com/rss", out)

	out, err = server.NewClient(baseURL, "").Execute(ctx, "list-feeds", nil)
	require.NoError(t, err)
	assert.Equal(t, "abc123: https://example.com/rss", out)

	_, err = server.NewClient(baseURL, "").Execute(ctx, "remove-feed", []string{"abc123"})
	assert.ErrorIs(t, err, commands.ErrNotAdmin)

	_, err = server.NewClient(baseURL, adminToken).Execute(ctx, "nope", nil)
	assert.ErrorIs(t, err, commands.ErrUnknownCommand)
}
