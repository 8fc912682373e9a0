package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Shortener turns a long link into a short one
type Shortener interface {
	Shorten(ctx context.Context, link string) (string, error)
}

// IsgdShortener calls the simple text API of is.gd compatible services
type IsgdShortener struct {
	endpoint string
	client   *http.Client
}

func NewIsgdShortener(endpoint string, timeout time.Duration) *IsgdShortener {
	return &IsgdShortener{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (s *IsgdShortener) Shorten(ctx context.Context, link string) (string, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid shortener url: %w", err)
	}
	q := u.Query()
	q.Set("format", "simple")
	q.Set("url", link)
	u.RawQuery = q.Encode()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	var short string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("shortener returned %s", resp.Status)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("shortener returned %s: %s", resp.Status, strings.TrimSpace(string(body))))
		}

		short = strings.TrimSpace(string(body))
		if !strings.HasPrefix(short, "http") {
			return backoff.Permanent(fmt.Errorf("unexpected shortener response %q", short))
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, 2), ctx)); err != nil {
		return "", err
	}
	return short, nil
}
