package bluesky

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/labstack/gommon/log"
)

const DefaultPDSHost = "https://bsky.social"

// MaxPostLength is the longest post text accepted by Bluesky, counted in characters
const MaxPostLength = 300

type Credentials struct {
	Identifier string
	Password   string
}

type Client struct {
	xrpc *xrpc.Client
}

func ClientFromCredentials(ctx context.Context, host string, creds *Credentials) (*Client, error) {
	auth, err := atproto.ServerCreateSession(ctx, &xrpc.Client{Host: host}, &atproto.ServerCreateSession_Input{
		Identifier: creds.Identifier,
		Password:   creds.Password,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	xrpcClient := &xrpc.Client{
		Host: host,
		Auth: &xrpc.AuthInfo{
			AccessJwt:  auth.AccessJwt,
			RefreshJwt: auth.RefreshJwt,
			Handle:     auth.Handle,
			Did:        auth.Did,
		},
		Client: http.DefaultClient,
	}

	return &Client{xrpc: xrpcClient}, nil
}

// Handle is the handle of the authenticated account
func (c *Client) Handle() string {
	return c.xrpc.Auth.Handle
}

// CreatePost publishes text on the authenticated account. When link occurs in the
// text it is attached as a link facet so it renders clickable.
func (c *Client) CreatePost(ctx context.Context, text, link string, createdAt time.Time) (string, error) {
	post := &bsky.FeedPost{
		Text:      text,
		CreatedAt: FormatTime(createdAt.UTC()),
	}
	if facet := linkFacet(text, link); facet != nil {
		post.Facets = []*bsky.RichtextFacet{facet}
	}

	input := &atproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.post",
		Repo:       c.xrpc.Auth.Did,
		Record: &lexutil.LexiconTypeDecoder{
			Val: post,
		},
	}

	out, err := atproto.RepoCreateRecord(ctx, c.xrpc, input)
	if isAuthError(err) {
		// Access tokens are short lived, refresh once and retry
		if refreshErr := c.refresh(ctx); refreshErr != nil {
			return "", fmt.Errorf("failed to refresh session: %w", refreshErr)
		}
		out, err = atproto.RepoCreateRecord(ctx, c.xrpc, input)
	}
	if err != nil {
		// Display the entire http response error so we can see what went wrong
		log.Errorf("failed to create post: %s", err)
		return "", fmt.Errorf("failed to create post: %w", err)
	}
	return out.Uri, nil
}

func (c *Client) refresh(ctx context.Context) error {
	refreshClient := &xrpc.Client{
		Host:   c.xrpc.Host,
		Client: c.xrpc.Client,
		Auth: &xrpc.AuthInfo{
			AccessJwt:  c.xrpc.Auth.RefreshJwt,
			RefreshJwt: c.xrpc.Auth.RefreshJwt,
			Handle:     c.xrpc.Auth.Handle,
			Did:        c.xrpc.Auth.Did,
		},
	}

	auth, err := atproto.ServerRefreshSession(ctx, refreshClient)
	if err != nil {
		return err
	}
	c.xrpc.Auth.AccessJwt = auth.AccessJwt
	c.xrpc.Auth.RefreshJwt = auth.RefreshJwt
	return nil
}

func isAuthError(err error) bool {
	var xrpcErr *xrpc.Error
	if !errors.As(err, &xrpcErr) {
		return false
	}
	return xrpcErr.StatusCode == http.StatusUnauthorized || xrpcErr.StatusCode == http.StatusBadRequest
}

// linkFacet marks the byte range of link inside text
func linkFacet(text, link string) *bsky.RichtextFacet {
	if link == "" {
		return nil
	}
	start := strings.Index(text, link)
	if start < 0 {
		return nil
	}
	return &bsky.RichtextFacet{
		Index: &bsky.RichtextFacet_ByteSlice{
			ByteStart: int64(start),
			ByteEnd:   int64(start + len(link)),
		},
		Features: []*bsky.RichtextFacet_Features_Elem{
			{RichtextFacet_Link: &bsky.RichtextFacet_Link{Uri: link}},
		},
	}
}

// FormatTime formats a time.Time into the format expected by AT Protocol
func FormatTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000Z")
}
