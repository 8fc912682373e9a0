package bluesky

import (
	"context"
	"fmt"
	"rssnotify/models"
	"strings"
	"time"
)

// Poster publishes a post, implemented by Client
type Poster interface {
	Handle() string
	CreatePost(ctx context.Context, text, link string, createdAt time.Time) (string, error)
}

// Sender delivers messages for bsky:<handle> channels. Only the handle of the
// logged in account can be posted to.
type Sender struct {
	poster Poster
}

func NewSender(poster Poster) *Sender {
	return &Sender{poster: poster}
}

func (s *Sender) Send(ctx context.Context, target string, msg models.Message) error {
	handle := strings.TrimPrefix(target, "@")
	if !strings.EqualFold(handle, s.poster.Handle()) {
		return fmt.Errorf("cannot post as %s, logged in as %s", handle, s.poster.Handle())
	}

	_, err := s.poster.CreatePost(ctx, TruncatePost(msg.Text, msg.Link), msg.Link, msg.SentAt)
	return err
}

// TruncatePost shortens text to MaxPostLength characters. When the link sits at the
// end of the text the preceding part is cut instead so the link stays intact.
func TruncatePost(text, link string) string {
	runes := []rune(text)
	if len(runes) <= MaxPostLength {
		return text
	}

	const ellipsis = "…"
	if link != "" && strings.HasSuffix(text, link) {
		linkRunes := len([]rune(link))
		keep := MaxPostLength - linkRunes - 2
		if keep > 0 {
			head := []rune(strings.TrimSuffix(text, link))
			return string(head[:keep]) + ellipsis + " " + link
		}
	}
	return string(runes[:MaxPostLength-1]) + ellipsis
}
