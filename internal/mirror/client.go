// Package mirror is the HTTP client for the channel mirror backend. It
// implements the backfill and media-lookup collaborator contracts consumed
// by the engine.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/nekhebet/mirrorfeed/internal/domain"
)

// Client talks to the mirror REST API for one channel.
type Client struct {
	base       string
	channelID  int64
	httpClient *http.Client

	// mediaLimiter throttles media lookups: polling many pending posts
	// must not hammer the backend.
	mediaLimiter *rate.Limiter
}

// NewClient creates a client for the given API base URL and channel.
func NewClient(base string, channelID int64, mediaLookupsPerSec float64) *Client {
	burst := int(mediaLookupsPerSec)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		base:      base,
		channelID: channelID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		mediaLimiter: rate.NewLimiter(rate.Limit(mediaLookupsPerSec), burst),
	}
}

// wirePost is a post record as returned by the backend.
type wirePost struct {
	MessageID int64  `json:"message_id"`
	ChannelID int64  `json:"channel_id"`
	Text      string `json:"text"`
	Date      string `json:"date"`
	EditDate  string `json:"edit_date,omitempty"`
	Views     int    `json:"views"`
	IsEdited  bool   `json:"is_edited"`
	HasMedia  bool   `json:"has_media"`
	MediaType string `json:"media_type,omitempty"`
	MediaURL  string `json:"media_url,omitempty"`
}

type postsResponse struct {
	Posts   []wirePost `json:"posts"`
	HasMore bool       `json:"has_more"`
}

type mediaResponse struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// FetchPosts retrieves one page of channel history. It implements
// domain.BackfillSource.
func (c *Client) FetchPosts(ctx context.Context, offset, limit int) (*domain.BackfillPage, error) {
	url := fmt.Sprintf("%s/api/channel/posts?channel_id=%d&offset=%d&limit=%d", c.base, c.channelID, offset, limit)

	var resp postsResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("fetch posts: %w", err)
	}

	page := &domain.BackfillPage{
		Posts:   make([]*domain.Post, 0, len(resp.Posts)),
		HasMore: resp.HasMore || len(resp.Posts) == limit,
	}
	for _, wp := range resp.Posts {
		page.Posts = append(page.Posts, toDomain(wp))
	}
	return page, nil
}

// FetchMedia looks up the media attached to a message, returning
// domain.ErrMediaNotFound when the backend has no media for it yet. It
// implements domain.MediaSource.
func (c *Client) FetchMedia(ctx context.Context, messageID int64) (*domain.MediaResult, error) {
	if messageID <= 0 {
		return nil, fmt.Errorf("invalid message id %d", messageID)
	}

	if err := c.mediaLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("media rate limit: %w", err)
	}

	url := fmt.Sprintf("%s/api/media/by-message/%d?channel_id=%d", c.base, messageID, c.channelID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrMediaNotFound
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var mr mediaResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if mr.URL == "" {
		return nil, domain.ErrMediaNotFound
	}

	return &domain.MediaResult{
		URL:  mr.URL,
		Kind: domain.InferMediaKind(mr.Type, mr.URL),
	}, nil
}

func (c *Client) getJSON(ctx context.Context, url string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func toDomain(wp wirePost) *domain.Post {
	p := &domain.Post{
		ID:        wp.MessageID,
		ChannelID: wp.ChannelID,
		Text:      wp.Text,
		Views:     wp.Views,
		Edited:    wp.IsEdited,
	}
	if t, err := domain.ParseWireTime(wp.Date); err == nil {
		p.Date = t
	} else {
		p.Date = time.Now()
	}
	if wp.EditDate != "" {
		if t, err := domain.ParseWireTime(wp.EditDate); err == nil {
			p.EditDate = t
		}
	}

	switch {
	case wp.MediaURL != "":
		p.Media = domain.MediaState{
			Status: domain.MediaResolved,
			URL:    wp.MediaURL,
			Kind:   domain.InferMediaKind(wp.MediaType, wp.MediaURL),
		}
	case wp.HasMedia || wp.MediaType != "":
		p.Media = domain.MediaState{
			Status: domain.MediaPending,
			Kind:   domain.InferMediaKind(wp.MediaType, ""),
		}
	}
	return p
}
