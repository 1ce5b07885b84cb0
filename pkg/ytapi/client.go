package ytapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/L0rd008/ViewTrendsSL-sub001/internal/models"
)

const defaultBaseURL = "https://www.googleapis.com/youtube/v3"

// Shorts cut-off: anything at or under this duration counts as short-form.
const shortFormMaxSeconds = 60

// Client is the raw HTTPS transport for the YouTube Data API. It owns no
// credential state; the executor supplies the reserved secret per call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *RateLimiter
}

// NewClient creates a transport client. limiter may be nil.
func NewClient(limiter *RateLimiter) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: defaultBaseURL,
		limiter: limiter,
	}
}

// SetBaseURL overrides the API base address. Used by tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

// Get performs one physical call against ep using the given secret and
// returns the raw response body. Failures come back as a classified
// *APIError; the quota accounting around the call belongs to the caller.
func (c *Client) Get(ctx context.Context, ep Endpoint, secret string, params url.Values) ([]byte, *APIError) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, ClassifyTransport(ep.Name, secret, err)
		}
	}

	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if q.Get("part") == "" {
		q.Set("part", ep.Part)
	}
	q.Set("key", secret)

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, ep.Path, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, ClassifyTransport(ep.Name, secret, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ClassifyTransport(ep.Name, secret, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ClassifyTransport(ep.Name, secret, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyResponse(ep.Name, resp, body)
	}

	return body, nil
}

// listEnvelope is the common list-response wrapper.
type listEnvelope struct {
	Items         []json.RawMessage `json:"items"`
	NextPageToken string            `json:"nextPageToken"`
	PageInfo      struct {
		TotalResults int `json:"totalResults"`
	} `json:"pageInfo"`
}

type videoResource struct {
	ID      string `json:"id"`
	Snippet struct {
		PublishedAt  time.Time `json:"publishedAt"`
		ChannelID    string    `json:"channelId"`
		Title        string    `json:"title"`
		ChannelTitle string    `json:"channelTitle"`
		CategoryID   string    `json:"categoryId"`
		Tags         []string  `json:"tags"`
	} `json:"snippet"`
	ContentDetails struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
	Statistics struct {
		ViewCount    string `json:"viewCount"`
		LikeCount    string `json:"likeCount"`
		CommentCount string `json:"commentCount"`
	} `json:"statistics"`
}

// ParseVideos decodes a videos.list body into normalized records. Numeric
// fields are guaranteed parsed; an unparsable count fails the whole body
// rather than handing garbage downstream.
func ParseVideos(body []byte) ([]models.Video, string, error) {
	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, "", fmt.Errorf("failed to parse videos response: %w", err)
	}

	videos := make([]models.Video, 0, len(env.Items))
	now := time.Now().UTC()
	for _, raw := range env.Items {
		var res videoResource
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, "", fmt.Errorf("failed to parse video resource: %w", err)
		}
		views, err := parseCount(res.Statistics.ViewCount)
		if err != nil {
			return nil, "", fmt.Errorf("video %s: bad view count: %w", res.ID, err)
		}
		likes, err := parseCount(res.Statistics.LikeCount)
		if err != nil {
			return nil, "", fmt.Errorf("video %s: bad like count: %w", res.ID, err)
		}
		comments, err := parseCount(res.Statistics.CommentCount)
		if err != nil {
			return nil, "", fmt.Errorf("video %s: bad comment count: %w", res.ID, err)
		}
		duration, err := parseISODuration(res.ContentDetails.Duration)
		if err != nil {
			return nil, "", fmt.Errorf("video %s: bad duration %q: %w", res.ID, res.ContentDetails.Duration, err)
		}

		videos = append(videos, models.Video{
			ID:              res.ID,
			Title:           res.Snippet.Title,
			ChannelID:       res.Snippet.ChannelID,
			ChannelTitle:    res.Snippet.ChannelTitle,
			CategoryID:      res.Snippet.CategoryID,
			Tags:            res.Snippet.Tags,
			PublishedAt:     res.Snippet.PublishedAt,
			DurationSeconds: duration,
			IsShort:         duration > 0 && duration <= shortFormMaxSeconds,
			ViewCount:       views,
			LikeCount:       likes,
			CommentCount:    comments,
			FetchedAt:       now,
		})
	}
	return videos, env.NextPageToken, nil
}

type channelResource struct {
	ID      string `json:"id"`
	Snippet struct {
		Title       string    `json:"title"`
		PublishedAt time.Time `json:"publishedAt"`
		Country     string    `json:"country"`
	} `json:"snippet"`
	ContentDetails struct {
		RelatedPlaylists struct {
			Uploads string `json:"uploads"`
		} `json:"relatedPlaylists"`
	} `json:"contentDetails"`
	Statistics struct {
		ViewCount       string `json:"viewCount"`
		SubscriberCount string `json:"subscriberCount"`
		VideoCount      string `json:"videoCount"`
	} `json:"statistics"`
}

// ParseChannels decodes a channels.list body.
func ParseChannels(body []byte) ([]models.Channel, string, error) {
	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, "", fmt.Errorf("failed to parse channels response: %w", err)
	}

	channels := make([]models.Channel, 0, len(env.Items))
	now := time.Now().UTC()
	for _, raw := range env.Items {
		var res channelResource
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, "", fmt.Errorf("failed to parse channel resource: %w", err)
		}
		views, err := parseCount(res.Statistics.ViewCount)
		if err != nil {
			return nil, "", fmt.Errorf("channel %s: bad view count: %w", res.ID, err)
		}
		subs, err := parseCount(res.Statistics.SubscriberCount)
		if err != nil {
			return nil, "", fmt.Errorf("channel %s: bad subscriber count: %w", res.ID, err)
		}
		videos, err := parseCount(res.Statistics.VideoCount)
		if err != nil {
			return nil, "", fmt.Errorf("channel %s: bad video count: %w", res.ID, err)
		}

		channels = append(channels, models.Channel{
			ID:                res.ID,
			Title:             res.Snippet.Title,
			Country:           res.Snippet.Country,
			PublishedAt:       res.Snippet.PublishedAt,
			SubscriberCount:   subs,
			VideoCount:        videos,
			ViewCount:         views,
			UploadsPlaylistID: res.ContentDetails.RelatedPlaylists.Uploads,
			FetchedAt:         now,
		})
	}
	return channels, env.NextPageToken, nil
}

type searchResource struct {
	ID struct {
		Kind      string `json:"kind"`
		VideoID   string `json:"videoId"`
		ChannelID string `json:"channelId"`
	} `json:"id"`
	Snippet struct {
		PublishedAt  time.Time `json:"publishedAt"`
		ChannelID    string    `json:"channelId"`
		Title        string    `json:"title"`
		Description  string    `json:"description"`
		ChannelTitle string    `json:"channelTitle"`
	} `json:"snippet"`
}

// ParseSearchResults decodes a search.list body.
func ParseSearchResults(body []byte) ([]models.SearchResult, string, error) {
	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, "", fmt.Errorf("failed to parse search response: %w", err)
	}

	results := make([]models.SearchResult, 0, len(env.Items))
	for _, raw := range env.Items {
		var res searchResource
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, "", fmt.Errorf("failed to parse search resource: %w", err)
		}
		results = append(results, models.SearchResult{
			VideoID:      res.ID.VideoID,
			ChannelID:    res.Snippet.ChannelID,
			Title:        res.Snippet.Title,
			Description:  res.Snippet.Description,
			ChannelTitle: res.Snippet.ChannelTitle,
			PublishedAt:  res.Snippet.PublishedAt,
		})
	}
	return results, env.NextPageToken, nil
}

type playlistItemResource struct {
	Snippet struct {
		PublishedAt time.Time `json:"publishedAt"`
		PlaylistID  string    `json:"playlistId"`
		Position    int64     `json:"position"`
		ResourceID  struct {
			VideoID string `json:"videoId"`
		} `json:"resourceId"`
	} `json:"snippet"`
	ContentDetails struct {
		VideoID string `json:"videoId"`
	} `json:"contentDetails"`
}

// ParsePlaylistItems decodes a playlistItems.list body.
func ParsePlaylistItems(body []byte) ([]models.PlaylistItem, string, error) {
	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, "", fmt.Errorf("failed to parse playlist items response: %w", err)
	}

	items := make([]models.PlaylistItem, 0, len(env.Items))
	for _, raw := range env.Items {
		var res playlistItemResource
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, "", fmt.Errorf("failed to parse playlist item: %w", err)
		}
		videoID := res.ContentDetails.VideoID
		if videoID == "" {
			videoID = res.Snippet.ResourceID.VideoID
		}
		items = append(items, models.PlaylistItem{
			VideoID:     videoID,
			PlaylistID:  res.Snippet.PlaylistID,
			Position:    res.Snippet.Position,
			PublishedAt: res.Snippet.PublishedAt,
		})
	}
	return items, env.NextPageToken, nil
}

type commentThreadResource struct {
	ID      string `json:"id"`
	Snippet struct {
		VideoID         string `json:"videoId"`
		TotalReplyCount int64  `json:"totalReplyCount"`
		TopLevelComment struct {
			Snippet commentSnippet `json:"snippet"`
		} `json:"topLevelComment"`
	} `json:"snippet"`
}

type commentSnippet struct {
	ParentID          string    `json:"parentId"`
	TextDisplay       string    `json:"textDisplay"`
	AuthorDisplayName string    `json:"authorDisplayName"`
	LikeCount         int64     `json:"likeCount"`
	PublishedAt       time.Time `json:"publishedAt"`
}

// ParseCommentThreads decodes a commentThreads.list body.
func ParseCommentThreads(body []byte) ([]models.CommentThread, string, error) {
	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, "", fmt.Errorf("failed to parse comment threads response: %w", err)
	}

	threads := make([]models.CommentThread, 0, len(env.Items))
	for _, raw := range env.Items {
		var res commentThreadResource
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, "", fmt.Errorf("failed to parse comment thread: %w", err)
		}
		top := res.Snippet.TopLevelComment.Snippet
		threads = append(threads, models.CommentThread{
			ID:          res.ID,
			VideoID:     res.Snippet.VideoID,
			Author:      top.AuthorDisplayName,
			Text:        top.TextDisplay,
			LikeCount:   top.LikeCount,
			ReplyCount:  res.Snippet.TotalReplyCount,
			PublishedAt: top.PublishedAt,
		})
	}
	return threads, env.NextPageToken, nil
}

type commentResource struct {
	ID      string         `json:"id"`
	Snippet commentSnippet `json:"snippet"`
}

// ParseComments decodes a comments.list body.
func ParseComments(body []byte) ([]models.Comment, string, error) {
	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, "", fmt.Errorf("failed to parse comments response: %w", err)
	}

	comments := make([]models.Comment, 0, len(env.Items))
	for _, raw := range env.Items {
		var res commentResource
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, "", fmt.Errorf("failed to parse comment: %w", err)
		}
		comments = append(comments, models.Comment{
			ID:          res.ID,
			ParentID:    res.Snippet.ParentID,
			Author:      res.Snippet.AuthorDisplayName,
			Text:        res.Snippet.TextDisplay,
			LikeCount:   res.Snippet.LikeCount,
			PublishedAt: res.Snippet.PublishedAt,
		})
	}
	return comments, env.NextPageToken, nil
}

// parseCount converts the provider's string-encoded counters. A missing
// field counts as zero; hidden counters (e.g. likes disabled) come back
// absent, not malformed.
func parseCount(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// parseISODuration converts an ISO-8601 duration (PT1H2M3S, P1DT2H) to
// seconds. Live streams report an empty or zero duration.
func parseISODuration(s string) (int64, error) {
	if s == "" || s == "P0D" {
		return 0, nil
	}
	if len(s) < 2 || s[0] != 'P' {
		return 0, fmt.Errorf("not an ISO-8601 duration")
	}

	var total int64
	var num int64
	inTime := false
	hasDigit := false
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9':
			num = num*10 + int64(r-'0')
			hasDigit = true
		case r == 'T':
			inTime = true
		case r == 'D':
			total += num * 86400
			num = 0
		case r == 'H' && inTime:
			total += num * 3600
			num = 0
		case r == 'M' && inTime:
			total += num * 60
			num = 0
		case r == 'S' && inTime:
			total += num
			num = 0
		case r == 'W':
			total += num * 7 * 86400
			num = 0
		default:
			return 0, fmt.Errorf("unexpected %q", r)
		}
	}
	if !hasDigit {
		return 0, fmt.Errorf("no digits")
	}
	return total, nil
}
