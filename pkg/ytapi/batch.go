package ytapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/L0rd008/ViewTrendsSL-sub001/internal/models"
	"github.com/L0rd008/ViewTrendsSL-sub001/internal/quota"
)

// ChunkError reports exactly which chunk of a batch operation failed.
// Completed sibling chunks keep their results; the caller decides what to
// re-queue.
type ChunkError struct {
	Chunk int
	IDs   []string
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("ytapi: chunk %d (%d ids) failed: %v", e.Chunk, len(e.IDs), e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// Planner splits large logical operations into physical calls that
// respect per-endpoint batch limits, and wraps multi-call flows.
type Planner struct {
	exec   *Executor
	ledger *quota.Ledger
}

// NewPlanner wires a planner to its executor and ledger.
func NewPlanner(exec *Executor, ledger *quota.Ledger) *Planner {
	return &Planner{exec: exec, ledger: ledger}
}

// CanAfford is the operator-facing pre-flight check: whether the combined
// remaining quota covers fetching itemCount items from the named endpoint,
// and what it would cost.
func (p *Planner) CanAfford(endpointName string, itemCount int) (bool, int64) {
	units, _, known := EstimateCost(endpointName, itemCount)
	if !known {
		log.Warn().Str("endpoint", endpointName).Msg("Cost estimate requested for unknown endpoint")
	}
	return p.ledger.TotalRemaining() >= units, units
}

func chunkIDs(ids []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// GetVideos fetches full video records for the given ids, one call per
// chunk of at most MaxItemsPerCall. Each chunk runs its own independent
// select/reserve/retry cycle; failures are reported per chunk alongside
// the successes already gathered. Genuinely absent ids are simply missing
// from the result, and input ordering is not guaranteed.
func (p *Planner) GetVideos(ctx context.Context, ids []string) ([]models.Video, error) {
	ep := EndpointVideos
	var videos []models.Video
	var errs []error

	for i, chunk := range chunkIDs(ids, ep.MaxItemsPerCall) {
		params := url.Values{}
		params.Set("id", strings.Join(chunk, ","))
		params.Set("maxResults", strconv.Itoa(len(chunk)))

		body, err := p.exec.Do(ctx, ep, params)
		if err != nil {
			errs = append(errs, &ChunkError{Chunk: i, IDs: chunk, Err: err})
			continue
		}
		parsed, _, err := ParseVideos(body)
		if err != nil {
			errs = append(errs, &ChunkError{Chunk: i, IDs: chunk, Err: err})
			continue
		}
		videos = append(videos, parsed...)
	}
	return videos, errors.Join(errs...)
}

// GetChannels fetches full channel records for the given ids, chunked the
// same way as GetVideos.
func (p *Planner) GetChannels(ctx context.Context, ids []string) ([]models.Channel, error) {
	ep := EndpointChannels
	var channels []models.Channel
	var errs []error

	for i, chunk := range chunkIDs(ids, ep.MaxItemsPerCall) {
		params := url.Values{}
		params.Set("id", strings.Join(chunk, ","))
		params.Set("maxResults", strconv.Itoa(len(chunk)))

		body, err := p.exec.Do(ctx, ep, params)
		if err != nil {
			errs = append(errs, &ChunkError{Chunk: i, IDs: chunk, Err: err})
			continue
		}
		parsed, _, err := ParseChannels(body)
		if err != nil {
			errs = append(errs, &ChunkError{Chunk: i, IDs: chunk, Err: err})
			continue
		}
		channels = append(channels, parsed...)
	}
	return channels, errors.Join(errs...)
}

// Search pages through search results at the endpoint's flat per-page
// cost, following the continuation token until maxItems are gathered or
// the pages run out.
func (p *Planner) Search(ctx context.Context, query string, maxItems int) ([]models.SearchResult, error) {
	ep := EndpointSearch
	var results []models.SearchResult
	pageToken := ""

	for len(results) < maxItems {
		params := url.Values{}
		params.Set("q", query)
		params.Set("type", "video")
		params.Set("maxResults", strconv.Itoa(pageSize(ep, maxItems-len(results))))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		body, err := p.exec.Do(ctx, ep, params)
		if err != nil {
			return results, err
		}
		page, next, err := ParseSearchResults(body)
		if err != nil {
			return results, err
		}
		results = append(results, page...)
		if next == "" || len(page) == 0 {
			break
		}
		pageToken = next
	}
	if len(results) > maxItems {
		results = results[:maxItems]
	}
	return results, nil
}

// GetPlaylistItems pages through a playlist until maxItems entries are
// gathered or the playlist ends.
func (p *Planner) GetPlaylistItems(ctx context.Context, playlistID string, maxItems int) ([]models.PlaylistItem, error) {
	ep := EndpointPlaylistItems
	var items []models.PlaylistItem
	pageToken := ""

	for len(items) < maxItems {
		params := url.Values{}
		params.Set("playlistId", playlistID)
		params.Set("maxResults", strconv.Itoa(pageSize(ep, maxItems-len(items))))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		body, err := p.exec.Do(ctx, ep, params)
		if err != nil {
			return items, err
		}
		page, next, err := ParsePlaylistItems(body)
		if err != nil {
			return items, err
		}
		items = append(items, page...)
		if next == "" || len(page) == 0 {
			break
		}
		pageToken = next
	}
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items, nil
}

// GetCommentThreads pages through a video's top-level comments.
func (p *Planner) GetCommentThreads(ctx context.Context, videoID string, maxItems int) ([]models.CommentThread, error) {
	ep := EndpointCommentThreads
	var threads []models.CommentThread
	pageToken := ""

	for len(threads) < maxItems {
		params := url.Values{}
		params.Set("videoId", videoID)
		params.Set("maxResults", strconv.Itoa(pageSize(ep, maxItems-len(threads))))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		body, err := p.exec.Do(ctx, ep, params)
		if err != nil {
			return threads, err
		}
		page, next, err := ParseCommentThreads(body)
		if err != nil {
			return threads, err
		}
		threads = append(threads, page...)
		if next == "" || len(page) == 0 {
			break
		}
		pageToken = next
	}
	if len(threads) > maxItems {
		threads = threads[:maxItems]
	}
	return threads, nil
}

// GetComments pages through the replies under a comment thread.
func (p *Planner) GetComments(ctx context.Context, parentID string, maxItems int) ([]models.Comment, error) {
	ep := EndpointComments
	var comments []models.Comment
	pageToken := ""

	for len(comments) < maxItems {
		params := url.Values{}
		params.Set("parentId", parentID)
		params.Set("maxResults", strconv.Itoa(pageSize(ep, maxItems-len(comments))))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		body, err := p.exec.Do(ctx, ep, params)
		if err != nil {
			return comments, err
		}
		page, next, err := ParseComments(body)
		if err != nil {
			return comments, err
		}
		comments = append(comments, page...)
		if next == "" || len(page) == 0 {
			break
		}
		pageToken = next
	}
	if len(comments) > maxItems {
		comments = comments[:maxItems]
	}
	return comments, nil
}

// GetChannelVideos runs the three-phase channel listing flow: resolve the
// channel's uploads playlist (1 call), page through it, then batch-resolve
// full video records. The conservative total cost is checked up front
// against the combined remaining quota so a doomed flow fails fast instead
// of burning part of the budget.
func (p *Planner) GetChannelVideos(ctx context.Context, channelID string, maxVideos int) ([]models.Video, error) {
	if maxVideos <= 0 {
		return nil, nil
	}

	_, pages, _ := EstimateCost(EndpointPlaylistItems.Name, maxVideos)
	chunkUnits, _, _ := EstimateCost(EndpointVideos.Name, maxVideos)
	estimate := EndpointChannels.FixedCost +
		int64(pages)*EndpointPlaylistItems.FixedCost +
		chunkUnits

	if remaining := p.ledger.TotalRemaining(); remaining < estimate {
		return nil, fmt.Errorf("ytapi: channel listing needs %d units but only %d remain: %w",
			estimate, remaining, quota.ErrInsufficientQuota)
	}

	// Phase 1: resolve the uploads playlist.
	channels, err := p.GetChannels(ctx, []string{channelID})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve channel %s: %w", channelID, err)
	}
	if len(channels) == 0 {
		return nil, &APIError{Kind: KindNotFound, Resource: "channel",
			Endpoint: EndpointChannels.Name, Message: "channel not found: " + channelID}
	}
	uploads := channels[0].UploadsPlaylistID
	if uploads == "" {
		return nil, &APIError{Kind: KindNotFound, Resource: "playlist",
			Endpoint: EndpointChannels.Name, Message: "channel has no uploads playlist: " + channelID}
	}

	// Phase 2: page the playlist.
	items, err := p.GetPlaylistItems(ctx, uploads, maxVideos)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if it.VideoID != "" {
			ids = append(ids, it.VideoID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// Phase 3: batch-resolve full records.
	return p.GetVideos(ctx, ids)
}

func pageSize(ep Endpoint, remaining int) int {
	if remaining > ep.MaxItemsPerCall {
		return ep.MaxItemsPerCall
	}
	if remaining < 1 {
		return 1
	}
	return remaining
}
