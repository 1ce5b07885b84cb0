package ytapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/L0rd008/ViewTrendsSL-sub001/internal/quota"
	"github.com/L0rd008/ViewTrendsSL-sub001/pkg/ytapi"
)

type plannerFixture struct {
	planner *ytapi.Planner
	ledger  *quota.Ledger
}

func newPlanner(t *testing.T, handler http.Handler, secrets map[string]string, dailyQuota int64) *plannerFixture {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ledger, err := quota.NewLedger(context.Background(), quota.NewMemoryStore(), secrets, dailyQuota)
	require.NoError(t, err)

	client := ytapi.NewClient(nil)
	client.SetBaseURL(srv.URL)
	exec := ytapi.NewExecutor(ledger, client)
	exec.SetMaxRetries(0) // batch tests exercise planning, not backoff
	return &plannerFixture{planner: ytapi.NewPlanner(exec, ledger), ledger: ledger}
}

// videoItemsFor fabricates a videos.list body echoing the requested ids,
// skipping any id listed in absent.
func videoItemsFor(idParam string, absent map[string]bool) []byte {
	var items []string
	for _, id := range strings.Split(idParam, ",") {
		if absent[id] {
			continue
		}
		items = append(items, fmt.Sprintf(`{
			"id": %q,
			"snippet": {"publishedAt": "2026-08-01T00:00:00Z", "channelId": "chan", "title": "t"},
			"contentDetails": {"duration": "PT2M"},
			"statistics": {"viewCount": "10", "likeCount": "1", "commentCount": "0"}
		}`, id))
	}
	return []byte(fmt.Sprintf(`{"items":[%s]}`, strings.Join(items, ",")))
}

func TestGetVideos_ChunksAt50(t *testing.T) {
	var calls int
	var batchSizes []int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		ids := r.URL.Query().Get("id")
		batchSizes = append(batchSizes, len(strings.Split(ids, ",")))
		w.Write(videoItemsFor(ids, map[string]bool{"vid-7": true}))
	})

	f := newPlanner(t, handler, map[string]string{"a": "secret-a"}, 100)

	ids := make([]string, 120)
	want := make(map[string]bool, 119)
	for i := range ids {
		ids[i] = fmt.Sprintf("vid-%d", i)
		if i != 7 {
			want[ids[i]] = true
		}
	}

	videos, err := f.planner.GetVideos(context.Background(), ids)
	require.NoError(t, err)

	assert.Equal(t, 3, calls, "120 ids at 50 per call is exactly 3 chunks")
	assert.Equal(t, []int{50, 50, 20}, batchSizes)

	got := make(map[string]bool, len(videos))
	for _, v := range videos {
		got[v.ID] = true
	}
	assert.Equal(t, want, got, "result set is the request set minus genuinely absent ids")

	// 3 chunk calls at 1 unit each.
	usage, err := f.ledger.CurrentUsage("a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), usage.Used)
}

func TestGetVideos_ReportsFailuresPerChunk(t *testing.T) {
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 2 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write(videoItemsFor(r.URL.Query().Get("id"), nil))
	})

	f := newPlanner(t, handler, map[string]string{"a": "secret-a"}, 100)

	ids := make([]string, 120)
	for i := range ids {
		ids[i] = fmt.Sprintf("vid-%d", i)
	}

	videos, err := f.planner.GetVideos(context.Background(), ids)
	require.Error(t, err)

	var chunkErr *ytapi.ChunkError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 1, chunkErr.Chunk, "the failing chunk is named precisely")
	assert.Len(t, chunkErr.IDs, 50)

	// Sibling chunks keep their results.
	assert.Len(t, videos, 70)
	assert.Equal(t, 3, calls)
}

func TestSearch_FollowsContinuationToken(t *testing.T) {
	page := func(start, n int, next string) []byte {
		var items []string
		for i := start; i < start+n; i++ {
			items = append(items, fmt.Sprintf(`{
				"id": {"kind": "youtube#video", "videoId": "vid-%d"},
				"snippet": {"publishedAt": "2026-08-01T00:00:00Z", "channelId": "c", "title": "t"}
			}`, i))
		}
		body := map[string]any{}
		_ = json.Unmarshal([]byte(fmt.Sprintf(`{"items":[%s]}`, strings.Join(items, ","))), &body)
		if next != "" {
			body["nextPageToken"] = next
		}
		out, _ := json.Marshal(body)
		return out
	}

	var calls int
	var tokens []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		tokens = append(tokens, r.URL.Query().Get("pageToken"))
		if calls == 1 {
			w.Write(page(0, 50, "tok-2"))
			return
		}
		w.Write(page(50, 50, ""))
	})

	f := newPlanner(t, handler, map[string]string{"a": "secret-a"}, 1000)

	results, err := f.planner.Search(context.Background(), "sri lanka news", 80)
	require.NoError(t, err)
	assert.Len(t, results, 80)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"", "tok-2"}, tokens)

	// Two pages at the flat search cost.
	usage, err := f.ledger.CurrentUsage("a")
	require.NoError(t, err)
	assert.Equal(t, int64(200), usage.Used)
}

func TestGetChannelVideos_ThreePhaseFlow(t *testing.T) {
	var paths []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/channels":
			w.Write([]byte(`{"items":[{
				"id": "chan-1",
				"snippet": {"title": "c", "publishedAt": "2020-01-01T00:00:00Z"},
				"contentDetails": {"relatedPlaylists": {"uploads": "UUchan1"}},
				"statistics": {"viewCount": "1", "subscriberCount": "1", "videoCount": "2"}
			}]}`))
		case "/playlistItems":
			assert.Equal(t, "UUchan1", r.URL.Query().Get("playlistId"))
			w.Write([]byte(`{"items":[
				{"snippet": {"playlistId": "UUchan1", "position": 0}, "contentDetails": {"videoId": "vid-1"}},
				{"snippet": {"playlistId": "UUchan1", "position": 1}, "contentDetails": {"videoId": "vid-2"}}
			]}`))
		case "/videos":
			w.Write(videoItemsFor(r.URL.Query().Get("id"), nil))
		default:
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusBadRequest)
		}
	})

	f := newPlanner(t, handler, map[string]string{"a": "secret-a"}, 100)

	videos, err := f.planner.GetChannelVideos(context.Background(), "chan-1", 10)
	require.NoError(t, err)
	require.Len(t, videos, 2)
	assert.Equal(t, []string{"/channels", "/playlistItems", "/videos"}, paths)
}

func TestGetChannelVideos_FailsFastWhenPoolCannotCoverIt(t *testing.T) {
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"items":[]}`))
	})

	// 200 videos needs 1 + 4 + 4 = 9 units; the pool only has 5.
	f := newPlanner(t, handler, map[string]string{"a": "secret-a"}, 5)

	_, err := f.planner.GetChannelVideos(context.Background(), "chan-1", 200)
	require.ErrorIs(t, err, quota.ErrInsufficientQuota)
	assert.Equal(t, 0, calls, "the doomed flow must not burn any budget")
}

func TestCanAfford(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	f := newPlanner(t, handler, map[string]string{"a": "secret-a"}, 150)

	ok, cost := f.planner.CanAfford("search.list", 50)
	assert.True(t, ok)
	assert.Equal(t, int64(100), cost)

	ok, cost = f.planner.CanAfford("search.list", 100)
	assert.False(t, ok)
	assert.Equal(t, int64(200), cost)
}
