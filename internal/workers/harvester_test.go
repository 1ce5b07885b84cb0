package workers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/L0rd008/ViewTrendsSL-sub001/internal/config"
	"github.com/L0rd008/ViewTrendsSL-sub001/internal/models"
	"github.com/L0rd008/ViewTrendsSL-sub001/internal/quota"
	"github.com/L0rd008/ViewTrendsSL-sub001/pkg/ytapi"
)

type captureSink struct {
	byChannel map[string][]models.Video
}

func (s *captureSink) StoreVideos(_ context.Context, channelID string, videos []models.Video) error {
	if s.byChannel == nil {
		s.byChannel = make(map[string][]models.Video)
	}
	s.byChannel[channelID] = append(s.byChannel[channelID], videos...)
	return nil
}

func TestHarvester_RefreshesTrackedChannels(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/channels":
			id := r.URL.Query().Get("id")
			fmt.Fprintf(w, `{"items":[{
				"id": %q,
				"snippet": {"title": "c", "publishedAt": "2020-01-01T00:00:00Z"},
				"contentDetails": {"relatedPlaylists": {"uploads": "UU-%s"}},
				"statistics": {"viewCount": "1", "subscriberCount": "1", "videoCount": "1"}
			}]}`, id, id)
		case "/playlistItems":
			pl := r.URL.Query().Get("playlistId")
			fmt.Fprintf(w, `{"items":[{"snippet": {"playlistId": %q, "position": 0}, "contentDetails": {"videoId": "vid-of-%s"}}]}`, pl, pl)
		case "/videos":
			id := r.URL.Query().Get("id")
			fmt.Fprintf(w, `{"items":[{
				"id": %q,
				"snippet": {"publishedAt": "2026-08-01T00:00:00Z", "channelId": "c", "title": "t"},
				"contentDetails": {"duration": "PT2M"},
				"statistics": {"viewCount": "10", "likeCount": "1", "commentCount": "0"}
			}]}`, id)
		default:
			http.Error(w, "unexpected path", http.StatusBadRequest)
		}
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ledger, err := quota.NewLedger(context.Background(), quota.NewMemoryStore(),
		map[string]string{"a": "secret-a"}, 1000)
	require.NoError(t, err)

	client := ytapi.NewClient(nil)
	client.SetBaseURL(srv.URL)
	exec := ytapi.NewExecutor(ledger, client)
	planner := ytapi.NewPlanner(exec, ledger)

	sink := &captureSink{}
	h := NewHarvester(planner, sink, &config.Config{
		TrackedChannels: []string{"UC-one", "UC-two"},
		MaxVideosPerRun: 10,
		HarvestInterval: time.Hour,
	})

	h.runOnce(context.Background())

	require.Len(t, sink.byChannel, 2)
	require.Len(t, sink.byChannel["UC-one"], 1)
	assert.Equal(t, "vid-of-UU-UC-one", sink.byChannel["UC-one"][0].ID)
}

func TestHarvester_StopsWhenPoolIsDrained(t *testing.T) {
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"items":[]}`))
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	// 10 videos per channel needs 3 units; a 2-unit pool can cover nothing.
	ledger, err := quota.NewLedger(context.Background(), quota.NewMemoryStore(),
		map[string]string{"a": "secret-a"}, 2)
	require.NoError(t, err)

	client := ytapi.NewClient(nil)
	client.SetBaseURL(srv.URL)
	planner := ytapi.NewPlanner(ytapi.NewExecutor(ledger, client), ledger)

	sink := &captureSink{}
	h := NewHarvester(planner, sink, &config.Config{
		TrackedChannels: []string{"UC-one", "UC-two", "UC-three"},
		MaxVideosPerRun: 10,
		HarvestInterval: time.Hour,
	})

	h.runOnce(context.Background())

	assert.Zero(t, calls, "a drained pool must stop the run before any HTTP call")
	assert.Empty(t, sink.byChannel)
}
