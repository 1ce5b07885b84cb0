package ytapi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/L0rd008/ViewTrendsSL-sub001/pkg/ytapi"
)

func TestEstimateCost_ZeroItems(t *testing.T) {
	units, calls, known := ytapi.EstimateCost("videos.list", 0)
	assert.True(t, known)
	assert.Equal(t, int64(0), units)
	assert.Equal(t, 0, calls)
}

func TestEstimateCost_ChunkedListEndpoint(t *testing.T) {
	cases := []struct {
		items int
		units int64
		calls int
	}{
		{1, 1, 1},
		{50, 1, 1},
		{51, 2, 2},
		{120, 3, 3},
	}
	for _, tc := range cases {
		units, calls, known := ytapi.EstimateCost("videos.list", tc.items)
		require.True(t, known)
		assert.Equal(t, tc.units, units, "items=%d", tc.items)
		assert.Equal(t, tc.calls, calls, "items=%d", tc.items)
	}
}

func TestEstimateCost_SearchFlatCostPerPage(t *testing.T) {
	units, calls, known := ytapi.EstimateCost("search.list", 50)
	require.True(t, known)
	assert.Equal(t, int64(100), units)
	assert.Equal(t, 1, calls)

	units, calls, _ = ytapi.EstimateCost("search.list", 120)
	assert.Equal(t, int64(300), units)
	assert.Equal(t, 3, calls)
}

func TestEstimateCost_NonDecreasing(t *testing.T) {
	var prev int64
	for items := 0; items <= 500; items++ {
		units, _, known := ytapi.EstimateCost("playlistItems.list", items)
		require.True(t, known)
		assert.GreaterOrEqual(t, units, prev, "items=%d", items)
		prev = units
	}
}

func TestEstimateCost_UnknownEndpointNeverFails(t *testing.T) {
	units, calls, known := ytapi.EstimateCost("subscriptions.list", 10)
	assert.False(t, known)
	assert.Equal(t, int64(1), units)
	assert.Equal(t, 1, calls)
}

func TestLookupEndpoint_ClosedSet(t *testing.T) {
	for _, name := range []string{
		"videos.list", "channels.list", "search.list",
		"playlistItems.list", "comments.list", "commentThreads.list",
	} {
		ep, ok := ytapi.LookupEndpoint(name)
		require.True(t, ok, name)
		assert.Equal(t, name, ep.Name)
		assert.Positive(t, ep.FixedCost)
		assert.Positive(t, ep.MaxItemsPerCall)
	}

	_, ok := ytapi.LookupEndpoint("activities.list")
	assert.False(t, ok)
}
