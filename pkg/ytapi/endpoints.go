package ytapi

// Endpoint describes one YouTube Data API list endpoint: its URL path,
// the flat quota cost the provider bills per physical call, and the
// maximum number of items one call may carry.
type Endpoint struct {
	Name            string
	Path            string
	Part            string
	FixedCost       int64
	MaxItemsPerCall int
}

// The closed set of endpoints this client speaks. Costs follow the
// published quota table: search is 100 units per page, everything else 1.
var (
	EndpointVideos = Endpoint{
		Name:            "videos.list",
		Path:            "/videos",
		Part:            "snippet,contentDetails,statistics",
		FixedCost:       1,
		MaxItemsPerCall: 50,
	}
	EndpointChannels = Endpoint{
		Name:            "channels.list",
		Path:            "/channels",
		Part:            "snippet,contentDetails,statistics",
		FixedCost:       1,
		MaxItemsPerCall: 50,
	}
	EndpointSearch = Endpoint{
		Name:            "search.list",
		Path:            "/search",
		Part:            "snippet",
		FixedCost:       100,
		MaxItemsPerCall: 50,
	}
	EndpointPlaylistItems = Endpoint{
		Name:            "playlistItems.list",
		Path:            "/playlistItems",
		Part:            "snippet,contentDetails",
		FixedCost:       1,
		MaxItemsPerCall: 50,
	}
	EndpointComments = Endpoint{
		Name:            "comments.list",
		Path:            "/comments",
		Part:            "snippet",
		FixedCost:       1,
		MaxItemsPerCall: 100,
	}
	EndpointCommentThreads = Endpoint{
		Name:            "commentThreads.list",
		Path:            "/commentThreads",
		Part:            "snippet",
		FixedCost:       1,
		MaxItemsPerCall: 100,
	}
)

var endpoints = map[string]Endpoint{
	EndpointVideos.Name:         EndpointVideos,
	EndpointChannels.Name:       EndpointChannels,
	EndpointSearch.Name:         EndpointSearch,
	EndpointPlaylistItems.Name:  EndpointPlaylistItems,
	EndpointComments.Name:       EndpointComments,
	EndpointCommentThreads.Name: EndpointCommentThreads,
}

// LookupEndpoint returns the descriptor for a known endpoint name.
func LookupEndpoint(name string) (Endpoint, bool) {
	ep, ok := endpoints[name]
	return ep, ok
}

// EstimateCost computes the quota units and physical call count needed to
// fetch itemCount items from the named endpoint. itemCount 0 means no call
// at all. An unrecognized endpoint never fails: it yields a conservative
// 1 unit / 1 call with known=false so the caller can log it.
func EstimateCost(endpointName string, itemCount int) (units int64, calls int, known bool) {
	ep, ok := LookupEndpoint(endpointName)
	if !ok {
		return 1, 1, false
	}
	if itemCount <= 0 {
		return 0, 0, true
	}
	calls = (itemCount + ep.MaxItemsPerCall - 1) / ep.MaxItemsPerCall
	return int64(calls) * ep.FixedCost, calls, true
}
