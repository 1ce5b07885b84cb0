package workers

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/L0rd008/ViewTrendsSL-sub001/internal/config"
	"github.com/L0rd008/ViewTrendsSL-sub001/internal/models"
	"github.com/L0rd008/ViewTrendsSL-sub001/internal/quota"
	"github.com/L0rd008/ViewTrendsSL-sub001/pkg/ytapi"
)

// Sink receives harvested records. Persistence of domain records lives
// outside this service; the default sink only logs counts.
type Sink interface {
	StoreVideos(ctx context.Context, channelID string, videos []models.Video) error
}

// LogSink is the default Sink.
type LogSink struct{}

func (LogSink) StoreVideos(_ context.Context, channelID string, videos []models.Video) error {
	log.Info().Str("channel", channelID).Int("videos", len(videos)).Msg("Harvested channel videos")
	return nil
}

// Harvester periodically refreshes the tracked channels through the batch
// planner. It is one caller among potentially many; the quota layer owns
// no workers of its own.
type Harvester struct {
	planner  *ytapi.Planner
	sink     Sink
	channels []string
	maxPer   int
	interval time.Duration
}

// NewHarvester creates a harvester from configuration.
func NewHarvester(planner *ytapi.Planner, sink Sink, cfg *config.Config) *Harvester {
	if sink == nil {
		sink = LogSink{}
	}
	return &Harvester{
		planner:  planner,
		sink:     sink,
		channels: cfg.TrackedChannels,
		maxPer:   cfg.MaxVideosPerRun,
		interval: cfg.HarvestInterval,
	}
}

// Start begins the harvest loop and blocks until ctx is done.
func (h *Harvester) Start(ctx context.Context) {
	if len(h.channels) == 0 {
		log.Info().Msg("Harvester: no tracked channels configured, not starting")
		return
	}
	log.Info().Dur("interval", h.interval).Int("channels", len(h.channels)).Msg("Starting harvester worker")

	// One pass immediately, then on the ticker.
	h.runOnce(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Harvester worker stopped")
			return
		case <-ticker.C:
			h.runOnce(ctx)
		}
	}
}

func (h *Harvester) runOnce(ctx context.Context) {
	for _, channelID := range h.channels {
		select {
		case <-ctx.Done():
			return
		default:
		}

		videos, err := h.planner.GetChannelVideos(ctx, channelID, h.maxPer)
		if err != nil {
			if errors.Is(err, quota.ErrInsufficientQuota) {
				// Pool is drained for the day; stop instead of busy-looping
				// through the remaining channels.
				log.Warn().Str("channel", channelID).Msg("Harvester: quota exhausted, pausing until next run")
				return
			}
			log.Error().Err(err).Str("channel", channelID).Msg("Harvester: channel refresh failed")
			if len(videos) == 0 {
				continue
			}
			// Partial chunk results are still worth keeping; the error above
			// names the failed chunks.
		}
		if len(videos) == 0 {
			continue
		}
		if err := h.sink.StoreVideos(ctx, channelID, videos); err != nil {
			log.Error().Err(err).Str("channel", channelID).Msg("Harvester: sink rejected records")
		}
	}
}
