package filter

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voxbox/internal/domain/track"
)

// QueueLimitConfig represents the configuration for QueueLimitFilter.
type QueueLimitConfig struct {
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries" default:"500" validate:"gte=1"`
}

// QueueLimitFilter caps the number of pending entries in a guild.
type QueueLimitFilter struct {
	maxEntries int
}

func (f *QueueLimitFilter) Name() string {
	return "queue_limit_filter"
}

func (f *QueueLimitFilter) Description() string {
	return "Caps the number of entries waiting in a guild queue"
}

func (f *QueueLimitFilter) ReturnCodes() []string {
	return []string{"queue_limit"}
}

func (f *QueueLimitFilter) ValidateConfig(settings map[string]any) error {
	var config QueueLimitConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.maxEntries = config.MaxEntries
	zlog.Info().Msgf("queue limit filter config: %+v", config)
	return nil
}

func (f *QueueLimitFilter) Check(ctx context.Context, req Request, e track.QueueEntry, q QueueView) Result {
	if f.maxEntries <= 0 {
		return Accept()
	}
	if q.Len() >= f.maxEntries {
		return Reject("queue_limit")
	}
	return Accept()
}

func init() {
	Register("queue_limit_filter", func() Filter {
		return &QueueLimitFilter{}
	})
}
