// Package config provides configuration loading from YAML files and the environment.
package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrMissingToken is returned when no bot token is configured.
var ErrMissingToken = errors.New("DISCORD_TOKEN is not set")

// Config represents the application configuration.
type Config struct {
	Discord      DiscordConfig           `yaml:"discord"`
	Playback     PlaybackConfig          `yaml:"playback"`
	Resolver     ResolverConfig          `yaml:"resolver"`
	Commands     CommandsConfig          `yaml:"commands"`
	Notification NotificationConfig      `yaml:"notification"`
	Status       StatusConfig            `yaml:"status"`
	Hooks        HooksConfig             `yaml:"hooks"`
	Filters      map[string]FilterConfig `yaml:"filters"`
	Messages     MessagesConfig          `yaml:"messages"`
}

// DiscordConfig represents bot credentials and command registration.
type DiscordConfig struct {
	Token string `yaml:"token" env:"DISCORD_TOKEN"`
	// GuildID scopes slash commands to one guild. Empty registers them globally.
	GuildID string `yaml:"guild_id" env:"VOXBOX_GUILD_ID"`
	// SkipRegister leaves slash commands untouched at startup.
	SkipRegister bool `yaml:"skip_register"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	Volume            float64 `yaml:"volume" default:"0.5" validate:"gt=0,lte=2"`
	PollIntervalMs    int     `yaml:"poll_interval_ms" default:"1000" validate:"gte=50,lte=10000"`
	QueueDisplayLimit int     `yaml:"queue_display_limit" default:"20" validate:"gte=1,lte=50"`
	FFmpegPath        string  `yaml:"ffmpeg_path" env:"VOXBOX_FFMPEG" default:"ffmpeg"`
}

// ResolverConfig represents media resolver configuration.
type ResolverConfig struct {
	TimeoutSec int `yaml:"timeout_sec" default:"30" validate:"gte=1,lte=600"`
}

// CommandsConfig represents slash command handling configuration.
type CommandsConfig struct {
	RatePerMinute int `yaml:"rate_per_minute" default:"30" validate:"gte=1"`
	Burst         int `yaml:"burst" default:"5" validate:"gte=1"`
	// TimeoutSec bounds a single command, including the add extraction.
	TimeoutSec int `yaml:"timeout_sec" default:"60" validate:"gte=1"`
}

// NotificationConfig represents announcement delivery configuration.
type NotificationConfig struct {
	SendTimeoutMs int `yaml:"send_timeout_ms" default:"5000" validate:"gte=100"`
	HistorySize   int `yaml:"history_size" default:"20" validate:"gte=1,lte=1000"`
}

// StatusConfig represents the status HTTP server configuration.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" default:":8080"`
	Token   string `yaml:"token" env:"VOXBOX_STATUS_TOKEN"`
}

// HooksConfig represents shell commands run around the bot's lifetime.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"` // Commands to run after the gateway connection is open
	OnStopped []string `yaml:"on_stopped"` // Commands to run after shutdown
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	Joined              string `yaml:"joined" default:"Joined %s"`
	Left                string `yaml:"left" default:"Disconnected from the voice channel."`
	NotInVoice          string `yaml:"not_in_voice" default:"You need to join a voice channel first!"`
	NotConnected        string `yaml:"not_connected" default:"I'm not in a voice channel. Use /join first."`
	Added               string `yaml:"added" default:"Added to queue: %s"`
	AddedPlaylist       string `yaml:"added_playlist" default:"Added %d tracks to queue from %s"`
	AddedPartial        string `yaml:"added_partial" default:"Added %d of %d tracks to queue, %d rejected"`
	QueueHeader         string `yaml:"queue_header" default:"Queue (%d total):"`
	QueueEmpty          string `yaml:"queue_empty" default:"Queue is empty!"`
	StartingPlayback    string `yaml:"starting_playback" default:"Starting playback..."`
	AlreadyPlaying      string `yaml:"already_playing" default:"Already playing."`
	NowPlaying          string `yaml:"now_playing" default:"Now playing: %s"`
	ResolveFailed       string `yaml:"resolve_failed" default:"Could not play %s, skipping."`
	Paused              string `yaml:"paused" default:"Paused."`
	Resumed             string `yaml:"resumed" default:"Resumed."`
	NothingToPause      string `yaml:"nothing_to_pause" default:"No audio is playing to pause."`
	NotPaused           string `yaml:"not_paused" default:"Audio is not paused."`
	Skipped             string `yaml:"skipped" default:"Skipped the current track."`
	NothingPlaying      string `yaml:"nothing_playing" default:"No track is playing to skip."`
	SkippedTo           string `yaml:"skipped_to" default:"Skipped to position %d: %s"`
	InvalidPosition     string `yaml:"invalid_position" default:"Invalid position. Choose a number between 1 and %d."`
	Shuffled            string `yaml:"shuffled" default:"Queue shuffled."`
	Cleared             string `yaml:"cleared" default:"Queue cleared."`
	LookupFailed        string `yaml:"lookup_failed" default:"Could not load %s."`
	UnsupportedURL      string `yaml:"unsupported_url" default:"Only YouTube video and playlist links are supported."`
	RateLimited         string `yaml:"rate_limited" default:"Slow down, try again in a moment."`
	DefaultError        string `yaml:"default_error" default:"Something went wrong."`
	UserPending         string `yaml:"user_pending" default:"You already have too many tracks waiting."`
	DuplicateEntry      string `yaml:"duplicate_entry" default:"That track is already in the queue."`
	QueueLimit          string `yaml:"queue_limit" default:"The queue is full."`
	DurationLimitExceed string `yaml:"duration_limit_exceeded" default:"That track is too long or too short."`
}

// Load loads configuration from a YAML file. A missing file is not an
// error: defaults and environment variables are used instead.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, errors.Wrap(err, "failed to parse config file")
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to read environment")
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return ErrMissingToken
	}

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// GetMessage returns the message for the given code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "joined":
		return c.Messages.Joined
	case "left":
		return c.Messages.Left
	case "not_in_voice":
		return c.Messages.NotInVoice
	case "not_connected":
		return c.Messages.NotConnected
	case "added":
		return c.Messages.Added
	case "added_playlist":
		return c.Messages.AddedPlaylist
	case "added_partial":
		return c.Messages.AddedPartial
	case "queue_header":
		return c.Messages.QueueHeader
	case "queue_empty":
		return c.Messages.QueueEmpty
	case "starting_playback":
		return c.Messages.StartingPlayback
	case "already_playing":
		return c.Messages.AlreadyPlaying
	case "now_playing":
		return c.Messages.NowPlaying
	case "resolve_failed":
		return c.Messages.ResolveFailed
	case "paused":
		return c.Messages.Paused
	case "resumed":
		return c.Messages.Resumed
	case "nothing_to_pause":
		return c.Messages.NothingToPause
	case "not_paused":
		return c.Messages.NotPaused
	case "skipped":
		return c.Messages.Skipped
	case "nothing_playing":
		return c.Messages.NothingPlaying
	case "skipped_to":
		return c.Messages.SkippedTo
	case "invalid_position":
		return c.Messages.InvalidPosition
	case "shuffled":
		return c.Messages.Shuffled
	case "cleared":
		return c.Messages.Cleared
	case "lookup_failed":
		return c.Messages.LookupFailed
	case "unsupported_url":
		return c.Messages.UnsupportedURL
	case "rate_limited":
		return c.Messages.RateLimited
	case "user_pending":
		return c.Messages.UserPending
	case "duplicate_entry":
		return c.Messages.DuplicateEntry
	case "queue_limit":
		return c.Messages.QueueLimit
	case "duration_limit_exceeded":
		return c.Messages.DurationLimitExceed
	default:
		return c.Messages.DefaultError
	}
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// FilterSettings returns the settings for a filter, or an empty map.
func (c *Config) FilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok && f.Settings != nil {
		return f.Settings
	}
	return map[string]any{}
}

// PollInterval returns the playback poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Playback.PollIntervalMs) * time.Millisecond
}

// ResolveTimeout returns the per-entry resolution deadline.
func (c *Config) ResolveTimeout() time.Duration {
	return time.Duration(c.Resolver.TimeoutSec) * time.Second
}

// CommandTimeout returns the deadline for one slash command.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Commands.TimeoutSec) * time.Second
}

// SendTimeout returns the per-subscriber announcement timeout.
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Notification.SendTimeoutMs) * time.Millisecond
}
