// Package youtube resolves YouTube URLs into queue items and audio stream URLs.
package youtube

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kkdai/youtube/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voxbox/internal/domain/playlist"
	"github.com/osa030/voxbox/internal/domain/track"
)

// ErrResolutionFailed marks every error returned by Lookup and Resolve.
var ErrResolutionFailed = errors.New("resolution failed")

const (
	httpTimeout  = 15 * time.Second
	watchURLBase = "https://www.youtube.com/watch?v="
)

// videoClient is the part of youtube.Client used here.
type videoClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetPlaylistContext(ctx context.Context, url string) (*youtube.Playlist, error)
	GetStreamURLContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (string, error)
}

// Client wraps the YouTube client.
type Client struct {
	client videoClient
}

// NewClient creates a new YouTube client.
func NewClient() *Client {
	return &Client{
		client: &youtube.Client{
			HTTPClient: &http.Client{Timeout: httpTimeout},
		},
	}
}

// Lookup inspects a user supplied URL. Playlist URLs are expanded into one
// item per video without fetching per-video formats; anything else is looked
// up as a single video.
func (c *Client) Lookup(ctx context.Context, rawURL string) (*playlist.Playlist, error) {
	if IsPlaylistURL(rawURL) {
		return c.lookupPlaylist(ctx, rawURL)
	}

	video, err := c.client.GetVideoContext(ctx, rawURL)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "get video: url=%s", rawURL), ErrResolutionFailed)
	}

	return &playlist.Playlist{
		Title:  video.Title,
		URL:    rawURL,
		Single: true,
		Items: []playlist.Item{{
			URL:      rawURL,
			Title:    video.Title,
			Duration: video.Duration,
		}},
	}, nil
}

func (c *Client) lookupPlaylist(ctx context.Context, rawURL string) (*playlist.Playlist, error) {
	pl, err := c.client.GetPlaylistContext(ctx, rawURL)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "get playlist: url=%s", rawURL), ErrResolutionFailed)
	}

	items := make([]playlist.Item, 0, len(pl.Videos))
	for _, v := range pl.Videos {
		if v == nil || v.ID == "" {
			continue
		}
		items = append(items, playlist.Item{
			URL:      watchURLBase + v.ID,
			Title:    v.Title,
			Duration: v.Duration,
		})
	}
	if len(items) == 0 {
		return nil, errors.Mark(errors.Newf("playlist has no playable entries: url=%s", rawURL), ErrResolutionFailed)
	}

	zlog.Debug().Msgf("youtube: playlist expanded: id=%s title=%s entries=%d", pl.ID, pl.Title, len(items))
	return &playlist.Playlist{
		ID:    pl.ID,
		Title: pl.Title,
		URL:   rawURL,
		Items: items,
	}, nil
}

// Resolve returns the best audio-only stream for a single video URL.
// Playlist parameters in the URL are ignored.
func (c *Client) Resolve(ctx context.Context, rawURL string) (*track.Track, error) {
	video, err := c.client.GetVideoContext(ctx, rawURL)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "get video: url=%s", rawURL), ErrResolutionFailed)
	}

	format, ok := bestAudioFormat(video.Formats)
	if !ok {
		return nil, errors.Mark(errors.Newf("no audio formats: url=%s", rawURL), ErrResolutionFailed)
	}

	streamURL, err := c.client.GetStreamURLContext(ctx, video, format)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "get stream url: url=%s", rawURL), ErrResolutionFailed)
	}

	zlog.Debug().Msgf("youtube: resolved: id=%s itag=%d mime=%s bitrate=%d", video.ID, format.ItagNo, format.MimeType, format.Bitrate)
	return &track.Track{
		Title:      video.Title,
		StreamURL:  streamURL,
		WebpageURL: rawURL,
		Duration:   video.Duration,
	}, nil
}

// bestAudioFormat picks the highest bitrate audio-only format, falling back
// to the highest bitrate format that carries audio at all.
func bestAudioFormat(formats youtube.FormatList) (*youtube.Format, bool) {
	var best, fallback *youtube.Format
	for i := range formats {
		f := &formats[i]
		if f.AudioChannels == 0 {
			continue
		}
		if strings.HasPrefix(f.MimeType, "audio/") {
			if best == nil || f.Bitrate > best.Bitrate {
				best = f
			}
			continue
		}
		if fallback == nil || f.Bitrate > fallback.Bitrate {
			fallback = f
		}
	}
	if best != nil {
		return best, true
	}
	return fallback, fallback != nil
}

// IsPlaylistURL reports whether the URL names a playlist rather than a
// video. A watch URL carrying a list parameter is treated as a video.
func IsPlaylistURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	q := u.Query()
	if q.Get("list") == "" {
		return false
	}
	return q.Get("v") == "" || strings.TrimSuffix(u.Path, "/") == "/playlist"
}

// Supports reports whether Lookup can handle the URL.
func (c *Client) Supports(rawURL string) bool {
	return IsSupportedURL(rawURL)
}

// IsSupportedURL reports whether the URL points at a YouTube host.
func IsSupportedURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be":
		return true
	default:
		return false
	}
}
