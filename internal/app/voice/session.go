// Package voice tracks the active voice connection of each guild.
package voice

import "context"

// Session is one live voice connection that can stream a single source at a time.
type Session interface {
	// ChannelID returns the voice channel the session is connected to.
	ChannelID() string
	// Play starts streaming streamURL at the given linear gain and returns
	// once streaming has begun. onDone is called exactly once when the
	// source ends, fails or is stopped.
	Play(ctx context.Context, streamURL string, volume float64, onDone func(error)) error
	// Stop ends the current source. onDone still fires.
	Stop()
	Pause()
	Resume()
	IsPlaying() bool
	IsPaused() bool
	// Disconnect stops any source and leaves the voice channel.
	Disconnect() error
}

// Connector opens voice sessions.
type Connector interface {
	Connect(ctx context.Context, guildID, channelID string) (Session, error)
}
