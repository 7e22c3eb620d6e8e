package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"

	"github.com/osa030/voxbox/internal/app/notification"
)

// messageSender is the part of discordgo.Session used to post announcements.
type messageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Announcer posts announcements as plain messages in their text channel.
type Announcer struct {
	sender messageSender
}

var _ notification.Stream = (*Announcer)(nil)

// NewAnnouncer creates an announcer that posts through sender.
func NewAnnouncer(sender messageSender) *Announcer {
	return &Announcer{sender: sender}
}

// Send posts the announcement. Announcements without a channel are skipped.
func (a *Announcer) Send(ctx context.Context, ann *notification.Announcement) error {
	if ann.ChannelID == "" || ann.Message == "" {
		return nil
	}
	if _, err := a.sender.ChannelMessageSend(ann.ChannelID, ann.Message, discordgo.WithContext(ctx)); err != nil {
		return errors.Wrapf(err, "send announcement: channel=%s kind=%s", ann.ChannelID, ann.Kind)
	}
	return nil
}
