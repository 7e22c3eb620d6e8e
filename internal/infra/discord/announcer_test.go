package discord

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/voxbox/internal/app/notification"
)

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, channelID+": "+content)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func TestAnnouncer_Send(t *testing.T) {
	sender := &fakeSender{}
	a := NewAnnouncer(sender)

	require.NoError(t, a.Send(context.Background(), &notification.Announcement{
		ChannelID: "text-1",
		Kind:      notification.KindNowPlaying,
		Message:   "Now playing: urlB",
	}))
	require.NoError(t, a.Send(context.Background(), &notification.Announcement{
		Kind:    notification.KindQueueEmpty,
		Message: "Queue is empty!",
	}))

	assert.Equal(t, []string{"text-1: Now playing: urlB"}, sender.sent)
}

func TestAnnouncer_SendError(t *testing.T) {
	a := NewAnnouncer(&fakeSender{err: errors.New("missing access")})

	err := a.Send(context.Background(), &notification.Announcement{ChannelID: "text-1", Message: "x"})
	assert.Error(t, err)
}
