package discord

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/voxbox/internal/app/guild"
	"github.com/osa030/voxbox/internal/app/notification"
	"github.com/osa030/voxbox/internal/app/voice"
	"github.com/osa030/voxbox/internal/app/voice/voicetest"
	"github.com/osa030/voxbox/internal/domain/playlist"
	"github.com/osa030/voxbox/internal/domain/track"
	"github.com/osa030/voxbox/internal/infra/config"
)

type reply struct {
	kind      string // reply, defer, followup
	content   string
	ephemeral bool
}

type fakeResponder struct {
	mu      sync.Mutex
	replies []reply
}

func (r *fakeResponder) Reply(content string, ephemeral bool) error {
	r.record(reply{kind: "reply", content: content, ephemeral: ephemeral})
	return nil
}

func (r *fakeResponder) Defer(ephemeral bool) error {
	r.record(reply{kind: "defer", ephemeral: ephemeral})
	return nil
}

func (r *fakeResponder) Followup(content string, ephemeral bool) error {
	r.record(reply{kind: "followup", content: content, ephemeral: ephemeral})
	return nil
}

func (r *fakeResponder) record(rep reply) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, rep)
}

func (r *fakeResponder) last() reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replies[len(r.replies)-1]
}

type fakeResolver struct{}

func (fakeResolver) Supports(url string) bool {
	return !strings.HasPrefix(url, "ftp://")
}

func (fakeResolver) Lookup(_ context.Context, url string) (*playlist.Playlist, error) {
	if url == "broken" {
		return nil, errors.New("lookup failed")
	}
	if rest, ok := strings.CutPrefix(url, "list:"); ok {
		pl := &playlist.Playlist{Title: "mix", URL: url}
		for _, u := range strings.Split(rest, ",") {
			pl.Items = append(pl.Items, playlist.Item{URL: u})
		}
		return pl, nil
	}
	return &playlist.Playlist{URL: url, Single: true, Items: []playlist.Item{{URL: url}}}, nil
}

func (fakeResolver) Resolve(_ context.Context, url string) (*track.Track, error) {
	return &track.Track{Title: url, StreamURL: "stream:" + url}, nil
}

type fixture struct {
	conn    *voicetest.Connector
	handler *Handler
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()

	t.Setenv("DISCORD_TOKEN", "test-token")
	cfg, err := config.Load("")
	require.NoError(t, err)
	if mutate != nil {
		mutate(cfg)
	}

	conn := voicetest.NewConnector()
	m, err := guild.NewManager(cfg, voice.NewRegistry(conn), fakeResolver{}, notification.NewManager(time.Second))
	require.NoError(t, err)
	t.Cleanup(m.Close)

	return &fixture{conn: conn, handler: NewHandler(cfg, m)}
}

func (f *fixture) run(t *testing.T, req Request) reply {
	t.Helper()

	if req.GuildID == "" {
		req.GuildID = "g1"
	}
	if req.ChannelID == "" {
		req.ChannelID = "text"
	}
	if req.User.ID == "" {
		req.User = track.Requester{ID: "u1", Name: "alice"}
	}

	r := &fakeResponder{}
	require.NoError(t, f.handler.Handle(context.Background(), req, r))
	require.NotEmpty(t, r.replies)
	return r.last()
}

func TestHandler_Join(t *testing.T) {
	f := newFixture(t, nil)

	got := f.run(t, Request{Command: CmdJoin})
	assert.Equal(t, reply{kind: "reply", content: "You need to join a voice channel first!", ephemeral: true}, got)

	got = f.run(t, Request{Command: CmdJoin, VoiceChannelID: "v1"})
	assert.Equal(t, "Joined <#v1>", got.content)
	assert.False(t, got.ephemeral)
	assert.NotNil(t, f.conn.Last("g1"))
}

func TestHandler_Leave(t *testing.T) {
	f := newFixture(t, nil)

	got := f.run(t, Request{Command: CmdLeave})
	assert.Equal(t, "I'm not in a voice channel. Use /join first.", got.content)
	assert.True(t, got.ephemeral)

	f.run(t, Request{Command: CmdJoin, VoiceChannelID: "v1"})
	f.run(t, Request{Command: CmdAdd, URL: "urlA"})

	got = f.run(t, Request{Command: CmdLeave})
	assert.Equal(t, "Disconnected from the voice channel.", got.content)

	got = f.run(t, Request{Command: CmdQueue})
	assert.Equal(t, "Queue is empty!", got.content)
}

func TestHandler_AddAndQueue(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Playback.QueueDisplayLimit = 2 })

	r := &fakeResponder{}
	require.NoError(t, f.handler.Handle(context.Background(), Request{
		Command: CmdAdd, GuildID: "g1", URL: "urlA", User: track.Requester{ID: "u1"},
	}, r))
	require.Len(t, r.replies, 2)
	assert.Equal(t, "defer", r.replies[0].kind)
	assert.Equal(t, reply{kind: "followup", content: "Added to queue: urlA"}, r.replies[1])

	got := f.run(t, Request{Command: CmdAdd, URL: "list:b,c"})
	assert.Equal(t, "Added 2 tracks to queue from mix", got.content)

	got = f.run(t, Request{Command: CmdAdd, URL: "broken"})
	assert.Equal(t, "Could not load broken.", got.content)
	assert.True(t, got.ephemeral)

	got = f.run(t, Request{Command: CmdAdd, URL: "ftp://example.com/a.mp3"})
	assert.Equal(t, reply{kind: "followup", content: "Only YouTube video and playlist links are supported.", ephemeral: true}, got)

	got = f.run(t, Request{Command: CmdQueue})
	assert.Equal(t, "Queue (3 total):\n1. urlA\n2. b\n... and 1 more", got.content)
	assert.True(t, got.ephemeral)
}

func TestHandler_AddRejected(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Filters = map[string]config.FilterConfig{"duplicate_entry_filter": {Enabled: true}}
	})
	f.run(t, Request{Command: CmdAdd, URL: "urlA"})
	got := f.run(t, Request{Command: CmdAdd, URL: "urlA"})
	assert.Equal(t, "That track is already in the queue.", got.content)

	got = f.run(t, Request{Command: CmdAdd, URL: "list:urlA,b"})
	assert.Equal(t, "Added 1 of 2 tracks to queue, 1 rejected", got.content)
}

func TestHandler_PlayPreconditions(t *testing.T) {
	f := newFixture(t, nil)

	got := f.run(t, Request{Command: CmdPlay})
	assert.Equal(t, "I'm not in a voice channel. Use /join first.", got.content)
	assert.True(t, got.ephemeral)

	f.run(t, Request{Command: CmdJoin, VoiceChannelID: "v1"})
	got = f.run(t, Request{Command: CmdPlay})
	assert.Equal(t, "Queue is empty!", got.content)

	f.run(t, Request{Command: CmdAdd, URL: "urlA"})
	got = f.run(t, Request{Command: CmdPlay})
	assert.Equal(t, reply{kind: "reply", content: "Starting playback..."}, got)

	got = f.run(t, Request{Command: CmdPlay})
	assert.Equal(t, "Already playing.", got.content)
}

func TestHandler_TransportCommands(t *testing.T) {
	f := newFixture(t, nil)

	got := f.run(t, Request{Command: CmdPause})
	assert.Equal(t, "No audio is playing to pause.", got.content)
	got = f.run(t, Request{Command: CmdResume})
	assert.Equal(t, "Audio is not paused.", got.content)
	got = f.run(t, Request{Command: CmdSkip})
	assert.Equal(t, "I'm not in a voice channel. Use /join first.", got.content)

	f.run(t, Request{Command: CmdJoin, VoiceChannelID: "v1"})
	got = f.run(t, Request{Command: CmdSkip})
	assert.Equal(t, "No track is playing to skip.", got.content)

	f.run(t, Request{Command: CmdAdd, URL: "urlA"})
	f.run(t, Request{Command: CmdPlay})
	sess := f.conn.Last("g1")
	select {
	case <-sess.Started():
	case <-time.After(2 * time.Second):
		t.Fatal("playback did not start")
	}

	got = f.run(t, Request{Command: CmdPause})
	assert.Equal(t, reply{kind: "reply", content: "Paused."}, got)
	got = f.run(t, Request{Command: CmdResume})
	assert.Equal(t, reply{kind: "reply", content: "Resumed."}, got)
	got = f.run(t, Request{Command: CmdSkip})
	assert.Equal(t, reply{kind: "reply", content: "Skipped the current track."}, got)
}

func TestHandler_SkipTo(t *testing.T) {
	f := newFixture(t, nil)

	f.run(t, Request{Command: CmdJoin, VoiceChannelID: "v1"})
	f.run(t, Request{Command: CmdAdd, URL: "urlA"})
	f.run(t, Request{Command: CmdAdd, URL: "urlB"})

	got := f.run(t, Request{Command: CmdSkipTo, Position: 3})
	assert.Equal(t, "Invalid position. Choose a number between 1 and 2.", got.content)
	assert.True(t, got.ephemeral)

	got = f.run(t, Request{Command: CmdSkipTo, Position: 2})
	assert.Equal(t, reply{kind: "reply", content: "Skipped to position 2: urlB"}, got)

	got = f.run(t, Request{Command: CmdQueue})
	assert.Equal(t, "Queue (1 total):\n1. urlB", got.content)
}

func TestHandler_ShuffleAndClear(t *testing.T) {
	f := newFixture(t, nil)

	got := f.run(t, Request{Command: CmdShuffle})
	assert.Equal(t, "Queue is empty!", got.content)
	got = f.run(t, Request{Command: CmdClearQueue})
	assert.Equal(t, "Queue is empty!", got.content)

	f.run(t, Request{Command: CmdAdd, URL: "list:a,b,c"})
	got = f.run(t, Request{Command: CmdShuffle})
	assert.Equal(t, "Queue shuffled.", got.content)
	got = f.run(t, Request{Command: CmdClearQueue})
	assert.Equal(t, "Queue cleared.", got.content)
	got = f.run(t, Request{Command: CmdQueue})
	assert.Equal(t, "Queue is empty!", got.content)
}

func TestHandler_RateLimit(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Commands.RatePerMinute = 1
		c.Commands.Burst = 2
	})

	f.run(t, Request{Command: CmdQueue})
	f.run(t, Request{Command: CmdQueue})
	got := f.run(t, Request{Command: CmdQueue})
	assert.Equal(t, "Slow down, try again in a moment.", got.content)

	got = f.run(t, Request{Command: CmdQueue, User: track.Requester{ID: "u2"}})
	assert.Equal(t, "Queue is empty!", got.content)
}

func TestHandler_NoGuild(t *testing.T) {
	f := newFixture(t, nil)

	r := &fakeResponder{}
	require.NoError(t, f.handler.Handle(context.Background(), Request{Command: CmdQueue}, r))
	assert.Equal(t, "Something went wrong.", r.last().content)
}

func TestDefinitions(t *testing.T) {
	defs := Definitions()

	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	assert.ElementsMatch(t, []string{
		CmdJoin, CmdLeave, CmdAdd, CmdQueue, CmdPlay, CmdPause, CmdResume,
		CmdClearQueue, CmdSkip, CmdSkipTo, CmdShuffle,
	}, names)

	for _, d := range defs {
		if d.Name == CmdSkipTo {
			require.Len(t, d.Options, 1)
			require.NotNil(t, d.Options[0].MinValue)
			assert.Equal(t, 1.0, *d.Options[0].MinValue)
		}
	}
}
