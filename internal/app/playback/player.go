package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voxbox/internal/app/queue"
	"github.com/osa030/voxbox/internal/app/voice"
	"github.com/osa030/voxbox/internal/domain/track"
)

// Errors
var (
	ErrNotConnected    = voice.ErrNotConnected
	ErrQueueEmpty      = queue.ErrQueueEmpty
	ErrIndexOutOfRange = queue.ErrIndexOutOfRange
	ErrAlreadyRunning  = errors.New("playback already running")
	ErrNothingPlaying  = errors.New("nothing is playing")
	ErrNothingToPause  = errors.New("no audio to pause")
	ErrNotPaused       = errors.New("audio is not paused")
	ErrClosed          = errors.New("player closed")
)

const (
	defaultVolume         = 0.5
	defaultPollInterval   = time.Second
	defaultResolveTimeout = 30 * time.Second
	defaultEventBuffer    = 64
)

// Resolver converts an entry URL into a streamable track.
type Resolver interface {
	Resolve(ctx context.Context, url string) (*track.Track, error)
}

// Config holds player configuration.
type Config struct {
	Volume         float64       // Linear gain applied to every source
	PollInterval   time.Duration // Fallback check for a finished source
	ResolveTimeout time.Duration // Deadline for a single resolution
	EventBuffer    int           // Capacity of the event channel
}

func (c Config) withDefaults() Config {
	if c.Volume <= 0 {
		c.Volume = defaultVolume
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = defaultResolveTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = defaultEventBuffer
	}
	return c
}

// Status is a point-in-time view of a player.
type Status struct {
	GuildID     string
	Connected   bool
	Running     bool
	State       State
	Current     *track.QueueEntry
	Next        *track.QueueEntry // head of the queue, nil when empty
	QueueLength int
}

// Player owns the queue of one guild and runs at most one playback loop for it.
type Player struct {
	mu sync.RWMutex
	// cmdMu serializes commands that change the loop or the voice session.
	cmdMu sync.Mutex

	guildID  string
	queue    *queue.Queue
	voice    *voice.Registry
	resolver Resolver
	config   Config

	state         State
	current       *track.QueueEntry
	resolving     *track.QueueEntry // popped, not yet streaming
	dropResolving bool              // resolving entry must not start
	textChannelID string
	loopCancel    context.CancelFunc
	loopDone      chan struct{}

	eventCh chan Event
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewPlayer creates a player for the guild with an empty queue.
func NewPlayer(guildID string, voiceRegistry *voice.Registry, resolver Resolver, config Config) *Player {
	config = config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Player{
		guildID:  guildID,
		queue:    queue.New(guildID),
		voice:    voiceRegistry,
		resolver: resolver,
		config:   config,
		state:    StateIdle,
		eventCh:  make(chan Event, config.EventBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// GuildID returns the owning guild.
func (p *Player) GuildID() string {
	return p.guildID
}

// Events returns the event channel. It is closed by Close.
func (p *Player) Events() <-chan Event {
	return p.eventCh
}

// Pending exposes the queue for read-only checks such as add filters.
func (p *Player) Pending() *queue.Queue {
	return p.queue
}

// Join connects the guild to channelID, replacing any existing connection.
// A running loop keeps going on the new session.
func (p *Player) Join(ctx context.Context, channelID string) error {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	if p.isClosed() {
		return ErrClosed
	}
	if _, err := p.voice.Connect(ctx, p.guildID, channelID); err != nil {
		return err
	}
	return nil
}

// Leave stops the loop, disconnects and clears the queue. It returns the
// number of entries dropped.
func (p *Player) Leave(ctx context.Context) (int, error) {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	if !p.voice.IsConnected(p.guildID) {
		return 0, ErrNotConnected
	}

	p.mu.Lock()
	cancel, done := p.loopCancel, p.loopDone
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	disconnectErr := p.voice.Disconnect(p.guildID)
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return 0, errors.Wrap(ctx.Err(), "wait for playback loop")
		}
	}

	removed := p.queue.Clear()

	p.mu.Lock()
	p.current = nil
	p.setStateLocked(StateIdle)
	p.mu.Unlock()

	zlog.Info().Msgf("playback: left voice channel: guild=%s dropped=%d", p.guildID, len(removed))
	if disconnectErr != nil {
		return len(removed), disconnectErr
	}
	return len(removed), nil
}

// Enqueue appends entries and returns the queue length after the append.
func (p *Player) Enqueue(entries ...track.QueueEntry) int {
	n := p.queue.AddMany(entries)
	for _, e := range entries {
		zlog.Debug().Msgf("playback: enqueued: guild=%s url=%s requester=%s", p.guildID, e.URL, e.Requester.ID)
	}
	return n
}

// Play starts the loop. Announcements go to textChannelID.
func (p *Player) Play(textChannelID string) error {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	if !p.voice.IsConnected(p.guildID) {
		return ErrNotConnected
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.loopDone != nil {
		return ErrAlreadyRunning
	}
	if p.queue.IsEmpty() {
		return ErrQueueEmpty
	}

	p.textChannelID = textChannelID
	p.startLoopLocked()
	return nil
}

// Skip stops the current source; the loop moves on to the next entry. An
// entry still being resolved is dropped before it starts.
func (p *Player) Skip() (track.QueueEntry, error) {
	sess, err := p.voice.Get(p.guildID)
	if err != nil {
		return track.QueueEntry{}, err
	}

	p.mu.Lock()
	if !sess.IsPlaying() && !sess.IsPaused() {
		if p.resolving == nil || p.dropResolving {
			p.mu.Unlock()
			return track.QueueEntry{}, ErrNothingPlaying
		}
		skipped := *p.resolving
		p.dropResolving = true
		p.sendEventLocked(Event{
			Type:  EventTrackSkipped,
			Entry: &skipped,
			State: p.state,
		})
		p.mu.Unlock()
		zlog.Info().Msgf("playback: skipped while resolving: guild=%s url=%s", p.guildID, skipped.URL)
		return skipped, nil
	}

	var skipped track.QueueEntry
	if p.current != nil {
		skipped = *p.current
		p.sendEventLocked(Event{
			Type:  EventTrackSkipped,
			Entry: p.current,
			State: p.state,
		})
	}
	p.mu.Unlock()

	sess.Stop()
	zlog.Info().Msgf("playback: skipped: guild=%s url=%s", p.guildID, skipped.URL)
	return skipped, nil
}

// SkipTo drops every entry before the 1-based position index. When a loop
// is running its current source is stopped, or its entry still being
// resolved is dropped, so the new head plays next. When
// idle the queue is only truncated and the next Play starts from the new head.
func (p *Player) SkipTo(textChannelID string, index int) (track.QueueEntry, error) {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	sess, err := p.voice.Get(p.guildID)
	if err != nil {
		return track.QueueEntry{}, err
	}
	if p.queue.IsEmpty() {
		return track.QueueEntry{}, ErrQueueEmpty
	}

	head, err := p.queue.TruncateTo(index)
	if err != nil {
		return track.QueueEntry{}, err
	}

	p.mu.Lock()
	running := p.loopDone != nil
	if running {
		p.textChannelID = textChannelID
		if p.resolving != nil {
			p.dropResolving = true
		}
	}
	p.mu.Unlock()

	if running && (sess.IsPlaying() || sess.IsPaused()) {
		sess.Stop()
	}

	zlog.Info().Msgf("playback: skipped to: guild=%s position=%d url=%s", p.guildID, index, head.URL)
	return head, nil
}

// Pause pauses the current source.
func (p *Player) Pause() error {
	sess, err := p.voice.Get(p.guildID)
	if err != nil || !sess.IsPlaying() {
		return ErrNothingToPause
	}
	sess.Pause()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.setStateLocked(StatePaused)
	return nil
}

// Resume resumes a paused source.
func (p *Player) Resume() error {
	sess, err := p.voice.Get(p.guildID)
	if err != nil || !sess.IsPaused() {
		return ErrNotPaused
	}
	sess.Resume()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.setStateLocked(StatePlaying)
	return nil
}

// Shuffle randomizes the pending entries.
func (p *Player) Shuffle() error {
	if p.queue.IsEmpty() {
		return ErrQueueEmpty
	}
	p.queue.Shuffle()
	zlog.Info().Msgf("playback: shuffled: guild=%s entries=%d", p.guildID, p.queue.Len())
	return nil
}

// ClearQueue drops every pending entry and returns how many were dropped.
// The current source keeps playing.
func (p *Player) ClearQueue() (int, error) {
	removed := p.queue.Clear()
	if len(removed) == 0 {
		return 0, ErrQueueEmpty
	}
	zlog.Info().Msgf("playback: cleared queue: guild=%s dropped=%d", p.guildID, len(removed))
	return len(removed), nil
}

// Queue returns up to limit pending entries and the total pending count.
func (p *Player) Queue(limit int) ([]track.QueueEntry, int) {
	return p.queue.List(limit), p.queue.Len()
}

// Status returns a snapshot of the player.
func (p *Player) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := Status{
		GuildID:     p.guildID,
		Connected:   p.voice.IsConnected(p.guildID),
		Running:     p.loopDone != nil,
		State:       p.state,
		QueueLength: p.queue.Len(),
	}
	if p.current != nil {
		cur := *p.current
		st.Current = &cur
	}
	if next, ok := p.queue.Peek(); ok {
		st.Next = &next
	}
	return st
}

// Close stops the loop and closes the event channel. The voice session is
// left to the registry owner.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cancel()
	done := p.loopDone
	close(p.eventCh)
	p.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (p *Player) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// startLoopLocked must be called with mu held.
func (p *Player) startLoopLocked() {
	ctx, cancel := context.WithCancel(p.ctx)
	done := make(chan struct{})
	p.loopCancel = cancel
	p.loopDone = done

	zlog.Info().Msgf("playback: loop started: guild=%s queued=%d", p.guildID, p.queue.Len())
	go p.run(ctx, cancel, done)
}

func (p *Player) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer cancel()
	defer func() {
		p.mu.Lock()
		p.finishLoopLocked(done)
		p.mu.Unlock()
	}()

	for ctx.Err() == nil {
		sess, err := p.voice.Get(p.guildID)
		if err != nil {
			zlog.Info().Msgf("playback: loop stopped, voice session gone: guild=%s", p.guildID)
			return
		}

		p.mu.Lock()
		entry, err := p.queue.PopFront()
		if err != nil {
			p.finishLoopLocked(done)
			p.sendEventLocked(Event{
				Type:  EventQueueEmpty,
				State: p.state,
			})
			p.mu.Unlock()
			zlog.Info().Msgf("playback: queue drained: guild=%s", p.guildID)
			return
		}
		p.resolving = &entry
		p.dropResolving = false
		p.mu.Unlock()

		p.playEntry(ctx, sess, entry)
	}
}

// finishLoopLocked clears loop bookkeeping if done still belongs to the current loop.
func (p *Player) finishLoopLocked(done chan struct{}) {
	if p.loopDone != done {
		return
	}
	p.loopDone = nil
	p.loopCancel = nil
	p.current = nil
	p.resolving = nil
	p.dropResolving = false
	p.state = StateIdle
}

// playEntry resolves and streams one entry, returning when it has finished.
func (p *Player) playEntry(ctx context.Context, sess voice.Session, entry track.QueueEntry) {
	resolveCtx, cancel := context.WithTimeout(ctx, p.config.ResolveTimeout)
	tr, err := p.resolver.Resolve(resolveCtx, entry.URL)
	cancel()
	if err != nil {
		p.mu.Lock()
		p.resolving = nil
		if ctx.Err() != nil {
			p.mu.Unlock()
			return
		}
		zlog.Warn().Err(err).Msgf("playback: failed to resolve: guild=%s url=%s", p.guildID, entry.URL)
		p.sendEventLocked(Event{
			Type:  EventResolveFailed,
			Entry: &entry,
			State: p.state,
			Err:   err,
		})
		p.mu.Unlock()
		return
	}
	if entry.Title == "" {
		entry.Title = tr.Title
	}
	if entry.Duration == 0 {
		entry.Duration = tr.Duration
	}

	finished := make(chan struct{})
	var once sync.Once
	onDone := func(err error) {
		once.Do(func() {
			if err != nil {
				zlog.Error().Err(err).Msgf("playback: stream error: guild=%s url=%s", p.guildID, entry.URL)
			}
			close(finished)
		})
	}

	// dropResolving is set under mu; check it and start the stream under the same lock.
	p.mu.Lock()
	dropped := p.dropResolving
	p.resolving = nil
	p.dropResolving = false
	if dropped || ctx.Err() != nil {
		p.mu.Unlock()
		zlog.Info().Msgf("playback: dropped skipped entry before start: guild=%s url=%s", p.guildID, entry.URL)
		return
	}
	if err := sess.Play(ctx, tr.StreamURL, p.config.Volume, onDone); err != nil {
		p.mu.Unlock()
		zlog.Error().Err(err).Msgf("playback: failed to start stream: guild=%s url=%s", p.guildID, entry.URL)
		return
	}
	p.current = &entry
	p.state = StatePlaying
	p.sendEventLocked(Event{
		Type:  EventTrackStarted,
		Entry: p.current,
		Track: tr,
		State: p.state,
	})
	p.mu.Unlock()
	zlog.Info().Msgf("playback: now playing: guild=%s url=%s title=%s", p.guildID, entry.URL, tr.Title)

	p.waitForCompletion(ctx, sess, finished)

	p.mu.Lock()
	p.current = nil
	p.state = StateIdle
	p.sendEventLocked(Event{
		Type:  EventTrackEnded,
		Entry: &entry,
		State: p.state,
	})
	p.mu.Unlock()
}

// waitForCompletion blocks until the source signals completion, the session
// reports neither playing nor paused, or ctx is cancelled.
func (p *Player) waitForCompletion(ctx context.Context, sess voice.Session, finished <-chan struct{}) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-finished:
			return
		case <-ctx.Done():
			sess.Stop()
			return
		case <-ticker.C:
			if !sess.IsPlaying() && !sess.IsPaused() {
				return
			}
		}
	}
}

// setStateLocked must be called with mu held.
func (p *Player) setStateLocked(s State) {
	if p.state == s {
		return
	}
	p.state = s
	p.sendEventLocked(Event{
		Type:  EventStateChanged,
		Entry: p.current,
		State: s,
	})
}

// sendEventLocked sends an event without blocking. Must be called with mu held.
func (p *Player) sendEventLocked(event Event) {
	if p.closed {
		return
	}
	event.GuildID = p.guildID
	event.TextChannelID = p.textChannelID
	select {
	case p.eventCh <- event:
	default:
		zlog.Warn().Msgf("playback: event channel full, dropping event: guild=%s type=%s", p.guildID, event.Type)
	}
}
