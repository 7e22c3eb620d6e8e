// Package notification fans playback announcements out to subscribers.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// Kind classifies an announcement.
type Kind string

const (
	KindNowPlaying    Kind = "now_playing"
	KindQueueEmpty    Kind = "queue_empty"
	KindResolveFailed Kind = "resolve_failed"
)

const defaultSendTimeout = 5 * time.Second

// Announcement is a public message about playback in one guild.
type Announcement struct {
	SequenceNo uint64    `json:"sequence_no"`
	GuildID    string    `json:"guild_id"`
	ChannelID  string    `json:"channel_id"`
	Kind       Kind      `json:"kind"`
	Message    string    `json:"message"`
	Time       time.Time `json:"time"`
}

// Stream receives announcements for a subscriber.
type Stream interface {
	Send(ctx context.Context, a *Announcement) error
}

// StreamFunc adapts a function to Stream.
type StreamFunc func(ctx context.Context, a *Announcement) error

// Send calls f.
func (f StreamFunc) Send(ctx context.Context, a *Announcement) error {
	return f(ctx, a)
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Manager manages announcement subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	sendTimeout   time.Duration
}

// NewManager creates a new notification manager. A non-positive sendTimeout
// uses the default.
func NewManager(sendTimeout time.Duration) *Manager {
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	return &Manager{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   sendTimeout,
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Broadcast stamps the announcement with the next sequence number and sends
// it to all subscribers in parallel, each bounded by the send timeout.
func (m *Manager) Broadcast(a *Announcement) {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	a.SequenceNo = m.sequenceNo
	m.sequenceNoMu.Unlock()

	if a.Time.IsZero() {
		a.Time = time.Now()
	}

	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(ctx, a)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Warn().Err(err).Msgf("notification: send failed: subscription=%s guild=%s kind=%s", s.id, a.GuildID, a.Kind)
				}
			case <-ctx.Done():
				zlog.Warn().Msgf("notification: send timed out: subscription=%s guild=%s kind=%s", s.id, a.GuildID, a.Kind)
			}
		}(sub)
	}

	wg.Wait()
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}
