package filter

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/voxbox/internal/app/queue"
	"github.com/osa030/voxbox/internal/domain/track"
)

var alice = track.Requester{ID: "user-1", Name: "Alice"}

func queueWith(urls ...string) *queue.Queue {
	q := queue.New("guild-1")
	for _, u := range urls {
		q.Add(track.NewQueueEntry(u, "", 0, alice))
	}
	return q
}

func TestDuplicateEntryFilter_Check(t *testing.T) {
	tests := []struct {
		name         string
		queued       []string
		url          string
		wantAccepted bool
	}{
		{
			name:         "empty queue",
			url:          "https://www.youtube.com/watch?v=a",
			wantAccepted: true,
		},
		{
			name:         "different url",
			queued:       []string{"https://www.youtube.com/watch?v=a"},
			url:          "https://www.youtube.com/watch?v=b",
			wantAccepted: true,
		},
		{
			name:         "same url already pending",
			queued:       []string{"https://www.youtube.com/watch?v=a", "https://www.youtube.com/watch?v=b"},
			url:          "https://www.youtube.com/watch?v=b",
			wantAccepted: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &DuplicateEntryFilter{}
			e := track.NewQueueEntry(tt.url, "", 0, alice)

			result := f.Check(context.Background(), Request{GuildID: "guild-1", Requester: alice}, e, queueWith(tt.queued...))

			assert.Equal(t, tt.wantAccepted, result.Accepted)
			if !tt.wantAccepted {
				assert.Equal(t, "duplicate_entry", result.Code)
			}
		})
	}
}

func TestUserPendingFilter_Check(t *testing.T) {
	tests := []struct {
		name         string
		maxPending   int
		pending      int
		wantAccepted bool
	}{
		{name: "no pending entries", maxPending: 3, pending: 0, wantAccepted: true},
		{name: "below limit", maxPending: 3, pending: 2, wantAccepted: true},
		{name: "at limit", maxPending: 3, pending: 3, wantAccepted: false},
		{name: "unconfigured accepts", maxPending: 0, pending: 10, wantAccepted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := queue.New("guild-1")
			for i := 0; i < tt.pending; i++ {
				q.Add(track.NewQueueEntry("url", "", 0, alice))
			}
			// Entries by other users never count.
			q.Add(track.NewQueueEntry("url", "", 0, track.Requester{ID: "user-2"}))

			f := &UserPendingFilter{maxPending: tt.maxPending}
			result := f.Check(context.Background(), Request{Requester: alice}, track.NewQueueEntry("new", "", 0, alice), q)

			assert.Equal(t, tt.wantAccepted, result.Accepted)
			if !tt.wantAccepted {
				assert.Equal(t, "user_pending", result.Code)
			}
		})
	}
}

func TestQueueLimitFilter_Check(t *testing.T) {
	f := &QueueLimitFilter{}
	require.NoError(t, f.ValidateConfig(map[string]any{"max_entries": 2}))

	e := track.NewQueueEntry("new", "", 0, alice)
	assert.True(t, f.Check(context.Background(), Request{}, e, queueWith("a")).Accepted)

	result := f.Check(context.Background(), Request{}, e, queueWith("a", "b"))
	assert.False(t, result.Accepted)
	assert.Equal(t, "queue_limit", result.Code)
}

func TestQueueLimitFilter_ValidateConfig(t *testing.T) {
	f := &QueueLimitFilter{}
	require.NoError(t, f.ValidateConfig(map[string]any{}))
	assert.Equal(t, 500, f.maxEntries)

	require.NoError(t, f.ValidateConfig(map[string]any{"max_entries": "25"}))
	assert.Equal(t, 25, f.maxEntries)

	assert.Error(t, (&QueueLimitFilter{}).ValidateConfig(map[string]any{"max_entries": -1}))
}

func TestDurationLimitFilter_Check(t *testing.T) {
	tests := []struct {
		name         string
		minMinutes   float64
		maxMinutes   float64
		duration     time.Duration
		shouldReject bool
	}{
		{name: "within limits", minMinutes: 2, maxMinutes: 5, duration: 3 * time.Minute},
		{name: "too short", minMinutes: 3, duration: 2 * time.Minute, shouldReject: true},
		{name: "too long", minMinutes: 1, maxMinutes: 5, duration: 6 * time.Minute, shouldReject: true},
		{name: "exact min", minMinutes: 3, duration: 3 * time.Minute},
		{name: "exact max", minMinutes: 1, maxMinutes: 5, duration: 5 * time.Minute},
		{name: "unknown duration accepted", minMinutes: 1, maxMinutes: 5, duration: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewDurationLimitFilter()
			f.config = &DurationLimitConfig{
				MinMinutes: tt.minMinutes,
				MaxMinutes: tt.maxMinutes,
			}

			result := f.Check(context.Background(), Request{}, track.NewQueueEntry("u", "", tt.duration, alice), queueWith())

			if tt.shouldReject {
				assert.False(t, result.Accepted)
				assert.Equal(t, "duration_limit_exceeded", result.Code)
			} else {
				assert.True(t, result.Accepted)
			}
		})
	}
}

func TestDurationLimitFilter_ValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		wantErr  bool
	}{
		{name: "valid config", settings: map[string]any{"min_minutes": 2.5, "max_minutes": 5.0}},
		{name: "valid integers", settings: map[string]any{"min_minutes": 2, "max_minutes": 5}},
		{name: "min greater than max", settings: map[string]any{"min_minutes": 10.0, "max_minutes": 5.0}, wantErr: true},
		{name: "negative min", settings: map[string]any{"min_minutes": -1.0}, wantErr: true},
		{name: "negative max", settings: map[string]any{"max_minutes": -1.0}, wantErr: true},
		{name: "empty settings use defaults", settings: map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewDurationLimitFilter().ValidateConfig(tt.settings)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChain_Execute(t *testing.T) {
	chain := NewChain()
	chain.Add(&DuplicateEntryFilter{})
	chain.Add(&QueueLimitFilter{maxEntries: 2})
	assert.Equal(t, 2, chain.Len())

	req := Request{GuildID: "guild-1", Requester: alice}

	assert.True(t, chain.Execute(context.Background(), req, track.NewQueueEntry("b", "", 0, alice), queueWith("a")).Accepted)

	result := chain.Execute(context.Background(), req, track.NewQueueEntry("a", "", 0, alice), queueWith("a", "b"))
	assert.Equal(t, "duplicate_entry", result.Code, "first rejecting filter wins")

	result = chain.Execute(context.Background(), req, track.NewQueueEntry("c", "", 0, alice), queueWith("a", "b"))
	assert.Equal(t, "queue_limit", result.Code)
}

func TestRegistered(t *testing.T) {
	assert.Equal(t, []string{
		"duplicate_entry_filter",
		"duration_limit_filter",
		"queue_limit_filter",
		"user_pending_filter",
	}, RegisteredNames())

	for name, factory := range GetRegistered() {
		f := factory()
		assert.Equal(t, name, f.Name())
		assert.NotEmpty(t, f.Description())
		assert.NotEmpty(t, f.ReturnCodes())
	}
}

func TestRejectError(t *testing.T) {
	err := errors.Wrap(&RejectError{Code: "queue_limit", URL: "u"}, "add")

	code, ok := AsReject(err)
	assert.True(t, ok)
	assert.Equal(t, "queue_limit", code)

	_, ok = AsReject(errors.New("other"))
	assert.False(t, ok)
}
