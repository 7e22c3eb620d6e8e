package queue

import (
	"sort"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/voxbox/internal/domain/track"
)

func entry(url string) track.QueueEntry {
	return track.NewQueueEntry(url, "", 0, track.Requester{ID: "user-1", Name: "Alice"})
}

func urls(es []track.QueueEntry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.URL
	}
	return out
}

func fill(q *Queue, us ...string) {
	for _, u := range us {
		q.Add(entry(u))
	}
}

func TestQueue_AddPreservesOrder(t *testing.T) {
	q := New("guild-1")
	assert.True(t, q.IsEmpty())

	assert.Equal(t, 1, q.Add(entry("urlA")))
	assert.Equal(t, 2, q.Add(entry("urlB")))
	assert.Equal(t, 3, q.Add(entry("urlC")))

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []string{"urlA", "urlB", "urlC"}, urls(q.List(0)))
}

func TestQueue_AddMany(t *testing.T) {
	q := New("guild-1")
	fill(q, "urlA")

	n := q.AddMany([]track.QueueEntry{entry("urlB"), entry("urlC")})

	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"urlA", "urlB", "urlC"}, urls(q.List(0)))
}

func TestQueue_PopFront(t *testing.T) {
	q := New("guild-1")
	fill(q, "urlA", "urlB")

	e, err := q.PopFront()
	require.NoError(t, err)
	assert.Equal(t, "urlA", e.URL)

	e, err = q.PopFront()
	require.NoError(t, err)
	assert.Equal(t, "urlB", e.URL)

	_, err = q.PopFront()
	assert.True(t, errors.Is(err, ErrQueueEmpty))
}

func TestQueue_Peek(t *testing.T) {
	q := New("guild-1")

	_, ok := q.Peek()
	assert.False(t, ok)

	fill(q, "urlA", "urlB")
	e, ok := q.Peek()
	assert.True(t, ok)
	assert.Equal(t, "urlA", e.URL)
	assert.Equal(t, 2, q.Len(), "peek does not remove")
}

func TestQueue_Clear(t *testing.T) {
	q := New("guild-1")
	fill(q, "urlA", "urlB")

	removed := q.Clear()

	assert.Equal(t, []string{"urlA", "urlB"}, urls(removed))
	assert.True(t, q.IsEmpty())
	assert.Empty(t, q.Clear())
}

func TestQueue_TruncateTo(t *testing.T) {
	tests := []struct {
		name     string
		index    int
		wantErr  bool
		wantHead string
		expected []string
	}{
		{
			name:     "first position keeps everything",
			index:    1,
			wantHead: "urlA",
			expected: []string{"urlA", "urlB", "urlC", "urlD"},
		},
		{
			name:     "middle position drops n-1 entries",
			index:    3,
			wantHead: "urlC",
			expected: []string{"urlC", "urlD"},
		},
		{
			name:     "last position",
			index:    4,
			wantHead: "urlD",
			expected: []string{"urlD"},
		},
		{
			name:     "zero is out of range",
			index:    0,
			wantErr:  true,
			expected: []string{"urlA", "urlB", "urlC", "urlD"},
		},
		{
			name:     "negative is out of range",
			index:    -2,
			wantErr:  true,
			expected: []string{"urlA", "urlB", "urlC", "urlD"},
		},
		{
			name:     "past the end is out of range",
			index:    5,
			wantErr:  true,
			expected: []string{"urlA", "urlB", "urlC", "urlD"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New("guild-1")
			fill(q, "urlA", "urlB", "urlC", "urlD")

			head, err := q.TruncateTo(tt.index)

			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrIndexOutOfRange))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantHead, head.URL)
			}
			assert.Equal(t, tt.expected, urls(q.List(0)))
		})
	}
}

func TestQueue_TruncateToEmpty(t *testing.T) {
	q := New("guild-1")

	_, err := q.TruncateTo(1)
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))
}

func TestQueue_ShufflePreservesEntries(t *testing.T) {
	q := New("guild-1")
	in := []string{"urlA", "urlB", "urlC", "urlD", "urlE", "urlF", "urlG", "urlH"}
	fill(q, in...)

	q.Shuffle()

	got := urls(q.List(0))
	sort.Strings(got)
	assert.Equal(t, in, got)
}

func TestQueue_ShuffleSmallQueues(t *testing.T) {
	q := New("guild-1")
	q.Shuffle()
	assert.True(t, q.IsEmpty())

	fill(q, "urlA")
	q.Shuffle()
	assert.Equal(t, []string{"urlA"}, urls(q.List(0)))
}

func TestQueue_ShuffleEventuallyReorders(t *testing.T) {
	q := New("guild-1")
	fill(q, "urlA", "urlB", "urlC", "urlD", "urlE")
	original := urls(q.List(0))

	reordered := false
	for i := 0; i < 50 && !reordered; i++ {
		q.Shuffle()
		reordered = !assert.ObjectsAreEqual(original, urls(q.List(0)))
	}
	assert.True(t, reordered, "50 shuffles of 5 entries should not all be the identity")
}

func TestQueue_ListLimit(t *testing.T) {
	q := New("guild-1")
	fill(q, "urlA", "urlB", "urlC")

	assert.Equal(t, []string{"urlA", "urlB"}, urls(q.List(2)))
	assert.Equal(t, []string{"urlA", "urlB", "urlC"}, urls(q.List(20)))
	assert.Equal(t, []string{"urlA", "urlB", "urlC"}, urls(q.List(0)))
}

func TestQueue_ContainsAndCountBy(t *testing.T) {
	q := New("guild-1")
	fill(q, "urlA", "urlB")
	q.Add(track.NewQueueEntry("urlC", "", 0, track.Requester{ID: "user-2"}))

	assert.True(t, q.Contains("urlB"))
	assert.False(t, q.Contains("urlZ"))
	assert.Equal(t, 2, q.CountBy("user-1"))
	assert.Equal(t, 1, q.CountBy("user-2"))
	assert.Equal(t, 0, q.CountBy("user-3"))
}
