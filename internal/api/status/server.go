// Package status serves a read-only JSON view of every guild's playback state.
package status

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/voxbox/internal/app/notification"
	"github.com/osa030/voxbox/internal/app/playback"
	"github.com/osa030/voxbox/internal/domain/track"
)

// TokenHeader is the header carrying the status token.
const TokenHeader = "X-Status-Token"

// Source provides guild snapshots.
type Source interface {
	Status() []playback.Status
}

// History provides recent announcements per guild.
type History interface {
	Recent(guildID string) []notification.Announcement
}

// Entry is the JSON form of a queue entry.
type Entry struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
	DurationSec int    `json:"duration_sec,omitempty"`
}

// GuildStatus is the JSON form of one guild.
type GuildStatus struct {
	GuildID       string                      `json:"guild_id"`
	Connected     bool                        `json:"connected"`
	Running       bool                        `json:"running"`
	State         string                      `json:"state"`
	Current       *Entry                      `json:"current,omitempty"`
	Next          *Entry                      `json:"next,omitempty"`
	QueueLength   int                         `json:"queue_length"`
	Announcements []notification.Announcement `json:"announcements"`
}

// Response is the body of GET /status.
type Response struct {
	Guilds []GuildStatus `json:"guilds"`
	Time   time.Time     `json:"time"`
}

// Server serves GET /status.
type Server struct {
	source  Source
	history History
	token   string
}

// NewServer creates a new status server. An empty token disables the
// token check.
func NewServer(source Source, history History, token string) *Server {
	return &Server{
		source:  source,
		history: history,
		token:   token,
	}
}

// Handler returns the HTTP handler with h2c (HTTP/2 cleartext) support.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /status", s.authenticate(http.HandlerFunc(s.handleStatus)))
	return h2c.NewHandler(mux, &http2.Server{})
}

// authenticate rejects requests without the configured token.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			token := r.Header.Get(TokenHeader)
			if subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := Response{
		Guilds: []GuildStatus{},
		Time:   time.Now().UTC(),
	}
	for _, st := range s.source.Status() {
		gs := GuildStatus{
			GuildID:       st.GuildID,
			Connected:     st.Connected,
			Running:       st.Running,
			State:         st.State.String(),
			QueueLength:   st.QueueLength,
			Announcements: s.history.Recent(st.GuildID),
		}
		gs.Current = toEntry(st.Current)
		gs.Next = toEntry(st.Next)
		resp.Guilds = append(resp.Guilds, gs)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		zlog.Warn().Err(err).Msgf("status: failed to write response: remote=%s", r.RemoteAddr)
	}
}

func toEntry(e *track.QueueEntry) *Entry {
	if e == nil {
		return nil
	}
	return &Entry{
		URL:         e.URL,
		Title:       e.Title,
		RequestedBy: e.Requester.Name,
		DurationSec: int(e.Duration.Seconds()),
	}
}
