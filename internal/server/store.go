package server

import (
	"sync"
	"time"

	"research-assistant/internal/config"
	"research-assistant/internal/helper"
	"research-assistant/internal/metrics"
	"research-assistant/internal/session"

	"github.com/rs/zerolog/log"
)

// Store keeps one session per browser, keyed by the session cookie.
// Idle sessions are dropped on access once they are older than ttl.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	ttl      time.Duration
	cfg      *config.Config
	factory  session.ProviderFactory
	now      func() time.Time
}

func NewStore(cfg *config.Config, factory session.ProviderFactory) *Store {
	return &Store{
		sessions: make(map[string]*session.Session),
		ttl:      cfg.Server.SessionTTL,
		cfg:      cfg,
		factory:  factory,
		now:      time.Now,
	}
}

// Get returns the session for id, creating a new one under a fresh id when
// id is unknown or expired
func (s *Store) Get(id string) (*session.Session, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()

	if sess, ok := s.sessions[id]; ok && id != "" {
		return sess, id, nil
	}

	newID, err := helper.GenerateUUID()
	if err != nil {
		return nil, "", err
	}
	sess, err := session.New(s.cfg, s.factory)
	if err != nil {
		return nil, "", err
	}
	s.sessions[newID] = sess
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	log.Debug().Str("session", newID).Msg("Session created")
	return sess, newID, nil
}

// Len is the number of live sessions
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) sweep() {
	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, sess := range s.sessions {
		if sess.UpdatedAt().Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		metrics.ActiveSessions.Set(float64(len(s.sessions)))
		log.Debug().Int("removed", removed).Msg("Expired sessions dropped")
	}
}
