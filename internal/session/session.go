// Package session keeps the in-memory state of each logged-in browser
// session: its query cache and user context. State is created on the first
// authenticated request and torn down on logout or after idling.
package session

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/pliu/ponyexpress/internal/query"
	"github.com/pliu/ponyexpress/internal/user"
)

type State struct {
	ID    string
	Token string
	Cache *query.Client
	User  *user.Context

	lastSeen time.Time
}

func (s *State) close() {
	s.User.Close()
	s.Cache.Close()
}

type Manager struct {
	api      user.MeAPI
	cacheCfg query.Config
	idle     time.Duration
	log      zerolog.Logger
	now      func() time.Time

	mu     sync.Mutex
	states map[string]*State
}

// NewManager builds a manager whose sessions use cacheCfg for their query
// caches. States unused for idle are dropped by Sweep.
func NewManager(api user.MeAPI, cacheCfg query.Config, idle time.Duration, log zerolog.Logger) *Manager {
	now := cacheCfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		api:      api,
		cacheCfg: cacheCfg,
		idle:     idle,
		log:      log.With().Str("component", "session").Logger(),
		now:      now,
		states:   make(map[string]*State),
	}
}

// Get returns the state for a session, creating it if needed. A state
// whose token no longer matches is replaced.
func (m *Manager) Get(sessionID, token string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.states[sessionID]; ok {
		if st.Token == token {
			st.lastSeen = m.now()
			return st
		}
		st.close()
	}

	cache := query.New(m.cacheCfg)
	st := &State{
		ID:       sessionID,
		Token:    token,
		Cache:    cache,
		User:     user.NewContext(cache, m.api, token),
		lastSeen: m.now(),
	}
	m.states[sessionID] = st
	m.log.Debug().Str("session", sessionID).Msg("session state created")
	return st
}

// Drop tears down a session's state.
func (m *Manager) Drop(sessionID string) {
	m.mu.Lock()
	st, ok := m.states[sessionID]
	delete(m.states, sessionID)
	m.mu.Unlock()

	if ok {
		st.close()
		m.log.Debug().Str("session", sessionID).Msg("session state dropped")
	}
}

// Sweep drops idle states and evicts unused entries from the rest.
func (m *Manager) Sweep() int {
	now := m.now()

	m.mu.Lock()
	var idle []*State
	var live []*State
	for id, st := range m.states {
		if m.idle > 0 && now.Sub(st.lastSeen) >= m.idle {
			idle = append(idle, st)
			delete(m.states, id)
			continue
		}
		live = append(live, st)
	}
	m.mu.Unlock()

	for _, st := range idle {
		st.close()
	}
	for _, st := range live {
		st.Cache.Sweep()
	}
	if len(idle) > 0 {
		m.log.Info().Int("dropped", len(idle)).Msg("idle sessions swept")
	}
	return len(idle)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

// Register exposes the number of live sessions as a gauge.
func (m *Manager) Register(reg prometheus.Registerer) error {
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "ponyexpress",
		Name:      "sessions_active",
		Help:      "Sessions with in-memory state.",
	}, func() float64 { return float64(m.Len()) }))
}

// Close drops every state.
func (m *Manager) Close() {
	m.mu.Lock()
	states := m.states
	m.states = make(map[string]*State)
	m.mu.Unlock()

	for _, st := range states {
		st.close()
	}
}
