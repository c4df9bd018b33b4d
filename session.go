package main

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/PixelParasite101/Packing-Lab/scenario"
)

const (
	maxSessions     = 100
	maxSessionName  = 30
	defaultScenario = "determinism"
)

var (
	ErrTooManySessions = errors.New("too many active sessions")
	ErrUnknownScenario = errors.New("unknown scenario")
)

// Session is one live world that clients can join
type Session struct {
	ID       string
	Name     string
	Scenario string
	Game     *Game

	mu         sync.Mutex
	controller string // client ID holding control
}

// Controller returns the client ID holding control
func (s *Session) Controller() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller
}

// claimControl makes clientID the controller when nobody holds control
// or force is set. It returns the previous controller.
func (s *Session) claimControl(clientID string, force bool) (prev string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev = s.controller
	if prev != "" && prev != clientID && !force {
		return prev, false
	}
	s.controller = clientID
	return prev, true
}

func (s *Session) releaseControl(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controller == clientID {
		s.controller = ""
	}
}

// SessionManager handles creation and lookup of sessions
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	tel      *Telemetry
}

// NewSessionManager creates a new SessionManager
func NewSessionManager(tel *Telemetry) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		tel:      tel,
	}
}

// CreateSession starts a session seeded from the named scenario
func (sm *SessionManager) CreateSession(name, scenarioName string) (*Session, error) {
	if scenarioName == "" {
		scenarioName = defaultScenario
	}
	sc, ok := scenario.Lookup(scenarioName)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownScenario, scenarioName)
	}
	if name == "" {
		name = sc.Name
	}
	if len(name) > maxSessionName {
		name = name[:maxSessionName]
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if len(sm.sessions) >= maxSessions {
		return nil, ErrTooManySessions
	}
	sess := &Session{
		ID:       GenerateUUID(),
		Name:     name,
		Scenario: sc.Name,
		Game:     NewGame(sc, sm.tel),
	}
	sm.sessions[sess.ID] = sess
	go sess.Game.Run()
	return sess, nil
}

// GetSession returns a session by ID
func (sm *SessionManager) GetSession(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// RemoveClient detaches a client and closes the session once empty
func (sm *SessionManager) RemoveClient(sessionID, clientID string) {
	sm.mu.RLock()
	sess, ok := sm.sessions[sessionID]
	sm.mu.RUnlock()
	if !ok {
		return
	}
	sess.Game.RemoveClient(clientID)
	sess.releaseControl(clientID)

	if sess.Game.ClientCount() == 0 {
		sess.Game.Stop()
		sm.mu.Lock()
		delete(sm.sessions, sessionID)
		sm.mu.Unlock()
	}
}

// Count returns the number of live sessions
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// ListSessions returns info about all active sessions ordered by name
func (sm *SessionManager) ListSessions() []SessionInfo {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	list := make([]SessionInfo, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		list = append(list, SessionInfo{
			ID:       sess.ID,
			Name:     sess.Name,
			Scenario: sess.Scenario,
			Clients:  sess.Game.ClientCount(),
			Bodies:   sess.Game.BodyCount(),
		})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID < list[j].ID
	})
	return list
}
