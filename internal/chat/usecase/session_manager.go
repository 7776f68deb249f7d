package usecase

import (
	"sync"
	"time"

	"github.com/hykura/mailmind/internal/chat/domain"
	"github.com/hykura/mailmind/internal/chat/repository"

	"github.com/google/uuid"
)

// SessionManager owns per-session turn history. Appends are serialized per
// session id and independent across sessions.
type SessionManager struct {
	repo repository.SessionRepository

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSessionManager(repo repository.SessionRepository) *SessionManager {
	return &SessionManager{
		repo:  repo,
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *SessionManager) lockFor(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	return l
}

// Append records a turn, minting a session id when none is supplied, and
// returns the session id.
func (m *SessionManager) Append(sessionID string, role domain.Role, content string) (string, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	l := m.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()

	session, err := m.repo.GetSession(sessionID)
	if err != nil {
		return "", err
	}
	now := time.Now()
	if session == nil {
		if err := m.repo.CreateSession(&domain.Session{ID: sessionID, CreatedAt: now, LastActiveAt: now}); err != nil {
			return "", err
		}
	} else if err := m.repo.TouchSession(sessionID, now); err != nil {
		return "", err
	}

	err = m.repo.AppendTurn(&domain.Turn{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	})
	if err != nil {
		return "", err
	}
	return sessionID, nil
}

// History returns the most recent limit turns in chronological order.
func (m *SessionManager) History(sessionID string, limit int) ([]*domain.Turn, error) {
	return m.repo.RecentTurns(sessionID, limit)
}

// Delete purges a session and its turns.
func (m *SessionManager) Delete(sessionID string) error {
	l := m.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()

	if err := m.repo.DeleteSession(sessionID); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.locks, sessionID)
	m.mu.Unlock()
	return nil
}
