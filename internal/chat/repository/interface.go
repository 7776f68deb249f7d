package repository

import (
	"time"

	"github.com/hykura/mailmind/internal/chat/domain"
)

// SessionRepository persists conversation sessions and their turns.
type SessionRepository interface {
	CreateSession(session *domain.Session) error
	GetSession(id string) (*domain.Session, error)
	TouchSession(id string, at time.Time) error
	AppendTurn(turn *domain.Turn) error
	// RecentTurns returns the most recent limit turns in chronological
	// order.
	RecentTurns(sessionID string, limit int) ([]*domain.Turn, error)
	// DeleteSession purges the session and all its turns.
	DeleteSession(id string) error
}
