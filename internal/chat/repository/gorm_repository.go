package repository

import (
	"errors"
	"sort"
	"time"

	"github.com/hykura/mailmind/internal/chat/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormSessionRepository struct {
	db *gorm.DB
}

func NewGormSessionRepository(db *gorm.DB) SessionRepository {
	return &gormSessionRepository{db: db}
}

func (r *gormSessionRepository) CreateSession(session *domain.Session) error {
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastActiveAt.IsZero() {
		session.LastActiveAt = now
	}
	return r.db.Create(session).Error
}

func (r *gormSessionRepository) GetSession(id string) (*domain.Session, error) {
	var session domain.Session
	err := r.db.Where("id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *gormSessionRepository) TouchSession(id string, at time.Time) error {
	return r.db.Model(&domain.Session{}).Where("id = ?", id).
		Update("last_active_at", at).Error
}

func (r *gormSessionRepository) AppendTurn(turn *domain.Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.New().String()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	return r.db.Create(turn).Error
}

func (r *gormSessionRepository) RecentTurns(sessionID string, limit int) ([]*domain.Turn, error) {
	var turns []*domain.Turn
	q := r.db.Where("session_id = ?", sessionID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&turns).Error; err != nil {
		return nil, err
	}
	// Most recent limit turns, oldest first
	sort.Slice(turns, func(i, j int) bool {
		return turns[i].CreatedAt.Before(turns[j].CreatedAt)
	})
	return turns, nil
}

func (r *gormSessionRepository) DeleteSession(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&domain.Turn{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.Session{}).Error
	})
}
