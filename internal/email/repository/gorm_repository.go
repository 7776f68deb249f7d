package repository

import (
	"errors"
	"time"

	"github.com/hykura/mailmind/internal/email/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormEmailRepository implements EmailRepository using GORM
type gormEmailRepository struct {
	db *gorm.DB
}

// NewGormEmailRepository creates a new GORM-based EmailRepository
func NewGormEmailRepository(db *gorm.DB) EmailRepository {
	return &gormEmailRepository{db: db}
}

func (r *gormEmailRepository) Upsert(email *domain.Email) error {
	email.UpdatedAt = time.Now()
	// Content columns only; enrichment survives a re-sync of the same message.
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"source", "sender", "recipients", "subject", "body",
			"timestamp", "read", "thread_id", "message_id", "updated_at",
		}),
	}).Create(email).Error
}

func (r *gormEmailRepository) UpsertBatch(emails []*domain.Email) error {
	if len(emails) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for _, email := range emails {
			email.UpdatedAt = now
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"source", "sender", "recipients", "subject", "body",
					"timestamp", "read", "thread_id", "message_id", "updated_at",
				}),
			}).Create(email).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *gormEmailRepository) GetByID(id string) (*domain.Email, error) {
	var email domain.Email
	err := r.db.Where("id = ?", id).First(&email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &email, nil
}

func (r *gormEmailRepository) ListBySource(source domain.Source, limit, offset int) ([]*domain.Email, error) {
	var emails []*domain.Email
	q := r.db.Where("source = ?", source).Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	err := q.Find(&emails).Error
	return emails, err
}

func (r *gormEmailRepository) ListUnenriched(source domain.Source) ([]*domain.Email, error) {
	var emails []*domain.Email
	err := r.db.
		Where("source = ? AND (category IS NULL OR indexed = ?)", source, false).
		Order("timestamp ASC").
		Find(&emails).Error
	return emails, err
}

func (r *gormEmailRepository) ListByIDs(ids []string) ([]*domain.Email, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var emails []*domain.Email
	err := r.db.Where("id IN ?", ids).Find(&emails).Error
	return emails, err
}

func (r *gormEmailRepository) CountBySource(source domain.Source) (int64, error) {
	var count int64
	err := r.db.Model(&domain.Email{}).Where("source = ?", source).Count(&count).Error
	return count, err
}

func (r *gormEmailRepository) UpdateCategory(id, category string) error {
	return r.db.Model(&domain.Email{}).Where("id = ?", id).
		Updates(map[string]interface{}{"category": category, "updated_at": time.Now()}).Error
}

func (r *gormEmailRepository) UpdateActionItems(id string, items domain.ActionItems) error {
	return r.db.Model(&domain.Email{}).Where("id = ?", id).
		Updates(map[string]interface{}{"action_items": items, "updated_at": time.Now()}).Error
}

func (r *gormEmailRepository) SetIndexed(id string, indexed bool) error {
	return r.db.Model(&domain.Email{}).Where("id = ?", id).
		Updates(map[string]interface{}{"indexed": indexed, "updated_at": time.Now()}).Error
}

func (r *gormEmailRepository) SetRead(id string, read bool) error {
	return r.db.Model(&domain.Email{}).Where("id = ?", id).
		Updates(map[string]interface{}{"read": read, "updated_at": time.Now()}).Error
}

func (r *gormEmailRepository) ClearEnrichment(source domain.Source) error {
	return r.db.Model(&domain.Email{}).Where("source = ?", source).
		Updates(map[string]interface{}{
			"category":     nil,
			"action_items": domain.ActionItems{},
			"indexed":      false,
			"updated_at":   time.Now(),
		}).Error
}

func (r *gormEmailRepository) DeleteBySource(source domain.Source) error {
	return r.db.Where("source = ?", source).Delete(&domain.Email{}).Error
}

func (r *gormEmailRepository) DeleteByIDs(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Where("id IN ?", ids).Delete(&domain.Email{}).Error
}
