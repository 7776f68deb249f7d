package repository

import (
	"errors"
	"time"

	"github.com/hykura/mailmind/internal/sync/domain"

	"gorm.io/gorm"
)

type gormSyncStateRepository struct {
	db *gorm.DB
}

func NewGormSyncStateRepository(db *gorm.DB) SyncStateRepository {
	return &gormSyncStateRepository{db: db}
}

func (r *gormSyncStateRepository) Get(account string) (*domain.SyncState, error) {
	var state domain.SyncState
	err := r.db.Where("id = ?", account).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

func (r *gormSyncStateRepository) Save(state *domain.SyncState) error {
	state.UpdatedAt = time.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = state.UpdatedAt
	}
	return r.db.Save(state).Error
}

func (r *gormSyncStateRepository) Delete(account string) error {
	return r.db.Where("id = ?", account).Delete(&domain.SyncState{}).Error
}

type gormCredentialRepository struct {
	db *gorm.DB
}

func NewGormCredentialRepository(db *gorm.DB) CredentialRepository {
	return &gormCredentialRepository{db: db}
}

func (r *gormCredentialRepository) Get(account string) (*domain.Credential, error) {
	var cred domain.Credential
	err := r.db.Where("id = ?", account).First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cred, nil
}

func (r *gormCredentialRepository) Save(cred *domain.Credential) error {
	cred.UpdatedAt = time.Now()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = cred.UpdatedAt
	}
	return r.db.Save(cred).Error
}

func (r *gormCredentialRepository) Delete(account string) error {
	return r.db.Where("id = ?", account).Delete(&domain.Credential{}).Error
}
