package repository

import (
	"github.com/hykura/mailmind/internal/sync/domain"
)

// SyncStateRepository persists the per-account change cursor.
type SyncStateRepository interface {
	Get(account string) (*domain.SyncState, error)
	Save(state *domain.SyncState) error
	Delete(account string) error
}

// CredentialRepository persists the opaque token record for a remote
// account. The synchronizer is its only consumer.
type CredentialRepository interface {
	Get(account string) (*domain.Credential, error)
	Save(cred *domain.Credential) error
	Delete(account string) error
}
