package repository

import (
	"github.com/hykura/mailmind/internal/email/domain"
)

// EmailRepository defines the persistence interface for emails. The
// ingestion pipeline is the sole writer of Category, ActionItems and
// Indexed; sync and loaders own the identity/content fields.
type EmailRepository interface {
	// Upsert inserts or replaces by primary id, preserving core-owned
	// enrichment fields of an existing row (last-write-wins on content).
	Upsert(email *domain.Email) error
	// UpsertBatch commits a page of emails in a single transaction.
	// Either the whole page lands or none of it does.
	UpsertBatch(emails []*domain.Email) error

	GetByID(id string) (*domain.Email, error)
	ListBySource(source domain.Source, limit, offset int) ([]*domain.Email, error)
	// ListUnenriched returns emails of the source lacking terminal
	// ingestion state, oldest first.
	ListUnenriched(source domain.Source) ([]*domain.Email, error)
	ListByIDs(ids []string) ([]*domain.Email, error)
	CountBySource(source domain.Source) (int64, error)

	UpdateCategory(id, category string) error
	UpdateActionItems(id string, items domain.ActionItems) error
	SetIndexed(id string, indexed bool) error
	SetRead(id string, read bool) error

	// ClearEnrichment returns all emails of the source to unprocessed
	// state: category absent, action items empty, indexed false.
	ClearEnrichment(source domain.Source) error
	DeleteBySource(source domain.Source) error
	DeleteByIDs(ids []string) error
}
