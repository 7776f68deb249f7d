package usecase

import (
	emaildomain "github.com/hykura/mailmind/internal/email/domain"
)

// EventType tags the typed events an ingestion run streams to subscribers.
type EventType string

const (
	EventCategoryUpdated    EventType = "category-updated"
	EventActionItemsUpdated EventType = "action-items-updated"
	EventWarning            EventType = "warning"
	// EventError is terminal: the current phase's remainder was aborted.
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

type Event struct {
	Type      EventType          `json:"type"`
	Email     *emaildomain.Email `json:"email,omitempty"`
	Message   string             `json:"message,omitempty"`
	Processed int                `json:"processed,omitempty"`
	Total     int                `json:"total,omitempty"`
}
