package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Source identifies which corpus an email belongs to. The vector index and
// the ingestion-eligible store view hold exactly one source at a time.
type Source string

const (
	SourceLocal Source = "local"
	SourceGmail Source = "gmail"
)

// ActionItem is a task extracted from an email body. Its identity is the
// positional index within the email's list; deleting one compacts the list.
type ActionItem struct {
	Task     string `json:"task"`
	Deadline string `json:"deadline,omitempty"`
	Done     bool   `json:"done"`
}

// ActionItems is stored as a single JSONB column.
type ActionItems []ActionItem

func (a ActionItems) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *ActionItems) Scan(value interface{}) error {
	if value == nil {
		*a = ActionItems{}
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported action items column type %T", value)
	}
	return json.Unmarshal(b, a)
}

// Email is a persisted mailbox message plus the enrichment fields written by
// the ingestion pipeline. Identity and content fields come from the mailbox
// collaborators; Category, ActionItems and Indexed are core-owned.
type Email struct {
	ID          string      `json:"id" gorm:"primaryKey"`
	Source      Source      `json:"source" gorm:"index;not null"`
	Sender      string      `json:"sender"`
	Recipients  string      `json:"recipients"` // comma-joined addresses
	Subject     string      `json:"subject"`
	Body        string      `json:"body"`
	Timestamp   time.Time   `json:"timestamp" gorm:"index"`
	Read        bool        `json:"read"`
	ThreadID    string      `json:"thread_id" gorm:"index"`
	MessageID   string      `json:"message_id" gorm:"uniqueIndex"`
	Category    *string     `json:"category,omitempty"`
	ActionItems ActionItems `json:"action_items" gorm:"type:jsonb;default:'[]'"`
	// Indexed is the embedding reference: true iff a vector entry exists.
	Indexed   bool      `json:"indexed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Enriched reports whether the email reached terminal ingestion state.
func (e *Email) Enriched() bool {
	return e.Category != nil && e.Indexed
}
