package domain

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Session is a conversation's identity. It stores only turn text — never
// retrieved context — so a corpus switch cannot leak stale content into a
// later turn. A turn's focus is supplied per request, not stored.
type Session struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

type Turn struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	SessionID string    `json:"session_id" gorm:"index;not null"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}
