package domain

import "time"

// Template names the core reads. The templates are user-editable plain
// text; the core never validates or versions them.
const (
	TemplateCategorization = "categorization"
	TemplateActionItems    = "action_items"
	TemplateAutoReply      = "auto_reply"
)

type Template struct {
	Name      string    `json:"name" gorm:"primaryKey"`
	Text      string    `json:"template"`
	UpdatedAt time.Time `json:"updated_at"`
}
