package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/hykura/mailmind/internal/prompt/domain"

	"gorm.io/gorm"
)

// TemplateRepository is the template-store collaborator boundary: the core
// reads three named plain-text templates from it.
type TemplateRepository interface {
	Get(name string) (*domain.Template, error)
	List() ([]*domain.Template, error)
	Save(template *domain.Template) error
}

type gormTemplateRepository struct {
	db *gorm.DB
}

var defaultTemplates = map[string]string{
	domain.TemplateCategorization: "Categorize this email into a single short label such as 'Work', 'Personal', 'Newsletter' or 'Finance'. Return ONLY the category name, nothing else.",
	domain.TemplateActionItems:    "Extract action items from this email. Return JSON of the form {\"tasks\": [{\"task\": \"...\", \"deadline\": \"...\"}]}. Use an empty list when there is nothing to do. Return ONLY the JSON.",
	domain.TemplateAutoReply:      "Draft a short, polite reply to this email. Match the sender's tone and answer any direct questions.",
}

// NewGormTemplateRepository seeds the three default templates on first run.
func NewGormTemplateRepository(db *gorm.DB) (TemplateRepository, error) {
	r := &gormTemplateRepository{db: db}
	for name, text := range defaultTemplates {
		existing, err := r.Get(name)
		if err != nil {
			return nil, fmt.Errorf("failed to seed templates: %w", err)
		}
		if existing == nil {
			if err := r.Save(&domain.Template{Name: name, Text: text}); err != nil {
				return nil, fmt.Errorf("failed to seed templates: %w", err)
			}
		}
	}
	return r, nil
}

func (r *gormTemplateRepository) Get(name string) (*domain.Template, error) {
	var template domain.Template
	err := r.db.Where("name = ?", name).First(&template).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &template, nil
}

func (r *gormTemplateRepository) List() ([]*domain.Template, error) {
	var templates []*domain.Template
	err := r.db.Order("name ASC").Find(&templates).Error
	return templates, err
}

func (r *gormTemplateRepository) Save(template *domain.Template) error {
	template.UpdatedAt = time.Now()
	return r.db.Save(template).Error
}
