package usecase

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hykura/mailmind/internal/email/domain"
	"github.com/hykura/mailmind/internal/email/repository"
	"github.com/hykura/mailmind/pkg/fuzzy"
)

// EmailUsecase serves mailbox reads and the small per-email mutations that
// do not go through the ingestion pipeline.
type EmailUsecase struct {
	emailRepo repository.EmailRepository

	// locks serializes action-item mutations per email so concurrent
	// toggle/delete calls never interleave a read-modify-write.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEmailUsecase(emailRepo repository.EmailRepository) *EmailUsecase {
	return &EmailUsecase{
		emailRepo: emailRepo,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (u *EmailUsecase) lockEmail(id string) *sync.Mutex {
	u.mu.Lock()
	defer u.mu.Unlock()
	l, ok := u.locks[id]
	if !ok {
		l = &sync.Mutex{}
		u.locks[id] = l
	}
	return l
}

// ListEmails returns emails of the source, newest first.
func (u *EmailUsecase) ListEmails(source domain.Source, limit, offset int) ([]*domain.Email, error) {
	if limit <= 0 {
		limit = 50
	}
	return u.emailRepo.ListBySource(source, limit, offset)
}

func (u *EmailUsecase) GetEmail(id string) (*domain.Email, error) {
	return u.emailRepo.GetByID(id)
}

// Search does typo-tolerant keyword matching over subject, sender and the
// leading part of the body, ranked by relevance. This complements semantic
// retrieval, which needs the email to be indexed first.
func (u *EmailUsecase) Search(source domain.Source, query string, limit int) ([]*domain.Email, error) {
	if limit <= 0 {
		limit = 20
	}

	// Scan window; search is over recent mail, not the full archive.
	candidates, err := u.emailRepo.ListBySource(source, 500, 0)
	if err != nil {
		return nil, err
	}

	threshold := fuzzy.Threshold(query)
	type scored struct {
		email *domain.Email
		score float64
	}
	var matches []scored
	for _, e := range candidates {
		body := e.Body
		if len(body) > 500 {
			body = body[:500]
		}
		if !fuzzy.Match(query, e.Subject, threshold) &&
			!fuzzy.Match(query, e.Sender, threshold) &&
			!fuzzy.Match(query, body, threshold) {
			continue
		}
		matches = append(matches, scored{email: e, score: fuzzy.Score(query, e.Subject, e.Sender)})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	results := make([]*domain.Email, len(matches))
	for i, m := range matches {
		results[i] = m.email
	}
	return results, nil
}

func (u *EmailUsecase) MarkRead(id string, read bool) error {
	email, err := u.emailRepo.GetByID(id)
	if err != nil {
		return err
	}
	if email == nil {
		return fmt.Errorf("email %s not found", id)
	}
	return u.emailRepo.SetRead(id, read)
}

// ToggleActionItem flips the done flag of the action item at index.
func (u *EmailUsecase) ToggleActionItem(emailID string, index int) (*domain.Email, error) {
	l := u.lockEmail(emailID)
	l.Lock()
	defer l.Unlock()

	email, err := u.emailRepo.GetByID(emailID)
	if err != nil {
		return nil, err
	}
	if email == nil {
		return nil, fmt.Errorf("email %s not found", emailID)
	}
	if index < 0 || index >= len(email.ActionItems) {
		return nil, fmt.Errorf("action item index %d out of range", index)
	}
	email.ActionItems[index].Done = !email.ActionItems[index].Done
	if err := u.emailRepo.UpdateActionItems(emailID, email.ActionItems); err != nil {
		return nil, err
	}
	return email, nil
}

// DeleteActionItem removes the action item at index. Remaining items shift
// down, so indexes held by callers are invalidated by this call.
func (u *EmailUsecase) DeleteActionItem(emailID string, index int) (*domain.Email, error) {
	l := u.lockEmail(emailID)
	l.Lock()
	defer l.Unlock()

	email, err := u.emailRepo.GetByID(emailID)
	if err != nil {
		return nil, err
	}
	if email == nil {
		return nil, fmt.Errorf("email %s not found", emailID)
	}
	if index < 0 || index >= len(email.ActionItems) {
		return nil, fmt.Errorf("action item index %d out of range", index)
	}
	email.ActionItems = append(email.ActionItems[:index], email.ActionItems[index+1:]...)
	if err := u.emailRepo.UpdateActionItems(emailID, email.ActionItems); err != nil {
		return nil, err
	}
	return email, nil
}

// localEmailRecord is the on-disk shape of a seed inbox file.
type localEmailRecord struct {
	ID         string   `json:"id"`
	Sender     string   `json:"sender"`
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Timestamp  string   `json:"timestamp"`
	ThreadID   string   `json:"thread_id"`
}

// LoadLocalInbox seeds the local corpus from a JSON file. Existing rows are
// upserted by id, so re-running the loader is harmless and keeps any
// enrichment already attached.
func (u *EmailUsecase) LoadLocalInbox(path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("[Email] local inbox file %s not found, skipping seed", path)
			return 0, nil
		}
		return 0, fmt.Errorf("read local inbox: %w", err)
	}

	var records []localEmailRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("parse local inbox: %w", err)
	}

	emails := make([]*domain.Email, 0, len(records))
	for _, r := range records {
		id := r.ID
		if id == "" {
			id = uuid.New().String()
		}
		ts := time.Now()
		if r.Timestamp != "" {
			if parsed, err := time.Parse(time.RFC3339, r.Timestamp); err == nil {
				ts = parsed
			}
		}
		recipients := ""
		for i, rcpt := range r.Recipients {
			if i > 0 {
				recipients += ", "
			}
			recipients += rcpt
		}
		threadID := r.ThreadID
		if threadID == "" {
			threadID = id
		}
		emails = append(emails, &domain.Email{
			ID:         id,
			Source:     domain.SourceLocal,
			Sender:     r.Sender,
			Recipients: recipients,
			Subject:    r.Subject,
			Body:       r.Body,
			Timestamp:  ts,
			ThreadID:   threadID,
			MessageID:  "local-" + id,
		})
	}

	if err := u.emailRepo.UpsertBatch(emails); err != nil {
		return 0, fmt.Errorf("seed local inbox: %w", err)
	}
	log.Printf("[Email] seeded %d local emails from %s", len(emails), path)
	return len(emails), nil
}
