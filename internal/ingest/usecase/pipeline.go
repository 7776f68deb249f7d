package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	emaildomain "github.com/hykura/mailmind/internal/email/domain"
	emailrepo "github.com/hykura/mailmind/internal/email/repository"
	promptdomain "github.com/hykura/mailmind/internal/prompt/domain"
	promptrepo "github.com/hykura/mailmind/internal/prompt/repository"
	"github.com/hykura/mailmind/pkg/llm"
)

// ErrIngestRunning is returned when a run is requested while one is active
// for the scope. Requests are rejected, never queued.
var ErrIngestRunning = errors.New("ingestion already running")

// indexBatchSize bounds how many composed documents are held in memory at
// once during the indexing phase.
const indexBatchSize = 25

// VectorIndex is the vector-store surface the pipeline consumes.
type VectorIndex interface {
	Upsert(ctx context.Context, id, document, source, category string) error
	DeleteSource(ctx context.Context, source string) error
}

// Pipeline enriches a corpus in three pipeline-wide phases: categorize,
// extract action items, index. Every email finishes a phase before the next
// phase begins, and per-item failures never abort the batch.
type Pipeline struct {
	emailRepo emailrepo.EmailRepository
	templates promptrepo.TemplateRepository
	completer llm.Completer
	vector    VectorIndex

	mu      sync.Mutex
	running bool
}

func NewPipeline(emailRepo emailrepo.EmailRepository, templates promptrepo.TemplateRepository, completer llm.Completer, vector VectorIndex) *Pipeline {
	return &Pipeline{
		emailRepo: emailRepo,
		templates: templates,
		completer: completer,
		vector:    vector,
	}
}

// Run starts an ingestion run over the source's unprocessed emails and
// returns a stream of typed events. The channel closes when the run ends;
// cancelling the context stops the run after the in-flight call, keeping
// all committed progress.
func (p *Pipeline) Run(ctx context.Context, source emaildomain.Source) (<-chan Event, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil, ErrIngestRunning
	}
	p.running = true
	p.mu.Unlock()

	emails, err := p.emailRepo.ListUnenriched(source)
	if err != nil {
		p.release()
		return nil, err
	}

	catTemplate, err := p.template(promptdomain.TemplateCategorization)
	if err != nil {
		p.release()
		return nil, err
	}
	actionTemplate, err := p.template(promptdomain.TemplateActionItems)
	if err != nil {
		p.release()
		return nil, err
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer p.release()
		p.run(ctx, source, emails, catTemplate, actionTemplate, events)
	}()
	return events, nil
}

func (p *Pipeline) release() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

func (p *Pipeline) template(name string) (string, error) {
	t, err := p.templates.Get(name)
	if err != nil {
		return "", err
	}
	if t == nil {
		return "", fmt.Errorf("template %q not found", name)
	}
	return t.Text, nil
}

func (p *Pipeline) run(ctx context.Context, source emaildomain.Source, emails []*emaildomain.Email, catTemplate, actionTemplate string, events chan<- Event) {
	total := len(emails)
	log.Printf("[Ingest] Starting run over %d %s emails", total, source)

	if !p.categorize(ctx, emails, catTemplate, total, events) {
		return
	}
	if !p.extractActions(ctx, emails, actionTemplate, total, events) {
		return
	}
	if !p.index(ctx, source, emails, events) {
		return
	}

	p.emit(ctx, events, Event{Type: EventComplete, Total: total})
	log.Printf("[Ingest] Run complete: %d emails", total)
}

// emit delivers an event unless the run's context is done. A disconnected
// subscriber stops receiving, so an unconditional send would strand the
// goroutine and hold the single-flight slot forever.
func (p *Pipeline) emit(ctx context.Context, events chan<- Event, event Event) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// categorize is phase 1. The returned label is stored verbatim: categories
// come from a user-editable template, not a closed set.
func (p *Pipeline) categorize(ctx context.Context, emails []*emaildomain.Email, template string, total int, events chan<- Event) bool {
	for idx, email := range emails {
		if ctx.Err() != nil {
			return false
		}
		if email.Category != nil {
			continue
		}

		prompt := fmt.Sprintf("%s\n\nEmail Body:\n%s", template, email.Body)
		label, err := p.completer.Complete(ctx, prompt)
		if err != nil {
			return p.abortPhase(ctx, "categorize", err, events)
		}

		label = strings.TrimSpace(label)
		if err := p.emailRepo.UpdateCategory(email.ID, label); err != nil {
			return p.abortPhase(ctx, "categorize", err, events)
		}
		email.Category = &label

		if !p.emit(ctx, events, Event{Type: EventCategoryUpdated, Email: email, Processed: idx + 1, Total: total}) {
			return false
		}
	}
	return true
}

// extractActions is phase 2. A malformed response degrades that single
// email to an empty list plus a warning; the batch continues.
func (p *Pipeline) extractActions(ctx context.Context, emails []*emaildomain.Email, template string, total int, events chan<- Event) bool {
	for idx, email := range emails {
		if ctx.Err() != nil {
			return false
		}
		if len(email.ActionItems) > 0 {
			continue
		}

		prompt := fmt.Sprintf("%s\n\nEmail Body:\n%s", template, email.Body)
		response, err := p.completer.Complete(ctx, prompt)
		if err != nil {
			return p.abortPhase(ctx, "extract", err, events)
		}

		items, parseErr := parseActionItems(response)
		if parseErr != nil {
			items = emaildomain.ActionItems{}
			if !p.emit(ctx, events, Event{Type: EventWarning, Email: email, Message: fmt.Sprintf("action item parsing failed: %v", parseErr)}) {
				return false
			}
		}

		if err := p.emailRepo.UpdateActionItems(email.ID, items); err != nil {
			return p.abortPhase(ctx, "extract", err, events)
		}
		email.ActionItems = items

		if !p.emit(ctx, events, Event{Type: EventActionItemsUpdated, Email: email, Processed: idx + 1, Total: total}) {
			return false
		}
	}
	return true
}

// index is phase 3: embed a composed representation of each email and
// upsert it, batched to bound memory.
func (p *Pipeline) index(ctx context.Context, source emaildomain.Source, emails []*emaildomain.Email, events chan<- Event) bool {
	for start := 0; start < len(emails); start += indexBatchSize {
		end := start + indexBatchSize
		if end > len(emails) {
			end = len(emails)
		}

		for _, email := range emails[start:end] {
			if ctx.Err() != nil {
				return false
			}
			if email.Indexed {
				continue
			}

			category := ""
			if email.Category != nil {
				category = *email.Category
			}
			if err := p.vector.Upsert(ctx, email.ID, ComposeDocument(email), string(source), category); err != nil {
				return p.abortPhase(ctx, "index", err, events)
			}
			if err := p.emailRepo.SetIndexed(email.ID, true); err != nil {
				return p.abortPhase(ctx, "index", err, events)
			}
			email.Indexed = true
		}
	}
	return true
}

// abortPhase emits the terminal error event carrying the backend's raw
// message. Committed results from this and prior phases stay in place.
// Cancellation is not a backend failure: no error event is emitted for it.
func (p *Pipeline) abortPhase(ctx context.Context, phase string, err error, events chan<- Event) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		log.Printf("[Ingest] Phase %s cancelled", phase)
		return false
	}

	var backendErr *llm.BackendError
	message := err.Error()
	if errors.As(err, &backendErr) {
		message = backendErr.Message
	}
	log.Printf("[Ingest] Phase %s aborted: %v", phase, err)
	p.emit(ctx, events, Event{Type: EventError, Message: message})
	return false
}

// Reset returns the source's emails to unprocessed state and drops their
// vector entries.
func (p *Pipeline) Reset(ctx context.Context, source emaildomain.Source) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrIngestRunning
	}
	p.running = true
	p.mu.Unlock()
	defer p.release()

	if err := p.vector.DeleteSource(ctx, string(source)); err != nil {
		return err
	}
	return p.emailRepo.ClearEnrichment(source)
}

// parseActionItems pulls the JSON object out of a model response that may
// be wrapped in prose or code fences.
func parseActionItems(response string) (emaildomain.ActionItems, error) {
	text := strings.TrimSpace(response)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	text = text[start : end+1]

	var parsed struct {
		Tasks []struct {
			Task     string `json:"task"`
			Deadline string `json:"deadline"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, err
	}

	items := make(emaildomain.ActionItems, 0, len(parsed.Tasks))
	for _, t := range parsed.Tasks {
		if t.Task == "" {
			continue
		}
		items = append(items, emaildomain.ActionItem{Task: t.Task, Deadline: t.Deadline})
	}
	return items, nil
}

// ComposeDocument builds the text representation an email is embedded
// under: subject, body, category and a summary of its action items.
func ComposeDocument(email *emaildomain.Email) string {
	var b strings.Builder

	category := "Uncategorized"
	if email.Category != nil && *email.Category != "" {
		category = *email.Category
	}
	fmt.Fprintf(&b, "Category/Tag: %s\n", category)
	fmt.Fprintf(&b, "Subject: %s\n", email.Subject)
	fmt.Fprintf(&b, "From: %s\n", email.Sender)
	if email.Recipients != "" {
		fmt.Fprintf(&b, "To: %s\n", email.Recipients)
	}
	fmt.Fprintf(&b, "\nEmail Body:\n%s\n", email.Body)

	if len(email.ActionItems) > 0 {
		b.WriteString("\n=== ACTION ITEMS ===\n")
		for i, item := range email.ActionItems {
			if item.Deadline != "" {
				fmt.Fprintf(&b, "%d. %s (Deadline: %s)\n", i+1, item.Task, item.Deadline)
			} else {
				fmt.Fprintf(&b, "%d. %s\n", i+1, item.Task)
			}
		}
		b.WriteString("=== END ACTION ITEMS ===\n")
	}

	return b.String()
}
