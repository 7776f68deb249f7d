package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	emaildomain "github.com/hykura/mailmind/internal/email/domain"
	emailrepo "github.com/hykura/mailmind/internal/email/repository"
	ingest "github.com/hykura/mailmind/internal/ingest/usecase"
	"github.com/hykura/mailmind/pkg/config"
)

// VectorQuerier is the similarity-search surface the builder consumes.
type VectorQuerier interface {
	Query(ctx context.Context, query string, k int, source string) ([]string, []float64, error)
}

// retrieved pairs an email with its query distance.
type retrieved struct {
	email    *emaildomain.Email
	distance float64
}

// ContextBuilder assembles the LLM-ready context for a chat turn: an
// unconditional focus block followed by semantically retrieved emails.
type ContextBuilder struct {
	emailRepo emailrepo.EmailRepository
	vector    VectorQuerier
	config    *config.Config
}

func NewContextBuilder(emailRepo emailrepo.EmailRepository, vector VectorQuerier, cfg *config.Config) *ContextBuilder {
	return &ContextBuilder{
		emailRepo: emailRepo,
		vector:    vector,
		config:    cfg,
	}
}

// Build returns the context bundle for a query against one corpus.
// focusIDs are included verbatim and unconditionally, in the order given
// (thread order for a thread focus); they are never truncated. The semantic
// query always runs over the query text, never the focus text.
func (b *ContextBuilder) Build(ctx context.Context, source emaildomain.Source, query string, focusIDs []string, topK int) (string, error) {
	if topK <= 0 {
		topK = b.config.DefaultTopK
	}
	if topK > b.config.MaxTopK {
		topK = b.config.MaxTopK
	}

	var bundle strings.Builder

	inFocus := make(map[string]bool, len(focusIDs))
	for _, id := range focusIDs {
		email, err := b.emailRepo.GetByID(id)
		if err != nil {
			return "", err
		}
		if email == nil {
			continue
		}
		inFocus[id] = true
		writeFocusEmail(&bundle, email)
	}

	hits, err := b.retrieve(ctx, source, query, topK, inFocus)
	if err != nil {
		return "", err
	}

	// Drop the lowest-similarity retrieved items first when the bundle
	// would exceed the backend's input budget. Focus is never dropped.
	budget := b.config.ContextCharBudget
	if len(hits) > 0 {
		bundle.WriteString("\n=== Relevant Emails from Your Inbox ===\n")
		for i, hit := range hits {
			block := formatRetrievedEmail(i+1, hit.email)
			if bundle.Len()+len(block) > budget {
				break
			}
			bundle.WriteString(block)
		}
		bundle.WriteString("\n=== End Relevant Emails ===\n")
	}

	if bundle.Len() == 0 {
		bundle.WriteString("Context: the user is asking about their inbox in general.\n")
	}

	return bundle.String(), nil
}

func (b *ContextBuilder) retrieve(ctx context.Context, source emaildomain.Source, query string, topK int, exclude map[string]bool) ([]retrieved, error) {
	// Over-fetch to compensate for focus exclusion
	ids, distances, err := b.vector.Query(ctx, query, topK+len(exclude), string(source))
	if err != nil {
		return nil, err
	}

	distanceByID := make(map[string]float64, len(ids))
	keep := make([]string, 0, len(ids))
	for i, id := range ids {
		if exclude[id] {
			continue
		}
		// A hit with no reported distance ranks last, not best.
		distance := math.MaxFloat64
		if i < len(distances) {
			distance = distances[i]
		}
		distanceByID[id] = distance
		keep = append(keep, id)
	}

	emails, err := b.emailRepo.ListByIDs(keep)
	if err != nil {
		return nil, err
	}

	hits := make([]retrieved, 0, len(emails))
	for _, email := range emails {
		hits = append(hits, retrieved{email: email, distance: distanceByID[email.ID]})
	}

	// Descending similarity; ties go to the most recent email.
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].distance != hits[j].distance {
			return hits[i].distance < hits[j].distance
		}
		return hits[i].email.Timestamp.After(hits[j].email.Timestamp)
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func writeFocusEmail(b *strings.Builder, email *emaildomain.Email) {
	fmt.Fprintf(b, "Selected Email:\nFrom: %s\nSubject: %s\nDate: %s\nBody: %s\n\n",
		email.Sender, email.Subject, email.Timestamp.Format("2006-01-02 15:04"), email.Body)
}

func formatRetrievedEmail(idx int, email *emaildomain.Email) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n[Email %d]\n", idx)
	fmt.Fprintf(&b, "Date: %s\n", email.Timestamp.Format("2006-01-02 15:04"))
	b.WriteString(ingest.ComposeDocument(email))
	return b.String()
}
