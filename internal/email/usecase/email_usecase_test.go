package usecase

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hykura/mailmind/internal/email/domain"
)

type fakeEmailRepo struct {
	mu     sync.Mutex
	emails map[string]*domain.Email
}

func newFakeEmailRepo(emails ...*domain.Email) *fakeEmailRepo {
	r := &fakeEmailRepo{emails: make(map[string]*domain.Email)}
	for _, e := range emails {
		copied := *e
		r.emails[e.ID] = &copied
	}
	return r
}

func (r *fakeEmailRepo) Upsert(email *domain.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *email
	r.emails[email.ID] = &copied
	return nil
}

func (r *fakeEmailRepo) UpsertBatch(emails []*domain.Email) error {
	for _, e := range emails {
		if err := r.Upsert(e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeEmailRepo) GetByID(id string) (*domain.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.emails[id]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeEmailRepo) ListBySource(source domain.Source, limit, offset int) ([]*domain.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Email
	for _, e := range r.emails {
		if e.Source == source {
			copied := *e
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if offset < len(out) {
		out = out[offset:]
	} else {
		out = nil
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeEmailRepo) ListUnenriched(source domain.Source) ([]*domain.Email, error) {
	return nil, nil
}
func (r *fakeEmailRepo) ListByIDs(ids []string) ([]*domain.Email, error) { return nil, nil }

func (r *fakeEmailRepo) CountBySource(source domain.Source) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, e := range r.emails {
		if e.Source == source {
			n++
		}
	}
	return n, nil
}

func (r *fakeEmailRepo) UpdateCategory(id, category string) error { return nil }

func (r *fakeEmailRepo) UpdateActionItems(id string, items domain.ActionItems) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.emails[id]
	if !ok {
		return fmt.Errorf("email %s not found", id)
	}
	e.ActionItems = items
	return nil
}

func (r *fakeEmailRepo) SetIndexed(id string, indexed bool) error { return nil }

func (r *fakeEmailRepo) SetRead(id string, read bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.emails[id]
	if !ok {
		return fmt.Errorf("email %s not found", id)
	}
	e.Read = read
	return nil
}

func (r *fakeEmailRepo) ClearEnrichment(source domain.Source) error { return nil }
func (r *fakeEmailRepo) DeleteBySource(source domain.Source) error  { return nil }
func (r *fakeEmailRepo) DeleteByIDs(ids []string) error             { return nil }

func localEmail(id, subject, sender string) *domain.Email {
	return &domain.Email{
		ID:        id,
		Source:    domain.SourceLocal,
		Subject:   subject,
		Sender:    sender,
		Timestamp: time.Now(),
		MessageID: "local-" + id,
	}
}

func TestToggleActionItemFlipsDone(t *testing.T) {
	email := localEmail("a", "subject", "alice@example.com")
	email.ActionItems = domain.ActionItems{
		{Task: "first"},
		{Task: "second"},
	}
	repo := newFakeEmailRepo(email)
	u := NewEmailUsecase(repo)

	updated, err := u.ToggleActionItem("a", 1)
	require.NoError(t, err)
	assert.False(t, updated.ActionItems[0].Done)
	assert.True(t, updated.ActionItems[1].Done)

	updated, err = u.ToggleActionItem("a", 1)
	require.NoError(t, err)
	assert.False(t, updated.ActionItems[1].Done)

	_, err = u.ToggleActionItem("a", 5)
	assert.Error(t, err)
	_, err = u.ToggleActionItem("a", -1)
	assert.Error(t, err)
	_, err = u.ToggleActionItem("missing", 0)
	assert.Error(t, err)
}

func TestDeleteActionItemCompactsList(t *testing.T) {
	email := localEmail("a", "subject", "alice@example.com")
	email.ActionItems = domain.ActionItems{
		{Task: "first"},
		{Task: "second"},
		{Task: "third"},
	}
	repo := newFakeEmailRepo(email)
	u := NewEmailUsecase(repo)

	updated, err := u.DeleteActionItem("a", 1)
	require.NoError(t, err)
	require.Len(t, updated.ActionItems, 2)
	assert.Equal(t, "first", updated.ActionItems[0].Task)
	assert.Equal(t, "third", updated.ActionItems[1].Task)

	stored, _ := repo.GetByID("a")
	assert.Len(t, stored.ActionItems, 2)
}

func TestConcurrentTogglesSerialize(t *testing.T) {
	email := localEmail("a", "subject", "alice@example.com")
	email.ActionItems = domain.ActionItems{{Task: "only"}}
	repo := newFakeEmailRepo(email)
	u := NewEmailUsecase(repo)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := u.ToggleActionItem("a", 0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// An even number of toggles lands back at the initial state.
	stored, _ := repo.GetByID("a")
	assert.False(t, stored.ActionItems[0].Done)
}

func TestSearchRanksSubjectAboveSender(t *testing.T) {
	repo := newFakeEmailRepo(
		localEmail("s1", "Budget meeting notes", "bob@example.com"),
		localEmail("s2", "Weekly update", "budget@example.com"),
		localEmail("s3", "Lunch plans", "carol@example.com"),
	)
	u := NewEmailUsecase(repo)

	results, err := u.Search(domain.SourceLocal, "budget", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "s1", results[0].ID)
	assert.Equal(t, "s2", results[1].ID)
}

func TestSearchToleratesTypos(t *testing.T) {
	repo := newFakeEmailRepo(localEmail("s1", "Quarterly budget review", "bob@example.com"))
	u := NewEmailUsecase(repo)

	results, err := u.Search(domain.SourceLocal, "budgte", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "s1", results[0].ID)
}

func TestMarkRead(t *testing.T) {
	repo := newFakeEmailRepo(localEmail("a", "subject", "alice@example.com"))
	u := NewEmailUsecase(repo)

	require.NoError(t, u.MarkRead("a", true))
	e, _ := repo.GetByID("a")
	assert.True(t, e.Read)

	require.NoError(t, u.MarkRead("a", false))
	e, _ = repo.GetByID("a")
	assert.False(t, e.Read)

	assert.Error(t, u.MarkRead("missing", true))
}

func TestLoadLocalInbox(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inbox.json")
	payload := `[
		{"id": "seed-1", "sender": "alice@example.com", "recipients": ["me@example.com"], "subject": "Welcome", "body": "hello", "timestamp": "2025-01-05T10:00:00Z", "thread_id": "th-1"},
		{"sender": "bob@example.com", "subject": "No id", "body": "gets one minted"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	repo := newFakeEmailRepo()
	u := NewEmailUsecase(repo)

	n, err := u.LoadLocalInbox(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	seeded, _ := repo.GetByID("seed-1")
	require.NotNil(t, seeded)
	assert.Equal(t, domain.SourceLocal, seeded.Source)
	assert.Equal(t, "me@example.com", seeded.Recipients)
	assert.Equal(t, "th-1", seeded.ThreadID)
	assert.Equal(t, 2025, seeded.Timestamp.Year())

	count, _ := repo.CountBySource(domain.SourceLocal)
	assert.Equal(t, int64(2), count)

	// Re-running is idempotent for ids it knows.
	n, err = u.LoadLocalInbox(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	seeded, _ = repo.GetByID("seed-1")
	require.NotNil(t, seeded)
}

func TestLoadLocalInboxMissingFileIsSkipped(t *testing.T) {
	u := NewEmailUsecase(newFakeEmailRepo())

	n, err := u.LoadLocalInbox(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoadLocalInboxRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	u := NewEmailUsecase(newFakeEmailRepo())
	_, err := u.LoadLocalInbox(path)
	assert.Error(t, err)
}
