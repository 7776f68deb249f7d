package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	emaildomain "github.com/hykura/mailmind/internal/email/domain"
	"github.com/hykura/mailmind/internal/sync/domain"
	"github.com/hykura/mailmind/pkg/config"
	"github.com/hykura/mailmind/pkg/gmail"
)

type fakeEmailRepo struct {
	mu     sync.Mutex
	emails map[string]*emaildomain.Email

	failBatchAfter int // fail UpsertBatch once this many batches committed; <0 disables
	batches        int
}

func newFakeEmailRepo() *fakeEmailRepo {
	return &fakeEmailRepo{emails: make(map[string]*emaildomain.Email), failBatchAfter: -1}
}

func (r *fakeEmailRepo) Upsert(email *emaildomain.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *email
	r.emails[email.ID] = &copied
	return nil
}

func (r *fakeEmailRepo) UpsertBatch(emails []*emaildomain.Email) error {
	r.mu.Lock()
	if r.failBatchAfter >= 0 && r.batches >= r.failBatchAfter {
		r.mu.Unlock()
		return fmt.Errorf("transaction failed")
	}
	r.batches++
	r.mu.Unlock()
	for _, e := range emails {
		if err := r.Upsert(e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeEmailRepo) GetByID(id string) (*emaildomain.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.emails[id]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeEmailRepo) ListBySource(source emaildomain.Source, limit, offset int) ([]*emaildomain.Email, error) {
	return nil, nil
}

func (r *fakeEmailRepo) ListUnenriched(source emaildomain.Source) ([]*emaildomain.Email, error) {
	return nil, nil
}

func (r *fakeEmailRepo) ListByIDs(ids []string) ([]*emaildomain.Email, error) { return nil, nil }

func (r *fakeEmailRepo) CountBySource(source emaildomain.Source) (int64, error) {
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
func (r *fakeEmailRepo) UpdateActionItems(id string, items emaildomain.ActionItems) error {
	return nil
}
func (r *fakeEmailRepo) SetIndexed(id string, indexed bool) error { return nil }
func (r *fakeEmailRepo) SetRead(id string, read bool) error       { return nil }

func (r *fakeEmailRepo) ClearEnrichment(source emaildomain.Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.emails {
		if e.Source == source {
			e.Category = nil
			e.ActionItems = emaildomain.ActionItems{}
			e.Indexed = false
		}
	}
	return nil
}

func (r *fakeEmailRepo) DeleteBySource(source emaildomain.Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.emails {
		if e.Source == source {
			delete(r.emails, id)
		}
	}
	return nil
}

func (r *fakeEmailRepo) DeleteByIDs(ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.emails, id)
	}
	return nil
}

type fakeStateRepo struct {
	mu     sync.Mutex
	states map[string]*domain.SyncState
	saves  []uint64 // cursor value at each save
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{states: make(map[string]*domain.SyncState)}
}

func (r *fakeStateRepo) Get(account string) (*domain.SyncState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[account]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeStateRepo) Save(state *domain.SyncState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *state
	r.states[state.ID] = &copied
	r.saves = append(r.saves, state.HistoryID)
	return nil
}

func (r *fakeStateRepo) Delete(account string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, account)
	return nil
}

type fakeCredRepo struct {
	mu    sync.Mutex
	creds map[string]*domain.Credential
}

func newFakeCredRepo() *fakeCredRepo {
	return &fakeCredRepo{creds: make(map[string]*domain.Credential)}
}

func (r *fakeCredRepo) Get(account string) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.creds[account]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeCredRepo) Save(cred *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *cred
	r.creds[cred.ID] = &copied
	return nil
}

func (r *fakeCredRepo) Delete(account string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.creds, account)
	return nil
}

// fakeMailbox serves a scripted remote mailbox.
type fakeMailbox struct {
	profile     string
	profileErr  error
	pages       []gmail.MessagePage
	history     []gmail.HistoryPage
	historyErr  error
	messages    map[string]*emaildomain.Email
	historyIDs  map[string]uint64
	getErrOn    string
	getErrOnce  string
	listErrOnce bool
	block       chan struct{}
	entered     chan struct{}
}

func (m *fakeMailbox) Profile(ctx context.Context, token *oauth2.Token, onRefresh gmail.TokenUpdateFunc) (string, error) {
	if m.profileErr != nil {
		return "", m.profileErr
	}
	return m.profile, nil
}

func (m *fakeMailbox) ListMessagePage(ctx context.Context, token *oauth2.Token, onRefresh gmail.TokenUpdateFunc, pageToken string, pageSize int64) (*gmail.MessagePage, error) {
	if m.block != nil {
		if m.entered != nil {
			close(m.entered)
			m.entered = nil
		}
		<-m.block
	}
	if m.listErrOnce {
		m.listErrOnce = false
		return nil, fmt.Errorf("transient remote error")
	}
	idx := 0
	if pageToken != "" {
		fmt.Sscanf(pageToken, "page-%d", &idx)
	}
	if idx >= len(m.pages) {
		return &gmail.MessagePage{}, nil
	}
	return &m.pages[idx], nil
}

func (m *fakeMailbox) ListHistoryPage(ctx context.Context, token *oauth2.Token, onRefresh gmail.TokenUpdateFunc, startHistoryID uint64, pageToken string) (*gmail.HistoryPage, error) {
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	idx := 0
	if pageToken != "" {
		fmt.Sscanf(pageToken, "page-%d", &idx)
	}
	if idx >= len(m.history) {
		return &gmail.HistoryPage{}, nil
	}
	return &m.history[idx], nil
}

func (m *fakeMailbox) GetMessage(ctx context.Context, token *oauth2.Token, onRefresh gmail.TokenUpdateFunc, id string) (*emaildomain.Email, uint64, error) {
	if m.getErrOn == id {
		return nil, 0, gmail.ErrReauthRequired
	}
	if m.getErrOnce == id {
		m.getErrOnce = ""
		return nil, 0, fmt.Errorf("transient remote error")
	}
	if e, ok := m.messages[id]; ok {
		copied := *e
		return &copied, m.historyIDs[id], nil
	}
	return nil, 0, fmt.Errorf("message %s not found", id)
}

type fakePurger struct {
	mu         sync.Mutex
	purged     []string
	deletedIDs []string
}

func (p *fakePurger) DeleteSource(ctx context.Context, source string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purged = append(p.purged, source)
	return nil
}

func (p *fakePurger) DeleteIDs(ctx context.Context, ids []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deletedIDs = append(p.deletedIDs, ids...)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		SyncInterval: time.Minute,
		SyncPageSize: 2,
	}
}

func remoteEmail(id string) *emaildomain.Email {
	return &emaildomain.Email{
		ID:        id,
		Source:    emaildomain.SourceGmail,
		Subject:   "remote " + id,
		MessageID: id,
		Timestamp: time.Now(),
	}
}

func connectedSyncer(t *testing.T, mailbox *fakeMailbox) (*Syncer, *fakeEmailRepo, *fakeStateRepo, *fakePurger) {
	t.Helper()
	emailRepo := newFakeEmailRepo()
	stateRepo := newFakeStateRepo()
	credRepo := newFakeCredRepo()
	require.NoError(t, credRepo.Save(&domain.Credential{ID: Account, Token: `{"access_token":"tok"}`}))
	purger := &fakePurger{}
	s := NewSyncer(emailRepo, stateRepo, credRepo, mailbox, purger, testConfig())
	return s, emailRepo, stateRepo, purger
}

func TestFullSyncCommitsPageByPage(t *testing.T) {
	mailbox := &fakeMailbox{
		pages: []gmail.MessagePage{
			{IDs: []string{"m1", "m2"}, NextPageToken: "page-1"},
			{IDs: []string{"m3"}},
		},
		messages: map[string]*emaildomain.Email{
			"m1": remoteEmail("m1"), "m2": remoteEmail("m2"), "m3": remoteEmail("m3"),
		},
		historyIDs: map[string]uint64{"m1": 10, "m2": 12, "m3": 15},
	}
	s, emailRepo, stateRepo, _ := connectedSyncer(t, mailbox)

	result, err := s.Sync(context.Background(), domain.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, 3, result.SyncedCount)
	assert.True(t, result.FullSync)
	assert.Equal(t, uint64(15), result.Cursor)

	count, _ := emailRepo.CountBySource(emaildomain.SourceGmail)
	assert.Equal(t, int64(3), count)

	// The cursor only ever moves forward.
	var prev uint64
	for _, cursor := range stateRepo.saves {
		assert.GreaterOrEqual(t, cursor, prev)
		prev = cursor
	}
}

func TestMidSyncFailureKeepsCommittedPages(t *testing.T) {
	mailbox := &fakeMailbox{
		pages: []gmail.MessagePage{
			{IDs: []string{"m1", "m2"}, NextPageToken: "page-1"},
			{IDs: []string{"m3"}},
		},
		messages: map[string]*emaildomain.Email{
			"m1": remoteEmail("m1"), "m2": remoteEmail("m2"), "m3": remoteEmail("m3"),
		},
		historyIDs: map[string]uint64{"m1": 10, "m2": 12, "m3": 15},
	}
	s, emailRepo, stateRepo, _ := connectedSyncer(t, mailbox)
	emailRepo.failBatchAfter = 1 // second page's transaction fails

	_, err := s.Sync(context.Background(), domain.ModeFull)
	require.Error(t, err)

	// Page one survives and the cursor stops at its newest history id.
	count, _ := emailRepo.CountBySource(emaildomain.SourceGmail)
	assert.Equal(t, int64(2), count)
	state, _ := stateRepo.Get(Account)
	require.NotNil(t, state)
	assert.Equal(t, uint64(12), state.HistoryID)
}

func TestIncrementalSyncAdvancesCursor(t *testing.T) {
	mailbox := &fakeMailbox{
		history: []gmail.HistoryPage{
			{IDs: []string{"m4"}, NewestHistory: 20},
		},
		messages:   map[string]*emaildomain.Email{"m4": remoteEmail("m4")},
		historyIDs: map[string]uint64{"m4": 18},
	}
	s, emailRepo, stateRepo, _ := connectedSyncer(t, mailbox)
	require.NoError(t, stateRepo.Save(&domain.SyncState{ID: Account, HistoryID: 15}))

	result, err := s.Sync(context.Background(), domain.ModeIncremental)
	require.NoError(t, err)
	assert.False(t, result.FullSync)
	assert.Equal(t, 1, result.SyncedCount)
	assert.Equal(t, uint64(20), result.Cursor)

	e, _ := emailRepo.GetByID("m4")
	require.NotNil(t, e)
}

func TestIncrementalSyncRemovesDeletedMessages(t *testing.T) {
	mailbox := &fakeMailbox{
		history: []gmail.HistoryPage{
			{DeletedIDs: []string{"m1"}, NewestHistory: 25},
		},
		messages: map[string]*emaildomain.Email{},
	}
	s, emailRepo, stateRepo, purger := connectedSyncer(t, mailbox)
	require.NoError(t, emailRepo.Upsert(remoteEmail("m1")))
	require.NoError(t, stateRepo.Save(&domain.SyncState{ID: Account, HistoryID: 15}))

	result, err := s.Sync(context.Background(), domain.ModeIncremental)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), result.Cursor)

	// The row and its vector entry go together.
	e, _ := emailRepo.GetByID("m1")
	assert.Nil(t, e)
	assert.Equal(t, []string{"m1"}, purger.deletedIDs)
}

func TestStaleCursorFallsBackToFullSync(t *testing.T) {
	mailbox := &fakeMailbox{
		historyErr: gmail.ErrStaleCursor,
		pages: []gmail.MessagePage{
			{IDs: []string{"m1"}},
		},
		messages:   map[string]*emaildomain.Email{"m1": remoteEmail("m1")},
		historyIDs: map[string]uint64{"m1": 30},
	}
	s, emailRepo, stateRepo, _ := connectedSyncer(t, mailbox)
	require.NoError(t, stateRepo.Save(&domain.SyncState{ID: Account, HistoryID: 15}))

	result, err := s.Sync(context.Background(), domain.ModeIncremental)
	require.NoError(t, err)
	assert.True(t, result.FullSync)
	assert.Equal(t, uint64(30), result.Cursor)

	count, _ := emailRepo.CountBySource(emaildomain.SourceGmail)
	assert.Equal(t, int64(1), count)
}

func TestReauthFailureSurfacesWithoutRetry(t *testing.T) {
	mailbox := &fakeMailbox{
		pages:      []gmail.MessagePage{{IDs: []string{"m1"}}},
		messages:   map[string]*emaildomain.Email{"m1": remoteEmail("m1")},
		historyIDs: map[string]uint64{"m1": 10},
		getErrOn:   "m1",
	}
	s, emailRepo, _, _ := connectedSyncer(t, mailbox)

	_, err := s.Sync(context.Background(), domain.ModeFull)
	assert.ErrorIs(t, err, gmail.ErrReauthRequired)

	// Nothing committed, credential untouched: reconnecting is the user's
	// call, not ours.
	count, _ := emailRepo.CountBySource(emaildomain.SourceGmail)
	assert.Equal(t, int64(0), count)
	assert.True(t, s.Authenticated())
}

func TestTransientListErrorIsRetried(t *testing.T) {
	mailbox := &fakeMailbox{
		pages:       []gmail.MessagePage{{IDs: []string{"m1"}}},
		messages:    map[string]*emaildomain.Email{"m1": remoteEmail("m1")},
		historyIDs:  map[string]uint64{"m1": 10},
		listErrOnce: true,
	}
	s, emailRepo, _, _ := connectedSyncer(t, mailbox)

	result, err := s.Sync(context.Background(), domain.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SyncedCount)
	count, _ := emailRepo.CountBySource(emaildomain.SourceGmail)
	assert.Equal(t, int64(1), count)
}

func TestTransientGetMessageErrorIsRetried(t *testing.T) {
	mailbox := &fakeMailbox{
		pages:      []gmail.MessagePage{{IDs: []string{"m1", "m2"}}},
		messages:   map[string]*emaildomain.Email{"m1": remoteEmail("m1"), "m2": remoteEmail("m2")},
		historyIDs: map[string]uint64{"m1": 10, "m2": 12},
		getErrOnce: "m2",
	}
	s, emailRepo, _, _ := connectedSyncer(t, mailbox)

	// One blip on a per-message fetch does not abort the page.
	result, err := s.Sync(context.Background(), domain.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, 2, result.SyncedCount)
	count, _ := emailRepo.CountBySource(emaildomain.SourceGmail)
	assert.Equal(t, int64(2), count)
}

func TestSyncWithoutCredentialRequiresReauth(t *testing.T) {
	s := NewSyncer(newFakeEmailRepo(), newFakeStateRepo(), newFakeCredRepo(), &fakeMailbox{}, &fakePurger{}, testConfig())

	_, err := s.Sync(context.Background(), domain.ModeIncremental)
	assert.ErrorIs(t, err, gmail.ErrReauthRequired)
	assert.Equal(t, emaildomain.SourceLocal, s.ActiveSource())
}

func TestConnectPurgesLocalCorpusAndRunsFullSync(t *testing.T) {
	mailbox := &fakeMailbox{
		profile:    "user@example.com",
		pages:      []gmail.MessagePage{{IDs: []string{"m1"}}},
		messages:   map[string]*emaildomain.Email{"m1": remoteEmail("m1")},
		historyIDs: map[string]uint64{"m1": 10},
	}
	emailRepo := newFakeEmailRepo()
	stateRepo := newFakeStateRepo()
	credRepo := newFakeCredRepo()
	purger := &fakePurger{}

	// A previously enriched local corpus.
	local := &emaildomain.Email{ID: "l1", Source: emaildomain.SourceLocal, Indexed: true}
	work := "Work"
	local.Category = &work
	require.NoError(t, emailRepo.Upsert(local))

	s := NewSyncer(emailRepo, stateRepo, credRepo, mailbox, purger, testConfig())

	result, err := s.Connect(context.Background(), &oauth2.Token{AccessToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SyncedCount)
	assert.Equal(t, emaildomain.SourceGmail, s.ActiveSource())

	// Local vector entries are gone and local enrichment is cleared; the
	// local emails themselves stay for a later disconnect.
	assert.Contains(t, purger.purged, "local")
	l, _ := emailRepo.GetByID("l1")
	require.NotNil(t, l)
	assert.Nil(t, l.Category)
	assert.False(t, l.Indexed)

	state, _ := stateRepo.Get(Account)
	require.NotNil(t, state)
	assert.Equal(t, "user@example.com", state.AccountEmail)
}

func TestConnectRejectedTokenIsDiscarded(t *testing.T) {
	mailbox := &fakeMailbox{profileErr: gmail.ErrReauthRequired}
	s := NewSyncer(newFakeEmailRepo(), newFakeStateRepo(), newFakeCredRepo(), mailbox, &fakePurger{}, testConfig())

	_, err := s.Connect(context.Background(), &oauth2.Token{AccessToken: "bad"})
	assert.ErrorIs(t, err, gmail.ErrReauthRequired)
	assert.False(t, s.Authenticated())
	assert.Equal(t, emaildomain.SourceLocal, s.ActiveSource())
}

func TestDisconnectPurgesRemoteCorpus(t *testing.T) {
	mailbox := &fakeMailbox{
		profile:    "user@example.com",
		pages:      []gmail.MessagePage{{IDs: []string{"m1"}}},
		messages:   map[string]*emaildomain.Email{"m1": remoteEmail("m1")},
		historyIDs: map[string]uint64{"m1": 10},
	}
	s, emailRepo, stateRepo, purger := connectedSyncer(t, mailbox)

	_, err := s.Sync(context.Background(), domain.ModeFull)
	require.NoError(t, err)

	require.NoError(t, s.Disconnect(context.Background()))

	assert.Contains(t, purger.purged, "gmail")
	count, _ := emailRepo.CountBySource(emaildomain.SourceGmail)
	assert.Equal(t, int64(0), count)
	state, _ := stateRepo.Get(Account)
	assert.Nil(t, state)
	assert.False(t, s.Authenticated())
	assert.Equal(t, emaildomain.SourceLocal, s.ActiveSource())
}

func TestConcurrentSyncRejected(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{})
	mailbox := &fakeMailbox{
		pages:      []gmail.MessagePage{{IDs: []string{"m1"}}},
		messages:   map[string]*emaildomain.Email{"m1": remoteEmail("m1")},
		historyIDs: map[string]uint64{"m1": 10},
		block:      block,
		entered:    entered,
	}
	s, _, _, _ := connectedSyncer(t, mailbox)

	done := make(chan error, 1)
	go func() {
		_, err := s.Sync(context.Background(), domain.ModeFull)
		done <- err
	}()

	// Wait until the first run holds the slot inside the mailbox call.
	<-entered
	_, err := s.Sync(context.Background(), domain.ModeFull)
	assert.ErrorIs(t, err, domain.ErrSyncRunning)

	close(block)
	require.NoError(t, <-done)
}

func TestStatusReportsConnectionAndCursor(t *testing.T) {
	mailbox := &fakeMailbox{}
	s, emailRepo, stateRepo, _ := connectedSyncer(t, mailbox)
	require.NoError(t, stateRepo.Save(&domain.SyncState{ID: Account, HistoryID: 42, AccountEmail: "user@example.com"}))
	require.NoError(t, emailRepo.Upsert(remoteEmail("m1")))

	status, err := s.Status()
	require.NoError(t, err)
	assert.True(t, status.Authenticated)
	assert.Equal(t, "user@example.com", status.AccountEmail)
	assert.Equal(t, uint64(42), status.Cursor)
	assert.Equal(t, int64(1), status.TotalSynced)
}
