package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	emaildomain "github.com/hykura/mailmind/internal/email/domain"
	emailrepo "github.com/hykura/mailmind/internal/email/repository"
	"github.com/hykura/mailmind/internal/sync/domain"
	"github.com/hykura/mailmind/internal/sync/repository"
	"github.com/hykura/mailmind/pkg/config"
	"github.com/hykura/mailmind/pkg/gmail"

	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"
)

// Account is the single remote account key this deployment serves.
const Account = "gmail"

// MailboxClient is the remote mailbox surface the synchronizer consumes.
type MailboxClient interface {
	Profile(ctx context.Context, token *oauth2.Token, onRefresh gmail.TokenUpdateFunc) (string, error)
	ListMessagePage(ctx context.Context, token *oauth2.Token, onRefresh gmail.TokenUpdateFunc, pageToken string, pageSize int64) (*gmail.MessagePage, error)
	ListHistoryPage(ctx context.Context, token *oauth2.Token, onRefresh gmail.TokenUpdateFunc, startHistoryID uint64, pageToken string) (*gmail.HistoryPage, error)
	GetMessage(ctx context.Context, token *oauth2.Token, onRefresh gmail.TokenUpdateFunc, id string) (*emaildomain.Email, uint64, error)
}

// VectorPurger removes vector entries: a whole corpus on switch, specific
// ids when the remote reports deletions.
type VectorPurger interface {
	DeleteSource(ctx context.Context, source string) error
	DeleteIDs(ctx context.Context, ids []string) error
}

// Syncer keeps the local email store current with the remote mailbox using
// a change cursor, committing page by page so a crash never advances the
// cursor past uncommitted work.
type Syncer struct {
	emailRepo emailrepo.EmailRepository
	stateRepo repository.SyncStateRepository
	credRepo  repository.CredentialRepository
	client    MailboxClient
	vector    VectorPurger
	config    *config.Config

	mu      sync.Mutex
	running bool
}

func NewSyncer(emailRepo emailrepo.EmailRepository, stateRepo repository.SyncStateRepository, credRepo repository.CredentialRepository, client MailboxClient, vector VectorPurger, cfg *config.Config) *Syncer {
	return &Syncer{
		emailRepo: emailRepo,
		stateRepo: stateRepo,
		credRepo:  credRepo,
		client:    client,
		vector:    vector,
		config:    cfg,
	}
}

// Authenticated reports whether a credential record exists.
func (s *Syncer) Authenticated() bool {
	cred, err := s.credRepo.Get(Account)
	return err == nil && cred != nil
}

// ActiveSource is the corpus selector threaded through ingestion and
// retrieval: the remote corpus while connected, the local one otherwise.
func (s *Syncer) ActiveSource() emaildomain.Source {
	if s.Authenticated() {
		return emaildomain.SourceGmail
	}
	return emaildomain.SourceLocal
}

// Sync pulls changed messages into the email store. Incremental mode uses
// the stored cursor and transparently falls back to full when the remote
// rejects it as stale.
func (s *Syncer) Sync(ctx context.Context, mode domain.Mode) (*domain.Result, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, domain.ErrSyncRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	token, err := s.token()
	if err != nil {
		return nil, err
	}

	state, err := s.stateRepo.Get(Account)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &domain.SyncState{ID: Account}
	}

	full := mode == domain.ModeFull || state.HistoryID == 0

	var synced int
	if !full {
		synced, err = s.syncViaHistory(ctx, token, state)
		if errors.Is(err, gmail.ErrStaleCursor) {
			log.Printf("[Sync] History cursor %d expired, falling back to full sync", state.HistoryID)
			full = true
		} else if err != nil {
			return nil, err
		}
	}
	if full {
		synced, err = s.syncFull(ctx, token, state)
		if err != nil {
			return nil, err
		}
	}

	state.LastSyncAt = time.Now().UTC()
	if err := s.stateRepo.Save(state); err != nil {
		return nil, err
	}

	return &domain.Result{
		SyncedCount: synced,
		Cursor:      state.HistoryID,
		Timestamp:   state.LastSyncAt,
		FullSync:    full,
	}, nil
}

// syncFull re-lists the mailbox and replaces local copies. The cursor is
// reset up front and re-established from committed pages only.
func (s *Syncer) syncFull(ctx context.Context, token *oauth2.Token, state *domain.SyncState) (int, error) {
	state.HistoryID = 0

	synced := 0
	pageToken := ""
	for {
		var page *gmail.MessagePage
		err := s.withRetry(ctx, func(ctx context.Context) error {
			var err error
			page, err = s.client.ListMessagePage(ctx, token, s.tokenUpdater(), pageToken, int64(s.config.SyncPageSize))
			return err
		})
		if err != nil {
			return synced, err
		}

		committed, newest, err := s.commitPage(ctx, token, page.IDs)
		if err != nil {
			return synced, err
		}
		synced += committed

		// The cursor advances only past fully committed pages.
		if newest > state.HistoryID {
			state.HistoryID = newest
		}
		if err := s.stateRepo.Save(state); err != nil {
			return synced, err
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			return synced, nil
		}
	}
}

func (s *Syncer) syncViaHistory(ctx context.Context, token *oauth2.Token, state *domain.SyncState) (int, error) {
	synced := 0
	pageToken := ""
	for {
		var page *gmail.HistoryPage
		err := s.withRetry(ctx, func(ctx context.Context) error {
			var err error
			page, err = s.client.ListHistoryPage(ctx, token, s.tokenUpdater(), state.HistoryID, pageToken)
			return err
		})
		if err != nil {
			return synced, err
		}

		committed, newest, err := s.commitPage(ctx, token, page.IDs)
		if err != nil {
			return synced, err
		}
		synced += committed

		// Remote deletions drop the row and its vector entry together.
		if len(page.DeletedIDs) > 0 {
			if err := s.vector.DeleteIDs(ctx, page.DeletedIDs); err != nil {
				return synced, err
			}
			if err := s.emailRepo.DeleteByIDs(page.DeletedIDs); err != nil {
				return synced, err
			}
		}

		if page.NewestHistory > newest {
			newest = page.NewestHistory
		}
		if newest > state.HistoryID {
			state.HistoryID = newest
		}
		if err := s.stateRepo.Save(state); err != nil {
			return synced, err
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			return synced, nil
		}
	}
}

// commitPage fetches every message of a page and writes them in a single
// transaction. Upserts are idempotent by id, so a retried page is safe.
func (s *Syncer) commitPage(ctx context.Context, token *oauth2.Token, ids []string) (int, uint64, error) {
	if len(ids) == 0 {
		return 0, 0, nil
	}

	emails := make([]*emaildomain.Email, 0, len(ids))
	var newest uint64
	for _, id := range ids {
		var email *emaildomain.Email
		var historyID uint64
		err := s.withRetry(ctx, func(ctx context.Context) error {
			var err error
			email, historyID, err = s.client.GetMessage(ctx, token, s.tokenUpdater(), id)
			return err
		})
		if err != nil {
			return 0, 0, err
		}
		emails = append(emails, email)
		if historyID > newest {
			newest = historyID
		}
	}

	if err := s.emailRepo.UpsertBatch(emails); err != nil {
		return 0, 0, err
	}
	return len(emails), newest, nil
}

// Connect stores the token record, purges the local corpus's vector entries
// and ingestion state, and runs a full sync against the remote mailbox.
func (s *Syncer) Connect(ctx context.Context, token *oauth2.Token) (*domain.Result, error) {
	raw, err := json.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize token: %w", err)
	}
	if err := s.credRepo.Save(&domain.Credential{ID: Account, Token: string(raw)}); err != nil {
		return nil, err
	}

	address, err := s.client.Profile(ctx, token, s.tokenUpdater())
	if err != nil {
		// Token did not survive first contact; do not keep it around.
		_ = s.credRepo.Delete(Account)
		return nil, err
	}

	if err := s.vector.DeleteSource(ctx, string(emaildomain.SourceLocal)); err != nil {
		return nil, err
	}
	if err := s.emailRepo.ClearEnrichment(emaildomain.SourceLocal); err != nil {
		return nil, err
	}

	state := &domain.SyncState{ID: Account, AccountEmail: address}
	if err := s.stateRepo.Save(state); err != nil {
		return nil, err
	}

	log.Printf("[Sync] Connected account %s", address)
	return s.Sync(ctx, domain.ModeFull)
}

// Disconnect drops the credential and purges the remote corpus; reads fall
// back to the local corpus afterward.
func (s *Syncer) Disconnect(ctx context.Context) error {
	if err := s.vector.DeleteSource(ctx, string(emaildomain.SourceGmail)); err != nil {
		return err
	}
	if err := s.emailRepo.DeleteBySource(emaildomain.SourceGmail); err != nil {
		return err
	}
	if err := s.stateRepo.Delete(Account); err != nil {
		return err
	}
	if err := s.credRepo.Delete(Account); err != nil {
		return err
	}
	log.Printf("[Sync] Disconnected, serving local corpus")
	return nil
}

func (s *Syncer) Status() (*domain.Status, error) {
	status := &domain.Status{Authenticated: s.Authenticated()}

	state, err := s.stateRepo.Get(Account)
	if err != nil {
		return nil, err
	}
	if state != nil {
		status.AccountEmail = state.AccountEmail
		status.Cursor = state.HistoryID
		status.LastSyncAt = state.LastSyncAt
	}

	total, err := s.emailRepo.CountBySource(s.ActiveSource())
	if err != nil {
		return nil, err
	}
	status.TotalSynced = total
	return status, nil
}

// RunInterval triggers an incremental sync on a fixed interval until the
// context is cancelled. Manual triggers run independently; the single-flight
// lock keeps them from overlapping.
func (s *Syncer) RunInterval(ctx context.Context) {
	ticker := time.NewTicker(s.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.Authenticated() {
				continue
			}
			if _, err := s.Sync(ctx, domain.ModeIncremental); err != nil && !errors.Is(err, domain.ErrSyncRunning) {
				log.Printf("[Sync] Interval sync failed: %v", err)
			}
		}
	}
}

func (s *Syncer) token() (*oauth2.Token, error) {
	cred, err := s.credRepo.Get(Account)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, gmail.ErrReauthRequired
	}
	var token oauth2.Token
	if err := json.Unmarshal([]byte(cred.Token), &token); err != nil {
		return nil, fmt.Errorf("corrupt token record: %w", err)
	}
	return &token, nil
}

// tokenUpdater persists tokens refreshed by the oauth2 transport.
func (s *Syncer) tokenUpdater() gmail.TokenUpdateFunc {
	return func(token *oauth2.Token) error {
		raw, err := json.Marshal(token)
		if err != nil {
			return err
		}
		return s.credRepo.Save(&domain.Credential{ID: Account, Token: string(raw)})
	}
}

// withRetry retries transient remote failures with bounded backoff. Auth
// failures and stale cursors are surfaced immediately.
func (s *Syncer) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, gmail.ErrReauthRequired) || errors.Is(err, gmail.ErrStaleCursor) {
			return err
		}
		return retry.RetryableError(err)
	})
}
