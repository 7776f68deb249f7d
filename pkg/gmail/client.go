package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	emaildomain "github.com/hykura/mailmind/internal/email/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var (
	// ErrReauthRequired means the stored token was rejected and the user
	// must reconnect. Never retried automatically.
	ErrReauthRequired = errors.New("gmail reauthorization required")
	// ErrStaleCursor means the remote no longer accepts the history id;
	// callers fall back to a full sync.
	ErrStaleCursor = errors.New("gmail history id expired")
)

// TokenUpdateFunc is invoked when the oauth2 token source refreshes the
// access token, so the new token can be persisted.
type TokenUpdateFunc func(*oauth2.Token) error

// MessagePage is one committed unit of sync work.
type MessagePage struct {
	IDs           []string
	NextPageToken string
}

// HistoryPage lists message ids added or deleted since a history cursor.
type HistoryPage struct {
	IDs           []string
	DeletedIDs    []string
	NewestHistory uint64
	NextPageToken string
}

type Client struct {
	clientID     string
	clientSecret string
}

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			fmt.Printf("Failed to persist refreshed token: %v\n", err)
		}
	}
	return t, nil
}

func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

func (c *Client) oauthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
		Scopes: []string{
			gmail.GmailReadonlyScope,
			"https://www.googleapis.com/auth/userinfo.email",
		},
	}
}

// AuthURL builds the consent URL for the authorization-code flow. Offline
// access is requested so a refresh token is issued.
func (c *Client) AuthURL(redirectURL, state string) string {
	return c.oauthConfig(redirectURL).AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for a token.
func (c *Client) Exchange(ctx context.Context, redirectURL, code string) (*oauth2.Token, error) {
	token, err := c.oauthConfig(redirectURL).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange rejected: %v", ErrReauthRequired, err)
	}
	return token, nil
}

func (c *Client) service(ctx context.Context, token *oauth2.Token, onRefresh TokenUpdateFunc) (*gmail.Service, error) {
	cfg := &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Endpoint:     google.Endpoint,
	}

	wrapped := &notifyTokenSource{
		src:      cfg.TokenSource(ctx, token),
		current:  token,
		callback: onRefresh,
	}

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, wrapped)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return srv, nil
}

// Profile returns the connected account's address.
func (c *Client) Profile(ctx context.Context, token *oauth2.Token, onRefresh TokenUpdateFunc) (string, error) {
	srv, err := c.service(ctx, token, onRefresh)
	if err != nil {
		return "", err
	}
	profile, err := srv.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", classify(err)
	}
	return profile.EmailAddress, nil
}

// ListMessagePage lists one page of recent message ids for a full sync.
func (c *Client) ListMessagePage(ctx context.Context, token *oauth2.Token, onRefresh TokenUpdateFunc, pageToken string, pageSize int64) (*MessagePage, error) {
	srv, err := c.service(ctx, token, onRefresh)
	if err != nil {
		return nil, err
	}

	call := srv.Users.Messages.List("me").MaxResults(pageSize).Q("newer_than:60d")
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}

	page := &MessagePage{NextPageToken: resp.NextPageToken}
	for _, msg := range resp.Messages {
		page.IDs = append(page.IDs, msg.Id)
	}
	return page, nil
}

// ListHistoryPage lists one page of messages added or deleted since
// startHistoryID. A stale history id surfaces as ErrStaleCursor.
func (c *Client) ListHistoryPage(ctx context.Context, token *oauth2.Token, onRefresh TokenUpdateFunc, startHistoryID uint64, pageToken string) (*HistoryPage, error) {
	srv, err := c.service(ctx, token, onRefresh)
	if err != nil {
		return nil, err
	}

	call := srv.Users.History.List("me").
		StartHistoryId(startHistoryID).
		HistoryTypes("messageAdded", "messageDeleted")
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}

	page := &HistoryPage{
		NewestHistory: resp.HistoryId,
		NextPageToken: resp.NextPageToken,
	}
	for _, item := range resp.History {
		for _, added := range item.MessagesAdded {
			page.IDs = append(page.IDs, added.Message.Id)
		}
		for _, deleted := range item.MessagesDeleted {
			page.DeletedIDs = append(page.DeletedIDs, deleted.Message.Id)
		}
		if item.Id > page.NewestHistory {
			page.NewestHistory = item.Id
		}
	}
	return page, nil
}

// GetMessage fetches one message in full and converts it to the domain model.
func (c *Client) GetMessage(ctx context.Context, token *oauth2.Token, onRefresh TokenUpdateFunc, id string) (*emaildomain.Email, uint64, error) {
	srv, err := c.service(ctx, token, onRefresh)
	if err != nil {
		return nil, 0, err
	}

	msg, err := srv.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, 0, classify(err)
	}

	return convertMessage(msg), msg.HistoryId, nil
}

func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403:
			return fmt.Errorf("%w: %v", ErrReauthRequired, err)
		case 404:
			return fmt.Errorf("%w: %v", ErrStaleCursor, err)
		}
	}
	return err
}

// Helper functions

func convertMessage(msg *gmail.Message) *emaildomain.Email {
	headers := headerMap(msg.Payload)

	timestamp := time.Now()
	if msg.InternalDate > 0 {
		timestamp = time.UnixMilli(msg.InternalDate).UTC()
	}

	read := true
	for _, label := range msg.LabelIds {
		if label == "UNREAD" {
			read = false
			break
		}
	}

	// Message-Id is a unique column; fall back to the Gmail id when the
	// header is absent.
	messageID := headers["message-id"]
	if messageID == "" {
		messageID = msg.Id
	}

	return &emaildomain.Email{
		ID:         msg.Id,
		Source:     emaildomain.SourceGmail,
		Sender:     headers["from"],
		Recipients: strings.Join(parseRecipients(headers["to"]), ", "),
		Subject:    headers["subject"],
		Body:       decodeBody(msg.Payload),
		Timestamp:  timestamp,
		Read:       read,
		ThreadID:   msg.ThreadId,
		MessageID:  messageID,
	}
}

func headerMap(payload *gmail.MessagePart) map[string]string {
	headers := make(map[string]string)
	if payload == nil {
		return headers
	}
	for _, h := range payload.Headers {
		headers[strings.ToLower(h.Name)] = h.Value
	}
	return headers
}

func parseRecipients(headerValue string) []string {
	if headerValue == "" {
		return nil
	}
	addresses, err := mail.ParseAddressList(headerValue)
	if err != nil {
		// Keep the raw header rather than lose the recipient
		return []string{headerValue}
	}
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		out = append(out, a.Address)
	}
	return out
}

// decodeBody prefers the text/plain part, walking nested multiparts.
func decodeBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}
	if payload.Body != nil && payload.Body.Data != "" {
		data, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(payload.Body.Data)
		if err != nil {
			return ""
		}
		return string(data)
	}
	for _, part := range payload.Parts {
		if part.MimeType == "text/plain" {
			return decodeBody(part)
		}
	}
	if len(payload.Parts) > 0 {
		return decodeBody(payload.Parts[0])
	}
	return ""
}
