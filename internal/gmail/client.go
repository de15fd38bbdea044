// Package gmail is the mailbox-provider collaborator: it lists candidate
// message ids, fetches full message content, and re-establishes credentials
// when the stored grant expires.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/gotrs-io/mailbridge/internal/config"
)

// Client wraps the Gmail API for the configured account.
type Client struct {
	mu         sync.RWMutex
	srv        *gmailapi.Service
	auth       *Authenticator
	userID     string
	query      string
	maxResults int64
	logger     *log.Logger
}

// NewClient authorizes against the provider and builds the API client.
func NewClient(ctx context.Context, auth *Authenticator, cfg config.GmailConfig) (*Client, error) {
	c := &Client{
		auth:       auth,
		userID:     cfg.UserID,
		query:      cfg.Query,
		maxResults: cfg.MaxResults,
		logger:     log.New(log.Writer(), "[GMAIL] ", log.LstdFlags),
	}
	if err := c.initService(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) initService(ctx context.Context) error {
	httpClient, err := c.auth.Client(ctx)
	if err != nil {
		return fmt.Errorf("authorize mailbox: %w", err)
	}
	srv, err := gmailapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return fmt.Errorf("create gmail service: %w", err)
	}
	c.mu.Lock()
	c.srv = srv
	c.mu.Unlock()
	return nil
}

func (c *Client) service() *gmailapi.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.srv
}

// ListInboxMessageIDs lists message ids matching the configured query,
// newest first (the provider's listing convention).
func (c *Client) ListInboxMessageIDs(ctx context.Context) ([]string, error) {
	res, err := c.service().Users.Messages.List(c.userID).
		Q(c.query).
		MaxResults(c.maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	ids := make([]string, 0, len(res.Messages))
	for _, m := range res.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// FetchFullMessage retrieves the complete message, including headers and
// body parts.
func (c *Client) FetchFullMessage(ctx context.Context, id string) (*gmailapi.Message, error) {
	msg, err := c.service().Users.Messages.Get(c.userID, id).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return msg, nil
}

// Reauthorize discards the stored credentials and rebuilds the API client
// through a fresh authorization flow.
func (c *Client) Reauthorize(ctx context.Context) error {
	c.logger.Println("reauthorizing mailbox credentials")
	if err := c.auth.ClearStoredToken(); err != nil {
		return err
	}
	return c.initService(ctx)
}

// IsAuthError reports whether the error signals an invalid or expired
// grant rather than a transient provider failure.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusUnauthorized {
			return true
		}
	}
	var tokenErr *oauth2.RetrieveError
	if errors.As(err, &tokenErr) {
		return true
	}
	return strings.Contains(err.Error(), "invalid_grant")
}
