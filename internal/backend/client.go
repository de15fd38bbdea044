// Package backend is the REST client for the ticketing system that owns
// tickets, reply records, and the authoritative processed-message state.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotFound is the valid negative result of a lookup.
	ErrNotFound = errors.New("backend: not found")
	// ErrUnauthorized signals API key misconfiguration and is never absorbed.
	ErrUnauthorized = errors.New("backend: unauthorized")
	// ErrConflict means the backend already recorded this message.
	ErrConflict = errors.New("backend: conflict")
)

// Client talks to the ticketing backend. All requests carry the x-api-key
// header.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *log.Logger
}

// Option customizes the Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger overrides the logger used for diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a backend client for the given base URL and API key.
func New(baseURL, apiKey string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  log.New(log.Writer(), "[BACKEND] ", log.LstdFlags),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// ProcessedEmailIDs returns the ids of all messages already ticketed.
func (c *Client) ProcessedEmailIDs(ctx context.Context) ([]string, error) {
	return c.listIDs(ctx, "/processed-emails")
}

// ProcessedReplyIDs returns the ids of all messages already recorded as
// replies.
func (c *Client) ProcessedReplyIDs(ctx context.Context) ([]string, error) {
	return c.listIDs(ctx, "/processed-replies")
}

func (c *Client) listIDs(ctx context.Context, path string) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("list %s: %w", path, ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("list %s: unexpected status %d", path, resp.StatusCode)
	}

	var ids []string
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return nil, fmt.Errorf("list %s: decode response: %w", path, err)
	}
	return ids, nil
}

// EmailProcessed reports whether a message id is already recorded as a new
// ticket. 404 means not processed; any ambiguous outcome except an
// authorization failure is treated as processed so the bridge never creates
// a duplicate ticket.
func (c *Client) EmailProcessed(ctx context.Context, id string) (bool, error) {
	return c.existenceCheck(ctx, "/processed-emails/"+url.PathEscape(id), id, false)
}

// ReplyProcessed reports whether a message id is already recorded as a
// reply. Same policy as EmailProcessed; the status field in the response
// body is only consulted for anomaly logging.
func (c *Client) ReplyProcessed(ctx context.Context, id string) (bool, error) {
	return c.existenceCheck(ctx, "/processed-replies/"+url.PathEscape(id), id, true)
}

func (c *Client) existenceCheck(ctx context.Context, path, id string, hasStatusBody bool) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		// Cannot tell whether the message was recorded; assume it was
		// rather than risk a duplicate.
		c.logger.Printf("existence check for %s failed, assuming processed: %v", id, err)
		return true, nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		if hasStatusBody {
			c.logStatusAnomaly(resp.Body, id, "processed")
		}
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		if hasStatusBody {
			c.logStatusAnomaly(resp.Body, id, "not_processed")
		}
		return false, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return false, fmt.Errorf("existence check for %s: %w", id, ErrUnauthorized)
	default:
		c.logger.Printf("existence check for %s returned status %d, assuming processed", id, resp.StatusCode)
		return true, nil
	}
}

func (c *Client) logStatusAnomaly(body io.Reader, id, want string) {
	var status replyStatusResponse
	if err := json.NewDecoder(body).Decode(&status); err != nil {
		c.logger.Printf("unreadable status body for %s: %v", id, err)
		return
	}
	if status.Status != want {
		c.logger.Printf("unexpected status %q for %s, expected %q", status.Status, id, want)
	}
}

// TicketByThread resolves the ticket id for a thread, or ErrNotFound.
func (c *Client) TicketByThread(ctx context.Context, threadID string) (string, error) {
	path := "/tickets?email_thread_id=" + url.QueryEscape(threadID)
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", fmt.Errorf("ticket lookup for thread %s: %w", threadID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return "", fmt.Errorf("ticket lookup for thread %s: %w", threadID, ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", fmt.Errorf("ticket lookup for thread %s: unexpected status %d", threadID, resp.StatusCode)
	}

	var lookup ticketLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&lookup); err != nil {
		return "", fmt.Errorf("ticket lookup for thread %s: decode response: %w", threadID, err)
	}
	if len(lookup.Items) == 0 {
		return "", ErrNotFound
	}
	return strconv.FormatInt(lookup.Items[0].TicketID, 10), nil
}

// CreateTicket posts a new ticket. Any non-2xx status is a failure.
func (c *Client) CreateTicket(ctx context.Context, payload NewTicketPayload) error {
	return c.post(ctx, "/tickets", payload, false)
}

// CreateReply records a reply message. A conflict status maps to
// ErrConflict so the caller can treat the duplicate as already delivered.
func (c *Client) CreateReply(ctx context.Context, payload ReplyPayload) error {
	return c.post(ctx, "/messages", payload, true)
}

func (c *Client) post(ctx context.Context, path string, payload any, conflictExpected bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("post %s: marshal payload: %w", path, err)
	}
	resp, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return nil
	case resp.StatusCode == http.StatusConflict && conflictExpected:
		return ErrConflict
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("post %s: %w", path, ErrUnauthorized)
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("post %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	return c.http.Do(req)
}
