// Package dispatch serializes classified messages into the backend's shape
// and posts them. The envelope's kind is decided once, upstream; this is
// the only place that branches on it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gotrs-io/mailbridge/internal/backend"
	"github.com/gotrs-io/mailbridge/internal/parser"
)

// Kind discriminates the two dispatch targets.
type Kind int

const (
	// KindNewTicket creates a new ticket from a first message.
	KindNewTicket Kind = iota
	// KindReply appends a reply to an existing ticket.
	KindReply
)

func (k Kind) String() string {
	if k == KindReply {
		return "reply"
	}
	return "new_ticket"
}

// Envelope is the tagged payload carried from classification to dispatch.
// Exactly one of NewTicket/Reply is set, matching Kind.
type Envelope struct {
	Kind      Kind
	NewTicket *backend.NewTicketPayload
	Reply     *backend.ReplyPayload
}

// NewTicketEnvelope builds the envelope for a message classified as a new
// support request.
func NewTicketEnvelope(email parser.ParsedEmail) Envelope {
	return Envelope{
		Kind: KindNewTicket,
		NewTicket: &backend.NewTicketPayload{
			EmailID:         email.EmailID,
			SenderName:      email.Sender.Name,
			SenderEmail:     email.Sender.Email,
			Subject:         email.Subject,
			Body:            email.Body,
			SentAt:          email.SentAt,
			MessageHeaderID: email.MessageHeaderID,
			ThreadID:        email.ThreadID,
		},
	}
}

// ReplyEnvelope builds the envelope for a reply on an already resolved
// ticket.
func ReplyEnvelope(email parser.ParsedEmail, ticketID string) Envelope {
	return Envelope{
		Kind: KindReply,
		Reply: &backend.ReplyPayload{
			EmailID:         email.EmailID,
			SenderEmail:     email.Sender.Email,
			Subject:         email.Subject,
			Body:            email.Body,
			SentAt:          email.SentAt,
			MessageHeaderID: email.MessageHeaderID,
			ThreadID:        email.ThreadID,
			TicketID:        ticketID,
		},
	}
}

// EmailID returns the message id the envelope carries.
func (e Envelope) EmailID() string {
	switch e.Kind {
	case KindReply:
		if e.Reply != nil {
			return e.Reply.EmailID
		}
	default:
		if e.NewTicket != nil {
			return e.NewTicket.EmailID
		}
	}
	return ""
}

type backendPoster interface {
	CreateTicket(ctx context.Context, payload backend.NewTicketPayload) error
	CreateReply(ctx context.Context, payload backend.ReplyPayload) error
}

// Dispatcher posts envelopes to the ticketing backend. Failures are not
// retried here; the message simply stays unmarked and the next scan cycle
// picks it up again.
type Dispatcher struct {
	backend backendPoster
	logger  *log.Logger
}

// DispatcherOption customizes the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger overrides the logger used for diagnostics.
func WithDispatcherLogger(logger *log.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher builds a dispatcher on top of the backend client.
func NewDispatcher(b backendPoster, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		backend: b,
		logger:  log.New(log.Writer(), "[DISPATCH] ", log.LstdFlags),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Dispatch posts the envelope to the endpoint selected by its kind. A
// conflict on a reply means the backend already recorded it, which is the
// expected outcome of at-least-once delivery and reported as success.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope) error {
	switch env.Kind {
	case KindNewTicket:
		if env.NewTicket == nil {
			return errors.New("dispatch: new ticket envelope missing payload")
		}
		if err := d.backend.CreateTicket(ctx, *env.NewTicket); err != nil {
			return fmt.Errorf("dispatch new ticket %s: %w", env.NewTicket.EmailID, err)
		}
		return nil
	case KindReply:
		if env.Reply == nil {
			return errors.New("dispatch: reply envelope missing payload")
		}
		err := d.backend.CreateReply(ctx, *env.Reply)
		if errors.Is(err, backend.ErrConflict) {
			d.logger.Printf("reply %s already recorded by backend", env.Reply.EmailID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("dispatch reply %s: %w", env.Reply.EmailID, err)
		}
		return nil
	default:
		return fmt.Errorf("dispatch: unknown envelope kind %d", env.Kind)
	}
}
