package scanner

import (
	"context"
	"log"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/gotrs-io/mailbridge/internal/dispatch"
	"github.com/gotrs-io/mailbridge/internal/metrics"
	"github.com/gotrs-io/mailbridge/internal/parser"
)

type messageFetcher interface {
	FetchFullMessage(ctx context.Context, id string) (*gmailapi.Message, error)
}

type remoteChecker interface {
	EmailProcessed(ctx context.Context, id string) (bool, error)
	ReplyProcessed(ctx context.Context, id string) (bool, error)
}

type ticketResolver interface {
	Resolve(ctx context.Context, threadID string) (string, bool, error)
}

type envelopeDispatcher interface {
	Dispatch(ctx context.Context, env dispatch.Envelope) error
}

type processedSet interface {
	Contains(id string) bool
	MarkProcessed(id string)
}

// Processor runs the per-message pipeline: fetch, parse, classify, remote
// dedup check, ticket resolution for replies, dispatch, mark. Each call is
// isolated; failures leave the message unmarked so the next scan cycle
// retries it.
type Processor struct {
	mailbox    messageFetcher
	remote     remoteChecker
	tickets    ticketResolver
	dispatcher envelopeDispatcher
	processed  processedSet
	logger     *log.Logger
}

// NewProcessor wires the per-message pipeline.
func NewProcessor(mailbox messageFetcher, remote remoteChecker, tickets ticketResolver, dispatcher envelopeDispatcher, processed processedSet, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.New(log.Writer(), "[PROCESS] ", log.LstdFlags)
	}
	return &Processor{
		mailbox:    mailbox,
		remote:     remote,
		tickets:    tickets,
		dispatcher: dispatcher,
		processed:  processed,
		logger:     logger,
	}
}

// Process handles one message id end to end. Errors are logged, never
// returned: a per-message failure must not disturb the rest of the cycle.
func (p *Processor) Process(ctx context.Context, id string) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Printf("panic processing message %s: %v", id, r)
		}
	}()

	if p.processed.Contains(id) {
		return
	}

	msg, err := p.mailbox.FetchFullMessage(ctx, id)
	if err != nil {
		p.logger.Printf("fetch message %s failed: %v", id, err)
		return
	}

	email := parser.Parse(msg)

	env, ok := p.classifyAndCheck(ctx, email)
	if !ok {
		return
	}

	if err := p.dispatcher.Dispatch(ctx, env); err != nil {
		metrics.Dispatches.WithLabelValues(env.Kind.String(), "failure").Inc()
		p.logger.Printf("dispatch of message %s failed, will retry next cycle: %v", id, err)
		return
	}
	metrics.Dispatches.WithLabelValues(env.Kind.String(), "success").Inc()
	p.processed.MarkProcessed(id)
}

// classifyAndCheck turns a parsed email into its dispatch envelope, running
// the remote existence check and, for replies, the ticket resolution that
// gates dispatch. ok is false when the message must not be dispatched.
func (p *Processor) classifyAndCheck(ctx context.Context, email parser.ParsedEmail) (dispatch.Envelope, bool) {
	if email.IsReply {
		done, err := p.remote.ReplyProcessed(ctx, email.EmailID)
		if err != nil {
			p.logger.Printf("remote reply check for %s failed: %v", email.EmailID, err)
			return dispatch.Envelope{}, false
		}
		if done {
			metrics.DedupSkips.WithLabelValues("remote").Inc()
			p.processed.MarkProcessed(email.EmailID)
			return dispatch.Envelope{}, false
		}

		ticketID, found, err := p.tickets.Resolve(ctx, email.ThreadID)
		if err != nil {
			p.logger.Printf("ticket resolution for thread %s failed: %v", email.ThreadID, err)
			return dispatch.Envelope{}, false
		}
		if !found {
			// The reply arrived before its thread's ticket exists; leave it
			// unmarked so a later cycle can deliver it in order.
			p.logger.Printf("no ticket yet for thread %s, deferring reply %s", email.ThreadID, email.EmailID)
			return dispatch.Envelope{}, false
		}
		return dispatch.ReplyEnvelope(email, ticketID), true
	}

	done, err := p.remote.EmailProcessed(ctx, email.EmailID)
	if err != nil {
		p.logger.Printf("remote email check for %s failed: %v", email.EmailID, err)
		return dispatch.Envelope{}, false
	}
	if done {
		metrics.DedupSkips.WithLabelValues("remote").Inc()
		p.processed.MarkProcessed(email.EmailID)
		return dispatch.Envelope{}, false
	}
	return dispatch.NewTicketEnvelope(email), true
}
