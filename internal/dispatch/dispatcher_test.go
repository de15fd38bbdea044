package dispatch

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/gotrs-io/mailbridge/internal/backend"
	"github.com/gotrs-io/mailbridge/internal/parser"
)

type fakePoster struct {
	tickets   []backend.NewTicketPayload
	replies   []backend.ReplyPayload
	ticketErr error
	replyErr  error
}

func (f *fakePoster) CreateTicket(ctx context.Context, p backend.NewTicketPayload) error {
	f.tickets = append(f.tickets, p)
	return f.ticketErr
}

func (f *fakePoster) CreateReply(ctx context.Context, p backend.ReplyPayload) error {
	f.replies = append(f.replies, p)
	return f.replyErr
}

func newTestDispatcher(f *fakePoster) *Dispatcher {
	return NewDispatcher(f, WithDispatcherLogger(log.New(io.Discard, "", 0)))
}

func sampleEmail() parser.ParsedEmail {
	return parser.ParsedEmail{
		EmailID:         "m1",
		Sender:          parser.SenderInfo{Name: "Jane", Email: "jane@example.com"},
		Subject:         "Hi",
		Body:            "body",
		ThreadID:        "t1",
		MessageHeaderID: "<x@y>",
		SentAt:          "2026-01-01T00:00:00Z",
	}
}

func TestDispatchNewTicket(t *testing.T) {
	f := &fakePoster{}
	d := newTestDispatcher(f)

	if err := d.Dispatch(context.Background(), NewTicketEnvelope(sampleEmail())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.tickets) != 1 || len(f.replies) != 0 {
		t.Fatalf("tickets=%d replies=%d", len(f.tickets), len(f.replies))
	}
	got := f.tickets[0]
	if got.EmailID != "m1" || got.SenderName != "Jane" || got.ThreadID != "t1" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestDispatchReply(t *testing.T) {
	f := &fakePoster{}
	d := newTestDispatcher(f)

	if err := d.Dispatch(context.Background(), ReplyEnvelope(sampleEmail(), "42")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.replies) != 1 {
		t.Fatalf("replies = %d", len(f.replies))
	}
	if f.replies[0].TicketID != "42" {
		t.Fatalf("ticket id = %q", f.replies[0].TicketID)
	}
}

func TestDispatchReplyConflictIsSuccess(t *testing.T) {
	f := &fakePoster{replyErr: backend.ErrConflict}
	d := newTestDispatcher(f)

	if err := d.Dispatch(context.Background(), ReplyEnvelope(sampleEmail(), "42")); err != nil {
		t.Fatalf("conflict on reply must be success, got %v", err)
	}
}

func TestDispatchNewTicketErrorPropagates(t *testing.T) {
	wantErr := errors.New("backend down")
	f := &fakePoster{ticketErr: wantErr}
	d := newTestDispatcher(f)

	err := d.Dispatch(context.Background(), NewTicketEnvelope(sampleEmail()))
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped backend error, got %v", err)
	}
}

func TestDispatchMissingPayload(t *testing.T) {
	d := newTestDispatcher(&fakePoster{})
	if err := d.Dispatch(context.Background(), Envelope{Kind: KindReply}); err == nil {
		t.Fatal("expected error for envelope without payload")
	}
}

func TestEnvelopeEmailID(t *testing.T) {
	if got := NewTicketEnvelope(sampleEmail()).EmailID(); got != "m1" {
		t.Fatalf("new ticket envelope id = %q", got)
	}
	if got := ReplyEnvelope(sampleEmail(), "42").EmailID(); got != "m1" {
		t.Fatalf("reply envelope id = %q", got)
	}
}
