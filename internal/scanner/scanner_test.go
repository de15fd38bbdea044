package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
)

func newTestScanner(mailbox *fakeMailbox, d *fakeDispatcher, processed *fakeProcessed, opts ...ScannerOption) *Scanner {
	p := NewProcessor(mailbox, &fakeRemote{}, &fakeResolver{}, d, processed, quietLogger())
	opts = append(opts, WithScannerLogger(quietLogger()))
	return NewScanner(mailbox, p, processed, opts...)
}

func TestScanProcessesOldestFirst(t *testing.T) {
	mailbox := &fakeMailbox{
		listIDs: []string{"m3", "m1", "m2"},
		messages: map[string]*gmailapi.Message{
			"m1": newMessage("m1", "t1", false),
			"m2": newMessage("m2", "t2", false),
			"m3": newMessage("m3", "t3", false),
		},
	}
	d := &fakeDispatcher{}
	s := newTestScanner(mailbox, d, newFakeProcessed(), WithWorkers(1))

	if err := s.Scan(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(d.envelopes) != 3 {
		t.Fatalf("dispatched %d messages, want 3", len(d.envelopes))
	}
	want := []string{"m2", "m1", "m3"}
	for i, env := range d.envelopes {
		if env.EmailID() != want[i] {
			t.Fatalf("dispatch order = %v at %d, want %v", env.EmailID(), i, want)
		}
	}
}

func TestScanSkipsProcessed(t *testing.T) {
	mailbox := &fakeMailbox{
		listIDs: []string{"m2", "m1"},
		messages: map[string]*gmailapi.Message{
			"m1": newMessage("m1", "t1", false),
			"m2": newMessage("m2", "t2", false),
		},
	}
	d := &fakeDispatcher{}
	processed := newFakeProcessed()
	processed.MarkProcessed("m1")
	s := newTestScanner(mailbox, d, processed, WithWorkers(1))

	if err := s.Scan(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.envelopes) != 1 || d.envelopes[0].EmailID() != "m2" {
		t.Fatalf("envelopes = %+v", d.envelopes)
	}
}

func TestScanEmptyInbox(t *testing.T) {
	mailbox := &fakeMailbox{}
	d := &fakeDispatcher{}
	s := newTestScanner(mailbox, d, newFakeProcessed())

	if err := s.Scan(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.envelopes) != 0 {
		t.Fatalf("envelopes = %+v", d.envelopes)
	}
}

func TestScanListFailure(t *testing.T) {
	mailbox := &fakeMailbox{listErr: errors.New("quota")}
	s := newTestScanner(mailbox, &fakeDispatcher{}, newFakeProcessed())

	if err := s.Scan(context.Background()); err == nil {
		t.Fatal("listing failure must abort the cycle with an error")
	}
	if mailbox.reauthed != 0 {
		t.Fatal("non-auth failure must not trigger reauthorization")
	}
}

func TestScanAuthErrorReauthorizesAndDefers(t *testing.T) {
	authErr := errors.New("invalid_grant")
	mailbox := &fakeMailbox{listErr: authErr}
	s := newTestScanner(mailbox, &fakeDispatcher{}, newFakeProcessed(),
		WithAuthErrorCheck(func(err error) bool { return errors.Is(err, authErr) }),
	)

	if err := s.Scan(context.Background()); err != nil {
		t.Fatalf("auth expiry must defer, not fail: %v", err)
	}
	if mailbox.reauthed != 1 {
		t.Fatalf("reauthorize calls = %d, want 1", mailbox.reauthed)
	}
}

func TestScanReauthorizeFailure(t *testing.T) {
	authErr := errors.New("invalid_grant")
	mailbox := &fakeMailbox{listErr: authErr, reauthErr: errors.New("still broken")}
	s := newTestScanner(mailbox, &fakeDispatcher{}, newFakeProcessed(),
		WithAuthErrorCheck(func(err error) bool { return errors.Is(err, authErr) }),
	)

	if err := s.Scan(context.Background()); err == nil {
		t.Fatal("failed reauthorization must surface an error")
	}
}

func TestScanDrainTimeoutIsNotAnError(t *testing.T) {
	mailbox := &fakeMailbox{
		listIDs: []string{"m1"},
		messages: map[string]*gmailapi.Message{
			"m1": newMessage("m1", "t1", false),
		},
	}
	slow := &fakeRemote{}
	processed := newFakeProcessed()
	p := NewProcessor(slowFetcher{mailbox, 200 * time.Millisecond}, slow, &fakeResolver{}, &fakeDispatcher{}, processed, quietLogger())
	s := NewScanner(mailbox, p, processed,
		WithWorkers(1),
		WithDrainTimeout(20*time.Millisecond),
		WithScannerLogger(quietLogger()),
	)

	if err := s.Scan(context.Background()); err != nil {
		t.Fatalf("drain timeout must not fail the cycle: %v", err)
	}
}

type slowFetcher struct {
	inner *fakeMailbox
	delay time.Duration
}

func (s slowFetcher) FetchFullMessage(ctx context.Context, id string) (*gmailapi.Message, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.inner.FetchFullMessage(ctx, id)
}
