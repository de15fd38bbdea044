package dedup

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"
)

type fakeLister struct {
	emailBatches [][]string
	replyBatches [][]string
	emailErrs    []error
	replyErrs    []error
	emailCalls   int
	replyCalls   int
}

func (f *fakeLister) ProcessedEmailIDs(ctx context.Context) ([]string, error) {
	i := f.emailCalls
	f.emailCalls++
	var err error
	if i < len(f.emailErrs) {
		err = f.emailErrs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(f.emailBatches) {
		return f.emailBatches[i], nil
	}
	return nil, nil
}

func (f *fakeLister) ProcessedReplyIDs(ctx context.Context) ([]string, error) {
	i := f.replyCalls
	f.replyCalls++
	var err error
	if i < len(f.replyErrs) {
		err = f.replyErrs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(f.replyBatches) {
		return f.replyBatches[i], nil
	}
	return nil, nil
}

func quietStore(f *fakeLister, opts ...StoreOption) *Store {
	opts = append(opts, WithStoreLogger(log.New(io.Discard, "", 0)))
	return NewStore(f, opts...)
}

func TestMarkAndContains(t *testing.T) {
	s := quietStore(&fakeLister{})
	if s.Contains("m1") {
		t.Fatal("empty store should not contain m1")
	}
	s.MarkProcessed("m1")
	s.MarkProcessed("")
	if !s.Contains("m1") {
		t.Fatal("m1 should be marked")
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d", s.Len())
	}
}

func TestBootstrapLoadsBothSources(t *testing.T) {
	f := &fakeLister{
		emailBatches: [][]string{{"e1", "e2"}},
		replyBatches: [][]string{{"r1"}},
	}
	s := quietStore(f)
	s.Bootstrap(context.Background())

	for _, id := range []string{"e1", "e2", "r1"} {
		if !s.Contains(id) {
			t.Fatalf("missing %s after bootstrap", id)
		}
	}
	if f.emailCalls != 1 {
		t.Fatalf("email fetches = %d", f.emailCalls)
	}
}

func TestBootstrapRetriesOnError(t *testing.T) {
	f := &fakeLister{
		emailErrs:    []error{errors.New("unreachable"), nil},
		emailBatches: [][]string{nil, {"e1"}},
		replyBatches: [][]string{nil, nil},
	}
	s := quietStore(f,
		WithBootstrapAttempts(3),
		WithBootstrapDelay(time.Millisecond),
	)
	s.Bootstrap(context.Background())

	if !s.Contains("e1") {
		t.Fatal("second attempt result not loaded")
	}
	if f.emailCalls != 2 {
		t.Fatalf("email fetches = %d, want 2", f.emailCalls)
	}
}

func TestBootstrapRetriesOnEmptyThenProceeds(t *testing.T) {
	f := &fakeLister{}
	s := quietStore(f,
		WithBootstrapAttempts(3),
		WithBootstrapDelay(time.Millisecond),
	)
	s.Bootstrap(context.Background())

	if f.emailCalls != 3 {
		t.Fatalf("empty result should be retried every attempt, got %d fetches", f.emailCalls)
	}
	if s.Len() != 0 {
		t.Fatalf("len = %d", s.Len())
	}
}

func TestBootstrapHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeLister{}
	s := quietStore(f,
		WithBootstrapAttempts(3),
		WithBootstrapDelay(time.Hour),
	)
	done := make(chan struct{})
	go func() {
		s.Bootstrap(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bootstrap did not return after cancellation")
	}
}

func TestRefreshOnlyAdds(t *testing.T) {
	f := &fakeLister{
		emailBatches: [][]string{{"e1"}, {"e2"}},
		replyBatches: [][]string{nil, nil},
	}
	s := quietStore(f)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.MarkProcessed("local")

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, id := range []string{"e1", "e2", "local"} {
		if !s.Contains(id) {
			t.Fatalf("refresh dropped %s", id)
		}
	}
}

func TestRefreshKeepsPartialOnReplyError(t *testing.T) {
	f := &fakeLister{
		emailBatches: [][]string{{"e1"}},
		replyErrs:    []error{errors.New("boom")},
	}
	s := quietStore(f)
	if err := s.Refresh(context.Background()); err == nil {
		t.Fatal("expected error from reply fetch")
	}
	if !s.Contains("e1") {
		t.Fatal("email ids fetched before the failure should be kept")
	}
}
