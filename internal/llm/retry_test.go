package llm

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

// flakyProvider fails dispatch a configured number of times, then succeeds.
type flakyProvider struct {
	failures int
	err      error
	calls    int
}

func (p *flakyProvider) Name() string { return "flaky" }

func (p *flakyProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	p.calls++
	if p.calls <= p.failures {
		return nil, p.err
	}
	return &sliceStream{events: textTurn("recovered")}, nil
}

func drainStream(t *testing.T, stream Stream) ([]Event, error) {
	t.Helper()
	var events []Event
	for {
		event, err := stream.Recv()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
}

func TestRetryProviderRetriesTransientDispatchFailure(t *testing.T) {
	inner := &flakyProvider{failures: 2, err: errors.New("503 service unavailable")}
	provider := WrapWithRetry(inner, RetryConfig{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	})

	stream, err := provider.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	defer stream.Close()

	events, err := drainStream(t, stream)
	if err != nil {
		t.Fatalf("drain error: %v", err)
	}

	var text string
	var retries int
	for _, event := range events {
		switch event.Type {
		case EventTextDelta:
			text += event.Text
		case EventRetry:
			retries++
		}
	}
	if text != "recovered" {
		t.Fatalf("text = %q", text)
	}
	if retries != 2 {
		t.Fatalf("expected 2 retry events, got %d", retries)
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", inner.calls)
	}
}

func TestRetryProviderGivesUpOnNonRetryableError(t *testing.T) {
	inner := &flakyProvider{failures: 5, err: errors.New("401 unauthorized")}
	provider := WrapWithRetry(inner, RetryConfig{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	})

	stream, err := provider.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	defer stream.Close()

	if _, err := drainStream(t, stream); err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Fatalf("non-retryable errors must not be retried, got %d attempts", inner.calls)
	}
}

func TestRetryProviderExhaustsAttempts(t *testing.T) {
	inner := &flakyProvider{failures: 10, err: errors.New("429 too many requests")}
	provider := WrapWithRetry(inner, RetryConfig{
		MaxAttempts: 2,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
	})

	stream, _ := provider.Stream(context.Background(), Request{})
	defer stream.Close()

	_, err := drainStream(t, stream)
	if err == nil || !isRetryable(err) {
		t.Fatalf("expected the last transient error, got %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", inner.calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("429 too many requests"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("connection refused"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("502 bad gateway"), true},
		{errors.New("overloaded_error"), true},
		{errors.New("401 unauthorized"), false},
		{errors.New("invalid request"), false},
		{&RateLimitError{Message: "slow down", RetryAfter: 5 * time.Second}, true},
		{&RateLimitError{Message: "come back later", RetryAfter: time.Hour}, false},
	}

	for _, tt := range tests {
		if got := isRetryable(tt.err); got != tt.want {
			t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestCalculateBackoffHonorsRetryAfter(t *testing.T) {
	r := &RetryProvider{config: RetryConfig{
		BaseBackoff: time.Second,
		MaxBackoff:  30 * time.Second,
	}}

	wait := r.calculateBackoff(1, errors.New("429, retry-after: 7"))
	if wait != 7*time.Second {
		t.Fatalf("expected 7s from retry-after header, got %v", wait)
	}

	wait = r.calculateBackoff(1, &RateLimitError{RetryAfter: 12 * time.Second})
	if wait != 12*time.Second {
		t.Fatalf("expected 12s from RateLimitError, got %v", wait)
	}

	// Retry-After beyond the cap is clamped.
	wait = r.calculateBackoff(1, errors.New("retry-after: 900"))
	if wait != 30*time.Second {
		t.Fatalf("expected clamp to 30s, got %v", wait)
	}
}

func TestCalculateBackoffStaysWithinBounds(t *testing.T) {
	r := &RetryProvider{config: RetryConfig{
		BaseBackoff: time.Second,
		MaxBackoff:  10 * time.Second,
	}}

	for attempt := 1; attempt <= 8; attempt++ {
		wait := r.calculateBackoff(attempt, errors.New("503"))
		if wait <= 0 || wait > 10*time.Second {
			t.Fatalf("attempt %d: backoff %v out of bounds", attempt, wait)
		}
	}
}

func TestEventStreamDeliversProducerError(t *testing.T) {
	wantErr := errors.New("boom")
	stream := newEventStream(context.Background(), func(ctx context.Context, events chan<- Event) error {
		events <- Event{Type: EventTextDelta, Text: "x"}
		return wantErr
	})

	event, err := stream.Recv()
	if err != nil || event.Text != "x" {
		t.Fatalf("first recv = %+v, %v", event, err)
	}
	if _, err := stream.Recv(); !errors.Is(err, wantErr) {
		t.Fatalf("expected producer error, got %v", err)
	}
	// Error is sticky.
	if _, err := stream.Recv(); !errors.Is(err, wantErr) {
		t.Fatalf("expected sticky error, got %v", err)
	}
}

func TestEventStreamCloseCancelsProducer(t *testing.T) {
	started := make(chan struct{})
	done := make(chan struct{})
	stream := newEventStream(context.Background(), func(ctx context.Context, events chan<- Event) error {
		close(started)
		<-ctx.Done()
		close(done)
		return ctx.Err()
	})

	<-started
	stream.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("producer not cancelled by Close")
	}
}
