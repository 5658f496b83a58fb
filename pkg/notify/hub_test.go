package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/dd0wney/posh-debugger/pkg/logging"
	"github.com/dd0wney/posh-debugger/pkg/metrics"
)

func newTestHub() *Hub {
	return NewHub(logging.NewNopLogger(), nil)
}

func sampleEvent(name string) DirtyEvent {
	return DirtyEvent{SessionID: "s1", Category: "CompetenceElement", Name: name, Generation: 1, At: time.Unix(1700000000, 0).UTC()}
}

// TestBasicPublish tests that a subscriber receives a published event
func TestBasicPublish(t *testing.T) {
	hub := newTestHub()
	defer hub.Shutdown()

	sub, err := hub.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	hub.Publish(sampleEvent("ChaseBall"))

	select {
	case ev := <-sub.Channel():
		if ev.Name != "ChaseBall" {
			t.Errorf("Expected ChaseBall, got %q", ev.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for event")
	}
}

// TestMultipleSubscribers tests fan-out to every subscriber
func TestMultipleSubscribers(t *testing.T) {
	hub := newTestHub()
	defer hub.Shutdown()

	const n = 5
	subs := make([]*Subscription, n)
	for i := range subs {
		sub, err := hub.Subscribe(context.Background())
		if err != nil {
			t.Fatalf("Failed to subscribe %d: %v", i, err)
		}
		subs[i] = sub
	}

	hub.Publish(sampleEvent("Kick"))

	for i, sub := range subs {
		select {
		case ev := <-sub.Channel():
			if ev.Name != "Kick" {
				t.Errorf("Subscriber %d got %q", i, ev.Name)
			}
		case <-time.After(time.Second):
			t.Fatalf("Subscriber %d timed out", i)
		}
	}
}

// TestContextCancellation tests that cancelling the context ends the subscription
func TestContextCancellation(t *testing.T) {
	hub := newTestHub()
	defer hub.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := hub.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	cancel()

	select {
	case _, ok := <-sub.Channel():
		if ok {
			t.Error("Expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("Channel not closed after cancel")
	}

	deadline := time.Now().Add(time.Second)
	for hub.SubscriberCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := hub.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount = %d, want 0", got)
	}
}

// TestSlowSubscriberDrops tests that a full queue drops instead of blocking
func TestSlowSubscriberDrops(t *testing.T) {
	m := metrics.NewRegistry()
	hub := NewHub(logging.NewNopLogger(), m)
	defer hub.Shutdown()

	if _, err := hub.Subscribe(context.Background()); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+10; i++ {
			hub.Publish(sampleEvent("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	var metric dto.Metric
	if err := m.NotificationsTotal.WithLabelValues("dropped").Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 10 {
		t.Errorf("dropped = %v, want 10", metric.Counter.GetValue())
	}
}

// TestShutdown tests that shutdown closes subscriptions and rejects new ones
func TestShutdown(t *testing.T) {
	hub := newTestHub()
	sub, err := hub.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	hub.Shutdown()
	hub.Shutdown()

	if _, ok := <-sub.Channel(); ok {
		t.Error("Expected closed channel after shutdown")
	}
	if _, err := hub.Subscribe(context.Background()); !errors.Is(err, ErrHubClosed) {
		t.Errorf("Subscribe after shutdown: err = %v, want ErrHubClosed", err)
	}

	// Must not panic
	hub.Publish(sampleEvent("late"))
	sub.Unsubscribe()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []DirtyEvent
	fail   error
	closed bool
}

func (p *recordingPublisher) Publish(ev DirtyEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.fail
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// TestAttachedPublisher tests forwarding to attached publishers
func TestAttachedPublisher(t *testing.T) {
	hub := newTestHub()
	ok := &recordingPublisher{}
	failing := &recordingPublisher{fail: errors.New("socket gone")}
	hub.Attach(ok)
	hub.Attach(failing)

	hub.Publish(sampleEvent("a"))
	hub.Publish(sampleEvent("b"))

	if len(ok.events) != 2 || len(failing.events) != 2 {
		t.Errorf("forwarded %d and %d events, want 2 each", len(ok.events), len(failing.events))
	}

	hub.Shutdown()
	if !ok.closed || !failing.closed {
		t.Error("Shutdown should close attached publishers")
	}
}

// TestConcurrentPublishUnsubscribe tests for races between delivery and unsubscribe
func TestConcurrentPublishUnsubscribe(t *testing.T) {
	hub := newTestHub()
	defer hub.Shutdown()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		sub, err := hub.Subscribe(context.Background())
		if err != nil {
			t.Fatalf("Failed to subscribe: %v", err)
		}
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				hub.Publish(sampleEvent("x"))
			}
		}()
		go func() {
			defer wg.Done()
			time.Sleep(time.Millisecond)
			sub.Unsubscribe()
		}()
	}
	wg.Wait()
}
