package pubsub_test

import (
	"testing"
	"time"

	"github.com/descore/simkernel/pubsub"
)

func TestLoggerPublishSubscribe(t *testing.T) {
	l := pubsub.NewLogger(nil)
	sub := l.Subscribe()

	l.Publish("first message")

	select {
	case msg := <-sub:
		if *msg != "first message" {
			t.Errorf("expected 'first message', got: %s", *msg)
		}
	case <-time.After(time.Second):
		t.Error("expected a log message but didn't receive any")
	}
}

func TestLoggerWriteImplementsIOWriter(t *testing.T) {
	l := pubsub.NewLogger(nil)
	sub := l.Subscribe()

	n, err := l.Write([]byte("from a slog handler"))
	if err != nil {
		t.Fatalf("Write returned an error: %v", err)
	}
	if n != len("from a slog handler") {
		t.Errorf("expected Write to report %d bytes, got %d", len("from a slog handler"), n)
	}

	select {
	case msg := <-sub:
		if *msg != "from a slog handler" {
			t.Errorf("expected 'from a slog handler', got: %s", *msg)
		}
	case <-time.After(time.Second):
		t.Error("expected a log message but didn't receive any")
	}
}

func TestLoggerDropsWhenUnsubscribed(t *testing.T) {
	l := pubsub.NewLogger(nil)

	// Fill the buffered channel past capacity; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			l.Publish("noise")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked instead of dropping messages for a full, unread channel")
	}
}

func TestLoggerPublishesToHubAsLogEmittedNotification(t *testing.T) {
	hub := pubsub.NewHub()
	defer hub.Shutdown()

	var got pubsub.Notification
	notified := make(chan struct{})
	hub.Subscribe(pubsub.ObserverFunc(func(n pubsub.Notification) {
		got = n
		close(notified)
	}))

	l := pubsub.NewLogger(hub)
	l.Publish("routed through the hub")

	select {
	case <-notified:
		if got.Phase != pubsub.LogEmitted {
			t.Errorf("expected phase LogEmitted, got %v", got.Phase)
		}
		if got.Message != "routed through the hub" {
			t.Errorf("expected the published text on Notification.Message, got %q", got.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a LogEmitted notification on the hub")
	}
}
