// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package memory

import (
	"context"
	"testing"

	rendererevents "github.com/ccheshirecat/renderd/internal/renderer/events"
)

func TestPublishSubscribe(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)

	unsubscribe, err := bus.Subscribe(rendererevents.TopicJobEvents, ch)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()

	event := rendererevents.JobEvent{Type: rendererevents.TypeJobStarted, JobID: 1, URL: "https://example.com"}
	if err := bus.Publish(context.Background(), rendererevents.TopicJobEvents, event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case payload := <-ch:
		got, ok := payload.(rendererevents.JobEvent)
		if !ok || got.JobID != 1 {
			t.Fatalf("payload = %#v", payload)
		}
	default:
		t.Fatal("event not delivered")
	}
}

func TestSlowSubscriberSkipped(t *testing.T) {
	bus := New()
	full := make(chan any) // unbuffered with no reader

	unsubscribe, err := bus.Subscribe("topic", full)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()

	// Publish must not block on the stuck subscriber.
	if err := bus.Publish(context.Background(), "topic", "payload"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)

	unsubscribe, err := bus.Subscribe("topic", ch)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	unsubscribe()

	if err := bus.Publish(context.Background(), "topic", "payload"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case payload := <-ch:
		t.Fatalf("delivered after unsubscribe: %#v", payload)
	default:
	}
}

func TestSubscribeNilChannel(t *testing.T) {
	if _, err := New().Subscribe("topic", nil); err == nil {
		t.Fatal("expected error for nil channel")
	}
}
