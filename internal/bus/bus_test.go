package bus

import (
	"fmt"
	"testing"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New(4)
	s1 := b.Subscribe(TopicOutbound)
	s2 := b.Subscribe(TopicOutbound)
	defer s1.Cancel()
	defer s2.Cancel()

	b.Publish(Message{Topic: TopicOutbound, ConversationID: "c1", Payload: "hallo"})

	for i, s := range []*Subscription{s1, s2} {
		select {
		case msg := <-s.C:
			if msg.ConversationID != "c1" {
				t.Fatalf("subscriber %d got conversation %q, want c1", i, msg.ConversationID)
			}
		default:
			t.Fatalf("subscriber %d received nothing", i)
		}
	}
}

func TestPublishPreservesOrderPerSubscriber(t *testing.T) {
	b := New(16)
	sub := b.Subscribe(TopicOutbound)
	defer sub.Cancel()

	for i := 0; i < 10; i++ {
		b.Publish(Message{Topic: TopicOutbound, ConversationID: "c1", Payload: fmt.Sprintf("m%d", i)})
	}
	for i := 0; i < 10; i++ {
		msg := <-sub.C
		if want := fmt.Sprintf("m%d", i); msg.Payload != want {
			t.Fatalf("message %d = %v, want %s", i, msg.Payload, want)
		}
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := New(2)
	dropped := 0
	b.SetDropHook(func(topic string) { dropped++ })
	sub := b.Subscribe(TopicOutbound)
	defer sub.Cancel()

	for i := 0; i < 5; i++ {
		b.Publish(Message{Topic: TopicOutbound, Payload: i})
	}
	if dropped != 3 {
		t.Fatalf("dropped = %d, want 3", dropped)
	}
	if got := len(sub.C); got != 2 {
		t.Fatalf("buffered = %d, want 2", got)
	}
}

func TestCancelClosesChannelAndUnsubscribes(t *testing.T) {
	b := New(4)
	sub := b.Subscribe(TopicAlerts)
	sub.Cancel()
	sub.Cancel() // idempotent

	if n := b.SubscriberCount(TopicAlerts); n != 0 {
		t.Fatalf("subscriber count = %d, want 0", n)
	}
	if _, ok := <-sub.C; ok {
		t.Fatalf("channel must be closed after cancel")
	}
	// Publishing to a topic with no subscribers is a no-op.
	b.Publish(Message{Topic: TopicAlerts, Payload: "x"})
}
