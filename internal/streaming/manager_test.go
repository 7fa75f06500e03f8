package streaming

import (
	"encoding/json"
	"sync"
	"testing"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	m := NewManager(8, nil)
	ch := m.Subscribe("sess-1", 4)
	defer m.Unsubscribe("sess-1", ch)

	m.Publish("sess-1", "progress", map[string]string{"phase": "researching"})

	evt := <-ch
	if evt.Type != "progress" || evt.SessionID != "sess-1" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	var payload map[string]string
	if err := json.Unmarshal(evt.Data, &payload); err != nil {
		t.Fatalf("payload not json: %v", err)
	}
	if payload["phase"] != "researching" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestPublishIsolatesSessions(t *testing.T) {
	m := NewManager(8, nil)
	ch := m.Subscribe("sess-a", 4)
	defer m.Unsubscribe("sess-a", ch)

	m.Publish("sess-b", "progress", nil)

	select {
	case evt := <-ch:
		t.Fatalf("got event for other session: %+v", evt)
	default:
	}
}

func TestSlowSubscriberDropsNotBlocks(t *testing.T) {
	m := NewManager(8, nil)
	ch := m.Subscribe("sess-1", 1)
	defer m.Unsubscribe("sess-1", ch)

	// Second publish must not block even though the buffer is full.
	m.Publish("sess-1", "answer_chunk", "a")
	m.Publish("sess-1", "answer_chunk", "b")

	evt := <-ch
	if evt.Seq != 1 {
		t.Fatalf("expected first event retained, got seq %d", evt.Seq)
	}
	if got := m.ReplaySince("sess-1", evt.Seq); len(got) != 1 || got[0].Seq != 2 {
		t.Fatalf("replay should recover the dropped event, got %+v", got)
	}
}

func TestReplaySinceHonorsRingCapacity(t *testing.T) {
	m := NewManager(3, nil)
	for i := 0; i < 5; i++ {
		m.Publish("sess-1", "progress", i)
	}

	// Ring holds seqs 3,4,5.
	all := m.ReplaySince("sess-1", 0)
	if len(all) != 3 || all[0].Seq != 3 || all[2].Seq != 5 {
		t.Fatalf("unexpected ring contents: %+v", all)
	}
	tail := m.ReplaySince("sess-1", 4)
	if len(tail) != 1 || tail[0].Seq != 5 {
		t.Fatalf("unexpected replay since 4: %+v", tail)
	}
	if got := m.ReplaySince("unknown", 0); got != nil {
		t.Fatalf("unknown session should replay nothing, got %+v", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	m := NewManager(8, nil)
	ch := m.Subscribe("sess-1", 1)
	m.Unsubscribe("sess-1", ch)

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	// Double unsubscribe is a no-op, not a double close.
	m.Unsubscribe("sess-1", ch)
}

func TestForgetDropsHistoryAndSubscribers(t *testing.T) {
	m := NewManager(8, nil)
	ch := m.Subscribe("sess-1", 1)
	m.Publish("sess-1", "progress", nil)

	m.Forget("sess-1")
	if m.Sessions() != 0 {
		t.Fatalf("history not dropped, %d sessions left", m.Sessions())
	}
	if _, ok := <-ch; ok {
		t.Fatal("subscriber channel should be closed")
	}
	if got := m.ReplaySince("sess-1", 0); got != nil {
		t.Fatalf("replay after forget should be empty, got %+v", got)
	}
}

func TestConcurrentPublishAndChurn(t *testing.T) {
	m := NewManager(32, nil)
	const publishers = 4

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					m.Publish("sess-1", "answer_chunk", "x")
				}
			}
		}()
	}

	// Churn subscribers and session state while the publishers run.
	// Disconnecting observers must never panic a publisher.
	for i := 0; i < 200; i++ {
		ch := m.Subscribe("sess-1", 1)
		m.Unsubscribe("sess-1", ch)
		if i%50 == 0 {
			m.Forget("sess-1")
		}
	}
	close(stop)
	wg.Wait()

	m.Publish("sess-1", "complete", nil)
	if got := m.ReplaySince("sess-1", 0); len(got) == 0 {
		t.Fatal("session should still accept events after churn")
	}
}
