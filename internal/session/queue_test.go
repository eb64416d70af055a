package session

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestEventQueue_KeepsOrderBeyondAnyBuffer(t *testing.T) {
	q := newEventQueue()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			q.push(Event{HandleID: fmt.Sprintf("h-%d", i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("push blocked without a consumer")
	}

	for i := 0; i < 500; i++ {
		ev, ok := q.pop()
		if !ok {
			t.Fatalf("Expected event %d, queue empty", i)
		}
		if want := fmt.Sprintf("h-%d", i); ev.HandleID != want {
			t.Fatalf("Expected %s, got %s", want, ev.HandleID)
		}
	}
	if _, ok := q.pop(); ok {
		t.Error("Expected queue to be empty")
	}
}

func TestEventQueue_ReadySignal(t *testing.T) {
	q := newEventQueue()

	select {
	case <-q.ready:
		t.Fatal("Expected no signal on an empty queue")
	default:
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.push(Event{})
		}()
	}
	wg.Wait()

	select {
	case <-q.ready:
	default:
		t.Fatal("Expected a ready signal after pushes")
	}
	n := 0
	for {
		if _, ok := q.pop(); !ok {
			break
		}
		n++
	}
	if n != 10 {
		t.Errorf("Expected 10 pending events, got %d", n)
	}
}
