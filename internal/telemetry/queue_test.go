package telemetry

import (
	"sync"
	"testing"
	"time"
)

func TestQueue_PushPop(t *testing.T) {
	q := NewQueue[int]()

	for i := 0; i < 5; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) returned false", i)
		}
	}
	if q.Stats().Len != 5 {
		t.Errorf("Stats().Len = %d, want 5", q.Stats().Len)
	}

	for i := 0; i < 5; i++ {
		v, ok := q.tryPop()
		if !ok {
			t.Fatalf("tryPop() returned false for item %d", i)
		}
		if v != i {
			t.Errorf("popped %d, want %d", v, i)
		}
	}

	if _, ok := q.tryPop(); ok {
		t.Error("tryPop() on empty queue returned true")
	}
}

func TestQueue_BacklogPreservesOrder(t *testing.T) {
	q := NewQueue[int]()

	// Advance the head so the ring wraps before it grows.
	for i := 0; i < 3; i++ {
		q.Push(-1)
		q.tryPop()
	}
	for i := 0; i < 100; i++ {
		q.Push(i)
	}

	if peak := q.Stats().Peak; peak != 100 {
		t.Errorf("Peak = %d, want 100", peak)
	}

	for i := 0; i < 100; i++ {
		v, ok := q.tryPop()
		if !ok || v != i {
			t.Fatalf("tryPop() = %d, %v; want %d, true", v, ok, i)
		}
	}
	if q.Stats().Len != 0 {
		t.Errorf("Stats().Len = %d, want 0", q.Stats().Len)
	}
}

func TestQueue_PopBlocks(t *testing.T) {
	q := NewQueue[int]()

	got := make(chan int, 1)
	go func() {
		v, _ := q.Pop()
		got <- v
	}()

	select {
	case <-got:
		t.Fatal("Pop returned before Push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(42)
	select {
	case v := <-got:
		if v != 42 {
			t.Errorf("Pop() = %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestQueue_Close(t *testing.T) {
	q := NewQueue[int]()
	q.Push(1)
	q.Push(2)
	q.Close()

	if q.Push(3) {
		t.Error("Push after Close returned true")
	}

	// Queued items survive Close.
	for _, want := range []int{1, 2} {
		v, ok := q.Pop()
		if !ok || v != want {
			t.Errorf("Pop() = %d, %v; want %d, true", v, ok, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop on closed empty queue returned true")
	}
}

func TestQueue_CloseWakesPop(t *testing.T) {
	q := NewQueue[int]()

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Pop returned true after Close on empty queue")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake Pop")
	}
}

func TestQueue_Drain(t *testing.T) {
	q := NewQueue[int]()
	for i := 0; i < 10; i++ {
		q.Push(i)
	}

	first := q.Drain(3)
	if len(first) != 3 || first[0] != 0 || first[2] != 2 {
		t.Errorf("Drain(3) = %v, want [0 1 2]", first)
	}

	rest := q.Drain(0)
	if len(rest) != 7 || rest[0] != 3 || rest[6] != 9 {
		t.Errorf("Drain(0) = %v, want [3..9]", rest)
	}

	if got := q.Drain(0); got != nil {
		t.Errorf("Drain on empty queue = %v, want nil", got)
	}

	stats := q.Stats()
	if stats.Pushed != 10 || stats.Popped != 10 {
		t.Errorf("Pushed/Popped = %d/%d, want 10/10", stats.Pushed, stats.Popped)
	}
}

func TestQueue_Concurrent(t *testing.T) {
	q := NewQueue[int]()
	const producers, each = 4, 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				q.Push(i)
			}
		}()
	}

	received := make(chan int, 1)
	go func() {
		n := 0
		for {
			if _, ok := q.Pop(); !ok {
				received <- n
				return
			}
			n++
		}
	}()

	wg.Wait()
	q.Close()

	select {
	case n := <-received:
		if n != producers*each {
			t.Errorf("received %d items, want %d", n, producers*each)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not finish")
	}
}
