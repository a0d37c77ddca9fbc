package agentcore

import (
	"testing"
	"time"
)

func TestHubRunsSubmittedTasks(t *testing.T) {
	h := NewHub()
	defer h.Close()

	done := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		h.Submit(func() { done <- i })
	}

	seen := 0
	timeout := time.After(time.Second)
	for seen < 3 {
		select {
		case <-done:
			seen++
		case <-timeout:
			t.Fatalf("timed out waiting for submitted tasks, got %d/3", seen)
		}
	}
}

func TestHubCloseStopsAcceptingWork(t *testing.T) {
	h := NewHub()
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ran := false
	h.Submit(func() { ran = true })
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("hub did not report done after Close")
	}
	if ran {
		t.Errorf("task submitted after Close should not run")
	}
}
