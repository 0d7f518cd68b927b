package safego

import (
	"testing"
	"time"
)

// waitDone fails the test if done is not closed within two seconds.
func waitDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("background goroutine did not finish")
	}
}

func TestGo_RunsFunction(t *testing.T) {
	done := make(chan struct{})
	Go(func() {
		close(done)
	})
	waitDone(t, done)
}

func TestGo_SurvivesPanic(t *testing.T) {
	done := make(chan struct{})
	Go(func() {
		defer close(done)
		panic("boom")
	})
	// If the panic were not recovered the whole test process would die here.
	waitDone(t, done)
}
