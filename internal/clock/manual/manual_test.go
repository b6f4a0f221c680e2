package manual

import (
	"sync"
	"testing"
	"time"
)

func TestAdvanceAndSet(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := New(start)
	if got := clk.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}
	if got := clk.Advance(90 * time.Second); !got.Equal(start.Add(90 * time.Second)) {
		t.Fatalf("Advance() = %v", got)
	}
	clk.Set(start.Add(-time.Hour))
	if got := clk.Now(); !got.Equal(start.Add(-time.Hour)) {
		t.Fatalf("after Set, Now() = %v", got)
	}
}

func TestConcurrentAdvance(t *testing.T) {
	t.Parallel()

	start := time.Unix(0, 0).UTC()
	clk := New(start)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clk.Advance(time.Second)
		}()
	}
	wg.Wait()
	if got := clk.Now(); !got.Equal(start.Add(50 * time.Second)) {
		t.Fatalf("Now() = %v, want %v", got, start.Add(50*time.Second))
	}
}
