package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/valpere/fintran/internal/ratelimit"
)

func TestUnlimited_NeverBlocks(t *testing.T) {
	l := ratelimit.Unlimited()
	start := time.Now()
	for i := 0; i < 1000; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if time.Since(start) > time.Second {
		t.Error("unlimited limiter should not block")
	}
}

func TestPerSecond_Throttles(t *testing.T) {
	l := ratelimit.PerSecond(10)
	start := time.Now()
	// burst of 10, then 5 more at 10/s ≈ 500ms
	for i := 0; i < 15; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Errorf("expected throttling, finished in %v", elapsed)
	}
}

func TestPerSecond_ContextCancelled(t *testing.T) {
	l := ratelimit.PerSecond(0.5)
	ctx, cancel := context.WithCancel(context.Background())
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first Wait should use the burst: %v", err)
	}
	cancel()
	if err := l.Wait(ctx); err == nil {
		t.Error("expected error on cancelled context")
	}
}

func TestNew_NonPositiveDisables(t *testing.T) {
	ls := ratelimit.New(0, -1)
	for i := 0; i < 100; i++ {
		if err := ls.LLM.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
		if err := ls.Embed.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
}
