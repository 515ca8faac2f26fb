package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"quizroom-service/internal/domain"
)

func TestRunStoreMaterializesOnce(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore()

	var builds int32
	build := func(context.Context) ([]domain.Question, error) {
		atomic.AddInt32(&builds, 1)
		return []domain.Question{{Text: "2 + 2 = ?", CorrectAnswer: "4", Answers: []string{"3", "4", "5", "6"}}}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			questions, err := store.GetOrCreate(ctx, "room-1", build)
			if err != nil || len(questions) != 1 {
				t.Errorf("get or create: %v (%d questions)", err, len(questions))
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&builds); n != 1 {
		t.Fatalf("expected run built exactly once, got %d", n)
	}

	// Separate room gets its own run.
	if _, err := store.GetOrCreate(ctx, "room-2", build); err != nil {
		t.Fatalf("second room: %v", err)
	}
	if n := atomic.LoadInt32(&builds); n != 2 {
		t.Fatalf("expected second build for second room, got %d", n)
	}
}
