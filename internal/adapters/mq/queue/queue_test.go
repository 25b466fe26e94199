package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func rec(id string) Record { return Record{PlayID: id} }

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if err := q.Emit(ctx, rec("play1")); err != nil {
		t.Fatalf("expected emit to succeed, got %v", err)
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	r := <-q.Dequeue(ctx)
	if r.PlayID != "play1" {
		t.Errorf("expected play1, got %v", r.PlayID)
	}
}

func TestInMemoryQueue_EmitBlocksWhenFull(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	ctx := context.Background()

	if err := q.Emit(ctx, rec("a")); err != nil {
		t.Fatal(err)
	}

	// A full queue holds the producer until the context gives up.
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := q.Emit(short, rec("b")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	// Draining unblocks a waiting producer.
	errc := make(chan error, 1)
	go func() { errc <- q.Emit(ctx, rec("c")) }()
	out := q.Dequeue(ctx)
	if r := <-out; r.PlayID != "a" {
		t.Errorf("expected a, got %s", r.PlayID)
	}
	if err := <-errc; err != nil {
		t.Errorf("expected blocked emit to finish, got %v", err)
	}
	if r := <-out; r.PlayID != "c" {
		t.Errorf("expected c, got %s", r.PlayID)
	}
}

func TestInMemoryQueue_CloseReleasesBlockedEmit(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	ctx := context.Background()
	_ = q.Emit(ctx, rec("a"))

	errc := make(chan error, 1)
	go func() { errc <- q.Emit(ctx, rec("b")) }()
	time.Sleep(10 * time.Millisecond)

	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked emit was not released by close")
	}

	// the record queued before close is still delivered
	var got []string
	for r := range q.Dequeue(ctx) {
		got = append(got, r.PlayID)
	}
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("expected [a], got %v", got)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(16))
	ctx := context.Background()
	numProducers := 10
	numRecords := 100

	var consumed sync.WaitGroup
	consumed.Add(1)
	count := 0
	go func() {
		defer consumed.Done()
		for range q.Dequeue(ctx) {
			count++
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < numProducers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numRecords; j++ {
				if err := q.Emit(ctx, rec(fmt.Sprintf("play%d_%d", id, j))); err != nil {
					t.Errorf("emit: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()
	_ = q.Close()
	consumed.Wait()

	if count != numProducers*numRecords {
		t.Errorf("expected %d records, got %d", numProducers*numRecords, count)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if err := q.Emit(ctx, rec("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after closing, got %v", err)
	}

	select {
	case _, ok := <-q.Dequeue(ctx):
		if ok {
			t.Error("expected no records")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("expected dequeue channel to be closed within timeout")
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected second close to succeed, got error: %v", err)
	}
}
