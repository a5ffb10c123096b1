package gateway

import (
	"context"
	"testing"
	"time"
)

func TestMemQueuePutTakeOrder(t *testing.T) {
	q := NewMemQueue([]string{"m1"})
	t1 := NewTicket("comp-")
	t2 := NewTicket("comp-")
	q.Put("m1", t1)
	q.Put("m1", t2)

	got1, err := q.Take(context.Background(), "m1")
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	got2, err := q.Take(context.Background(), "m1")
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if got1 != t1 || got2 != t2 {
		t.Fatal("tickets out of order")
	}
}

func TestMemQueueTakeBlocksUntilPut(t *testing.T) {
	q := NewMemQueue([]string{"m1"})
	tk := NewTicket("comp-")
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Put("m1", tk)
	}()
	got, err := q.Take(context.Background(), "m1")
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if got != tk {
		t.Fatal("wrong ticket")
	}
}

func TestMemQueueTakeContextCancel(t *testing.T) {
	q := NewMemQueue([]string{"m1"})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := q.Take(ctx, "m1"); err == nil {
		t.Fatal("expected context error")
	}
}

func TestMemQueueLazyModel(t *testing.T) {
	q := NewMemQueue(nil)
	tk := NewTicket("comp-")
	q.Put("new-model", tk)
	if got := q.QueueLen("new-model"); got != 1 {
		t.Fatalf("len=%d", got)
	}
}

func TestMemQueueModelsAvailable(t *testing.T) {
	q := NewMemQueue([]string{"b", "a"})
	got := q.ModelsAvailable(true)
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("models=%v, want declaration order", got)
	}
}
