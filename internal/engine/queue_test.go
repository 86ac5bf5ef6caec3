package engine

import (
	"context"
	"errors"
	"testing"
)

func future(id string, origin Origin, session string) *Future {
	return newFuture(context.Background(), Job{ID: id, Origin: origin, SessionID: session})
}

func TestQueue_Order(t *testing.T) {
	q := newQueue()
	for _, f := range []*Future{
		future("b1", OriginBatch, ""),
		future("l1", OriginLive, "s1"),
		future("b2", OriginBatch, ""),
		future("l2", OriginLive, "s2"),
	} {
		if err := q.push(f); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{"l1", "l2", "b1", "b2"}
	for _, id := range want {
		f := q.pop()
		if f == nil {
			t.Fatalf("pop() = nil, want %s", id)
		}
		if f.job.ID != id {
			t.Errorf("pop() = %s, want %s", f.job.ID, id)
		}
	}
	if f := q.pop(); f != nil {
		t.Errorf("pop() on empty queue = %s, want nil", f.job.ID)
	}
}

func TestQueue_RemoveSession(t *testing.T) {
	q := newQueue()
	for _, f := range []*Future{
		future("a", OriginLive, "s1"),
		future("b", OriginLive, "s2"),
		future("c", OriginLive, "s1"),
	} {
		q.push(f)
	}

	removed := q.removeSession("s1")
	if len(removed) != 2 {
		t.Fatalf("removeSession() removed %d, want 2", len(removed))
	}
	if q.len() != 1 {
		t.Errorf("len() = %d, want 1", q.len())
	}
	if f := q.pop(); f.job.ID != "b" {
		t.Errorf("pop() = %s, want b", f.job.ID)
	}
}

func TestQueue_Remove(t *testing.T) {
	q := newQueue()
	a, b := future("a", OriginBatch, ""), future("b", OriginBatch, "")
	q.push(a)
	q.push(b)

	if !q.remove(a) {
		t.Error("remove(a) = false, want true")
	}
	if q.remove(a) {
		t.Error("second remove(a) = true, want false")
	}
	if f := q.pop(); f != b {
		t.Errorf("pop() = %v, want b", f.job.ID)
	}
}

func TestQueue_CloseAndReopen(t *testing.T) {
	q := newQueue()
	q.push(future("a", OriginBatch, ""))
	q.push(future("b", OriginLive, ""))

	drained := q.close(ErrEngineUnavailable)
	if len(drained) != 2 {
		t.Errorf("close() drained %d, want 2", len(drained))
	}
	if err := q.push(future("c", OriginBatch, "")); !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("push() after close error = %v, want ErrEngineUnavailable", err)
	}

	q.reopen()
	if err := q.push(future("d", OriginBatch, "")); err != nil {
		t.Errorf("push() after reopen error = %v", err)
	}
}

func TestFuture_CompleteOnce(t *testing.T) {
	f := future("a", OriginBatch, "")
	f.complete(nil, ErrSuperseded)
	f.complete(nil, ErrCanceled)

	if _, err := f.Wait(context.Background()); !errors.Is(err, ErrSuperseded) {
		t.Errorf("Wait() error = %v, want ErrSuperseded", err)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusStarting, StatusReady, true},
		{StatusReady, StatusBusy, true},
		{StatusBusy, StatusReady, true},
		{StatusBusy, StatusRestarting, true},
		{StatusRestarting, StatusStarting, true},
		{StatusRestarting, StatusReady, false},
		{StatusFailed, StatusReady, false},
		{StatusFailed, StatusStarting, true},
		{StatusStopped, StatusStarting, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := canTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("canTransition(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}
