package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
	"unsafe"
)

func TestGetCreatesEmptySession(t *testing.T) {
	s := NewStore(10)

	if got := s.Get("new"); len(got) != 0 {
		t.Errorf("Get = %v, want empty", got)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestAppendAndCopy(t *testing.T) {
	s := NewStore(10)
	s.Append("s1", Turn{Role: RoleUser, Text: "Hello"})
	s.Append("s1", Turn{Role: RoleModel, Text: "Hi, Barbie!"})

	got := s.Get("s1")
	if len(got) != 2 || got[0].Text != "Hello" || got[1].Role != RoleModel {
		t.Fatalf("Get = %+v", got)
	}

	got[0].Text = "mutated"
	if s.Get("s1")[0].Text != "Hello" {
		t.Error("Get must return a copy")
	}
}

func TestRemoveLastIfRole(t *testing.T) {
	s := NewStore(10)

	if s.RemoveLastIfRole("s1", RoleUser) {
		t.Error("removed from empty history")
	}

	s.Append("s1", Turn{Role: RoleUser, Text: "a"})
	s.Append("s1", Turn{Role: RoleModel, Text: "b"})
	if s.RemoveLastIfRole("s1", RoleUser) {
		t.Error("removed a model turn as user")
	}

	s.Append("s1", Turn{Role: RoleUser, Text: "c"})
	if !s.RemoveLastIfRole("s1", RoleUser) {
		t.Error("did not remove trailing user turn")
	}
	if got := s.Get("s1"); len(got) != 2 || got[1].Text != "b" {
		t.Errorf("history = %+v", got)
	}
}

func TestLastOfRole(t *testing.T) {
	s := NewStore(10)
	if _, ok := s.LastOfRole("s1", RoleModel); ok {
		t.Error("found model turn in empty session")
	}

	s.Append("s1", Turn{Role: RoleUser, Text: "q1"})
	s.Append("s1", Turn{Role: RoleModel, Text: "a1"})
	s.Append("s1", Turn{Role: RoleUser, Text: "q2"})

	turn, ok := s.LastOfRole("s1", RoleModel)
	if !ok || turn.Text != "a1" {
		t.Errorf("LastOfRole = %+v, %v", turn, ok)
	}
}

func TestEvictionBoundedByCapacity(t *testing.T) {
	var mu sync.Mutex
	var evicted []string

	s := NewStore(2, WithOnEvict(func(id string, turns int) {
		mu.Lock()
		evicted = append(evicted, fmt.Sprintf("%s:%d", id, turns))
		mu.Unlock()
	}))

	s.Append("a", Turn{Role: RoleUser, Text: "1"})
	s.Append("b", Turn{Role: RoleUser, Text: "2"})
	s.Get("a") // a is now most recent
	s.Append("c", Turn{Role: RoleUser, Text: "3"})

	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(evicted) != 1 || evicted[0] != "b:1" {
		t.Errorf("evicted = %v, want [b:1]", evicted)
	}
	if got := s.Get("a"); len(got) != 1 {
		t.Errorf("a lost its history: %+v", got)
	}
}

func TestDelete(t *testing.T) {
	s := NewStore(10)
	s.Append("s1", Turn{Role: RoleUser, Text: "x"})

	if !s.Delete("s1") {
		t.Error("Delete reported missing session")
	}
	if s.Delete("s1") {
		t.Error("second Delete reported present")
	}
	if got := s.Get("s1"); len(got) != 0 {
		t.Errorf("history after delete = %+v", got)
	}
}

func TestLockSerialisesTurns(t *testing.T) {
	s := NewStore(10)
	ctx := context.Background()

	lease, err := s.Lock(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}

	acquired := make(chan struct{})
	go func() {
		lease2, err := s.Lock(ctx, "s1")
		if err != nil {
			t.Errorf("second Lock: %v", err)
			close(acquired)
			return
		}
		close(acquired)
		lease2.Unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second turn acquired the lock while the first held it")
	case <-time.After(30 * time.Millisecond):
	}

	lease.Unlock()
	lease.Unlock() // idempotent

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second turn never acquired the lock")
	}
}

func TestLockTimesOut(t *testing.T) {
	s := NewStore(10)
	lease, _ := s.Lock(context.Background(), "s1")
	defer lease.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Lock(ctx, "s1")
	if !errors.Is(err, ErrSessionBusy) {
		t.Errorf("err = %v, want ErrSessionBusy", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want to wrap DeadlineExceeded", err)
	}

	// Other sessions are unaffected.
	other, err := s.Lock(context.Background(), "s2")
	if err != nil {
		t.Fatalf("Lock s2: %v", err)
	}
	other.Unlock()
}

func TestLeaseSurvivesEviction(t *testing.T) {
	s := NewStore(1)
	lease, err := s.Lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer lease.Unlock()
	lease.Append(Turn{Role: RoleUser, Text: "Hello"})

	// "b" pushes "a" out of a one-slot store mid-turn.
	s.Append("b", Turn{Role: RoleUser, Text: "other"})

	lease.Append(Turn{Role: RoleModel, Text: "Hi!"})
	if got := lease.Turns(); len(got) != 2 {
		t.Fatalf("lease turns = %+v", got)
	}

	// The evicted session is back with its lock still held.
	if got := s.Get("a"); len(got) != 2 || got[1].Text != "Hi!" {
		t.Errorf("history = %+v", got)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Lock(ctx, "a"); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("second Lock during turn: err = %v, want ErrSessionBusy", err)
	}
}

func TestLeaseRollback(t *testing.T) {
	s := NewStore(10)
	lease, _ := s.Lock(context.Background(), "s1")
	defer lease.Unlock()

	lease.Append(Turn{Role: RoleUser, Text: "Hello"})
	if !lease.RemoveLastIfRole(RoleUser) {
		t.Fatal("rollback did nothing")
	}
	if lease.RemoveLastIfRole(RoleUser) {
		t.Error("rollback removed from an empty history")
	}
	if got := s.Get("s1"); len(got) != 0 {
		t.Errorf("history = %+v", got)
	}
}

func TestStoredKeysAreCloned(t *testing.T) {
	s := NewStore(10)
	buf := []byte("aaaa")
	id := unsafe.String(&buf[0], len(buf))

	s.Append(id, Turn{Role: RoleUser, Text: "Hello"})
	copy(buf, "bbbb")

	if got := s.Get("aaaa"); len(got) != 1 {
		t.Errorf("history for aaaa = %+v after the caller's buffer changed", got)
	}
	if s.Len() != 1 {
		t.Errorf("sessions = %d", s.Len())
	}
}

func TestConcurrentSessions(t *testing.T) {
	s := NewStore(100)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i%5)
			for j := 0; j < 50; j++ {
				s.Append(id, Turn{Role: RoleUser, Text: "x"})
				s.Get(id)
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for i := 0; i < 5; i++ {
		total += len(s.Get(fmt.Sprintf("s%d", i)))
	}
	if total != 20*50 {
		t.Errorf("total turns = %d, want %d", total, 20*50)
	}
}
