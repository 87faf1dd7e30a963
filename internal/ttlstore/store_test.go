package ttlstore

import (
	"sync"
	"testing"
	"time"
)

func TestStore_GetAfterExpiry(t *testing.T) {
	s := New[string](30*time.Millisecond, 10*time.Millisecond)
	s.Set("k", "v")

	if v, ok := s.Get("k"); !ok || v != "v" {
		t.Fatalf("Get before expiry = %q, %v; want \"v\", true", v, ok)
	}

	time.Sleep(60 * time.Millisecond)
	if _, ok := s.Get("k"); ok {
		t.Error("Get after expiry should report absent")
	}
	if s.Size() != 0 {
		t.Errorf("Size after expiry = %d, want 0", s.Size())
	}
}

func TestStore_SetTTLOverride(t *testing.T) {
	s := New[int](20*time.Millisecond, 10*time.Millisecond)
	s.SetTTL("long", 1, 200*time.Millisecond)
	s.Set("short", 2)

	time.Sleep(50 * time.Millisecond)
	if _, ok := s.Get("short"); ok {
		t.Error("short entry should be expired")
	}
	if _, ok := s.Get("long"); !ok {
		t.Error("long entry should survive the default TTL")
	}
}

func TestStore_RefreshExtendsWithoutChangingValue(t *testing.T) {
	s := New[string](60*time.Millisecond, 20*time.Millisecond)
	s.Set("k", "v")

	// Keep refreshing past the original TTL.
	for i := 0; i < 3; i++ {
		time.Sleep(40 * time.Millisecond)
		if !s.Refresh("k") {
			t.Fatalf("Refresh #%d reported absent", i)
		}
	}
	v, ok := s.Get("k")
	if !ok || v != "v" {
		t.Errorf("after refreshes Get = %q, %v; want \"v\", true", v, ok)
	}

	if s.Refresh("missing") {
		t.Error("Refresh of an absent key should return false")
	}
}

func TestStore_HasDeleteClearKeys(t *testing.T) {
	s := New[int](time.Minute, time.Minute)
	s.Set("a", 1)
	s.Set("b", 2)

	if !s.Has("a") || !s.Has("b") {
		t.Fatal("expected both keys present")
	}
	if got := len(s.Keys()); got != 2 {
		t.Errorf("Keys len = %d, want 2", got)
	}

	s.Delete("a")
	if s.Has("a") {
		t.Error("a should be deleted")
	}

	s.Clear()
	if s.Size() != 0 {
		t.Errorf("Size after Clear = %d, want 0", s.Size())
	}
}

func TestList_PushCapsAndEvictsOldest(t *testing.T) {
	l := NewList[string](time.Minute, time.Minute, 3)
	for _, v := range []string{"a", "b", "c", "d", "e"} {
		l.Push("k", v)
	}

	vs, ok := l.Get("k")
	if !ok {
		t.Fatal("expected sequence present")
	}
	if len(vs) != 3 {
		t.Fatalf("len = %d, want 3", len(vs))
	}
	want := []string{"c", "d", "e"}
	for i := range want {
		if vs[i] != want[i] {
			t.Errorf("vs[%d] = %q, want %q", i, vs[i], want[i])
		}
	}
}

func TestList_SetTruncatesKeepingNewest(t *testing.T) {
	l := NewList[int](time.Minute, time.Minute, 2)
	l.Set("k", []int{1, 2, 3, 4})

	vs, _ := l.Get("k")
	if len(vs) != 2 || vs[0] != 3 || vs[1] != 4 {
		t.Errorf("Set truncation = %v, want [3 4]", vs)
	}
}

func TestList_PushResetsTTL(t *testing.T) {
	l := NewList[string](60*time.Millisecond, 20*time.Millisecond, 10)
	l.Push("k", "a")

	// Keep writing within the TTL window; the key must stay alive well past
	// the original expiry because every push re-arms it.
	for i := 0; i < 3; i++ {
		time.Sleep(40 * time.Millisecond)
		l.Push("k", "x")
	}
	if l.Len("k") != 4 {
		t.Errorf("Len = %d, want 4", l.Len("k"))
	}

	// Reads do not reset TTL: the key must expire once writes stop.
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		l.Len("k")
		time.Sleep(10 * time.Millisecond)
	}
	if _, ok := l.Get("k"); ok {
		t.Error("sequence should have expired after writes stopped")
	}
}

func TestList_ConcurrentPushesLoseNothing(t *testing.T) {
	l := NewList[int](time.Minute, time.Minute, 100)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			l.Push("k", n)
		}(i)
	}
	wg.Wait()

	if got := l.Len("k"); got != 50 {
		t.Errorf("Len = %d, want 50 (concurrent pushes must not overwrite each other)", got)
	}
}

func TestList_GetReturnsCopy(t *testing.T) {
	l := NewList[string](time.Minute, time.Minute, 5)
	l.Push("k", "a")

	vs, _ := l.Get("k")
	vs[0] = "mutated"

	vs2, _ := l.Get("k")
	if vs2[0] != "a" {
		t.Error("Get must return a copy, not the stored slice")
	}
}
