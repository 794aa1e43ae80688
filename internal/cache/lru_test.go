package cache

import (
	"testing"
	"time"

	"feeledger/internal/core"
)

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[core.Class](2, time.Minute)
	c.Set("1", core.Class{ID: 1, Name: "Class 1"})
	c.Set("2", core.Class{ID: 2, Name: "Class 2"})

	// touch 1 so 2 becomes the eviction candidate
	if _, ok := c.Get("1"); !ok {
		t.Fatal("expected hit for 1")
	}
	c.Set("3", core.Class{ID: 3, Name: "Class 3"})

	if _, ok := c.Get("2"); ok {
		t.Error("2 should have been evicted")
	}
	if got, ok := c.Get("1"); !ok || got.Name != "Class 1" {
		t.Errorf("1 should survive, got %+v %v", got, ok)
	}
	if c.Size() != 2 {
		t.Errorf("Size = %d, want 2", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[[]core.Class](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("classes", []core.Class{{ID: 1}})
	c.Set("other", nil)
	now = now.Add(2 * time.Minute)

	if _, ok := c.Get("classes"); ok {
		t.Error("entry should have expired")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size = %d, want 0", c.Size())
	}
}

func TestManagerCleanAll(t *testing.T) {
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	a := NewLRUCache[int](10, time.Second)
	a.now = func() time.Time { return now }
	a.Set("x", 1)
	a.Set("y", 2)

	m := NewManager()
	m.Register(a)
	now = now.Add(time.Hour)
	if n := m.CleanAll(); n != 2 {
		t.Errorf("CleanAll = %d, want 2", n)
	}

	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}
