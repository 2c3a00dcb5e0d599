package cache

import (
	"context"
	"reflect"
	"sync"
	"testing"
)

func TestMemoryCacheGetPut(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "a.txt", "Task"); ok || err != nil {
		t.Fatalf("empty cache returned ok=%v err=%v", ok, err)
	}

	vec := []float32{1, 2, 3}
	if err := c.Put(ctx, "a.txt", "Task", vec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok, err := c.Get(ctx, "a.txt", "Task")
	if err != nil || !ok {
		t.Fatalf("got ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, vec) {
		t.Errorf("got %v, want %v", got, vec)
	}

	// same filename, different dimension is a distinct entry
	if _, ok, _ := c.Get(ctx, "a.txt", "Cause"); ok {
		t.Errorf("dimension must be part of the key")
	}

	if c.Len() != 1 {
		t.Errorf("got len %d, want 1", c.Len())
	}
}

func TestMemoryCacheOverwrite(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_ = c.Put(ctx, "a.txt", "Task", []float32{1})
	_ = c.Put(ctx, "a.txt", "Task", []float32{2})

	got, _, _ := c.Get(ctx, "a.txt", "Task")
	if !reflect.DeepEqual(got, []float32{2}) {
		t.Errorf("got %v, want [2]", got)
	}
	if c.Len() != 1 {
		t.Errorf("got len %d, want 1", c.Len())
	}
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n%4))
			_ = c.Put(ctx, key, "Task", []float32{float32(n)})
			_, _, _ = c.Get(ctx, key, "Task")
		}(i)
	}
	wg.Wait()

	if c.Len() != 4 {
		t.Errorf("got len %d, want 4", c.Len())
	}
}
