package objcache

import (
	"context"
	"testing"

	"pixc/internal/image"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutThenGetRoundTrips(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	key := Key("val * 2", image.NewBuffer(4, 4, 1, 3))

	if err := c.Put(ctx, key, []byte{1, 2, 3}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, found, err := c.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatalf("expected a cache hit")
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("got %v, want [1 2 3]", got)
	}
}

func TestGetMissReturnsFoundFalse(t *testing.T) {
	c := openTestCache(t)
	_, found, err := c.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatalf("expected a cache miss")
	}
}

func TestKeyChangesWithShape(t *testing.T) {
	a := Key("x", image.NewBuffer(4, 4, 1, 3))
	b := Key("x", image.NewBuffer(8, 4, 1, 3))
	if a == b {
		t.Fatalf("expected different keys for different image widths")
	}
}

func TestPutOverwritesExistingKey(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	key := Key("x", image.NewBuffer(4, 4, 1, 3))

	if err := c.Put(ctx, key, []byte{0xAA}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := c.Put(ctx, key, []byte{0xBB}); err != nil {
		t.Fatalf("put overwrite: %v", err)
	}
	got, _, err := c.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 || got[0] != 0xBB {
		t.Fatalf("got %v, want [0xBB]", got)
	}
}
