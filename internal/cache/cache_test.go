package cache

import (
	"testing"
	"time"
)

func TestLayerTileKey(t *testing.T) {
	k1 := LayerTileKey("v1", "cells", 0, 1, 2, 0)
	k2 := LayerTileKey("v1", "cells", 0, 1, 2, 1)
	if k1 == k2 {
		t.Fatalf("expected revision to change the key, got %q", k1)
	}
	if k1 != LayerTileKey("v1", "cells", 0, 1, 2, 0) {
		t.Fatalf("expected stable key")
	}
}

func TestTileRoundTrip(t *testing.T) {
	m, err := NewManager(Config{TileCacheSizeMB: 16, TileTTL: time.Minute, SnapshotCacheSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	key := LayerTileKey("v1", "cells", 0, 0, 0, 0)
	if _, ok := m.GetTile(key); ok {
		t.Fatal("expected miss")
	}
	if err := m.SetTile(key, []byte("png")); err != nil {
		t.Fatal(err)
	}
	data, ok := m.GetTile(key)
	if !ok || string(data) != "png" {
		t.Fatalf("expected hit, got %q ok=%v", data, ok)
	}
}

func TestSnapshotInvalidation(t *testing.T) {
	m, err := NewManager(Config{TileCacheSizeMB: 16, TileTTL: time.Minute, SnapshotCacheSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	m.SetSnapshot("v1", []byte("snap"))
	if _, ok := m.GetSnapshot("v1"); !ok {
		t.Fatal("expected hit")
	}
	m.InvalidateSnapshot("v1")
	if _, ok := m.GetSnapshot("v1"); ok {
		t.Fatal("expected miss after invalidation")
	}
}
