package storage

import (
	"errors"
	"testing"
)

func TestMemDBGetMiss(t *testing.T) {
	db := NewMemDB()
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemDBPutOverwrites(t *testing.T) {
	db := NewMemDB()
	if err := db.Put([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.Put([]byte("k"), []byte("v2")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v2" {
		t.Fatalf("expected v2, got %s", got)
	}
}

func TestMemDBIterateOrderedByPrefix(t *testing.T) {
	db := NewMemDB()
	entries := map[string]string{
		"a/3": "three",
		"a/1": "one",
		"a/2": "two",
		"b/1": "other",
	}
	for k, v := range entries {
		if err := db.Put([]byte(k), []byte(v)); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}

	var keys []string
	err := db.Iterate([]byte("a/"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	want := []string{"a/1", "a/2", "a/3"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("iteration out of order: got %v, want %v", keys, want)
		}
	}
}

func TestMemDBGetReturnsCopy(t *testing.T) {
	db := NewMemDB()
	if err := db.Put([]byte("k"), []byte("value")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got[0] = 'X'
	again, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(again) != "value" {
		t.Fatalf("stored value mutated through the returned slice")
	}
}

func TestLevelDBRoundTrip(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()

	if err := db.Put([]byte("cover/policy/p1"), []byte("one")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.Put([]byte("cover/policy/p2"), []byte("two")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.Put([]byte("cover/balance/x"), []byte("10")); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := db.Get([]byte("cover/policy/p1"))
	if err != nil || string(got) != "one" {
		t.Fatalf("get: %s, %v", got, err)
	}
	if _, err := db.Get([]byte("cover/policy/missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	var keys []string
	err = db.Iterate([]byte("cover/policy/"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(keys) != 2 || keys[0] != "cover/policy/p1" || keys[1] != "cover/policy/p2" {
		t.Fatalf("unexpected iteration: %v", keys)
	}
}
