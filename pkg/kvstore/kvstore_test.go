package kvstore

import (
	"bytes"
	"testing"
)

func collect(t *testing.T, it Iterator) [][2][]byte {
	t.Helper()
	defer it.Close()
	var out [][2][]byte
	for it.Valid() {
		out = append(out, [2][]byte{append([]byte(nil), it.Key()...), append([]byte(nil), it.Value()...)})
		it.Next()
	}
	return out
}

func TestApplyAndGet(t *testing.T) {
	s, err := NewStore(NewMemDB())
	if err != nil {
		t.Fatal(err)
	}
	b := NewBatch()
	b.Put([]byte("/a"), []byte("1"))
	b.Put([]byte("/b"), []byte("2"))
	if err := s.Apply(b); err != nil {
		t.Fatal(err)
	}
	v, err := s.Get([]byte("/a"))
	if err != nil || string(v) != "1" {
		t.Fatalf("unexpected value %q err %v", v, err)
	}
}

func TestBatchRejectsNonAscendingKeys(t *testing.T) {
	s, err := NewStore(NewMemDB())
	if err != nil {
		t.Fatal(err)
	}
	b := NewBatch()
	b.Put([]byte("/b"), []byte("1"))
	b.Put([]byte("/a"), []byte("2"))
	if err := s.Apply(b); err != ErrBatchKeysNotAscending {
		t.Fatalf("expected ErrBatchKeysNotAscending, got %v", err)
	}
}

func TestBatchRejectsDuplicateKey(t *testing.T) {
	s, _ := NewStore(NewMemDB())
	b := NewBatch()
	b.Put([]byte("/a"), []byte("1"))
	b.Put([]byte("/a"), []byte("2"))
	if err := s.Apply(b); err != ErrBatchKeysNotAscending {
		t.Fatalf("expected ErrBatchKeysNotAscending for duplicate key, got %v", err)
	}
}

func TestRangeAscendingAndDescending(t *testing.T) {
	s, _ := NewStore(NewMemDB())
	b := NewBatch()
	b.Put([]byte("/a"), []byte("1"))
	b.Put([]byte("/b"), []byte("2"))
	b.Put([]byte("/c"), []byte("3"))
	if err := s.Apply(b); err != nil {
		t.Fatal(err)
	}

	asc, err := s.Range(nil, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	ascPairs := collect(t, asc)
	if len(ascPairs) != 3 || string(ascPairs[0][0]) != "/a" || string(ascPairs[2][0]) != "/c" {
		t.Fatalf("unexpected ascending order: %+v", ascPairs)
	}

	desc, err := s.Range(nil, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	descPairs := collect(t, desc)
	if len(descPairs) != 3 || string(descPairs[0][0]) != "/c" {
		t.Fatalf("unexpected descending order: %+v", descPairs)
	}
}

func TestRootChangesOnApplyAndIsDeterministic(t *testing.T) {
	s1, _ := NewStore(NewMemDB())
	s2, _ := NewStore(NewMemDB())
	empty := s1.Root()

	b1 := NewBatch()
	b1.Put([]byte("/a"), []byte("1"))
	b1.Put([]byte("/b"), []byte("2"))
	if err := s1.Apply(b1); err != nil {
		t.Fatal(err)
	}

	b2 := NewBatch()
	b2.Put([]byte("/a"), []byte("1"))
	b2.Put([]byte("/b"), []byte("2"))
	if err := s2.Apply(b2); err != nil {
		t.Fatal(err)
	}

	if bytes.Equal(s1.Root(), empty) {
		t.Fatalf("root should change after apply")
	}
	if !bytes.Equal(s1.Root(), s2.Root()) {
		t.Fatalf("two stores with identical writes must have identical roots")
	}
}

func TestHeightRoundTrip(t *testing.T) {
	s, _ := NewStore(NewMemDB())
	b := NewBatch()
	SetHeight(b, 42)
	if err := s.Apply(b); err != nil {
		t.Fatal(err)
	}
	h, err := s.Height()
	if err != nil || h != 42 {
		t.Fatalf("expected height 42, got %d err %v", h, err)
	}
}

func TestDeleteRemovesKeyAndChangesRoot(t *testing.T) {
	s, _ := NewStore(NewMemDB())
	b := NewBatch()
	b.Put([]byte("/a"), []byte("1"))
	if err := s.Apply(b); err != nil {
		t.Fatal(err)
	}
	rootAfterPut := s.Root()

	b2 := NewBatch()
	b2.Delete([]byte("/a"))
	if err := s.Apply(b2); err != nil {
		t.Fatal(err)
	}
	v, _ := s.Get([]byte("/a"))
	if v != nil {
		t.Fatalf("expected key deleted, got %q", v)
	}
	if bytes.Equal(s.Root(), rootAfterPut) {
		t.Fatalf("root should change after delete")
	}
}
