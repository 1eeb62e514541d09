package eventlog

import (
	"crypto/ed25519"
	"testing"

	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/kvstore"
)

func newTestIdentity(t *testing.T) identity.Identity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	pk := identity.NewEd25519KeyPair(pub, priv)
	id, err := identity.Addressable(pk)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func newTestLog(t *testing.T) *Log {
	t.Helper()
	store, err := kvstore.NewStore(kvstore.NewMemDB())
	if err != nil {
		t.Fatal(err)
	}
	return NewLog(store, nil)
}

func TestAppendAndGet(t *testing.T) {
	log := newTestLog(t)
	from := newTestIdentity(t)
	id := NewEventID(1, 0)
	e := Event{ID: id, Kind: "ledger.send", From: from.ToBytes(), Height: 1, Data: []byte("payload")}

	b := kvstore.NewBatch()
	if err := log.Append(b, e); err != nil {
		t.Fatal(err)
	}
	if err := commitToLog(t, log, b); err != nil {
		t.Fatal(err)
	}

	got, ok, err := log.Get(id)
	if err != nil || !ok {
		t.Fatalf("expected event present: ok=%v err=%v", ok, err)
	}
	if got.Kind != "ledger.send" || string(got.Data) != "payload" {
		t.Fatalf("unexpected event: %+v", got)
	}
	if !got.FromIdentity().Equal(from) {
		t.Fatalf("from identity mismatch")
	}
}

// commitToLog applies a batch to the Log's underlying store. Log does not
// expose its store field outside the package, so tests in-package reach
// in directly.
func commitToLog(t *testing.T, l *Log, b *kvstore.Batch) error {
	t.Helper()
	return l.store.Apply(b)
}

func TestFilterScanByKindAscending(t *testing.T) {
	log := newTestLog(t)
	for i, kind := range []string{"a", "b", "a"} {
		e := Event{ID: NewEventID(1, uint64(i)), Kind: kind, Height: 1}
		b := kvstore.NewBatch()
		if err := log.Append(b, e); err != nil {
			t.Fatal(err)
		}
		if err := commitToLog(t, log, b); err != nil {
			t.Fatal(err)
		}
	}

	page, err := log.Filter(Filter{Kind: "a", Order: OrderAscending})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Events) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(page.Events), page.Events)
	}
	if page.Events[0].ID != NewEventID(1, 0) {
		t.Fatalf("unexpected first match: %+v", page.Events[0])
	}
}

func TestFilterPaginationRespectsMaxPageSize(t *testing.T) {
	log := newTestLog(t)
	for i := 0; i < 5; i++ {
		e := Event{ID: NewEventID(1, uint64(i)), Kind: "x", Height: 1}
		b := kvstore.NewBatch()
		if err := log.Append(b, e); err != nil {
			t.Fatal(err)
		}
		if err := commitToLog(t, log, b); err != nil {
			t.Fatal(err)
		}
	}
	page, err := log.Filter(Filter{Kind: "x", PageSize: 2, Order: OrderAscending})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Events) != 2 {
		t.Fatalf("expected page size 2, got %d", len(page.Events))
	}
	if page.NextPageToken == nil {
		t.Fatalf("expected a continuation token")
	}
}

func TestEventIDEncodesHeight(t *testing.T) {
	id := NewEventID(7, 3)
	if id[7] != 7 {
		t.Fatalf("expected height 7 in first 8 bytes, got %x", id[:8])
	}
}
