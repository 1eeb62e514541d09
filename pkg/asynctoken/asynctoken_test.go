package asynctoken

import (
	"testing"

	"github.com/certenio/manynet/pkg/message"
)

func TestIssueStartsQueued(t *testing.T) {
	table := NewTable(0)
	token, err := table.Issue(10)
	if err != nil {
		t.Fatal(err)
	}
	if table.Status(token) != StateQueued {
		t.Fatalf("expected StateQueued, got %v", table.Status(token))
	}
}

func TestLifecycleQueuedPendingDone(t *testing.T) {
	table := NewTable(0)
	token, _ := table.Issue(1)

	if err := table.MarkPending(token); err != nil {
		t.Fatal(err)
	}
	if table.Status(token) != StatePending {
		t.Fatalf("expected StatePending, got %v", table.Status(token))
	}

	if err := table.Complete(token, 2, message.Ok([]byte("done"))); err != nil {
		t.Fatal(err)
	}
	if table.Status(token) != StateDone {
		t.Fatalf("expected StateDone, got %v", table.Status(token))
	}

	result, err := table.Result(token)
	if err != nil {
		t.Fatal(err)
	}
	if string(result.Ok) != "done" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestUnknownTokenReportsUnknown(t *testing.T) {
	table := NewTable(0)
	if table.Status([]byte("never-issued")) != StateUnknown {
		t.Fatalf("expected StateUnknown for unrecognized token")
	}
}

func TestResultBeforeCompletionErrors(t *testing.T) {
	table := NewTable(0)
	token, _ := table.Issue(1)
	if _, err := table.Result(token); err != ErrNotDone {
		t.Fatalf("expected ErrNotDone, got %v", err)
	}
}

func TestTrackIsIdempotentAndCompleteUpserts(t *testing.T) {
	table := NewTable(0)
	token := []byte("deterministic-tx-hash")

	table.Track(token, 3)
	table.Track(token, 3) // second call must not reset state
	if table.Status(token) != StateQueued {
		t.Fatalf("expected StateQueued after Track, got %v", table.Status(token))
	}

	if err := table.Complete(token, 4, message.Ok([]byte("ok"))); err != nil {
		t.Fatal(err)
	}
	if table.Status(token) != StateDone {
		t.Fatalf("expected StateDone, got %v", table.Status(token))
	}
}

func TestCompleteUpsertsUntrackedToken(t *testing.T) {
	table := NewTable(0)
	token := []byte("never-tracked")
	if err := table.Complete(token, 1, message.Ok([]byte("x"))); err != nil {
		t.Fatal(err)
	}
	if table.Status(token) != StateDone {
		t.Fatalf("expected StateDone, got %v", table.Status(token))
	}
}

func TestEvictionAfterRetentionWindow(t *testing.T) {
	table := NewTable(5)
	token, _ := table.Issue(1)
	if err := table.Complete(token, 10, message.Ok([]byte("x"))); err != nil {
		t.Fatal(err)
	}

	table.EvictBefore(14)
	if table.Status(token) != StateDone {
		t.Fatalf("expected still Done just inside window, got %v", table.Status(token))
	}

	table.EvictBefore(16)
	if table.Status(token) != StateExpired {
		t.Fatalf("expected StateExpired past window, got %v", table.Status(token))
	}
	if _, err := table.Result(token); err != ErrNotDone {
		t.Fatalf("expired token's result should no longer be retrievable, got err=%v", err)
	}
}
