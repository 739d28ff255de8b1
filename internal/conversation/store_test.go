package conversation

import (
	"context"
	"testing"
	"time"
)

func TestPairKey_OrderInsensitive(t *testing.T) {
	if PairKey("alice", "bob") != PairKey("bob", "alice") {
		t.Fatalf("pair key must not depend on argument order")
	}
	if PairKey("alice", "bob") != "alice:bob" {
		t.Fatalf("unexpected key %q", PairKey("alice", "bob"))
	}
}

func TestMemoryStore_ExistsOnlyAfterSeed(t *testing.T) {
	s := NewMemoryStore()
	ok, err := s.Exists(context.Background(), "a:b")
	if err != nil || ok {
		t.Fatalf("expected unknown conversation, got ok=%v err=%v", ok, err)
	}
	s.Seed("a:b")
	ok, _ = s.Exists(context.Background(), "a:b")
	if !ok {
		t.Fatalf("expected conversation after seed")
	}
}

func TestMemoryStore_AppendAndLast(t *testing.T) {
	s := NewMemoryStore()
	s.Seed("a:b")

	m := Message{ID: "m1", PairKey: "a:b", SenderID: "a", Kind: KindCallLog, Body: "Missed call", SentAt: time.Now()}
	if err := s.Append(context.Background(), m); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.SetLast(context.Background(), "a:b", m); err != nil {
		t.Fatalf("set last: %v", err)
	}

	last, ok, err := s.Last(context.Background(), "a:b")
	if err != nil || !ok || last.ID != "m1" {
		t.Fatalf("unexpected last: %+v ok=%v err=%v", last, ok, err)
	}
	if got := s.Messages("a:b"); len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
}
