package calls

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"call-platform/internal/config"
	"call-platform/internal/conversation"
	"call-platform/internal/directory"
	"call-platform/internal/media"
	"call-platform/internal/push"
)

type fixture struct {
	svc      *Service
	sessions *MemoryStore
	history  *MemoryHistory
	pointers *MemoryPointers
	users    *directory.MemoryRepo
	convos   *conversation.MemoryStore
	push     *push.MemoryDispatcher
	issuer   *media.Issuer

	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	issuer, err := media.NewIssuer(config.MediaConfig{
		TokenSecret: "media-secret",
		Endpoint:    "wss://media.example.com",
		TokenTTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}

	f := &fixture{
		sessions: NewMemoryStore(),
		history:  NewMemoryHistory(),
		pointers: NewMemoryPointers(),
		users:    directory.NewMemoryRepo(),
		convos:   conversation.NewMemoryStore(),
		push:     push.NewMemoryDispatcher(),
		issuer:   issuer,
		now:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.users.Put(directory.Profile{UserID: "alice", DisplayName: "Alice", NotificationsEnabled: true})
	f.users.Put(directory.Profile{UserID: "bob", DisplayName: "Bob", NotificationsEnabled: true})

	archiver := NewArchiver(f.history, f.convos)
	archiver.clock = f.clock

	f.svc = NewService(ServiceDeps{
		Sessions:  f.sessions,
		History:   f.history,
		Pointers:  f.pointers,
		Directory: f.users,
		Tokens:    issuer,
		Push:      f.push,
		Archiver:  archiver,
		Effects:   NewSyncRunner(nil),
	})
	f.svc.clock = f.clock
	return f
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) createCall(t *testing.T) CreateCallResult {
	t.Helper()
	res, err := f.svc.CreateCall(context.Background(), "alice", CreateCallRequest{CalleeID: "bob", IsVideo: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return res
}

/* ===================== CREATE ===================== */

func TestCreateCall_HappyPath(t *testing.T) {
	f := newFixture(t)
	res := f.createCall(t)

	if res.RoomID == "" {
		t.Fatalf("expected room id")
	}
	if res.ExpiresInSeconds != int((15 * time.Minute).Seconds()) {
		t.Fatalf("expected 900s budget, got %d", res.ExpiresInSeconds)
	}
	if res.MediaEndpoint != "wss://media.example.com" {
		t.Fatalf("unexpected endpoint %q", res.MediaEndpoint)
	}

	claims, err := f.issuer.Verify(res.MediaToken, f.now.Add(time.Minute))
	if err != nil {
		t.Fatalf("caller token unusable: %v", err)
	}
	if claims.UserID != "alice" || claims.RoomID != res.RoomID {
		t.Fatalf("token bound to wrong identity: %+v", claims)
	}

	s, err := f.sessions.Get(context.Background(), res.RoomID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Status != CallStatusPending {
		t.Fatalf("expected pending, got %s", s.Status)
	}
	if s.CallerName != "Alice" || s.CalleeName != "Bob" {
		t.Fatalf("expected resolved names, got %q/%q", s.CallerName, s.CalleeName)
	}
	if !s.ExpiresAt.Equal(f.now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expires_at %v", s.ExpiresAt)
	}

	in, ok, _ := f.pointers.Get(context.Background(), "bob")
	if !ok || in.RoomID != res.RoomID || in.CallerName != "Alice" {
		t.Fatalf("expected incoming pointer for bob, got %+v ok=%v", in, ok)
	}

	invites := f.push.Invites()
	if len(invites) != 1 || invites[0].CalleeID != "bob" || !invites[0].IsVideo {
		t.Fatalf("expected one video invite to bob, got %+v", invites)
	}
}

func TestCreateCall_ExplicitNamesWinOverProfile(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.CreateCall(context.Background(), "alice", CreateCallRequest{
		CalleeID:   "bob",
		CallerName: "Work Alice",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	s, _ := f.sessions.Get(context.Background(), res.RoomID)
	if s.CallerName != "Work Alice" {
		t.Fatalf("expected explicit caller name, got %q", s.CallerName)
	}
}

func TestCreateCall_FallbackNameWhenProfileEmpty(t *testing.T) {
	f := newFixture(t)
	f.users.Put(directory.Profile{UserID: "carol", DisplayName: "", NotificationsEnabled: false})
	res, err := f.svc.CreateCall(context.Background(), "carol", CreateCallRequest{CalleeID: "bob"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	s, _ := f.sessions.Get(context.Background(), res.RoomID)
	if s.CallerName != "Unknown" {
		t.Fatalf("expected fallback name, got %q", s.CallerName)
	}
}

func TestCreateCall_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateCall(ctx, "alice", CreateCallRequest{CalleeID: "alice"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("self-call: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := f.svc.CreateCall(ctx, "alice", CreateCallRequest{CalleeID: "bad id!"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("bad id: expected ErrInvalidArgument, got %v", err)
	}
	longName := strings.Repeat("x", 101)
	if _, err := f.svc.CreateCall(ctx, "alice", CreateCallRequest{CalleeID: "bob", CallerName: longName}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("long name: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := f.svc.CreateCall(ctx, "alice", CreateCallRequest{CalleeID: "nobody"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing callee: expected ErrNotFound, got %v", err)
	}
}

func TestCreateCall_PushFailureDoesNotFailCall(t *testing.T) {
	f := newFixture(t)
	f.push.Fail = true

	res, err := f.svc.CreateCall(context.Background(), "alice", CreateCallRequest{CalleeID: "bob"})
	if err != nil {
		t.Fatalf("push failure must not fail call creation: %v", err)
	}
	if res.MediaToken == "" {
		t.Fatalf("expected caller token despite push failure")
	}
}

func TestCreateCall_NoPushWhenNotificationsDisabled(t *testing.T) {
	f := newFixture(t)
	f.users.Put(directory.Profile{UserID: "bob", DisplayName: "Bob", NotificationsEnabled: false})

	f.createCall(t)
	if n := len(f.push.Invites()); n != 0 {
		t.Fatalf("expected no invites, got %d", n)
	}
}

/* ===================== ACCEPT ===================== */

func TestAcceptCall_ActivatesSession(t *testing.T) {
	f := newFixture(t)
	res := f.createCall(t)

	acc, err := f.svc.AcceptCall(context.Background(), "bob", res.RoomID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	claims, err := f.issuer.Verify(acc.MediaToken, f.now.Add(time.Minute))
	if err != nil {
		t.Fatalf("callee token unusable: %v", err)
	}
	if claims.UserID != "bob" || claims.RoomID != res.RoomID {
		t.Fatalf("token bound to wrong identity: %+v", claims)
	}

	s, _ := f.sessions.Get(context.Background(), res.RoomID)
	if s.Status != CallStatusActive {
		t.Fatalf("expected active, got %s", s.Status)
	}
	if s.AnsweredAt == nil || !s.AnsweredAt.Equal(f.now) {
		t.Fatalf("expected answered_at stamped, got %v", s.AnsweredAt)
	}

	if _, ok, _ := f.pointers.Get(context.Background(), "bob"); ok {
		t.Fatalf("expected incoming pointer removed after accept")
	}
}

func TestAcceptCall_OnlyCallee(t *testing.T) {
	f := newFixture(t)
	res := f.createCall(t)

	if _, err := f.svc.AcceptCall(context.Background(), "alice", res.RoomID); !errors.Is(err, ErrNotCallee) {
		t.Fatalf("expected ErrNotCallee, got %v", err)
	}
}

func TestAcceptCall_AlreadyHandled(t *testing.T) {
	f := newFixture(t)
	res := f.createCall(t)

	if _, err := f.svc.RejectCall(context.Background(), "bob", res.RoomID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := f.svc.AcceptCall(context.Background(), "bob", res.RoomID); !errors.Is(err, ErrAlreadyHandled) {
		t.Fatalf("expected ErrAlreadyHandled, got %v", err)
	}
}

func TestAcceptCall_NotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.AcceptCall(context.Background(), "bob", "no-such-room"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

/* ===================== REJECT ===================== */

func TestRejectCall_TerminatesWithZeroDuration(t *testing.T) {
	f := newFixture(t)
	f.convos.Seed(conversation.PairKey("alice", "bob"))
	res := f.createCall(t)

	if _, err := f.svc.RejectCall(context.Background(), "bob", res.RoomID); err != nil {
		t.Fatalf("reject: %v", err)
	}

	s, _ := f.sessions.Get(context.Background(), res.RoomID)
	if s.Status != CallStatusRejected {
		t.Fatalf("expected rejected, got %s", s.Status)
	}
	if s.RejectedAt == nil {
		t.Fatalf("expected rejected_at stamped")
	}
	if s.DurationSeconds != 0 {
		t.Fatalf("expected zero duration, got %d", s.DurationSeconds)
	}
	if !s.ExpiresAt.Equal(f.now.Add(15 * time.Minute)) {
		t.Fatalf("expected grace extension, got %v", s.ExpiresAt)
	}

	entries := f.history.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(entries))
	}

	msgs := f.convos.Messages(conversation.PairKey("alice", "bob"))
	if len(msgs) != 1 || msgs[0].Body != "Call declined" {
		t.Fatalf("expected declined log message, got %+v", msgs)
	}
}

func TestRejectCall_GuardsMirrorAccept(t *testing.T) {
	f := newFixture(t)
	res := f.createCall(t)

	if _, err := f.svc.RejectCall(context.Background(), "alice", res.RoomID); !errors.Is(err, ErrNotCallee) {
		t.Fatalf("expected ErrNotCallee, got %v", err)
	}
	if _, err := f.svc.AcceptCall(context.Background(), "bob", res.RoomID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := f.svc.RejectCall(context.Background(), "bob", res.RoomID); !errors.Is(err, ErrAlreadyHandled) {
		t.Fatalf("expected ErrAlreadyHandled, got %v", err)
	}
}

/* ===================== END ===================== */

func TestEndCall_PendingByCallerIsCancelled(t *testing.T) {
	f := newFixture(t)
	res := f.createCall(t)

	out, err := f.svc.EndCall(context.Background(), "alice", res.RoomID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if out.Status != CallStatusCancelled || !out.Modified {
		t.Fatalf("expected modified cancelled, got %+v", out)
	}
	if out.DurationSeconds != 0 {
		t.Fatalf("expected zero duration, got %d", out.DurationSeconds)
	}
}

func TestEndCall_PendingByCalleeIsRejected(t *testing.T) {
	f := newFixture(t)
	res := f.createCall(t)

	out, err := f.svc.EndCall(context.Background(), "bob", res.RoomID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if out.Status != CallStatusRejected {
		t.Fatalf("callee ending a pending call records a rejection, got %s", out.Status)
	}
	s, _ := f.sessions.Get(context.Background(), res.RoomID)
	if s.RejectedAt == nil {
		t.Fatalf("expected rejected_at stamped")
	}
}

func TestEndCall_ActiveComputesDuration(t *testing.T) {
	f := newFixture(t)
	res := f.createCall(t)

	if _, err := f.svc.AcceptCall(context.Background(), "bob", res.RoomID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	f.advance(65 * time.Second)

	out, err := f.svc.EndCall(context.Background(), "alice", res.RoomID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if out.Status != CallStatusEnded {
		t.Fatalf("expected ended, got %s", out.Status)
	}
	if out.DurationSeconds != 65 {
		t.Fatalf("expected 65s duration, got %d", out.DurationSeconds)
	}
}

func TestEndCall_TwiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	res := f.createCall(t)

	if _, err := f.svc.AcceptCall(context.Background(), "bob", res.RoomID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	f.advance(30 * time.Second)

	first, err := f.svc.EndCall(context.Background(), "alice", res.RoomID)
	if err != nil {
		t.Fatalf("first end: %v", err)
	}
	firstEndedAt := *mustGet(t, f, res.RoomID).EndedAt

	f.advance(10 * time.Second)
	second, err := f.svc.EndCall(context.Background(), "bob", res.RoomID)
	if err != nil {
		t.Fatalf("second end must be a soft outcome, got %v", err)
	}
	if second.Modified {
		t.Fatalf("second end must not modify the session")
	}
	if second.Status != first.Status || second.DurationSeconds != first.DurationSeconds {
		t.Fatalf("second end changed the outcome: %+v vs %+v", second, first)
	}

	s := mustGet(t, f, res.RoomID)
	if !s.EndedAt.Equal(firstEndedAt) {
		t.Fatalf("ended_at changed: %v vs %v", s.EndedAt, firstEndedAt)
	}
	// Only one archive pass: two entries total.
	if n := len(f.history.Entries()); n != 2 {
		t.Fatalf("expected 2 history entries after double end, got %d", n)
	}
}

func TestEndCall_NotParticipant(t *testing.T) {
	f := newFixture(t)
	f.users.Put(directory.Profile{UserID: "mallory", DisplayName: "Mallory"})
	res := f.createCall(t)

	if _, err := f.svc.EndCall(context.Background(), "mallory", res.RoomID); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestEndCall_ArchiveFailureDoesNotRevertTransition(t *testing.T) {
	f := newFixture(t)
	res := f.createCall(t)
	if _, err := f.svc.AcceptCall(context.Background(), "bob", res.RoomID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	f.history.Fail = true
	out, err := f.svc.EndCall(context.Background(), "alice", res.RoomID)
	if err != nil {
		t.Fatalf("archive failure must not surface: %v", err)
	}
	if out.Status != CallStatusEnded {
		t.Fatalf("expected ended, got %s", out.Status)
	}
	if s := mustGet(t, f, res.RoomID); s.Status != CallStatusEnded {
		t.Fatalf("transition reverted to %s", s.Status)
	}
}

/* ===================== CONCURRENCY ===================== */

func TestConcurrentResolvers_ExactlyOneWins(t *testing.T) {
	for round := 0; round < 25; round++ {
		f := newFixture(t)
		res := f.createCall(t)

		// An attempt "wins" if its transaction observed status == pending.
		// An EndCall that lands after a successful Accept legitimately ends
		// the active call; that is not a second pending-winner.
		type attempt func() (wonPending bool, err error)
		attempts := []attempt{
			func() (bool, error) {
				_, err := f.svc.AcceptCall(context.Background(), "bob", res.RoomID)
				return err == nil, err
			},
			func() (bool, error) {
				_, err := f.svc.RejectCall(context.Background(), "bob", res.RoomID)
				return err == nil, err
			},
			func() (bool, error) {
				out, err := f.svc.EndCall(context.Background(), "alice", res.RoomID)
				won := err == nil && out.Modified && out.Status != CallStatusEnded
				return won, err
			},
			func() (bool, error) {
				out, err := f.svc.EndCall(context.Background(), "bob", res.RoomID)
				won := err == nil && out.Modified && out.Status != CallStatusEnded
				return won, err
			},
		}

		var wg sync.WaitGroup
		wins := make([]bool, len(attempts))
		errs := make([]error, len(attempts))
		for i, fn := range attempts {
			wg.Add(1)
			go func(i int, fn attempt) {
				defer wg.Done()
				wins[i], errs[i] = fn()
			}(i, fn)
		}
		wg.Wait()

		winners := 0
		for i, won := range wins {
			if won {
				winners++
				continue
			}
			err := errs[i]
			if err != nil && !errors.Is(err, ErrAlreadyHandled) {
				t.Fatalf("unexpected loser outcome: %v", err)
			}
		}
		if winners != 1 {
			t.Fatalf("expected exactly one pending-winner, got %d", winners)
		}

		s := mustGet(t, f, res.RoomID)
		if !s.Status.Terminal() && s.Status != CallStatusActive {
			t.Fatalf("session left in invalid state %q", s.Status)
		}
	}
}

/* ===================== READS ===================== */

func TestIncoming_ReturnsPointerUntilResolved(t *testing.T) {
	f := newFixture(t)
	res := f.createCall(t)

	in, ok, err := f.svc.Incoming(context.Background(), "bob")
	if err != nil || !ok || in.RoomID != res.RoomID {
		t.Fatalf("expected incoming pointer, got %+v ok=%v err=%v", in, ok, err)
	}

	if _, err := f.svc.EndCall(context.Background(), "alice", res.RoomID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, ok, _ := f.svc.Incoming(context.Background(), "bob"); ok {
		t.Fatalf("expected pointer gone after resolution")
	}
}

func TestHistory_ListsPerParticipantDirections(t *testing.T) {
	f := newFixture(t)
	res := f.createCall(t)
	if _, err := f.svc.EndCall(context.Background(), "alice", res.RoomID); err != nil {
		t.Fatalf("end: %v", err)
	}

	outgoing, err := f.svc.History(context.Background(), "alice", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(outgoing) != 1 || outgoing[0].Direction != DirectionOutgoing || outgoing[0].PeerID != "bob" {
		t.Fatalf("unexpected caller history: %+v", outgoing)
	}

	incoming, err := f.svc.History(context.Background(), "bob", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(incoming) != 1 || incoming[0].Direction != DirectionIncoming || incoming[0].PeerID != "alice" {
		t.Fatalf("unexpected callee history: %+v", incoming)
	}
}

func mustGet(t *testing.T, f *fixture, roomID string) CallSession {
	t.Helper()
	s, err := f.sessions.Get(context.Background(), roomID)
	if err != nil {
		t.Fatalf("get %s: %v", roomID, err)
	}
	return s
}
