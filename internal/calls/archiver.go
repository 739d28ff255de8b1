package calls

import (
	"context"
	"fmt"
	"time"

	"call-platform/internal/conversation"

	"github.com/google/uuid"
)

// Archiver snapshots a terminated session into per-participant history and
// appends a summary line to the pair's conversation.
//
// It operates on the snapshot handed over by the caller and never re-reads
// the session, so a document mutated after the terminal transition cannot
// leak into the archive. Everything here is best-effort: failures are
// returned for logging and must never undo the committed transition.
type Archiver struct {
	history HistoryStore
	convos  conversation.Store
	clock   func() time.Time
}

func NewArchiver(history HistoryStore, convos conversation.Store) *Archiver {
	return &Archiver{history: history, convos: convos, clock: time.Now}
}

func (a *Archiver) Archive(ctx context.Context, snap CallSession) error {
	if !snap.Status.Terminal() {
		return fmt.Errorf("archiver: refusing non-terminal snapshot %q for room %s", snap.Status, snap.RoomID)
	}

	now := a.clock().UTC()
	entries := []HistoryEntry{
		{
			ID:              uuid.NewString(),
			RoomID:          snap.RoomID,
			OwnerID:         snap.CallerID,
			PeerID:          snap.CalleeID,
			PeerName:        snap.CalleeName,
			Direction:       DirectionOutgoing,
			IsVideo:         snap.IsVideo,
			Status:          snap.Status,
			DurationSeconds: snap.DurationSeconds,
			StartedAt:       snap.CreatedAt,
			ArchivedAt:      now,
		},
		{
			ID:              uuid.NewString(),
			RoomID:          snap.RoomID,
			OwnerID:         snap.CalleeID,
			PeerID:          snap.CallerID,
			PeerName:        snap.CallerName,
			Direction:       DirectionIncoming,
			IsVideo:         snap.IsVideo,
			Status:          snap.Status,
			DurationSeconds: snap.DurationSeconds,
			StartedAt:       snap.CreatedAt,
			ArchivedAt:      now,
		},
	}
	if err := a.history.Append(ctx, entries); err != nil {
		return fmt.Errorf("archiver: history append for room %s: %w", snap.RoomID, err)
	}

	if err := a.appendConversationLog(ctx, snap); err != nil {
		return fmt.Errorf("archiver: conversation log for room %s: %w", snap.RoomID, err)
	}
	return nil
}

func (a *Archiver) appendConversationLog(ctx context.Context, snap CallSession) error {
	pairKey := conversation.PairKey(snap.CallerID, snap.CalleeID)

	// This core never creates conversations; no conversation, no log line.
	exists, err := a.convos.Exists(ctx, pairKey)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	body := snap.Status.LogText()
	if snap.Status == CallStatusEnded && snap.DurationSeconds > 0 {
		body = fmt.Sprintf("%s (%s)", body, formatDuration(snap.DurationSeconds))
	}

	msg := conversation.Message{
		ID:       uuid.NewString(),
		PairKey:  pairKey,
		SenderID: snap.CallerID,
		Kind:     conversation.KindCallLog,
		Body:     body,
		RoomID:   snap.RoomID,
		// Ordered by when the call started, not when it was archived.
		SentAt: snap.CreatedAt,
	}
	if err := a.convos.Append(ctx, msg); err != nil {
		return err
	}

	last, ok, err := a.convos.Last(ctx, pairKey)
	if err != nil {
		return err
	}
	if ok && !last.SentAt.Before(msg.SentAt) {
		// A newer message already owns the pointer.
		return nil
	}
	return a.convos.SetLast(ctx, pairKey, msg)
}

func formatDuration(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
}
