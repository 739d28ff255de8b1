package calls

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"call-platform/internal/directory"
	"call-platform/internal/media"
	"call-platform/internal/push"
	"call-platform/pkg/logger"

	"github.com/google/uuid"
)

const (
	maxDisplayNameLen  = 100
	fallbackName       = "Unknown"
	defaultHistoryPage = 50
	maxHistoryPage     = 200
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// TokenIssuer mints a media credential for a (user, room) pair.
// *media.Issuer satisfies this; tests substitute failures.
type TokenIssuer interface {
	Issue(userID, roomID, displayName string) (media.Credential, error)
}

// Service implements the call lifecycle handlers. Each invocation is a
// short-lived, stateless unit of work; the session store transaction is the
// only synchronization primitive. No in-process locks.
type Service struct {
	sessions  Store
	history   HistoryStore
	pointers  PointerStore
	directory directory.Repository
	tokens    TokenIssuer
	push      push.Dispatcher
	archiver  *Archiver
	effects   EffectRunner

	pendingTTL time.Duration
	graceTTL   time.Duration

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

// ServiceDeps wires the service. All fields are required except Push
// (defaults to push.Disabled) and Effects (defaults to an AsyncRunner).
type ServiceDeps struct {
	Sessions  Store
	History   HistoryStore
	Pointers  PointerStore
	Directory directory.Repository
	Tokens    TokenIssuer
	Push      push.Dispatcher
	Archiver  *Archiver
	Effects   EffectRunner

	PendingTTL time.Duration
	GraceTTL   time.Duration
}

func NewService(d ServiceDeps) *Service {
	if d.Push == nil {
		d.Push = push.Disabled{}
	}
	if d.Effects == nil {
		d.Effects = NewAsyncRunner(0, 0, nil)
	}
	if d.PendingTTL <= 0 {
		d.PendingTTL = 15 * time.Minute
	}
	if d.GraceTTL <= 0 {
		d.GraceTTL = 15 * time.Minute
	}
	return &Service{
		sessions:   d.Sessions,
		history:    d.History,
		pointers:   d.Pointers,
		directory:  d.Directory,
		tokens:     d.Tokens,
		push:       d.Push,
		archiver:   d.Archiver,
		effects:    d.Effects,
		pendingTTL: d.PendingTTL,
		graceTTL:   d.GraceTTL,
		clock:      time.Now,
	}
}

/* ===================== CREATE ===================== */

type CreateCallRequest struct {
	CalleeID   string `json:"callee_id"`
	IsVideo    bool   `json:"is_video"`
	CallerName string `json:"caller_name,omitempty"`
	CalleeName string `json:"callee_name,omitempty"`
}

type CreateCallResult struct {
	RoomID           string `json:"room_id"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
	MediaToken       string `json:"media_token"`
	MediaEndpoint    string `json:"media_endpoint"`
}

func (s *Service) CreateCall(ctx context.Context, callerID string, req CreateCallRequest) (CreateCallResult, error) {
	if !idPattern.MatchString(callerID) || !idPattern.MatchString(req.CalleeID) {
		return CreateCallResult{}, fmt.Errorf("%w: malformed user id", ErrInvalidArgument)
	}
	if callerID == req.CalleeID {
		return CreateCallResult{}, fmt.Errorf("%w: cannot call yourself", ErrInvalidArgument)
	}
	if len(req.CallerName) > maxDisplayNameLen || len(req.CalleeName) > maxDisplayNameLen {
		return CreateCallResult{}, fmt.Errorf("%w: display name too long", ErrInvalidArgument)
	}

	callee, err := s.directory.Lookup(ctx, req.CalleeID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return CreateCallResult{}, fmt.Errorf("callee %q: %w", req.CalleeID, ErrNotFound)
		}
		return CreateCallResult{}, err
	}

	callerName := s.resolveName(ctx, req.CallerName, callerID)
	calleeName := req.CalleeName
	if calleeName == "" {
		calleeName = callee.DisplayName
	}
	if calleeName == "" {
		calleeName = fallbackName
	}

	now := s.clock().UTC()
	session := CallSession{
		RoomID:        uuid.NewString(),
		CallerID:      callerID,
		CalleeID:      req.CalleeID,
		CallerName:    callerName,
		CalleeName:    calleeName,
		IsVideo:       req.IsVideo,
		Status:        CallStatusPending,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.pendingTTL),
		CallerAudioOn: true,
		CallerVideoOn: req.IsVideo,
		CalleeAudioOn: true,
		CalleeVideoOn: req.IsVideo,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return CreateCallResult{}, err
	}

	s.effects.Go("pointer_set", session.RoomID, func(ctx context.Context) error {
		return s.pointers.Set(ctx, session.CalleeID, IncomingCall{
			RoomID:     session.RoomID,
			CallerID:   session.CallerID,
			CallerName: session.CallerName,
			IsVideo:    session.IsVideo,
			CreatedAt:  session.CreatedAt,
			ExpiresAt:  session.ExpiresAt,
		})
	})

	if callee.NotificationsEnabled {
		s.effects.Go("push_invite", session.RoomID, func(ctx context.Context) error {
			delivered, err := s.push.SendInvite(ctx, push.Invite{
				CalleeID:   session.CalleeID,
				CallerID:   session.CallerID,
				CallerName: session.CallerName,
				RoomID:     session.RoomID,
				IsVideo:    session.IsVideo,
			})
			if err != nil {
				return err
			}
			if !delivered {
				logger.From(ctx).Info("call invite reached no device",
					"room_id", session.RoomID, "callee_id", session.CalleeID)
			}
			return nil
		})
	}

	// The caller cannot join without a credential; this is the one side
	// effect whose failure fails the handler.
	cred, err := s.tokens.Issue(callerID, session.RoomID, callerName)
	if err != nil {
		return CreateCallResult{}, fmt.Errorf("issue caller media token for room %s: %w", session.RoomID, err)
	}

	return CreateCallResult{
		RoomID:           session.RoomID,
		ExpiresInSeconds: int(s.pendingTTL.Seconds()),
		MediaToken:       cred.Token,
		MediaEndpoint:    cred.Endpoint,
	}, nil
}

func (s *Service) resolveName(ctx context.Context, explicit, userID string) string {
	if explicit != "" {
		return explicit
	}
	if p, err := s.directory.Lookup(ctx, userID); err == nil && p.DisplayName != "" {
		return p.DisplayName
	}
	return fallbackName
}

/* ===================== ACCEPT ===================== */

type AcceptCallResult struct {
	RoomID        string `json:"room_id"`
	MediaToken    string `json:"media_token"`
	MediaEndpoint string `json:"media_endpoint"`
}

func (s *Service) AcceptCall(ctx context.Context, userID, roomID string) (AcceptCallResult, error) {
	if err := validateUserRoom(userID, roomID); err != nil {
		return AcceptCallResult{}, err
	}

	now := s.clock().UTC()
	session, err := s.sessions.Mutate(ctx, roomID, func(c *CallSession) (bool, error) {
		if c.CalleeID != userID {
			return false, ErrNotCallee
		}
		if c.Status != CallStatusPending {
			return false, ErrAlreadyHandled
		}
		c.Status = CallStatusActive
		c.AnsweredAt = &now
		c.extendExpiry(now.Add(s.graceTTL))
		return true, nil
	})
	if err != nil {
		return AcceptCallResult{}, err
	}

	s.deletePointer(session)

	cred, err := s.tokens.Issue(userID, roomID, session.CalleeName)
	if err != nil {
		// The transition is committed; the client retries the media join.
		logger.From(ctx).Error("callee media token issuance failed",
			"room_id", roomID, "user_id", userID, "err", err)
		return AcceptCallResult{RoomID: roomID}, nil
	}

	return AcceptCallResult{RoomID: roomID, MediaToken: cred.Token, MediaEndpoint: cred.Endpoint}, nil
}

/* ===================== REJECT ===================== */

type RejectCallResult struct {
	RoomID string `json:"room_id"`
}

func (s *Service) RejectCall(ctx context.Context, userID, roomID string) (RejectCallResult, error) {
	if err := validateUserRoom(userID, roomID); err != nil {
		return RejectCallResult{}, err
	}

	now := s.clock().UTC()
	session, err := s.sessions.Mutate(ctx, roomID, func(c *CallSession) (bool, error) {
		if c.CalleeID != userID {
			return false, ErrNotCallee
		}
		if c.Status != CallStatusPending {
			return false, ErrAlreadyHandled
		}
		c.Status = CallStatusRejected
		c.RejectedAt = &now
		c.extendExpiry(now.Add(s.graceTTL))
		return true, nil
	})
	if err != nil {
		return RejectCallResult{}, err
	}

	s.deletePointer(session)
	s.archive(session)

	return RejectCallResult{RoomID: roomID}, nil
}

/* ===================== END ===================== */

type EndCallResult struct {
	RoomID          string     `json:"room_id"`
	Status          CallStatus `json:"status"`
	DurationSeconds int        `json:"duration_seconds"`

	// Modified is false when the session was already terminal: EndCall is
	// idempotent and reports "already ended" as a soft, non-error outcome.
	Modified bool `json:"modified"`
}

func (s *Service) EndCall(ctx context.Context, userID, roomID string) (EndCallResult, error) {
	if err := validateUserRoom(userID, roomID); err != nil {
		return EndCallResult{}, err
	}

	now := s.clock().UTC()
	modified := false
	session, err := s.sessions.Mutate(ctx, roomID, func(c *CallSession) (bool, error) {
		if !c.IsParticipant(userID) {
			return false, ErrNotParticipant
		}

		switch c.Status {
		case CallStatusPending:
			// A callee "ending" a pending call is recorded as a rejection,
			// not a cancellation. Flagged for product review; client UIs
			// depend on the existing status enumeration.
			if userID == c.CallerID {
				c.Status = CallStatusCancelled
			} else {
				c.Status = CallStatusRejected
				c.RejectedAt = &now
			}
			c.EndedAt = &now
		case CallStatusActive:
			c.Status = CallStatusEnded
			c.EndedAt = &now
			base := c.CreatedAt
			if c.AnsweredAt != nil {
				base = *c.AnsweredAt
			}
			c.DurationSeconds = durationSeconds(base, now)
		default:
			// Already terminal: deterministic no-op, nothing written.
			return false, nil
		}

		c.extendExpiry(now.Add(s.graceTTL))
		modified = true
		return true, nil
	})
	if err != nil {
		return EndCallResult{}, err
	}

	if modified {
		s.deletePointer(session)
		s.archive(session)
	}

	return EndCallResult{
		RoomID:          roomID,
		Status:          session.Status,
		DurationSeconds: session.DurationSeconds,
		Modified:        modified,
	}, nil
}

/* ===================== READS ===================== */

// Incoming returns the pending-call pointer for userID, if any.
func (s *Service) Incoming(ctx context.Context, userID string) (IncomingCall, bool, error) {
	if !idPattern.MatchString(userID) {
		return IncomingCall{}, false, fmt.Errorf("%w: malformed user id", ErrInvalidArgument)
	}
	return s.pointers.Get(ctx, userID)
}

// History lists archived calls for userID, most recent first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]HistoryEntry, error) {
	if !idPattern.MatchString(userID) {
		return nil, fmt.Errorf("%w: malformed user id", ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = defaultHistoryPage
	}
	if limit > maxHistoryPage {
		limit = maxHistoryPage
	}
	return s.history.ListByUser(ctx, userID, limit)
}

/* ===================== SIDE EFFECTS ===================== */

func (s *Service) deletePointer(session CallSession) {
	s.effects.Go("pointer_delete", session.RoomID, func(ctx context.Context) error {
		return s.pointers.Delete(ctx, session.CalleeID, session.RoomID)
	})
}

func (s *Service) archive(session CallSession) {
	s.effects.Go("archive", session.RoomID, func(ctx context.Context) error {
		return s.archiver.Archive(ctx, session)
	})
}

func validateUserRoom(userID, roomID string) error {
	if !idPattern.MatchString(userID) {
		return fmt.Errorf("%w: malformed user id", ErrInvalidArgument)
	}
	if roomID == "" || !idPattern.MatchString(roomID) {
		return fmt.Errorf("%w: malformed room id", ErrInvalidArgument)
	}
	return nil
}

func durationSeconds(from, to time.Time) int {
	d := int(to.Sub(from).Seconds())
	if d < 0 {
		return 0
	}
	return d
}
