package calls

import "time"

// CallSession is the authoritative record of one two-party call attempt.
//
// Lifecycle invariant: Status only ever moves along the edges checked in
// service.go, and every transition happens inside a single atomic
// read-modify-write against the session store. Nothing outside this package
// and the sweeper mutates a session.
//
// ExpiresAt is the exclusive deadline while pending; terminal transitions
// extend it (never shorten) so resolved records stay queryable for a grace
// window before retention removes them.
type CallSession struct {
	RoomID string `json:"room_id" db:"room_id"`

	CallerID   string `json:"caller_id" db:"caller_id"`
	CalleeID   string `json:"callee_id" db:"callee_id"`
	CallerName string `json:"caller_name" db:"caller_name"`
	CalleeName string `json:"callee_name" db:"callee_name"`

	IsVideo bool `json:"is_video" db:"is_video"`

	Status CallStatus `json:"status" db:"status"`

	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty" db:"answered_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	RejectedAt *time.Time `json:"rejected_at,omitempty" db:"rejected_at"`
	TimeoutAt  *time.Time `json:"timeout_at,omitempty" db:"timeout_at"`

	// DurationSeconds is 0 unless the session was active when it terminated.
	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	// Per-direction media flags. Informational only; mutated by the media
	// signaling path, never by the lifecycle core.
	CallerAudioOn bool `json:"caller_audio_on" db:"caller_audio_on"`
	CallerVideoOn bool `json:"caller_video_on" db:"caller_video_on"`
	CalleeAudioOn bool `json:"callee_audio_on" db:"callee_audio_on"`
	CalleeVideoOn bool `json:"callee_video_on" db:"callee_video_on"`
}

type CallStatus string

const (
	CallStatusPending   CallStatus = "pending"
	CallStatusActive    CallStatus = "active"
	CallStatusEnded     CallStatus = "ended"
	CallStatusRejected  CallStatus = "rejected"
	CallStatusCancelled CallStatus = "cancelled"
	CallStatusMissed    CallStatus = "missed"
)

// Terminal reports whether no further transitions are permitted.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusEnded, CallStatusRejected, CallStatusCancelled, CallStatusMissed:
		return true
	default:
		return false
	}
}

// LogText is the conversation-log summary for a terminal status.
func (s CallStatus) LogText() string {
	switch s {
	case CallStatusEnded:
		return "Call ended"
	case CallStatusRejected:
		return "Call declined"
	case CallStatusCancelled:
		return "Call cancelled"
	case CallStatusMissed:
		return "Missed call"
	default:
		return "Call"
	}
}

// IsParticipant reports whether userID is one of the two parties.
func (s CallSession) IsParticipant(userID string) bool {
	return userID == s.CallerID || userID == s.CalleeID
}

// extendExpiry pushes ExpiresAt forward; it never shortens the deadline.
func (s *CallSession) extendExpiry(until time.Time) {
	if until.After(s.ExpiresAt) {
		s.ExpiresAt = until
	}
}

// HistoryDirection tags a history entry relative to its owner.
type HistoryDirection string

const (
	DirectionOutgoing HistoryDirection = "outgoing"
	DirectionIncoming HistoryDirection = "incoming"
)

// HistoryEntry is an immutable per-participant copy of a terminal session.
// Written once by the archiver; never updated.
type HistoryEntry struct {
	ID      string `json:"id" db:"id"`
	RoomID  string `json:"room_id" db:"room_id"`
	OwnerID string `json:"owner_id" db:"owner_id"`

	PeerID   string `json:"peer_id" db:"peer_id"`
	PeerName string `json:"peer_name" db:"peer_name"`

	Direction HistoryDirection `json:"direction" db:"direction"`
	IsVideo   bool             `json:"is_video" db:"is_video"`
	Status    CallStatus       `json:"status" db:"status"`

	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	StartedAt  time.Time `json:"started_at" db:"started_at"`
	ArchivedAt time.Time `json:"archived_at" db:"archived_at"`
}

// IncomingCall is the pointer surfaced to a callee while a session is pending.
// It is a derived, rebuildable index entry; absence is never an error.
type IncomingCall struct {
	RoomID     string    `json:"room_id"`
	CallerID   string    `json:"caller_id"`
	CallerName string    `json:"caller_name"`
	IsVideo    bool      `json:"is_video"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}
