package push

import "context"

// Invite is the payload behind an incoming-call notification.
type Invite struct {
	CalleeID   string `json:"callee_id"`
	CallerID   string `json:"caller_id"`
	CallerName string `json:"caller_name"`
	RoomID     string `json:"room_id"`
	IsVideo    bool   `json:"is_video"`
}

// Dispatcher delivers a call invite to the callee's registered endpoints.
// Delivery is best-effort: delivered=false with nil error means the provider
// accepted the request but reached no device. Callers must never fail a call
// on a dispatch error.
type Dispatcher interface {
	SendInvite(ctx context.Context, inv Invite) (delivered bool, err error)
}

// Disabled is wired when no push provider is configured (local/dev).
type Disabled struct{}

func (Disabled) SendInvite(ctx context.Context, inv Invite) (bool, error) {
	return false, nil
}
