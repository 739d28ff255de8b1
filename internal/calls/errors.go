package calls

import "errors"

// Sentinel errors returned by the call handlers. The HTTP boundary maps these
// to response codes; everything else that can go wrong after a committed
// transition is logged and swallowed, never surfaced.
var (
	ErrNotFound        = errors.New("call not found")
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotCallee / ErrNotParticipant are role precondition failures.
	ErrNotCallee      = errors.New("only the callee can perform this action")
	ErrNotParticipant = errors.New("user is not a participant in this call")

	// ErrAlreadyHandled means the caller lost a race: another actor resolved
	// the session first. Distinct from ErrInvalidArgument so clients can tell
	// "you lost" from "your request was broken".
	ErrAlreadyHandled = errors.New("call already handled")
)
