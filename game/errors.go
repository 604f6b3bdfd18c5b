package game

import "errors"

// ErrorKind groups game errors by how the client is expected to react.
type ErrorKind int

const (
	KindProtocol ErrorKind = iota
	KindAuthorization
	KindCapacity
	KindPermission
	KindValidation
	KindInactivity
	KindDelivery
	KindInternal
)

// Error is a failure that can be reported to a client in an error notice.
// Code is the machine readable reason, Message the human readable one.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// KindOf reports the kind of a game error, or KindInternal for anything else.
func KindOf(err error) ErrorKind {
	var gameErr *Error
	if errors.As(err, &gameErr) {
		return gameErr.Kind
	}
	return KindInternal
}

// closeReason reports whether err should also end the session that caused it,
// and the close reason to use. Capacity errors mean the room will not take the
// player on a retry.
func closeReason(err error) (string, bool) {
	var gameErr *Error
	if errors.As(err, &gameErr) && gameErr.Kind == KindCapacity {
		return gameErr.Code, true
	}
	return "", false
}

// Protocol
var (
	ErrMalformedEnvelope = newError(KindProtocol, "malformed-envelope", "malformed message")
	ErrUnknownOpcode     = newError(KindProtocol, "unknown-opcode", "unknown opcode")
	ErrUnknownEvent      = newError(KindProtocol, "unknown-event", "unknown event")
	ErrMalformedPayload  = newError(KindProtocol, "malformed-payload", "malformed payload")
)

// Authorization
var (
	ErrInvalidToken     = newError(KindAuthorization, "invalid-token", "invalid or expired token")
	ErrWrongPassword    = newError(KindAuthorization, "wrong-password", "incorrect room password")
	ErrGuestsNotAllowed = newError(KindAuthorization, "guests-not-allowed", "guests are not allowed in this room")
)

// Capacity and room lifecycle
var (
	ErrRoomNotFound       = newError(KindCapacity, "room-not-found", "room not found")
	ErrRoomFull           = newError(KindCapacity, "room-full", "room is full")
	ErrRoomClosed         = newError(KindCapacity, "room-closed", "room has closed")
	ErrLobbyClosed        = newError(KindCapacity, "lobby-closed", "server is shutting down")
	ErrAlreadyStarted     = newError(KindCapacity, "already-started", "game has already started")
	ErrNoDecks            = newError(KindCapacity, "no-packs", "no card packs selected")
	ErrNotEnoughPrompts   = newError(KindCapacity, "not-enough-black-cards", "not enough black cards, at least 50 are needed")
	ErrNotEnoughResponses = newError(KindCapacity, "not-enough-white-cards", "not enough white cards, at least 50 are needed")
	ErrNotEnoughPlayers   = newError(KindCapacity, "not-enough-players", "not enough players")
	ErrRoomIdle           = newError(KindCapacity, "room-idle", "room closed after being empty for too long")
	ErrServerShutdown     = newError(KindCapacity, "server-shutdown", "server is shutting down")
)

// Permission
var (
	ErrNotHost = newError(KindPermission, "not-host", "only the host can do that")
)

// Validation
var (
	ErrNoActiveRound     = newError(KindValidation, "no-active-round", "no round is accepting that right now")
	ErrNotEligible       = newError(KindValidation, "not-eligible", "you are not playing this round")
	ErrJudgeCannotSubmit = newError(KindValidation, "judge-cannot-submit", "the judge does not submit cards")
	ErrAlreadySubmitted  = newError(KindValidation, "already-submitted", "you already submitted this round")
	ErrWrongCardCount    = newError(KindValidation, "wrong-card-count", "wrong number of cards")
	ErrCardNotInHand     = newError(KindValidation, "card-not-in-hand", "that card is not in your hand")
	ErrBlankCardText     = newError(KindValidation, "blank-card-text", "blank cards need text")
	ErrNotJudge          = newError(KindValidation, "not-judge", "only the judge can pick")
	ErrNoSuchSubmission  = newError(KindValidation, "no-such-submission", "no submission from that player")
	ErrAlreadyDecided    = newError(KindValidation, "already-decided", "a winner was already picked")
)

// Inactivity
var (
	ErrInactivity       = newError(KindInactivity, "inactivity", "kicked for inactivity")
	ErrHeartbeatTimeout = newError(KindInactivity, "heartbeat-timeout", "heartbeat timeout")
	ErrReplaced         = newError(KindInactivity, "replaced", "connected from another session")
)

// Delivery
var (
	ErrSendBufferFull = newError(KindDelivery, "send-buffer-full", "send buffer full")
	ErrSessionClosed  = newError(KindDelivery, "session-closed", "session closed")
)

// Internal
var (
	ErrRoomCrashed = newError(KindInternal, "internal-error", "the room hit an internal error and closed")
)
