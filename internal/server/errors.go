package server

import "errors"

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownEvent   = errors.New("unknown event type")
	ErrNotRegistered  = errors.New("connection is not registered")
	ErrSenderMismatch = errors.New("sender does not match the registered identity")
	ErrGroupExists    = errors.New("group already exists")
	ErrInvalidToken   = errors.New("invalid registration token")
)

// errorCode maps a gateway error onto the code sent back in an error frame.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownEvent):
		return "unknown_event"
	case errors.Is(err, ErrNotRegistered):
		return "not_registered"
	case errors.Is(err, ErrSenderMismatch):
		return "sender_mismatch"
	case errors.Is(err, ErrGroupExists):
		return "group_exists"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	default:
		return "invalid_frame"
	}
}
