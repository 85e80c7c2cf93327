package bus

import (
	"errors"

	"github.com/rotisserie/eris"
)

// Channel failures. These are the only errors retried by callers.
var (
	ErrContextInvalidated = eris.New("bus: context invalidated")
	ErrNoReceiver         = eris.New("bus: could not establish connection, receiving end does not exist")
	ErrPortClosed         = eris.New("bus: message port closed before a response was received")
)

// RemoteError is a Response with success=false surfaced as an error. The
// channel worked; the handler failed.
type RemoteError struct {
	Type    MessageType
	Message string
}

func (e *RemoteError) Error() string {
	return "bus: " + string(e.Type) + " failed: " + e.Message
}

// IsTransient reports whether err is a channel failure worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrContextInvalidated) ||
		errors.Is(err, ErrNoReceiver) ||
		errors.Is(err, ErrPortClosed)
}

// IsRemote reports whether err came from a failed handler.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
