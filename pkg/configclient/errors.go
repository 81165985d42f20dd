package configclient

import "errors"

// ErrUnexpectedCall is returned when a Client method is invoked out of
// order for the current Step (e.g. Timeout before Start, or a second
// Start call).
var ErrUnexpectedCall = errors.New("configclient: method called in wrong state")
