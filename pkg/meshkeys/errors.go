package meshkeys

import "errors"

// ErrInvalidKeySize is returned when a network or application key is not
// exactly 128 bits.
var ErrInvalidKeySize = errors.New("meshkeys: key must be 16 bytes")
