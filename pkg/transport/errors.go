package transport

import "errors"

// ErrSessionClosed is returned by Write once Close has been called.
var ErrSessionClosed = errors.New("transport: session closed")

// ErrMalformedAdvertisement is returned by ParseAdvertisement when the
// service-data payload does not match either recognized mesh layout.
var ErrMalformedAdvertisement = errors.New("transport: malformed mesh advertisement service data")

// ErrUnrecognizedServiceUUID is returned by ParseAdvertisement for
// service-data UUIDs other than 0x1827/0x1828.
var ErrUnrecognizedServiceUUID = errors.New("transport: service data UUID is not a mesh advertisement")
