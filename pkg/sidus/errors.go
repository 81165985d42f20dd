package sidus

import "errors"

var (
	// ErrChecksumMismatch is returned when byte 0 does not equal the sum
	// of bytes 1-9 modulo 256.
	ErrChecksumMismatch = errors.New("sidus: checksum mismatch")

	// ErrUnknownCommandType is returned when a payload's commandType does
	// not match any known variant.
	ErrUnknownCommandType = errors.New("sidus: unknown command type")

	// ErrUnknownEffectType is returned when an Effect's EffectType has no
	// defined wire layout.
	ErrUnknownEffectType = errors.New("sidus: unknown effect type")

	// ErrMissingFields is returned when Encode is called with a Command
	// whose Type does not match the populated variant field.
	ErrMissingFields = errors.New("sidus: command missing fields for its type")
)
