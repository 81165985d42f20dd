package meshpdu

import "errors"

// Distinct sentinels let callers classify a failure without string
// matching; MeshProtocol wraps these with fmt.Errorf("...: %w", err) to
// add PDU-specific context.
var (
	// ErrCryptoFailure is an AES-CCM MIC mismatch on decrypt. Never
	// surfaced user-visibly; the caller drops the PDU and logs.
	ErrCryptoFailure = errors.New("meshpdu: decrypt failed (MIC mismatch)")

	// ErrMalformedPdu covers length-too-short, unsupported proxy/network
	// message types, and unsupported flag combinations on an inbound PDU.
	ErrMalformedPdu = errors.New("meshpdu: malformed PDU")

	// ErrUnknownDeviceKey is returned for an AKF=0 inbound message whose
	// source address has no DeviceKey on file.
	ErrUnknownDeviceKey = errors.New("meshpdu: no device key for source address")

	// ErrSegmentedUnsupported is returned for an inbound access message
	// with SEG=1: reassembly of application-key segments is unsupported.
	ErrSegmentedUnsupported = errors.New("meshpdu: segmented inbound reassembly not supported")

	// ErrAccessTooLarge is returned when a SIG (non-vendor, non-device-key)
	// message would require segmentation; these must fit an unsegmented
	// upper transport PDU.
	ErrAccessTooLarge = errors.New("meshpdu: access payload too large for unsegmented SIG message")
)
