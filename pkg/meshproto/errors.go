package meshproto

import "errors"

// ErrFilterNotReady is returned by Session.SendVendorCommand and
// StartConfiguration if the Proxy Filter setup PDU has not yet been
// written for this session. Without the filter write the peer's default
// empty allow-list drops every forwarded PDU.
var ErrFilterNotReady = errors.New("meshproto: proxy filter setup not yet sent")

// ErrNotProvisioned is returned when a command targets a unicast address
// the KeyStore has no DeviceKey for.
var ErrNotProvisioned = errors.New("meshproto: no device key for unicast address")

// ErrSessionClosed names a closed Session. No Session method returns
// it: after Close, writes fail with the transport session's own error.
var ErrSessionClosed = errors.New("meshproto: session closed")

// ErrAlreadyProvisioning is returned by StartProvisioning if a
// provisioning attempt is already in flight on this session.
var ErrAlreadyProvisioning = errors.New("meshproto: provisioning already in progress")

// ErrNoProvisioningInFlight is returned when an inbound provisioning PDU
// arrives with no active attempt. A step timer that fires with no active
// attempt does nothing.
var ErrNoProvisioningInFlight = errors.New("meshproto: no provisioning attempt in progress")
