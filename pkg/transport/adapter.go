// Package transport defines the BLE GATT proxy/provisioning bearer
// contract the mesh protocol engine is built against, plus an in-memory
// reference implementation for tests and the bundled simulator. A real
// Adapter backs this with an actual BLE central role stack; nothing in
// this package talks to a radio.
package transport

import "context"

// Role selects which pair of GATT characteristics a session exposes:
// the Proxy service (2ADD/2ADE) for an already-provisioned node, or the
// Provisioning service (2ADB/2ADC) while a node is unprovisioned.
type Role int

const (
	RoleProxy Role = iota
	RoleProvisioning
)

// Peer identifies a scanned device to connect to. DeviceUUID is set for
// unprovisioned peers advertising service data 0x1827; NetworkID or
// IdentityHash is set for provisioned peers advertising 0x1828.
type Peer struct {
	Address      string // adapter-defined connection handle, e.g. a BLE MAC
	DeviceUUID   [16]byte
	Provisioned  bool
	NetworkID    []byte // 8 bytes, AdvertisementType == AdvTypeNetworkID
	IdentityHash []byte // 8 bytes, AdvertisementType == AdvTypeIdentityHash, AdvTypeIdentityHashAlt2 or AdvTypeIdentityHashAlt3
}

// Adapter opens GATT sessions against scanned peers. Implementations
// are responsible for the scan/connect/service-discovery machinery;
// Open only resolves once the relevant characteristics are ready to
// use.
type Adapter interface {
	Open(ctx context.Context, peer Peer, role Role) (Session, error)
}

// NotifyFunc is invoked once per inbound GATT notification, carrying
// the raw Proxy PDU bytes exactly as delivered on 2ADE/2ADC.
type NotifyFunc func(pdu []byte)

// Session is a single open GATT proxy or provisioning link to one
// device. Write is best-effort write-without-response: it may return
// before (or never receive confirmation that) the peer's radio actually
// transmitted the packet.
type Session interface {
	// Write sends one Proxy PDU to the peer's inbound characteristic
	// (2ADD or 2ADB depending on Role).
	Write(ctx context.Context, pdu []byte) error

	// OnNotify registers the callback invoked for each inbound Proxy PDU
	// delivered on the peer's outbound characteristic (2ADE or 2ADC).
	// Only one callback is supported at a time; registering again
	// replaces the previous one.
	OnNotify(fn NotifyFunc)

	// Close tears down the session. Idempotent.
	Close() error
}
