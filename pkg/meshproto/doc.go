// Package meshproto ties the protocol engine's components together: a
// MeshProtocol value owning its derived-key cache and sequence counter,
// a Session value owning the GATT handle and per-connection state
// machines, and a KeyStore read by MeshProtocol. No global mutable
// state, no module-level crypto singletons.
package meshproto
