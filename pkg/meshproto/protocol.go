package meshproto

import (
	"encoding/binary"
	"sync"

	"github.com/pion/logging"
	"github.com/sidusmesh/meshcore/pkg/keystore"
	"github.com/sidusmesh/meshcore/pkg/meshkeys"
	"github.com/sidusmesh/meshcore/pkg/meshpdu"
	"github.com/sidusmesh/meshcore/pkg/transport"
)

// MeshProtocol owns the credential-derived state: the
// NID/EncKey/PrivacyKey/AID cache derived from the KeyStore's
// NetworkKey/AppKey, and the sequence counter every outbound PDU across
// every Session draws from. It holds no per-peer state (that lives in
// Session) and reads the KeyStore, never writes it, except indirectly
// via a Session recording a freshly provisioned DeviceKey.
type MeshProtocol struct {
	log   logging.LeveledLogger
	store keystore.KeyStore
	src   uint16
	seqs  *meshpdu.Counter

	mu           sync.RWMutex
	cachedNetKey []byte
	cachedAppKey []byte
	netMaterial  *meshkeys.NetworkKeyMaterial
	networkID    uint64
	aid          byte
}

// Config supplies MeshProtocol's fixed collaborators.
type Config struct {
	Store         keystore.KeyStore
	Src           uint16 // the controller's own unicast address
	LoggerFactory logging.LoggerFactory
}

// New constructs a MeshProtocol and performs the initial key
// derivation pass.
func New(cfg Config) (*MeshProtocol, error) {
	var log logging.LeveledLogger
	if cfg.LoggerFactory != nil {
		log = cfg.LoggerFactory.NewLogger("meshproto")
	} else {
		log = logging.NewDefaultLoggerFactory().NewLogger("meshproto")
	}
	mp := &MeshProtocol{
		log:   log,
		store: cfg.Store,
		src:   cfg.Src,
		seqs:  meshpdu.NewCounter(),
	}
	if err := mp.refresh(); err != nil {
		return nil, err
	}
	return mp, nil
}

// refresh recomputes the NID/EncKey/PrivacyKey/AID cache if the
// KeyStore's NetworkKey or AppKey has changed since the last call.
func (mp *MeshProtocol) refresh() error {
	netKey := mp.store.NetworkKey()
	appKey := mp.store.AppKey()

	mp.mu.RLock()
	unchanged := bytesEqual(mp.cachedNetKey, netKey) && bytesEqual(mp.cachedAppKey, appKey)
	mp.mu.RUnlock()
	if unchanged {
		return nil
	}

	mat, err := meshkeys.DeriveNetworkKeyMaterial(netKey)
	if err != nil {
		return err
	}
	networkID, err := meshkeys.NetworkID(netKey)
	if err != nil {
		return err
	}
	aid, err := meshkeys.DeriveAID(appKey)
	if err != nil {
		return err
	}

	mp.mu.Lock()
	mp.cachedNetKey = append([]byte(nil), netKey...)
	mp.cachedAppKey = append([]byte(nil), appKey...)
	mp.netMaterial = mat
	mp.networkID = networkID
	mp.aid = aid
	mp.mu.Unlock()

	mp.log.Infof("meshproto: rederived network key material, nid=%#x aid=%#x", mat.NID, aid)
	return nil
}

// Outbound returns an meshpdu.Outbound snapshot of the current derived
// key material, refreshing the cache first if the KeyStore's
// credentials changed.
func (mp *MeshProtocol) Outbound() (meshpdu.Outbound, error) {
	if err := mp.refresh(); err != nil {
		return meshpdu.Outbound{}, err
	}
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return meshpdu.Outbound{
		NID:        mp.netMaterial.NID,
		EncKey:     mp.netMaterial.EncKey,
		PrivacyKey: mp.netMaterial.PrivacyKey,
		IVIndex:    mp.store.IVIndex(),
		Src:        mp.src,
	}, nil
}

// Inbound returns a meshpdu.Inbound snapshot mirroring Outbound's
// derived key material, for decoding PDUs received on a Session.
func (mp *MeshProtocol) Inbound() (meshpdu.Inbound, error) {
	if err := mp.refresh(); err != nil {
		return meshpdu.Inbound{}, err
	}
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return meshpdu.Inbound{
		NID:        mp.netMaterial.NID,
		EncKey:     mp.netMaterial.EncKey,
		PrivacyKey: mp.netMaterial.PrivacyKey,
		IVIndex:    mp.store.IVIndex(),
	}, nil
}

// AID returns the cached application key identifier.
func (mp *MeshProtocol) AID() byte {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.aid
}

// NetworkID returns the 64-bit Network ID derived from the current
// NetworkKey, the value proxy nodes of this network advertise in their
// 0x1828 service data.
func (mp *MeshProtocol) NetworkID() uint64 {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.networkID
}

// BelongsToNetwork reports whether a scanned provisioned peer's
// advertised Network ID matches this network's derived one. Peers
// advertising an identity hash instead (advertisement types 1-3) carry
// nothing matchable without the node's identity key, so they report
// false and the host decides whether to connect on other grounds.
func (mp *MeshProtocol) BelongsToNetwork(peer transport.Peer) bool {
	if !peer.Provisioned || len(peer.NetworkID) != 8 {
		return false
	}
	return binary.BigEndian.Uint64(peer.NetworkID) == mp.NetworkID()
}

// AppKey returns the KeyStore's current application key.
func (mp *MeshProtocol) AppKey() []byte { return mp.store.AppKey() }

// Store exposes the underlying KeyStore, e.g. for a Session to record a
// freshly derived DeviceKey after provisioning.
func (mp *MeshProtocol) Store() keystore.KeyStore { return mp.store }

// Sequence returns the engine-wide sequence Counter. It is shared by
// every Session's outbound path: sequence numbers are assigned in
// strict issue order across the whole engine, not per-peer.
func (mp *MeshProtocol) Sequence() *meshpdu.Counter { return mp.seqs }

// Src returns the controller's own unicast address.
func (mp *MeshProtocol) Src() uint16 { return mp.src }

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
