package meshproto

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/sidusmesh/meshcore/pkg/keystore"
	"github.com/sidusmesh/meshcore/pkg/transport"
)

func newTestProtocol(t *testing.T) *MeshProtocol {
	t.Helper()
	networkKey, _ := hex.DecodeString("7dd7364cd842ad18c17c2b820c84c3d6")
	appKey, _ := hex.DecodeString("63964771734fbd76e3b40519d1d94a48")
	mp, err := New(Config{
		Store: keystore.New(networkKey, appKey, 0, 0, 0),
		Src:   0x0001,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return mp
}

func TestDerivedMaterialStable(t *testing.T) {
	mp := newTestProtocol(t)

	a, err := mp.Outbound()
	if err != nil {
		t.Fatalf("Outbound: %v", err)
	}
	b, err := mp.Outbound()
	if err != nil {
		t.Fatalf("Outbound: %v", err)
	}
	if a.NID != b.NID || !bytes.Equal(a.EncKey, b.EncKey) || !bytes.Equal(a.PrivacyKey, b.PrivacyKey) {
		t.Fatal("rederived network key material differs between calls")
	}
	if a.NID&0x80 != 0 {
		t.Fatalf("NID = %#x, high bit must be clear", a.NID)
	}
}

func TestBelongsToNetwork(t *testing.T) {
	mp := newTestProtocol(t)

	data := make([]byte, 9)
	data[0] = transport.AdvTypeNetworkID
	binary.BigEndian.PutUint64(data[1:], mp.NetworkID())
	peer, err := transport.ParseAdvertisement(transport.ServiceUUIDProvisioned, data)
	if err != nil {
		t.Fatalf("ParseAdvertisement: %v", err)
	}
	if !mp.BelongsToNetwork(peer) {
		t.Fatal("peer advertising our own Network ID not recognized")
	}

	binary.BigEndian.PutUint64(data[1:], mp.NetworkID()^1)
	other, err := transport.ParseAdvertisement(transport.ServiceUUIDProvisioned, data)
	if err != nil {
		t.Fatalf("ParseAdvertisement: %v", err)
	}
	if mp.BelongsToNetwork(other) {
		t.Fatal("peer with a foreign Network ID matched")
	}

	data[0] = transport.AdvTypeIdentityHash
	hashed, err := transport.ParseAdvertisement(transport.ServiceUUIDProvisioned, data)
	if err != nil {
		t.Fatalf("ParseAdvertisement: %v", err)
	}
	if mp.BelongsToNetwork(hashed) {
		t.Fatal("identity-hash advertisement must not match by Network ID")
	}

	if mp.BelongsToNetwork(transport.Peer{}) {
		t.Fatal("unprovisioned peer must not match")
	}
}
