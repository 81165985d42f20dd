package meshpdu

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/sidusmesh/meshcore/pkg/meshkeys"
)

func testKeys(t *testing.T) (nid byte, encKey, privacyKey, appKey []byte, aid byte) {
	t.Helper()
	networkKey, err := hex.DecodeString("7dd7364cd842ad18c17c2b820c84c3d6")
	if err != nil {
		t.Fatal(err)
	}
	mat, err := meshkeys.DeriveNetworkKeyMaterial(networkKey)
	if err != nil {
		t.Fatal(err)
	}
	appKey = bytes.Repeat([]byte{0xAB}, 16)
	a, err := meshkeys.DeriveAID(appKey)
	if err != nil {
		t.Fatal(err)
	}
	return mat.NID, mat.EncKey, mat.PrivacyKey, appKey, a
}

func TestVendorCommandRoundTrip(t *testing.T) {
	nid, encKey, privacyKey, appKey, aid := testKeys(t)

	out := Outbound{NID: nid, EncKey: encKey, PrivacyKey: privacyKey, IVIndex: 0x12345678, Src: 0x0001}
	seqs := NewCounterWithValue(SeqInit)
	seq, err := seqs.Next()
	if err != nil {
		t.Fatal(err)
	}

	sidusPayload := bytes.Repeat([]byte{0x11}, 10)
	pdu, err := out.BuildVendorCommand(appKey, aid, seq, 0x0002, 7, sidusPayload)
	if err != nil {
		t.Fatalf("BuildVendorCommand: %v", err)
	}

	in := Inbound{NID: nid, EncKey: encKey, PrivacyKey: privacyKey, IVIndex: out.IVIndex}
	result, err := in.Decode(pdu,
		func(gotAID byte) ([]byte, bool) { return appKey, gotAID == aid },
		func(uint16) ([]byte, bool) { return nil, false },
	)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if result.Access == nil {
		t.Fatal("expected an access message")
	}
	if result.Access.Src != 0x0001 || result.Access.Dst != 0x0002 {
		t.Fatalf("got src=%#x dst=%#x", result.Access.Src, result.Access.Dst)
	}
	payload, ok := ParseVendorAccess(result.Access.Payload)
	if !ok {
		t.Fatal("expected recognized vendor opcode")
	}
	if !bytes.Equal(payload, sidusPayload) {
		t.Fatalf("payload round-trip mismatch: got %x want %x", payload, sidusPayload)
	}
}

func TestSequenceNumbersStrictlyIncreasing(t *testing.T) {
	seqs := NewCounter()
	prev, err := seqs.Next()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		next, err := seqs.Next()
		if err != nil {
			t.Fatal(err)
		}
		if next != prev+1 {
			t.Fatalf("sequence not strictly increasing: %d then %d", prev, next)
		}
		prev = next
	}
}

func TestDeviceKeySegmentation(t *testing.T) {
	nid, encKey, privacyKey, _, _ := testKeys(t)
	deviceKey := bytes.Repeat([]byte{0x22}, 16)

	out := Outbound{NID: nid, EncKey: encKey, PrivacyKey: privacyKey, IVIndex: 1, Src: 0x0001}
	seqs := NewCounterWithValue(SeqInit)

	// AppKey Add: opcode(1) + netKeyIndex/appKeyIndex packed (3) + AppKey(16) = 20 bytes.
	opcode := []byte{0x00}
	params := make([]byte, 3+16)
	pdus, err := out.BuildDeviceKeyMessage(deviceKey, seqs, 0x0002, 0, opcode, params)
	if err != nil {
		t.Fatalf("BuildDeviceKeyMessage: %v", err)
	}
	if len(pdus) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(pdus))
	}

	in := Inbound{NID: nid, EncKey: encKey, PrivacyKey: privacyKey, IVIndex: out.IVIndex}
	for i, pdu := range pdus {
		_, _, proxyPayload, err := ParseProxyPDU(pdu)
		if err != nil {
			t.Fatalf("segment %d: %v", i, err)
		}
		_, obfHeader, netPayload, err := ParseNetworkPDU(proxyPayload)
		if err != nil {
			t.Fatalf("segment %d: %v", i, err)
		}
		_, _, seq, _, err := DeobfuscateHeader(in.PrivacyKey, in.IVIndex, netPayload, obfHeader)
		if err != nil {
			t.Fatalf("segment %d deobfuscate: %v", i, err)
		}
		wantSeq := SeqInit + uint32(i)
		if seq != wantSeq {
			t.Fatalf("segment %d seq = %d, want %d", i, seq, wantSeq)
		}
	}

	if seqs.Peek() != SeqInit+2 {
		t.Fatalf("counter advanced by %d, want 2", seqs.Peek()-SeqInit)
	}
}

func TestProxyFilterSetupPDU(t *testing.T) {
	nid, encKey, privacyKey, _, _ := testKeys(t)

	pdu, err := BuildProxyFilterSetupPDU(nid, privacyKey, encKey, 1, SeqInit, 0x0001)
	if err != nil {
		t.Fatal(err)
	}
	if pdu[0] != 0x02 {
		t.Fatalf("proxy header = %#x, want 0x02 (Proxy Configuration)", pdu[0])
	}

	_, _, netPayload, err := ParseProxyPDU(pdu)
	if err != nil {
		t.Fatal(err)
	}
	_, obfHeader, encrypted, err := ParseNetworkPDU(netPayload)
	if err != nil {
		t.Fatal(err)
	}
	ctl, ttl, seq, src, err := DeobfuscateHeader(privacyKey, 1, encrypted, obfHeader)
	if err != nil {
		t.Fatal(err)
	}
	if !ctl {
		t.Fatal("expected CTL=1")
	}
	if ttl != 0 || seq != SeqInit || src != 0x0001 {
		t.Fatalf("unexpected header: ttl=%d seq=%d src=%#x", ttl, seq, src)
	}

	plaintext, err := DecryptNetworkPayload(encKey, NetworkNonce(true, 0, SeqInit, 0x0001, 1), encrypted, 8)
	if err != nil {
		t.Fatal(err)
	}
	if plaintext[0] != 0x00 || plaintext[1] != 0x00 {
		t.Fatalf("DST field = %x, want 0x0000", plaintext[:2])
	}
	if !bytes.Equal(plaintext[2:], []byte{0x00, 0x01}) {
		t.Fatalf("lower transport = %x, want 00 01", plaintext[2:])
	}
}
