package provisioning

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/sidusmesh/meshcore/pkg/crypto"
	"github.com/sidusmesh/meshcore/pkg/meshkeys"
)

// scriptedDevice plays the device side of the exchange using the same
// primitives as Session, so the test exercises a full, symmetric
// ECDH + confirmation + data handshake rather than fixed golden bytes.
type scriptedDevice struct {
	keyPair *crypto.P256KeyPair
	random  []byte

	provisionerPub []byte
	confirmInputs  []byte
	confirmSalt    []byte
	confirmKey     []byte
	ecdhSecret     []byte
}

func newScriptedDevice(t *testing.T) *scriptedDevice {
	t.Helper()
	kp, err := crypto.P256GenerateKeyPair()
	if err != nil {
		t.Fatalf("device key pair: %v", err)
	}
	random := make([]byte, 16)
	if _, err := rand.Read(random); err != nil {
		t.Fatalf("device random: %v", err)
	}
	return &scriptedDevice{keyPair: kp, random: random}
}

func (d *scriptedDevice) capabilities() []byte {
	caps := CapabilitiesPDU{
		NumElements:   1,
		Algorithms:    AlgorithmFIPSP256,
		PublicKeyType: 0,
	}
	out := make([]byte, 0, 12)
	out = append(out, TypeCapabilities)
	out = append(out, caps.ParameterBytes()...)
	return out
}

func (d *scriptedDevice) observeInvite(invite []byte) {
	d.confirmInputs = append(d.confirmInputs, invite[1:]...)
}

func (d *scriptedDevice) observeStartAndCapabilities(capsPdu, start []byte) {
	caps, _ := ParseCapabilities(capsPdu[1:])
	d.confirmInputs = append(d.confirmInputs, caps.ParameterBytes()...)
	d.confirmInputs = append(d.confirmInputs, start[1:]...)
}

func (d *scriptedDevice) publicKeyPDU() ([]byte, error) {
	return BuildPublicKey(d.keyPair.PublicKey())
}

func (d *scriptedDevice) completeHandshake(provisionerPubKeyPdu, devicePubKeyPdu []byte) error {
	d.confirmInputs = append(d.confirmInputs, provisionerPubKeyPdu[1:]...)
	d.confirmInputs = append(d.confirmInputs, devicePubKeyPdu[1:]...)

	provisionerPub, err := ParsePublicKeyParams(provisionerPubKeyPdu[1:])
	if err != nil {
		return err
	}
	d.provisionerPub = provisionerPub

	secret, err := crypto.P256ECDH(d.keyPair, provisionerPub)
	if err != nil {
		return err
	}
	d.ecdhSecret = secret

	salt, err := meshkeys.S1(d.confirmInputs)
	if err != nil {
		return err
	}
	d.confirmSalt = salt

	key, err := meshkeys.K1(d.ecdhSecret, d.confirmSalt, []byte("prck"))
	if err != nil {
		return err
	}
	d.confirmKey = key
	return nil
}

func (d *scriptedDevice) confirmationPDU() ([]byte, error) {
	authValue := make([]byte, 16)
	input := append(append([]byte(nil), d.random...), authValue...)
	confirmation, err := crypto.AESCMAC(d.confirmKey, input)
	if err != nil {
		return nil, err
	}
	return BuildConfirmation(confirmation)
}

func (d *scriptedDevice) randomPDU() ([]byte, error) {
	return BuildRandom(d.random)
}

func (d *scriptedDevice) decryptData(dataPdu []byte, provisionerRandom []byte) (ProvisioningData, error) {
	saltInput := append(append(append([]byte(nil), d.confirmSalt...), provisionerRandom...), d.random...)
	provisioningSalt, err := meshkeys.S1(saltInput)
	if err != nil {
		return ProvisioningData{}, err
	}
	sessionKey, err := meshkeys.K1(d.ecdhSecret, provisioningSalt, []byte("prsk"))
	if err != nil {
		return ProvisioningData{}, err
	}
	sessionNonceFull, err := meshkeys.K1(d.ecdhSecret, provisioningSalt, []byte("prsn"))
	if err != nil {
		return ProvisioningData{}, err
	}
	nonce := sessionNonceFull[3:16]

	encrypted := dataPdu[1:]
	plaintext, err := crypto.AESCCMDecrypt(sessionKey, nonce, encrypted, crypto.MIC8)
	if err != nil {
		return ProvisioningData{}, err
	}
	return ParseProvisioningData(plaintext)
}

func TestSessionHappyPath(t *testing.T) {
	networkKey := mustHex(t, "7dd7364cd842ad18c17c2b820c84c3d6")
	sess, err := NewSession(Config{
		NetworkKey:  networkKey,
		NetKeyIndex: 0,
		IVIndex:     0x12345678,
		Unicast:     0x0003,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	device := newScriptedDevice(t)

	invite, err := sess.Start(5)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	device.observeInvite(invite)

	capsPdu := device.capabilities()
	start, err := sess.HandleCapabilities(capsPdu)
	if err != nil {
		t.Fatalf("HandleCapabilities: %v", err)
	}
	device.observeStartAndCapabilities(capsPdu, start)

	provPubPdu, err := sess.BuildPublicKeyPDU()
	if err != nil {
		t.Fatalf("BuildPublicKeyPDU: %v", err)
	}
	devPubPdu, err := device.publicKeyPDU()
	if err != nil {
		t.Fatalf("device publicKeyPDU: %v", err)
	}
	if err := device.completeHandshake(provPubPdu, devPubPdu); err != nil {
		t.Fatalf("device completeHandshake: %v", err)
	}

	provisionerConfirm, err := sess.HandlePublicKey(devPubPdu)
	if err != nil {
		t.Fatalf("HandlePublicKey: %v", err)
	}

	deviceConfirm, err := device.confirmationPDU()
	if err != nil {
		t.Fatalf("device confirmationPDU: %v", err)
	}
	_ = provisionerConfirm

	provisionerRandomPdu, err := sess.HandleConfirmation(deviceConfirm)
	if err != nil {
		t.Fatalf("HandleConfirmation: %v", err)
	}
	provisionerRandom := append([]byte(nil), provisionerRandomPdu[1:]...)

	deviceRandomPdu, err := device.randomPDU()
	if err != nil {
		t.Fatalf("device randomPDU: %v", err)
	}

	dataPdu, err := sess.HandleRandom(deviceRandomPdu)
	if err != nil {
		t.Fatalf("HandleRandom: %v", err)
	}

	decoded, err := device.decryptData(dataPdu, provisionerRandom)
	if err != nil {
		t.Fatalf("device decryptData: %v", err)
	}
	if !bytes.Equal(decoded.NetworkKey, networkKey) {
		t.Fatalf("network key mismatch: got %x want %x", decoded.NetworkKey, networkKey)
	}
	if decoded.UnicastAddress != 0x0003 {
		t.Fatalf("unicast address = %#x, want 0x0003", decoded.UnicastAddress)
	}
	if decoded.IVIndex != 0x12345678 {
		t.Fatalf("iv index = %#x, want 0x12345678", decoded.IVIndex)
	}

	completePdu := []byte{TypeComplete}
	result, err := sess.HandleComplete(completePdu)
	if err != nil {
		t.Fatalf("HandleComplete: %v", err)
	}
	if result.UnicastAddress != 0x0003 {
		t.Fatalf("result unicast = %#x, want 0x0003", result.UnicastAddress)
	}
	if len(result.DeviceKey) != 16 {
		t.Fatalf("device key length = %d, want 16", len(result.DeviceKey))
	}
	if sess.State() != StateComplete {
		t.Fatalf("state = %v, want complete", sess.State())
	}
}

func TestSessionRemoteFailure(t *testing.T) {
	sess := newReadySessionForFailureTest(t)
	_, err := sess.HandleComplete([]byte{TypeFailed, 0x03})
	if err == nil {
		t.Fatal("expected error")
	}
	rf, ok := err.(*RemoteFailure)
	if !ok {
		t.Fatalf("expected *RemoteFailure, got %T", err)
	}
	if rf.Code != 0x03 {
		t.Fatalf("code = %#x, want 0x03", rf.Code)
	}
	if sess.State() != StateFailed {
		t.Fatalf("state = %v, want failed", sess.State())
	}
}

func TestSessionUnexpectedPDURejected(t *testing.T) {
	sess, err := NewSession(Config{
		NetworkKey: mustHex(t, "7dd7364cd842ad18c17c2b820c84c3d6"),
		Unicast:    0x0003,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, err := sess.HandleCapabilities([]byte{TypeCapabilities}); err != ErrUnexpectedPDU {
		t.Fatalf("expected ErrUnexpectedPDU before Start, got %v", err)
	}
}

// newReadySessionForFailureTest drives a session to StateDataSent using a
// scripted device, the same way TestSessionHappyPath does, so
// HandleComplete can be exercised against a Failed PDU.
func newReadySessionForFailureTest(t *testing.T) *Session {
	t.Helper()
	sess, err := NewSession(Config{
		NetworkKey:  mustHex(t, "7dd7364cd842ad18c17c2b820c84c3d6"),
		NetKeyIndex: 0,
		IVIndex:     1,
		Unicast:     0x0010,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	device := newScriptedDevice(t)

	invite, err := sess.Start(0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	device.observeInvite(invite)

	capsPdu := device.capabilities()
	start, err := sess.HandleCapabilities(capsPdu)
	if err != nil {
		t.Fatalf("HandleCapabilities: %v", err)
	}
	device.observeStartAndCapabilities(capsPdu, start)

	provPubPdu, err := sess.BuildPublicKeyPDU()
	if err != nil {
		t.Fatalf("BuildPublicKeyPDU: %v", err)
	}
	devPubPdu, err := device.publicKeyPDU()
	if err != nil {
		t.Fatalf("device publicKeyPDU: %v", err)
	}
	if err := device.completeHandshake(provPubPdu, devPubPdu); err != nil {
		t.Fatalf("device completeHandshake: %v", err)
	}
	if _, err := sess.HandlePublicKey(devPubPdu); err != nil {
		t.Fatalf("HandlePublicKey: %v", err)
	}
	deviceConfirm, err := device.confirmationPDU()
	if err != nil {
		t.Fatalf("device confirmationPDU: %v", err)
	}
	provisionerRandomPdu, err := sess.HandleConfirmation(deviceConfirm)
	if err != nil {
		t.Fatalf("HandleConfirmation: %v", err)
	}
	_ = provisionerRandomPdu
	deviceRandomPdu, err := device.randomPDU()
	if err != nil {
		t.Fatalf("device randomPDU: %v", err)
	}
	if _, err := sess.HandleRandom(deviceRandomPdu); err != nil {
		t.Fatalf("HandleRandom: %v", err)
	}
	return sess
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b := make([]byte, len(s)/2)
	for i := 0; i < len(b); i++ {
		hi := hexNibble(t, s[i*2])
		lo := hexNibble(t, s[i*2+1])
		b[i] = hi<<4 | lo
	}
	return b
}

func hexNibble(t *testing.T, c byte) byte {
	t.Helper()
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		t.Fatalf("invalid hex char %c", c)
		return 0
	}
}
