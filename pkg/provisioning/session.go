// Package provisioning implements the device provisioning state
// machine: Invite -> Capabilities -> Start -> PublicKey -> Confirmation
// -> Random -> Data -> Complete, with ECDH P-256 and session-key
// derivation.
//
// Session is a synchronous, I/O-free state machine driven by
// Start()/Handle* calls, so it is fully testable against a scripted
// peer without a real BLE connection.
package provisioning

import (
	"crypto/rand"

	"github.com/pion/logging"
	"github.com/sidusmesh/meshcore/pkg/crypto"
	"github.com/sidusmesh/meshcore/pkg/meshkeys"
)

// Result is returned once a session reaches StateComplete: the device
// key to store under UnicastAddress, ready for the Config client (C6).
type Result struct {
	UnicastAddress uint16
	DeviceKey      []byte
}

// Session drives one provisioning attempt against a single device. It
// is not safe for concurrent use; the engine runs it on a single
// cooperative task.
type Session struct {
	log   logging.LeveledLogger
	state State

	attentionDuration uint8
	capabilities      CapabilitiesPDU

	keyPair         *crypto.P256KeyPair
	devicePublicKey []byte // 65 bytes, 0x04 || X || Y
	ecdhSecret      []byte

	confirmationInputs []byte
	confirmationSalt   []byte
	confirmationKey    []byte

	provisionerRandom  []byte
	deviceRandom       []byte
	deviceConfirmation []byte

	provisioningSalt []byte
	sessionKey       []byte
	sessionNonce     [13]byte
	deviceKey        []byte

	networkKey  []byte
	netKeyIndex uint16
	ivIndex     uint32
	unicast     uint16

	failure error
}

// Config supplies the network credentials this session will hand to the
// device once confirmation succeeds, plus an optional logger.
type Config struct {
	NetworkKey    []byte
	NetKeyIndex   uint16
	IVIndex       uint32
	Unicast       uint16 // address to assign the new device
	LoggerFactory logging.LoggerFactory
}

// NewSession creates a fresh provisioning attempt. The caller is the
// provisioner; the state machine never plays the device role.
func NewSession(cfg Config) (*Session, error) {
	keyPair, err := crypto.P256GenerateKeyPair()
	if err != nil {
		return nil, &LocalFailure{Detail: "generate ECDH key pair", Err: err}
	}
	var log logging.LeveledLogger
	if cfg.LoggerFactory != nil {
		log = cfg.LoggerFactory.NewLogger("provisioning")
	} else {
		log = logging.NewDefaultLoggerFactory().NewLogger("provisioning")
	}
	return &Session{
		log:         log,
		state:       StateIdle,
		keyPair:     keyPair,
		networkKey:  append([]byte(nil), cfg.NetworkKey...),
		netKeyIndex: cfg.NetKeyIndex,
		ivIndex:     cfg.IVIndex,
		unicast:     cfg.Unicast,
	}, nil
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Err returns the terminal failure reason once State() == StateFailed.
func (s *Session) Err() error { return s.failure }

func (s *Session) fail(err error) error {
	s.state = StateFailed
	s.failure = err
	s.log.Errorf("provisioning failed: %v", err)
	return err
}

// Start begins the flow, returning the Invite PDU to send. attention is
// the attentionDuration parameter carried in the Invite.
func (s *Session) Start(attention uint8) ([]byte, error) {
	if s.state != StateIdle {
		return nil, ErrUnexpectedPDU
	}
	s.attentionDuration = attention
	s.state = StateInviteSent
	return BuildInvite(attention), nil
}

// HandleCapabilities consumes the device's Capabilities PDU (type byte
// included) and returns the Start PDU to send next.
func (s *Session) HandleCapabilities(pdu []byte) ([]byte, error) {
	if s.state != StateInviteSent {
		return nil, ErrUnexpectedPDU
	}
	if len(pdu) != 12 || pdu[0] != TypeCapabilities {
		return nil, s.fail(&LocalFailure{Detail: "expected Capabilities PDU"})
	}
	caps, err := ParseCapabilities(pdu[1:])
	if err != nil {
		return nil, s.fail(&LocalFailure{Detail: "parse capabilities", Err: err})
	}
	if caps.Algorithms&AlgorithmFIPSP256 == 0 {
		return nil, s.fail(&LocalFailure{Detail: "device does not support FIPS P-256"})
	}
	s.capabilities = caps
	s.state = StateCapabilitiesReceived

	start := BuildStart()
	s.confirmationInputs = append(s.confirmationInputs,
		s.attentionInviteParam()...)
	s.confirmationInputs = append(s.confirmationInputs, caps.ParameterBytes()...)
	s.confirmationInputs = append(s.confirmationInputs, start[1:]...)
	s.state = StateStartSent
	return start, nil
}

func (s *Session) attentionInviteParam() []byte {
	return []byte{s.attentionDuration}
}

// BuildPublicKeyPDU returns the PublicKey PDU to send after Start, and
// folds the provisioner's own public key into ConfirmationInputs.
func (s *Session) BuildPublicKeyPDU() ([]byte, error) {
	if s.state != StateStartSent {
		return nil, ErrUnexpectedPDU
	}
	pdu, err := BuildPublicKey(s.keyPair.PublicKey())
	if err != nil {
		return nil, s.fail(&LocalFailure{Detail: "build public key PDU", Err: err})
	}
	s.confirmationInputs = append(s.confirmationInputs, pdu[1:]...)
	s.state = StatePublicKeySent
	return pdu, nil
}

// HandlePublicKey consumes the device's PublicKey PDU, computes the
// ECDH shared secret, derives ConfirmationSalt/ConfirmationKey, and
// returns the Confirmation PDU to send.
func (s *Session) HandlePublicKey(pdu []byte) ([]byte, error) {
	if s.state != StatePublicKeySent {
		return nil, ErrUnexpectedPDU
	}
	if len(pdu) != 65 || pdu[0] != TypePublicKey {
		return nil, s.fail(&LocalFailure{Detail: "expected PublicKey PDU"})
	}
	devicePub, err := ParsePublicKeyParams(pdu[1:])
	if err != nil {
		return nil, s.fail(&LocalFailure{Detail: "parse device public key", Err: err})
	}
	if err := crypto.P256ValidatePublicKey(devicePub); err != nil {
		return nil, s.fail(&LocalFailure{Detail: "invalid device public key", Err: err})
	}
	s.devicePublicKey = devicePub
	s.confirmationInputs = append(s.confirmationInputs, pdu[1:]...)

	secret, err := crypto.P256ECDH(s.keyPair, devicePub)
	if err != nil {
		return nil, s.fail(&LocalFailure{Detail: "ECDH", Err: err})
	}
	s.ecdhSecret = secret
	s.state = StatePublicKeyReceived

	if len(s.confirmationInputs) != 145 {
		return nil, s.fail(&LocalFailure{Detail: "confirmation inputs must be 145 bytes"})
	}
	salt, err := meshkeys.S1(s.confirmationInputs)
	if err != nil {
		return nil, s.fail(&LocalFailure{Detail: "derive confirmation salt", Err: err})
	}
	s.confirmationSalt = salt

	key, err := meshkeys.K1(s.ecdhSecret, s.confirmationSalt, []byte("prck"))
	if err != nil {
		return nil, s.fail(&LocalFailure{Detail: "derive confirmation key", Err: err})
	}
	s.confirmationKey = key

	random := make([]byte, 16)
	if _, err := rand.Read(random); err != nil {
		return nil, s.fail(&LocalFailure{Detail: "generate provisioner random", Err: err})
	}
	s.provisionerRandom = random

	authValue := make([]byte, 16) // No OOB.
	confirmInput := append(append([]byte(nil), s.provisionerRandom...), authValue...)
	confirmation, err := crypto.AESCMAC(s.confirmationKey, confirmInput)
	if err != nil {
		return nil, s.fail(&LocalFailure{Detail: "compute confirmation", Err: err})
	}
	pduOut, err := BuildConfirmation(confirmation)
	if err != nil {
		return nil, s.fail(&LocalFailure{Detail: "build confirmation PDU", Err: err})
	}
	s.state = StateConfirmationSent
	return pduOut, nil
}

// HandleConfirmation stores the device's Confirmation PDU and returns
// the Random PDU to send.
func (s *Session) HandleConfirmation(pdu []byte) ([]byte, error) {
	if s.state != StateConfirmationSent {
		return nil, ErrUnexpectedPDU
	}
	if len(pdu) != 17 || pdu[0] != TypeConfirmation {
		return nil, s.fail(&LocalFailure{Detail: "expected Confirmation PDU"})
	}
	s.deviceConfirmation = append([]byte(nil), pdu[1:]...)
	s.state = StateConfirmationReceived

	pduOut, err := BuildRandom(s.provisionerRandom)
	if err != nil {
		return nil, s.fail(&LocalFailure{Detail: "build random PDU", Err: err})
	}
	s.state = StateRandomSent
	return pduOut, nil
}

// HandleRandom consumes the device's Random PDU, verifies its
// confirmation value (logging, not failing, on mismatch so the
// downstream failure stays observable), derives the session key
// material, builds the encrypted ProvisioningData, and returns the Data
// PDU.
func (s *Session) HandleRandom(pdu []byte) ([]byte, error) {
	if s.state != StateRandomSent {
		return nil, ErrUnexpectedPDU
	}
	if len(pdu) != 17 || pdu[0] != TypeRandom {
		return nil, s.fail(&LocalFailure{Detail: "expected Random PDU"})
	}
	s.deviceRandom = append([]byte(nil), pdu[1:]...)
	s.state = StateRandomReceived

	authValue := make([]byte, 16)
	expectedInput := append(append([]byte(nil), s.deviceRandom...), authValue...)
	expected, err := crypto.AESCMAC(s.confirmationKey, expectedInput)
	if err != nil {
		return nil, s.fail(&LocalFailure{Detail: "recompute expected device confirmation", Err: err})
	}
	if !constantTimeEqual(expected, s.deviceConfirmation) {
		s.log.Warn("provisioning: device confirmation mismatch, continuing to surface downstream failure")
	}

	saltInput := append(append(append([]byte(nil), s.confirmationSalt...), s.provisionerRandom...), s.deviceRandom...)
	provisioningSalt, err := meshkeys.S1(saltInput)
	if err != nil {
		return nil, s.fail(&LocalFailure{Detail: "derive provisioning salt", Err: err})
	}
	s.provisioningSalt = provisioningSalt

	sessionKey, err := meshkeys.K1(s.ecdhSecret, s.provisioningSalt, []byte("prsk"))
	if err != nil {
		return nil, s.fail(&LocalFailure{Detail: "derive session key", Err: err})
	}
	s.sessionKey = sessionKey

	sessionNonceFull, err := meshkeys.K1(s.ecdhSecret, s.provisioningSalt, []byte("prsn"))
	if err != nil {
		return nil, s.fail(&LocalFailure{Detail: "derive session nonce", Err: err})
	}
	copy(s.sessionNonce[:], sessionNonceFull[3:16])

	deviceKey, err := meshkeys.DeviceKey(s.ecdhSecret, s.provisioningSalt)
	if err != nil {
		return nil, s.fail(&LocalFailure{Detail: "derive device key", Err: err})
	}
	s.deviceKey = deviceKey

	provData := ProvisioningData{
		NetworkKey:     s.networkKey,
		NetKeyIndex:    s.netKeyIndex,
		Flags:          0x00,
		IVIndex:        s.ivIndex,
		UnicastAddress: s.unicast,
	}
	plaintext, err := provData.Bytes()
	if err != nil {
		return nil, s.fail(&LocalFailure{Detail: "build provisioning data", Err: err})
	}
	encrypted, err := crypto.AESCCMEncrypt(s.sessionKey, s.sessionNonce[:], plaintext, crypto.MIC8)
	if err != nil {
		return nil, s.fail(&LocalFailure{Detail: "encrypt provisioning data", Err: err})
	}

	s.state = StateDataSent
	return BuildData(encrypted), nil
}

// HandleComplete consumes the device's terminal PDU: Complete (success,
// delivering the Result) or Failed (remote failure). Any other PDU type
// or state is an error.
func (s *Session) HandleComplete(pdu []byte) (*Result, error) {
	if s.state != StateDataSent {
		return nil, ErrUnexpectedPDU
	}
	if len(pdu) < 1 {
		return nil, s.fail(&LocalFailure{Detail: "empty terminal PDU"})
	}
	switch pdu[0] {
	case TypeComplete:
		s.state = StateComplete
		return &Result{UnicastAddress: s.unicast, DeviceKey: s.deviceKey}, nil
	case TypeFailed:
		var code byte
		if len(pdu) >= 2 {
			code = pdu[1]
		}
		return nil, s.fail(&RemoteFailure{Code: code})
	default:
		return nil, s.fail(&LocalFailure{Detail: "unexpected terminal PDU type"})
	}
}

// Timeout marks the session as failed with ErrProvisioningTimeout. The
// caller (the owning driver, which runs the 30s per-step timers) invokes
// this when a timer fires before the expected PDU arrives.
func (s *Session) Timeout() error {
	return s.fail(ErrProvisioningTimeout)
}

// Cancel marks the session as failed with ErrCancelled. Idempotent in
// effect: once terminal, the state stays failed and the first recorded
// failure reason wins.
func (s *Session) Cancel() error {
	if s.state == StateFailed || s.state == StateComplete {
		return s.failure
	}
	return s.fail(ErrCancelled)
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
