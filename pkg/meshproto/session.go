package meshproto

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/sidusmesh/meshcore/pkg/configclient"
	"github.com/sidusmesh/meshcore/pkg/meshpdu"
	"github.com/sidusmesh/meshcore/pkg/provisioning"
	"github.com/sidusmesh/meshcore/pkg/sidus"
	"github.com/sidusmesh/meshcore/pkg/transport"
)

// defaultTTL is a small fixed default rather than a per-call knob;
// callers that need a different TTL use SendVendorCommandTTL.
const defaultTTL = 7

// provStepTimeout bounds each provisioning step: if the expected PDU
// does not arrive within it, the attempt fails with a timeout. The
// timer re-arms on every inbound provisioning PDU and cancels on any
// terminal state.
const provStepTimeout = 30 * time.Second

// configResponseTimeout bounds each configuration step's wait for its
// Status response before the step's PDUs are resent.
const configResponseTimeout = 1500 * time.Millisecond

// StatusUpdate is delivered to a Session's OnStatus callback whenever an
// inbound Sidus status payload parses successfully.
type StatusUpdate struct {
	Src     uint16
	Command sidus.Command
}

// Session owns one GATT connection's worth of per-peer state: the
// transport handle, an in-flight provisioning attempt (if any), and the
// Config client sequence run immediately after a fresh proxy session is
// established for a provisioned device. It draws all cryptographic and
// sequencing state from a shared MeshProtocol.
//
// The mutex only covers the handoff between the notify path and the
// step-timeout timers; everything else still assumes the single
// cooperative caller the engine is designed around.
type Session struct {
	log  logging.LeveledLogger
	mp   *MeshProtocol
	gatt transport.Session
	ttl  uint8

	mu          sync.Mutex
	peerUnicast uint16 // 0 until known (unprovisioned peer not yet assigned an address)
	filterSent  bool

	provisioning *provisioning.Session
	provTimer    *time.Timer

	config   *configclient.Client
	cfgTimer *time.Timer

	OnStatus      func(StatusUpdate)
	OnProvisioned func(*provisioning.Result, error)
	OnConfigured  func(error)
}

// NewSession wraps an already-open transport.Session. peerUnicast is 0
// for a not-yet-provisioned peer.
func NewSession(mp *MeshProtocol, gatt transport.Session, peerUnicast uint16, loggerFactory logging.LoggerFactory) *Session {
	var log logging.LeveledLogger
	if loggerFactory != nil {
		log = loggerFactory.NewLogger("meshproto.session")
	} else {
		log = logging.NewDefaultLoggerFactory().NewLogger("meshproto.session")
	}
	s := &Session{log: log, mp: mp, gatt: gatt, ttl: defaultTTL, peerUnicast: peerUnicast}
	gatt.OnNotify(s.handleNotify)
	return s
}

// SendFilterSetup writes the Proxy Filter setup control PDU. Must
// complete before any access-layer message on this session.
func (s *Session) SendFilterSetup(ctx context.Context) error {
	out, err := s.mp.Outbound()
	if err != nil {
		return err
	}
	seq, err := s.mp.Sequence().Next()
	if err != nil {
		return err
	}
	pdu, err := meshpdu.BuildProxyFilterSetupPDU(out.NID, out.PrivacyKey, out.EncKey, out.IVIndex, seq, out.Src)
	if err != nil {
		return err
	}
	if err := s.gatt.Write(ctx, pdu); err != nil {
		return err
	}
	s.mu.Lock()
	s.filterSent = true
	s.mu.Unlock()
	return nil
}

// SendVendorCommand builds and writes a Sidus application-key vendor
// command to the connected device at the default TTL.
func (s *Session) SendVendorCommand(ctx context.Context, cmd sidus.Command) error {
	return s.SendVendorCommandTTL(ctx, cmd, s.ttl)
}

func (s *Session) SendVendorCommandTTL(ctx context.Context, cmd sidus.Command, ttl uint8) error {
	s.mu.Lock()
	filterSent, dst := s.filterSent, s.peerUnicast
	s.mu.Unlock()
	if !filterSent {
		return ErrFilterNotReady
	}
	if dst == 0 {
		return ErrNotProvisioned
	}
	out, err := s.mp.Outbound()
	if err != nil {
		return err
	}
	seq, err := s.mp.Sequence().Next()
	if err != nil {
		return err
	}
	payload, err := sidus.Encode(cmd)
	if err != nil {
		return err
	}
	pdu, err := out.BuildVendorCommand(s.mp.AppKey(), s.mp.AID(), seq, dst, ttl, payload[:])
	if err != nil {
		return err
	}
	return s.gatt.Write(ctx, pdu)
}

// StartProvisioning begins a provisioning attempt against the currently
// unprovisioned peer this Session is connected to (Role ==
// RoleProvisioning at the transport layer), assigning it assignUnicast
// once complete. The 30s step timer starts with the Invite write.
func (s *Session) StartProvisioning(ctx context.Context, attention uint8, assignUnicast uint16) error {
	s.mu.Lock()
	if s.provisioning != nil {
		s.mu.Unlock()
		return ErrAlreadyProvisioning
	}
	sess, err := provisioning.NewSession(provisioning.Config{
		NetworkKey:  s.mp.Store().NetworkKey(),
		NetKeyIndex: s.mp.Store().NetKeyIndex(),
		IVIndex:     s.mp.Store().IVIndex(),
		Unicast:     assignUnicast,
	})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.provisioning = sess
	s.mu.Unlock()

	invite, err := sess.Start(attention)
	if err != nil {
		return err
	}
	if err := s.writeProvisioningPDU(ctx, invite); err != nil {
		return err
	}
	s.mu.Lock()
	s.armProvTimerLocked()
	s.mu.Unlock()
	return nil
}

// CancelProvisioning aborts an in-flight provisioning attempt: the step
// timer is cancelled, the transport session is torn down, and the
// failure is reported exactly once. A session with no attempt in flight
// is left untouched.
func (s *Session) CancelProvisioning() {
	s.mu.Lock()
	sess := s.provisioning
	s.provisioning = nil
	s.stopProvTimerLocked()
	s.mu.Unlock()
	if sess == nil {
		return
	}
	err := sess.Cancel()
	if closeErr := s.gatt.Close(); closeErr != nil {
		s.log.Warnf("meshproto: close during cancel: %v", closeErr)
	}
	if s.OnProvisioned != nil {
		s.OnProvisioned(nil, err)
	}
}

func (s *Session) armProvTimerLocked() {
	s.stopProvTimerLocked()
	s.provTimer = time.AfterFunc(provStepTimeout, s.onProvTimeout)
}

func (s *Session) stopProvTimerLocked() {
	if s.provTimer != nil {
		s.provTimer.Stop()
		s.provTimer = nil
	}
}

func (s *Session) onProvTimeout() {
	s.mu.Lock()
	sess := s.provisioning
	s.provisioning = nil
	s.provTimer = nil
	s.mu.Unlock()
	if sess == nil {
		return
	}
	err := sess.Timeout()
	if s.OnProvisioned != nil {
		s.OnProvisioned(nil, err)
	}
}

func (s *Session) writeProvisioningPDU(ctx context.Context, pdu []byte) error {
	return s.gatt.Write(ctx, meshpdu.BuildProxyPDU(meshpdu.ProxyTypeProvisioningPDU, pdu))
}

// handleNotify is the transport.NotifyFunc registered on the GATT
// session: it dispatches a raw Proxy PDU to the provisioning state
// machine, the Config client, or the ordinary access-layer decode path.
func (s *Session) handleNotify(raw []byte) {
	_, msgType, payload, err := meshpdu.ParseProxyPDU(raw)
	if err != nil {
		s.log.Warnf("meshproto: dropping malformed proxy PDU: %v", err)
		return
	}

	if msgType == meshpdu.ProxyTypeProvisioningPDU {
		if err := s.handleProvisioningPDU(payload); err != nil {
			s.log.Warnf("meshproto: provisioning PDU handling error: %v", err)
		}
		return
	}

	in, err := s.mp.Inbound()
	if err != nil {
		s.log.Errorf("meshproto: derive inbound keys: %v", err)
		return
	}
	result, err := in.Decode(raw, s.lookupAppKey, s.lookupDeviceKey)
	if err != nil {
		s.log.Warnf("meshproto: dropping undecodable proxy PDU: %v", err)
		return
	}
	if result.Access != nil {
		s.handleAccessMessage(*result.Access)
	}
	// Control messages (Filter Status and friends) are not surfaced
	// upward.
}

func (s *Session) lookupAppKey(aid byte) ([]byte, bool) {
	if aid != s.mp.AID() {
		return nil, false
	}
	return s.mp.AppKey(), true
}

func (s *Session) lookupDeviceKey(src uint16) ([]byte, bool) {
	return s.mp.Store().DeviceKey(src)
}

func (s *Session) handleAccessMessage(msg meshpdu.AccessMessage) {
	if msg.AKF {
		s.handleVendorStatus(msg)
		return
	}
	s.mu.Lock()
	cfg := s.config
	s.mu.Unlock()
	if cfg == nil {
		return
	}
	next, done, err := cfg.HandleResponse(msg.Payload)
	if err != nil {
		s.mu.Lock()
		s.stopCfgTimerLocked()
		s.config = nil
		s.mu.Unlock()
		if s.OnConfigured != nil {
			s.OnConfigured(err)
		}
		return
	}
	if len(next) == 0 && !done {
		// Not this step's response; keep the current timer running.
		return
	}
	s.mu.Lock()
	s.stopCfgTimerLocked()
	if done {
		s.config = nil
	}
	s.mu.Unlock()
	for _, pdu := range next {
		if err := s.gatt.Write(context.Background(), pdu); err != nil {
			s.log.Errorf("meshproto: config client write failed: %v", err)
		}
	}
	if done {
		if s.OnConfigured != nil {
			s.OnConfigured(nil)
		}
		return
	}
	s.mu.Lock()
	s.armCfgTimerLocked()
	s.mu.Unlock()
}

func (s *Session) handleVendorStatus(msg meshpdu.AccessMessage) {
	sidusPayload, ok := meshpdu.ParseVendorAccess(msg.Payload)
	if !ok || len(sidusPayload) < sidus.PayloadSize {
		return
	}
	var payload [sidus.PayloadSize]byte
	copy(payload[:], sidusPayload)
	cmd, err := sidus.Parse(payload)
	if err != nil {
		// Variant payloads (version responses and the like) fail the
		// checksum and are discarded without error.
		return
	}
	if s.OnStatus != nil {
		s.OnStatus(StatusUpdate{Src: msg.Src, Command: cmd})
	}
}

// handleProvisioningPDU dispatches an inbound provisioning PDU to the
// step the active attempt currently expects. Start and PublicKey go out
// back to back from the provisioner side without an intervening inbound
// PDU, so both are chained off the Capabilities receipt. The step timer
// stops on receipt and re-arms after each non-terminal reply.
func (s *Session) handleProvisioningPDU(pdu []byte) error {
	s.mu.Lock()
	sess := s.provisioning
	s.stopProvTimerLocked()
	s.mu.Unlock()
	if sess == nil {
		return ErrNoProvisioningInFlight
	}
	ctx := context.Background()

	rearm := func() {
		s.mu.Lock()
		if s.provisioning != nil {
			s.armProvTimerLocked()
		}
		s.mu.Unlock()
	}

	switch sess.State() {
	case provisioning.StateInviteSent:
		start, err := sess.HandleCapabilities(pdu)
		if err != nil {
			return s.failProvisioning(err)
		}
		if err := s.writeProvisioningPDU(ctx, start); err != nil {
			return err
		}
		pubKey, err := sess.BuildPublicKeyPDU()
		if err != nil {
			return s.failProvisioning(err)
		}
		if err := s.writeProvisioningPDU(ctx, pubKey); err != nil {
			return err
		}
		rearm()
		return nil

	case provisioning.StatePublicKeySent:
		confirmation, err := sess.HandlePublicKey(pdu)
		if err != nil {
			return s.failProvisioning(err)
		}
		if err := s.writeProvisioningPDU(ctx, confirmation); err != nil {
			return err
		}
		rearm()
		return nil

	case provisioning.StateConfirmationSent:
		random, err := sess.HandleConfirmation(pdu)
		if err != nil {
			return s.failProvisioning(err)
		}
		if err := s.writeProvisioningPDU(ctx, random); err != nil {
			return err
		}
		rearm()
		return nil

	case provisioning.StateRandomSent:
		data, err := sess.HandleRandom(pdu)
		if err != nil {
			return s.failProvisioning(err)
		}
		if err := s.writeProvisioningPDU(ctx, data); err != nil {
			return err
		}
		rearm()
		return nil

	case provisioning.StateDataSent:
		result, err := sess.HandleComplete(pdu)
		s.mu.Lock()
		s.provisioning = nil
		if err == nil {
			s.peerUnicast = result.UnicastAddress
		}
		s.mu.Unlock()
		if err == nil {
			s.mp.Store().StoreDeviceKey(result.UnicastAddress, result.DeviceKey)
		}
		if s.OnProvisioned != nil {
			s.OnProvisioned(result, err)
		}
		return err

	default:
		return fmt.Errorf("meshproto: unexpected provisioning PDU in state %v", sess.State())
	}
}

func (s *Session) failProvisioning(err error) error {
	s.mu.Lock()
	s.provisioning = nil
	s.stopProvTimerLocked()
	s.mu.Unlock()
	if s.OnProvisioned != nil {
		s.OnProvisioned(nil, err)
	}
	return err
}

// StartConfiguration runs the post-provisioning AppKey Add / Model App
// Bind sequence against the now-provisioned peer. Must be called after
// SendFilterSetup. Each step waits configResponseTimeout for its Status
// response and resends on expiry until the Config client gives up.
func (s *Session) StartConfiguration(ctx context.Context) error {
	s.mu.Lock()
	dst, filterSent := s.peerUnicast, s.filterSent
	s.mu.Unlock()
	if dst == 0 {
		return ErrNotProvisioned
	}
	if !filterSent {
		return ErrFilterNotReady
	}
	deviceKey, ok := s.mp.Store().DeviceKey(dst)
	if !ok {
		return ErrNotProvisioned
	}
	out, err := s.mp.Outbound()
	if err != nil {
		return err
	}
	cfg := configclient.NewClient(configclient.Config{
		Outbound:    out,
		Sequence:    s.mp.Sequence(),
		DeviceKey:   deviceKey,
		Dst:         dst,
		TTL:         s.ttl,
		NetKeyIndex: s.mp.Store().NetKeyIndex(),
		AppKeyIndex: s.mp.Store().AppKeyIndex(),
		AppKey:      s.mp.AppKey(),
	})
	pdus, err := cfg.Start()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
	for _, pdu := range pdus {
		if err := s.gatt.Write(ctx, pdu); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.armCfgTimerLocked()
	s.mu.Unlock()
	return nil
}

func (s *Session) armCfgTimerLocked() {
	s.stopCfgTimerLocked()
	s.cfgTimer = time.AfterFunc(configResponseTimeout, s.onCfgTimeout)
}

func (s *Session) stopCfgTimerLocked() {
	if s.cfgTimer != nil {
		s.cfgTimer.Stop()
		s.cfgTimer = nil
	}
}

func (s *Session) onCfgTimeout() {
	s.mu.Lock()
	cfg := s.config
	s.cfgTimer = nil
	s.mu.Unlock()
	if cfg == nil {
		return
	}
	pdus, err := cfg.Timeout()
	if err != nil {
		s.mu.Lock()
		s.config = nil
		s.mu.Unlock()
		// The session stays usable for direct commands; a bind failure
		// is a warning, not a disconnect.
		if s.OnConfigured != nil {
			s.OnConfigured(err)
		}
		return
	}
	for _, pdu := range pdus {
		if writeErr := s.gatt.Write(context.Background(), pdu); writeErr != nil {
			s.log.Errorf("meshproto: config retry write failed: %v", writeErr)
		}
	}
	s.mu.Lock()
	if s.config != nil {
		s.armCfgTimerLocked()
	}
	s.mu.Unlock()
}

// Close tears down the underlying transport session and stops any
// running step timers.
func (s *Session) Close() error {
	s.mu.Lock()
	s.stopProvTimerLocked()
	s.stopCfgTimerLocked()
	s.mu.Unlock()
	return s.gatt.Close()
}
