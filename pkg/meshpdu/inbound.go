package meshpdu

import "github.com/sidusmesh/meshcore/pkg/crypto"

// minProxyPDUSize is the shortest proxy PDU Decode will consider:
// anything under 15 bytes cannot carry a decryptable network payload.
const minProxyPDUSize = 15

// Inbound is the mirror of Outbound: the derived key material needed to
// deobfuscate and decrypt an incoming Proxy PDU (C5).
type Inbound struct {
	NID        byte
	EncKey     []byte
	PrivacyKey []byte
	IVIndex    uint32
}

// ControlMessage is delivered for a decrypted CTL=1 network PDU. The
// lower-transport control opcode is not interpreted further (e.g.
// Filter Status is not parsed).
type ControlMessage struct {
	Src               uint16
	LowerTransportPDU []byte
}

// AccessMessage is delivered for a decrypted application-key (AKF=1) or
// device-key (AKF=0) unsegmented data PDU.
type AccessMessage struct {
	Src     uint16
	Dst     uint16
	AKF     bool
	AID     byte
	Payload []byte
}

// DecodeResult is the tagged outcome of Decode: exactly one of Control
// or Access is non-nil on success.
type DecodeResult struct {
	Control *ControlMessage
	Access  *AccessMessage
}

// AppKeyLookup resolves an AID to the matching AppKey, returning ok=false
// if no key matches (this engine has exactly one AppKey, so in practice
// this simply compares AIDs; it is a function to keep Decode agnostic of
// how many application keys the host tracks).
type AppKeyLookup func(aid byte) (appKey []byte, ok bool)

// DeviceKeyLookup resolves a source unicast address to its DeviceKey.
type DeviceKeyLookup func(src uint16) (deviceKey []byte, ok bool)

// Decode runs the full C5 inbound pipeline on a single Proxy PDU
// delivered by the transport adapter's notify callback: deobfuscate,
// decrypt the network layer, and (for unsegmented data PDUs) decrypt the
// upper transport layer with the appropriate key.
//
// Segmented inbound access messages are not supported: Decode returns
// ErrSegmentedUnsupported rather than attempting reassembly.
func (in Inbound) Decode(raw []byte, appKeys AppKeyLookup, deviceKeys DeviceKeyLookup) (*DecodeResult, error) {
	if len(raw) < minProxyPDUSize {
		return nil, ErrMalformedPdu
	}

	_, msgType, payload, err := ParseProxyPDU(raw)
	if err != nil {
		return nil, err
	}
	// Proxy Configuration (type 2) network PDUs carry CTL=1 control
	// traffic (e.g. Filter Status) in the same network-PDU wire format
	// as ordinary data traffic; both network-PDU type variants (0x00 and
	// 0x01) are accepted here too.
	if !isNetworkPDUType(msgType) && msgType != ProxyTypeProxyConfiguration {
		return nil, ErrMalformedPdu
	}

	nidByte, obfHeader, encryptedPayload, err := ParseNetworkPDU(payload)
	if err != nil {
		return nil, err
	}
	// NID mismatch is not a rejection; decryption is still attempted
	// with our own derived key material.
	_ = nidByte

	ctl, ttl, seq, src, err := DeobfuscateHeader(in.PrivacyKey, in.IVIndex, encryptedPayload, obfHeader)
	if err != nil {
		return nil, err
	}
	_ = ttl

	micSize := crypto.MIC4
	if ctl {
		micSize = crypto.MIC8
	}
	netNonce := NetworkNonce(ctl, ttl, seq, src, in.IVIndex)
	plaintext, err := DecryptNetworkPayload(in.EncKey, netNonce, encryptedPayload, micSize)
	if err != nil {
		return nil, err
	}
	if len(plaintext) < 2 {
		return nil, ErrMalformedPdu
	}
	dst := uint16(plaintext[0])<<8 | uint16(plaintext[1])
	lowerTransportPDU := plaintext[2:]
	if len(lowerTransportPDU) < 1 {
		return nil, ErrMalformedPdu
	}

	if ctl {
		return &DecodeResult{Control: &ControlMessage{Src: src, LowerTransportPDU: lowerTransportPDU}}, nil
	}

	seg, akf, aid := ParseLowerTransportHeader(lowerTransportPDU[0])
	if seg {
		return nil, ErrSegmentedUnsupported
	}
	upperTransportPDU := lowerTransportPDU[1:]

	if akf {
		appKey, ok := appKeys(aid)
		if !ok {
			return nil, ErrMalformedPdu
		}
		appNonce := ApplicationNonce(seq, src, dst, in.IVIndex)
		access, err := DecryptUpperTransport(appKey, appNonce, upperTransportPDU, crypto.MIC4)
		if err != nil {
			return nil, err
		}
		return &DecodeResult{Access: &AccessMessage{Src: src, Dst: dst, AKF: true, AID: aid, Payload: access}}, nil
	}

	deviceKey, ok := deviceKeys(src)
	if !ok {
		return nil, ErrUnknownDeviceKey
	}
	devNonce := DeviceNonce(seq, src, dst, in.IVIndex)
	access, err := DecryptUpperTransport(deviceKey, devNonce, upperTransportPDU, crypto.MIC4)
	if err != nil {
		return nil, err
	}
	return &DecodeResult{Access: &AccessMessage{Src: src, Dst: dst, AKF: false, Payload: access}}, nil
}
