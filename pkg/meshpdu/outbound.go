package meshpdu

import "github.com/sidusmesh/meshcore/pkg/crypto"

// Outbound carries everything the network and privacy layers need to
// frame an outbound PDU for a given recipient: the derived key material
// (from meshkeys), the controller's own source address, and the current
// IVIndex. Seq is supplied per-call by the caller's sequence Counter so
// that segmented messages can reserve a contiguous block atomically.
type Outbound struct {
	NID        byte
	EncKey     []byte
	PrivacyKey []byte
	IVIndex    uint32
	Src        uint16
}

// frameNetworkAndProxy is the shared tail of every outbound path: encrypt
// the network payload, obfuscate the header, and wrap in a Proxy PDU.
func (o Outbound) frameNetworkAndProxy(ctl bool, ttl uint8, seq uint32, dst uint16, lowerTransportPDU []byte) ([]byte, error) {
	plaintext := make([]byte, 0, 2+len(lowerTransportPDU))
	plaintext = append(plaintext, byte(dst>>8), byte(dst))
	plaintext = append(plaintext, lowerTransportPDU...)

	micSize := crypto.MIC4
	if ctl {
		micSize = crypto.MIC8
	}

	nonce := NetworkNonce(ctl, ttl, seq, o.Src, o.IVIndex)
	encrypted, err := EncryptNetworkPayload(o.EncKey, nonce, plaintext, micSize)
	if err != nil {
		return nil, err
	}

	obfHeader, err := ObfuscateHeader(o.PrivacyKey, o.IVIndex, encrypted, ctl, ttl, seq, o.Src)
	if err != nil {
		return nil, err
	}

	networkPDU := BuildNetworkPDU(o.NID, o.IVIndex, obfHeader, encrypted)
	return BuildProxyPDU(ProxyTypeNetworkPDU, networkPDU), nil
}

// BuildVendorCommand builds the complete Proxy PDU for a Sidus
// application-key vendor command: access = vendor opcode || 10-byte
// Sidus payload, encrypted with AppKey/AppNonce, AKF=1.
func (o Outbound) BuildVendorCommand(appKey []byte, aid byte, seq uint32, dst uint16, ttl uint8, sidusPayload []byte) ([]byte, error) {
	access := BuildVendorAccess(sidusPayload)

	appNonce := ApplicationNonce(seq, o.Src, dst, o.IVIndex)
	upperTransport, err := EncryptUpperTransport(appKey, appNonce, access, crypto.MIC4)
	if err != nil {
		return nil, err
	}

	lowerTransport := BuildUnsegmentedLowerTransport(true, aid, upperTransport)
	return o.frameNetworkAndProxy(false, ttl, seq, dst, lowerTransport)
}

// BuildSIGMessage builds the complete Proxy PDU for a standard SIG model
// message. The access message (opcode || params) must be at most 11
// bytes so the encrypted PDU (access + 4-byte MIC) fits the unsegmented
// lower transport frame.
func (o Outbound) BuildSIGMessage(appKey []byte, aid byte, seq uint32, dst uint16, ttl uint8, opcode, params []byte) ([]byte, error) {
	access := BuildSIGAccess(opcode, params)
	if len(access) > 11 {
		return nil, ErrAccessTooLarge
	}

	appNonce := ApplicationNonce(seq, o.Src, dst, o.IVIndex)
	upperTransport, err := EncryptUpperTransport(appKey, appNonce, access, crypto.MIC4)
	if err != nil {
		return nil, err
	}

	lowerTransport := BuildUnsegmentedLowerTransport(true, aid, upperTransport)
	return o.frameNetworkAndProxy(false, ttl, seq, dst, lowerTransport)
}

// unsegmentedDeviceKeyCeiling is the largest encrypted access payload
// (upper transport PDU) that still fits an unsegmented lower transport
// PDU for device-key traffic.
const unsegmentedDeviceKeyCeiling = 15

// BuildDeviceKeyMessage builds the Proxy PDU(s) for a device-key
// (Config client) message. It reserves seqs.Reserve(n) sequence numbers
// atomically: 1 for an unsegmented message, or one per segment when the
// encrypted access payload exceeds unsegmentedDeviceKeyCeiling bytes.
// Returns one Proxy PDU per segment (or a single one-element slice for
// the unsegmented case), each consuming a distinct sequence number.
func (o Outbound) BuildDeviceKeyMessage(deviceKey []byte, seqs *Counter, dst uint16, ttl uint8, opcode, params []byte) ([][]byte, error) {
	access := BuildSIGAccess(opcode, params)

	// AES-CCM ciphertext length is a deterministic function of plaintext
	// length and tag size, independent of the nonce, so the segment
	// count (and hence how many sequence numbers this message needs) is
	// known before any sequence number is drawn, so the whole block can
	// be reserved in a single atomic call.
	encryptedLen := len(access) + crypto.MIC4
	n := 1
	if encryptedLen > unsegmentedDeviceKeyCeiling {
		n = (encryptedLen + segmentSize - 1) / segmentSize
	}

	seqBlock, err := seqs.Reserve(n)
	if err != nil {
		return nil, err
	}
	seq0 := seqBlock[0]

	deviceNonce := DeviceNonce(seq0, o.Src, dst, o.IVIndex)
	upperTransport, err := EncryptUpperTransport(deviceKey, deviceNonce, access, crypto.MIC4)
	if err != nil {
		return nil, err
	}

	if n == 1 {
		lowerTransport := BuildUnsegmentedLowerTransport(false, 0, upperTransport)
		pdu, err := o.frameNetworkAndProxy(false, ttl, seq0, dst, lowerTransport)
		if err != nil {
			return nil, err
		}
		return [][]byte{pdu}, nil
	}

	segments := SegmentDeviceKeyPayload(seq0, upperTransport)
	pdus := make([][]byte, 0, len(segments))
	for i, lowerTransport := range segments {
		pdu, err := o.frameNetworkAndProxy(false, ttl, seqBlock[i], dst, lowerTransport)
		if err != nil {
			return nil, err
		}
		pdus = append(pdus, pdu)
	}
	return pdus, nil
}
