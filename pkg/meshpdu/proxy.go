package meshpdu

// ProxyMessageType is the 6-bit type field of a Proxy PDU header.
type ProxyMessageType byte

const (
	ProxyTypeNetworkPDU         ProxyMessageType = 0
	ProxyTypeMeshBeacon         ProxyMessageType = 1
	ProxyTypeProxyConfiguration ProxyMessageType = 2
	ProxyTypeProvisioningPDU    ProxyMessageType = 3
)

// SAR is the 2-bit segmentation-and-reassembly field of a Proxy PDU
// header. Only Complete is ever emitted by this engine; First/
// Continuation/Last are recognized on input but not reassembled.
type SAR byte

const (
	SARComplete     SAR = 0
	SARFirst        SAR = 1
	SARContinuation SAR = 2
	SARLast         SAR = 3
)

// BuildProxyPDU wraps a network PDU (or any other proxy payload, e.g. a
// provisioning PDU) in the 1-byte Proxy PDU header. The writer always
// emits SAR=complete and the normative type value 0x00 for network PDUs
// (both 0x00 and 0x01 are accepted on input).
func BuildProxyPDU(msgType ProxyMessageType, payload []byte) []byte {
	header := byte(SARComplete)<<6 | byte(msgType&0x3F)
	out := make([]byte, 0, 1+len(payload))
	out = append(out, header)
	out = append(out, payload...)
	return out
}

// ParseProxyPDU splits the Proxy PDU header into its SAR/type fields and
// the remaining payload.
func ParseProxyPDU(pdu []byte) (sar SAR, msgType ProxyMessageType, payload []byte, err error) {
	if len(pdu) < 1 {
		return 0, 0, nil, ErrMalformedPdu
	}
	sar = SAR(pdu[0] >> 6)
	msgType = ProxyMessageType(pdu[0] & 0x3F)
	return sar, msgType, pdu[1:], nil
}

// isNetworkPDUType accepts both observed proxy-header type values for a
// Network PDU: 0x00 (normative) and 0x01 (seen in the field).
func isNetworkPDUType(t ProxyMessageType) bool {
	return t == ProxyTypeNetworkPDU || t == 1
}

// BuildProxyFilterSetupPDU builds the control message that configures the
// proxy node's message filter: Set Filter Type, blacklist (accept all).
// This is a CTL=1 network PDU with DST=0x0000, TTL=0, NetMIC=8 bytes,
// wrapped in a Proxy Configuration PDU. Must be sent once per fresh
// GATT proxy session before any access-layer traffic.
func BuildProxyFilterSetupPDU(nid byte, privacyKey, encKey []byte, ivIndex uint32, seq uint32, src uint16) ([]byte, error) {
	const (
		opSetFilterType = 0x00
		filterBlacklist = 0x01
	)
	lowerTransport := []byte{opSetFilterType, filterBlacklist}

	plaintext := make([]byte, 0, 2+len(lowerTransport))
	plaintext = append(plaintext, 0x00, 0x00) // DST = 0x0000
	plaintext = append(plaintext, lowerTransport...)

	nonce := NetworkNonce(true, 0, seq, src, ivIndex)
	encrypted, err := EncryptNetworkPayload(encKey, nonce, plaintext, 8)
	if err != nil {
		return nil, err
	}

	obfHeader, err := ObfuscateHeader(privacyKey, ivIndex, encrypted, true, 0, seq, src)
	if err != nil {
		return nil, err
	}

	networkPDU := BuildNetworkPDU(nid, ivIndex, obfHeader, encrypted)
	return BuildProxyPDU(ProxyTypeProxyConfiguration, networkPDU), nil
}
