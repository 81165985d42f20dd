package meshpdu

import "github.com/sidusmesh/meshcore/pkg/crypto"

// unsegmentedHeader builds the 1-byte unsegmented lower-transport
// header: SEG=0, AKF, AID (or opcode for control messages, handled by
// the caller as a raw byte).
func unsegmentedHeader(akf bool, aid byte) byte {
	var h byte
	if akf {
		h |= 0x40
	}
	return h | (aid & 0x3F)
}

// EncryptUpperTransport encrypts an access-layer payload into an upper
// transport PDU, used for both application-key (AppNonce) and
// device-key (DeviceNonce) traffic; the caller picks the nonce and key.
func EncryptUpperTransport(key []byte, nonce [13]byte, access []byte, micSize int) ([]byte, error) {
	return crypto.AESCCMEncrypt(key, nonce[:], access, micSize)
}

// DecryptUpperTransport is the inverse of EncryptUpperTransport.
func DecryptUpperTransport(key []byte, nonce [13]byte, encrypted []byte, micSize int) ([]byte, error) {
	pt, err := crypto.AESCCMDecrypt(key, nonce[:], encrypted, micSize)
	if err != nil {
		return nil, ErrCryptoFailure
	}
	return pt, nil
}

// BuildUnsegmentedLowerTransport prepends the 1-byte unsegmented header
// to an already-encrypted upper transport PDU.
func BuildUnsegmentedLowerTransport(akf bool, aid byte, upperTransportPDU []byte) []byte {
	out := make([]byte, 0, 1+len(upperTransportPDU))
	out = append(out, unsegmentedHeader(akf, aid))
	out = append(out, upperTransportPDU...)
	return out
}

// segmentSize is the maximum payload carried by one segment of a
// segmented device-key lower transport PDU.
const segmentSize = 12

// SegmentDeviceKeyPayload splits an encrypted device-key upper transport
// PDU into segmentSize-byte chunks, each prefixed with its 4-byte
// segmented lower-transport header. AKF is always false and AID always
// 0 for device-key traffic.
func SegmentDeviceKeyPayload(seq uint32, upperTransportPDU []byte) [][]byte {
	seqZero := seq & 0x1FFF
	n := (len(upperTransportPDU) + segmentSize - 1) / segmentSize
	if n == 0 {
		n = 1
	}
	segN := uint8(n - 1)

	segments := make([][]byte, 0, n)
	for segO := 0; segO < n; segO++ {
		start := segO * segmentSize
		end := start + segmentSize
		if end > len(upperTransportPDU) {
			end = len(upperTransportPDU)
		}
		chunk := upperTransportPDU[start:end]

		header := lowerTransportSegmentHeader(seqZero, uint8(segO), segN)
		seg := make([]byte, 0, len(header)+len(chunk))
		seg = append(seg, header[:]...)
		seg = append(seg, chunk...)
		segments = append(segments, seg)
	}
	return segments
}

// lowerTransportSegmentHeader builds the 4-byte segmented lower
// transport header for device-key traffic: SZMIC is always 0 (a 4-byte
// TransMIC matches an ASZMIC=0 nonce).
func lowerTransportSegmentHeader(seqZero uint32, segO, segN uint8) [4]byte {
	var h [4]byte
	h[0] = 0x80 // SEG=1, AKF=0, AID=0
	h[1] = byte((seqZero >> 6) & 0x7F)
	h[2] = byte(((seqZero & 0x3F) << 2) | uint32((segO>>3)&0x03))
	h[3] = byte(((segO & 0x07) << 5) | (segN & 0x1F))
	return h
}

// ParseLowerTransportHeader reports whether a lower transport PDU's
// first byte has the SEG bit set, and for unsegmented PDUs returns
// AKF/AID. Used by the inbound pipeline (C5).
func ParseLowerTransportHeader(b byte) (seg bool, akf bool, aid byte) {
	seg = b&0x80 != 0
	akf = b&0x40 != 0
	aid = b & 0x3F
	return seg, akf, aid
}
