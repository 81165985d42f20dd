package meshpdu

import (
	"encoding/binary"

	"github.com/sidusmesh/meshcore/pkg/crypto"
)

// headerSize is the 6-byte obfuscated network header: (ctl<<7|ttl),
// seq(3B be), src(2B be).
const headerSize = 6

// EncryptNetworkPayload encrypts the network-layer plaintext
// (dst || lower_transport_pdu) with the EncryptionKey and NetworkNonce,
// returning ciphertext || NetMIC. micSize is crypto.MIC4 for data PDUs
// or crypto.MIC8 for control (CTL=1) PDUs.
func EncryptNetworkPayload(encKey []byte, nonce [13]byte, plaintext []byte, micSize int) ([]byte, error) {
	return crypto.AESCCMEncrypt(encKey, nonce[:], plaintext, micSize)
}

// DecryptNetworkPayload is the inverse of EncryptNetworkPayload.
func DecryptNetworkPayload(encKey []byte, nonce [13]byte, encrypted []byte, micSize int) ([]byte, error) {
	pt, err := crypto.AESCCMDecrypt(encKey, nonce[:], encrypted, micSize)
	if err != nil {
		return nil, ErrCryptoFailure
	}
	return pt, nil
}

// pecb computes the 16-byte privacy obfuscation keystream block:
// AES-ECB(PrivacyKey, 0x0000000000 || ivIndex(4B be) || privacyRandom),
// where privacyRandom is the first 7 bytes of the encrypted network
// payload.
func pecb(privacyKey []byte, ivIndex uint32, encryptedNetworkPayload []byte) ([16]byte, error) {
	var in [16]byte
	binary.BigEndian.PutUint32(in[5:9], ivIndex)
	privacyRandom := encryptedNetworkPayload
	if len(privacyRandom) > 7 {
		privacyRandom = privacyRandom[:7]
	}
	copy(in[9:], privacyRandom)
	out, err := crypto.AESECBEncrypt(privacyKey, in[:])
	if err != nil {
		return [16]byte{}, err
	}
	var mask [16]byte
	copy(mask[:], out)
	return mask, nil
}

// ObfuscateHeader XORs the plaintext 6-byte network header
// ((ctl<<7|ttl), seq(3B), src(2B)) with PECB[0:6], self-inverse given
// the same PrivacyKey/IVIndex/encrypted payload prefix.
func ObfuscateHeader(privacyKey []byte, ivIndex uint32, encryptedNetworkPayload []byte, ctl bool, ttl uint8, seq uint32, src uint16) ([headerSize]byte, error) {
	var plain [headerSize]byte
	plain[0] = ctlTTL(ctl, ttl)
	putUint24(plain[1:4], seq)
	binary.BigEndian.PutUint16(plain[4:6], src)

	mask, err := pecb(privacyKey, ivIndex, encryptedNetworkPayload)
	if err != nil {
		return [headerSize]byte{}, err
	}
	var out [headerSize]byte
	for i := range out {
		out[i] = plain[i] ^ mask[i]
	}
	return out, nil
}

// DeobfuscateHeader recovers the plaintext header from an obfuscated one
// using the same PECB inputs; XOR is self-inverse so this calls the same
// keystream computation as ObfuscateHeader.
func DeobfuscateHeader(privacyKey []byte, ivIndex uint32, encryptedNetworkPayload []byte, obfuscated [headerSize]byte) (ctl bool, ttl uint8, seq uint32, src uint16, err error) {
	mask, err := pecb(privacyKey, ivIndex, encryptedNetworkPayload)
	if err != nil {
		return false, 0, 0, 0, err
	}
	var plain [headerSize]byte
	for i := range plain {
		plain[i] = obfuscated[i] ^ mask[i]
	}
	ctl = plain[0]&0x80 != 0
	ttl = plain[0] & 0x7F
	seq = getUint24(plain[1:4])
	src = binary.BigEndian.Uint16(plain[4:6])
	return ctl, ttl, seq, src, nil
}

// BuildNetworkPDU assembles the full network PDU:
// (ivi<<7|nid) || obfuscated_header(6) || encrypted_payload.
// ivi is the least significant bit of ivIndex, not bit 31.
func BuildNetworkPDU(nid byte, ivIndex uint32, obfuscatedHeader [headerSize]byte, encryptedPayload []byte) []byte {
	ivi := byte(ivIndex & 0x01)
	out := make([]byte, 0, 1+headerSize+len(encryptedPayload))
	out = append(out, (ivi<<7)|(nid&0x7F))
	out = append(out, obfuscatedHeader[:]...)
	out = append(out, encryptedPayload...)
	return out
}

// ParseNetworkPDU splits a raw network PDU into its NID byte, obfuscated
// header, and encrypted payload. It does not decrypt or deobfuscate.
func ParseNetworkPDU(pdu []byte) (nid byte, obfuscatedHeader [headerSize]byte, encryptedPayload []byte, err error) {
	if len(pdu) < 1+headerSize+crypto.MIC4 {
		return 0, obfuscatedHeader, nil, ErrMalformedPdu
	}
	nid = pdu[0] & 0x7F
	copy(obfuscatedHeader[:], pdu[1:1+headerSize])
	encryptedPayload = pdu[1+headerSize:]
	return nid, obfuscatedHeader, encryptedPayload, nil
}
