// Package meshpdu implements the layered mesh PDU pipeline: access,
// upper transport, lower transport, network, and proxy framing for
// outbound messages (C4), and the inverse deobfuscate/decrypt/parse path
// for inbound proxy notifications (C5).
package meshpdu

import "encoding/binary"

const nonceSize = 13

// ApplicationNonce builds the 13-byte nonce used to encrypt/decrypt the
// access-layer (upper transport) payload of an application-key message.
func ApplicationNonce(seq uint32, src, dst uint16, ivIndex uint32) [nonceSize]byte {
	var n [nonceSize]byte
	n[0] = 0x01
	n[1] = 0x00
	putUint24(n[2:5], seq)
	binary.BigEndian.PutUint16(n[5:7], src)
	binary.BigEndian.PutUint16(n[7:9], dst)
	binary.BigEndian.PutUint32(n[9:13], ivIndex)
	return n
}

// NetworkNonce builds the 13-byte nonce used to encrypt/decrypt the
// network-layer payload.
func NetworkNonce(ctl bool, ttl uint8, seq uint32, src uint16, ivIndex uint32) [nonceSize]byte {
	var n [nonceSize]byte
	n[0] = 0x00
	n[1] = ctlTTL(ctl, ttl)
	putUint24(n[2:5], seq)
	binary.BigEndian.PutUint16(n[5:7], src)
	n[7] = 0x00
	n[8] = 0x00
	binary.BigEndian.PutUint32(n[9:13], ivIndex)
	return n
}

// DeviceNonce builds the 13-byte nonce used to encrypt/decrypt
// device-key (configuration) traffic.
func DeviceNonce(seq uint32, src, dst uint16, ivIndex uint32) [nonceSize]byte {
	var n [nonceSize]byte
	n[0] = 0x02
	n[1] = 0x00
	putUint24(n[2:5], seq)
	binary.BigEndian.PutUint16(n[5:7], src)
	binary.BigEndian.PutUint16(n[7:9], dst)
	binary.BigEndian.PutUint32(n[9:13], ivIndex)
	return n
}

func ctlTTL(ctl bool, ttl uint8) byte {
	var c byte
	if ctl {
		c = 0x80
	}
	return c | (ttl & 0x7F)
}

func putUint24(dst []byte, v uint32) {
	dst[0] = byte(v >> 16)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v)
}

func getUint24(src []byte) uint32 {
	return uint32(src[0])<<16 | uint32(src[1])<<8 | uint32(src[2])
}
