package meshpdu

// VendorOpcode is the 3-byte access-layer vendor opcode for Telink
// vendor ID 0x0211; the high nibble 0xC forces the 3-byte form.
var VendorOpcode = [3]byte{0xC0, 0x11, 0x02}

// SidusSubOpcode is the 1-byte Sidus vendor sub-opcode carried after the
// vendor opcode, or standalone in the wire variant some peer firmware
// uses.
const SidusSubOpcode = 0x26

// BuildVendorAccess frames a 10-byte Sidus payload behind the full
// 4-byte vendor opcode. The writer always emits this full form even
// though the parser accepts the shorter single-sub-opcode form too.
func BuildVendorAccess(sidusPayload []byte) []byte {
	out := make([]byte, 0, 4+len(sidusPayload))
	out = append(out, VendorOpcode[0], VendorOpcode[1], VendorOpcode[2], SidusSubOpcode)
	out = append(out, sidusPayload...)
	return out
}

// ParseVendorAccess extracts the Sidus payload from an access message,
// accepting both wire variants: the full 4-byte vendor opcode form and
// the bare 1-byte sub-opcode form. ok is false if the access message
// does not carry a recognized Sidus opcode at all.
func ParseVendorAccess(access []byte) (payload []byte, ok bool) {
	if len(access) >= 4 &&
		access[0] == VendorOpcode[0] && access[1] == VendorOpcode[1] &&
		access[2] == VendorOpcode[2] && access[3] == SidusSubOpcode {
		return access[4:], true
	}
	if len(access) >= 1 && access[0] == SidusSubOpcode {
		return access[1:], true
	}
	return nil, false
}

// BuildSIGAccess frames a standard SIG model message: a 1-, 2-, or
// 3-byte opcode followed by parameters, with no vendor prefix.
func BuildSIGAccess(opcode []byte, params []byte) []byte {
	out := make([]byte, 0, len(opcode)+len(params))
	out = append(out, opcode...)
	out = append(out, params...)
	return out
}
