package sidus

// VendorOpcode is the 3-byte vendor access opcode for Telink vendor ID
// 0x0211 (company ID bytes reversed into the opcode per the mesh access
// layer's vendor opcode encoding), followed by the Sidus sub-opcode.
var VendorOpcode = [3]byte{0xC0, 0x11, 0x02}

// SubOpcode is the single-byte Sidus sub-opcode carrying all light
// commands under the vendor opcode above.
const SubOpcode = 0x26

// FullOpcode is the complete 4-byte prefix the writer always emits:
// VendorOpcode || SubOpcode.
var FullOpcode = [4]byte{VendorOpcode[0], VendorOpcode[1], VendorOpcode[2], SubOpcode}
