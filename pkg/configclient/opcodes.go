package configclient

import "fmt"

// Opcode is a SIG Configuration-model access opcode. AppKey Add is a
// 1-byte opcode; the Status opcodes are 2-byte.
type Opcode []byte

var (
	opAppKeyAdd      = Opcode{0x00}
	opAppKeyStatus   = Opcode{0x80, 0x03}
	opModelAppBind   = Opcode{0x80, 0x3D}
	opModelAppStatus = Opcode{0x80, 0x3E}
)

func matchesOpcode(access []byte, op Opcode) bool {
	if len(access) < len(op) {
		return false
	}
	for i, b := range op {
		if access[i] != b {
			return false
		}
	}
	return true
}

// vendorModelID is the 4-byte Sidus vendor model identifier: company ID
// 0x0211 followed by model ID 0x00C0, each field little-endian on the
// wire.
var vendorModelID = [4]byte{0x11, 0x02, 0xC0, 0x00}

// buildAppKeyAddParams packs netKeyIndex/appKeyIndex (12 bits each) into
// 3 little-endian-ish bytes per the Bluetooth Mesh convention: byte0 =
// low 8 bits of netKeyIndex, byte1 = (appKeyIndex low nibble)<<4 |
// (netKeyIndex high nibble), byte2 = high 8 bits of appKeyIndex.
// Followed by the 16-byte AppKey.
func buildAppKeyAddParams(netKeyIndex, appKeyIndex uint16, appKey []byte) ([]byte, error) {
	if len(appKey) != 16 {
		return nil, fmt.Errorf("configclient: app key must be 16 bytes, got %d", len(appKey))
	}
	if netKeyIndex > 0x0FFF || appKeyIndex > 0x0FFF {
		return nil, fmt.Errorf("configclient: key indexes must fit 12 bits")
	}
	params := make([]byte, 0, 19)
	params = append(params,
		byte(netKeyIndex),
		byte(appKeyIndex<<4)|byte(netKeyIndex>>8),
		byte(appKeyIndex>>4),
	)
	params = append(params, appKey...)
	return params, nil
}

// parseAppKeyStatus parses the AppKey Status response parameters
// (status byte followed by the same 3-byte packed key indexes).
func parseAppKeyStatus(params []byte) (status byte, err error) {
	if len(params) < 1 {
		return 0, fmt.Errorf("configclient: empty AppKey Status parameters")
	}
	return params[0], nil
}

// buildModelAppBindParams packs the element address, app key index, and
// the 4-byte vendor model ID, all little-endian.
func buildModelAppBindParams(elementAddr uint16, appKeyIndex uint16) []byte {
	params := make([]byte, 0, 8)
	params = append(params, byte(elementAddr), byte(elementAddr>>8))
	params = append(params, byte(appKeyIndex), byte(appKeyIndex>>8))
	params = append(params, vendorModelID[:]...)
	return params
}

// parseModelAppStatus parses the Model App Status response parameters.
func parseModelAppStatus(params []byte) (status byte, err error) {
	if len(params) < 1 {
		return 0, fmt.Errorf("configclient: empty Model App Status parameters")
	}
	return params[0], nil
}

// StatusSuccess is the single non-error status code.
const StatusSuccess = 0x00
