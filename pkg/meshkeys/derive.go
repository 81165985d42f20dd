// Package meshkeys implements the network-layer key derivation functions
// (s1, k1, k2, k4) used to turn a NetworkKey or AppKey into the material
// the transport and network layers actually operate on: the NID/encryption
// key/privacy key triple for a network key, and the application key
// identifier (AID) for an application key.
//
// All of these functions are built on AES-CMAC-128; see crypto.AESCMAC.
package meshkeys

import (
	"encoding/binary"

	"github.com/sidusmesh/meshcore/pkg/crypto"
)

// s1 is the generic salt generation function: AES-CMAC with an
// all-zero 128-bit key.
func s1(m []byte) ([]byte, error) {
	return crypto.AESCMAC(make([]byte, crypto.AESCCMKeySize), m)
}

// k1 derives a 128-bit key from N using SALT as the AES-CMAC key and P
// as the message, then using that result as the key over P a second
// time: K1(N, SALT, P) = AES-CMAC_T(P), T = AES-CMAC_SALT(N).
func k1(n, salt, p []byte) ([]byte, error) {
	t, err := crypto.AESCMAC(salt, n)
	if err != nil {
		return nil, err
	}
	return crypto.AESCMAC(t, p)
}

// NetworkKeyMaterial holds the values derived from a 128-bit NetworkKey:
// the 7-bit NID used to tag network PDUs, the 128-bit encryption key used
// to encrypt and authenticate the network PDU payload, and the 128-bit privacy key used
// to obfuscate the network PDU header (PECB).
type NetworkKeyMaterial struct {
	NID        byte
	EncKey     []byte
	PrivacyKey []byte
}

var smk2Salt = []byte("smk2")
var smk4Salt = []byte("smk4")

// DeriveNetworkKeyMaterial implements k2(N, P) with P = 0x00, producing
// the NID/EncKey/PrivacyKey triple used by the network layer.
func DeriveNetworkKeyMaterial(networkKey []byte) (*NetworkKeyMaterial, error) {
	if len(networkKey) != crypto.AESCCMKeySize {
		return nil, ErrInvalidKeySize
	}

	salt, err := s1(smk2Salt)
	if err != nil {
		return nil, err
	}
	t, err := crypto.AESCMAC(salt, networkKey)
	if err != nil {
		return nil, err
	}

	p := []byte{0x00}
	t1, err := crypto.AESCMAC(t, append(append([]byte{}, p...), 0x01))
	if err != nil {
		return nil, err
	}
	t2, err := crypto.AESCMAC(t, append(append(append([]byte{}, t1...), p...), 0x02))
	if err != nil {
		return nil, err
	}
	t3, err := crypto.AESCMAC(t, append(append(append([]byte{}, t2...), p...), 0x03))
	if err != nil {
		return nil, err
	}

	return &NetworkKeyMaterial{
		NID:        t1[len(t1)-1] & 0x7F,
		EncKey:     t2,
		PrivacyKey: t3,
	}, nil
}

// DeriveAID implements k4(N), producing the 6-bit Application Key
// Identifier used to select an application key on receive.
func DeriveAID(appKey []byte) (byte, error) {
	if len(appKey) != crypto.AESCCMKeySize {
		return 0, ErrInvalidKeySize
	}

	salt, err := s1(smk4Salt)
	if err != nil {
		return 0, err
	}
	t, err := crypto.AESCMAC(salt, appKey)
	if err != nil {
		return 0, err
	}
	out, err := crypto.AESCMAC(t, append([]byte("id6"), 0x01))
	if err != nil {
		return 0, err
	}
	return out[len(out)-1] & 0x3F, nil
}

// K1 derives application-specific key material. Exposed directly because
// the provisioning session key derivation (confirmation key, session key,
// session nonce) reuses k1 with different salts/inputs than
// the network key material path above.
func K1(n, salt, p []byte) ([]byte, error) {
	return k1(n, salt, p)
}

// S1 is exported for the provisioning layer, which uses s1 to build its
// confirmation salt (from the confirmation inputs) and provisioning salt
// (from the confirmation salt and both random values).
func S1(m []byte) ([]byte, error) {
	return s1(m)
}

// DeviceKey derives the device key for a freshly provisioned node from
// the ECDH shared secret and the provisioning salt, per the provisioning
// state machine: DevKey = k1(ECDHSecret, ProvisioningSalt, "prdk").
func DeviceKey(ecdhSecret, provisioningSalt []byte) ([]byte, error) {
	return k1(ecdhSecret, provisioningSalt, []byte("prdk"))
}

// NetworkID derives the 64-bit Network ID advertised in mesh proxy/beacon
// service data, used by a provisioner to recognize which network a
// Proxy node belongs to before a connection is secured: k3(N).
func NetworkID(networkKey []byte) (uint64, error) {
	salt, err := s1([]byte("smk3"))
	if err != nil {
		return 0, err
	}
	t, err := crypto.AESCMAC(salt, networkKey)
	if err != nil {
		return 0, err
	}
	out, err := crypto.AESCMAC(t, append([]byte("id64"), 0x01))
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(out[8:16]), nil
}
