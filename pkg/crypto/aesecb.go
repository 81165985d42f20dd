package crypto

import "crypto/aes"

// aesECBEncryptBlock encrypts a single 16-byte block with AES-128 in ECB
// mode, i.e. one raw cipher.Block.Encrypt call with no chaining. This is
// the e() primitive the mesh key derivation functions and the network
// PDU privacy obfuscation (PECB) are both built from.
func aesECBEncryptBlock(key, block []byte) ([]byte, error) {
	if len(block) != aesBlockSize {
		return nil, ErrAESCCMInvalidKeySize
	}
	b, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, aesBlockSize)
	b.Encrypt(out, block)
	return out, nil
}

// AESECBEncrypt encrypts a single 16-byte block with a 16-byte AES-128
// key. Exported for the network PDU PECB obfuscation step, which needs
// the raw block cipher output to XOR against the header.
func AESECBEncrypt(key, block []byte) ([]byte, error) {
	if len(key) != AESCCMKeySize {
		return nil, ErrAESCCMInvalidKeySize
	}
	return aesECBEncryptBlock(key, block)
}
