package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// RFC 3610 test vectors from Section 8.
// https://datatracker.ietf.org/doc/html/rfc3610
//
// These exercise the general CCM construction (L=2, various tag sizes)
// independent of the fixed MIC4/MIC8 sizes the mesh layers use.
var rfc3610TestVectors = []struct {
	name       string
	key        string
	nonce      string
	aad        string
	plaintext  string
	ciphertext string
	tag        string
	tagSize    int
}{
	{
		name:       "RFC3610_Vector1",
		key:        "c0c1c2c3c4c5c6c7c8c9cacbcccdcecf",
		nonce:      "00000003020100a0a1a2a3a4a5",
		aad:        "0001020304050607",
		plaintext:  "08090a0b0c0d0e0f101112131415161718191a1b1c1d1e",
		ciphertext: "588c979a61c663d2f066d0c2c0f989806d5f6b61dac384",
		tag:        "17e8d12cfdf926e0",
		tagSize:    8,
	},
	{
		name:       "RFC3610_Vector2",
		key:        "c0c1c2c3c4c5c6c7c8c9cacbcccdcecf",
		nonce:      "00000004030201a0a1a2a3a4a5",
		aad:        "0001020304050607",
		plaintext:  "08090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
		ciphertext: "72c91a36e135f8cf291ca894085c87e3cc15c439c9e43a3b",
		tag:        "a091d56e10400916",
		tagSize:    8,
	},
	{
		name:       "RFC3610_Vector7",
		key:        "c0c1c2c3c4c5c6c7c8c9cacbcccdcecf",
		nonce:      "00000009080706a0a1a2a3a4a5",
		aad:        "0001020304050607",
		plaintext:  "08090a0b0c0d0e0f101112131415161718191a1b1c1d1e",
		ciphertext: "0135d1b2c95f41d5d1d4fec185d166b8094e999dfed96c",
		tag:        "048c56602c97acbb7490",
		tagSize:    10,
	},
}

func TestAESCCMConstants(t *testing.T) {
	if AESCCMKeySize != 16 {
		t.Errorf("AESCCMKeySize = %d, want 16", AESCCMKeySize)
	}
	if AESCCMNonceSize != 13 {
		t.Errorf("AESCCMNonceSize = %d, want 13", AESCCMNonceSize)
	}
	if MIC4 != 4 || MIC8 != 8 {
		t.Errorf("MIC4/MIC8 = %d/%d, want 4/8", MIC4, MIC8)
	}
}

func TestNewAESCCM(t *testing.T) {
	key := make([]byte, AESCCMKeySize)
	if _, err := NewAESCCM(key, MIC4); err != nil {
		t.Errorf("NewAESCCM(MIC4) failed: %v", err)
	}
	if _, err := NewAESCCM(key, MIC8); err != nil {
		t.Errorf("NewAESCCM(MIC8) failed: %v", err)
	}

	for _, badKeyLen := range []int{0, 15, 17, 32} {
		if _, err := NewAESCCM(make([]byte, badKeyLen), MIC4); err != ErrAESCCMInvalidKeySize {
			t.Errorf("NewAESCCM with %d-byte key: got %v, want ErrAESCCMInvalidKeySize", badKeyLen, err)
		}
	}

	if _, err := NewAESCCM(key, 5); err != ErrAESCCMInvalidTagSize {
		t.Errorf("NewAESCCM with odd tag size: got %v, want ErrAESCCMInvalidTagSize", err)
	}
}

func TestAESCCMRFC3610Vectors(t *testing.T) {
	for _, tv := range rfc3610TestVectors {
		t.Run(tv.name, func(t *testing.T) {
			key, _ := hex.DecodeString(tv.key)
			nonce, _ := hex.DecodeString(tv.nonce)
			aad, _ := hex.DecodeString(tv.aad)
			plaintext, _ := hex.DecodeString(tv.plaintext)
			wantCiphertext, _ := hex.DecodeString(tv.ciphertext)
			wantTag, _ := hex.DecodeString(tv.tag)

			ccm, err := NewAESCCMWithParams(key, len(nonce), tv.tagSize)
			if err != nil {
				t.Fatalf("NewAESCCMWithParams failed: %v", err)
			}

			out, err := ccm.Seal(nonce, plaintext, aad)
			if err != nil {
				t.Fatalf("Seal failed: %v", err)
			}
			gotCiphertext := out[:len(out)-tv.tagSize]
			gotTag := out[len(out)-tv.tagSize:]

			if !bytes.Equal(gotCiphertext, wantCiphertext) {
				t.Errorf("ciphertext = %x, want %x", gotCiphertext, wantCiphertext)
			}
			if !bytes.Equal(gotTag, wantTag) {
				t.Errorf("tag = %x, want %x", gotTag, wantTag)
			}

			plain, err := ccm.Open(nonce, out, aad)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			if !bytes.Equal(plain, plaintext) {
				t.Errorf("decrypted = %x, want %x", plain, plaintext)
			}
		})
	}
}

// TestAESCCMRoundTrip checks decrypt(encrypt(P)) == P for both MIC
// sizes used on the wire.
func TestAESCCMRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 16)
	nonce := bytes.Repeat([]byte{0x01}, 13)

	for _, tagSize := range []int{MIC4, MIC8} {
		plaintext := []byte("sidus mesh vendor payload")
		ct, err := AESCCMEncrypt(key, nonce, plaintext, tagSize)
		if err != nil {
			t.Fatalf("encrypt failed: %v", err)
		}
		if len(ct) != len(plaintext)+tagSize {
			t.Fatalf("ciphertext length = %d, want %d", len(ct), len(plaintext)+tagSize)
		}

		pt, err := AESCCMDecrypt(key, nonce, ct, tagSize)
		if err != nil {
			t.Fatalf("decrypt failed: %v", err)
		}
		if !bytes.Equal(pt, plaintext) {
			t.Fatalf("roundtrip mismatch: got %q, want %q", pt, plaintext)
		}

		// Flipping any single ciphertext or tag bit must fail authentication.
		for _, idx := range []int{0, len(ct) / 2, len(ct) - 1} {
			corrupt := append([]byte(nil), ct...)
			corrupt[idx] ^= 0x01
			if _, err := AESCCMDecrypt(key, nonce, corrupt, tagSize); err != ErrAESCCMAuthFailed {
				t.Errorf("corrupt byte %d: got %v, want ErrAESCCMAuthFailed", idx, err)
			}
		}
	}
}

func TestAESCCMShortCiphertext(t *testing.T) {
	key := make([]byte, AESCCMKeySize)
	ccm, err := NewAESCCM(key, MIC4)
	if err != nil {
		t.Fatalf("NewAESCCM failed: %v", err)
	}
	nonce := make([]byte, AESCCMNonceSize)
	if _, err := ccm.Open(nonce, make([]byte, MIC4-1), nil); err != ErrAESCCMCiphertextTooShort {
		t.Errorf("short ciphertext: got %v, want ErrAESCCMCiphertextTooShort", err)
	}
}
