package crypto

import (
	"bytes"
	"crypto/elliptic"
	"encoding/hex"
	"math/big"
	"testing"
)

// ECDH test vectors from RFC 5903 Section 8.1 "256-Bit Random ECP Group"
// https://datatracker.ietf.org/doc/html/rfc5903#section-8.1
var ecdhP256TestVectors = []struct {
	name         string
	privateKeyA  string // Party A's private key (hex)
	publicKeyB   string // Party B's public key, uncompressed (hex)
	sharedSecret string // Expected shared secret (hex) - x-coordinate of shared point
}{
	{
		name:        "RFC5903_P256",
		privateKeyA: "c88f01f510d9ac3f70a292daa2316de544e9aab8afe84049c62a9c57862d1433",
		publicKeyB: "04" +
			"d12dfb5289c8d4f81208b70270398c342296970a0bccb74c736fc7554494bf63" +
			"56fbf3ca366cc23e8157854c13c58d6aac23f046ada30f8353e74f33039872ab",
		sharedSecret: "d6840f6b42f6edafd13116e0e12565202fef8e9ece7dce03812464d04b9442de",
	},
}

func TestP256GenerateKeyPair(t *testing.T) {
	kp, err := P256GenerateKeyPair()
	if err != nil {
		t.Fatalf("P256GenerateKeyPair failed: %v", err)
	}

	priv := kp.PrivateKey()
	if len(priv) != P256GroupSizeBytes {
		t.Errorf("private key length = %d, want %d", len(priv), P256GroupSizeBytes)
	}

	pub := kp.PublicKey()
	if len(pub) != P256PublicKeySizeBytes {
		t.Errorf("public key length = %d, want %d", len(pub), P256PublicKeySizeBytes)
	}
	if pub[0] != 0x04 {
		t.Errorf("public key prefix = 0x%02x, want 0x04", pub[0])
	}

	if err := P256ValidatePublicKey(pub); err != nil {
		t.Errorf("generated public key validation failed: %v", err)
	}
}

func TestP256KeyPairFromPrivateKey(t *testing.T) {
	original, err := P256GenerateKeyPair()
	if err != nil {
		t.Fatalf("P256GenerateKeyPair failed: %v", err)
	}

	restored, err := P256KeyPairFromPrivateKey(original.PrivateKey())
	if err != nil {
		t.Fatalf("P256KeyPairFromPrivateKey failed: %v", err)
	}

	if !bytes.Equal(original.PublicKey(), restored.PublicKey()) {
		t.Error("restored public key does not match original")
	}
}

func TestP256ECDH(t *testing.T) {
	for _, tc := range ecdhP256TestVectors {
		t.Run(tc.name, func(t *testing.T) {
			privA, err := hex.DecodeString(tc.privateKeyA)
			if err != nil {
				t.Fatalf("failed to decode privateKeyA: %v", err)
			}

			pubB, err := hex.DecodeString(tc.publicKeyB)
			if err != nil {
				t.Fatalf("failed to decode publicKeyB: %v", err)
			}

			expected, err := hex.DecodeString(tc.sharedSecret)
			if err != nil {
				t.Fatalf("failed to decode expected shared secret: %v", err)
			}

			kpA, err := P256KeyPairFromPrivateKey(privA)
			if err != nil {
				t.Fatalf("failed to create key pair A: %v", err)
			}

			secret, err := P256ECDH(kpA, pubB)
			if err != nil {
				t.Fatalf("P256ECDH failed: %v", err)
			}

			if !bytes.Equal(secret, expected) {
				t.Errorf("shared secret mismatch\ngot:  %x\nwant: %x", secret, expected)
			}
		})
	}
}

func TestP256ECDH_Symmetric(t *testing.T) {
	kpA, err := P256GenerateKeyPair()
	if err != nil {
		t.Fatalf("failed to generate key pair A: %v", err)
	}

	kpB, err := P256GenerateKeyPair()
	if err != nil {
		t.Fatalf("failed to generate key pair B: %v", err)
	}

	secretAB, err := P256ECDH(kpA, kpB.PublicKey())
	if err != nil {
		t.Fatalf("ECDH(A, pubB) failed: %v", err)
	}

	secretBA, err := P256ECDH(kpB, kpA.PublicKey())
	if err != nil {
		t.Fatalf("ECDH(B, pubA) failed: %v", err)
	}

	if !bytes.Equal(secretAB, secretBA) {
		t.Errorf("ECDH is not symmetric\nA->B: %x\nB->A: %x", secretAB, secretBA)
	}

	if len(secretAB) != P256GroupSizeBytes {
		t.Errorf("shared secret length = %d, want %d", len(secretAB), P256GroupSizeBytes)
	}
}

func TestP256PublicKeyFromCompressed(t *testing.T) {
	kp, err := P256GenerateKeyPair()
	if err != nil {
		t.Fatalf("P256GenerateKeyPair failed: %v", err)
	}

	original := kp.PublicKey()
	x := new(big.Int).SetBytes(original[1:33])
	y := new(big.Int).SetBytes(original[33:65])
	compressed := elliptic.MarshalCompressed(elliptic.P256(), x, y)

	decompressed, err := P256PublicKeyFromCompressed(compressed)
	if err != nil {
		t.Fatalf("P256PublicKeyFromCompressed failed: %v", err)
	}

	if !bytes.Equal(original, decompressed) {
		t.Errorf("decompressed key mismatch\ngot:  %x\nwant: %x", decompressed, original)
	}
}

func TestP256ValidatePublicKey(t *testing.T) {
	kp, err := P256GenerateKeyPair()
	if err != nil {
		t.Fatalf("P256GenerateKeyPair failed: %v", err)
	}
	if err := P256ValidatePublicKey(kp.PublicKey()); err != nil {
		t.Errorf("valid public key rejected: %v", err)
	}

	if err := P256ValidatePublicKey(make([]byte, 32)); err == nil {
		t.Error("expected error for wrong length key")
	}

	badPrefix := make([]byte, P256PublicKeySizeBytes)
	badPrefix[0] = 0x05
	if err := P256ValidatePublicKey(badPrefix); err == nil {
		t.Error("expected error for wrong prefix")
	}

	notOnCurve := make([]byte, P256PublicKeySizeBytes)
	notOnCurve[0] = 0x04
	notOnCurve[1] = 0x01
	notOnCurve[33] = 0x01
	if err := P256ValidatePublicKey(notOnCurve); err == nil {
		t.Error("expected error for point not on curve")
	}
}

func TestP256Constants(t *testing.T) {
	if P256GroupSizeBytes != 32 {
		t.Errorf("P256GroupSizeBytes = %d, want 32", P256GroupSizeBytes)
	}
	if P256PublicKeySizeBytes != 65 {
		t.Errorf("P256PublicKeySizeBytes = %d, want 65", P256PublicKeySizeBytes)
	}
	if P256CompressedPublicKeySizeBytes != 33 {
		t.Errorf("P256CompressedPublicKeySizeBytes = %d, want 33", P256CompressedPublicKeySizeBytes)
	}
}

func BenchmarkP256GenerateKeyPair(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = P256GenerateKeyPair()
	}
}

func BenchmarkP256ECDH(b *testing.B) {
	kpA, _ := P256GenerateKeyPair()
	kpB, _ := P256GenerateKeyPair()
	pubB := kpB.PublicKey()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = P256ECDH(kpA, pubB)
	}
}
