package crypto

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
)

func TestGenerateKey(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	if signer.Address() == (common.Address{}) {
		t.Error("generated zero address")
	}

	// 32 bytes of private key
	if privHex := signer.PrivateKeyHex(); len(privHex) != 64 {
		t.Errorf("private key hex length = %d, want 64", len(privHex))
	}
}

func TestFromPrivateKeyHex(t *testing.T) {
	signer1, _ := GenerateKey()
	privHex := signer1.PrivateKeyHex()

	for _, in := range []string{privHex, "0x" + privHex} {
		signer2, err := FromPrivateKeyHex(in)
		if err != nil {
			t.Fatalf("failed to load key %q: %v", in, err)
		}
		if signer2.Address() != signer1.Address() {
			t.Errorf("address = %s, want %s", signer2.Address().Hex(), signer1.Address().Hex())
		}
	}

	if _, err := FromPrivateKeyHex("not-a-key"); err == nil {
		t.Error("expected error for garbage key")
	}
}

func TestSignAndVerify(t *testing.T) {
	signer, _ := GenerateKey()
	digest := eth_crypto.Keccak256Hash([]byte("Hello, settlement!"))

	signature, err := signer.Sign(digest.Bytes())
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	if len(signature) != SignatureLength {
		t.Errorf("signature length = %d, want %d", len(signature), SignatureLength)
	}
	if v := signature[64]; v != 27 && v != 28 {
		t.Errorf("V = %d, want 27 or 28", v)
	}

	if !Verify(digest, signature, signer.Address()) {
		t.Error("signature verification failed")
	}

	wrongAddr := common.HexToAddress("0x0000000000000000000000000000000000000001")
	if Verify(digest, signature, wrongAddr) {
		t.Error("signature should not verify with wrong address")
	}

	otherDigest := eth_crypto.Keccak256Hash([]byte("something else"))
	if Verify(otherDigest, signature, signer.Address()) {
		t.Error("signature should not verify for a different digest")
	}
}

func TestVerifyAcceptsRawRecoveryID(t *testing.T) {
	signer, _ := GenerateKey()
	digest := eth_crypto.Keccak256Hash([]byte("raw v"))

	signature, _ := signer.Sign(digest.Bytes())
	raw := append([]byte{}, signature...)
	raw[64] -= 27

	if !Verify(digest, raw, signer.Address()) {
		t.Error("signature with V in {0,1} should verify")
	}
}

func TestRecoverAddress(t *testing.T) {
	signer, _ := GenerateKey()
	digest := eth_crypto.Keccak256Hash([]byte("Test message"))

	signature, err := signer.Sign(digest.Bytes())
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	recoveredAddr, err := RecoverAddress(digest.Bytes(), signature)
	if err != nil {
		t.Fatalf("failed to recover address: %v", err)
	}
	if recoveredAddr != signer.Address() {
		t.Errorf("recovered address = %s, want %s", recoveredAddr.Hex(), signer.Address().Hex())
	}
}

func TestInvalidSignature(t *testing.T) {
	signer, _ := GenerateKey()
	digest := common.BytesToHash([]byte("test"))

	tests := []struct {
		name string
		sig  []byte
	}{
		{"too short", []byte{1, 2, 3}},
		{"all zero", make([]byte, SignatureLength)},
		{"too long", make([]byte, SignatureLength+1)},
		{"nil", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Verify(digest, tt.sig, signer.Address()) {
				t.Error("invalid signature should not verify")
			}
		})
	}

	if _, err := RecoverAddress([]byte("short"), make([]byte, SignatureLength)); err == nil {
		t.Error("expected error for short hash")
	}
}

func TestRejectsHighS(t *testing.T) {
	signer, _ := GenerateKey()
	digest := eth_crypto.Keccak256Hash([]byte("malleable"))
	signature, _ := signer.Sign(digest.Bytes())

	// s' = N - s, flip recovery id: same signer, different bytes
	n := eth_crypto.S256().Params().N
	s := new(big.Int).SetBytes(signature[32:64])
	s.Sub(n, s)
	mall := append([]byte{}, signature...)
	copy(mall[32:64], common.LeftPadBytes(s.Bytes(), 32))
	mall[64] ^= 1

	if Verify(digest, mall, signer.Address()) {
		t.Error("high-S signature should be rejected")
	}
}

func TestParseAddress(t *testing.T) {
	const checksummed = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	want := common.HexToAddress(checksummed)

	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"checksummed", checksummed, false},
		{"lowercase", strings.ToLower(checksummed), false},
		{"uppercase body", "0x" + strings.ToUpper(checksummed[2:]), false},
		{"no prefix", strings.ToLower(checksummed[2:]), false},
		{"padded", "  " + checksummed + " ", false},
		{"bad checksum", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeD", true},
		{"short", "0x1234", true},
		{"not hex", "0xZZAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseAddress(%q) = %s, want error", tt.in, got.Hex())
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q): %v", tt.in, err)
			}
			if got != want {
				t.Errorf("ParseAddress(%q) = %s, want %s", tt.in, got.Hex(), want.Hex())
			}
		})
	}
}

func TestEIP55MatchesGeth(t *testing.T) {
	signer, _ := GenerateKey()
	addr := signer.Address()
	if got := EIP55(addr.Bytes()); got != addr.Hex() {
		t.Errorf("EIP55 = %s, want %s", got, addr.Hex())
	}
}
