package notify

import (
	"encoding/base64"
	"testing"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	for i := 0; i < 16; i++ {
		pub, priv, err := GenerateVAPIDKeys()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}

		pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
		if err != nil {
			t.Fatalf("decode public key: %v", err)
		}
		if len(pubBytes) != 65 || pubBytes[0] != 4 {
			t.Errorf("public key: %d bytes, want 65-byte uncompressed point", len(pubBytes))
		}

		privBytes, err := base64.RawURLEncoding.DecodeString(priv)
		if err != nil {
			t.Fatalf("decode private key: %v", err)
		}
		// Fixed width even when the scalar has leading zero bytes.
		if len(privBytes) != 32 {
			t.Errorf("private key: %d bytes, want 32", len(privBytes))
		}
	}
}
