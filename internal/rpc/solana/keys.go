package solana

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcutil/base58"
)

// ParseKeypair accepts a 64-byte secret key either base58 encoded or as the JSON
// byte array written by solana-keygen.
func ParseKeypair(s string) (ed25519.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty keypair")
	}

	var raw []byte
	if strings.HasPrefix(s, "[") {
		var arr []int
		if err := json.Unmarshal([]byte(s), &arr); err != nil {
			return nil, fmt.Errorf("decode keypair array: %w", err)
		}
		raw = make([]byte, len(arr))
		for i, v := range arr {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("keypair byte %d out of range", i)
			}
			raw[i] = byte(v)
		}
	} else {
		raw = base58.Decode(s)
	}

	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	key := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !bytes.Equal(key[ed25519.SeedSize:], raw[ed25519.SeedSize:]) {
		return nil, errors.New("keypair public half does not match its seed")
	}
	return key, nil
}

// LoadKeypair reads the house key from an environment variable or, failing that, a file.
func LoadKeypair(envName, path string) (ed25519.PrivateKey, error) {
	if envName != "" {
		if v := os.Getenv(envName); v != "" {
			return ParseKeypair(v)
		}
	}
	if path == "" {
		return nil, fmt.Errorf("house key not found in $%s and no key file configured", envName)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return ParseKeypair(string(b))
}

func PublicKeyOf(key ed25519.PrivateKey) PublicKey {
	var k PublicKey
	copy(k[:], key.Public().(ed25519.PublicKey))
	return k
}
