//go:build !windows

package keystore

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceLen = 24

var errSealedShort = errors.New("keystore: sealed value too short")
var errSealedAuth = errors.New("keystore: sealed value failed authentication")

// sealKey obscures values at rest. Anyone holding the binary can recover
// it; it keeps the key file from being plain PKCS#8.
var sealKey = [32]byte{
	0x4d, 0x6f, 0x74, 0x6f, 0x72, 0x9a, 0x13, 0xe7,
	0x5c, 0x28, 0xb1, 0x0e, 0x63, 0xd4, 0x8f, 0x37,
	0xa2, 0x19, 0x7b, 0xc6, 0x04, 0xee, 0x58, 0x91,
	0x3d, 0xf0, 0x6a, 0x25, 0xcb, 0x82, 0x1e, 0x47,
}

// seal returns nonce followed by the secretbox ciphertext.
func seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("keystore: nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &sealKey), nil
}

func open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceLen+secretbox.Overhead {
		return nil, errSealedShort
	}
	var nonce [nonceLen]byte
	copy(nonce[:], sealed[:nonceLen])
	pt, ok := secretbox.Open(nil, sealed[nonceLen:], &nonce, &sealKey)
	if !ok {
		return nil, errSealedAuth
	}
	return pt, nil
}
