// Package crypt holds the cryptographic pieces of the login exchange: the
// server RSA keypair, the AES/CFB8 stream cipher and the session digest.
package crypt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/crypto/blake2b"
)

// KeyBits is the modulus size clients expect.
const KeyBits = 1024

var (
	ErrDecrypt = errors.New("crypt: rsa decrypt failed")
	ErrKeyType = errors.New("crypt: stored key is not RSA")
)

// KeyPair is the server RSA keypair. The public half is sent to clients as
// DER encoded SubjectPublicKeyInfo.
type KeyPair struct {
	priv *rsa.PrivateKey
	der  []byte
}

// GenerateKeyPair creates a new keypair of KeyBits.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("crypt: generate key: %w", err)
	}
	return newKeyPair(priv)
}

// ParseKeyPair loads a keypair from PKCS#8 DER.
func ParseKeyPair(der []byte) (*KeyPair, error) {
	k, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("crypt: parse key: %w", err)
	}
	priv, ok := k.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrKeyType
	}
	return newKeyPair(priv)
}

func newKeyPair(priv *rsa.PrivateKey) (*KeyPair, error) {
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("crypt: marshal public key: %w", err)
	}
	return &KeyPair{priv: priv, der: der}, nil
}

// Marshal returns the private key as PKCS#8 DER.
func (k *KeyPair) Marshal() ([]byte, error) {
	return x509.MarshalPKCS8PrivateKey(k.priv)
}

// PublicDER returns the DER encoded public key. Callers must not modify it.
func (k *KeyPair) PublicDER() []byte { return k.der }

// Public returns the public key.
func (k *KeyPair) Public() *rsa.PublicKey { return &k.priv.PublicKey }

// Decrypt removes PKCS#1 v1.5 padding from ciphertext and returns the
// plaintext least significant byte first. Callers restore wire order with
// Reverse.
func (k *KeyPair) Decrypt(ciphertext []byte) ([]byte, error) {
	pt, err := rsa.DecryptPKCS1v15(nil, k.priv, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	slices.Reverse(pt)
	return pt, nil
}

// Fingerprint is a short stable identifier of the public key, used in logs.
func (k *KeyPair) Fingerprint() string {
	sum := blake2b.Sum256(k.der)
	return fmt.Sprintf("%x", sum[:8])
}

// Reverse returns a reversed copy of the first n bytes of b.
func Reverse(b []byte, n int) []byte {
	out := slices.Clone(b[:n])
	slices.Reverse(out)
	return out
}

// NewVerifyToken returns a random token for one handshake attempt.
func NewVerifyToken() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("crypt: verify token: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// TokenBytes encodes a verify token the way it is sent to the client.
func TokenBytes(token uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, token)
}

// TokenFromDecrypted decodes a token returned by Decrypt. Decrypt hands
// bytes back least significant first, so the value is read little endian.
// ok is false unless exactly four bytes are present.
func TokenFromDecrypted(b []byte) (token uint32, ok bool) {
	if len(b) != 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}
