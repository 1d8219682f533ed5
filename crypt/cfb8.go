package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// SecretLen is the length of the shared AES key.
const SecretLen = 16

var ErrCipher = errors.New("crypt: cipher init failed")

// cfb8 is CFB mode with an eight bit segment, the mode the protocol uses.
// The standard library only offers full block CFB.
type cfb8 struct {
	b       cipher.Block
	reg     []byte
	out     []byte
	decrypt bool
}

func newCFB8(b cipher.Block, iv []byte, decrypt bool) cipher.Stream {
	bs := b.BlockSize()
	if len(iv) != bs {
		panic("crypt: cfb8 iv length must equal block size")
	}
	reg := make([]byte, bs)
	copy(reg, iv)
	return &cfb8{b: b, reg: reg, out: make([]byte, bs), decrypt: decrypt}
}

// NewCFB8Encrypter returns a Stream that encrypts with b in CFB8 mode.
func NewCFB8Encrypter(b cipher.Block, iv []byte) cipher.Stream {
	return newCFB8(b, iv, false)
}

// NewCFB8Decrypter returns a Stream that decrypts with b in CFB8 mode.
func NewCFB8Decrypter(b cipher.Block, iv []byte) cipher.Stream {
	return newCFB8(b, iv, true)
}

func (c *cfb8) XORKeyStream(dst, src []byte) {
	if len(dst) < len(src) {
		panic("crypt: cfb8 output smaller than input")
	}
	for i, in := range src {
		c.b.Encrypt(c.out, c.reg)
		o := in ^ c.out[0]
		fb := o
		if c.decrypt {
			fb = in
		}
		copy(c.reg, c.reg[1:])
		c.reg[len(c.reg)-1] = fb
		dst[i] = o
	}
}

// Streams is the cipher pair installed on a connection.
type Streams struct {
	Encrypt cipher.Stream
	Decrypt cipher.Stream
}

// NewStreams builds the AES-128/CFB8 pair for secret, used as both key and
// IV.
func NewStreams(secret []byte) (Streams, error) {
	if len(secret) != SecretLen {
		return Streams{}, fmt.Errorf("%w: secret length %d", ErrCipher, len(secret))
	}
	b, err := aes.NewCipher(secret)
	if err != nil {
		return Streams{}, fmt.Errorf("%w: %v", ErrCipher, err)
	}
	return Streams{
		Encrypt: NewCFB8Encrypter(b, secret),
		Decrypt: NewCFB8Decrypter(b, secret),
	}, nil
}
