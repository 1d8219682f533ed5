//go:build windows

package keystore

import (
	"github.com/billgraziano/dpapi"
)

func seal(plaintext []byte) ([]byte, error) {
	return dpapi.EncryptBytes(plaintext)
}

func open(ciphertext []byte) ([]byte, error) {
	return dpapi.DecryptBytes(ciphertext)
}
