package keystore

import (
	"fmt"

	"github.com/shykaruu/motor/crypt"
)

// KeyPairKey is the store key of the sealed login keypair.
const KeyPairKey = "login-rsa.key"

// LoadKeyPair returns the stored keypair, generating and storing a new one
// when none exists. created reports whether a new key was made.
func LoadKeyPair(ds DataStore) (kp *crypt.KeyPair, created bool, err error) {
	der, err := ds.Get(KeyPairKey, true)
	if err != nil {
		return nil, false, err
	}
	if der != nil {
		kp, err := crypt.ParseKeyPair(der)
		if err != nil {
			return nil, false, fmt.Errorf("keystore: %s: %w", ds.Path(), err)
		}
		return kp, false, nil
	}

	kp, err = crypt.GenerateKeyPair()
	if err != nil {
		return nil, false, err
	}
	der, err = kp.Marshal()
	if err != nil {
		return nil, false, fmt.Errorf("keystore: marshal key: %w", err)
	}
	if err := ds.Set(KeyPairKey, true, der); err != nil {
		return nil, false, err
	}
	return kp, true, nil
}
