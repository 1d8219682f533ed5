// Package keystore persists server secrets, chiefly the RSA login keypair,
// so the key clients see survives restarts.
package keystore

// DataStore is a small key-value store for secrets.
type DataStore interface {
	// Get returns the value for key, or nil, nil if it is absent.
	// When decrypt is set the stored bytes are opened first.
	Get(key string, decrypt bool) ([]byte, error)

	// Set stores value under key, sealing it first when encrypt is set.
	Set(key string, encrypt bool, value []byte) error

	// Path describes where values live, for log output.
	Path() string
}
