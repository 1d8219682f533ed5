//go:build !windows

package keystore

// DefaultPath is used when no data directory is configured.
const DefaultPath = "$HOME/.config/motor/keys"

// Open returns the platform default store rooted at path.
func Open(path string) (DataStore, error) {
	return NewFileDataStore(path)
}
