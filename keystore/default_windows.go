//go:build windows

package keystore

import "strings"

// DefaultPath is used when no data directory is configured.
const DefaultPath = `CU\SOFTWARE\motor\keys`

// Open returns the registry store for registry paths and a file store
// otherwise.
func Open(path string) (DataStore, error) {
	upper := strings.ToUpper(strings.ReplaceAll(path, "/", `\`))
	for _, hive := range []string{`CU\`, `LM\`, `CURRENT_USER\`, `LOCAL_MACHINE\`} {
		if strings.HasPrefix(upper, hive) {
			return NewRegistryDataStore(path)
		}
	}
	return NewFileDataStore(path)
}
