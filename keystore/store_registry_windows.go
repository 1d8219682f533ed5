//go:build windows

package keystore

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/windows/registry"
)

// RegistryDataStore keeps values as binary registry values under one key.
// Sealed values use DPAPI.
type RegistryDataStore struct {
	hive    registry.Key
	keyPath string
}

var _ DataStore = (*RegistryDataStore)(nil)

// NewRegistryDataStore opens or creates "HIVE/path/to/key", where HIVE is
// CU (CURRENT_USER) or LM (LOCAL_MACHINE).
func NewRegistryDataStore(path string) (*RegistryDataStore, error) {
	path = strings.ReplaceAll(path, "/", `\`)
	hiveName, keyPath, ok := strings.Cut(path, `\`)
	if !ok || keyPath == "" {
		return nil, errors.New("keystore: registry path needs a hive prefix (CU\\ or LM\\)")
	}

	var hive registry.Key
	switch strings.ToUpper(hiveName) {
	case "LM", "LOCAL_MACHINE":
		hive = registry.LOCAL_MACHINE
	case "CU", "CURRENT_USER":
		hive = registry.CURRENT_USER
	default:
		return nil, fmt.Errorf("keystore: unknown registry hive %q", hiveName)
	}

	k, _, err := registry.CreateKey(hive, keyPath, registry.ALL_ACCESS)
	if err != nil {
		return nil, fmt.Errorf("keystore: create registry key: %w", err)
	}
	k.Close()
	return &RegistryDataStore{hive: hive, keyPath: keyPath}, nil
}

func (s *RegistryDataStore) Get(key string, decrypt bool) ([]byte, error) {
	k, err := registry.OpenKey(s.hive, s.keyPath, registry.QUERY_VALUE)
	if err != nil {
		return nil, nil
	}
	defer k.Close()

	data, _, err := k.GetBinaryValue(key)
	if errors.Is(err, registry.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if decrypt && len(data) > 0 {
		pt, err := open(data)
		if err != nil {
			return nil, fmt.Errorf("keystore: open %s: %w", key, err)
		}
		return pt, nil
	}
	return data, nil
}

func (s *RegistryDataStore) Set(key string, encrypt bool, value []byte) error {
	k, _, err := registry.CreateKey(s.hive, s.keyPath, registry.ALL_ACCESS)
	if err != nil {
		return fmt.Errorf("keystore: open registry key: %w", err)
	}
	defer k.Close()

	data := value
	if encrypt {
		if data, err = seal(value); err != nil {
			return fmt.Errorf("keystore: seal %s: %w", key, err)
		}
	}
	return k.SetBinaryValue(key, data)
}

func (s *RegistryDataStore) Path() string {
	hive := "HKCU"
	if s.hive == registry.LOCAL_MACHINE {
		hive = "HKLM"
	}
	return hive + `\` + s.keyPath
}
