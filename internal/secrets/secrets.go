// Package secrets resolves named server secrets used to populate env-marked
// agent inputs.
package secrets

import (
	"os"
	"strings"
)

// Store looks up a secret by name.
type Store interface {
	Lookup(name string) (string, bool)
}

// EnvStore reads secrets from the process environment. A name is tried as
// given and then with Prefix prepended.
type EnvStore struct {
	Prefix string
}

// Lookup implements Store. Empty values count as absent.
func (s EnvStore) Lookup(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v, true
	}
	if s.Prefix != "" {
		if v, ok := os.LookupEnv(s.Prefix + name); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// MapStore is a fixed in-memory secret table.
type MapStore map[string]string

// Lookup implements Store.
func (m MapStore) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok && v != ""
}
