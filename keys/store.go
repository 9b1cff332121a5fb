// Package keys provides local-first issuer key management for the key-based
// identity path: ed25519 seeds stored on the filesystem, deterministic
// role-derived subkeys, and did:key identifier rendering.
//
// This is a convenience surface for the CLI and single-operator deployments;
// registered DID identities live in the identity registry instead.
package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store is a filesystem key store. Layout: <dir>/<name>/root.key plus
// <dir>/<name>/roles/<role>.key, seeds hex-encoded, private files 0600.
type Store struct {
	Directory string
}

// Entry describes one stored identity and its derived roles.
type Entry struct {
	Name  string
	Roles []string
}

// DefaultDirectory is ~/.fides/keys.
func DefaultDirectory() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".fides", "keys"), nil
}

func Open(directory string) (*Store, error) {
	if directory == "" {
		var err error
		directory, err = DefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &Store{Directory: directory}, nil
}

func (s *Store) rootPath(name string) string {
	return filepath.Join(s.Directory, name, "root.key")
}

func (s *Store) rolePath(name, role string) string {
	return filepath.Join(s.Directory, name, "roles", role+".key")
}

// CheckName restricts identity names to filesystem-safe characters.
func CheckName(name string) error {
	if name == "" {
		return errors.New("keys: name cannot be empty")
	}
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("keys: invalid character %q in name", char)
	}
	return nil
}

// CheckRole applies the same restriction to role names.
func CheckRole(role string) error {
	if role == "" {
		return errors.New("keys: role cannot be empty")
	}
	for _, char := range role {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("keys: invalid character %q in role", char)
	}
	return nil
}

// ParseSeedHex decodes a 32-byte ed25519 seed from hex, with or without a
// 0x prefix.
func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimPrefix(strings.TrimSpace(seedHex), "0x")
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keys: expected seed length of %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return seed, nil
}

func (s *Store) saveSeed(path string, seed []byte, overwrite bool) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("keys: expected seed length of %d bytes", ed25519.SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return err
	}
	return file.Close()
}

func (s *Store) loadSeed(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(strings.TrimSpace(string(data)))
}

// InitRoot stores a root seed for a named identity and returns its did:key
// identifier.
func (s *Store) InitRoot(name string, seed []byte, overwrite bool) (issuerDID string, path string, err error) {
	if err := CheckName(name); err != nil {
		return "", "", err
	}
	path = s.rootPath(name)
	if err := s.saveSeed(path, seed, overwrite); err != nil {
		return "", "", err
	}
	issuerDID, err = IssuerDIDFromSeed(seed)
	if err != nil {
		return "", "", err
	}
	return issuerDID, path, nil
}

// DeriveRole derives and stores a role-specific subkey from an identity's
// root seed.
func (s *Store) DeriveRole(name, role string, overwrite bool) (issuerDID string, path string, err error) {
	if err := CheckName(name); err != nil {
		return "", "", err
	}
	if err := CheckRole(role); err != nil {
		return "", "", err
	}
	rootSeed, err := s.loadSeed(s.rootPath(name))
	if err != nil {
		return "", "", err
	}
	roleSeed, err := DeriveRoleSeed(rootSeed, role)
	if err != nil {
		return "", "", err
	}
	path = s.rolePath(name, role)
	if err := s.saveSeed(path, roleSeed, overwrite); err != nil {
		return "", "", err
	}
	issuerDID, err = IssuerDIDFromSeed(roleSeed)
	if err != nil {
		return "", "", err
	}
	return issuerDID, path, nil
}

// SigningKey loads the ed25519 private key for a stored identity, for the
// credential signing flows. role "" means the root key.
func (s *Store) SigningKey(name, role string) (ed25519.PrivateKey, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	path := s.rootPath(name)
	if role != "" {
		if err := CheckRole(role); err != nil {
			return nil, err
		}
		path = s.rolePath(name, role)
	}
	seed, err := s.loadSeed(path)
	if err != nil {
		return nil, err
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// Export renders the did:key identifier for a stored identity without
// exposing the seed.
func (s *Store) Export(name, role string) (string, error) {
	key, err := s.SigningKey(name, role)
	if err != nil {
		return "", err
	}
	return IssuerDIDFromSeed(key.Seed())
}

// List returns the stored identities and their derived roles, sorted.
func (s *Store) List() ([]Entry, error) {
	entries, err := os.ReadDir(s.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var result []Entry
	for _, name := range names {
		roleEntries, rerr := os.ReadDir(filepath.Join(s.Directory, name, "roles"))
		var roles []string
		if rerr == nil {
			for _, roleEntry := range roleEntries {
				if !roleEntry.IsDir() && strings.HasSuffix(roleEntry.Name(), ".key") {
					roles = append(roles, strings.TrimSuffix(roleEntry.Name(), ".key"))
				}
			}
			sort.Strings(roles)
		}
		result = append(result, Entry{Name: name, Roles: roles})
	}
	return result, nil
}
