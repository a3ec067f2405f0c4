// Package dnsbackup persists the host's pre-existing DNS resolver
// configuration so teardown can put the machine back exactly as found.
// The backup is a small JSON file: its presence is the signal that a prior
// install changed host DNS and has not yet been reverted, which also covers
// recovery after a crash mid-install.
package dnsbackup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Backup records the resolver configuration of one network service before
// this tool touched it. An empty Servers slice means the service had no
// custom DNS set ("automatic").
type Backup struct {
	CreatedAt time.Time `json:"created_at"`
	Service   string    `json:"service"`
	Servers   []string  `json:"servers"`
}

// Automatic reports whether the service had no custom DNS configured.
func (b *Backup) Automatic() bool {
	return len(b.Servers) == 0
}

// Store reads and writes the single backup file at a fixed path.
type Store struct {
	path   string
	logger zerolog.Logger
}

func NewStore(path string, logger zerolog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the backup file location.
func (s *Store) Path() string {
	return s.path
}

// Save writes the backup, overwriting any stale file from an earlier run.
// It must complete before any DNS-mutating call is issued.
func (s *Store) Save(service string, servers []string) (*Backup, error) {
	b := &Backup{
		CreatedAt: time.Now(),
		Service:   service,
		Servers:   servers,
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal DNS backup: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write DNS backup: %w", err)
	}
	s.logger.Info().Str("service", service).Strs("servers", servers).Msg("Saved DNS backup")
	return b, nil
}

// Load reads the backup if present. A missing file returns (nil, nil):
// nothing to restore, which is normal when stop runs without a prior
// successful install.
func (s *Store) Load() (*Backup, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read DNS backup: %w", err)
	}
	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse DNS backup: %w", err)
	}
	return &b, nil
}

// Clear removes the backup file after a successful restore. Absence is not
// an error.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove DNS backup: %w", err)
	}
	return nil
}
