package netbind

import (
	"fmt"
	"os"
	"strings"
)

// hostsLine is the exact line this tool owns in the hosts file.
func (b *Binder) hostsLine() string {
	return "127.0.0.1 " + b.cfg.Pihole.Hostname
}

// hasHostsMapping reports whether the hosts file already carries the exact
// mapping line. Matching is by exact line so an unrelated entry mentioning
// the hostname never counts.
func (b *Binder) hasHostsMapping() (bool, error) {
	data, err := os.ReadFile(b.cfg.HostsFile)
	if err != nil {
		return false, fmt.Errorf("read hosts file: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == b.hostsLine() {
			return true, nil
		}
	}
	return false, nil
}

// addHostsMapping appends the mapping line unless it is already present.
// Requires elevated privilege on the real hosts file.
func (b *Binder) addHostsMapping() error {
	present, err := b.hasHostsMapping()
	if err != nil {
		return err
	}
	if present {
		b.logger.Debug().Msg("Hosts mapping already present")
		return nil
	}

	f, err := os.OpenFile(b.cfg.HostsFile, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open hosts file for append: %w", err)
	}
	defer f.Close()

	data, err := os.ReadFile(b.cfg.HostsFile)
	if err != nil {
		return fmt.Errorf("read hosts file: %w", err)
	}
	entry := b.hostsLine() + "\n"
	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		entry = "\n" + entry
	}
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("append hosts mapping: %w", err)
	}
	b.logger.Info().Str("entry", b.hostsLine()).Msg("Added hosts mapping")
	return nil
}

// removeHostsMapping deletes the mapping line if present. Absence is a no-op.
func (b *Binder) removeHostsMapping() error {
	data, err := os.ReadFile(b.cfg.HostsFile)
	if err != nil {
		return fmt.Errorf("read hosts file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	kept := make([]string, 0, len(lines))
	removed := false
	for _, line := range lines {
		if strings.TrimSpace(line) == b.hostsLine() {
			removed = true
			continue
		}
		kept = append(kept, line)
	}
	if !removed {
		return nil
	}

	if err := os.WriteFile(b.cfg.HostsFile, []byte(strings.Join(kept, "\n")), 0o644); err != nil {
		return fmt.Errorf("rewrite hosts file: %w", err)
	}
	b.logger.Info().Str("entry", b.hostsLine()).Msg("Removed hosts mapping")
	return nil
}
