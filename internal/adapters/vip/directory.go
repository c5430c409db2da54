// Package vip provides the configuration-backed VIP directory.
package vip

import (
	"context"
	"strings"

	"github.com/inboxguard/inboxguard/internal/core"
)

// ConfigDirectory is a VIP directory loaded from configuration. Entries are
// indexed by normalized display name at construction; lookups are read-only.
type ConfigDirectory struct {
	byName map[string][]core.VIP
}

// NewConfigDirectory indexes the given entries.
func NewConfigDirectory(entries []core.VIP) *ConfigDirectory {
	dir := &ConfigDirectory{byName: make(map[string][]core.VIP, len(entries))}
	for _, v := range entries {
		key := normalizeName(v.Name)
		if key == "" {
			continue
		}
		dir.byName[key] = append(dir.byName[key], v)
	}
	return dir
}

// FindByDisplayName returns VIPs matching the name, ignoring case and
// surrounding whitespace.
func (d *ConfigDirectory) FindByDisplayName(ctx context.Context, name string) ([]core.VIP, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matches := d.byName[normalizeName(name)]
	out := make([]core.VIP, len(matches))
	copy(out, matches)
	return out, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
