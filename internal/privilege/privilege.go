// Package privilege resolves declared capability names to kernel
// capability bits and computes the OS credential a worker should be
// exec'd with, per spec.md §4.9. On platforms without Linux capability
// sets it degrades to a UID/GID drop only, validating capability names
// syntactically but never applying them.
package privilege

import (
	"errors"
	"fmt"
	"os/user"
	"strconv"
)

// ErrUnknownCapability is the taxonomy's CapabilityUnknown kind.
var ErrUnknownCapability = errors.New("privilege: unknown capability name")

// UnknownCapability names the offending capability string.
type UnknownCapability struct {
	Name string
}

func (e *UnknownCapability) Error() string {
	return fmt.Sprintf("privilege: unknown capability %q", e.Name)
}
func (e *UnknownCapability) Unwrap() error { return ErrUnknownCapability }

// Identity is a resolved UID/GID/supplementary-groups triple, ready to
// hand to the platform-specific exec credential.
type Identity struct {
	UID    uint32
	GID    uint32
	Groups []uint32
}

// MaxSupplementaryGroups bounds the groups buffer, per spec.md §4.9.
const MaxSupplementaryGroups = 50

// ResolveIdentity looks up a named unprivileged identity and its
// supplementary groups, capped at MaxSupplementaryGroups.
func ResolveIdentity(name string) (*Identity, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("privilege: lookup user %q: %w", name, err)
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("privilege: parse uid for %q: %w", name, err)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("privilege: parse gid for %q: %w", name, err)
	}
	groupIDs, err := u.GroupIds()
	if err != nil {
		return nil, fmt.Errorf("privilege: group ids for %q: %w", name, err)
	}
	if len(groupIDs) > MaxSupplementaryGroups {
		groupIDs = groupIDs[:MaxSupplementaryGroups]
	}
	groups := make([]uint32, 0, len(groupIDs))
	for _, g := range groupIDs {
		v, err := strconv.ParseUint(g, 10, 32)
		if err != nil {
			continue
		}
		groups = append(groups, uint32(v))
	}
	return &Identity{UID: uint32(uid), GID: uint32(gid), Groups: groups}, nil
}
