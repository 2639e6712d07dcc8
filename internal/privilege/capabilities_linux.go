//go:build linux

package privilege

import (
	"golang.org/x/sys/unix"
)

// capabilityByName maps the human-readable capability names spec.md §6
// manifests may declare (e.g. "CAP_NET_ADMIN") to their kernel constant,
// via golang.org/x/sys/unix — the only capability-aware dependency found
// anywhere in the retrieved example pack (see DESIGN.md).
var capabilityByName = map[string]uintptr{
	"CAP_CHOWN":            unix.CAP_CHOWN,
	"CAP_DAC_OVERRIDE":     unix.CAP_DAC_OVERRIDE,
	"CAP_DAC_READ_SEARCH":  unix.CAP_DAC_READ_SEARCH,
	"CAP_FOWNER":           unix.CAP_FOWNER,
	"CAP_FSETID":           unix.CAP_FSETID,
	"CAP_KILL":             unix.CAP_KILL,
	"CAP_SETGID":           unix.CAP_SETGID,
	"CAP_SETUID":           unix.CAP_SETUID,
	"CAP_SETPCAP":          unix.CAP_SETPCAP,
	"CAP_NET_BIND_SERVICE": unix.CAP_NET_BIND_SERVICE,
	"CAP_NET_ADMIN":        unix.CAP_NET_ADMIN,
	"CAP_NET_RAW":          unix.CAP_NET_RAW,
	"CAP_SYS_TIME":         unix.CAP_SYS_TIME,
	"CAP_SYS_NICE":         unix.CAP_SYS_NICE,
	"CAP_SYS_ADMIN":        unix.CAP_SYS_ADMIN,
	"CAP_IPC_LOCK":         unix.CAP_IPC_LOCK,
}

// supportsCapabilitySets reports true on platforms where ambient
// capability sets can actually be installed.
const supportsCapabilitySets = true

// ResolveCapabilities resolves declared capability names to their
// ambient-capability constants, failing fast on an unknown name per
// spec.md §4.9.
func ResolveCapabilities(names []string) ([]uintptr, error) {
	out := make([]uintptr, 0, len(names))
	for _, name := range names {
		bit, ok := capabilityByName[name]
		if !ok {
			return nil, &UnknownCapability{Name: name}
		}
		out = append(out, bit)
	}
	return out, nil
}

// ValidateCapabilityNames checks syntactic well-formedness without
// requiring capability-set support, used on platforms that degrade.
func ValidateCapabilityNames(names []string) error {
	for _, name := range names {
		if _, ok := capabilityByName[name]; !ok {
			return &UnknownCapability{Name: name}
		}
	}
	return nil
}
