//go:build linux

package privilege

import "syscall"

// BuildSysProcAttr composes the exec.Cmd.SysProcAttr that drops
// privileges and installs ambient capabilities before the worker's
// exec, per spec.md §4.7/§4.9: set groups, then gid, then uid — which on
// Linux the kernel does in that order for a single Credential — and hand
// over the ambient set. The Go runtime sets the keep-caps bit
// (PR_SET_KEEPCAPS) in the child whenever AmbientCaps is non-empty, so
// the ambient set survives the uid change.
func BuildSysProcAttr(identity *Identity, ambientCaps []uintptr, parentDeathSignal syscall.Signal) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Pdeathsig: parentDeathSignal,
	}
	if identity != nil {
		attr.Credential = &syscall.Credential{
			Uid:    identity.UID,
			Gid:    identity.GID,
			Groups: identity.Groups,
		}
	}
	if len(ambientCaps) > 0 {
		attr.AmbientCaps = ambientCaps
	}
	return attr
}
