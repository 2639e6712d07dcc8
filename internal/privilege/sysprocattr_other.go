//go:build !linux

package privilege

import "syscall"

// BuildSysProcAttr degrades to a plain UID/GID credential on platforms
// without ambient capability sets; ambientCaps is accepted for call-site
// symmetry with the Linux build but is always empty here (Resolve
// already enforces that).
func BuildSysProcAttr(identity *Identity, ambientCaps []uintptr, parentDeathSignal syscall.Signal) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{}
	if identity != nil {
		attr.Credential = &syscall.Credential{
			Uid:    identity.UID,
			Gid:    identity.GID,
			Groups: identity.Groups,
		}
	}
	return attr
}
