package config

import (
	"errors"
	"fmt"
)

// ErrConfig is the taxonomy's ConfigError kind: semantic violations in
// the compiled graph. Every concrete error below wraps it so callers can
// test with errors.Is(err, ErrConfig) without caring which variant fired.
var ErrConfig = errors.New("config: semantic error")

// ErrBoot is the taxonomy's BootError kind: the deployment document
// itself could not be loaded or is structurally invalid (a bare scalar
// root, an unreadable file).
var ErrBoot = errors.New("config: boot error")

// UnknownModuleType: the instance names a module type the manifest
// store has never heard of.
type UnknownModuleType struct {
	Instance string
	Type     string
}

func (e *UnknownModuleType) Error() string {
	return fmt.Sprintf("config: instance %q: unknown module type %q", e.Instance, e.Type)
}
func (e *UnknownModuleType) Unwrap() error { return ErrConfig }

// UnknownImplementation: the instance configures an implementation id
// the manifest's provides map doesn't declare.
type UnknownImplementation struct {
	Instance string
	ImplID   string
}

func (e *UnknownImplementation) Error() string {
	return fmt.Sprintf("config: instance %q: unknown implementation %q", e.Instance, e.ImplID)
}
func (e *UnknownImplementation) Unwrap() error { return ErrConfig }

// MissingConfigEntry: a schema-required key is absent from a config
// block.
type MissingConfigEntry struct {
	Instance string
	Block    string // "module" or an implementation id
	Key      string
}

func (e *MissingConfigEntry) Error() string {
	return fmt.Sprintf("config: instance %q: %s config missing required entry %q", e.Instance, e.Block, e.Key)
}
func (e *MissingConfigEntry) Unwrap() error { return ErrConfig }

// InvalidConfigEntry: a key is extraneous or fails schema/type
// validation.
type InvalidConfigEntry struct {
	Instance string
	Block    string
	Key      string
	Reason   string
}

func (e *InvalidConfigEntry) Error() string {
	return fmt.Sprintf("config: instance %q: %s config entry %q invalid: %s", e.Instance, e.Block, e.Key, e.Reason)
}
func (e *InvalidConfigEntry) Unwrap() error { return ErrConfig }

// UnsatisfiedRequirement: a requirement's connections list falls outside
// [min,max], or is empty when min > 0.
type UnsatisfiedRequirement struct {
	Instance string
	ReqID    string
	Min, Max int
	Got      int
}

func (e *UnsatisfiedRequirement) Error() string {
	return fmt.Sprintf("config: instance %q: requirement %q wants [%d,%d] connections, got %d",
		e.Instance, e.ReqID, e.Min, e.Max, e.Got)
}
func (e *UnsatisfiedRequirement) Unwrap() error { return ErrConfig }

// InterfaceMismatch: a connected provider's resolved interface doesn't
// match what the requirement declares.
type InterfaceMismatch struct {
	Instance string
	ReqID    string
	Want     string
	Got      string
	Target   string
}

func (e *InterfaceMismatch) Error() string {
	return fmt.Sprintf("config: instance %q: requirement %q expects interface %q, target %q provides %q",
		e.Instance, e.ReqID, e.Want, e.Target, e.Got)
}
func (e *InterfaceMismatch) Unwrap() error { return ErrConfig }

// MissingInterface: a manifest's provides entry names an interface the
// resolver could not load.
type MissingInterface struct {
	Instance string
	ImplID   string
	Name     string
	Cause    error
}

func (e *MissingInterface) Error() string {
	return fmt.Sprintf("config: instance %q: implementation %q: interface %q: %v", e.Instance, e.ImplID, e.Name, e.Cause)
}
func (e *MissingInterface) Unwrap() error { return ErrConfig }
