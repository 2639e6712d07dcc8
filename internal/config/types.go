package config

import (
	"github.com/everest-core/manager/internal/confval"
	"github.com/everest-core/manager/internal/iface"
	"github.com/everest-core/manager/internal/typesys"
)

// TierMapping is the (evse, connector) coordinate attached to an
// instance or an individual implementation, per spec.md §3. Absence of
// a mapping means "mapped to the charging-station root", represented
// here as a nil *TierMapping rather than a zero-valued struct so the two
// cases aren't ambiguous.
type TierMapping struct {
	EVSE      int
	Connector int
}

// ConnectionTarget names a provider bound to a requirement slot.
type ConnectionTarget struct {
	ModuleID string
	ImplID   string
}

// ImplementationConfig is one implementation's resolved config plus the
// interface it provides, once resolved.
type ImplementationConfig struct {
	ID        string
	Interface *iface.Interface
	Config    confval.Dict
}

// Instance is a compiled module instance: everything spec.md §3 demands
// an instance carry after the compiler has run.
type Instance struct {
	ID              string
	ModuleType      string
	ModuleConfig    confval.Dict
	Implementations map[string]ImplementationConfig
	Connections     map[string][]ConnectionTarget
	TierMapping     *TierMapping
	ImplMapping     map[string]*TierMapping
	Telemetry       *TelemetryConfig
	Standalone      bool
	Capabilities    []string
}

// TelemetryConfig is the per-instance telemetry block; absent is
// represented by a nil *TelemetryConfig ("None" per spec.md §4.5 step 5).
type TelemetryConfig struct {
	ID     int
	Params confval.Dict
}

// Compiled is the fully linked, internally consistent configuration
// object every downstream component (supervisor, readiness coordinator)
// consumes.
type Compiled struct {
	Instances map[string]*Instance
	// Order lists every instance id sorted lexically, a deterministic
	// sequence for callers that iterate instances — module start order
	// itself is not externally observable per spec.md §5.
	Order []string
	// Types collects every /file#/Name type dereferenced while
	// compiling this config, keyed by URI, for Serialize's "types"
	// table (spec.md §4.5 step 6).
	Types map[string]*typesys.Type
}

// Get looks up a compiled instance by id.
func (c *Compiled) Get(id string) (*Instance, bool) {
	inst, ok := c.Instances[id]
	return inst, ok
}

// Contains reports whether a module instance with that id was compiled,
// matching the `contains("some_module")` boundary check in spec.md §8
// scenario 1.
func (c *Compiled) Contains(id string) bool {
	_, ok := c.Instances[id]
	return ok
}
