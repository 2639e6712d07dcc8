// Package config walks a deployment document and compiles it into a
// fully linked configuration graph: resolving module types, validating
// config blocks, and satisfying every declared requirement.
package config

import (
	"fmt"
	"sort"

	"github.com/everest-core/manager/internal/confval"
	"github.com/everest-core/manager/internal/iface"
	"github.com/everest-core/manager/internal/manifest"
	"github.com/everest-core/manager/internal/schema"
	"github.com/everest-core/manager/internal/typesys"
)

// Compiler runs the ordered procedure in spec.md §4.5 over a deployment
// document and the manifest/interface registries it depends on.
type Compiler struct {
	Manifests  *manifest.Store
	Interfaces *iface.Resolver
	Validator  *schema.Validator
	Types      *typesys.Resolver
}

// NewCompiler wires the registries the compiler needs. types may be nil
// in tests that exercise the compiler without schema validation wired;
// Compiled.Types is then left empty.
func NewCompiler(manifests *manifest.Store, ifaces *iface.Resolver, validator *schema.Validator, types *typesys.Resolver) *Compiler {
	return &Compiler{Manifests: manifests, Interfaces: ifaces, Validator: validator, Types: types}
}

// Compile runs the full six-step procedure against a decoded deployment
// document root. An empty/nil document yields a zero-instance Compiled
// value; a non-mapping document is a boot-level error, per spec.md §4.5
// step 1.
func (c *Compiler) Compile(doc any) (*Compiled, error) {
	root, err := confval.AsMapping(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBoot, err)
	}
	if c.Validator != nil && len(root) > 0 {
		if err := c.Validator.ValidateDocument(schema.Config, doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBoot, err)
		}
	}

	compiled := &Compiled{Instances: make(map[string]*Instance)}
	for id := range root {
		compiled.Order = append(compiled.Order, id)
	}
	sort.Strings(compiled.Order)

	// Step 2: per-instance load, resolve, validate.
	for id, raw := range root {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: instance %q is not a mapping", ErrConfig, id)
		}
		inst, err := c.compileInstance(id, entry)
		if err != nil {
			return nil, err
		}
		compiled.Instances[id] = inst
	}

	// Step 3: requirement resolution, run only after every instance has
	// been loaded so connection targets can be cross-referenced.
	for id, inst := range compiled.Instances {
		if err := c.resolveRequirements(id, inst, compiled); err != nil {
			return nil, err
		}
	}

	// Step 4 & 5 happen inline per-instance in compileInstance (tier
	// mapping and telemetry have no cross-instance dependencies).

	if c.Types != nil {
		compiled.Types = c.Types.All()
	}

	return compiled, nil
}

// CheckOnly runs Compile and discards the result, the engine behind the
// --check CLI flag (§6): exit 0 on success, non-zero on any error.
func (c *Compiler) CheckOnly(doc any) error {
	_, err := c.Compile(doc)
	return err
}

func (c *Compiler) compileInstance(id string, entry map[string]any) (*Instance, error) {
	typeName, _ := entry["module"].(string)
	mt, err := c.Manifests.Get(typeName)
	if err != nil {
		return nil, &UnknownModuleType{Instance: id, Type: typeName}
	}

	inst := &Instance{
		ID:              id,
		ModuleType:      typeName,
		Implementations: make(map[string]ImplementationConfig),
		Connections:     make(map[string][]ConnectionTarget),
		Standalone:      boolField(entry, "standalone"),
	}

	// Module-level config.
	moduleCfg, _ := entry["config_module"].(map[string]any)
	dict, err := validateConfigBlock(id, "module", moduleCfg, mt.Manifest.ConfigSchema, c.Validator)
	if err != nil {
		return nil, err
	}
	inst.ModuleConfig = dict

	// Per-implementation config + interface resolution (step 2b/2d).
	implCfgRoot, _ := entry["config_implementation"].(map[string]any)
	for implID, provision := range mt.Manifest.Provides {
		resolvedIface, err := c.Interfaces.Resolve(provision.InterfaceName)
		if err != nil {
			return nil, &MissingInterface{Instance: id, ImplID: implID, Name: provision.InterfaceName, Cause: err}
		}
		var raw map[string]any
		if implCfgRoot != nil {
			raw, _ = implCfgRoot[implID].(map[string]any)
		}
		implDict, err := validateConfigBlock(id, implID, raw, provision.ConfigSchema, c.Validator)
		if err != nil {
			return nil, err
		}
		inst.Implementations[implID] = ImplementationConfig{
			ID:        implID,
			Interface: resolvedIface,
			Config:    implDict,
		}
	}
	// Any implementation id configured that the manifest never declared
	// is an UnknownImplementation, per spec.md §4.5 step 2d.
	if implCfgRoot != nil {
		for implID := range implCfgRoot {
			if _, ok := mt.Manifest.Provides[implID]; !ok {
				return nil, &UnknownImplementation{Instance: id, ImplID: implID}
			}
		}
	}

	// Connections, read now so step 3 can cross-reference them; the
	// data is captured here but cardinality/interface checks happen in
	// resolveRequirements after every instance has loaded.
	if connRoot, ok := entry["connections"].(map[string]any); ok {
		for reqID, raw := range connRoot {
			targets, _ := raw.([]any)
			for _, rawTarget := range targets {
				tmap, _ := rawTarget.(map[string]any)
				inst.Connections[reqID] = append(inst.Connections[reqID], ConnectionTarget{
					ModuleID: stringOr(tmap["module_id"], ""),
					ImplID:   stringOr(tmap["implementation_id"], ""),
				})
			}
		}
	}

	// Step 4: tier mapping.
	inst.TierMapping = tierMappingOf(entry, "evse", "connector")
	if mappingRoot, ok := entry["mapping"].(map[string]any); ok {
		inst.ImplMapping = make(map[string]*TierMapping, len(mappingRoot))
		for implID, raw := range mappingRoot {
			block, _ := raw.(map[string]any)
			inst.ImplMapping[implID] = tierMappingOf(block, "evse", "connector")
		}
	}

	// Step 5: telemetry, absent -> nil.
	if telRoot, ok := entry["telemetry"].(map[string]any); ok {
		tDict, err := confval.DictFromAny(telRoot["params"])
		if err != nil {
			return nil, fmt.Errorf("%w: instance %q: telemetry: %v", ErrConfig, id, err)
		}
		inst.Telemetry = &TelemetryConfig{ID: intOr(telRoot["id"], 0), Params: tDict}
	}

	// Capability overrides: union of manifest-declared and
	// instance-declared capabilities.
	inst.Capabilities = append(inst.Capabilities, mt.Manifest.Capabilities...)
	if caps, ok := entry["capabilities"].([]any); ok {
		for _, c := range caps {
			if s, ok := c.(string); ok {
				inst.Capabilities = append(inst.Capabilities, s)
			}
		}
	}

	return inst, nil
}

func (c *Compiler) resolveRequirements(id string, inst *Instance, compiled *Compiled) error {
	mt, err := c.Manifests.Get(inst.ModuleType)
	if err != nil {
		return &UnknownModuleType{Instance: id, Type: inst.ModuleType}
	}
	for reqID, req := range mt.Manifest.Requires {
		targets := inst.Connections[reqID]
		if len(targets) < req.Min || len(targets) > req.Max {
			return &UnsatisfiedRequirement{Instance: id, ReqID: reqID, Min: req.Min, Max: req.Max, Got: len(targets)}
		}
		for _, t := range targets {
			provider, ok := compiled.Get(t.ModuleID)
			if !ok {
				return &UnsatisfiedRequirement{Instance: id, ReqID: reqID, Min: req.Min, Max: req.Max, Got: len(targets)}
			}
			impl, ok := provider.Implementations[t.ImplID]
			if !ok {
				return &UnknownImplementation{Instance: t.ModuleID, ImplID: t.ImplID}
			}
			if impl.Interface.Name != req.InterfaceName {
				return &InterfaceMismatch{
					Instance: id, ReqID: reqID,
					Want: req.InterfaceName, Got: impl.Interface.Name, Target: t.ModuleID,
				}
			}
		}
	}
	return nil
}

func tierMappingOf(m map[string]any, evseKey, connectorKey string) *TierMapping {
	if m == nil {
		return nil
	}
	evse, hasEVSE := m[evseKey]
	conn, hasConn := m[connectorKey]
	if !hasEVSE && !hasConn {
		return nil
	}
	return &TierMapping{EVSE: intOr(evse, 0), Connector: intOr(conn, 0)}
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func intOr(v any, def int) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return def
	}
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}
