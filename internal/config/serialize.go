package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/everest-core/manager/internal/confval"
)

// Document is the stable, JSON-shaped serialization of a Compiled
// config, per spec.md §4.5 step 6: the compiled main configuration, the
// module_names table, the resolved interfaces, the types, and the error
// map. Field order in the struct drives encoding/json's output order;
// encoding/json writes map keys in sorted order and the cmds/vars lists
// are sorted by sortedKeys, so two compilations of the same input
// serialize byte-identically, per the stability invariant in spec.md §8.
type Document struct {
	MainConfig  map[string]MainConfigEntry `json:"main_config"`
	ModuleNames map[string]string          `json:"module_names"`
	Interfaces  map[string]InterfaceDoc    `json:"interfaces"`
	Types       map[string]TypeDoc         `json:"types"`
	Errors      map[string][]string        `json:"errors"`
}

// MainConfigEntry is the dump-shaped view of one instance: scalar
// config blocks flattened to plain Go values so json.Marshal produces
// the same bytes every time for the same input.
type MainConfigEntry struct {
	ConfigModule         map[string]any            `json:"config_module"`
	ConfigImplementation map[string]map[string]any `json:"config_implementation,omitempty"`
	Connections          map[string][]string       `json:"connections,omitempty"`
	EVSE                 int                        `json:"evse,omitempty"`
	Connector            int                        `json:"connector,omitempty"`
}

// InterfaceDoc is the serialized shape of a resolved interface: enough
// to drive scenario 3/4 in spec.md §8 (interface name + one command).
type InterfaceDoc struct {
	Cmds []string `json:"cmds"`
	Vars []string `json:"vars"`
}

// TypeDoc is the serialized shape of a resolved type, enough to drive
// scenario 3 in spec.md §8 ("exactly one type /test_type").
type TypeDoc struct {
	File string `json:"file"`
	Name string `json:"name"`
	Node any    `json:"node"`
}

// Serialize builds the stable document described above.
func (c *Compiled) Serialize() *Document {
	doc := &Document{
		MainConfig:  make(map[string]MainConfigEntry, len(c.Instances)),
		ModuleNames: make(map[string]string, len(c.Instances)),
		Interfaces:  make(map[string]InterfaceDoc),
		Types:       make(map[string]TypeDoc, len(c.Types)),
		Errors:      make(map[string][]string),
	}
	for uri, t := range c.Types {
		doc.Types[uri] = TypeDoc{File: t.File, Name: t.Name, Node: t.Node}
	}
	for id, inst := range c.Instances {
		doc.ModuleNames[id] = inst.ModuleType
		entry := MainConfigEntry{
			ConfigModule: dictToAny(inst.ModuleConfig),
		}
		if len(inst.Implementations) > 0 {
			entry.ConfigImplementation = make(map[string]map[string]any, len(inst.Implementations))
			for implID, impl := range inst.Implementations {
				entry.ConfigImplementation[implID] = dictToAny(impl.Config)
				doc.Interfaces[impl.Interface.Name] = InterfaceDoc{
					Cmds: sortedKeys(impl.Interface.Cmds),
					Vars: sortedKeys(impl.Interface.Vars),
				}
				doc.Errors[impl.Interface.Name] = impl.Interface.ErrorNames()
			}
		}
		if len(inst.Connections) > 0 {
			entry.Connections = make(map[string][]string, len(inst.Connections))
			for reqID, targets := range inst.Connections {
				for _, t := range targets {
					entry.Connections[reqID] = append(entry.Connections[reqID], t.ModuleID+"."+t.ImplID)
				}
			}
		}
		if inst.TierMapping != nil {
			entry.EVSE = inst.TierMapping.EVSE
			entry.Connector = inst.TierMapping.Connector
		}
		doc.MainConfig[id] = entry
	}
	return doc
}

// MarshalStable renders the document as indented JSON with map keys
// sorted by encoding/json's default (lexical) ordering — the
// "byte-equivalent modulo map key ordering" stability spec.md §8
// demands.
func (d *Document) MarshalStable() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// MainConfigSubset extracts just the main_config portion, the
// projection Compile(Parse(Serialize(...))) round-trips through per the
// idempotence law in spec.md §8. The returned map is shaped exactly as
// Compiler.Compile expects a deployment document root to be shaped, so
// it can be handed straight back in.
func (d *Document) MainConfigSubset() map[string]any {
	out := make(map[string]any, len(d.MainConfig))
	for id, entry := range d.MainConfig {
		m := map[string]any{
			"module":        d.ModuleNames[id],
			"config_module": entry.ConfigModule,
		}
		if entry.ConfigImplementation != nil {
			impls := make(map[string]any, len(entry.ConfigImplementation))
			for implID, cfg := range entry.ConfigImplementation {
				impls[implID] = cfg
			}
			m["config_implementation"] = impls
		}
		if entry.Connections != nil {
			conns := make(map[string]any, len(entry.Connections))
			for reqID, targets := range entry.Connections {
				list := make([]any, 0, len(targets))
				for _, t := range targets {
					moduleID, implID := splitConnectionTarget(t)
					list = append(list, map[string]any{
						"module_id":         moduleID,
						"implementation_id": implID,
					})
				}
				conns[reqID] = list
			}
			m["connections"] = conns
		}
		if entry.EVSE != 0 {
			m["evse"] = entry.EVSE
		}
		if entry.Connector != 0 {
			m["connector"] = entry.Connector
		}
		out[id] = m
	}
	return out
}

// splitConnectionTarget reverses the "module.impl" join Serialize
// performs when flattening a ConnectionTarget to a string: module
// instance ids never contain a dot (the deployment schema's id
// grammar excludes it), so the first dot is the separator.
func splitConnectionTarget(s string) (moduleID, implID string) {
	moduleID, implID, _ = strings.Cut(s, ".")
	return moduleID, implID
}

// Deserialize parses a MarshalStable-produced dump and projects it back
// to a Compile-able deployment document root: the dump/reload law in
// spec.md §8 ("compile(dump(compile(c))) == compile(c)") as a literal,
// callable method rather than a property only asserted in prose.
func Deserialize(payload []byte) (any, error) {
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("config: deserializing dump: %w", err)
	}
	return doc.MainConfigSubset(), nil
}

func dictToAny(d confval.Dict) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v.Any()
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
