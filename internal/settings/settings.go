// Package settings computes the manager's runtime layout: directory
// paths, the message-bus endpoint, and the various toggles, merging CLI
// overrides, an optional user override file, and built-in defaults.
package settings

import (
	"fmt"
	"path/filepath"

	"github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"
)

// BusEndpoint is either a host+port pair or a filesystem socket path,
// per spec.md §4.6.
type BusEndpoint struct {
	Host       string `yaml:"mqtt_broker_host"`
	Port       int    `yaml:"mqtt_broker_port"`
	SocketPath string `yaml:"mqtt_socket_path"`
}

// Directories holds every path spec.md §4.6 lists.
type Directories struct {
	Modules    string `yaml:"modules_dir"`
	Interfaces string `yaml:"interfaces_dir"`
	Types      string `yaml:"types_dir"`
	Errors     string `yaml:"errors_dir"`
	Schemas    string `yaml:"schemas_dir"`
	WWW        string `yaml:"www_dir"`
	Configs    string `yaml:"configs_dir"`
}

// Interpreters holds the script/interpreted worker runtime paths
// spec.md §4.7/§6 need to build a script or interpreted worker's argv
// and env, derived from the prefix the same way Directories is. Values
// mirror original_source/src/manager.cpp's exec_javascript_module and
// exec_python_module: the runtime binaries are resolved via PATH
// (execvp), and the module search paths live under
// <prefix>/lib/everest.
type Interpreters struct {
	ScriptRuntime           string `yaml:"node_binary"`
	ScriptRuntimeModuleVar  string `yaml:"-"`
	ScriptRuntimeModulePath string `yaml:"node_modules_dir"`
	Python3                 string `yaml:"python_binary"`
	PythonPath              string `yaml:"pythonpath_dir"`
}

// Settings is the fully merged runtime configuration.
type Settings struct {
	Prefix              string       `yaml:"prefix"`
	ConfigFile          string       `yaml:"config"`
	Dirs                Directories  `yaml:"-"`
	Interp              Interpreters `yaml:"-"`
	Bus                 BusEndpoint  `yaml:"-"`
	EverestTopicPrefix  string       `yaml:"everest_prefix"`
	ExternalTopicPrefix string       `yaml:"external_prefix"`
	ValidateSchema      bool         `yaml:"validate_schema"`
	Telemetry           bool         `yaml:"telemetry_enabled"`
	RunAsUser           string       `yaml:"run_as_user"`
	StatusFifo          string       `yaml:"status_fifo"`
	Standalone          []string     `yaml:"-"`
	Ignore              []string     `yaml:"-"`
}

// CLIOverrides carries the subset of Settings the CLI surface (§6) can
// set directly; zero values mean "not specified on the command line".
type CLIOverrides struct {
	Prefix         string
	ConfigFile     string
	Standalone     []string
	Ignore         []string
	DontValidate   bool
	StatusFifo     string
	UserConfigFile string
}

// Defaults builds the built-in, prefix-derived defaults layer.
func Defaults(prefix string) *Settings {
	return &Settings{
		Prefix:     prefix,
		ConfigFile: filepath.Join(prefix, "etc", "everest", "config.yaml"),
		Dirs: Directories{
			Modules:    filepath.Join(prefix, "lib", "everest", "modules"),
			Interfaces: filepath.Join(prefix, "share", "everest", "interfaces"),
			Types:      filepath.Join(prefix, "share", "everest", "types"),
			Errors:     filepath.Join(prefix, "share", "everest", "errors"),
			Schemas:    filepath.Join(prefix, "share", "everest", "schemas"),
			WWW:        filepath.Join(prefix, "share", "everest", "www"),
			Configs:    filepath.Join(prefix, "etc", "everest"),
		},
		Interp: Interpreters{
			ScriptRuntime:           "node",
			ScriptRuntimeModuleVar:  "NODE_PATH",
			ScriptRuntimeModulePath: filepath.Join(prefix, "lib", "everest", "node_modules"),
			Python3:                 "python3",
			PythonPath:              filepath.Join(prefix, "lib", "everest", "everestpy"),
		},
		Bus: BusEndpoint{
			SocketPath: filepath.Join(prefix, "var", "run", "everest", "mqtt.sock"),
		},
		EverestTopicPrefix:  "everest/",
		ExternalTopicPrefix: "external/",
		ValidateSchema:      true,
		Telemetry:           false,
	}
}

// Load merges the defaults, an optional user override file, and CLI
// overrides, in that increasing-priority order, per spec.md §4.6.
func Load(prefix string, userOverrideFile string, cli CLIOverrides) (*Settings, error) {
	s := Defaults(prefix)

	builder := config.New()
	if userOverrideFile != "" {
		builder.AddFeeder(feeder.Yaml{Path: userOverrideFile})
	}
	builder.AddStruct(s)
	if userOverrideFile != "" {
		if err := builder.Feed(); err != nil {
			return nil, fmt.Errorf("settings: feeding user overrides from %s: %w", userOverrideFile, err)
		}
	}

	applyCLI(s, cli)
	return s, nil
}

func applyCLI(s *Settings, cli CLIOverrides) {
	if cli.Prefix != "" {
		s.Prefix = cli.Prefix
	}
	if cli.ConfigFile != "" {
		s.ConfigFile = cli.ConfigFile
	}
	if cli.DontValidate {
		s.ValidateSchema = false
	}
	if cli.StatusFifo != "" {
		s.StatusFifo = cli.StatusFifo
	}
	if len(cli.Standalone) > 0 {
		s.Standalone = cli.Standalone
	}
	if len(cli.Ignore) > 0 {
		s.Ignore = cli.Ignore
	}
}
