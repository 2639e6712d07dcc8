// Command manager boots the EVerest-style module fleet: it loads
// runtime settings, compiles the deployment configuration, spawns every
// non-standalone worker, and supervises the fleet until a worker exits
// or it receives a shutdown signal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/everest-core/manager/internal/bus"
	"github.com/everest-core/manager/internal/config"
	"github.com/everest-core/manager/internal/confval"
	"github.com/everest-core/manager/internal/errdecl"
	"github.com/everest-core/manager/internal/iface"
	"github.com/everest-core/manager/internal/logging"
	"github.com/everest-core/manager/internal/manifest"
	"github.com/everest-core/manager/internal/metrics"
	"github.com/everest-core/manager/internal/privilege"
	"github.com/everest-core/manager/internal/readiness"
	"github.com/everest-core/manager/internal/schema"
	"github.com/everest-core/manager/internal/settings"
	"github.com/everest-core/manager/internal/statusfifo"
	"github.com/everest-core/manager/internal/supervisor"
	"github.com/everest-core/manager/internal/typesys"
)

// version is stamped by the release pipeline via -ldflags; left at
// "dev" for local builds.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type cliFlags struct {
	prefix         string
	configFile     string
	userConfigFile string
	standalone     []string
	ignore         []string
	dontValidate   bool
	statusFifo     string
	check          bool
	dump           string
	dumpManifests  string
	dev            bool
}

func newRootCmd() *cobra.Command {
	var flags cliFlags

	cmd := &cobra.Command{
		Use:     "manager",
		Short:   "Boot and supervise an EVerest-style module fleet",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.prefix, "prefix", "/usr", "installation prefix the manager's directory layout is derived from")
	cmd.Flags().StringVarP(&flags.configFile, "config", "c", "", "deployment configuration file (overrides the prefix-derived default)")
	cmd.Flags().StringVar(&flags.userConfigFile, "settings", "", "user settings override file, merged between built-in defaults and CLI flags")
	cmd.Flags().StringSliceVar(&flags.standalone, "standalone", nil, "module instance ids to track for readiness but never spawn")
	cmd.Flags().StringSliceVar(&flags.ignore, "ignore", nil, "module instance ids to skip entirely")
	cmd.Flags().BoolVar(&flags.dontValidate, "dontvalidateschema", false, "skip schema validation of every loaded document")
	cmd.Flags().StringVar(&flags.statusFifo, "status-fifo", "", "FIFO path to receive boot status tokens")
	cmd.Flags().BoolVar(&flags.check, "check", false, "validate and compile the configuration, then exit without spawning workers")
	cmd.Flags().StringVar(&flags.dump, "dump", "", "compile the configuration and write the serialized document to this directory, then exit")
	cmd.Flags().StringVar(&flags.dumpManifests, "dumpmanifests", "", "load every manifest under the modules directory and report the result, then exit")
	cmd.Flags().BoolVar(&flags.dev, "dev", false, "use a development (console, debug-level) logger instead of the production JSON logger")

	return cmd
}

// boot bundles everything a run needs after settings and schema
// validation are wired, so the --check/--dump/--dumpmanifests fast
// paths and the real boot path can share one setup routine.
type boot struct {
	settings   *settings.Settings
	log        logging.Logger
	schemas    *schema.Registry
	validator  *schema.Validator
	manifests  *manifest.Store
	interfaces *iface.Resolver
	types      *typesys.Resolver
	errors     *errdecl.Registry
	compiler   *config.Compiler
	metrics    *metrics.Metrics
}

func setupBoot(flags cliFlags) (*boot, error) {
	s, err := settings.Load(flags.prefix, flags.userConfigFile, settings.CLIOverrides{
		Prefix:         flags.prefix,
		ConfigFile:     flags.configFile,
		Standalone:     flags.standalone,
		Ignore:         flags.ignore,
		DontValidate:   flags.dontValidate,
		StatusFifo:     flags.statusFifo,
		UserConfigFile: flags.userConfigFile,
	})
	if err != nil {
		return nil, fmt.Errorf("manager: loading settings: %w", err)
	}

	var log logging.Logger
	if flags.dev {
		log, err = logging.NewZapDevelopment()
	} else {
		log, err = logging.NewZap()
	}
	if err != nil {
		return nil, fmt.Errorf("manager: building logger: %w", err)
	}

	types := typesys.NewResolver(s.Dirs.Types, nil)
	schemas := schema.NewRegistry(s.Dirs.Schemas, types)

	var validator *schema.Validator
	if s.ValidateSchema {
		if err := schemas.LoadAll(); err != nil {
			return nil, fmt.Errorf("manager: loading fixed schemas: %w", err)
		}
		validator = schemas.AsValidator()
	}
	// types.Resolve validates against schema.Type only when a validator
	// is present; rebuild the resolver with it wired now that it exists.
	types = typesys.NewResolver(s.Dirs.Types, validator)
	schemas.SetTypeLoader(types)

	errs := errdecl.NewRegistry(s.Dirs.Errors, validator)
	ifaces := iface.NewResolver(s.Dirs.Interfaces, validator, errs)
	manifests := manifest.NewStore(s.Dirs.Modules, validator)
	compiler := config.NewCompiler(manifests, ifaces, validator, types)

	return &boot{
		settings:   s,
		log:        log,
		schemas:    schemas,
		validator:  validator,
		manifests:  manifests,
		interfaces: ifaces,
		types:      types,
		errors:     errs,
		compiler:   compiler,
		metrics:    metrics.New(),
	}, nil
}

func run(ctx context.Context, flags cliFlags) error {
	b, err := setupBoot(flags)
	if err != nil {
		return err
	}

	switch {
	case flags.dumpManifests != "":
		return dumpManifests(b, flags.dumpManifests)
	case flags.check:
		return checkConfig(b)
	case flags.dump != "":
		return dumpConfig(b, flags.dump)
	default:
		return bootAndSupervise(ctx, b)
	}
}

func loadDeploymentDoc(b *boot) (any, error) {
	return confval.LoadDocument(b.settings.ConfigFile)
}

func dumpManifests(b *boot, dir string) error {
	entries, err := b.manifests.DumpAll()
	if err != nil {
		return fmt.Errorf("manager: dumping manifests: %w", err)
	}
	out := make(map[string]any, len(entries))
	for _, e := range entries {
		if e.Err != nil {
			out[e.Name] = map[string]any{"error": e.Err.Error()}
			continue
		}
		out[e.Name] = e.Manifest
	}
	payload, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("manager: encoding manifest dump: %w", err)
	}
	return writeDumpFile(dir, "manifests.json", payload)
}

func checkConfig(b *boot) error {
	doc, err := loadDeploymentDoc(b)
	if err != nil {
		return fmt.Errorf("manager: loading deployment config: %w", err)
	}
	if err := b.compiler.CheckOnly(doc); err != nil {
		return fmt.Errorf("manager: config check failed: %w", err)
	}
	fmt.Fprintln(os.Stdout, "config OK")
	return nil
}

func dumpConfig(b *boot, dir string) error {
	doc, err := loadDeploymentDoc(b)
	if err != nil {
		return fmt.Errorf("manager: loading deployment config: %w", err)
	}
	compiled, err := b.compiler.Compile(doc)
	if err != nil {
		return fmt.Errorf("manager: compiling config: %w", err)
	}
	payload, err := compiled.Serialize().MarshalStable()
	if err != nil {
		return fmt.Errorf("manager: encoding compiled config: %w", err)
	}
	return writeDumpFile(dir, "config.json", payload)
}

func writeDumpFile(dir, name string, payload []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("manager: creating dump dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("manager: writing dump file %s: %w", path, err)
	}
	return nil
}

// bootAndSupervise runs the full boot sequence: compile the deployment
// config, connect the bus, register every instance with the readiness
// coordinator before spawning anything (per spec.md §4.8), spawn every
// non-ignored, non-standalone worker, and supervise the fleet until
// shutdown.
func bootAndSupervise(ctx context.Context, b *boot) error {
	doc, err := loadDeploymentDoc(b)
	if err != nil {
		b.metrics.IncBootFailure("load_config")
		return fmt.Errorf("manager: loading deployment config: %w", err)
	}
	compiled, err := b.compiler.Compile(doc)
	if err != nil {
		b.metrics.IncBootFailure("compile_config")
		return fmt.Errorf("manager: compiling config: %w", err)
	}
	b.metrics.ObserveSchemaRecords(b.schemas.Records)

	reg := prometheus.NewRegistry()
	b.metrics.MustRegister(reg)
	if b.settings.Telemetry {
		go serveMetrics(b.log, reg)
	}

	ignore := toSet(b.settings.Ignore)
	standalone := toSet(b.settings.Standalone)

	messageBus := newBus(b.settings)
	if err := messageBus.Connect(ctx); err != nil {
		b.metrics.IncBootFailure("bus_connect")
		return fmt.Errorf("manager: connecting to message bus: %w", err)
	}
	defer messageBus.Close()

	var sink readiness.StatusSink
	if b.settings.StatusFifo != "" {
		sink = statusfifo.New(b.settings.StatusFifo)
	}
	coordinator := readiness.New(messageBus, b.log, b.settings.EverestTopicPrefix, sink)

	for _, id := range compiled.Order {
		if ignore[id] {
			continue
		}
		if err := coordinator.Register(id, standalone[id] || compiled.Instances[id].Standalone); err != nil {
			b.metrics.IncBootFailure("readiness_register")
			return fmt.Errorf("manager: registering readiness for %q: %w", id, err)
		}
	}
	// Fleet-ready latency is observed when the coordinator publishes the
	// global ready signal, measured from just before the first spawn.
	readySince := time.Now()
	if _, err := messageBus.Subscribe(b.settings.EverestTopicPrefix+"ready", func([]byte) {
		b.metrics.ObserveFleetReady(readySince)
	}); err != nil {
		b.metrics.IncBootFailure("readiness_register")
		return fmt.Errorf("manager: subscribing to fleet-ready topic: %w", err)
	}
	// Every instance is registered before any worker spawns (per spec.md
	// §4.8); evaluate the barrier once now so the vacuous case — no
	// instances, or everything ignored — fires ALL_MODULES_STARTED
	// immediately instead of waiting on a readiness message that will
	// never arrive (spec.md §8 scenario 1).
	coordinator.Settle()

	sup := supervisor.New(b.log)
	for _, id := range compiled.Order {
		if ignore[id] {
			continue
		}
		inst := compiled.Instances[id]
		if standalone[id] || inst.Standalone {
			continue
		}
		if err := spawnInstance(b, sup, id, inst); err != nil {
			b.metrics.IncBootFailure("spawn")
			sup.TeardownAll(context.Background())
			coordinator.Teardown()
			return err
		}
	}
	b.metrics.SetLiveWorkers(len(sup.Live()))

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = sup.Run(runCtx)
	coordinator.Teardown()
	if err != nil && runCtx.Err() == nil {
		return err
	}
	return nil
}

func spawnInstance(b *boot, sup *supervisor.Supervisor, id string, inst *config.Instance) error {
	mt, mtErr := b.manifests.Get(inst.ModuleType)
	if mtErr != nil {
		return fmt.Errorf("manager: resolving module type for %q: %w", id, mtErr)
	}
	artifact, err := supervisor.DetectArtifact(mt.Dir, inst.ModuleType)
	if err != nil {
		return fmt.Errorf("manager: detecting artifact for %q: %w", id, err)
	}

	identity, err := supervisor.IdentityFor(b.settings.RunAsUser)
	if err != nil {
		return fmt.Errorf("manager: resolving run-as identity for %q: %w", id, err)
	}

	caps, err := privilege.ResolveCapabilities(inst.Capabilities)
	if err != nil {
		return fmt.Errorf("manager: resolving capabilities for %q: %w", id, err)
	}

	cmd, err := supervisor.BuildCommand(supervisor.SpawnParams{
		Artifact:                artifact,
		InstanceID:              id,
		Prefix:                  b.settings.Prefix,
		ConfigFile:              b.settings.ConfigFile,
		ValidateSchema:          b.settings.ValidateSchema,
		Identity:                identity,
		AmbientCaps:             caps,
		ScriptRuntime:           b.settings.Interp.ScriptRuntime,
		ScriptRuntimeModuleVar:  b.settings.Interp.ScriptRuntimeModuleVar,
		ScriptRuntimeModulePath: b.settings.Interp.ScriptRuntimeModulePath,
		Python3:                 b.settings.Interp.Python3,
		PythonPath:              b.settings.Interp.PythonPath,
	})
	if err != nil {
		return fmt.Errorf("manager: building command for %q: %w", id, err)
	}
	if _, err := sup.Spawn(id, artifact.Kind, cmd); err != nil {
		return fmt.Errorf("manager: spawning %q: %w", id, err)
	}
	return nil
}

func newBus(s *settings.Settings) bus.Bus {
	if s.Bus.Host != "" {
		return bus.NewNATS(fmt.Sprintf("nats://%s:%d", s.Bus.Host, s.Bus.Port))
	}
	if s.Bus.SocketPath != "" {
		return bus.NewNATS("unix://" + s.Bus.SocketPath)
	}
	return bus.NewMemory()
}

func serveMetrics(log logging.Logger, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(":9464", mux); err != nil {
		log.Error("metrics server stopped", "error", err.Error())
	}
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it] = true
	}
	return out
}
