package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/everest-core/manager/internal/privilege"
)

// SpawnParams carries everything BuildCommand needs to construct a
// single worker's exec.Cmd, per the exact argv/env table in spec.md
// §4.7.
type SpawnParams struct {
	Artifact       *Artifact
	InstanceID     string
	Prefix         string
	ConfigFile     string
	ValidateSchema bool
	Identity       *privilege.Identity
	AmbientCaps    []uintptr

	// ScriptRuntime is the script interpreter binary (e.g. "node") and
	// ScriptRuntimeModulePath is the env var value pointing it at the
	// module runtime library workers link against.
	ScriptRuntime           string
	ScriptRuntimeModulePath string
	ScriptRuntimeModuleVar  string

	// Python3 is the interpreted-kind interpreter binary.
	Python3    string
	PythonPath string
}

// BuildCommand constructs the exec.Cmd for one worker, per artifact
// kind, without starting it.
func BuildCommand(p SpawnParams) (*exec.Cmd, error) {
	var cmd *exec.Cmd
	env := os.Environ()
	switch p.Artifact.Kind {
	case KindNative:
		cmd = exec.Command(p.Artifact.Path,
			"--prefix", p.Prefix,
			"--conf", p.ConfigFile,
			"--module", p.InstanceID,
		)
	case KindScript:
		if p.ScriptRuntime == "" {
			return nil, fmt.Errorf("supervisor: instance %q: no script runtime configured", p.InstanceID)
		}
		cmd = exec.Command(p.ScriptRuntime, "--unhandled-rejections=strict", p.Artifact.Path)
		env = append(env,
			"EV_MODULE="+p.InstanceID,
			"EV_PREFIX="+p.Prefix,
			"EV_CONF_FILE="+p.ConfigFile,
			p.ScriptRuntimeModuleVar+"="+p.ScriptRuntimeModulePath,
		)
	case KindInterpreted:
		if p.Python3 == "" {
			return nil, fmt.Errorf("supervisor: instance %q: no python3 interpreter configured", p.InstanceID)
		}
		cmd = exec.Command(p.Python3, p.Artifact.Path)
		env = append(env,
			"EV_MODULE="+p.InstanceID,
			"EV_PREFIX="+p.Prefix,
			"EV_CONF_FILE="+p.ConfigFile,
			"PYTHONPATH="+p.PythonPath,
		)
	default:
		return nil, fmt.Errorf("supervisor: instance %q: unknown artifact kind", p.InstanceID)
	}

	cmd.Env = append(env, validateEnv(p.ValidateSchema)...)
	cmd.SysProcAttr = privilege.BuildSysProcAttr(p.Identity, p.AmbientCaps, syscall.SIGTERM)
	return cmd, nil
}

// validateEnv reflects the validation toggle as the EV_VALIDATE_SCHEMA /
// EV_DONT_VALIDATE_SCHEMA env pair spec.md §4.7/§6 specify.
func validateEnv(validate bool) []string {
	if validate {
		return []string{"EV_VALIDATE_SCHEMA=1", "EV_DONT_VALIDATE_SCHEMA="}
	}
	return []string{"EV_VALIDATE_SCHEMA=", "EV_DONT_VALIDATE_SCHEMA=1"}
}
