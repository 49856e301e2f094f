package dockerengine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"github.com/pyrohost/pyro-node-agent/internal/apperr"
	"github.com/pyrohost/pyro-node-agent/internal/eggs"
	"github.com/pyrohost/pyro-node-agent/internal/instance"
	"github.com/pyrohost/pyro-node-agent/internal/template"
)

// installContainerMemoryLimitBytes caps every install container at 2 GiB,
// per §4.6's fixed install-time resource ceiling - independent of the
// instance's own configured plan, since an install script has no
// business needing more than a generous, fixed budget.
const installContainerMemoryLimitBytes = 2 << 30

const installScriptName = "pyro-install.sh"

// Install runs the one-shot installer flow for the instance rooted at
// instanceDir. egg must be the descriptor cfg was validated against.
// logLine is called once per line of installer output and is normally
// wired to the Log Pipeline so install output is visible the same way
// runtime logs are.
func (c *Client) Install(ctx context.Context, cfg *instance.Config, egg *eggs.Egg, instanceDir string, logLine func(level, message string)) error {
	runID := uuid.New().String()
	logger := c.logger.With("instance", cfg.ID, "install_run", runID)

	if err := c.materializeConfigFiles(egg, cfg, instanceDir); err != nil {
		return err
	}

	script := egg.Scripts.Installation
	if script.Script == "" {
		// no install step declared: the egg is ready to run as-is.
		logger.Info("egg declares no installation script, skipping install container")
		return nil
	}

	scriptPath := filepath.Join(instanceDir, installScriptName)
	if err := os.WriteFile(scriptPath, []byte(script.Script), 0755); err != nil {
		return apperr.NewInternal("failed to write install script", err)
	}

	if err := c.EnsureImage(ctx, script.Container); err != nil {
		return apperr.NewEngineError(fmt.Sprintf("failed to pull installer image %q", script.Container), err)
	}

	env := buildVariableEnv(egg, cfg)
	env = append(env, fmt.Sprintf("SERVER_PORT=%d", cfg.Port), fmt.Sprintf("SERVER_MEMORY=%d", cfg.Plan.RAM*1024))

	containerCfg := &container.Config{
		Image:      script.Container,
		Entrypoint: []string{script.Entrypoint},
		Cmd:        []string{filepath.Join("/mnt/server", installScriptName)},
		Env:        env,
		WorkingDir: "/mnt/server",
	}
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: instanceDir, Target: "/mnt/server", ReadOnly: false},
		},
		Resources:  container.Resources{Memory: installContainerMemoryLimitBytes},
		AutoRemove: true,
	}

	name := "pyro-install-" + cfg.ID
	created, err := c.sdk.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name)
	if err != nil {
		return apperr.NewEngineError("failed to create install container", err)
	}
	logger.Info("install container created", "container_id", shortID(created.ID))

	if err := c.sdk.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return apperr.NewEngineError("failed to start install container", err)
	}
	logger.Info("install container started")

	if err := c.streamInstallLogs(ctx, created.ID, logLine); err != nil {
		logger.Warn("failed to stream install logs (non-fatal)", "error", err)
	}

	statusCh, errCh := c.sdk.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case waitErr := <-errCh:
		if waitErr != nil {
			return apperr.NewInstallFailed("error waiting for install container to exit", waitErr)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	logger.Info("install container exited", "exit_code", exitCode)
	if exitCode != 0 {
		return apperr.NewInstallFailed(fmt.Sprintf("install script exited with code %d", exitCode), nil)
	}
	return nil
}

// streamInstallLogs attaches to the install container's combined output
// and forwards each demultiplexed line to logLine at "info" level, per
// §4.6 step 4.
func (c *Client) streamInstallLogs(ctx context.Context, containerID string, logLine func(level, message string)) error {
	reader, err := c.sdk.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return err
	}
	defer reader.Close()

	pr, pw := io.Pipe()
	go func() {
		_, copyErr := stdcopy.StdCopy(pw, pw, reader)
		pw.CloseWithError(copyErr)
	}()

	scanLines(pr, func(line string) {
		if logLine != nil {
			logLine("info", line)
		}
	})
	return nil
}

// materializeConfigFiles renders every egg.ConfigBlock.Files entry into
// instanceDir, expanding templates against cfg first.
func (c *Client) materializeConfigFiles(egg *eggs.Egg, cfg *instance.Config, instanceDir string) error {
	ctx := template.Context{
		Port:      cfg.Port,
		MemoryMiB: cfg.Plan.RAM * 1024,
		Variables: VariablesWithDefaults(egg, cfg),
	}

	for name, file := range egg.ConfigBlock.Files {
		body, err := renderConfigFile(file, ctx)
		if err != nil {
			return apperr.NewInternal(fmt.Sprintf("failed to render config file %q", name), err)
		}
		path := filepath.Join(instanceDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return apperr.NewInternal(fmt.Sprintf("failed to create parent directory for %q", name), err)
		}
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			return apperr.NewInternal(fmt.Sprintf("failed to write config file %q", name), err)
		}
	}
	return nil
}

func renderConfigFile(file eggs.ConfigFile, ctx template.Context) (string, error) {
	switch file.Parser {
	case eggs.ParserFile:
		return template.Expand(file.Content, ctx), nil
	case eggs.ParserProperties:
		return renderKeyValue(file.Find, ctx, "="), nil
	case eggs.ParserYAML:
		return renderKeyValue(file.Find, ctx, ": "), nil
	default:
		return "", fmt.Errorf("unknown config file parser %q", file.Parser)
	}
}

// renderKeyValue expands every value in find and writes deterministic,
// sorted "key<sep>value" lines - sorted so repeated materialization of
// the same config produces byte-identical output, which keeps reinstall
// idempotent and diff-friendly.
func renderKeyValue(find map[string]string, ctx template.Context, sep string) string {
	keys := make([]string, 0, len(find))
	for k := range find {
		keys = append(keys, k)
	}
	sortStrings(keys)

	out := ""
	for _, k := range keys {
		out += k + sep + template.Expand(find[k], ctx) + "\n"
	}
	return out
}

// VariablesWithDefaults merges an egg's declared variable defaults with
// an instance's overrides, keyed by env_variable - the single source of
// truth for both the runtime container's environment and every template
// expansion context built against cfg.
func VariablesWithDefaults(egg *eggs.Egg, cfg *instance.Config) map[string]string {
	out := make(map[string]string, len(egg.Variables))
	for _, v := range egg.Variables {
		out[v.EnvVariable] = v.DefaultValue
	}
	for k, v := range cfg.Variables {
		out[k] = v
	}
	return out
}

func buildVariableEnv(egg *eggs.Egg, cfg *instance.Config) []string {
	values := VariablesWithDefaults(egg, cfg)
	env := make([]string, 0, len(values))
	for k, v := range values {
		env = append(env, k+"="+v)
	}
	return env
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
