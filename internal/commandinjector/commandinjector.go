// Package commandinjector implements §4.13: delivering a console command
// to a running server by writing it, plus a trailing newline, to the
// container's PID 1 stdin via /proc/1/fd/0. Game server processes read
// their console from stdin, and this is the only channel available once
// a container has no attached tty of its own across process boundaries.
package commandinjector

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	dockersdk "github.com/docker/docker/client"
	"github.com/pyrohost/pyro-node-agent/internal/apperr"
)

// shellQuote wraps s in single quotes, escaping any embedded single
// quote as '\'' (close quote, literal quote, reopen quote) - the
// standard POSIX technique for passing an arbitrary string through a
// single sh -c argument without it being interpreted.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Send delivers command to the running container containerID by execing
// a shell that appends it to /proc/1/fd/0. the exec itself runs detached
// (not attached, no output capture): the server's response, if any,
// arrives through the regular log stream the Log Pipeline already
// forwards, not through the exec's own stdout.
func Send(ctx context.Context, sdk *dockersdk.Client, containerID, command string) error {
	shellCmd := fmt.Sprintf("printf '%%s\\n' %s > /proc/1/fd/0", shellQuote(command))

	execCreated, err := sdk.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          []string{"sh", "-c", shellCmd},
		AttachStdout: false,
		AttachStderr: false,
	})
	if err != nil {
		return apperr.NewEngineError("failed to create command exec", err)
	}

	if err := sdk.ContainerExecStart(ctx, execCreated.ID, container.ExecStartOptions{}); err != nil {
		return apperr.NewEngineError("failed to deliver command", err)
	}
	return nil
}
