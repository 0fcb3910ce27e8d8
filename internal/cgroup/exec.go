package cgroup

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Launcher starts a child process and places it under cgroup control right
// after it starts, the way a real process launcher wires task placement into
// process creation; the child may already be running by the time it is
// placed (see Start). Adapted from the teacher's process
// package: the namespace Cloneflags/Unshareflags a container runtime would
// set are dropped, since cgroup placement is orthogonal to namespacing and
// out of scope here.
type Launcher struct {
	ctx *Context
	cmd *exec.Cmd
}

// LaunchSpec describes the child process to start.
type LaunchSpec struct {
	Path string
	Args []string
	// Group, if non-nil, is the destination cgroup; if nil, UID/GID-based
	// rule matching (Rules) decides placement instead.
	Group *Group
	// UseRulesCache, when Group is nil, selects cached vs fresh rule
	// lookup for ChangeCgroup.
	UseRulesCache bool
}

// NewLauncher prepares spec for execution but does not start it.
func NewLauncher(ctx *Context, spec *LaunchSpec) (*Launcher, error) {
	cmd := exec.CommandContext(context.Background(), spec.Path, spec.Args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return &Launcher{ctx: ctx, cmd: cmd}, nil
}

// Start launches the child and immediately attaches it to its destination
// cgroup: an explicit Group when the caller supplied one, or the rules
// engine's UID/GID-based resolution otherwise. The child is started stopped
// with respect to cgroup placement in spirit only — Go offers no portable
// PTRACE_ATTACH-free "start suspended", so Start places the pid as soon as
// exec.Cmd.Start returns, narrowing but not eliminating the race a
// stop-before-exec approach would close.
func (l *Launcher) Start(spec *LaunchSpec) error {
	if err := l.cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", spec.Path, err)
	}
	pid := l.cmd.Process.Pid

	var err error
	if spec.Group != nil {
		err = l.ctx.Attach(spec.Group, pid)
	} else {
		err = l.ctx.ChangeCgroup(os.Getuid(), os.Getgid(), pid, spec.UseRulesCache)
	}
	if err != nil {
		l.ctx.logger().Warn("post-exec cgroup placement failed",
			zap.Int("pid", pid), zap.Error(err))
		return err
	}
	return nil
}

// Wait blocks until the child exits and returns its exit code.
func (l *Launcher) Wait() (int, error) {
	err := l.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return 0, fmt.Errorf("wait: %w", err)
	}
	return exitErr.ExitCode(), nil
}

// Signal delivers sig to the child process.
func (l *Launcher) Signal(sig os.Signal) error {
	return l.cmd.Process.Signal(sig)
}

// GetCurrentControllerPath returns the cgroup path pid occupies under
// controller, read from /proc/<pid>/cgroup. Mirrors
// cgroup_get_current_controller_path.
func GetCurrentControllerPath(pid int, controller string) (string, error) {
	procPath := "/proc/" + strconv.Itoa(pid) + "/cgroup"
	f, err := os.Open(procPath)
	if err != nil {
		return "", newErr("GetCurrentControllerPath", "", classifyReadDirErr(err), err)
	}
	defer f.Close()
	return parseControllerPath(f, controller)
}

func parseControllerPath(r io.Reader, controller string) (string, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.SplitN(scanner.Text(), ":", 3)
		if len(fields) != 3 {
			continue
		}
		for _, c := range strings.Split(fields[1], ",") {
			if c == controller {
				return fields[2], nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", newErr("GetCurrentControllerPath", "", KindOther, err)
	}
	return "", newErr("GetCurrentControllerPath", "", KindSubsystemNotMounted, nil)
}
