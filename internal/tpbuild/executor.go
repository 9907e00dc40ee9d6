package tpbuild

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Executor provides a consistent interface for executing build commands,
// abstracting working directory, environment and output handling.
type Executor struct {
	Context           context.Context // The context to use for cancellation
	LinePrefix        string          // Prepended to every streamed output line
	LogWriter         io.Writer       // Optional extra sink for all output
	ApplyIdlePriority bool            // Apply nice -n 19 to this specific command
}

func NewExecutor(ctx context.Context) *Executor {
	return &Executor{Context: ctx}
}

// RunInDir runs name with args in dir, using env when non-nil.
func (e *Executor) RunInDir(dir string, env []string, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Env = env
	return e.Run(cmd)
}

// Output runs the command and returns its combined stdout+stderr.
func (e *Executor) Output(cmd *exec.Cmd) (string, error) {
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := e.Run(cmd)
	return buf.String(), err
}

// Run executes the given command. It streams output line by line with the
// configured prefix, isolates the child in its own process group, and kills
// the whole group when the context is cancelled.
func (e *Executor) Run(cmd *exec.Cmd) error {
	basePath := cmd.Path
	baseArgs := cmd.Args[1:]

	if e.ApplyIdlePriority {
		baseArgs = append([]string{"-n", "19", basePath}, baseArgs...)
		basePath = "nice"
	}

	ctx := e.Context
	if ctx == nil {
		ctx = context.Background()
	}
	finalCmd := exec.CommandContext(ctx, basePath, baseArgs...)
	finalCmd.Dir = cmd.Dir

	// preserve or inherit the environment
	if len(cmd.Env) > 0 {
		finalCmd.Env = cmd.Env
	} else {
		finalCmd.Env = os.Environ()
	}

	finalCmd.Stdin = cmd.Stdin

	// Callers that set their own stdout/stderr get raw passthrough; otherwise
	// output is streamed a line at a time so a prefix can be applied.
	streaming := cmd.Stdout == nil && cmd.Stderr == nil
	var pipe io.ReadCloser
	if streaming {
		var err error
		pipe, err = finalCmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("failed to create output pipe: %w", err)
		}
		finalCmd.Stderr = finalCmd.Stdout
	} else {
		finalCmd.Stdout = cmd.Stdout
		finalCmd.Stderr = cmd.Stderr
		if finalCmd.Stderr == nil {
			finalCmd.Stderr = os.Stderr
		}
		if finalCmd.Stdout == nil {
			finalCmd.Stdout = os.Stdout
		}
	}

	// isolate process group for context-based cleanup
	finalCmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	debugf("Running: %s (dir: %s)\n", strings.Join(cmd.Args, " "), cmd.Dir)

	if err := finalCmd.Start(); err != nil {
		return fmt.Errorf("failed to start command %s: %w", cmd.Args[0], err)
	}

	pgid := finalCmd.Process.Pid
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			syscall.Kill(-pgid, syscall.SIGKILL)
		case <-done:
		}
	}()

	if streaming {
		scanner := bufio.NewScanner(pipe)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if e.LinePrefix != "" {
				fmt.Printf("[%s] %s\n", e.LinePrefix, line)
			} else {
				fmt.Println(line)
			}
			if e.LogWriter != nil {
				fmt.Fprintln(e.LogWriter, line)
			}
		}
	}

	if waitErr := finalCmd.Wait(); waitErr != nil {
		if ctx.Err() != nil {
			time.Sleep(100 * time.Millisecond)
			return fmt.Errorf("command aborted: %v", ctx.Err())
		}
		return fmt.Errorf("%s failed: %w", cmd.Args[0], waitErr)
	}
	return nil
}
