// Package process runs external commands as opaque, cancellable units.
// Training and prediction scripts execute through here: output streams
// line-by-line into the logger, exit status and duration are recorded, and
// cancelling the context kills the whole process group.
package process

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/pkg/errors"
)

const (
	// tailLimit bounds how many trailing output lines an Outcome retains.
	tailLimit = 20

	// maxLineBytes bounds a single scanned output line.
	maxLineBytes = 1024 * 1024

	// waitDelay lets Wait return even if a grandchild inherited the output
	// pipe and never exits.
	waitDelay = 3 * time.Second
)

// Spec describes one command invocation.
type Spec struct {
	// Name labels log lines for this run, e.g. "train:7f3a".
	Name string
	// Command is the binary to execute, resolved against PATH.
	Command string
	Args    []string
	// Dir is the working directory. Empty means inherit.
	Dir string
	// Env entries are appended to the parent environment.
	Env []string
}

// Outcome records how a finished process behaved.
type Outcome struct {
	// ExitCode is the process exit status, -1 when killed by a signal.
	ExitCode int
	Duration time.Duration
	// Tail holds the last output lines for error reporting.
	Tail []string
}

// Runner executes Specs one at a time per call. It holds no state between
// runs.
type Runner struct {
	logger logging.Logger
}

// NewRunner returns a Runner logging through log.
func NewRunner(log logging.Logger) *Runner {
	return &Runner{logger: log}
}

// Available reports whether command resolves against PATH.
func (r *Runner) Available(command string) error {
	if _, err := exec.LookPath(command); err != nil {
		return errors.Wrapf(err, errors.ErrCodeJobStartFailed, "command %q not found in PATH", command)
	}
	return nil
}

// Run executes the spec and blocks until the process exits or ctx is done.
// Cancellation kills the process group, so interpreters cannot leave
// grandchildren behind. The returned Outcome is non-nil whenever the process
// actually started, including on failure.
func (r *Runner) Run(ctx context.Context, spec Spec) (*Outcome, error) {
	if spec.Command == "" {
		return nil, errors.New(errors.ErrCodeValidation, "command is required")
	}
	if err := r.Available(spec.Command); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	// The process leads its own group so the kill below reaches everything
	// the interpreter spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	tail := newTailBuffer(tailLimit)
	scanned := make(chan struct{})
	go func() {
		defer close(scanned)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			line := scanner.Text()
			tail.add(line)
			r.logger.Debug("Process output",
				logging.String("process", spec.Name),
				logging.String("line", line))
		}
	}()

	r.logger.Info("Starting process",
		logging.String("process", spec.Name),
		logging.String("command", spec.Command),
		logging.Int("args", len(spec.Args)),
		logging.String("dir", spec.Dir))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		pw.Close()
		<-scanned
		return nil, errors.Wrapf(err, errors.ErrCodeJobStartFailed, "failed to start %q", spec.Command)
	}

	waitErr := cmd.Wait()
	pw.Close()
	<-scanned

	outcome := &Outcome{
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
		Tail:     tail.lines(),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		r.logger.Info("Process canceled",
			logging.String("process", spec.Name),
			logging.Duration("duration", outcome.Duration))
		if ctxErr == context.DeadlineExceeded {
			return outcome, errors.Wrap(ctxErr, errors.ErrCodeTimeout, "process timed out")
		}
		return outcome, errors.Wrap(ctxErr, errors.ErrCodeJobCanceled, "process canceled")
	}

	if waitErr != nil {
		r.logger.Error("Process failed",
			logging.String("process", spec.Name),
			logging.Int("exit_code", outcome.ExitCode),
			logging.Duration("duration", outcome.Duration))
		return outcome, errors.Wrapf(waitErr, errors.ErrCodeJobExitedNonZero,
			"process exited with status %d", outcome.ExitCode)
	}

	r.logger.Info("Process finished",
		logging.String("process", spec.Name),
		logging.Int("exit_code", outcome.ExitCode),
		logging.Duration("duration", outcome.Duration))
	return outcome, nil
}

// tailBuffer keeps the most recent lines in arrival order.
type tailBuffer struct {
	limit int
	buf   []string
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) add(line string) {
	t.buf = append(t.buf, line)
	if len(t.buf) > t.limit {
		t.buf = t.buf[1:]
	}
}

func (t *tailBuffer) lines() []string {
	out := make([]string, len(t.buf))
	copy(out, t.buf)
	return out
}
