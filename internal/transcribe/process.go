package transcribe

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Process is a running transcription engine.
type Process interface {
	// Output is the engine's stdout, read line by line.
	Output() io.Reader
	// Terminate asks the engine to exit and waits up to timeout before killing it.
	// Terminating an engine that already exited is a no-op.
	Terminate(timeout time.Duration) error
	// Done is closed once the engine has exited and been reaped.
	Done() <-chan struct{}
	// ExitErr returns the wait error. Only valid after Done is closed.
	ExitErr() error
	// Close releases the output pipe.
	Close() error
	Pid() int
}

// Launcher starts transcription engines.
type Launcher interface {
	Launch() (Process, error)
}

// EngineCommand describes a whisper.cpp stream invocation.
type EngineCommand struct {
	Binary   string
	Model    string
	Language string
	Threads  int
	StepMs   int
	LengthMs int
}

// Args returns the engine's command-line arguments.
func (c EngineCommand) Args() []string {
	lang := c.Language
	if lang == "" {
		lang = "auto"
	}
	threads := c.Threads
	if threads < 1 {
		threads = 8
	}
	step := c.StepMs
	if step <= 0 {
		step = 2000
	}
	length := c.LengthMs
	if length <= 0 {
		length = 8000
	}
	return []string{
		"-m", c.Model,
		"-l", lang,
		"-t", strconv.Itoa(threads),
		"--step", strconv.Itoa(step),
		"--length", strconv.Itoa(length),
	}
}

func (c EngineCommand) String() string {
	return c.Binary + " " + strings.Join(c.Args(), " ")
}

// ExecLauncher runs an engine binary as a child process. Stderr is discarded.
type ExecLauncher struct {
	Binary string
	Args   []string
}

// NewExecLauncher creates a launcher for the given engine command.
func NewExecLauncher(c EngineCommand) *ExecLauncher {
	return &ExecLauncher{Binary: c.Binary, Args: c.Args()}
}

// Launch starts the binary. Stdout is an os.Pipe owned by this process handle,
// so reaping the child never closes the reader under an active scan.
func (l *ExecLauncher) Launch() (Process, error) {
	if strings.TrimSpace(l.Binary) == "" {
		return nil, errors.New("no engine binary configured")
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	cmd := exec.Command(l.Binary, l.Args...)
	cmd.Stdout = w
	cmd.Stderr = nil // os.DevNull

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, fmt.Errorf("start %s: %w", l.Binary, err)
	}
	// The child holds its own copy of the write end; ours must be closed so
	// the reader sees EOF when the child exits.
	w.Close()

	p := &execProcess{
		cmd:    cmd,
		stdout: r,
		done:   make(chan struct{}),
	}
	go p.wait()
	return p, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	stdout  *os.File
	done    chan struct{}
	waitErr error
}

func (p *execProcess) wait() {
	p.waitErr = p.cmd.Wait()
	close(p.done)
}

func (p *execProcess) Output() io.Reader     { return p.stdout }
func (p *execProcess) Done() <-chan struct{} { return p.done }
func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }

func (p *execProcess) ExitErr() error {
	select {
	case <-p.done:
		return p.waitErr
	default:
		return nil
	}
}

func (p *execProcess) Close() error {
	err := p.stdout.Close()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

func (p *execProcess) Terminate(timeout time.Duration) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		// SIGTERM is unsupported on some platforms; go straight to kill.
		return p.kill(timeout)
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(timeout):
	}
	return p.kill(timeout)
}

func (p *execProcess) kill(timeout time.Duration) error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill pid %d: %w", p.cmd.Process.Pid, err)
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("pid %d did not exit %s after kill", p.cmd.Process.Pid, timeout)
	}
}
