package engine

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
)

// Process is a running engine process. Only the supervisor holds one.
type Process interface {
	// Stdin receives UCI commands.
	Stdin() io.Writer

	// Stdout yields engine output.
	Stdout() io.Reader

	// Terminate asks the process to exit.
	Terminate() error

	// Kill forcibly ends the process.
	Kill() error

	// Exited is closed once the process has exited.
	Exited() <-chan struct{}

	// Pid returns the OS process id, or zero if there is none.
	Pid() int
}

// Launcher spawns engine processes.
type Launcher interface {
	Launch(ctx context.Context) (Process, error)
}

// ExecLauncher launches an engine binary with os/exec.
type ExecLauncher struct {
	// Path is the engine binary, e.g. "stockfish".
	Path string

	// Args are passed to the binary.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string
}

// Compile-time check that ExecLauncher implements Launcher.
var _ Launcher = (*ExecLauncher)(nil)

// Launch starts the engine binary. The process is not bound to ctx; its
// lifetime is managed by the supervisor.
func (l *ExecLauncher) Launch(ctx context.Context) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(l.Path, l.Args...)
	cmd.Dir = l.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", l.Path, err)
	}

	p := &execProcess{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		exited: make(chan struct{}),
	}
	go p.wait()
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	exited chan struct{}

	mu  sync.Mutex
	err error
}

func (p *execProcess) wait() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	close(p.exited)
}

func (p *execProcess) Stdin() io.Writer        { return p.stdin }
func (p *execProcess) Stdout() io.Reader       { return p.stdout }
func (p *execProcess) Exited() <-chan struct{} { return p.exited }

func (p *execProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Terminate closes stdin and sends SIGTERM.
func (p *execProcess) Terminate() error {
	p.stdin.Close()
	select {
	case <-p.exited:
		return nil
	default:
	}
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

// Kill sends SIGKILL.
func (p *execProcess) Kill() error {
	select {
	case <-p.exited:
		return nil
	default:
	}
	return p.cmd.Process.Kill()
}
