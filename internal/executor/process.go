package executor

import (
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// procState is the lifecycle of a spawned process.
type procState int

const (
	stateRunning procState = iota
	stateExited            // Exited on its own with an exit code
	stateKilled            // Terminated by a signal
)

func (s procState) String() string {
	switch s {
	case stateRunning:
		return "running"
	case stateExited:
		return "exited"
	case stateKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// process owns one started exec.Cmd. Only the wait goroutine moves it out
// of stateRunning; everything else is a query over the recorded state.
type process struct {
	id      uint64
	command string
	cmd     *exec.Cmd
	group   bool // Process leads its own process group
	started time.Time
	done    chan struct{}

	mu       sync.Mutex
	state    procState
	exitCode int
	signal   syscall.Signal
	ended    time.Time
	waitErr  error
}

// startProcess starts cmd and begins waiting for it in the background.
func startProcess(id uint64, command string, cmd *exec.Cmd, group bool) (*process, error) {
	if group {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	p := &process{
		id:      id,
		command: command,
		cmd:     cmd,
		group:   group,
		done:    make(chan struct{}),
	}

	p.started = time.Now()
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	go func() {
		p.finish(cmd.Wait())
		close(p.done)
	}()
	return p, nil
}

func (p *process) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ended = time.Now()
	p.state = stateExited

	ps := p.cmd.ProcessState
	if ps == nil {
		p.exitCode = -1
		p.waitErr = err
		return
	}

	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		p.state = stateKilled
		p.signal = ws.Signal()
		p.exitCode = 128 + int(ws.Signal())
		return
	}

	p.exitCode = ps.ExitCode()
	if _, isExit := err.(*exec.ExitError); err != nil && !isExit {
		// I/O did not drain within WaitDelay; the exit code is still valid.
		p.waitErr = err
	}
}

// Done is closed once the process has been reaped.
func (p *process) Done() <-chan struct{} {
	return p.done
}

func (p *process) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stateRunning
}

// Duration is the wall time from start to exit, or to now while running.
func (p *process) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == stateRunning {
		return time.Since(p.started)
	}
	return p.ended.Sub(p.started)
}

// Outcome returns the exit code and, when killed, the signal name.
func (p *process) Outcome() (int, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == stateKilled {
		return p.exitCode, p.signal.String()
	}
	return p.exitCode, ""
}

func (p *process) send(sig syscall.Signal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != stateRunning || p.cmd.Process == nil {
		return
	}
	if p.group {
		_ = syscall.Kill(-p.cmd.Process.Pid, sig)
		return
	}
	_ = p.cmd.Process.Signal(sig)
}

// terminate sends SIGTERM, waits up to grace, then sends SIGKILL and waits
// for the process to be reaped.
func (p *process) terminate(grace time.Duration) {
	if !p.IsRunning() {
		<-p.done
		return
	}

	p.send(syscall.SIGTERM)

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.done:
		return
	case <-timer.C:
	}

	p.send(syscall.SIGKILL)
	<-p.done
}
