package tunnel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// readyMarker is the line frpc prints once the proxy is registered with the
// relay. Seeing it lets startup finish before the full readiness window.
const readyMarker = "start proxy success"

// State tracks the supervisor through a single tunnel lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateBinaryReady
	StateConfigReady
	StateLaunching
	StateRunning
	StateStopped
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBinaryReady:
		return "binary-ready"
	case StateConfigReady:
		return "config-ready"
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateCrashed:
		return "crashed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// binaryProvider is satisfied by *Cache; tests substitute a stub.
type binaryProvider interface {
	Ensure(ctx context.Context) (string, error)
}

// Supervisor owns the tunnel client child process: it launches it, confirms it
// survives the readiness window, and tears it down together with the
// configuration artifact. At most one child process exists per supervisor.
type Supervisor struct {
	binaries   binaryProvider
	cfg        Config
	configPath string
	logger     *slog.Logger

	readyWindow  time.Duration
	pollInterval time.Duration
	stopTimeout  time.Duration

	mu         sync.Mutex
	state      State
	cmd        *exec.Cmd
	waitCh     chan error
	output     *lineBuffer
	generation int
}

// NewSupervisor wires a supervisor for the given tunnel parameters. configPath
// is where the ephemeral frpc configuration is written and later deleted.
func NewSupervisor(cache *Cache, cfg Config, configPath string, logger *slog.Logger) *Supervisor {
	return newSupervisor(cache, cfg, configPath, logger)
}

func newSupervisor(binaries binaryProvider, cfg Config, configPath string, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		binaries:     binaries,
		cfg:          cfg,
		configPath:   configPath,
		logger:       logger,
		readyWindow:  5 * time.Second,
		pollInterval: 100 * time.Millisecond,
		stopTimeout:  5 * time.Second,
		state:        StateUninitialized,
	}
}

// State reports the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start acquires the client binary, writes the configuration, launches the
// child process, and polls it through the readiness window. An early exit of
// the child fails startup with ErrTunnelStartup carrying the captured output.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cmd != nil {
		s.mu.Unlock()
		return fmt.Errorf("tunnel client already running (pid %d)", s.cmd.Process.Pid)
	}
	s.mu.Unlock()

	binPath, err := s.binaries.Ensure(ctx)
	if err != nil {
		return err
	}
	s.setState(StateBinaryReady)

	if err := s.cfg.WriteFile(s.configPath); err != nil {
		return err
	}
	s.setState(StateConfigReady)

	cmd := exec.Command(binPath, "-c", s.configPath)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.removeConfig()
		return fmt.Errorf("%w: stdout pipe: %v", ErrTunnelStartup, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.removeConfig()
		return fmt.Errorf("%w: stderr pipe: %v", ErrTunnelStartup, err)
	}

	output := newLineBuffer(200)
	s.setState(StateLaunching)
	if err := cmd.Start(); err != nil {
		s.removeConfig()
		return fmt.Errorf("%w: %v", ErrTunnelStartup, err)
	}

	var drain sync.WaitGroup
	drain.Add(2)
	go collectLines(&drain, output, stdout)
	go collectLines(&drain, output, stderr)

	// Buffered and closed after the send so that both the crash watcher and
	// Stop can observe the exit without racing each other for the value.
	waitCh := make(chan error, 1)
	go func() {
		drain.Wait()
		waitCh <- cmd.Wait()
		close(waitCh)
	}()

	s.mu.Lock()
	s.cmd = cmd
	s.waitCh = waitCh
	s.output = output
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	s.logger.Info("tunnel client launched", "pid", cmd.Process.Pid, "config", s.configPath)

	if err := s.awaitReady(ctx, waitCh, output); err != nil {
		s.mu.Lock()
		s.cmd = nil
		s.waitCh = nil
		s.state = StateCrashed
		s.mu.Unlock()
		// On a cancelled or timed-out startup the child is still alive; reclaim
		// it here, because the handle is gone once Start returns. Kill on an
		// already-exited process is harmless, and waitCh is closed after the
		// exit is delivered, so the receive never blocks past the reap.
		_ = cmd.Process.Kill()
		<-waitCh
		s.removeConfig()
		return err
	}

	s.setState(StateRunning)
	go s.watch(gen, waitCh)
	return nil
}

// awaitReady polls liveness until the readiness window elapses. The child
// exiting fails startup; the ready marker in its output succeeds early. The
// window elapsing with the process alive counts as running.
func (s *Supervisor) awaitReady(ctx context.Context, waitCh <-chan error, output *lineBuffer) error {
	deadline := time.NewTimer(s.readyWindow)
	defer deadline.Stop()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-waitCh:
			detail := output.String()
			if detail == "" && err != nil {
				detail = err.Error()
			}
			return fmt.Errorf("%w: %s", ErrTunnelStartup, detail)
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrTunnelStartup, ctx.Err())
		case <-ticker.C:
			if output.Contains(readyMarker) {
				s.logger.Info("tunnel confirmed ready", "tunnel", s.cfg.TunnelName)
				return nil
			}
		case <-deadline.C:
			s.logger.Debug("readiness window elapsed with tunnel client alive")
			return nil
		}
	}
}

// watch records an unexpected exit as a crash. It does not relaunch; restarts
// are operator-triggered via Restart.
func (s *Supervisor) watch(gen int, waitCh <-chan error) {
	err := <-waitCh

	s.mu.Lock()
	if s.generation != gen || s.state != StateRunning {
		// Stop already claimed this exit.
		s.mu.Unlock()
		return
	}
	s.state = StateCrashed
	s.cmd = nil
	s.waitCh = nil
	output := s.output
	s.mu.Unlock()

	detail := ""
	if err != nil {
		detail = err.Error()
	}
	s.logger.Error("tunnel client exited unexpectedly", "err", detail, "output", output.String())
	s.removeConfig()
}

// Stop terminates the child process if one is running and always removes the
// configuration artifact. It is idempotent: stopping an already-stopped
// supervisor is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cmd := s.cmd
	waitCh := s.waitCh
	s.cmd = nil
	s.waitCh = nil
	s.generation++
	s.state = StateStopped
	s.mu.Unlock()

	defer s.removeConfig()

	if cmd == nil || cmd.Process == nil {
		return
	}

	pid := cmd.Process.Pid
	s.logger.Info("stopping tunnel client", "pid", pid)
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already gone, or signalling unsupported; fall through to the wait.
		s.logger.Debug("terminate signal failed", "pid", pid, "err", err)
	}

	select {
	case <-waitCh:
		s.logger.Info("tunnel client stopped", "pid", pid)
	case <-time.After(s.stopTimeout):
		s.logger.Warn("tunnel client did not exit in time, killing", "pid", pid)
		_ = cmd.Process.Kill()
		<-waitCh
	}
}

// Restart tears down any existing child and launches a fresh one. Nothing
// calls this automatically; a crashed tunnel stays down until the operator
// asks for it.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.Stop()
	return s.Start(ctx)
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Supervisor) removeConfig() {
	if err := os.Remove(s.configPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("could not remove tunnel config", "path", s.configPath, "err", err)
	}
}

func collectLines(wg *sync.WaitGroup, buf *lineBuffer, r io.Reader) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		buf.Append(scanner.Text())
	}
}

// lineBuffer keeps the most recent output lines of the child process for
// crash diagnostics. Older lines are dropped once the cap is reached.
type lineBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func newLineBuffer(max int) *lineBuffer {
	return &lineBuffer{max: max}
}

func (b *lineBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
}

func (b *lineBuffer) Contains(substr string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range b.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func (b *lineBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}
