// Package supervisor spawns and watches a single long-lived child process
// (the Horizon policy-data service), forwards OS signals to every tracked
// child, and restarts a child that exits unexpectedly.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// registry tracks every child PID across every Supervisor in the process so
// the signal-forwarding goroutine (installed once, process-wide) can reach
// all of them. OS signals are delivered to the process, not to a specific
// Supervisor instance, so this state is necessarily global.
var registry = struct {
	mu   sync.RWMutex
	pids map[int]struct{}
}{pids: make(map[int]struct{})}

func registerPID(pid int) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.pids[pid] = struct{}{}
}

func unregisterPID(pid int) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	delete(registry.pids, pid)
}

func snapshotPIDs() []int {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	out := make([]int, 0, len(registry.pids))
	for pid := range registry.pids {
		out = append(out, pid)
	}
	return out
}

var shutdownRequested atomic.Bool // flipped by the signal forwarder
var signalHandlerOnce sync.Once

// installSignalHandler starts, at most once per process, the goroutine that
// forwards INT/TERM/HUP/USR1/USR2 to every tracked child PID.
func installSignalHandler(logger zerolog.Logger) {
	signalHandlerOnce.Do(func() {
		sigCh := make(chan os.Signal, 8)
		notifySignals(sigCh)
		go func() {
			for sig := range sigCh {
				forwardSignal(logger, sig)
			}
		}()
	})
}

func forwardSignal(logger zerolog.Logger, sig os.Signal) {
	terminal := isTerminalSignal(sig)
	if terminal {
		shutdownRequested.Store(true)
	}
	for _, pid := range snapshotPIDs() {
		proc, err := os.FindProcess(pid)
		if err != nil {
			unregisterPID(pid)
			continue
		}
		if err := proc.Signal(sig); err != nil {
			logger.Debug().Err(err).Int("pid", pid).Msg("signal delivery failed, untracking pid")
			unregisterPID(pid)
			continue
		}
		if terminal {
			go escalateToKill(logger, pid, 5*time.Second)
		}
	}
}

// escalateToKill polls for process exit and sends SIGKILL if it hasn't
// exited within the grace period.
func escalateToKill(logger zerolog.Logger, pid int, grace time.Duration) {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		proc, err := os.FindProcess(pid)
		if err != nil {
			return
		}
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			return // already gone
		}
		time.Sleep(100 * time.Millisecond)
	}
	if proc, err := os.FindProcess(pid); err == nil {
		logger.Warn().Int("pid", pid).Msg("child did not exit in time, sending KILL")
		_ = proc.Kill()
	}
}

// ShutdownRequested reports whether the process-wide signal handler has
// observed a terminating signal.
func ShutdownRequested() bool {
	return shutdownRequested.Load()
}

// Spec describes the child process to supervise.
type Spec struct {
	Program string
	Args    []string
	Dir     string
	Env     []string
}

// Supervisor owns exactly one running child at a time, restarting it on
// unexpected exit until Stop is called.
type Supervisor struct {
	spec   Spec
	logger zerolog.Logger

	restartInterval time.Duration

	mu      sync.RWMutex
	cmd     *exec.Cmd
	pid     int
	stopped bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Start spawns the child and launches the monitor goroutine that restarts
// it on unexpected exit. It returns immediately without waiting for the
// child to become healthy — pair with a HealthMonitor for that.
func Start(spec Spec, logger zerolog.Logger, restartInterval time.Duration) (*Supervisor, error) {
	if restartInterval <= 0 {
		restartInterval = time.Second
	}
	installSignalHandler(logger)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		spec:            spec,
		logger:          logger.With().Str("component", "supervisor").Str("program", spec.Program).Logger(),
		restartInterval: restartInterval,
		cancel:          cancel,
		done:            make(chan struct{}),
	}

	if err := s.spawn(); err != nil {
		cancel()
		return nil, fmt.Errorf("spawn %s: %w", spec.Program, err)
	}

	go s.monitor(ctx)
	return s, nil
}

func (s *Supervisor) spawn() error {
	cmd := exec.Command(s.spec.Program, s.spec.Args...)
	cmd.Dir = s.spec.Dir
	cmd.Env = s.spec.Env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return err
	}

	s.mu.Lock()
	s.cmd = cmd
	s.pid = cmd.Process.Pid
	s.mu.Unlock()

	registerPID(cmd.Process.Pid)
	s.logger.Info().Int("pid", cmd.Process.Pid).Msg("child process started")
	return nil
}

// monitor waits for the child to exit and restarts it unless shutdown has
// been requested or the supervisor was stopped.
func (s *Supervisor) monitor(ctx context.Context) {
	defer close(s.done)
	for {
		s.mu.RLock()
		cmd := s.cmd
		s.mu.RUnlock()
		if cmd == nil {
			return
		}

		err := cmd.Wait()
		unregisterPID(cmd.Process.Pid)

		s.mu.RLock()
		stopped := s.stopped
		s.mu.RUnlock()
		if stopped || ShutdownRequested() {
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		if err != nil {
			s.logger.Warn().Err(err).Msg("child exited, respawning")
		} else {
			s.logger.Warn().Msg("child exited cleanly, respawning")
		}

		for {
			if err := s.spawn(); err != nil {
				s.logger.Error().Err(err).Dur("retry_in", s.restartInterval).Msg("respawn failed")
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.restartInterval):
					continue
				}
			}
			break
		}
	}
}

// CurrentPID returns the latest known child PID, or 0 if none is running.
func (s *Supervisor) CurrentPID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pid
}

// Restart kills the current child; the monitor goroutine respawns it. It
// fails once Stop has been called or a terminating signal has been observed.
func (s *Supervisor) Restart() error {
	s.mu.RLock()
	stopped := s.stopped
	cmd := s.cmd
	s.mu.RUnlock()
	if stopped {
		return fmt.Errorf("supervisor stopped")
	}
	if ShutdownRequested() {
		return fmt.Errorf("shutdown requested")
	}
	if cmd == nil || cmd.Process == nil {
		return fmt.Errorf("no child running")
	}
	return cmd.Process.Signal(syscall.SIGTERM)
}

// SendSignal delivers a raw signal to the current child.
func (s *Supervisor) SendSignal(sig os.Signal) error {
	s.mu.RLock()
	cmd := s.cmd
	s.mu.RUnlock()
	if cmd == nil || cmd.Process == nil {
		return fmt.Errorf("no child running")
	}
	return cmd.Process.Signal(sig)
}

// Stop requests shutdown of the supervised child and waits for the monitor
// goroutine to exit.
func (s *Supervisor) Stop(terminationTimeout time.Duration) error {
	s.mu.Lock()
	s.stopped = true
	cmd := s.cmd
	s.mu.Unlock()

	s.cancel()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		done := make(chan struct{})
		go func() {
			<-s.done
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(terminationTimeout):
			s.logger.Warn().Msg("termination timeout elapsed, sending KILL")
			_ = cmd.Process.Kill()
			<-s.done
		}
	}
	return nil
}

// ShutdownToken returns a context cancelled once the monitor goroutine
// exits: after Stop, or after the child exits following a terminating
// signal. Observers (the health monitor) use it to stop watching this child.
func (s *Supervisor) ShutdownToken() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-s.done
		cancel()
	}()
	return ctx
}
