package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/labdeck/internal/bridge"
	"github.com/danmuck/labdeck/internal/observability"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoCommand      = errors.New("supervisor: command required")
	ErrAlreadyStarted = errors.New("supervisor: already started")
	ErrNotStarted     = errors.New("supervisor: not started")
	ErrStartFailed    = errors.New("supervisor: start failed")
	ErrNotReady       = errors.New("supervisor: backend not ready")
	ErrExited         = errors.New("supervisor: backend exited")
)

// Config describes the child process and how to stop and probe it.
type Config struct {
	Command string
	Args    []string
	Dir     string
	// Env is appended to the host environment.
	Env       []string
	StopGrace time.Duration
	// ReadyAddrs are host:port (or tcp://host:port) addresses probed by WaitReady.
	ReadyAddrs   []string
	ReadyTimeout time.Duration
	Backoff      bridge.BackoffConfig
	// Logger receives relayed child output. Nil uses the global logger.
	Logger *zerolog.Logger
}

func DefaultConfig() Config {
	return Config{
		StopGrace:    2 * time.Second,
		ReadyAddrs:   []string{"127.0.0.1:5555", "127.0.0.1:5556"},
		ReadyTimeout: 10 * time.Second,
		Backoff: bridge.BackoffConfig{
			InitialDelay: 50 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     time.Second,
		},
	}
}

// Status is a point-in-time view of the child.
type Status struct {
	PID       int       `json:"pid"`
	Running   bool      `json:"running"`
	Exited    bool      `json:"exited"`
	ExitCode  int       `json:"exitCode"`
	StartedAt time.Time `json:"startedAt"`
	ExitedAt  time.Time `json:"exitedAt"`
	LastError string    `json:"lastError,omitempty"`
}

// Supervisor owns one child process for its whole lifetime. It is not
// restartable.
type Supervisor struct {
	cfg Config

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	status  Status
	done    chan struct{}
}

func New(cfg Config) *Supervisor {
	return &Supervisor{
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Start spawns the child. Cancelling ctx terminates it the same way Stop does.
func (s *Supervisor) Start(ctx context.Context) error {
	command := strings.TrimSpace(s.cfg.Command)
	if command == "" {
		return ErrNoCommand
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	logger := log.Logger
	if s.cfg.Logger != nil {
		logger = *s.cfg.Logger
	}
	logger = logger.With().Str("component", "backend").Logger()

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, command, s.cfg.Args...)
	cmd.Dir = s.cfg.Dir
	if len(s.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}
	stdout := newLineRelay(logger, zerolog.InfoLevel, "stdout")
	stderr := newLineRelay(logger, zerolog.WarnLevel, "stderr")
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = sysProcAttr()
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = s.cfg.StopGrace
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultConfig().StopGrace
	}

	if err := cmd.Start(); err != nil {
		cancel()
		log.Error().Msgf("supervisor.Start failed command=%q err=%v", command, err)
		return fmt.Errorf("%w: %s: %v", ErrStartFailed, command, err)
	}

	s.started = true
	s.cancel = cancel
	s.status = Status{
		PID:       cmd.Process.Pid,
		Running:   true,
		StartedAt: time.Now(),
	}
	log.Info().Msgf("supervisor.Start command=%q args=%q pid=%d", command, s.cfg.Args, cmd.Process.Pid)

	go s.wait(cmd, stdout, stderr)
	return nil
}

func (s *Supervisor) wait(cmd *exec.Cmd, stdout, stderr *lineRelay) {
	err := cmd.Wait()
	stdout.flush()
	stderr.flush()
	code := exitCode(err)

	s.mu.Lock()
	s.status.Running = false
	s.status.Exited = true
	s.status.ExitCode = code
	s.status.ExitedAt = time.Now()
	if err != nil {
		s.status.LastError = err.Error()
	}
	pid := s.status.PID
	s.mu.Unlock()

	observability.RecordBackendExit(code)
	if code == 0 {
		log.Info().Msgf("supervisor.wait exited pid=%d code=%d", pid, code)
	} else {
		log.Warn().Msgf("supervisor.wait exited pid=%d code=%d err=%v", pid, code, err)
	}
	close(s.done)
}

// exitCode normalizes a Wait error: 0 on success, the process code when it
// exited, -1 when killed by a signal, 127 when the binary could not run.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return 127
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		return 0
	}
	return 1
}

// Stop terminates the child and waits for it to exit. Calling Stop after the
// child has exited returns its final status.
func (s *Supervisor) Stop() (Status, error) {
	s.mu.Lock()
	started, cancel := s.started, s.cancel
	s.mu.Unlock()
	if !started {
		return Status{}, ErrNotStarted
	}
	cancel()
	<-s.done
	return s.Status(), nil
}

// Done is closed once the child has exited.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// WaitReady probes every ReadyAddrs entry with TCP dials until all accept,
// the child exits, ReadyTimeout elapses, or ctx is done.
func (s *Supervisor) WaitReady(ctx context.Context) error {
	if s.cfg.ReadyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ReadyTimeout)
		defer cancel()
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for _, raw := range s.cfg.ReadyAddrs {
		addr := strings.TrimPrefix(strings.TrimSpace(raw), "tcp://")
		if addr == "" {
			continue
		}
		if err := s.probe(ctx, addr, rng); err != nil {
			return err
		}
		log.Debug().Msgf("supervisor.WaitReady ready addr=%q", addr)
	}
	return nil
}

func (s *Supervisor) probe(ctx context.Context, addr string, rng *rand.Rand) error {
	var dialer net.Dialer
	for attempt := 1; ; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		delay := bridge.NextBackoffDelay(s.cfg.Backoff, attempt, rng)
		if delay <= 0 {
			delay = 50 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrNotReady, addr, ctx.Err())
		case <-s.done:
			return fmt.Errorf("%w: %s", ErrExited, addr)
		case <-time.After(delay):
		}
	}
}
