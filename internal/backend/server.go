package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyStarted = errors.New("backend: already started")
	ErrNotStarted     = errors.New("backend: not started")
)

const (
	TopicProgress = "progress"
	TopicResult   = "result"
)

// StartedReply is the immediate answer to every command.
type StartedReply struct {
	Status          string `json:"status"`
	ID              string `json:"id"`
	OriginalRequest string `json:"original_request"`
}

// ProgressUpdate is published once per tick while a task runs.
type ProgressUpdate struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Value   int    `json:"value"`
	Message string `json:"message"`
}

// ResultUpdate is published once when a task completes.
type ResultUpdate struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Data   string `json:"data"`
}

// Server is the REP/PUB execution backend.
type Server struct {
	cfg Config

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	rep    zmq4.Socket
	pub    zmq4.Socket

	// pubMu serializes writers on the PUB socket.
	pubMu sync.Mutex

	tasks   *taskTable
	workers sync.WaitGroup
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func NewServer(cfg Config) *Server {
	return &Server{
		cfg:   cfg,
		tasks: newTaskTable(),
		done:  make(chan struct{}),
	}
}

// Start binds both sockets and begins serving commands.
func (s *Server) Start(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return ErrAlreadyStarted
	}

	sctx, cancel := context.WithCancel(ctx)
	rep := zmq4.NewRep(sctx)
	if err := rep.Listen(s.cfg.CommandEndpoint); err != nil {
		cancel()
		_ = rep.Close()
		return fmt.Errorf("backend: listen command %s: %w", s.cfg.CommandEndpoint, err)
	}
	pub := zmq4.NewPub(sctx)
	if err := pub.Listen(s.cfg.TelemetryEndpoint); err != nil {
		cancel()
		_ = rep.Close()
		_ = pub.Close()
		return fmt.Errorf("backend: listen telemetry %s: %w", s.cfg.TelemetryEndpoint, err)
	}

	s.ctx, s.cancel, s.rep, s.pub = sctx, cancel, rep, pub
	log.Info().Msgf("backend.Server.Start command=%q telemetry=%q steps=%d tick=%s",
		s.cfg.CommandEndpoint, s.cfg.TelemetryEndpoint, s.cfg.Steps, s.cfg.Tick)
	go s.serve(sctx, rep)
	return nil
}

// CommandAddr returns the bound command address, useful with port 0.
func (s *Server) CommandAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rep == nil {
		return nil
	}
	return s.rep.Addr()
}

// TelemetryAddr returns the bound telemetry address, useful with port 0.
func (s *Server) TelemetryAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pub == nil {
		return nil
	}
	return s.pub.Addr()
}

func (s *Server) serve(ctx context.Context, rep zmq4.Socket) {
	defer close(s.done)
	for {
		msg, err := rep.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Msgf("backend.Server.serve recv failed err=%v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		command := ""
		if len(msg.Frames) > 0 {
			command = string(msg.Frames[0])
		}
		if ctx.Err() != nil {
			return
		}
		reply := s.accept(ctx, command)
		if err := rep.Send(zmq4.NewMsgString(reply)); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Msgf("backend.Server.serve reply failed err=%v", err)
		}
	}
}

// accept records a task for command, starts its worker, and returns the reply.
func (s *Server) accept(ctx context.Context, command string) string {
	id := uuid.NewString()[:8]
	log.Info().Msgf("backend.Server.accept task=%s command=%q", id, command)
	s.tasks.put(Task{
		ID:        id,
		Command:   command,
		Phase:     TaskRunning,
		StartedAt: time.Now(),
	})

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		s.run(ctx, id, command)
	}()

	raw, _ := json.Marshal(StartedReply{Status: "started", ID: id, OriginalRequest: command})
	return string(raw)
}

func (s *Server) run(ctx context.Context, id, command string) {
	steps := s.cfg.Steps
	for i := 1; i <= steps; i++ {
		select {
		case <-ctx.Done():
			s.tasks.update(id, func(t *Task) {
				t.Phase = TaskCanceled
				t.FinishedAt = time.Now()
			})
			return
		case <-time.After(s.cfg.Tick):
		}
		pct := i * 100 / steps
		s.tasks.update(id, func(t *Task) { t.Progress = pct })
		s.publish(TopicProgress, ProgressUpdate{
			ID:      id,
			Status:  "running",
			Value:   pct,
			Message: fmt.Sprintf("Processing step %d of %d...", i, steps),
		})
	}
	s.tasks.update(id, func(t *Task) {
		t.Phase = TaskCompleted
		t.FinishedAt = time.Now()
	})
	s.publish(TopicResult, ResultUpdate{
		ID:     id,
		Status: "completed",
		Data:   fmt.Sprintf("Analysis of '%s' is complete.", command),
	})
	log.Info().Msgf("backend.Server.run task=%s completed", id)
}

func (s *Server) publish(topic string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Msgf("backend.Server.publish encode failed topic=%s err=%v", topic, err)
		return
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if err := s.pub.Send(zmq4.NewMsgString(topic + " " + string(raw))); err != nil {
		log.Warn().Msgf("backend.Server.publish failed topic=%s err=%v", topic, err)
	}
}

func (s *Server) Tasks() []Task {
	return s.tasks.list()
}

func (s *Server) Task(id string) (Task, bool) {
	return s.tasks.get(id)
}

// Done is closed once the serve loop has exited.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Close cancels running tasks, stops the serve loop before waiting for task
// workers, and closes both sockets. Later calls return the first result.
func (s *Server) Close() error {
	s.mu.Lock()
	cancel, rep, pub := s.cancel, s.rep, s.pub
	s.mu.Unlock()
	if cancel == nil {
		return ErrNotStarted
	}
	s.closeOnce.Do(func() {
		cancel()
		// serve is the only caller of accept, so once it has returned no
		// new worker can be added while Wait runs.
		repErr := rep.Close()
		<-s.done
		s.workers.Wait()
		s.closeErr = errors.Join(repErr, pub.Close())
		log.Info().Msg("backend.Server.Close done")
	})
	return s.closeErr
}
