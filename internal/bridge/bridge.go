package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/labdeck/internal/observability"
	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog/log"
)

var (
	ErrCommandChannelDown   = errors.New("bridge: command channel down")
	ErrTelemetryChannelDown = errors.New("bridge: telemetry channel down")
	ErrRequestTimeout       = errors.New("bridge: request timed out")
	ErrRequestFailed        = errors.New("bridge: request failed")
	ErrClosed               = errors.New("bridge: closed")
)

// ErrorReply is what SendCommand returns when the backend cannot be reached.
const ErrorReply = `{"error":"Failed to reach backend"}`

// Bridge owns the REQ and SUB sockets to one execution backend.
type Bridge struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	// inflight admits one command exchange at a time.
	inflight sync.Mutex

	sockMu sync.Mutex
	req    zmq4.Socket
	sub    zmq4.Socket
	closed bool

	topics  map[string]struct{}
	hub     *hub
	tracker *TaskTracker
	done    chan struct{}

	// recvFailures counts receive errors since the last good message.
	recvFailures atomic.Int64

	closeOnce sync.Once
}

// Connect dials the command and telemetry channels independently. A channel
// that fails to dial is logged and left down; the returned error joins the
// per-channel failures while the returned Bridge keeps serving the healthy
// channel. A nil Bridge is returned only for an invalid config.
func Connect(ctx context.Context, cfg Config) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bctx, cancel := context.WithCancel(ctx)
	b := &Bridge{
		cfg:     cfg,
		ctx:     bctx,
		cancel:  cancel,
		topics:  make(map[string]struct{}, len(cfg.Topics)),
		hub:     newHub(),
		tracker: NewTaskTracker(),
		done:    make(chan struct{}),
	}
	for _, topic := range cfg.Topics {
		b.topics[topic] = struct{}{}
	}

	var reqErr, subErr error
	b.req, reqErr = b.dialCommand()
	if reqErr != nil {
		log.Error().Msgf("bridge.Connect command channel down endpoint=%q err=%v", cfg.CommandEndpoint, reqErr)
		reqErr = fmt.Errorf("%w: %v", ErrCommandChannelDown, reqErr)
	} else {
		log.Info().Msgf("bridge.Connect command channel up endpoint=%q", cfg.CommandEndpoint)
	}

	b.sub, subErr = b.dialTelemetry()
	if subErr != nil {
		log.Error().Msgf("bridge.Connect telemetry channel down endpoint=%q err=%v", cfg.TelemetryEndpoint, subErr)
		subErr = fmt.Errorf("%w: %v", ErrTelemetryChannelDown, subErr)
		close(b.done)
	} else {
		log.Info().Msgf("bridge.Connect telemetry channel up endpoint=%q topics=%q", cfg.TelemetryEndpoint, cfg.Topics)
		go b.listen(b.sub)
	}

	return b, errors.Join(reqErr, subErr)
}

func (b *Bridge) dialerOptions() []zmq4.Option {
	opts := []zmq4.Option{}
	if b.cfg.DialRetry > 0 {
		opts = append(opts, zmq4.WithDialerRetry(b.cfg.DialRetry))
	}
	if b.cfg.DialMaxRetries != 0 {
		opts = append(opts, zmq4.WithDialerMaxRetries(b.cfg.DialMaxRetries))
	}
	return opts
}

func (b *Bridge) dialCommand() (zmq4.Socket, error) {
	sock := zmq4.NewReq(b.ctx, b.dialerOptions()...)
	if err := sock.Dial(b.cfg.CommandEndpoint); err != nil {
		_ = sock.Close()
		return nil, err
	}
	return sock, nil
}

func (b *Bridge) dialTelemetry() (zmq4.Socket, error) {
	sock := zmq4.NewSub(b.ctx, b.dialerOptions()...)
	if err := sock.Dial(b.cfg.TelemetryEndpoint); err != nil {
		_ = sock.Close()
		return nil, err
	}
	for _, topic := range b.cfg.Topics {
		if err := sock.SetOption(zmq4.OptionSubscribe, topic); err != nil {
			_ = sock.Close()
			return nil, fmt.Errorf("subscribe %q: %w", topic, err)
		}
	}
	return sock, nil
}

// Send performs one request/reply exchange. Overlapping callers queue. The
// exchange is bounded by ctx and, when set, Config.RequestTimeout. After a
// failed exchange the command socket is replaced so the next call starts clean.
func (b *Bridge) Send(ctx context.Context, command string) (string, error) {
	b.inflight.Lock()
	defer b.inflight.Unlock()

	b.sockMu.Lock()
	sock, closed := b.req, b.closed
	b.sockMu.Unlock()
	if closed {
		return "", ErrClosed
	}
	if sock == nil {
		return "", ErrCommandChannelDown
	}

	if b.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := exchange(ctx, sock, command)
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrRequestTimeout) {
			outcome = "timeout"
		}
		observability.RecordBridgeCommand(outcome, time.Since(start))
		log.Warn().Msgf("bridge.Send failed outcome=%s err=%v", outcome, err)
		b.resetCommand(sock)
		return "", err
	}
	observability.RecordBridgeCommand("ok", time.Since(start))
	log.Debug().Msgf("bridge.Send ok duration=%s", time.Since(start))
	return reply, nil
}

type exchangeResult struct {
	reply string
	err   error
}

func exchange(ctx context.Context, sock zmq4.Socket, command string) (string, error) {
	ch := make(chan exchangeResult, 1)
	go func() {
		if err := sock.Send(zmq4.NewMsgString(command)); err != nil {
			ch <- exchangeResult{err: fmt.Errorf("%w: send: %v", ErrRequestFailed, err)}
			return
		}
		msg, err := sock.Recv()
		if err != nil {
			ch <- exchangeResult{err: fmt.Errorf("%w: recv: %v", ErrRequestFailed, err)}
			return
		}
		ch <- exchangeResult{reply: joinFrames(msg, "")}
	}()

	select {
	case res := <-ch:
		return res.reply, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrRequestTimeout, ctx.Err())
	}
}

// resetCommand closes failed and dials a replacement once. On failure the
// command channel stays down.
func (b *Bridge) resetCommand(failed zmq4.Socket) {
	b.sockMu.Lock()
	defer b.sockMu.Unlock()
	if b.closed || b.req != failed {
		return
	}
	_ = failed.Close()
	b.req = nil

	sock, err := b.dialCommand()
	if err != nil {
		log.Error().Msgf("bridge.resetCommand redial failed endpoint=%q err=%v", b.cfg.CommandEndpoint, err)
		return
	}
	b.req = sock
	log.Info().Msgf("bridge.resetCommand redialed endpoint=%q", b.cfg.CommandEndpoint)
}

// SendCommand is Send for callers that only want a string. Any failure
// yields ErrorReply.
func (b *Bridge) SendCommand(ctx context.Context, command string) string {
	reply, err := b.Send(ctx, command)
	if err != nil {
		return ErrorReply
	}
	return reply
}

// OnUpdate registers fn for every telemetry message on a subscribed topic.
// Calls happen in receive order on the listener goroutine. The returned
// func unsubscribes, blocking until an in-flight call to fn returns; it must
// not be called from inside fn.
func (b *Bridge) OnUpdate(fn func(string)) func() {
	if fn == nil {
		return func() {}
	}
	return b.hub.subscribe(fn)
}

func (b *Bridge) Tasks() []TaskStatus {
	return b.tracker.List()
}

func (b *Bridge) Task(id string) (TaskStatus, bool) {
	return b.tracker.Get(id)
}

// CommandUp reports whether the command channel currently has a socket.
func (b *Bridge) CommandUp() bool {
	b.sockMu.Lock()
	defer b.sockMu.Unlock()
	return b.req != nil && !b.closed
}

// TelemetryUp reports whether the listener is running and its last receive
// succeeded. A receive error marks the channel down until the next message
// arrives.
func (b *Bridge) TelemetryUp() bool {
	select {
	case <-b.done:
		return false
	default:
		return b.recvFailures.Load() == 0
	}
}

func (b *Bridge) listen(sock zmq4.Socket) {
	defer close(b.done)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := 0
	for {
		msg, err := sock.Recv()
		if err != nil {
			if b.ctx.Err() != nil {
				return
			}
			attempt++
			b.recvFailures.Add(1)
			delay := NextBackoffDelay(b.cfg.Backoff, attempt, rng)
			log.Warn().Msgf("bridge.listen recv failed attempt=%d retry_in=%s err=%v", attempt, delay, err)
			select {
			case <-b.ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		if attempt > 0 {
			log.Info().Msgf("bridge.listen recovered after=%d failures", attempt)
		}
		attempt = 0
		b.recvFailures.Store(0)
		b.handle(joinFrames(msg, " "))
	}
}

func (b *Bridge) handle(raw string) {
	msg, err := ParseMessage(raw)
	if err != nil {
		observability.RecordTelemetryParseError()
		log.Warn().Msgf("bridge.handle dropped err=%v", err)
		return
	}
	if _, ok := b.topics[msg.Topic]; !ok {
		log.Debug().Msgf("bridge.handle ignored topic=%q", msg.Topic)
		return
	}
	observability.RecordTelemetryMessage(msg.Topic)
	if err := b.tracker.Apply(msg); err != nil {
		observability.RecordTelemetryParseError()
		log.Warn().Msgf("bridge.handle untracked topic=%q err=%v", msg.Topic, err)
	}
	b.hub.publish(raw)
}

// Close stops the listener and closes both sockets. It is safe to call more
// than once.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.cancel()
		b.sockMu.Lock()
		b.closed = true
		if b.req != nil {
			err = errors.Join(err, b.req.Close())
			b.req = nil
		}
		if b.sub != nil {
			err = errors.Join(err, b.sub.Close())
		}
		b.sockMu.Unlock()
		<-b.done
		log.Info().Msg("bridge.Close done")
	})
	return err
}

func joinFrames(msg zmq4.Msg, sep string) string {
	if len(msg.Frames) == 1 {
		return string(msg.Frames[0])
	}
	parts := make([]string, 0, len(msg.Frames))
	for _, frame := range msg.Frames {
		parts = append(parts, string(frame))
	}
	return strings.Join(parts, sep)
}
