package kiosk

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/labdeck/internal/bridge"
	"github.com/danmuck/labdeck/internal/labware"
	"github.com/danmuck/labdeck/internal/observability"
	"github.com/danmuck/labdeck/internal/protocol"
	"github.com/danmuck/labdeck/internal/protocol/state"
	"github.com/danmuck/labdeck/internal/supervisor"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var (
	ErrStepNotFound       = errors.New("kiosk: step not found")
	ErrLiquidNotFound     = errors.New("kiosk: liquid not found")
	ErrDeckSetupProtected = errors.New("kiosk: deck setup step cannot be deleted")
	ErrBadRequest         = errors.New("kiosk: bad request")
)

// Commander sends one command to the execution backend and always returns a
// reply string; failures come back as an error-shaped payload.
type Commander interface {
	SendCommand(ctx context.Context, command string) string
}

// Telemetry registers a callback for every inbound telemetry message.
type Telemetry interface {
	OnUpdate(fn func(string)) func()
}

// TaskSource lists tracked backend tasks.
type TaskSource interface {
	Tasks() []bridge.TaskStatus
}

// ChannelHealth reports bridge channel state for /ready.
type ChannelHealth interface {
	CommandUp() bool
	TelemetryUp() bool
}

type Options struct {
	Commander Commander
	Telemetry Telemetry
	Tasks     TaskSource
	Health    ChannelHealth
	// BackendStatus reports the supervised backend, when there is one.
	BackendStatus func() supervisor.Status

	Catalog     *labware.Catalog
	Manager     *state.Manager
	CorsOrigins []string

	// ClientQueue bounds frames buffered per websocket client.
	ClientQueue  int
	WriteTimeout time.Duration
	PingInterval time.Duration
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.ClientQueue <= 0 {
		o.ClientQueue = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Manager == nil {
		o.Manager = state.NewManager()
	}
	return o
}

// App wires the session, bridge, and catalog behind one gin router.
type App struct {
	opts    Options
	session *Session
	router  *gin.Engine
	started time.Time
	closing chan struct{}

	clientsMu sync.Mutex
	closed    bool
	clientWG  sync.WaitGroup
}

func New(opts Options) (*App, error) {
	opts = opts.withDefaults()
	if opts.Catalog == nil {
		catalog, err := labware.Builtin()
		if err != nil {
			return nil, err
		}
		opts.Catalog = catalog
	}

	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(observability.ComponentLogger("kiosk")))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CorsOrigins),
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &App{
		opts:    opts,
		session: NewSession(opts.Manager, protocol.Initial(opts.Now())),
		router:  r,
		started: opts.Now(),
		closing: make(chan struct{}),
	}
	a.registerRoutes()
	return a, nil
}

func (a *App) HTTPRouter() *gin.Engine {
	return a.router
}

func (a *App) Session() *Session {
	return a.session
}

// Serve runs the HTTP server until ctx is done, then shuts it down and
// disconnects websocket clients.
func (a *App) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Msgf("kiosk.App.Serve listening addr=%q", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		a.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	a.Close()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	log.Info().Msg("kiosk.App.Serve stopped")
	return err
}

// Close disconnects every websocket client and waits for them to detach.
func (a *App) Close() {
	a.clientsMu.Lock()
	if !a.closed {
		a.closed = true
		close(a.closing)
	}
	a.clientsMu.Unlock()
	a.clientWG.Wait()
}

// trackClient registers a websocket client unless the app is closing.
func (a *App) trackClient() bool {
	a.clientsMu.Lock()
	defer a.clientsMu.Unlock()
	if a.closed {
		return false
	}
	a.clientWG.Add(1)
	return true
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			out = append(out, origin)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:5173"}
	}
	return out
}
