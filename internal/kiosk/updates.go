package kiosk

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/danmuck/labdeck/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// wsClient buffers telemetry for one websocket. enqueue runs on the bridge
// listener goroutine and never blocks: a full queue drops the frame.
type wsClient struct {
	conn      *websocket.Conn
	queue     chan string
	done      chan struct{}
	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn, size int) *wsClient {
	return &wsClient{
		conn:  conn,
		queue: make(chan string, size),
		done:  make(chan struct{}),
	}
}

func (w *wsClient) enqueue(raw string) {
	select {
	case <-w.done:
		return
	default:
	}
	select {
	case w.queue <- raw:
	default:
		observability.RecordWebsocketDrop()
	}
}

func (w *wsClient) close() {
	w.closeOnce.Do(func() { close(w.done) })
}

// readLoop discards inbound frames and closes the client when the peer goes away.
func (w *wsClient) readLoop() {
	defer w.close()
	w.conn.SetReadLimit(4096)
	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (w *wsClient) writeLoop(closing <-chan struct{}, writeTimeout, pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-closing:
			deadline := time.Now().Add(writeTimeout)
			_ = w.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
			return
		case raw := <-w.queue:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := w.conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
				log.Debug().Msgf("kiosk.wsClient.writeLoop write failed err=%v", err)
				return
			}
		case <-ticker.C:
			if err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (a *App) upgrader() websocket.Upgrader {
	allowed := make(map[string]struct{}, len(a.opts.CorsOrigins))
	for _, origin := range normalizeOrigins(a.opts.CorsOrigins) {
		allowed[origin] = struct{}{}
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := allowed[origin]; ok {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && u.Host == r.Host
		},
	}
}

// handleUpdates streams every telemetry message to the client as one text
// frame until either side closes.
func (a *App) handleUpdates(c *gin.Context) {
	if a.opts.Telemetry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "telemetry unavailable"})
		return
	}
	if !a.trackClient() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		return
	}
	defer a.clientWG.Done()

	up := a.upgrader()
	conn, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Msgf("kiosk.App.handleUpdates upgrade failed err=%v", err)
		return
	}

	client := newWSClient(conn, a.opts.ClientQueue)
	unsubscribe := a.opts.Telemetry.OnUpdate(client.enqueue)
	observability.AddWebsocketClients(1)
	log.Debug().Msgf("kiosk.App.handleUpdates connected remote=%q", c.Request.RemoteAddr)

	go client.readLoop()
	client.writeLoop(a.closing, a.opts.WriteTimeout, a.opts.PingInterval)

	unsubscribe()
	client.close()
	_ = conn.Close()
	observability.AddWebsocketClients(-1)
	log.Debug().Msgf("kiosk.App.handleUpdates disconnected remote=%q", c.Request.RemoteAddr)
}
