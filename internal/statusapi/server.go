// Package statusapi serves a read-only view of the trading loop over HTTP
// and pushes loop events to websocket clients.
package statusapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rustyeddy/autotrader/trader"
)

// StatusFunc reports the current loop status. ok is false when no loop is
// running.
type StatusFunc func() (status trader.Status, ok bool)

// Server is also a trader.Sink: every published event is kept for /events
// and fanned out to /ws subscribers.
type Server struct {
	status StatusFunc
	events *trader.Recorder
	log    *zap.Logger

	engine   *gin.Engine
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[chan trader.Event]struct{}
	http *http.Server
}

func New(status StatusFunc, keep int, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		status: status,
		events: trader.NewRecorder(keep),
		log:    log.Named("statusapi"),
		engine: gin.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: make(map[chan trader.Event]struct{}),
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.healthz)
	s.engine.GET("/status", s.getStatus)
	s.engine.GET("/events", s.getEvents)
	s.engine.GET("/ws", s.websocket)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) getStatus(c *gin.Context) {
	if s.status == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no trading loop"})
		return
	}
	st, ok := s.status()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no trading loop"})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) getEvents(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"events": s.events.Recent(limit)})
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	stream, unsub := s.subscribe(64)
	defer unsub()

	// Reads only detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case e := <-stream:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(e); err != nil {
				s.log.Debug("ws write failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *Server) subscribe(size int) (<-chan trader.Event, func()) {
	ch := make(chan trader.Event, size)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
}

// Subscribers counts connected websocket clients.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Publish records e and forwards it to subscribers. Slow subscribers miss
// events rather than stalling the loop.
func (s *Server) Publish(e trader.Event) {
	s.events.Publish(e)

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	srv := &http.Server{Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}

	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	s.log.Info("status api listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("status api stopped", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
