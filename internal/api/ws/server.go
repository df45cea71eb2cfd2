package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/remote/internal/domain/session"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/remote/internal/shared/id"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrConnectionClosed is returned by Send once the connection is gone
	ErrConnectionClosed = errors.New("connection closed")
	// ErrSlowConsumer is returned when the outbound buffer overflows
	ErrSlowConsumer = errors.New("client is not reading fast enough")
)

// Config bounds each control connection
type Config struct {
	MaxMessageBytes int64
	WriteTimeout    time.Duration
	OutboundBuffer  int

	// RequestsPerSecond limits inbound messages. Zero disables limiting.
	RequestsPerSecond int
	Burst             int
}

// DefaultConfig returns the limits used when none are configured
func DefaultConfig() Config {
	return Config{
		MaxMessageBytes: 32 << 20,
		WriteTimeout:    10 * time.Second,
		OutboundBuffer:  1024,
	}
}

// Server upgrades control connections and serves each with its own
// dispatcher
type Server struct {
	deps     session.Deps
	config   Config
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[id.ConnectionID]*connection // Protected by mu
	closed bool                            // Protected by mu
	wg     sync.WaitGroup
}

// NewServer creates a server handing deps to every dispatcher
func NewServer(deps session.Deps, cfg Config) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OutboundBuffer <= 0 {
		cfg.OutboundBuffer = DefaultConfig().OutboundBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	return &Server{
		deps:   deps,
		config: cfg,
		logger: logger.Named("ws"),
		upgrader: websocket.Upgrader{
			// Automation clients are local tools, not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[id.ConnectionID]*connection),
	}
}

// WithMetrics adds connection tracking
func (s *Server) WithMetrics(metrics *monitoring.Metrics) *Server {
	s.metrics = metrics
	return s
}

// Connections returns the number of open connections
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// HandleConnection upgrades the request and serves it until either side
// closes
func (s *Server) HandleConnection(c *gin.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "server is shutting down"})
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	if s.config.MaxMessageBytes > 0 {
		ws.SetReadLimit(s.config.MaxMessageBytes)
	}

	conn := newConnection(ws, s.config, s.logger)
	if !s.track(conn) {
		conn.close()
		<-conn.written
		return
	}
	s.metrics.IncConnections()
	conn.logger.Info("Control connection opened", zap.String("remote", c.Request.RemoteAddr))

	deps := s.deps
	deps.Logger = conn.logger
	d := session.New(deps, conn)

	s.serve(conn, d)

	conn.close()
	d.Close()
	<-conn.written
	s.untrack(conn)
	s.metrics.DecConnections()
	conn.logger.Info("Control connection closed")
}

// serve feeds inbound frames to d until the connection fails
func (s *Server) serve(conn *connection, d *session.Dispatcher) {
	var limiter *rate.Limiter
	if s.config.RequestsPerSecond > 0 {
		burst := s.config.Burst
		if burst <= 0 {
			burst = s.config.RequestsPerSecond
		}
		limiter = rate.NewLimiter(rate.Limit(s.config.RequestsPerSecond), burst)
	}

	for {
		typ, frame, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				conn.logger.Debug("Control connection read failed", zap.Error(err))
			}
			return
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		// Excess messages wait rather than fail so every call still
		// gets its reply
		if limiter != nil {
			if err := limiter.Wait(conn.ctx); err != nil {
				return
			}
		}
		d.Handle(frame)
	}
}

func (s *Server) track(conn *connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn.id] = conn
	return true
}

func (s *Server) untrack(conn *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn.id)
}

// Close disconnects every client and waits for their dispatchers to
// finish
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*connection, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		conn.close()
	}
	s.wg.Wait()
}

// connection is one upgraded control connection. Only the writer
// goroutine writes to ws.
type connection struct {
	id           id.ConnectionID
	ws           *websocket.Conn
	logger       *zap.Logger
	writeTimeout time.Duration

	out     chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
	written chan struct{}
}

var _ session.Transport = (*connection)(nil)

func newConnection(ws *websocket.Conn, cfg Config, logger *zap.Logger) *connection {
	connID := id.NewConnectionID()
	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{
		id:           connID,
		ws:           ws,
		logger:       logger.With(logging.Connection(connID.String())),
		writeTimeout: cfg.WriteTimeout,
		out:          make(chan []byte, cfg.OutboundBuffer),
		ctx:          ctx,
		cancel:       cancel,
		written:      make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// Send queues frame for the writer. A client that lets the buffer fill
// is disconnected, since dropping a frame would lose a reply.
func (c *connection) Send(frame []byte) error {
	if c.ctx.Err() != nil {
		return ErrConnectionClosed
	}
	select {
	case c.out <- frame:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		c.logger.Warn("Outbound buffer full, closing connection", zap.Int("buffer", cap(c.out)))
		c.close()
		return ErrSlowConsumer
	}
}

func (c *connection) close() {
	c.cancel()
}

func (c *connection) writeLoop() {
	defer close(c.written)
	defer c.ws.Close()

	for {
		select {
		case frame := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("Control connection write failed", zap.Error(err))
				c.close()
				return
			}
		case <-c.ctx.Done():
			deadline := time.Now().Add(c.writeTimeout)
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}
