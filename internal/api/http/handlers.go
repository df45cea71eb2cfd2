package http

import (
	"net/http"
	"time"

	"github.com/GriffinCanCode/AgentOS/remote/internal/domain/browsercontext"
	"github.com/GriffinCanCode/AgentOS/remote/internal/domain/target"
	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ProtocolVersion is reported by the discovery endpoints
const ProtocolVersion = "1.0"

// ConnectionCounter reports open control connections
type ConnectionCounter interface {
	Connections() int
}

// Handlers serves discovery and health routes
type Handlers struct {
	engine      engine.Preferences
	targets     *target.Registry
	contexts    *browsercontext.Registry
	connections ConnectionCounter
	metrics     *monitoring.Metrics
	gatherer    prometheus.Gatherer
	wsPath      string
}

// Options are the collaborators handlers read from
type Options struct {
	Engine      engine.Preferences
	Targets     *target.Registry
	Contexts    *browsercontext.Registry
	Connections ConnectionCounter
	Metrics     *monitoring.Metrics
	Gatherer    prometheus.Gatherer
	// WebSocketPath is the route control connections are served on
	WebSocketPath string
}

// NewHandlers creates handlers
func NewHandlers(opts Options) *Handlers {
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handlers{
		engine:      opts.Engine,
		targets:     opts.Targets,
		contexts:    opts.Contexts,
		connections: opts.Connections,
		metrics:     opts.Metrics,
		gatherer:    gatherer,
		wsPath:      opts.WebSocketPath,
	}
}

// Register mounts every route on router
func (h *Handlers) Register(router gin.IRouter) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/json/version", h.Version)
	router.GET("/json/list", h.List)
	router.GET("/json", h.List)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	router.GET("/metrics/json", h.Metrics)
}

// Root handles the basic liveness check
func (h *Handlers) Root(c *gin.Context) {
	product, _ := h.engine.Version()
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "remote automation server",
		"browser": product,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	connections := 0
	if h.connections != nil {
		connections = h.connections.Connections()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"uptime":      time.Duration(h.metrics.UptimeSeconds() * float64(time.Second)).String(),
		"connections": connections,
		"targets":     len(h.targets.Targets()),
		"contexts":    len(h.contexts.List()),
	})
}

// VersionInfo is the body of /json/version
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Version describes the browser and where to connect
func (h *Handlers) Version(c *gin.Context) {
	product, userAgent := h.engine.Version()
	c.JSON(http.StatusOK, VersionInfo{
		Browser:              product,
		ProtocolVersion:      ProtocolVersion,
		UserAgent:            userAgent,
		WebSocketDebuggerURL: "ws://" + c.Request.Host + h.wsPath,
	})
}

// PageInfo is one entry of /json/list
type PageInfo struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	URL              string `json:"url"`
	BrowserContextID string `json:"browserContextId,omitempty"`
	OpenerID         string `json:"openerId,omitempty"`
}

// List returns the open pages in creation order
func (h *Handlers) List(c *gin.Context) {
	pages := []PageInfo{}
	for _, t := range h.targets.Targets() {
		if t.Kind != target.KindPage {
			continue
		}
		pages = append(pages, PageInfo{
			ID:               t.ID,
			Type:             string(t.Kind),
			URL:              t.URL,
			BrowserContextID: t.ContextID,
			OpenerID:         t.OpenerID,
		})
	}
	c.JSON(http.StatusOK, pages)
}

// Metrics returns the counter snapshot as JSON
func (h *Handlers) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"timestamp": time.Now(),
		"uptime":    h.metrics.UptimeSeconds(),
		"protocol":  h.metrics.GetSnapshot(),
	})
}
