package headless

import (
	"context"
	"strings"
	"sync"

	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
)

// Error codes reported through OnFailure
const (
	codeAborted           = "NS_BINDING_ABORTED"
	codeFailure           = "NS_ERROR_FAILURE"
	codeUnknownHost       = "NS_ERROR_UNKNOWN_HOST"
	codeConnectionRefused = "NS_ERROR_CONNECTION_REFUSED"
	codeTimeout           = "NS_ERROR_NET_TIMEOUT"
	codeTooManyRedirects  = "NS_ERROR_REDIRECT_LOOP"
	codeUnsupportedScheme = "NS_ERROR_UNKNOWN_PROTOCOL"
)

// channel is one HTTP exchange as seen by observers
type channel struct {
	id  string
	tab engine.TabID

	mu        sync.Mutex
	req       engine.RequestInfo
	sent      bool
	suspends  int
	cancelled string
	wake      chan struct{}
}

var _ engine.Channel = (*channel)(nil)

func newChannel(id string, tab engine.TabID, req engine.RequestInfo) *channel {
	return &channel{
		id:   id,
		tab:  tab,
		req:  req,
		wake: make(chan struct{}, 1),
	}
}

func (c *channel) ID() string        { return c.id }
func (c *channel) Tab() engine.TabID { return c.tab }

func (c *channel) Request() engine.RequestInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	req := c.req
	req.Headers = append([]engine.Header(nil), c.req.Headers...)
	return req
}

// SetRequestHeader replaces a header case-insensitively, or appends it
func (c *channel) SetRequestHeader(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sent {
		return
	}
	for i, h := range c.req.Headers {
		if strings.EqualFold(h.Name, name) {
			c.req.Headers[i].Value = value
			return
		}
	}
	c.req.Headers = append(c.req.Headers, engine.Header{Name: name, Value: value})
}

func (c *channel) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sent {
		return
	}
	c.suspends++
}

func (c *channel) Resume() {
	c.mu.Lock()
	if c.suspends > 0 {
		c.suspends--
	}
	c.mu.Unlock()
	c.signal()
}

func (c *channel) Cancel(errorCode string) {
	if errorCode == "" {
		errorCode = codeAborted
	}
	c.mu.Lock()
	if c.cancelled == "" {
		c.cancelled = errorCode
	}
	c.mu.Unlock()
	c.signal()
}

func (c *channel) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// awaitRelease blocks while the channel is suspended. It returns the
// cancel code when the exchange must not be transmitted.
func (c *channel) awaitRelease(ctx context.Context) string {
	for {
		c.mu.Lock()
		switch {
		case c.cancelled != "":
			code := c.cancelled
			c.mu.Unlock()
			return code
		case c.suspends == 0:
			c.sent = true
			c.mu.Unlock()
			return ""
		}
		c.mu.Unlock()

		select {
		case <-c.wake:
		case <-ctx.Done():
			return codeAborted
		}
	}
}

func (c *channel) cancelCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

func (c *channel) header(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.req.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
