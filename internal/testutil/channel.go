package testutil

import (
	"sync"

	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
)

// Channel is a fake engine.Channel that records what was done to it
type Channel struct {
	id  string
	tab engine.TabID

	mu        sync.Mutex
	req       engine.RequestInfo
	suspended bool
	resumed   int
	cancelled string
}

// NewChannel creates a GET channel for url on tab
func NewChannel(tab engine.TabID, id, url string) *Channel {
	return &Channel{
		id:  id,
		tab: tab,
		req: engine.RequestInfo{
			URL:     url,
			Method:  "GET",
			Headers: []engine.Header{{Name: "Accept", Value: "*/*"}},
			Cause:   "TYPE_OTHER",
		},
	}
}

// Navigation marks the channel as a top-level navigation
func (c *Channel) Navigation() *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.req.IsNavigation = true
	c.req.Cause = "TYPE_DOCUMENT"
	return c
}

func (c *Channel) ID() string         { return c.id }
func (c *Channel) Tab() engine.TabID { return c.tab }

func (c *Channel) Request() engine.RequestInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	req := c.req
	req.Headers = append([]engine.Header(nil), c.req.Headers...)
	return req
}

func (c *Channel) SetRequestHeader(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, h := range c.req.Headers {
		if h.Name == name {
			c.req.Headers[i].Value = value
			return
		}
	}
	c.req.Headers = append(c.req.Headers, engine.Header{Name: name, Value: value})
}

func (c *Channel) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suspended = true
}

func (c *Channel) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suspended = false
	c.resumed++
}

func (c *Channel) Cancel(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suspended = false
	c.cancelled = code
}

// Suspended reports whether the channel is currently held
func (c *Channel) Suspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspended
}

// Resumed reports how many times Resume was called
func (c *Channel) Resumed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumed
}

// Cancelled returns the cancel error code, if any
func (c *Channel) Cancelled() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Header returns the current value of a request header
func (c *Channel) Header(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.req.Headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}
