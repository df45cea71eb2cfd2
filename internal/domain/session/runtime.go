package session

import (
	"github.com/GriffinCanCode/AgentOS/remote/internal/protocol"
)

// runtimeHandler serves the Runtime domain. Execution contexts live in
// content; verbs are forwarded as-is.
type runtimeHandler struct {
	ts *targetSession
}

func (h *runtimeHandler) enable(c *call) (interface{}, error) {
	if !h.ts.markEnabled(protocol.DomainRuntime) {
		return protocol.Empty{}, nil
	}
	if _, err := h.ts.bridge.Send(c.ctx, "Runtime.enable", nil); err != nil {
		h.ts.unmarkEnabled(protocol.DomainRuntime)
		return nil, err
	}
	return protocol.Empty{}, nil
}

func (h *runtimeHandler) forward(c *call, method string) (interface{}, error) {
	return raw(h.ts.bridge.Send(c.ctx, method, c.params))
}

func (h *runtimeHandler) dispose() {}

// accessibilityHandler serves the Accessibility domain.
type accessibilityHandler struct {
	ts *targetSession
}

func (h *accessibilityHandler) getFullAXTree(c *call) (interface{}, error) {
	return raw(h.ts.bridge.Send(c.ctx, "Page.getFullAXTree", c.params))
}

func (h *accessibilityHandler) dispose() {}
