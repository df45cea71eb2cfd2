package session

import (
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/remote/internal/domain/network"
	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/GriffinCanCode/AgentOS/remote/internal/protocol"
	"github.com/gabriel-vasile/mimetype"
)

type interceptionParams struct {
	Enabled bool `json:"enabled"`
}

type headersParams struct {
	Headers []protocol.Header `json:"headers"`
}

type requestParams struct {
	RequestID string            `json:"requestId"`
	Headers   []protocol.Header `json:"headers"`
}

type responseBody struct {
	Base64Body string `json:"base64body"`
	MimeType   string `json:"mimeType"`
}

// networkHandler serves the Network domain on top of a sequencer fed by
// the shared channel observer.
type networkHandler struct {
	ts *targetSession

	mu        sync.Mutex
	sequencer *network.Sequencer
	untrack   func()
	disposed  bool
}

func (h *networkHandler) enable(c *call) (interface{}, error) {
	if !h.ts.markEnabled(protocol.DomainNetwork) {
		return protocol.Empty{}, nil
	}

	seq := network.NewSequencer(h.ts.target.ID, h.ts.bridge, h.ts.emit, h.ts.logger).
		WithMetrics(h.ts.d.deps.Metrics)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		seq.Close()
		return protocol.Empty{}, nil
	}
	h.sequencer = seq
	h.untrack = h.ts.d.deps.Network.Track(h.ts.target.Tab, seq)
	return protocol.Empty{}, nil
}

func (h *networkHandler) active() (*network.Sequencer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sequencer == nil {
		return nil, notEnabled(protocol.DomainNetwork)
	}
	return h.sequencer, nil
}

func (h *networkHandler) setRequestInterception(c *call) (interface{}, error) {
	p, err := decode[interceptionParams](c)
	if err != nil {
		return nil, err
	}
	seq, err := h.active()
	if err != nil {
		return nil, err
	}
	if err := seq.SetInterception(c.ctx, p.Enabled); err != nil {
		return nil, err
	}
	return protocol.Empty{}, nil
}

func (h *networkHandler) setExtraHTTPHeaders(c *call) (interface{}, error) {
	p, err := decode[headersParams](c)
	if err != nil {
		return nil, err
	}
	seq, err := h.active()
	if err != nil {
		return nil, err
	}
	seq.SetExtraHTTPHeaders(engineHeaders(p.Headers))
	return protocol.Empty{}, nil
}

func (h *networkHandler) abortSuspendedRequest(c *call) (interface{}, error) {
	seq, err := h.active()
	if err != nil {
		return nil, err
	}
	if err := seq.Abort(c.string("requestId")); err != nil {
		return nil, err
	}
	return protocol.Empty{}, nil
}

func (h *networkHandler) resumeSuspendedRequest(c *call) (interface{}, error) {
	p, err := decode[requestParams](c)
	if err != nil {
		return nil, err
	}
	seq, err := h.active()
	if err != nil {
		return nil, err
	}
	if err := seq.Resume(p.RequestID, engineHeaders(p.Headers)); err != nil {
		return nil, err
	}
	return protocol.Empty{}, nil
}

func (h *networkHandler) getResponseBody(c *call) (interface{}, error) {
	requestID := c.string("requestId")
	body, err := h.ts.d.deps.Engine.ResponseBody(h.ts.target.Tab, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", requestID, err)
	}
	return responseBody{
		Base64Body: base64.StdEncoding.EncodeToString(body),
		MimeType:   mimetype.Detect(body).String(),
	}, nil
}

func (h *networkHandler) dispose() {
	h.mu.Lock()
	h.disposed = true
	seq, untrack := h.sequencer, h.untrack
	h.sequencer, h.untrack = nil, nil
	h.mu.Unlock()

	if untrack != nil {
		untrack()
	}
	if seq != nil {
		seq.Close()
	}
}

func engineHeaders(in []protocol.Header) []engine.Header {
	out := make([]engine.Header, len(in))
	for i, h := range in {
		out[i] = engine.Header{Name: h.Name, Value: h.Value}
	}
	return out
}
