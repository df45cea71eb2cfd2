package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/remote/internal/protocol"
	"go.uber.org/zap"
)

var (
	// ErrNotSuspended is returned for request ids that are not held.
	ErrNotSuspended = errors.New("request is not suspended")
	// ErrInterceptionDisabled is returned when resume or abort is used
	// without interception.
	ErrInterceptionDisabled = errors.New("request interception is not enabled")
)

// AbortErrorCode is reported for requests aborted by the client.
const AbortErrorCode = "NS_ERROR_ABORT"

// retiredCapacity bounds how many finished request ids are remembered to
// drop late callbacks.
const retiredCapacity = 1024

// Emitter receives events in protocol order.
type Emitter func(event protocol.EventID, params interface{})

// FrameResolver asks the content process which frame issued a channel.
type FrameResolver interface {
	Send(ctx context.Context, method string, params interface{}) (json.RawMessage, error)
}

type activity struct {
	id    string
	stage Stage
	// seen is set once the request callback arrived. Response and
	// completion data may be buffered before that.
	seen bool

	request  *RequestWillBeSent
	response *ResponseReceived
	finished *RequestFinished
	failed   *RequestFailed
}

func (a *activity) payload(s Stage) interface{} {
	switch s {
	case StageRequestWillBeSent:
		if a.request != nil {
			return a.request
		}
	case StageResponseReceived:
		if a.response != nil {
			return a.response
		}
	case StageRequestFinished:
		if a.finished != nil {
			return a.finished
		}
	case StageRequestFailed:
		if a.failed != nil {
			return a.failed
		}
	}
	return nil
}

var stageEvents = map[Stage]protocol.EventID{
	StageRequestWillBeSent: protocol.NetworkRequestWillBeSent,
	StageResponseReceived:  protocol.NetworkResponseReceived,
	StageRequestFinished:   protocol.NetworkRequestFinished,
	StageRequestFailed:     protocol.NetworkRequestFailed,
}

// Sequencer turns one target's channel callbacks into ordered network
// events and holds intercepted requests.
type Sequencer struct {
	targetID string
	frames   FrameResolver
	emit     Emitter

	mu           sync.Mutex
	activities   map[string]*activity
	retired      map[string]struct{}
	retiredRing  []string
	retiredNext  int
	intercept    bool
	suspended    map[string]engine.Channel
	extraHeaders []engine.Header
	lookups      map[string]chan struct{}
	closed       bool

	ctx    context.Context
	cancel context.CancelFunc

	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewSequencer creates a sequencer for targetID. frames may be nil, in
// which case events carry no frameId.
func NewSequencer(targetID string, frames FrameResolver, emit Emitter, logger *zap.Logger) *Sequencer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sequencer{
		targetID:    targetID,
		frames:      frames,
		emit:        emit,
		activities:  make(map[string]*activity),
		retired:     make(map[string]struct{}),
		retiredRing: make([]string, retiredCapacity),
		suspended:   make(map[string]engine.Channel),
		lookups:     make(map[string]chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.With(logging.TargetID(targetID)),
	}
}

// WithMetrics adds metrics tracking to the sequencer.
func (s *Sequencer) WithMetrics(metrics *monitoring.Metrics) *Sequencer {
	s.metrics = metrics
	return s
}

// SetExtraHTTPHeaders sets headers applied to every later request.
func (s *Sequencer) SetExtraHTTPHeaders(headers []engine.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extraHeaders = append([]engine.Header(nil), headers...)
}

// SetInterception turns interception on or off. Turning it off resumes
// every held request. It returns once every requestWillBeSent that was
// in flight has been emitted.
func (s *Sequencer) SetInterception(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	s.intercept = enabled
	if !enabled {
		s.resumeAllLocked()
	}
	waits := make([]chan struct{}, 0, len(s.lookups))
	for _, ch := range s.lookups {
		waits = append(waits, ch)
	}
	s.mu.Unlock()

	for _, ch := range waits {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Resume releases a held request, overriding the given headers first.
func (s *Sequencer) Resume(requestID string, headers []engine.Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.takeSuspendedLocked(requestID)
	if err != nil {
		return err
	}
	for _, h := range headers {
		ch.SetRequestHeader(h.Name, h.Value)
	}
	ch.Resume()
	return nil
}

// Abort cancels a held request and reports it failed.
func (s *Sequencer) Abort(requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.takeSuspendedLocked(requestID)
	if err != nil {
		return err
	}
	ch.Cancel(AbortErrorCode)

	if a, ok := s.activities[requestID]; ok {
		a.failed = &RequestFailed{TargetID: s.targetID, RequestID: requestID, ErrorCode: AbortErrorCode}
		s.advanceLocked(a)
	}
	return nil
}

// Suspended lists held request ids.
func (s *Sequencer) Suspended() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.suspended))
	for id := range s.suspended {
		out = append(out, id)
	}
	return out
}

// Close resumes held requests and abandons frame lookups. Later
// callbacks are ignored.
func (s *Sequencer) Close() {
	s.mu.Lock()
	s.closed = true
	s.resumeAllLocked()
	s.activities = make(map[string]*activity)
	s.mu.Unlock()
	s.cancel()
}

func (s *Sequencer) takeSuspendedLocked(requestID string) (engine.Channel, error) {
	if !s.intercept {
		return nil, ErrInterceptionDisabled
	}
	ch, ok := s.suspended[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotSuspended, requestID)
	}
	delete(s.suspended, requestID)
	s.metrics.AddSuspended(-1)
	return ch, nil
}

func (s *Sequencer) resumeAllLocked() {
	for id, ch := range s.suspended {
		ch.Resume()
		delete(s.suspended, id)
		s.metrics.AddSuspended(-1)
	}
}

// onRequest captures the request, holds it when intercepting and starts
// the frame lookup that completes its requestWillBeSent.
func (s *Sequencer) onRequest(ch engine.Channel, redirectedFrom string) {
	requestID := ch.ID()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, done := s.retired[requestID]; done {
		s.mu.Unlock()
		return
	}
	a, exists := s.activities[requestID]
	if exists && a.seen {
		s.mu.Unlock()
		return
	}
	for _, h := range s.extraHeaders {
		ch.SetRequestHeader(h.Name, h.Value)
	}
	req := ch.Request()
	suspended := s.intercept
	if suspended {
		ch.Suspend()
		s.suspended[requestID] = ch
		s.metrics.AddSuspended(1)
	}
	if !exists {
		a = &activity{id: requestID}
		s.activities[requestID] = a
	}
	a.seen = true
	lookupDone := make(chan struct{})
	s.lookups[requestID] = lookupDone
	s.mu.Unlock()

	payload := &RequestWillBeSent{
		TargetID:            s.targetID,
		RequestID:           requestID,
		RedirectedFrom:      redirectedFrom,
		PostData:            req.PostData,
		Headers:             wireHeaders(req.Headers),
		Suspended:           suspended,
		URL:                 req.URL,
		Method:              req.Method,
		IsNavigationRequest: req.IsNavigation,
		Cause:               req.Cause,
	}

	go func() {
		defer close(lookupDone)
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Warn("Network event emission panicked",
					logging.RequestID(requestID),
					zap.Any("panic", rec))
			}
		}()
		payload.FrameID = s.lookupFrame(requestID)

		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.lookups, requestID)
		if a, ok := s.activities[requestID]; ok {
			a.request = payload
			s.advanceLocked(a)
		}
	}()
}

func (s *Sequencer) lookupFrame(channelID string) string {
	if s.frames == nil {
		return ""
	}
	raw, err := s.frames.Send(s.ctx, "Page.requestDetails", map[string]string{"channelId": channelID})
	if err != nil {
		// The target may have gone away mid-flight; report without a frame.
		s.logger.Debug("Frame lookup failed",
			logging.RequestID(channelID),
			zap.Error(err))
		return ""
	}
	var details struct {
		FrameID string `json:"frameId"`
	}
	if err := protocol.Unmarshal(raw, &details); err != nil {
		s.logger.Debug("Malformed request details",
			logging.RequestID(channelID),
			zap.Error(err))
		return ""
	}
	return details.FrameID
}

func (s *Sequencer) onResponse(ch engine.Channel, resp engine.ResponseInfo) {
	s.update(ch.ID(), func(a *activity) {
		a.response = responsePayload(s.targetID, a.id, resp)
	})
}

func (s *Sequencer) onComplete(ch engine.Channel) {
	s.update(ch.ID(), func(a *activity) {
		a.finished = &RequestFinished{TargetID: s.targetID, RequestID: a.id}
	})
}

func (s *Sequencer) onFailure(ch engine.Channel, code string) {
	requestID := ch.ID()
	s.mu.Lock()
	if _, held := s.suspended[requestID]; held {
		delete(s.suspended, requestID)
		s.metrics.AddSuspended(-1)
	}
	s.mu.Unlock()

	s.update(requestID, func(a *activity) {
		if a.failed == nil {
			a.failed = &RequestFailed{TargetID: s.targetID, RequestID: a.id, ErrorCode: code}
		}
	})
}

// update buffers data for a request and emits whatever became ready.
// The record is created by whichever callback arrives first; callbacks
// for requests that already finished are dropped.
func (s *Sequencer) update(requestID string, fill func(*activity)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, done := s.retired[requestID]; done {
		return
	}
	a, ok := s.activities[requestID]
	if !ok {
		a = &activity{id: requestID}
		s.activities[requestID] = a
	}
	fill(a)
	s.advanceLocked(a)
}

// advanceLocked emits every buffered stage whose predecessor has been
// emitted.
func (s *Sequencer) advanceLocked(a *activity) {
	for !a.stage.Terminal() {
		progressed := false
		for _, next := range transitions[a.stage] {
			payload := a.payload(next)
			if payload == nil {
				continue
			}
			s.emit(stageEvents[next], payload)
			a.stage = next
			progressed = true
			break
		}
		if !progressed {
			return
		}
	}
	delete(s.activities, a.id)
	s.retireLocked(a.id)
}

func (s *Sequencer) retireLocked(requestID string) {
	if old := s.retiredRing[s.retiredNext]; old != "" {
		delete(s.retired, old)
	}
	s.retiredRing[s.retiredNext] = requestID
	s.retired[requestID] = struct{}{}
	s.retiredNext = (s.retiredNext + 1) % retiredCapacity
}
