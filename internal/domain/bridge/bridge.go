package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/remote/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/remote/internal/shared/id"
	"go.uber.org/zap"
)

// ErrDisposed completes every call still pending when the bridge is
// disposed, and every call made afterwards.
var ErrDisposed = errors.New("target closed")

// RemoteError is an error reported by the content process
type RemoteError struct {
	Message string
	Stack   string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Event is an unsolicited message from content. Params always carries
// the owning targetId.
type Event struct {
	Name   string
	Params map[string]interface{}
}

// EventHandler receives content events
type EventHandler func(Event)

// Bridge is a call channel to one target's content process
type Bridge struct {
	targetID  string
	sessionID string
	channel   engine.ContentChannel
	onEvent   EventHandler

	mu       sync.Mutex
	seq      int64
	pending  map[int64]*Future // Protected by mu
	disposed bool              // Protected by mu
	once     sync.Once

	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// New opens a content session for targetID on channel
func New(channel engine.ContentChannel, targetID string, onEvent EventHandler, logger *zap.Logger) (*Bridge, error) {
	b := &Bridge{
		targetID:  targetID,
		sessionID: id.NewSessionID().String(),
		channel:   channel,
		onEvent:   onEvent,
		pending:   make(map[int64]*Future),
		logger:    logger.With(logging.TargetID(targetID)),
	}
	if err := channel.CreateSession(b.sessionID, b.receive); err != nil {
		return nil, fmt.Errorf("failed to create content session: %w", err)
	}
	return b, nil
}

// WithMetrics adds metrics tracking to the bridge
func (b *Bridge) WithMetrics(metrics *monitoring.Metrics) *Bridge {
	b.metrics = metrics
	return b
}

// SessionID returns the content session id
func (b *Bridge) SessionID() string {
	return b.sessionID
}

// TargetID returns the owning target
func (b *Bridge) TargetID() string {
	return b.targetID
}

// Call transmits a call and returns its pending outcome
func (b *Bridge) Call(method string, params interface{}) *Future {
	f := newFuture()

	raw, err := encode(params)
	if err != nil {
		f.complete(nil, fmt.Errorf("failed to encode %s params: %w", method, err))
		return f
	}

	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		f.complete(nil, ErrDisposed)
		return f
	}
	b.seq++
	callID := b.seq
	f.id = callID
	b.pending[callID] = f
	b.mu.Unlock()
	b.metrics.AddBridgePending(1)

	err = b.channel.Post(b.sessionID, engine.ContentMessage{ID: callID, Method: method, Params: raw})
	if err != nil {
		if b.take(callID) != nil {
			f.complete(nil, fmt.Errorf("failed to post %s: %w", method, err))
		}
	}
	return f
}

// Send performs a call and waits for its result. A cancelled ctx
// abandons the call.
func (b *Bridge) Send(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	f := b.Call(method, params)
	result, err := f.Wait(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		b.abandon(f)
	}
	return result, err
}

// Notify transmits a message that expects no reply
func (b *Bridge) Notify(method string, params interface{}) error {
	raw, err := encode(params)
	if err != nil {
		return err
	}
	b.mu.Lock()
	disposed := b.disposed
	b.mu.Unlock()
	if disposed {
		return ErrDisposed
	}
	return b.channel.Post(b.sessionID, engine.ContentMessage{Method: method, Params: raw})
}

// Pending reports how many calls await a reply
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Dispose fails every pending call with ErrDisposed and closes the
// content session. Only the first call has an effect.
func (b *Bridge) Dispose() {
	b.once.Do(func() {
		b.mu.Lock()
		b.disposed = true
		pending := b.pending
		b.pending = make(map[int64]*Future)
		b.mu.Unlock()

		for _, f := range pending {
			f.complete(nil, ErrDisposed)
		}
		b.metrics.AddBridgePending(-len(pending))
		b.channel.DisposeSession(b.sessionID)

		if len(pending) > 0 {
			b.logger.Debug("Rejected pending content calls", zap.Int("count", len(pending)))
		}
	})
}

func (b *Bridge) take(callID int64) *Future {
	b.mu.Lock()
	f, ok := b.pending[callID]
	delete(b.pending, callID)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	b.metrics.AddBridgePending(-1)
	return f
}

// abandon drops f from the pending table
func (b *Bridge) abandon(f *Future) {
	b.mu.Lock()
	owned := f.id != 0 && b.pending[f.id] == f
	b.mu.Unlock()
	if owned {
		b.take(f.id)
	}
}

func (b *Bridge) receive(msg engine.ContentMessage) {
	if msg.ID != 0 {
		f := b.take(msg.ID)
		if f == nil {
			b.logger.Debug("Reply for unknown content call", zap.Int64("id", msg.ID))
			return
		}
		if msg.Error != "" {
			f.complete(nil, remoteError(msg.Error))
			return
		}
		f.complete(msg.Result, nil)
		return
	}
	if msg.Event == "" {
		b.logger.Warn("Content message without id or event name")
		return
	}

	params, err := protocol.Normalize(msg.Params)
	if err != nil {
		b.logger.Warn("Malformed content event",
			zap.String("event", msg.Event),
			zap.Error(err))
		return
	}
	params["targetId"] = b.targetID
	b.dispatch(Event{Name: msg.Event, Params: params})
}

func (b *Bridge) dispatch(ev Event) {
	if b.onEvent == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Warn("Content event handler panicked",
				zap.String("event", ev.Name),
				zap.Any("panic", rec))
		}
	}()
	b.onEvent(ev)
}

func remoteError(text string) *RemoteError {
	message, stack, _ := strings.Cut(text, "\n")
	return &RemoteError{Message: message, Stack: stack}
}

func encode(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return json.RawMessage("{}"), nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	return protocol.Marshal(params)
}
