package session

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/remote/internal/domain/browsercontext"
	"github.com/GriffinCanCode/AgentOS/remote/internal/domain/network"
	"github.com/GriffinCanCode/AgentOS/remote/internal/domain/target"
	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/remote/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/remote/internal/protocol/schema"
	"go.uber.org/zap"
)

// Transport delivers encoded frames to the client. Send is called from
// many goroutines and must not block for long.
type Transport interface {
	Send(frame []byte) error
}

// Deps are the browser-wide components every dispatcher works against.
type Deps struct {
	Engine   engine.Engine
	Contexts *browsercontext.Registry
	Targets  *target.Registry
	Network  *network.Observer
	Logger   *zap.Logger
	Metrics  *monitoring.Metrics
	Tracer   *tracing.Tracer

	// NavigationTimeout bounds Target.newPage. Zero waits indefinitely.
	NavigationTimeout time.Duration
}

// Dispatcher serves one control connection.
type Dispatcher struct {
	deps      Deps
	transport Transport
	logger    *zap.Logger

	browser *browserDomain
	target  *targetDomain

	mu       sync.Mutex
	sessions map[string]*targetSession // Protected by mu, keyed by target id
	closed   bool                      // Protected by mu

	unsubscribe []func()
	calls       sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

// New creates a dispatcher writing to transport.
func New(deps Deps, transport Transport) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		deps:      deps,
		transport: transport,
		logger:    deps.Logger,
		sessions:  make(map[string]*targetSession),
		ctx:       ctx,
		cancel:    cancel,
	}
	d.browser = &browserDomain{d: d}

	// Handler sets must be torn down before the Target domain reports
	// the destruction, so this listener is registered first.
	d.unsubscribe = append(d.unsubscribe, deps.Targets.OnTargetDestroyed(d.onTargetDestroyed))
	d.target = newTargetDomain(d)
	return d
}

// Handle parses one inbound frame and dispatches it. Calls run
// concurrently; each gets exactly one reply.
func (d *Dispatcher) Handle(frame []byte) {
	var req protocol.Request
	if err := protocol.Unmarshal(frame, &req); err != nil {
		d.fail(nil, protocol.Errorf(protocol.KindProtocol, "malformed message: %v", err))
		return
	}
	if req.ID == nil {
		d.fail(nil, protocol.Errorf(protocol.KindProtocol, "every message must have an 'id' parameter"))
		return
	}
	if req.Method == "" {
		d.fail(req.ID, protocol.Errorf(protocol.KindProtocol, "every message must have a 'method' parameter"))
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.calls.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.calls.Done()
		d.serve(req)
	}()
}

// Close disposes every handler set and waits for in-flight calls.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	sessions := d.sessions
	d.sessions = make(map[string]*targetSession)
	d.mu.Unlock()

	for _, unsubscribe := range d.unsubscribe {
		unsubscribe()
	}
	d.target.close()
	for _, ts := range sessions {
		ts.dispose()
	}
	d.cancel()
	d.calls.Wait()
}

func (d *Dispatcher) serve(req protocol.Request) {
	label := req.Method
	if _, ok := protocol.LookupMethod(req.Method); !ok {
		label = "unknown"
	}
	timer := monitoring.NewTimer(d.deps.Metrics, label)

	ctx := d.ctx
	var span *tracing.Span
	if d.deps.Tracer != nil {
		span, ctx = d.deps.Tracer.StartSpan(ctx, label)
		span.SetTag("protocol.id", strconv.FormatInt(*req.ID, 10))
	}

	c := &call{ctx: ctx}
	result, err := d.invoke(c, req)

	kind := ""
	if err != nil {
		perr := classify(err)
		kind = perr.Kind.String()
		if span != nil {
			span.SetError(perr)
		}
		d.fail(req.ID, perr)
	} else {
		d.write(protocol.Result{ID: *req.ID, Result: result})
	}

	timer.Stop(kind)
	if span != nil {
		span.Finish()
		d.deps.Tracer.Submit(span)
	}

	if err == nil {
		for _, fn := range c.after {
			fn()
		}
	}
}

func (d *Dispatcher) invoke(c *call, req protocol.Request) (result interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("Protocol handler panicked",
				logging.Method(req.Method),
				zap.Any("panic", rec))
			result = nil
			err = protocol.Errorf(protocol.KindInternal, "%v", rec).WithData(string(debug.Stack()))
		}
	}()

	method, ok := protocol.LookupMethod(req.Method)
	if !ok {
		return nil, protocol.Errorf(protocol.KindProtocol, "method '%s' is not supported", req.Method)
	}
	spec := method.Spec()

	params, err := protocol.Normalize(req.Params)
	if err != nil {
		return nil, protocol.Errorf(protocol.KindValidation,
			"failed to call method '%s': params must be an object", req.Method)
	}
	if ds, _ := spec.Domain.Spec(); ds.Scope == protocol.ScopeTarget {
		aliasPageID(params)
	}
	if err := schema.Validate(spec.Params, params); err != nil {
		return nil, protocol.Wrap(protocol.KindValidation,
			fmt.Errorf("failed to call method '%s' with parameters: %w", req.Method, err))
	}

	c.method = method
	c.params = params
	value, err := routes[method](d, c)
	if err != nil {
		return nil, err
	}

	plain, err := protocol.Plain(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result of '%s': %w", req.Method, err)
	}
	if err := schema.ValidateAt("result", spec.Returns, plain); err != nil {
		return nil, protocol.Wrap(protocol.KindValidation,
			fmt.Errorf("failed to dispatch result of '%s': %w", req.Method, err))
	}
	return plain, nil
}

// aliasPageID accepts the legacy pageId spelling of targetId.
func aliasPageID(params map[string]interface{}) {
	if _, ok := params["targetId"]; ok {
		return
	}
	if pageID, ok := params["pageId"]; ok {
		params["targetId"] = pageID
		delete(params, "pageId")
	}
}

// emit validates and writes an event. Events that fail validation are
// dropped rather than sent malformed.
func (d *Dispatcher) emit(event protocol.EventID, params interface{}) {
	spec := event.Spec()
	name := spec.Qualified()

	plain, err := protocol.Plain(params)
	if err == nil {
		err = schema.ValidateAt("params", spec.Params, plain)
	}
	if err != nil {
		d.logger.Warn("Dropping invalid event",
			zap.String("event", name),
			zap.Error(err))
		d.deps.Metrics.RecordDroppedEvent(name)
		return
	}

	d.write(protocol.Event{Method: name, Params: plain})
	d.deps.Metrics.RecordEvent(name)
}

func (d *Dispatcher) fail(reqID *int64, perr *protocol.Error) {
	d.write(protocol.Failure{
		ID:    reqID,
		Error: protocol.ErrorPayload{Message: perr.Error(), Data: perr.Data},
	})
}

func (d *Dispatcher) write(v interface{}) {
	frame, err := protocol.Marshal(v)
	if err != nil {
		d.logger.Error("Failed to encode frame", zap.Error(err))
		return
	}
	if err := d.transport.Send(frame); err != nil {
		d.logger.Debug("Failed to write frame", zap.Error(err))
	}
}

// onTargetDestroyed runs while the target is still resolvable. Handler
// sets go first so pending content calls fail before the target does.
func (d *Dispatcher) onTargetDestroyed(t target.Target) {
	d.mu.Lock()
	ts, ok := d.sessions[t.ID]
	delete(d.sessions, t.ID)
	d.mu.Unlock()

	if ok {
		ts.dispose()
	}
}
