package session

import (
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/remote/internal/domain/bridge"
	"github.com/GriffinCanCode/AgentOS/remote/internal/domain/target"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/remote/internal/protocol"
	"go.uber.org/zap"
)

// domainHandler is one target-scoped domain of a handler set.
type domainHandler interface {
	dispose()
}

// targetSession is the handler set of one target on one connection. All
// of its domains share a single content bridge.
type targetSession struct {
	d      *Dispatcher
	target target.Target
	bridge *bridge.Bridge
	logger *zap.Logger

	mu       sync.Mutex
	enabled  map[protocol.Domain]bool // Protected by mu
	disposed bool                     // Protected by mu
	once     sync.Once

	page          *pageHandler
	network       *networkHandler
	runtime       *runtimeHandler
	accessibility *accessibilityHandler
}

func newTargetSession(d *Dispatcher, t target.Target) (*targetSession, error) {
	channel, err := d.deps.Engine.ContentChannel(t.Tab)
	if err != nil {
		return nil, fmt.Errorf("failed to reach content of %s: %w", t.ID, err)
	}

	ts := &targetSession{
		d:       d,
		target:  t,
		logger:  d.logger.With(logging.TargetID(t.ID)),
		enabled: make(map[protocol.Domain]bool),
	}
	b, err := bridge.New(channel, t.ID, ts.onContentEvent, ts.logger)
	if err != nil {
		return nil, err
	}
	ts.bridge = b.WithMetrics(d.deps.Metrics)

	ts.page = &pageHandler{ts: ts}
	ts.network = &networkHandler{ts: ts}
	ts.runtime = &runtimeHandler{ts: ts}
	ts.accessibility = &accessibilityHandler{ts: ts}
	return ts, nil
}

// handlers lists the domains in teardown order.
func (ts *targetSession) handlers() []domainHandler {
	return []domainHandler{ts.page, ts.network, ts.runtime, ts.accessibility}
}

// markEnabled enables domain and reports whether it was newly enabled.
func (ts *targetSession) markEnabled(domain protocol.Domain) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.disposed || ts.enabled[domain] {
		return false
	}
	ts.enabled[domain] = true
	return true
}

// unmarkEnabled rolls back markEnabled after the enable work failed, so a
// retry runs it again.
func (ts *targetSession) unmarkEnabled(domain protocol.Domain) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.enabled, domain)
}

func (ts *targetSession) isEnabled(domain protocol.Domain) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return !ts.disposed && ts.enabled[domain]
}

// emit forwards an event if its domain is enabled on this target.
func (ts *targetSession) emit(event protocol.EventID, params interface{}) {
	if !ts.isEnabled(event.Spec().Domain) {
		return
	}
	ts.d.emit(event, params)
}

func (ts *targetSession) onContentEvent(ev bridge.Event) {
	event, ok := protocol.LookupEvent(ev.Name)
	if !ok {
		ts.logger.Debug("Ignoring unknown content event", zap.String("event", ev.Name))
		return
	}
	ts.emit(event, ev.Params)
}

// dispose tears down every domain, then the bridge. Pending content calls
// fail with bridge.ErrDisposed.
func (ts *targetSession) dispose() {
	ts.once.Do(func() {
		for _, h := range ts.handlers() {
			h.dispose()
		}
		ts.mu.Lock()
		ts.disposed = true
		ts.mu.Unlock()
		ts.bridge.Dispose()
	})
}

func notEnabled(domain protocol.Domain) error {
	return protocol.Errorf(protocol.KindDomainNotEnabled, "Domain %s is not enabled", domain)
}

// lookupPage resolves a live page target.
func (d *Dispatcher) lookupPage(targetID string) (target.Target, error) {
	t, err := d.deps.Targets.Target(targetID)
	if err != nil {
		return target.Target{}, err
	}
	if t.Closed {
		return target.Target{}, fmt.Errorf("%w: %s", target.ErrNotFound, targetID)
	}
	if t.Kind != target.KindPage {
		return target.Target{}, fmt.Errorf("%w: %s", target.ErrNotPage, targetID)
	}
	return t, nil
}

// sessionFor resolves the handler set a target-scoped call runs on. The
// set is created by the first enable, or by any call to a domain without
// one.
func (d *Dispatcher) sessionFor(c *call, domain protocol.Domain) (*targetSession, error) {
	targetID := c.targetID()
	t, err := d.lookupPage(targetID)
	if err != nil {
		return nil, err
	}
	spec, _ := domain.Spec()
	gated := spec.Enable && !c.method.Spec().IsEnable()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, protocol.Errorf(protocol.KindInternal, "connection is closed")
	}
	ts, existed := d.sessions[targetID]
	if !existed {
		if gated {
			d.mu.Unlock()
			return nil, notEnabled(domain)
		}
		ts, err = newTargetSession(d, t)
		if err != nil {
			d.mu.Unlock()
			return nil, err
		}
		d.sessions[targetID] = ts
	}
	d.mu.Unlock()

	if !existed {
		// A target destroyed between lookup and insert never reaches
		// onTargetDestroyed with this set.
		if current, err := d.deps.Targets.Target(targetID); err != nil || current.Closed {
			d.mu.Lock()
			if d.sessions[targetID] == ts {
				delete(d.sessions, targetID)
			}
			d.mu.Unlock()
			ts.dispose()
			return nil, fmt.Errorf("%w: %s", target.ErrNotFound, targetID)
		}
	}

	if gated && !ts.isEnabled(domain) {
		return nil, notEnabled(domain)
	}
	return ts, nil
}
