package session

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/AgentOS/remote/internal/domain/target"
	"github.com/GriffinCanCode/AgentOS/remote/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/remote/internal/shared/id"
)

type attachedToTarget struct {
	SessionID  string              `json:"sessionId"`
	TargetInfo protocol.TargetInfo `json:"targetInfo"`
}

type detachedFromTarget struct {
	SessionID string `json:"sessionId"`
}

// targetDomain serves the Target domain. Its lifecycle listeners are
// registered up front and gated on enable, so the replay in enable and
// live notifications never overlap.
type targetDomain struct {
	d *Dispatcher

	mu       sync.Mutex
	enabled  bool              // Protected by mu
	attached map[string]string // Protected by mu, target id to session id

	unsubscribe []func()
}

func newTargetDomain(d *Dispatcher) *targetDomain {
	t := &targetDomain{
		d:        d,
		attached: make(map[string]string),
	}
	registry := d.deps.Targets
	t.unsubscribe = []func(){
		registry.OnTargetCreated(func(tg target.Target) {
			t.emit(protocol.TargetTargetCreated, tg.Info())
		}),
		registry.OnTargetChanged(func(tg target.Target) {
			t.emit(protocol.TargetTargetInfoChanged, tg.Info())
		}),
		registry.OnTargetDestroyed(t.onDestroyed),
	}
	return t
}

func (t *targetDomain) isEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *targetDomain) emit(event protocol.EventID, params interface{}) {
	if t.isEnabled() {
		t.d.emit(event, params)
	}
}

func (t *targetDomain) onDestroyed(tg target.Target) {
	t.emit(protocol.TargetTargetDestroyed, tg.Info())

	t.mu.Lock()
	sessionID, ok := t.attached[tg.ID]
	delete(t.attached, tg.ID)
	t.mu.Unlock()
	if ok {
		t.emit(protocol.TargetDetachedFromTarget, detachedFromTarget{SessionID: sessionID})
	}
}

func (t *targetDomain) close() {
	for _, unsubscribe := range t.unsubscribe {
		unsubscribe()
	}
}

// enable replays every existing target, then lets live events through.
func (t *targetDomain) enable(c *call) (interface{}, error) {
	t.d.deps.Targets.Snapshot(func(targets []target.Target) {
		t.mu.Lock()
		if t.enabled {
			t.mu.Unlock()
			return
		}
		t.enabled = true
		t.mu.Unlock()

		for _, tg := range targets {
			t.d.emit(protocol.TargetTargetCreated, tg.Info())
		}
	})
	return protocol.Empty{}, nil
}

func (t *targetDomain) attachToTarget(c *call) (interface{}, error) {
	tg, err := t.d.deps.Targets.Target(c.targetID())
	if err != nil {
		return nil, err
	}
	if tg.Closed {
		return nil, target.ErrNotFound
	}

	t.mu.Lock()
	sessionID, ok := t.attached[tg.ID]
	if !ok {
		sessionID = id.NewSessionID().String()
		t.attached[tg.ID] = sessionID
	}
	t.mu.Unlock()

	if !ok {
		t.emit(protocol.TargetAttachedToTarget, attachedToTarget{SessionID: sessionID, TargetInfo: tg.Info()})
	}
	return map[string]string{"sessionId": sessionID}, nil
}

func (t *targetDomain) newPage(c *call) (interface{}, error) {
	ctx := c.ctx
	if timeout := t.d.deps.NavigationTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	tg, err := t.d.deps.Targets.NewPage(ctx, c.string("browserContextId"))
	if err != nil {
		return nil, err
	}
	return map[string]string{"targetId": tg.ID}, nil
}

func (t *targetDomain) createBrowserContext(c *call) (interface{}, error) {
	contextID, err := t.d.deps.Contexts.Create()
	if err != nil {
		return nil, err
	}
	return map[string]string{"browserContextId": contextID}, nil
}

func (t *targetDomain) removeBrowserContext(c *call) (interface{}, error) {
	if err := t.d.deps.Contexts.Remove(c.string("browserContextId")); err != nil {
		return nil, err
	}
	return protocol.Empty{}, nil
}

func (t *targetDomain) getBrowserContexts(c *call) (interface{}, error) {
	return map[string][]string{"browserContextIds": t.d.deps.Contexts.List()}, nil
}
