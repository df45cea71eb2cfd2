package target

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned for unknown or destroyed target ids
	ErrNotFound = errors.New("no such target")
	// ErrClosed is returned when a tab closes before it finished opening
	ErrClosed = errors.New("target closed")
	// ErrNotPage is returned when a page operation names the browser target
	ErrNotPage = errors.New("target is not a page")
)

const blankURL = "about:blank"

// ContextResolver maps browser contexts to partitions and back
type ContextResolver interface {
	ResolvePartition(contextID string) (engine.Partition, error)
	ResolveContextID(p engine.Partition) (string, bool)
}

// Listener receives a target snapshot
type Listener func(Target)

type entry struct {
	target    Target
	navigated bool
	firstNav  chan struct{}
}

// Registry tracks every tab as a Target. It implements
// engine.TabObserver.
type Registry struct {
	mu       sync.RWMutex
	seq      int
	targets  map[string]*entry       // Protected by mu
	byTab    map[engine.TabID]*entry // Protected by mu
	order    []string                // Protected by mu
	tabs     engine.Tabs
	contexts ContextResolver

	// emitMu serializes lifecycle changes with their notifications so
	// listeners observe creation and destruction in order.
	emitMu      sync.Mutex
	lmu         sync.Mutex
	listenerSeq int
	created     map[int]Listener
	changed     map[int]Listener
	destroyed   map[int]Listener

	cancel  func()
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewRegistry creates a registry holding only the browser target and
// starts observing tabs.
func NewRegistry(tabs engine.Tabs, contexts ContextResolver, logger *zap.Logger) *Registry {
	r := &Registry{
		targets:   make(map[string]*entry),
		byTab:     make(map[engine.TabID]*entry),
		tabs:      tabs,
		contexts:  contexts,
		created:   make(map[int]Listener),
		changed:   make(map[int]Listener),
		destroyed: make(map[int]Listener),
		logger:    logger,
	}
	browser := &entry{
		target:    Target{ID: BrowserTargetID, Kind: KindBrowser},
		navigated: true,
		firstNav:  make(chan struct{}),
	}
	close(browser.firstNav)
	r.targets[BrowserTargetID] = browser
	r.order = append(r.order, BrowserTargetID)

	r.cancel = tabs.ObserveTabs(r)
	return r
}

// WithMetrics adds metrics tracking to the registry
func (r *Registry) WithMetrics(metrics *monitoring.Metrics) *Registry {
	r.metrics = metrics
	r.mu.RLock()
	metrics.SetTargets(len(r.targets))
	r.mu.RUnlock()
	return r
}

// Close stops observing tabs
func (r *Registry) Close() {
	r.cancel()
}

// TabOpened registers a new page target
func (r *Registry) TabOpened(tab engine.TabID, partition engine.Partition, opener engine.TabID) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	contextID, ok := r.contexts.ResolveContextID(partition)
	if !ok {
		r.logger.Warn("Tab opened in unknown partition",
			zap.String("tab", string(tab)),
			zap.String("partition", string(partition)))
	}

	r.mu.Lock()
	if _, exists := r.byTab[tab]; exists {
		r.mu.Unlock()
		return
	}
	r.seq++
	e := &entry{
		target: Target{
			ID:        fmt.Sprintf("target-page-%d", r.seq),
			Kind:      KindPage,
			ContextID: contextID,
			URL:       blankURL,
			Tab:       tab,
		},
		firstNav: make(chan struct{}),
	}
	if parent, ok := r.byTab[opener]; ok && opener != "" {
		e.target.OpenerID = parent.target.ID
	}
	r.targets[e.target.ID] = e
	r.byTab[tab] = e
	r.order = append(r.order, e.target.ID)
	snapshot := e.target
	count := len(r.targets)
	r.mu.Unlock()

	r.metrics.SetTargets(count)
	r.logger.Debug("Target created",
		logging.TargetID(snapshot.ID),
		zap.String("opener_id", snapshot.OpenerID))
	r.notify(r.created, snapshot)
}

// TabNavigated records the tab's new URL. The first blank navigation of a
// tab is absorbed without a change notification.
func (r *Registry) TabNavigated(tab engine.TabID, url string) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	e, ok := r.byTab[tab]
	if !ok {
		r.mu.Unlock()
		return
	}
	first := !e.navigated
	e.navigated = true
	e.target.URL = url
	snapshot := e.target
	r.mu.Unlock()

	if first {
		close(e.firstNav)
		if url == blankURL {
			return
		}
	}
	r.notify(r.changed, snapshot)
}

// TabClosed destroys the tab's target. Listeners run while the target is
// still resolvable.
func (r *Registry) TabClosed(tab engine.TabID) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	e, ok := r.byTab[tab]
	if !ok {
		r.mu.Unlock()
		return
	}
	e.target.Closed = true
	snapshot := e.target
	if !e.navigated {
		e.navigated = true
		close(e.firstNav)
	}
	r.mu.Unlock()

	r.notify(r.destroyed, snapshot)

	r.mu.Lock()
	delete(r.byTab, tab)
	delete(r.targets, snapshot.ID)
	for i, id := range r.order {
		if id == snapshot.ID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	count := len(r.targets)
	r.mu.Unlock()

	r.metrics.SetTargets(count)
	r.logger.Debug("Target destroyed", logging.TargetID(snapshot.ID))
}

// NewPage opens a tab in the given context and returns once its initial
// navigation has settled.
func (r *Registry) NewPage(ctx context.Context, contextID string) (Target, error) {
	partition, err := r.contexts.ResolvePartition(contextID)
	if err != nil {
		return Target{}, err
	}

	tab, err := r.tabs.OpenTab(ctx, partition)
	if err != nil {
		return Target{}, fmt.Errorf("failed to open tab: %w", err)
	}

	r.mu.RLock()
	e, ok := r.byTab[tab]
	r.mu.RUnlock()
	if !ok {
		return Target{}, fmt.Errorf("%w: tab %s was not reported", ErrClosed, tab)
	}

	select {
	case <-e.firstNav:
	case <-ctx.Done():
		return Target{}, ctx.Err()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if e.target.Closed {
		return Target{}, fmt.Errorf("%w: %s", ErrClosed, e.target.ID)
	}
	return e.target, nil
}

// Target returns a snapshot of the target
func (r *Registry) Target(id string) (Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.targets[id]
	if !ok {
		return Target{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.target, nil
}

// TargetForTab returns the target owning tab
func (r *Registry) TargetForTab(tab engine.TabID) (Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byTab[tab]
	if !ok {
		return Target{}, false
	}
	return e.target, true
}

// Targets lists every target in discovery order, browser first
func (r *Registry) Targets() []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Target, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.targets[id].target)
	}
	return out
}

// ClosePage asks the tab to close. With runBeforeUnload false, any
// beforeunload prompt is skipped.
func (r *Registry) ClosePage(id string, runBeforeUnload bool) error {
	t, err := r.Target(id)
	if err != nil {
		return err
	}
	if t.Kind != KindPage {
		return fmt.Errorf("%w: %s", ErrNotPage, id)
	}
	if err := r.tabs.CloseTab(t.Tab, !runBeforeUnload); err != nil {
		return fmt.Errorf("failed to close %s: %w", id, err)
	}
	return nil
}

// Snapshot calls fn with the current targets while holding lifecycle
// changes back, so fn can subscribe without missing or duplicating a
// notification.
func (r *Registry) Snapshot(fn func([]Target)) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	fn(r.Targets())
}

// OnTargetCreated registers fn for new targets
func (r *Registry) OnTargetCreated(fn Listener) (unsubscribe func()) {
	return r.subscribe(r.created, fn)
}

// OnTargetChanged registers fn for URL changes
func (r *Registry) OnTargetChanged(fn Listener) (unsubscribe func()) {
	return r.subscribe(r.changed, fn)
}

// OnTargetDestroyed registers fn for destroyed targets
func (r *Registry) OnTargetDestroyed(fn Listener) (unsubscribe func()) {
	return r.subscribe(r.destroyed, fn)
}

func (r *Registry) subscribe(set map[int]Listener, fn Listener) func() {
	r.lmu.Lock()
	r.listenerSeq++
	key := r.listenerSeq
	set[key] = fn
	r.lmu.Unlock()
	return func() {
		r.lmu.Lock()
		delete(set, key)
		r.lmu.Unlock()
	}
}

func (r *Registry) notify(set map[int]Listener, t Target) {
	r.lmu.Lock()
	keys := make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	fns := make([]Listener, 0, len(keys))
	for _, k := range keys {
		fns = append(fns, set[k])
	}
	r.lmu.Unlock()

	for _, fn := range fns {
		r.call(fn, t)
	}
}

func (r *Registry) call(fn Listener, t Target) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("Target listener panicked",
				logging.TargetID(t.ID),
				zap.Any("panic", rec))
		}
	}()
	fn(t)
}
