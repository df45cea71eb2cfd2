package headless

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"go.uber.org/zap"
)

var ErrDialogAnswered = errors.New("dialog already answered")

// tab is one open page
type tab struct {
	id        engine.TabID
	partition engine.Partition
	opener    engine.TabID
	engine    *Engine
	logger    *zap.Logger
	content   *content

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	viewport      *engine.Size // Protected by mu, nil means default
	userAgent     string       // Protected by mu, empty means default
	cacheDisabled bool         // Protected by mu
	closed        bool         // Protected by mu
	dialogObs     map[int]func(engine.DialogEvent)
	obsSeq        int
}

func newTab(e *Engine, id engine.TabID, p engine.Partition, opener engine.TabID) *tab {
	ctx, cancel := context.WithCancel(context.Background())
	t := &tab{
		id:        id,
		partition: p,
		opener:    opener,
		engine:    e,
		logger:    e.logger.With(zap.String("tab", string(id))),
		ctx:       ctx,
		cancel:    cancel,
		dialogObs: make(map[int]func(engine.DialogEvent)),
	}
	t.content = newContent(t)
	return t
}

// markClosed reports whether this call closed the tab
func (t *tab) markClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.closed = true
	return true
}

// shutdown stops loads, dialogs and the content worker
func (t *tab) shutdown() {
	t.cancel()
	t.content.stop()
}

func (t *tab) setViewport(size *engine.Size) (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if size == nil {
		t.viewport = nil
	} else {
		copied := *size
		t.viewport = &copied
	}
	return t.viewportSizeLocked()
}

func (t *tab) viewportSize() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.viewportSizeLocked()
}

func (t *tab) viewportSizeLocked() (int, int) {
	if t.viewport == nil {
		return t.engine.config.ViewportWidth, t.engine.config.ViewportHeight
	}
	return t.viewport.Width, t.viewport.Height
}

func (t *tab) setUserAgent(ua string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.userAgent = ua
}

func (t *tab) effectiveUserAgent() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.userAgent != "" {
		return t.userAgent
	}
	return t.engine.config.UserAgent
}

func (t *tab) setCacheDisabled(disabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cacheDisabled = disabled
}

func (t *tab) isCacheDisabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cacheDisabled
}

func (t *tab) observeDialogs(fn func(engine.DialogEvent)) func() {
	t.mu.Lock()
	t.obsSeq++
	key := t.obsSeq
	t.dialogObs[key] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.dialogObs, key)
		t.mu.Unlock()
	}
}

func (t *tab) notifyDialog(ev engine.DialogEvent) {
	t.mu.Lock()
	keys := make([]int, 0, len(t.dialogObs))
	for k := range t.dialogObs {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	fns := make([]func(engine.DialogEvent), 0, len(keys))
	for _, k := range keys {
		fns = append(fns, t.dialogObs[k])
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// openDialog raises a modal prompt and blocks until it is answered or
// the tab closes. A closed tab dismisses the dialog.
func (t *tab) openDialog(typ engine.DialogType, message, defaultValue string) (bool, string) {
	d := &dialog{
		typ:          typ,
		message:      message,
		defaultValue: defaultValue,
		tab:          t,
		answer:       make(chan dialogAnswer, 1),
	}
	t.notifyDialog(engine.DialogEvent{Dialog: d})

	select {
	case a := <-d.answer:
		return a.accepted, a.text
	case <-t.ctx.Done():
		return false, ""
	}
}

type dialogAnswer struct {
	accepted bool
	text     string
}

// dialog is an open alert, confirm, prompt or beforeunload
type dialog struct {
	typ          engine.DialogType
	message      string
	defaultValue string
	tab          *tab

	mu       sync.Mutex
	answered bool
	answer   chan dialogAnswer
}

var _ engine.Dialog = (*dialog)(nil)

func (d *dialog) Type() engine.DialogType { return d.typ }
func (d *dialog) Message() string         { return d.message }
func (d *dialog) DefaultValue() string    { return d.defaultValue }

func (d *dialog) Accept(promptText string) error {
	if d.typ != engine.DialogPrompt {
		promptText = ""
	}
	return d.respond(dialogAnswer{accepted: true, text: promptText})
}

func (d *dialog) Dismiss() error {
	return d.respond(dialogAnswer{})
}

func (d *dialog) respond(a dialogAnswer) error {
	d.mu.Lock()
	if d.answered {
		d.mu.Unlock()
		return ErrDialogAnswered
	}
	d.answered = true
	d.mu.Unlock()

	d.answer <- a
	d.tab.notifyDialog(engine.DialogEvent{Dialog: d, Closed: true})
	return nil
}
