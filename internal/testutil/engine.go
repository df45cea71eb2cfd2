// Package testutil provides a scriptable in-memory engine for tests.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
)

// ErrUnknownTab is returned for tab ids the fake never handed out
var ErrUnknownTab = errors.New("unknown tab")

// Engine is a fake engine.Engine. Tabs, channels and content replies are
// driven explicitly by the test.
type Engine struct {
	// Prefs serves the engine.Preferences half. Replace it with a
	// MockPreferences to assert on calls.
	Prefs engine.Preferences

	// AutoNavigate makes OpenTab deliver the initial about:blank
	// navigation from a separate goroutine.
	AutoNavigate bool

	mu         sync.Mutex
	partitions map[engine.Partition]bool
	tabSeq     int
	tabs       map[engine.TabID]*Tab
	tabObs     map[int]engine.TabObserver
	chanObs    map[int]engine.ChannelObserver
	obsSeq     int
	bodies     map[string][]byte
}

// Tab is the fake's record of an open tab
type Tab struct {
	ID        engine.TabID
	Partition engine.Partition
	Opener    engine.TabID

	mu               sync.Mutex
	viewport         *engine.Size
	closed           bool
	skipPermitUnload bool
	dialogObs        map[int]func(engine.DialogEvent)
	content          *Content
}

// NewEngine creates a fake with AutoNavigate on
func NewEngine() *Engine {
	return &Engine{
		Prefs:        NewPreferences(),
		AutoNavigate: true,
		partitions:   make(map[engine.Partition]bool),
		tabs:         make(map[engine.TabID]*Tab),
		tabObs:       make(map[int]engine.TabObserver),
		chanObs:      make(map[int]engine.ChannelObserver),
		bodies:       make(map[string][]byte),
	}
}

var _ engine.Engine = (*Engine)(nil)

// AddPartition seeds a partition as if left over from an earlier run
func (e *Engine) AddPartition(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.partitions[engine.Partition(name)] = true
}

// HasPartition reports whether the partition exists
func (e *Engine) HasPartition(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.partitions[engine.Partition(name)]
}

func (e *Engine) CreatePartition(name string) (engine.Partition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := engine.Partition(name)
	if e.partitions[p] {
		return "", fmt.Errorf("partition %q exists", name)
	}
	e.partitions[p] = true
	return p, nil
}

func (e *Engine) RemovePartition(p engine.Partition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.partitions[p] {
		return fmt.Errorf("partition %q not found", p)
	}
	delete(e.partitions, p)
	return nil
}

func (e *Engine) ListPartitions() ([]engine.Partition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]engine.Partition, 0, len(e.partitions))
	for p := range e.partitions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (e *Engine) tabObservers() []engine.TabObserver {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := make([]int, 0, len(e.tabObs))
	for k := range e.tabObs {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]engine.TabObserver, 0, len(keys))
	for _, k := range keys {
		out = append(out, e.tabObs[k])
	}
	return out
}

func (e *Engine) addTab(p engine.Partition, opener engine.TabID) *Tab {
	e.mu.Lock()
	e.tabSeq++
	tab := &Tab{
		ID:        engine.TabID(fmt.Sprintf("tab-%d", e.tabSeq)),
		Partition: p,
		Opener:    opener,
		dialogObs: make(map[int]func(engine.DialogEvent)),
		content:   newContent(),
	}
	e.tabs[tab.ID] = tab
	e.mu.Unlock()

	for _, obs := range e.tabObservers() {
		obs.TabOpened(tab.ID, p, opener)
	}
	return tab
}

func (e *Engine) OpenTab(ctx context.Context, p engine.Partition) (engine.TabID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tab := e.addTab(p, "")
	if e.AutoNavigate {
		go e.Navigate(tab.ID, "about:blank")
	}
	return tab.ID, nil
}

// OpenPopup simulates a tab opened by script in opener
func (e *Engine) OpenPopup(opener engine.TabID, p engine.Partition) engine.TabID {
	return e.addTab(p, opener).ID
}

// Navigate reports a committed navigation
func (e *Engine) Navigate(tab engine.TabID, url string) {
	for _, obs := range e.tabObservers() {
		obs.TabNavigated(tab, url)
	}
}

func (e *Engine) CloseTab(id engine.TabID, skipPermitUnload bool) error {
	tab, err := e.Tab(id)
	if err != nil {
		return err
	}
	tab.mu.Lock()
	if tab.closed {
		tab.mu.Unlock()
		return nil
	}
	tab.closed = true
	tab.skipPermitUnload = skipPermitUnload
	tab.mu.Unlock()

	e.mu.Lock()
	delete(e.tabs, id)
	e.mu.Unlock()

	for _, obs := range e.tabObservers() {
		obs.TabClosed(id)
	}
	return nil
}

// Tab returns the fake's tab record
func (e *Engine) Tab(id engine.TabID) (*Tab, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tab, ok := e.tabs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTab, id)
	}
	return tab, nil
}

// OpenTabs lists open tab ids
func (e *Engine) OpenTabs() []engine.TabID {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]engine.TabID, 0, len(e.tabs))
	for id := range e.tabs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (e *Engine) ObserveTabs(obs engine.TabObserver) func() {
	e.mu.Lock()
	e.obsSeq++
	key := e.obsSeq
	e.tabObs[key] = obs
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.tabObs, key)
		e.mu.Unlock()
	}
}

// DefaultWidth and DefaultHeight are reported when no viewport is set
const (
	DefaultWidth  = 1280
	DefaultHeight = 720
)

func (e *Engine) SetViewportSize(id engine.TabID, size *engine.Size) (int, int, error) {
	tab, err := e.Tab(id)
	if err != nil {
		return 0, 0, err
	}
	tab.mu.Lock()
	defer tab.mu.Unlock()
	tab.viewport = size
	if size == nil {
		return DefaultWidth, DefaultHeight, nil
	}
	return size.Width, size.Height, nil
}

// Viewport returns the last size set on the tab
func (t *Tab) Viewport() *engine.Size {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.viewport
}

// SkippedPermitUnload reports how the tab was closed
func (t *Tab) SkippedPermitUnload() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.skipPermitUnload
}

// Content returns the tab's fake content channel
func (t *Tab) Content() *Content {
	return t.content
}

func (e *Engine) ObserveDialogs(id engine.TabID, fn func(engine.DialogEvent)) (func(), error) {
	tab, err := e.Tab(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.obsSeq++
	key := e.obsSeq
	e.mu.Unlock()

	tab.mu.Lock()
	tab.dialogObs[key] = fn
	tab.mu.Unlock()
	return func() {
		tab.mu.Lock()
		delete(tab.dialogObs, key)
		tab.mu.Unlock()
	}, nil
}

// OpenDialog raises a dialog on the tab and notifies dialog observers
func (e *Engine) OpenDialog(id engine.TabID, typ engine.DialogType, message string) (*Dialog, error) {
	tab, err := e.Tab(id)
	if err != nil {
		return nil, err
	}
	d := &Dialog{typ: typ, message: message, tab: tab}
	tab.notifyDialog(engine.DialogEvent{Dialog: d})
	return d, nil
}

func (t *Tab) notifyDialog(ev engine.DialogEvent) {
	t.mu.Lock()
	fns := make([]func(engine.DialogEvent), 0, len(t.dialogObs))
	for _, fn := range t.dialogObs {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Dialog is a fake engine.Dialog
type Dialog struct {
	typ     engine.DialogType
	message string
	tab     *Tab

	mu         sync.Mutex
	answered   bool
	accepted   bool
	promptText string
}

func (d *Dialog) Type() engine.DialogType { return d.typ }
func (d *Dialog) Message() string         { return d.message }
func (d *Dialog) DefaultValue() string    { return "" }

func (d *Dialog) Accept(promptText string) error {
	return d.answer(true, promptText)
}

func (d *Dialog) Dismiss() error {
	return d.answer(false, "")
}

func (d *Dialog) answer(accept bool, text string) error {
	d.mu.Lock()
	if d.answered {
		d.mu.Unlock()
		return errors.New("dialog already answered")
	}
	d.answered, d.accepted, d.promptText = true, accept, text
	d.mu.Unlock()
	d.tab.notifyDialog(engine.DialogEvent{Dialog: d, Closed: true})
	return nil
}

// Outcome reports whether and how the dialog was answered
func (d *Dialog) Outcome() (answered, accepted bool, promptText string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.answered, d.accepted, d.promptText
}

func (e *Engine) ContentChannel(id engine.TabID) (engine.ContentChannel, error) {
	tab, err := e.Tab(id)
	if err != nil {
		return nil, err
	}
	return tab.content, nil
}

// Responder answers a content call. Returning handled=false leaves the
// call pending until the test replies with Content.Reply.
type Responder func(sessionID string, msg engine.ContentMessage) (result interface{}, err error, handled bool)

// Content is a fake content channel
type Content struct {
	mu        sync.Mutex
	sessions  map[string]func(engine.ContentMessage)
	posted    []Posted
	responder Responder
	disposed  []string
}

// Posted is a message the bridge sent
type Posted struct {
	SessionID string
	Message   engine.ContentMessage
}

func newContent() *Content {
	return &Content{sessions: make(map[string]func(engine.ContentMessage))}
}

// SetResponder installs fn; nil answers every call with {}
func (c *Content) SetResponder(fn Responder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responder = fn
}

func (c *Content) CreateSession(sessionID string, receive func(engine.ContentMessage)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[sessionID]; ok {
		return fmt.Errorf("session %s exists", sessionID)
	}
	c.sessions[sessionID] = receive
	return nil
}

func (c *Content) Post(sessionID string, msg engine.ContentMessage) error {
	c.mu.Lock()
	if _, ok := c.sessions[sessionID]; !ok {
		c.mu.Unlock()
		return fmt.Errorf("no session %s", sessionID)
	}
	c.posted = append(c.posted, Posted{SessionID: sessionID, Message: msg})
	responder := c.responder
	c.mu.Unlock()

	if msg.ID == 0 {
		return nil
	}
	if responder == nil {
		go c.Reply(sessionID, msg.ID, map[string]interface{}{}, nil)
		return nil
	}
	result, err, handled := responder(sessionID, msg)
	if handled {
		go c.Reply(sessionID, msg.ID, result, err)
	}
	return nil
}

func (c *Content) DisposeSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	c.disposed = append(c.disposed, sessionID)
}

// Reply delivers a reply to a pending call
func (c *Content) Reply(sessionID string, id int64, result interface{}, err error) {
	msg := engine.ContentMessage{ID: id}
	if err != nil {
		msg.Error = err.Error()
	} else {
		data, merr := json.Marshal(result)
		if merr != nil {
			msg.Error = merr.Error()
		} else {
			msg.Result = data
		}
	}
	c.deliver(sessionID, msg)
}

// Emit sends an unsolicited event to every open session
func (c *Content) Emit(event string, params interface{}) {
	data, _ := json.Marshal(params)
	c.mu.Lock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	for _, id := range ids {
		c.deliver(id, engine.ContentMessage{Event: event, Params: data})
	}
}

func (c *Content) deliver(sessionID string, msg engine.ContentMessage) {
	c.mu.Lock()
	receive, ok := c.sessions[sessionID]
	c.mu.Unlock()
	if ok {
		receive(msg)
	}
}

// Posted returns every message sent so far
func (c *Content) Posted() []Posted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Posted(nil), c.posted...)
}

// Methods returns the method names of posted calls and notifications
func (c *Content) Methods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.posted))
	for _, p := range c.posted {
		out = append(out, p.Message.Method)
	}
	return out
}

// Sessions lists open session ids
func (c *Content) Sessions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Disposed lists disposed session ids
func (c *Content) Disposed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.disposed...)
}

func (e *Engine) ObserveChannels(obs engine.ChannelObserver) func() {
	e.mu.Lock()
	e.obsSeq++
	key := e.obsSeq
	e.chanObs[key] = obs
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.chanObs, key)
		e.mu.Unlock()
	}
}

func (e *Engine) channelObservers() []engine.ChannelObserver {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]engine.ChannelObserver, 0, len(e.chanObs))
	for _, obs := range e.chanObs {
		out = append(out, obs)
	}
	return out
}

// ChannelObservers reports how many channel observers are registered
func (e *Engine) ChannelObservers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.chanObs)
}

// SetResponseBody stores a body for ResponseBody
func (e *Engine) SetResponseBody(channelID string, body []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bodies[channelID] = body
}

func (e *Engine) ResponseBody(tab engine.TabID, channelID string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	body, ok := e.bodies[channelID]
	if !ok {
		return nil, fmt.Errorf("no body for %s", channelID)
	}
	return body, nil
}

// Redirect reports from being redirected to to
func (e *Engine) Redirect(from, to *Channel) {
	for _, obs := range e.channelObservers() {
		obs.OnRedirect(from, to)
	}
}

// Request reports that ch's headers are final
func (e *Engine) Request(ch *Channel) {
	for _, obs := range e.channelObservers() {
		obs.OnRequest(ch)
	}
}

// Response reports a response for ch
func (e *Engine) Response(ch *Channel, resp engine.ResponseInfo) {
	for _, obs := range e.channelObservers() {
		obs.OnResponse(ch, resp)
	}
}

// Complete reports that ch finished
func (e *Engine) Complete(ch *Channel) {
	for _, obs := range e.channelObservers() {
		obs.OnComplete(ch)
	}
}

// Fail reports that ch failed
func (e *Engine) Fail(ch *Channel, code string) {
	for _, obs := range e.channelObservers() {
		obs.OnFailure(ch, code)
	}
}

func (e *Engine) Version() (string, string)          { return e.Prefs.Version() }
func (e *Engine) SetIgnoreHTTPSErrors(enabled bool) { e.Prefs.SetIgnoreHTTPSErrors(enabled) }
func (e *Engine) GrantPermissions(p engine.Partition, origin string, perms []string) error {
	return e.Prefs.GrantPermissions(p, origin, perms)
}
func (e *Engine) ResetPermissions(p engine.Partition) error { return e.Prefs.ResetPermissions(p) }
func (e *Engine) SetCookies(p engine.Partition, cookies []engine.Cookie) error {
	return e.Prefs.SetCookies(p, cookies)
}
func (e *Engine) Cookies(p engine.Partition) ([]engine.Cookie, error) { return e.Prefs.Cookies(p) }
func (e *Engine) ClearCookies(p engine.Partition) error               { return e.Prefs.ClearCookies(p) }
func (e *Engine) Quit()                                               { e.Prefs.Quit() }
func (e *Engine) Done() <-chan struct{}                               { return e.Prefs.Done() }
