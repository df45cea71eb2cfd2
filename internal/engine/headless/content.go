package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/GriffinCanCode/AgentOS/remote/internal/protocol"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

var (
	// ErrTabClosed is returned by content calls after the tab closed
	ErrTabClosed = errors.New("tab is closed")
	// ErrUnknownSession is returned for posts on a disposed session
	ErrUnknownSession = errors.New("unknown content session")
	// ErrUnknownFrame is returned for frame ids not in the tab
	ErrUnknownFrame = errors.New("failed to find frame")
)

const (
	acceptHTML     = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptLanguage = "en-US,en;q=0.5"
)

// navigation is a document load that has started but not committed
type navigation struct {
	id     string
	url    string
	cancel context.CancelFunc
	// history is the entry being revisited, or -1 for a new entry
	history int
}

// emulation holds device settings applied by Page.setViewport
type emulation struct {
	DeviceScaleFactor float64 `json:"deviceScaleFactor"`
	IsMobile          bool    `json:"isMobile"`
	HasTouch          bool    `json:"hasTouch"`
}

// content is a tab's content process. A single worker goroutine owns the
// document and script runtime; everything else reaches it through tasks.
type content struct {
	tab    *tab
	logger *zap.Logger

	mu            sync.Mutex
	sessions      map[string]func(engine.ContentMessage) // Protected by mu
	queue         []func()                               // Protected by mu
	stopped       bool                                   // Protected by mu
	channelFrames map[string]string                      // Protected by mu
	wake          chan struct{}

	// Owned by the worker
	mainFrame      string
	doc            *document
	runtime        *scriptRuntime
	history        []string
	historyIndex   int
	initScripts    []initScript
	bindings       []string
	jsEnabled      bool
	media          string
	emulation      emulation
	navigation     *navigation
	lastNavigation string
}

type initScript struct {
	id     string
	source string
}

var _ engine.ContentChannel = (*content)(nil)

func newContent(t *tab) *content {
	c := &content{
		tab:           t,
		logger:        t.logger.Named("content"),
		sessions:      make(map[string]func(engine.ContentMessage)),
		channelFrames: make(map[string]string),
		wake:          make(chan struct{}, 1),
		mainFrame:     newFrameID(),
		doc:           blankDocument(),
		historyIndex:  -1,
		jsEnabled:     true,
		emulation:     emulation{DeviceScaleFactor: 1},
	}
	go c.loop()
	return c
}

func (c *content) loop() {
	for {
		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			return
		}
		if len(c.queue) == 0 {
			c.mu.Unlock()
			<-c.wake
			continue
		}
		task := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.mu.Unlock()

		c.runTask(task)
	}
}

func (c *content) runTask(task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("Content task panicked", zap.Any("panic", rec))
		}
	}()
	task()
}

// enqueue schedules task on the worker
func (c *content) enqueue(task func()) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrTabClosed
	}
	c.queue = append(c.queue, task)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

func (c *content) stop() {
	c.mu.Lock()
	c.stopped = true
	c.queue = nil
	c.sessions = make(map[string]func(engine.ContentMessage))
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *content) CreateSession(sessionID string, receive func(engine.ContentMessage)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrTabClosed
	}
	if _, exists := c.sessions[sessionID]; exists {
		return fmt.Errorf("content session %s already exists", sessionID)
	}
	c.sessions[sessionID] = receive
	return nil
}

func (c *content) DisposeSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
}

func (c *content) Post(sessionID string, msg engine.ContentMessage) error {
	c.mu.Lock()
	_, ok := c.sessions[sessionID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return c.enqueue(func() { c.handle(sessionID, msg) })
}

func (c *content) handle(sessionID string, msg engine.ContentMessage) {
	result, err := c.call(sessionID, msg.Method, msg.Params)
	if msg.ID == 0 {
		if err != nil {
			c.logger.Debug("Content notification failed",
				zap.String("method", msg.Method),
				zap.Error(err))
		}
		return
	}

	reply := engine.ContentMessage{ID: msg.ID}
	if err != nil {
		reply.Error = err.Error()
	} else if reply.Result, err = protocol.Marshal(result); err != nil {
		reply.Result = nil
		reply.Error = fmt.Sprintf("failed to encode %s result: %v", msg.Method, err)
	}
	c.send(sessionID, reply)
}

func (c *content) send(sessionID string, msg engine.ContentMessage) {
	c.mu.Lock()
	receive := c.sessions[sessionID]
	c.mu.Unlock()
	if receive != nil {
		receive(msg)
	}
}

// emit broadcasts an event to every session
func (c *content) emit(event string, params interface{}) {
	raw, err := protocol.Marshal(params)
	if err != nil {
		c.logger.Warn("Failed to encode content event", zap.String("event", event), zap.Error(err))
		return
	}
	c.mu.Lock()
	receivers := make([]func(engine.ContentMessage), 0, len(c.sessions))
	for _, receive := range c.sessions {
		receivers = append(receivers, receive)
	}
	c.mu.Unlock()

	msg := engine.ContentMessage{Event: event, Params: raw}
	for _, receive := range receivers {
		receive(msg)
	}
}

// emitTo sends an event to one session only
func (c *content) emitTo(sessionID, event string, params interface{}) {
	raw, err := protocol.Marshal(params)
	if err != nil {
		c.logger.Warn("Failed to encode content event", zap.String("event", event), zap.Error(err))
		return
	}
	c.send(sessionID, engine.ContentMessage{Event: event, Params: raw})
}

type contentMethod func(c *content, sessionID string, params json.RawMessage) (interface{}, error)

var contentMethods map[string]contentMethod

func init() {
	contentMethods = map[string]contentMethod{
		"Page.enable":                              (*content).pageEnable,
		"Page.disable":                             func(*content, string, json.RawMessage) (interface{}, error) { return struct{}{}, nil },
		"Page.navigate":                            (*content).pageNavigate,
		"Page.goBack":                              func(c *content, _ string, p json.RawMessage) (interface{}, error) { return c.traverse(p, -1) },
		"Page.goForward":                           func(c *content, _ string, p json.RawMessage) (interface{}, error) { return c.traverse(p, 1) },
		"Page.reload":                              (*content).pageReload,
		"Page.setViewport":                         (*content).pageSetViewport,
		"Page.awaitViewportDimensions":             (*content).pageAwaitViewportDimensions,
		"Page.screenshot":                          (*content).pageScreenshot,
		"Page.dispatchKeyEvent":                    (*content).pageDispatchKeyEvent,
		"Page.dispatchMouseEvent":                  (*content).pageDispatchMouseEvent,
		"Page.insertText":                          (*content).pageInsertText,
		"Page.addScriptToEvaluateOnNewDocument":    (*content).pageAddScript,
		"Page.removeScriptToEvaluateOnNewDocument": (*content).pageRemoveScript,
		"Page.setUserAgent":                        (*content).pageSetUserAgent,
		"Page.setJavascriptEnabled":                (*content).pageSetJavascriptEnabled,
		"Page.setEmulatedMedia":                    (*content).pageSetEmulatedMedia,
		"Page.setCacheDisabled":                    (*content).pageSetCacheDisabled,
		"Page.addBinding":                          (*content).pageAddBinding,
		"Page.getFullAXTree":                       (*content).pageGetFullAXTree,
		"Page.requestDetails":                      (*content).pageRequestDetails,
		"Runtime.enable":                           (*content).runtimeEnable,
		"Runtime.evaluate":                         (*content).runtimeEvaluate,
		"Runtime.callFunction":                     (*content).runtimeCallFunction,
		"Runtime.getObjectProperties":              (*content).runtimeGetObjectProperties,
		"Runtime.disposeObject":                    (*content).runtimeDisposeObject,
	}
}

func (c *content) call(sessionID, method string, params json.RawMessage) (interface{}, error) {
	fn, ok := contentMethods[method]
	if !ok {
		return nil, fmt.Errorf("unknown content method %s", method)
	}
	return fn(c, sessionID, params)
}

func decodeParams[T any](raw json.RawMessage) (T, error) {
	var p T
	if len(raw) == 0 {
		return p, nil
	}
	if err := protocol.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("malformed params: %w", err)
	}
	return p, nil
}

type frameParams struct {
	FrameID string `json:"frameId"`
}

type navigateParams struct {
	FrameID string `json:"frameId"`
	URL     string `json:"url"`
	Referer string `json:"referer"`
}

type navigationResult struct {
	NavigationID  *string `json:"navigationId"`
	NavigationURL *string `json:"navigationURL"`
}

// frameAttached is the payload of Page.frameAttached
type frameAttached struct {
	FrameID       string `json:"frameId"`
	ParentFrameID string `json:"parentFrameId,omitempty"`
}

func (c *content) pageEnable(sessionID string, _ json.RawMessage) (interface{}, error) {
	c.emitTo(sessionID, "Page.frameAttached", frameAttached{FrameID: c.mainFrame})
	for _, f := range c.doc.frames {
		c.emitTo(sessionID, "Page.frameAttached", frameAttached{FrameID: f.id, ParentFrameID: f.parent})
	}
	if c.lastNavigation != "" {
		c.emitTo(sessionID, "Page.navigationCommitted", map[string]interface{}{
			"frameId":      c.mainFrame,
			"navigationId": c.lastNavigation,
			"url":          c.doc.url,
			"name":         "",
		})
	}
	return struct{}{}, nil
}

// checkMainFrame accepts the main frame and rejects subframes
func (c *content) checkMainFrame(frameID string) error {
	if frameID == c.mainFrame {
		return nil
	}
	for _, f := range c.doc.frames {
		if f.id == frameID {
			return fmt.Errorf("navigating subframes is not supported: %s", frameID)
		}
	}
	return fmt.Errorf("%w with id = %s", ErrUnknownFrame, frameID)
}

func (c *content) pageNavigate(_ string, raw json.RawMessage) (interface{}, error) {
	p, err := decodeParams[navigateParams](raw)
	if err != nil {
		return nil, err
	}
	if err := c.checkMainFrame(p.FrameID); err != nil {
		return nil, err
	}
	target, err := c.resolveURL(p.URL)
	if err != nil {
		return nil, err
	}

	if sameDocument(c.doc.url, target) {
		c.sameDocument(target)
		return navigationResult{NavigationURL: &target}, nil
	}
	navID := c.startNavigation(target, p.Referer, -1)
	return navigationResult{NavigationID: &navID, NavigationURL: &target}, nil
}

func (c *content) resolveURL(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", ref, err)
	}
	if !u.IsAbs() {
		base, err := url.Parse(c.doc.url)
		if err != nil || base.Scheme == "about" {
			return "", fmt.Errorf("invalid url %q: not absolute", ref)
		}
		u = base.ResolveReference(u)
	}
	return u.String(), nil
}

// sameDocument reports whether moving from current to next only changes
// the fragment
func sameDocument(current, next string) bool {
	a, errA := url.Parse(current)
	b, errB := url.Parse(next)
	if errA != nil || errB != nil || b.Fragment == "" && !strings.HasSuffix(next, "#") {
		return false
	}
	a.Fragment, b.Fragment = "", ""
	a.RawFragment, b.RawFragment = "", ""
	return a.String() == b.String()
}

func (c *content) traverse(raw json.RawMessage, delta int) (interface{}, error) {
	p, err := decodeParams[frameParams](raw)
	if err != nil {
		return nil, err
	}
	if err := c.checkMainFrame(p.FrameID); err != nil {
		return nil, err
	}
	index := c.historyIndex + delta
	if index < 0 || index >= len(c.history) {
		return navigationResult{}, nil
	}
	target := c.history[index]
	navID := c.startNavigation(target, "", index)
	return navigationResult{NavigationID: &navID, NavigationURL: &target}, nil
}

func (c *content) pageReload(_ string, raw json.RawMessage) (interface{}, error) {
	p, err := decodeParams[frameParams](raw)
	if err != nil {
		return nil, err
	}
	if err := c.checkMainFrame(p.FrameID); err != nil {
		return nil, err
	}
	target := c.doc.url
	navID := c.startNavigation(target, "", c.historyIndex)
	return map[string]string{"navigationId": navID, "navigationURL": target}, nil
}

// startNavigation begins loading target into the main frame, aborting
// any navigation in progress
func (c *content) startNavigation(target, referer string, history int) string {
	if c.navigation != nil {
		c.abortNavigation(codeAborted)
	}

	ctx, cancel := context.WithCancel(c.tab.ctx)
	nav := &navigation{id: uuid.NewString(), url: target, cancel: cancel, history: history}
	c.navigation = nav
	c.emit("Page.navigationStarted", map[string]string{
		"frameId":      c.mainFrame,
		"navigationId": nav.id,
		"url":          target,
	})

	if target == blankURL {
		doc := blankDocument()
		_ = c.enqueue(func() { c.finish(nav, doc, nil) })
		return nav.id
	}
	go c.load(ctx, nav, referer)
	return nav.id
}

func (c *content) abortNavigation(code string) {
	nav := c.navigation
	c.navigation = nil
	nav.cancel()
	c.emit("Page.navigationAborted", map[string]string{
		"frameId":      c.mainFrame,
		"navigationId": nav.id,
		"errorText":    code,
	})
}

// load fetches the document off the worker and hands the result back
func (c *content) load(ctx context.Context, nav *navigation, referer string) {
	headers := []engine.Header{
		{Name: "User-Agent", Value: c.tab.effectiveUserAgent()},
		{Name: "Accept", Value: acceptHTML},
		{Name: "Accept-Language", Value: acceptLanguage},
	}
	if referer != "" {
		headers = append(headers, engine.Header{Name: "Referer", Value: referer})
	}
	if c.tab.isCacheDisabled() {
		headers = append(headers,
			engine.Header{Name: "Cache-Control", Value: "no-cache"},
			engine.Header{Name: "Pragma", Value: "no-cache"})
	}

	result, err := c.tab.engine.loader.fetch(ctx, fetchRequest{
		tab:          c.tab.id,
		partition:    c.tab.partition,
		url:          nav.url,
		headers:      headers,
		isNavigation: true,
		cause:        "TYPE_DOCUMENT",
		onChannel:    func(channelID string) { c.bindChannel(channelID, c.mainFrame) },
	})

	var doc *document
	if err == nil {
		doc, err = parseDocument(result.body, result.header.Get("Content-Type"), result.url)
	}
	if enqueueErr := c.enqueue(func() { c.finish(nav, doc, err) }); enqueueErr != nil {
		nav.cancel()
	}
}

func (c *content) bindChannel(channelID, frameID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channelFrames[channelID] = frameID
}

// finish commits or aborts nav unless a later navigation replaced it
func (c *content) finish(nav *navigation, doc *document, err error) {
	if c.navigation != nav {
		return
	}
	c.navigation = nil
	nav.cancel()

	if err != nil {
		code := codeFailure
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) {
			code = fetchErr.Code
		}
		c.logger.Debug("Navigation failed",
			zap.String("url", nav.url),
			zap.String("code", code),
			zap.Error(err))
		c.emit("Page.navigationAborted", map[string]string{
			"frameId":      c.mainFrame,
			"navigationId": nav.id,
			"errorText":    code,
		})
		return
	}
	c.commit(nav, doc)
}

// navigateInitial commits about:blank as the tab's first document
func (c *content) navigateInitial() {
	_ = c.enqueue(func() {
		c.commit(&navigation{id: uuid.NewString(), url: blankURL, history: -1}, blankDocument())
	})
}

// commit replaces the current document with doc
func (c *content) commit(nav *navigation, doc *document) {
	if c.runtime != nil {
		c.emit("Runtime.executionContextDestroyed", map[string]string{"executionContextId": c.runtime.id})
		c.runtime = nil
	}
	for _, f := range c.doc.frames {
		c.emit("Page.frameDetached", map[string]string{"frameId": f.id})
	}

	c.doc = doc
	if nav.history >= 0 && nav.history < len(c.history) {
		c.historyIndex = nav.history
		c.history[nav.history] = doc.url
	} else {
		c.history = append(c.history[:c.historyIndex+1], doc.url)
		c.historyIndex = len(c.history) - 1
	}
	c.lastNavigation = nav.id

	c.emit("Page.navigationCommitted", map[string]string{
		"frameId":      c.mainFrame,
		"navigationId": nav.id,
		"url":          doc.url,
		"name":         "",
	})
	doc.discoverFrames(c.mainFrame)
	for _, f := range doc.frames {
		c.emit("Page.frameAttached", frameAttached{FrameID: f.id, ParentFrameID: f.parent})
	}

	runtime, err := newScriptRuntime(c, doc, c.mainFrame, c.tab.engine.config.ScriptTimeout)
	if err != nil {
		c.logger.Error("Failed to create execution context", zap.Error(err))
	} else {
		c.runtime = runtime
		c.emit("Runtime.executionContextCreated", c.contextCreated())
		for _, name := range c.bindings {
			runtime.installBinding(name)
		}
		if c.jsEnabled {
			for _, script := range c.initScripts {
				runtime.runScript(c.tab.ctx, script.source)
			}
			for _, source := range doc.inlineScripts() {
				runtime.runScript(c.tab.ctx, source)
			}
		}
	}

	c.fireLifecycle("DOMContentLoaded")
	c.fireLifecycle("load")
	c.tab.engine.notifyNavigated(c.tab, doc.url)
}

func (c *content) fireLifecycle(name string) {
	if c.runtime != nil && c.jsEnabled {
		c.runtime.dispatch(nil, name, nil)
	}
	c.emit("Page.eventFired", map[string]string{"frameId": c.mainFrame, "name": name})
}

func (c *content) contextCreated() map[string]interface{} {
	return map[string]interface{}{
		"executionContextId": c.runtime.id,
		"auxData":            map[string]string{"frameId": c.mainFrame},
	}
}

// sameDocument moves to a fragment or pushed state without reloading
func (c *content) sameDocument(target string) {
	c.doc.url = target
	c.history = append(c.history[:c.historyIndex+1], target)
	c.historyIndex = len(c.history) - 1
	c.emit("Page.sameDocumentNavigation", map[string]string{"frameId": c.mainFrame, "url": target})
	c.tab.engine.notifyNavigated(c.tab, target)
}

// navigateFromScript handles location changes and link clicks
func (c *content) navigateFromScript(target string) {
	if sameDocument(c.doc.url, target) {
		c.sameDocument(target)
		return
	}
	c.startNavigation(target, c.doc.url, -1)
}

// openPopup opens a tab on behalf of window.open
func (c *content) openPopup(target string) {
	select {
	case <-c.tab.engine.quitting:
		return
	default:
	}
	popup := c.tab.engine.openTab(c.tab.partition, c.tab.id)
	popup.content.navigateInitial()
	if target == blankURL {
		return
	}
	referer := c.doc.url
	_ = popup.content.enqueue(func() { popup.content.startNavigation(target, referer, -1) })
}

// permission reports the state of a script-visible permission for the
// current document's origin
func (c *content) permission(name string) string {
	u, err := url.Parse(c.doc.url)
	if err != nil || u.Host == "" {
		return PermissionPrompt
	}
	origin := u.Scheme + "://" + u.Host
	return c.tab.engine.permissions.state(c.tab.partition, origin, name)
}

// permitUnload runs beforeunload and reports whether the tab may close.
// A page with handlers asks through a beforeunload dialog.
func (c *content) permitUnload() bool {
	result := make(chan bool, 1)
	err := c.enqueue(func() {
		if c.runtime == nil || !c.jsEnabled || !c.runtime.hasUnloadHandler() {
			result <- true
			return
		}
		c.runtime.dispatch(nil, "beforeunload", nil)
		accepted, _ := c.tab.openDialog(engine.DialogBeforeUnload, "", "")
		result <- accepted
	})
	if err != nil {
		return true
	}
	select {
	case ok := <-result:
		return ok
	case <-c.tab.ctx.Done():
		return true
	}
}

func (c *content) pageSetViewport(_ string, raw json.RawMessage) (interface{}, error) {
	p, err := decodeParams[emulation](raw)
	if err != nil {
		return nil, err
	}
	if p.DeviceScaleFactor <= 0 {
		p.DeviceScaleFactor = 1
	}
	c.emulation = p
	return struct{}{}, nil
}

func (c *content) pageAwaitViewportDimensions(_ string, raw json.RawMessage) (interface{}, error) {
	p, err := decodeParams[struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}](raw)
	if err != nil {
		return nil, err
	}
	width, height := c.tab.viewportSize()
	if width != p.Width || height != p.Height {
		return nil, fmt.Errorf("viewport is %dx%d, expected %dx%d", width, height, p.Width, p.Height)
	}
	return struct{}{}, nil
}

func (c *content) pageScreenshot(_ string, raw json.RawMessage) (interface{}, error) {
	p, err := decodeParams[screenshotParams](raw)
	if err != nil {
		return nil, err
	}
	width, height := c.tab.viewportSize()
	data, err := screenshot(p, width, height, c.emulation.DeviceScaleFactor)
	if err != nil {
		return nil, err
	}
	return map[string]string{"data": data}, nil
}

type keyEventParams struct {
	Type     string `json:"type"`
	Key      string `json:"key"`
	KeyCode  int    `json:"keyCode"`
	Location int    `json:"location"`
	Code     string `json:"code"`
	Repeat   bool   `json:"repeat"`
}

func (c *content) pageDispatchKeyEvent(_ string, raw json.RawMessage) (interface{}, error) {
	p, err := decodeParams[keyEventParams](raw)
	if err != nil {
		return nil, err
	}
	r := c.runtime
	if r == nil {
		return struct{}{}, nil
	}

	fields := map[string]interface{}{
		"key":      p.Key,
		"code":     p.Code,
		"keyCode":  p.KeyCode,
		"location": p.Location,
		"repeat":   p.Repeat,
	}
	prevented := r.dispatch(r.focused, p.Type, fields)
	if p.Type != "keydown" || prevented {
		return struct{}{}, nil
	}

	switch {
	case len([]rune(p.Key)) == 1:
		if !r.dispatch(r.focused, "keypress", fields) {
			r.insertText(p.Key)
		}
	case p.Key == "Backspace":
		r.deleteBackward()
	case p.Key == "Enter" && r.focused != nil:
		r.dispatch(r.focused, "change", nil)
	}
	return struct{}{}, nil
}

type mouseEventParams struct {
	Type       string  `json:"type"`
	Button     int     `json:"button"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Modifiers  int     `json:"modifiers"`
	ClickCount int     `json:"clickCount"`
	Buttons    int     `json:"buttons"`
}

// pageDispatchMouseEvent delivers pointer events to the window. There is
// no layout to hit-test against.
func (c *content) pageDispatchMouseEvent(_ string, raw json.RawMessage) (interface{}, error) {
	p, err := decodeParams[mouseEventParams](raw)
	if err != nil {
		return nil, err
	}
	r := c.runtime
	if r == nil {
		return struct{}{}, nil
	}
	fields := map[string]interface{}{
		"button":    p.Button,
		"buttons":   p.Buttons,
		"clientX":   p.X,
		"clientY":   p.Y,
		"detail":    p.ClickCount,
		"modifiers": p.Modifiers,
	}
	r.dispatch(nil, p.Type, fields)
	if p.Type == "mouseup" && p.ClickCount > 0 {
		r.dispatch(nil, "click", fields)
	}
	return struct{}{}, nil
}

func (c *content) pageInsertText(_ string, raw json.RawMessage) (interface{}, error) {
	p, err := decodeParams[struct {
		Text string `json:"text"`
	}](raw)
	if err != nil {
		return nil, err
	}
	if c.runtime != nil {
		c.runtime.insertText(p.Text)
	}
	return struct{}{}, nil
}

func (c *content) pageAddScript(_ string, raw json.RawMessage) (interface{}, error) {
	p, err := decodeParams[struct {
		Script string `json:"script"`
	}](raw)
	if err != nil {
		return nil, err
	}
	script := initScript{id: uuid.NewString(), source: p.Script}
	c.initScripts = append(c.initScripts, script)
	return map[string]string{"scriptId": script.id}, nil
}

func (c *content) pageRemoveScript(_ string, raw json.RawMessage) (interface{}, error) {
	p, err := decodeParams[struct {
		ScriptID string `json:"scriptId"`
	}](raw)
	if err != nil {
		return nil, err
	}
	for i, script := range c.initScripts {
		if script.id == p.ScriptID {
			c.initScripts = append(c.initScripts[:i], c.initScripts[i+1:]...)
			return struct{}{}, nil
		}
	}
	return nil, fmt.Errorf("failed to find script with id = %s", p.ScriptID)
}

func (c *content) pageSetUserAgent(_ string, raw json.RawMessage) (interface{}, error) {
	p, err := decodeParams[struct {
		UserAgent *string `json:"userAgent"`
	}](raw)
	if err != nil {
		return nil, err
	}
	ua := ""
	if p.UserAgent != nil {
		ua = *p.UserAgent
	}
	c.tab.setUserAgent(ua)
	return struct{}{}, nil
}

func (c *content) pageSetJavascriptEnabled(_ string, raw json.RawMessage) (interface{}, error) {
	p, err := decodeParams[struct {
		Enabled bool `json:"enabled"`
	}](raw)
	if err != nil {
		return nil, err
	}
	c.jsEnabled = p.Enabled
	return struct{}{}, nil
}

func (c *content) pageSetEmulatedMedia(_ string, raw json.RawMessage) (interface{}, error) {
	p, err := decodeParams[struct {
		Media string `json:"media"`
	}](raw)
	if err != nil {
		return nil, err
	}
	c.media = p.Media
	return struct{}{}, nil
}

func (c *content) pageSetCacheDisabled(_ string, raw json.RawMessage) (interface{}, error) {
	p, err := decodeParams[struct {
		CacheDisabled bool `json:"cacheDisabled"`
	}](raw)
	if err != nil {
		return nil, err
	}
	c.tab.setCacheDisabled(p.CacheDisabled)
	return struct{}{}, nil
}

func (c *content) pageAddBinding(_ string, raw json.RawMessage) (interface{}, error) {
	p, err := decodeParams[struct {
		Name string `json:"name"`
	}](raw)
	if err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, errors.New("binding name must not be empty")
	}
	for _, name := range c.bindings {
		if name == p.Name {
			return struct{}{}, nil
		}
	}
	c.bindings = append(c.bindings, p.Name)
	if c.runtime != nil {
		c.runtime.installBinding(p.Name)
	}
	return struct{}{}, nil
}

func (c *content) pageGetFullAXTree(_ string, _ json.RawMessage) (interface{}, error) {
	return map[string]interface{}{"tree": accessibilityTree(c.doc, c.runtimeFocus())}, nil
}

func (c *content) runtimeFocus() *html.Node {
	if c.runtime == nil {
		return nil
	}
	return c.runtime.focused
}

func (c *content) pageRequestDetails(_ string, raw json.RawMessage) (interface{}, error) {
	p, err := decodeParams[struct {
		ChannelID string `json:"channelId"`
	}](raw)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	frameID, ok := c.channelFrames[p.ChannelID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no details for channel %s", p.ChannelID)
	}
	return map[string]string{"frameId": frameID}, nil
}

func (c *content) runtimeEnable(sessionID string, _ json.RawMessage) (interface{}, error) {
	if c.runtime != nil {
		c.emitTo(sessionID, "Runtime.executionContextCreated", c.contextCreated())
	}
	return struct{}{}, nil
}

// executionContext resolves the runtime addressed by contextID
func (c *content) executionContext(contextID string) (*scriptRuntime, error) {
	if c.runtime == nil || c.runtime.id != contextID {
		return nil, fmt.Errorf("failed to find execution context with id = %s", contextID)
	}
	return c.runtime, nil
}

func (c *content) runtimeEvaluate(_ string, raw json.RawMessage) (interface{}, error) {
	p, err := decodeParams[struct {
		ExecutionContextID string `json:"executionContextId"`
		Expression         string `json:"expression"`
		ReturnByValue      bool   `json:"returnByValue"`
	}](raw)
	if err != nil {
		return nil, err
	}
	r, err := c.executionContext(p.ExecutionContextID)
	if err != nil {
		return nil, err
	}
	return r.evaluate(c.tab.ctx, p.Expression, p.ReturnByValue), nil
}

func (c *content) runtimeCallFunction(_ string, raw json.RawMessage) (interface{}, error) {
	p, err := decodeParams[struct {
		ExecutionContextID  string         `json:"executionContextId"`
		FunctionDeclaration string         `json:"functionDeclaration"`
		Args                []callArgument `json:"args"`
		ReturnByValue       bool           `json:"returnByValue"`
	}](raw)
	if err != nil {
		return nil, err
	}
	r, err := c.executionContext(p.ExecutionContextID)
	if err != nil {
		return nil, err
	}
	return r.callFunction(c.tab.ctx, p.FunctionDeclaration, p.Args, p.ReturnByValue)
}

type objectParams struct {
	ExecutionContextID string `json:"executionContextId"`
	ObjectID           string `json:"objectId"`
}

func (c *content) runtimeGetObjectProperties(_ string, raw json.RawMessage) (interface{}, error) {
	p, err := decodeParams[objectParams](raw)
	if err != nil {
		return nil, err
	}
	r, err := c.executionContext(p.ExecutionContextID)
	if err != nil {
		return nil, err
	}
	props, err := r.properties(p.ObjectID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"properties": props}, nil
}

func (c *content) runtimeDisposeObject(_ string, raw json.RawMessage) (interface{}, error) {
	p, err := decodeParams[objectParams](raw)
	if err != nil {
		return nil, err
	}
	r, err := c.executionContext(p.ExecutionContextID)
	if err != nil {
		return nil, err
	}
	r.disposeObject(p.ObjectID)
	return struct{}{}, nil
}
