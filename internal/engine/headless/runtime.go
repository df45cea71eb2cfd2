package headless

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/GriffinCanCode/AgentOS/remote/internal/protocol"
	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"
	"github.com/google/uuid"
	"golang.org/x/net/html"
)

var (
	ErrUnknownObject = errors.New("failed to find object")
	ErrNotCallable   = errors.New("function declaration is not a function")
)

// listenerKey addresses the listeners of one event type on one node. A
// nil node is the window.
type listenerKey struct {
	node *html.Node
	typ  string
}

// scriptRuntime is the execution context of one document. It is only
// used from the content worker.
type scriptRuntime struct {
	id      string
	frameID string
	vm      *goja.Runtime
	timeout time.Duration
	content *content
	doc     *document

	objects   map[string]goja.Value
	elements  map[*html.Node]*goja.Object
	nodes     map[*goja.Object]*html.Node
	listeners map[listenerKey][]goja.Callable
	focused   *html.Node
	inDialog  atomic.Bool
}

func newScriptRuntime(c *content, doc *document, frameID string, timeout time.Duration) (*scriptRuntime, error) {
	r := &scriptRuntime{
		id:        uuid.NewString(),
		frameID:   frameID,
		vm:        goja.New(),
		timeout:   timeout,
		content:   c,
		doc:       doc,
		objects:   make(map[string]goja.Value),
		elements:  make(map[*html.Node]*goja.Object),
		nodes:     make(map[*goja.Object]*html.Node),
		listeners: make(map[listenerKey][]goja.Callable),
	}
	r.vm.SetMaxCallStackSize(1024)
	if err := r.setupGlobals(); err != nil {
		return nil, fmt.Errorf("failed to set up script globals: %w", err)
	}
	return r, nil
}

// setupGlobals installs the page-facing API
func (r *scriptRuntime) setupGlobals() error {
	vm := r.vm
	global := vm.GlobalObject()

	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	console := vm.NewObject()
	for _, level := range []string{"log", "debug", "info", "warn", "error"} {
		_ = console.Set(level, r.makeConsoleFunc(level))
	}

	// Timers never fire; there is no event loop between calls.
	noTimer := func(goja.FunctionCall) goja.Value { return vm.ToValue(0) }

	globals := map[string]interface{}{
		"window":                global,
		"self":                  global,
		"console":               console,
		"document":              r.newDocumentObject(),
		"location":              r.newLocationObject(),
		"navigator":             r.newNavigatorObject(),
		"history":               r.newHistoryObject(),
		"setTimeout":            noTimer,
		"setInterval":           noTimer,
		"clearTimeout":          func(goja.FunctionCall) goja.Value { return goja.Undefined() },
		"clearInterval":         func(goja.FunctionCall) goja.Value { return goja.Undefined() },
		"alert":                 r.makeDialogFunc(engine.DialogAlert),
		"confirm":               r.makeDialogFunc(engine.DialogConfirm),
		"prompt":                r.makeDialogFunc(engine.DialogPrompt),
		"open":                  r.windowOpen,
		"matchMedia":            r.matchMedia,
		"addEventListener":      r.makeAddListener(nil),
		"removeEventListener":   r.makeRemoveListener(nil),
		"requestAnimationFrame": noTimer,
	}
	for name, value := range globals {
		if err := vm.Set(name, value); err != nil {
			return err
		}
	}

	accessors := map[string]func() interface{}{
		"innerWidth": func() interface{} {
			w, _ := r.content.tab.viewportSize()
			return w
		},
		"innerHeight": func() interface{} {
			_, h := r.content.tab.viewportSize()
			return h
		},
		"devicePixelRatio": func() interface{} {
			return r.content.emulation.DeviceScaleFactor
		},
	}
	for name, get := range accessors {
		if err := r.defineGetter(global, name, get); err != nil {
			return err
		}
	}
	return nil
}

func (r *scriptRuntime) defineGetter(obj *goja.Object, name string, get func() interface{}) error {
	getter := r.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return r.vm.ToValue(get())
	})
	return obj.DefineAccessorProperty(name, getter, nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

func (r *scriptRuntime) defineAccessor(obj *goja.Object, name string, get func() interface{}, set func(goja.Value)) error {
	getter := r.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return r.vm.ToValue(get())
	})
	setter := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		set(call.Argument(0))
		return goja.Undefined()
	})
	return obj.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

// makeConsoleFunc reports console calls as Page.console events
func (r *scriptRuntime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args := make([]interface{}, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			args = append(args, r.remoteObject(arg, false))
		}
		line, column, source := r.callerPosition()
		r.content.emit("Page.console", map[string]interface{}{
			"frameId": r.frameID,
			"args":    args,
			"type":    level,
			"location": map[string]interface{}{
				"columnNumber": column,
				"lineNumber":   line,
				"url":          source,
			},
		})
		return goja.Undefined()
	}
}

func (r *scriptRuntime) callerPosition() (line, column int, source string) {
	for _, frame := range r.vm.CaptureCallStack(8, nil) {
		pos := frame.Position()
		if pos.Line > 0 {
			return pos.Line - 1, pos.Column - 1, frame.SrcName()
		}
	}
	return 0, 0, r.doc.url
}

func (r *scriptRuntime) makeDialogFunc(typ engine.DialogType) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		message := ""
		if arg := call.Argument(0); !goja.IsUndefined(arg) {
			message = arg.String()
		}
		defaultValue := ""
		if arg := call.Argument(1); typ == engine.DialogPrompt && !goja.IsUndefined(arg) {
			defaultValue = arg.String()
		}

		r.inDialog.Store(true)
		accepted, text := r.content.tab.openDialog(typ, message, defaultValue)
		r.inDialog.Store(false)
		switch typ {
		case engine.DialogConfirm:
			return r.vm.ToValue(accepted)
		case engine.DialogPrompt:
			if !accepted {
				return goja.Null()
			}
			return r.vm.ToValue(text)
		}
		return goja.Undefined()
	}
}

func (r *scriptRuntime) windowOpen(call goja.FunctionCall) goja.Value {
	target := blankURL
	if arg := call.Argument(0); !goja.IsUndefined(arg) && arg.String() != "" {
		target = r.resolve(arg.String())
	}
	r.content.openPopup(target)
	return goja.Null()
}

func (r *scriptRuntime) matchMedia(call goja.FunctionCall) goja.Value {
	query := call.Argument(0).String()
	media := r.content.media
	if media == "" {
		media = "screen"
	}
	result := r.vm.NewObject()
	_ = result.Set("media", query)
	_ = result.Set("matches", strings.Contains(query, media))
	return result
}

func (r *scriptRuntime) resolve(ref string) string {
	if r.doc.dom.Url == nil {
		return ref
	}
	u, err := r.doc.dom.Url.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

func (r *scriptRuntime) newLocationObject() *goja.Object {
	location := r.vm.NewObject()
	href := func() interface{} { return r.doc.url }
	navigate := func(v goja.Value) {
		r.content.navigateFromScript(r.resolve(v.String()))
	}
	_ = r.defineAccessor(location, "href", href, navigate)
	_ = location.Set("toString", func(goja.FunctionCall) goja.Value { return r.vm.ToValue(r.doc.url) })
	_ = location.Set("assign", func(call goja.FunctionCall) goja.Value {
		navigate(call.Argument(0))
		return goja.Undefined()
	})
	_ = location.Set("reload", func(goja.FunctionCall) goja.Value {
		r.content.navigateFromScript(r.doc.url)
		return goja.Undefined()
	})
	return location
}

func (r *scriptRuntime) newHistoryObject() *goja.Object {
	history := r.vm.NewObject()
	push := func(call goja.FunctionCall) goja.Value {
		if arg := call.Argument(2); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			r.content.sameDocument(r.resolve(arg.String()))
		}
		return goja.Undefined()
	}
	_ = history.Set("pushState", push)
	_ = history.Set("replaceState", push)
	_ = r.defineGetter(history, "length", func() interface{} { return len(r.content.history) })
	return history
}

const permissionsPrelude = `(function (state) {
	return {
		query: function (descriptor) {
			var name = descriptor && descriptor.name;
			return Promise.resolve({ name: name, state: state(name) });
		}
	};
})`

func (r *scriptRuntime) newNavigatorObject() *goja.Object {
	navigator := r.vm.NewObject()
	_ = r.defineGetter(navigator, "userAgent", func() interface{} { return r.content.tab.effectiveUserAgent() })
	_ = navigator.Set("language", "en-US")
	_ = navigator.Set("languages", []interface{}{"en-US", "en"})
	_ = navigator.Set("webdriver", true)

	state := func(call goja.FunctionCall) goja.Value {
		name, ok := scriptPermissions[call.Argument(0).String()]
		if !ok {
			return r.vm.ToValue(PermissionPrompt)
		}
		return r.vm.ToValue(r.content.permission(name))
	}
	if factory, err := r.vm.RunString(permissionsPrelude); err == nil {
		if fn, ok := goja.AssertFunction(factory); ok {
			if permissions, err := fn(goja.Undefined(), r.vm.ToValue(state)); err == nil {
				_ = navigator.Set("permissions", permissions)
			}
		}
	}
	return navigator
}

func (r *scriptRuntime) newDocumentObject() *goja.Object {
	document := r.vm.NewObject()
	root := r.doc.dom.Selection

	_ = r.defineAccessor(document, "title", func() interface{} { return r.doc.title() }, func(v goja.Value) {
		title := r.doc.dom.Find("title").First()
		if title.Length() == 0 {
			r.doc.dom.Find("head").AppendHtml("<title></title>")
			title = r.doc.dom.Find("title").First()
		}
		title.SetText(v.String())
	})
	_ = r.defineGetter(document, "URL", func() interface{} { return r.doc.url })
	_ = r.defineGetter(document, "readyState", func() interface{} { return "complete" })
	_ = r.defineGetter(document, "body", func() interface{} { return r.first(r.doc.dom.Find("body")) })
	_ = r.defineGetter(document, "documentElement", func() interface{} { return r.first(r.doc.dom.Find("html")) })
	_ = r.defineGetter(document, "activeElement", func() interface{} {
		if r.focused == nil {
			return r.first(r.doc.dom.Find("body"))
		}
		return r.element(r.focused)
	})

	_ = document.Set("querySelector", r.makeQuery(root, false))
	_ = document.Set("querySelectorAll", r.makeQuery(root, true))
	_ = document.Set("getElementById", func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).String()
		var found *html.Node
		r.doc.dom.Find("[id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if v, _ := s.Attr("id"); v == id {
				found = s.Get(0)
				return false
			}
			return true
		})
		return r.element(found)
	})
	_ = document.Set("getElementsByTagName", func(call goja.FunctionCall) goja.Value {
		return r.all(root.Find(call.Argument(0).String()))
	})
	_ = document.Set("getElementsByClassName", func(call goja.FunctionCall) goja.Value {
		classes := strings.Fields(call.Argument(0).String())
		if len(classes) == 0 {
			return r.vm.NewArray()
		}
		return r.all(root.Find("." + strings.Join(classes, ".")))
	})
	_ = document.Set("evaluate", func(call goja.FunctionCall) goja.Value {
		matches, err := r.doc.xpath(call.Argument(0).String())
		if err != nil {
			panic(r.vm.NewTypeError("invalid XPath expression: %v", err))
		}
		out := make([]interface{}, 0, len(matches))
		for _, m := range matches {
			out = append(out, r.element(m.Get(0)))
		}
		return r.vm.NewArray(out...)
	})
	_ = document.Set("addEventListener", r.makeAddListener(nil))
	_ = document.Set("removeEventListener", r.makeRemoveListener(nil))
	return document
}

func (r *scriptRuntime) makeQuery(scope *goquery.Selection, all bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		matches := scope.Find(call.Argument(0).String())
		if all {
			return r.all(matches)
		}
		return r.first(matches)
	}
}

func (r *scriptRuntime) first(sel *goquery.Selection) goja.Value {
	if sel.Length() == 0 {
		return goja.Null()
	}
	return r.element(sel.Get(0))
}

func (r *scriptRuntime) all(sel *goquery.Selection) goja.Value {
	out := make([]interface{}, 0, sel.Length())
	for _, n := range sel.Nodes {
		out = append(out, r.element(n))
	}
	return r.vm.NewArray(out...)
}

// element returns the proxy for n, creating it on first use so that
// identity holds across lookups
func (r *scriptRuntime) element(n *html.Node) goja.Value {
	if n == nil {
		return goja.Null()
	}
	if obj, ok := r.elements[n]; ok {
		return obj
	}

	sel := r.doc.dom.FindNodes(n)
	obj := r.vm.NewObject()
	r.elements[n] = obj
	r.nodes[obj] = n

	attr := func(name string) interface{} {
		if v, ok := sel.Attr(name); ok {
			return v
		}
		return nil
	}
	attrString := func(name string) func() interface{} {
		return func() interface{} {
			v, _ := sel.Attr(name)
			return v
		}
	}
	setAttr := func(name string) func(goja.Value) {
		return func(v goja.Value) { sel.SetAttr(name, v.String()) }
	}

	_ = obj.Set("tagName", strings.ToUpper(n.Data))
	_ = obj.Set("nodeName", strings.ToUpper(n.Data))
	_ = r.defineAccessor(obj, "id", attrString("id"), setAttr("id"))
	_ = r.defineAccessor(obj, "className", attrString("class"), setAttr("class"))
	_ = r.defineAccessor(obj, "textContent", func() interface{} { return sel.Text() }, func(v goja.Value) { sel.SetText(v.String()) })
	_ = r.defineAccessor(obj, "innerHTML", func() interface{} {
		h, _ := sel.Html()
		return h
	}, func(v goja.Value) { sel.SetHtml(v.String()) })
	_ = r.defineAccessor(obj, "value", func() interface{} {
		if v, ok := sel.Attr("value"); ok {
			return v
		}
		if n.Data == "textarea" {
			return sel.Text()
		}
		return ""
	}, setAttr("value"))
	_ = r.defineAccessor(obj, "checked", func() interface{} {
		_, ok := sel.Attr("checked")
		return ok
	}, func(v goja.Value) {
		if v.ToBoolean() {
			sel.SetAttr("checked", "")
		} else {
			sel.RemoveAttr("checked")
		}
	})
	_ = r.defineGetter(obj, "href", func() interface{} {
		if v, ok := sel.Attr("href"); ok {
			return r.resolve(v)
		}
		return nil
	})
	_ = r.defineGetter(obj, "parentElement", func() interface{} {
		if n.Parent == nil || n.Parent.Type != html.ElementNode {
			return nil
		}
		return r.element(n.Parent)
	})

	_ = obj.Set("getAttribute", func(call goja.FunctionCall) goja.Value {
		return r.vm.ToValue(attr(call.Argument(0).String()))
	})
	_ = obj.Set("setAttribute", func(call goja.FunctionCall) goja.Value {
		sel.SetAttr(call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})
	_ = obj.Set("hasAttribute", func(call goja.FunctionCall) goja.Value {
		_, ok := sel.Attr(call.Argument(0).String())
		return r.vm.ToValue(ok)
	})
	_ = obj.Set("removeAttribute", func(call goja.FunctionCall) goja.Value {
		sel.RemoveAttr(call.Argument(0).String())
		return goja.Undefined()
	})
	_ = obj.Set("querySelector", r.makeQuery(sel, false))
	_ = obj.Set("querySelectorAll", r.makeQuery(sel, true))
	_ = obj.Set("addEventListener", r.makeAddListener(n))
	_ = obj.Set("removeEventListener", r.makeRemoveListener(n))
	_ = obj.Set("focus", func(goja.FunctionCall) goja.Value {
		r.focus(n)
		return goja.Undefined()
	})
	_ = obj.Set("blur", func(goja.FunctionCall) goja.Value {
		if r.focused == n {
			r.focused = nil
		}
		return goja.Undefined()
	})
	_ = obj.Set("click", func(goja.FunctionCall) goja.Value {
		r.click(n)
		return goja.Undefined()
	})
	return obj
}

func (r *scriptRuntime) makeAddListener(n *html.Node) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			return goja.Undefined()
		}
		key := listenerKey{node: n, typ: call.Argument(0).String()}
		r.listeners[key] = append(r.listeners[key], fn)
		return goja.Undefined()
	}
}

// makeRemoveListener drops every listener for the type. Callables carry
// no identity to compare against.
func (r *scriptRuntime) makeRemoveListener(n *html.Node) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		delete(r.listeners, listenerKey{node: n, typ: call.Argument(0).String()})
		return goja.Undefined()
	}
}

func (r *scriptRuntime) focus(n *html.Node) {
	if r.focused == n {
		return
	}
	r.focused = n
	r.dispatch(n, "focus", nil)
}

func editable(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if n.Data == "textarea" {
		return true
	}
	if n.Data != "input" {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == "type" {
			switch strings.ToLower(a.Val) {
			case "", "text", "search", "email", "password", "url", "tel", "number":
				return true
			}
			return false
		}
	}
	return true
}

// click runs click listeners and the element's default action
func (r *scriptRuntime) click(n *html.Node) {
	sel := r.doc.dom.FindNodes(n)
	if n.Data == "input" || n.Data == "textarea" || n.Data == "select" || n.Data == "button" {
		r.focus(n)
	}
	if r.dispatch(n, "click", nil) {
		return
	}

	switch n.Data {
	case "a":
		if href, ok := sel.Attr("href"); ok && !strings.HasPrefix(href, "#") && !strings.HasPrefix(href, "javascript:") {
			r.content.navigateFromScript(r.resolve(href))
		} else if ok && strings.HasPrefix(href, "#") {
			r.content.sameDocument(r.resolve(href))
		}
	case "input":
		typ, _ := sel.Attr("type")
		if strings.EqualFold(typ, "checkbox") {
			if _, checked := sel.Attr("checked"); checked {
				sel.RemoveAttr("checked")
			} else {
				sel.SetAttr("checked", "")
			}
			r.dispatch(n, "change", nil)
		}
	}
}

// dispatch calls the listeners for typ on n, then on the window. It
// reports whether a listener called preventDefault.
func (r *scriptRuntime) dispatch(n *html.Node, typ string, fields map[string]interface{}) bool {
	event := r.vm.NewObject()
	prevented := false
	_ = event.Set("type", typ)
	_ = event.Set("target", r.element(n))
	_ = event.Set("preventDefault", func(goja.FunctionCall) goja.Value {
		prevented = true
		return goja.Undefined()
	})
	for k, v := range fields {
		_ = event.Set(k, v)
	}

	var targets []listenerKey
	if n != nil {
		targets = append(targets, listenerKey{node: n, typ: typ})
	}
	targets = append(targets, listenerKey{typ: typ})
	for _, key := range targets {
		for _, fn := range append([]goja.Callable(nil), r.listeners[key]...) {
			if _, err := fn(goja.Undefined(), event); err != nil {
				r.reportError(err)
			}
		}
	}
	if n == nil {
		if handler, ok := goja.AssertFunction(r.vm.Get("on" + typ)); ok {
			if _, err := handler(goja.Undefined(), event); err != nil {
				r.reportError(err)
			}
		}
	}
	return prevented
}

// hasUnloadHandler reports whether closing the page needs a
// beforeunload prompt
func (r *scriptRuntime) hasUnloadHandler() bool {
	if len(r.listeners[listenerKey{typ: "beforeunload"}]) > 0 {
		return true
	}
	_, ok := goja.AssertFunction(r.vm.Get("onbeforeunload"))
	return ok
}

// insertText appends text to the focused editable element
func (r *scriptRuntime) insertText(text string) {
	if !editable(r.focused) {
		return
	}
	sel := r.doc.dom.FindNodes(r.focused)
	current, ok := sel.Attr("value")
	if !ok && r.focused.Data == "textarea" {
		current = sel.Text()
	}
	sel.SetAttr("value", current+text)
	r.dispatch(r.focused, "input", map[string]interface{}{"data": text})
}

func (r *scriptRuntime) deleteBackward() {
	if !editable(r.focused) {
		return
	}
	sel := r.doc.dom.FindNodes(r.focused)
	current, ok := sel.Attr("value")
	if !ok && r.focused.Data == "textarea" {
		current = sel.Text()
	}
	runes := []rune(current)
	if len(runes) == 0 {
		return
	}
	sel.SetAttr("value", string(runes[:len(runes)-1]))
	r.dispatch(r.focused, "input", map[string]interface{}{"inputType": "deleteContentBackward"})
}

func (r *scriptRuntime) installBinding(name string) {
	_ = r.vm.Set(name, func(call goja.FunctionCall) goja.Value {
		r.content.emit("Page.bindingCalled", map[string]interface{}{
			"frameId": r.frameID,
			"name":    name,
			"payload": r.jsonValue(call.Argument(0)),
		})
		return goja.Undefined()
	})
}

func (r *scriptRuntime) reportError(err error) {
	message, stack := err.Error(), ""
	var ex *goja.Exception
	if errors.As(err, &ex) {
		message = ex.Value().String()
		stack = ex.String()
	}
	r.content.emit("Page.uncaughtError", map[string]interface{}{
		"frameId": r.frameID,
		"message": message,
		"stack":   stack,
	})
}

// run executes fn under the script timeout, interrupting the VM when the
// timeout or ctx expires
func (r *scriptRuntime) run(ctx context.Context, fn func() (goja.Value, error)) (goja.Value, error) {
	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		for {
			select {
			case <-timer.C:
				// Time spent waiting on a dialog does not count
				if r.inDialog.Load() {
					timer.Reset(r.timeout)
					continue
				}
				r.vm.Interrupt("execution timeout exceeded")
			case <-ctx.Done():
				r.vm.Interrupt("context cancelled")
			case <-done:
			}
			return
		}
	}()

	val, err := fn()
	close(done)
	<-exited
	r.vm.ClearInterrupt()
	return val, err
}

// runScript runs page or init script source, reporting exceptions as
// uncaught errors
func (r *scriptRuntime) runScript(ctx context.Context, source string) {
	_, err := r.run(ctx, func() (goja.Value, error) {
		return r.vm.RunScript(r.doc.url, source)
	})
	if err != nil {
		r.reportError(err)
	}
}

// evaluation is the result of Runtime.evaluate and Runtime.callFunction
type evaluation struct {
	Result           map[string]interface{} `json:"result,omitempty"`
	ExceptionDetails *exceptionDetails      `json:"exceptionDetails,omitempty"`
}

type exceptionDetails struct {
	Text  string      `json:"text,omitempty"`
	Stack string      `json:"stack,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

func (r *scriptRuntime) evaluate(ctx context.Context, expression string, byValue bool) evaluation {
	val, err := r.run(ctx, func() (goja.Value, error) {
		return r.vm.RunScript("", expression)
	})
	return r.evaluationOf(val, err, byValue)
}

// callArgument is one argument of Runtime.callFunction
type callArgument struct {
	ObjectID            string      `json:"objectId,omitempty"`
	UnserializableValue string      `json:"unserializableValue,omitempty"`
	Value               interface{} `json:"value,omitempty"`
}

func (r *scriptRuntime) callFunction(ctx context.Context, declaration string, args []callArgument, byValue bool) (evaluation, error) {
	values := make([]goja.Value, 0, len(args))
	for _, arg := range args {
		v, err := r.argument(arg)
		if err != nil {
			return evaluation{}, err
		}
		values = append(values, v)
	}

	val, err := r.run(ctx, func() (goja.Value, error) {
		fnValue, err := r.vm.RunScript("", "("+declaration+")")
		if err != nil {
			return nil, err
		}
		fn, ok := goja.AssertFunction(fnValue)
		if !ok {
			return nil, ErrNotCallable
		}
		return fn(goja.Undefined(), values...)
	})
	if errors.Is(err, ErrNotCallable) {
		return evaluation{}, err
	}
	return r.evaluationOf(val, err, byValue), nil
}

func (r *scriptRuntime) argument(arg callArgument) (goja.Value, error) {
	switch {
	case arg.ObjectID != "":
		v, ok := r.objects[arg.ObjectID]
		if !ok {
			return nil, fmt.Errorf("%w with id = %s", ErrUnknownObject, arg.ObjectID)
		}
		return v, nil
	case arg.UnserializableValue != "":
		switch arg.UnserializableValue {
		case "NaN":
			return r.vm.ToValue(math.NaN()), nil
		case "Infinity":
			return r.vm.ToValue(math.Inf(1)), nil
		case "-Infinity":
			return r.vm.ToValue(math.Inf(-1)), nil
		case "-0":
			return r.vm.ToValue(math.Copysign(0, -1)), nil
		}
		return nil, fmt.Errorf("unsupported unserializable value %q", arg.UnserializableValue)
	case arg.Value == nil:
		return goja.Undefined(), nil
	}
	return r.vm.ToValue(arg.Value), nil
}

func (r *scriptRuntime) evaluationOf(val goja.Value, err error, byValue bool) evaluation {
	if err != nil {
		return evaluation{ExceptionDetails: r.exception(err)}
	}
	if obj, ok := val.(*goja.Object); ok {
		if p, ok := obj.Export().(*goja.Promise); ok {
			switch p.State() {
			case goja.PromiseStateFulfilled:
				val = p.Result()
			case goja.PromiseStateRejected:
				return evaluation{ExceptionDetails: &exceptionDetails{
					Text:  p.Result().String(),
					Value: r.jsonValue(p.Result()),
				}}
			}
		}
	}
	return evaluation{Result: r.remoteObject(val, byValue)}
}

func (r *scriptRuntime) exception(err error) *exceptionDetails {
	var (
		ex          *goja.Exception
		interrupted *goja.InterruptedError
	)
	switch {
	case errors.As(err, &ex):
		return &exceptionDetails{Text: ex.Value().String(), Stack: ex.String(), Value: r.jsonValue(ex.Value())}
	case errors.As(err, &interrupted):
		return &exceptionDetails{Text: fmt.Sprint(interrupted.Value())}
	}
	return &exceptionDetails{Text: err.Error()}
}

// remoteObject describes v for the client. Objects are kept alive under
// an objectId unless returned by value.
func (r *scriptRuntime) remoteObject(v goja.Value, byValue bool) map[string]interface{} {
	if v == nil || goja.IsUndefined(v) {
		return map[string]interface{}{"type": "undefined"}
	}
	if goja.IsNull(v) {
		return map[string]interface{}{"value": nil}
	}

	obj, isObject := v.(*goja.Object)
	if !isObject {
		switch x := v.Export().(type) {
		case float64:
			switch {
			case math.IsNaN(x):
				return map[string]interface{}{"unserializableValue": "NaN"}
			case math.IsInf(x, 1):
				return map[string]interface{}{"unserializableValue": "Infinity"}
			case math.IsInf(x, -1):
				return map[string]interface{}{"unserializableValue": "-Infinity"}
			case x == 0 && math.Signbit(x):
				return map[string]interface{}{"unserializableValue": "-0"}
			}
			return map[string]interface{}{"value": x}
		case int64, string, bool:
			return map[string]interface{}{"value": x}
		case *big.Int:
			return r.handle(v, "bigint", "")
		}
		return r.handle(v, "symbol", "")
	}

	if byValue {
		return map[string]interface{}{"value": r.jsonValue(v)}
	}
	typ := "object"
	if _, ok := goja.AssertFunction(v); ok {
		typ = "function"
	}
	return r.handle(obj, typ, r.subtype(obj))
}

func (r *scriptRuntime) handle(v goja.Value, typ, subtype string) map[string]interface{} {
	objectID := uuid.NewString()
	r.objects[objectID] = v
	out := map[string]interface{}{"type": typ, "objectId": objectID}
	if subtype != "" {
		out["subtype"] = subtype
	}
	return out
}

var classSubtypes = map[string]string{
	"Array":   "array",
	"RegExp":  "regexp",
	"Date":    "date",
	"Map":     "map",
	"Set":     "set",
	"WeakMap": "weakmap",
	"WeakSet": "weakset",
	"Error":   "error",
	"Promise": "promise",
}

func (r *scriptRuntime) subtype(obj *goja.Object) string {
	if _, ok := r.nodes[obj]; ok {
		return "node"
	}
	class := obj.ClassName()
	if subtype, ok := classSubtypes[class]; ok {
		return subtype
	}
	if strings.HasSuffix(class, "Array") {
		return "typedarray"
	}
	return ""
}

// jsonValue converts v the way JSON.stringify would
func (r *scriptRuntime) jsonValue(v goja.Value) interface{} {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	stringify, ok := goja.AssertFunction(r.vm.Get("JSON").ToObject(r.vm).Get("stringify"))
	if !ok {
		return nil
	}
	encoded, err := stringify(goja.Undefined(), v)
	if err != nil || goja.IsUndefined(encoded) {
		return nil
	}
	var out interface{}
	if err := protocol.Unmarshal([]byte(encoded.String()), &out); err != nil {
		return nil
	}
	return out
}

// property is one entry of Runtime.getObjectProperties
type property struct {
	Name  string                 `json:"name"`
	Value map[string]interface{} `json:"value"`
}

func (r *scriptRuntime) properties(objectID string) ([]property, error) {
	v, ok := r.objects[objectID]
	if !ok {
		return nil, fmt.Errorf("%w with id = %s", ErrUnknownObject, objectID)
	}
	obj := v.ToObject(r.vm)
	keys := obj.Keys()
	out := make([]property, 0, len(keys))
	for _, key := range keys {
		out = append(out, property{Name: key, Value: r.remoteObject(obj.Get(key), false)})
	}
	return out, nil
}

func (r *scriptRuntime) disposeObject(objectID string) {
	delete(r.objects, objectID)
}
