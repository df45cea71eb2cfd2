package headless

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/GriffinCanCode/AgentOS/remote/internal/protocol"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const waitTimeout = 5 * time.Second

const fixturePage = `<!DOCTYPE html>
<html><head><title>Fixture</title></head>
<body>
<h1>Welcome</h1>
<button id="go" onclick="">Go</button>
<input id="name" type="text">
<a id="next" href="/second">Next</a>
<iframe src="/frame" name="child"></iframe>
<script>console.log("hi", 42); window.loadedBy = "inline";</script>
</body></html>`

const secondPage = `<html><head><title>Second</title></head><body><p>Two</p></body></html>`

type navigated struct {
	tab engine.TabID
	url string
}

type tabRecorder struct {
	opened    chan engine.TabID
	navigated chan navigated
	closed    chan engine.TabID
}

func (r *tabRecorder) TabOpened(tab engine.TabID, _ engine.Partition, _ engine.TabID) {
	r.opened <- tab
}

func (r *tabRecorder) TabNavigated(tab engine.TabID, url string) {
	r.navigated <- navigated{tab: tab, url: url}
}

func (r *tabRecorder) TabClosed(tab engine.TabID) {
	r.closed <- tab
}

type harness struct {
	t    *testing.T
	e    *Engine
	tab  engine.TabID
	tabs *tabRecorder
	srv  *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(fixturePage))
	})
	mux.HandleFunc("/second", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(secondPage))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	e, err := New(Config{
		ProfileDir:        t.TempDir(),
		ScriptTimeout:     2 * time.Second,
		NavigationTimeout: waitTimeout,
	}, zap.NewNop())
	require.NoError(t, err)

	tabs := &tabRecorder{
		opened:    make(chan engine.TabID, 16),
		navigated: make(chan navigated, 64),
		closed:    make(chan engine.TabID, 16),
	}
	t.Cleanup(e.ObserveTabs(tabs))
	t.Cleanup(func() {
		e.Quit()
		<-e.Done()
	})

	id, err := e.OpenTab(context.Background(), engine.DefaultPartition)
	require.NoError(t, err)
	h := &harness{t: t, e: e, tab: id, tabs: tabs, srv: srv}
	assert.Equal(t, id, receive(t, tabs.opened))
	assert.Equal(t, navigated{tab: id, url: blankURL}, receive(t, tabs.navigated))
	return h
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for value")
		var zero T
		return zero
	}
}

// session is a raw content session, as the bridge would hold
type session struct {
	t      *testing.T
	ch     engine.ContentChannel
	id     string
	seq    int64
	inbox  chan engine.ContentMessage
	events []engine.ContentMessage
}

func (h *harness) session() *session {
	h.t.Helper()
	ch, err := h.e.ContentChannel(h.tab)
	require.NoError(h.t, err)
	s := &session{t: h.t, ch: ch, id: uuid.NewString(), inbox: make(chan engine.ContentMessage, 512)}
	require.NoError(h.t, ch.CreateSession(s.id, func(msg engine.ContentMessage) { s.inbox <- msg }))
	return s
}

func (s *session) post(method string, params interface{}) int64 {
	s.t.Helper()
	raw, err := protocol.Marshal(params)
	require.NoError(s.t, err)
	s.seq++
	require.NoError(s.t, s.ch.Post(s.id, engine.ContentMessage{ID: s.seq, Method: method, Params: raw}))
	return s.seq
}

func (s *session) await(callID int64) (json.RawMessage, error) {
	s.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case msg := <-s.inbox:
			if msg.ID == callID {
				if msg.Error != "" {
					return nil, errors.New(msg.Error)
				}
				return msg.Result, nil
			}
			if msg.Event != "" {
				s.events = append(s.events, msg)
			}
		case <-deadline:
			s.t.Fatalf("timed out waiting for reply %d", callID)
		}
	}
}

func (s *session) send(method string, params interface{}) (json.RawMessage, error) {
	s.t.Helper()
	return s.await(s.post(method, params))
}

func (s *session) must(method string, params interface{}) map[string]interface{} {
	s.t.Helper()
	raw, err := s.send(method, params)
	require.NoError(s.t, err, method)
	out, err := protocol.Normalize(raw)
	require.NoError(s.t, err)
	return out
}

func (s *session) next() engine.ContentMessage {
	s.t.Helper()
	if len(s.events) > 0 {
		msg := s.events[0]
		s.events = s.events[1:]
		return msg
	}
	deadline := time.After(waitTimeout)
	for {
		select {
		case msg := <-s.inbox:
			if msg.Event != "" {
				return msg
			}
		case <-deadline:
			s.t.Fatal("timed out waiting for event")
			return engine.ContentMessage{}
		}
	}
}

// event skips ahead to the next event called name
func (s *session) event(name string) map[string]interface{} {
	s.t.Helper()
	for {
		msg := s.next()
		if msg.Event == name {
			params, err := protocol.Normalize(msg.Params)
			require.NoError(s.t, err)
			return params
		}
	}
}

// eventsUntil returns event names up to and including the first one
// accepted by stop
func (s *session) eventsUntil(stop func(name string, params map[string]interface{}) bool) []string {
	s.t.Helper()
	var names []string
	for {
		msg := s.next()
		params, err := protocol.Normalize(msg.Params)
		require.NoError(s.t, err)
		names = append(names, msg.Event)
		if stop(msg.Event, params) {
			return names
		}
	}
}

func loadFired(name string, params map[string]interface{}) bool {
	return name == "Page.eventFired" && params["name"] == "load"
}

func (s *session) mainFrame() string {
	s.t.Helper()
	s.must("Page.enable", nil)
	attached := s.event("Page.frameAttached")
	return attached["frameId"].(string)
}

func (s *session) executionContext() string {
	s.t.Helper()
	s.must("Runtime.enable", nil)
	created := s.event("Runtime.executionContextCreated")
	return created["executionContextId"].(string)
}

func (s *session) evaluate(contextID, expression string, byValue bool) map[string]interface{} {
	s.t.Helper()
	return s.must("Runtime.evaluate", map[string]interface{}{
		"executionContextId": contextID,
		"expression":         expression,
		"returnByValue":      byValue,
	})
}

func (s *session) navigate(frameID, url string) map[string]interface{} {
	s.t.Helper()
	return s.must("Page.navigate", map[string]interface{}{"frameId": frameID, "url": url})
}

func TestPageEnableReplaysFrameState(t *testing.T) {
	h := newHarness(t)
	s := h.session()

	s.must("Page.enable", nil)
	attached := s.event("Page.frameAttached")
	assert.NotEmpty(t, attached["frameId"])
	assert.NotContains(t, attached, "parentFrameId")
	committed := s.event("Page.navigationCommitted")
	assert.Equal(t, attached["frameId"], committed["frameId"])
	assert.Equal(t, blankURL, committed["url"])
	assert.NotEmpty(t, committed["navigationId"])
}

func TestRuntimeEvaluateRemoteObjects(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	ctxID := s.executionContext()

	tests := []struct {
		expression string
		byValue    bool
		want       string
	}{
		{"1 + 2", false, `{"result":{"value":3}}`},
		{"'text'", false, `{"result":{"value":"text"}}`},
		{"undefined", false, `{"result":{"type":"undefined"}}`},
		{"null", false, `{"result":{"value":null}}`},
		{"NaN", false, `{"result":{"unserializableValue":"NaN"}}`},
		{"-0", false, `{"result":{"unserializableValue":"-0"}}`},
		{"-Infinity", false, `{"result":{"unserializableValue":"-Infinity"}}`},
		{"({a: 1, b: [true]})", true, `{"result":{"value":{"a":1,"b":[true]}}}`},
		{"Promise.resolve(7)", false, `{"result":{"value":7}}`},
	}
	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			raw, err := s.send("Runtime.evaluate", map[string]interface{}{
				"executionContextId": ctxID,
				"expression":         tt.expression,
				"returnByValue":      tt.byValue,
			})
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}

func TestRuntimeObjectHandles(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	ctxID := s.executionContext()

	result := s.evaluate(ctxID, "({name: 'box', size: 3})", false)["result"].(map[string]interface{})
	assert.Equal(t, "object", result["type"])
	objectID := result["objectId"].(string)

	props := s.must("Runtime.getObjectProperties", map[string]interface{}{
		"executionContextId": ctxID,
		"objectId":           objectID,
	})
	raw, err := protocol.Marshal(props)
	require.NoError(t, err)
	assert.JSONEq(t, `{"properties":[{"name":"name","value":{"value":"box"}},{"name":"size","value":{"value":3}}]}`, string(raw))

	called := s.must("Runtime.callFunction", map[string]interface{}{
		"executionContextId":  ctxID,
		"functionDeclaration": "function (o, n) { return o.size * n; }",
		"args":                []interface{}{map[string]interface{}{"objectId": objectID}, map[string]interface{}{"value": 5}},
	})
	assert.Equal(t, map[string]interface{}{"value": float64(15)}, called["result"])

	arr := s.evaluate(ctxID, "[1, 2]", false)["result"].(map[string]interface{})
	assert.Equal(t, "array", arr["subtype"])
	node := s.evaluate(ctxID, "document.body", false)["result"].(map[string]interface{})
	assert.Equal(t, "node", node["subtype"])

	s.must("Runtime.disposeObject", map[string]interface{}{"executionContextId": ctxID, "objectId": objectID})
	_, err = s.send("Runtime.getObjectProperties", map[string]interface{}{
		"executionContextId": ctxID,
		"objectId":           objectID,
	})
	assert.ErrorContains(t, err, "failed to find object")
}

func TestRuntimeExceptions(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	ctxID := s.executionContext()

	thrown := s.evaluate(ctxID, "throw new Error('boom')", false)
	details := thrown["exceptionDetails"].(map[string]interface{})
	assert.Equal(t, "Error: boom", details["text"])
	assert.NotContains(t, thrown, "result")

	rejected := s.evaluate(ctxID, "Promise.reject('nope')", false)
	assert.Equal(t, "nope", rejected["exceptionDetails"].(map[string]interface{})["text"])

	_, err := s.send("Runtime.evaluate", map[string]interface{}{
		"executionContextId": "missing",
		"expression":         "1",
	})
	assert.ErrorContains(t, err, "failed to find execution context with id = missing")

	_, err = s.send("Runtime.callFunction", map[string]interface{}{
		"executionContextId":  ctxID,
		"functionDeclaration": "42",
		"args":                []interface{}{},
	})
	assert.ErrorContains(t, err, ErrNotCallable.Error())
}

func TestScriptTimeoutInterrupts(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	ctxID := s.executionContext()

	start := time.Now()
	result := s.evaluate(ctxID, "for (;;) {}", false)
	assert.Less(t, time.Since(start), waitTimeout)
	details := result["exceptionDetails"].(map[string]interface{})
	assert.Equal(t, "execution timeout exceeded", details["text"])

	// The context stays usable
	assert.Equal(t, map[string]interface{}{"value": float64(2)}, s.evaluate(ctxID, "1 + 1", false)["result"])
}

func TestNavigateCommitsDocument(t *testing.T) {
	h := newHarness(t)
	channels := newRecorder()
	t.Cleanup(h.e.ObserveChannels(channels))

	s := h.session()
	frameID := s.mainFrame()
	s.event("Page.navigationCommitted")
	s.must("Runtime.enable", nil)
	s.event("Runtime.executionContextCreated")

	result := s.navigate(frameID, h.srv.URL+"/")
	navID := result["navigationId"].(string)
	assert.Equal(t, h.srv.URL+"/", result["navigationURL"])

	names := s.eventsUntil(loadFired)
	assert.Equal(t, []string{
		"Page.navigationStarted",
		"Runtime.executionContextDestroyed",
		"Page.navigationCommitted",
		"Page.frameAttached",
		"Runtime.executionContextCreated",
		"Page.console",
		"Page.eventFired",
		"Page.eventFired",
	}, names)
	assert.Equal(t, navigated{tab: h.tab, url: h.srv.URL + "/"}, receive(t, h.tabs.navigated))

	s.must("Page.enable", nil)
	replayed := s.event("Page.navigationCommitted")
	assert.Equal(t, navID, replayed["navigationId"])

	ctxID := s.executionContext()
	assert.Equal(t, map[string]interface{}{"value": "Fixture"}, s.evaluate(ctxID, "document.title", false)["result"])
	assert.Equal(t, map[string]interface{}{"value": "inline"}, s.evaluate(ctxID, "window.loadedBy", false)["result"])

	var channelID string
	channels.mu.Lock()
	for id, req := range channels.requests {
		if req.URL == h.srv.URL+"/" {
			channelID = id
			assert.True(t, req.IsNavigation)
			assert.Equal(t, "TYPE_DOCUMENT", req.Cause)
		}
	}
	channels.mu.Unlock()
	require.NotEmpty(t, channelID)
	details := s.must("Page.requestDetails", map[string]interface{}{"channelId": channelID})
	assert.Equal(t, frameID, details["frameId"])
}

func TestNavigateConsoleArguments(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	frameID := s.mainFrame()

	s.navigate(frameID, h.srv.URL+"/")
	console := s.event("Page.console")
	assert.Equal(t, "log", console["type"])
	assert.Equal(t, frameID, console["frameId"])
	assert.Equal(t, []interface{}{
		map[string]interface{}{"value": "hi"},
		map[string]interface{}{"value": float64(42)},
	}, console["args"])
}

func TestNavigateFailureAborts(t *testing.T) {
	h := newHarness(t)
	dead := httptest.NewServer(http.NotFoundHandler())
	addr := dead.URL
	dead.Close()

	s := h.session()
	frameID := s.mainFrame()
	result := s.navigate(frameID, addr)
	aborted := s.event("Page.navigationAborted")
	assert.Equal(t, result["navigationId"], aborted["navigationId"])
	assert.Equal(t, codeConnectionRefused, aborted["errorText"])
}

func TestNavigateRejectsUnknownFrames(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	frameID := s.mainFrame()

	_, err := s.send("Page.navigate", map[string]interface{}{"frameId": "nope", "url": h.srv.URL})
	assert.ErrorContains(t, err, "failed to find frame with id = nope")

	s.navigate(frameID, h.srv.URL+"/")
	child := s.event("Page.frameAttached")
	_, err = s.send("Page.navigate", map[string]interface{}{"frameId": child["frameId"], "url": h.srv.URL})
	assert.ErrorContains(t, err, "subframes")
}

func TestSameDocumentNavigation(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	frameID := s.mainFrame()

	raw, err := s.send("Page.navigate", map[string]interface{}{"frameId": frameID, "url": "about:blank#section"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"navigationId":null,"navigationURL":"about:blank#section"}`, string(raw))
	same := s.event("Page.sameDocumentNavigation")
	assert.Equal(t, "about:blank#section", same["url"])
	assert.Equal(t, navigated{tab: h.tab, url: "about:blank#section"}, receive(t, h.tabs.navigated))
}

func TestHistoryTraversal(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	frameID := s.mainFrame()

	s.navigate(frameID, h.srv.URL+"/")
	s.eventsUntil(loadFired)
	s.navigate(frameID, h.srv.URL+"/second")
	s.eventsUntil(loadFired)

	back := s.must("Page.goBack", map[string]interface{}{"frameId": frameID})
	assert.Equal(t, h.srv.URL+"/", back["navigationURL"])
	s.eventsUntil(loadFired)

	forward := s.must("Page.goForward", map[string]interface{}{"frameId": frameID})
	assert.Equal(t, h.srv.URL+"/second", forward["navigationURL"])
	s.eventsUntil(loadFired)

	raw, err := s.send("Page.goForward", map[string]interface{}{"frameId": frameID})
	require.NoError(t, err)
	assert.JSONEq(t, `{"navigationId":null,"navigationURL":null}`, string(raw))

	reload := s.must("Page.reload", map[string]interface{}{"frameId": frameID})
	assert.Equal(t, h.srv.URL+"/second", reload["navigationURL"])
	assert.NotEmpty(t, reload["navigationId"])
}

func TestLinkClickNavigates(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	frameID := s.mainFrame()
	s.navigate(frameID, h.srv.URL+"/")
	s.eventsUntil(loadFired)
	ctxID := s.executionContext()

	s.evaluate(ctxID, "document.getElementById('next').click()", false)
	started := s.event("Page.navigationStarted")
	assert.Equal(t, h.srv.URL+"/second", started["url"])
	s.eventsUntil(loadFired)
}

func TestAlertDialog(t *testing.T) {
	h := newHarness(t)
	dialogs := make(chan engine.DialogEvent, 4)
	stop, err := h.e.ObserveDialogs(h.tab, func(ev engine.DialogEvent) { dialogs <- ev })
	require.NoError(t, err)
	defer stop()

	s := h.session()
	ctxID := s.executionContext()
	callID := s.post("Runtime.evaluate", map[string]interface{}{
		"executionContextId": ctxID,
		"expression":         "prompt('name?', 'anon') + '!'",
	})

	opened := receive(t, dialogs)
	require.False(t, opened.Closed)
	assert.Equal(t, engine.DialogPrompt, opened.Dialog.Type())
	assert.Equal(t, "name?", opened.Dialog.Message())
	assert.Equal(t, "anon", opened.Dialog.DefaultValue())
	require.NoError(t, opened.Dialog.Accept("bob"))
	assert.ErrorIs(t, opened.Dialog.Dismiss(), ErrDialogAnswered)

	closed := receive(t, dialogs)
	assert.True(t, closed.Closed)
	raw, err := s.await(callID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":{"value":"bob!"}}`, string(raw))
}

func TestBeforeUnloadCanKeepTabOpen(t *testing.T) {
	h := newHarness(t)
	dialogs := make(chan engine.DialogEvent, 4)
	stop, err := h.e.ObserveDialogs(h.tab, func(ev engine.DialogEvent) { dialogs <- ev })
	require.NoError(t, err)
	defer stop()

	s := h.session()
	ctxID := s.executionContext()
	s.evaluate(ctxID, "window.addEventListener('beforeunload', function (e) { e.preventDefault(); })", false)

	done := make(chan error, 1)
	go func() { done <- h.e.CloseTab(h.tab, false) }()
	opened := receive(t, dialogs)
	assert.Equal(t, engine.DialogBeforeUnload, opened.Dialog.Type())
	require.NoError(t, opened.Dialog.Dismiss())
	require.NoError(t, receive(t, done))

	_, err = h.e.ContentChannel(h.tab)
	require.NoError(t, err, "dismissed beforeunload keeps the tab")

	require.NoError(t, h.e.CloseTab(h.tab, true))
	assert.Equal(t, h.tab, receive(t, h.tabs.closed))
	_, err = h.e.ContentChannel(h.tab)
	assert.ErrorIs(t, err, ErrUnknownTab)
}

func TestWindowOpenCreatesPopup(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	ctxID := s.executionContext()

	s.evaluate(ctxID, "window.open('"+h.srv.URL+"/second')", false)
	popup := receive(t, h.tabs.opened)
	assert.NotEqual(t, h.tab, popup)
	assert.Equal(t, navigated{tab: popup, url: blankURL}, receive(t, h.tabs.navigated))
	assert.Equal(t, navigated{tab: popup, url: h.srv.URL + "/second"}, receive(t, h.tabs.navigated))
}

func TestInputEvents(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	frameID := s.mainFrame()
	s.navigate(frameID, h.srv.URL+"/")
	s.eventsUntil(loadFired)
	ctxID := s.executionContext()

	s.evaluate(ctxID, `
		window.keys = [];
		document.addEventListener('keydown', function (e) { window.keys.push(e.key); });
		document.getElementById('name').focus();`, false)

	s.must("Page.insertText", map[string]interface{}{"text": "hel"})
	for _, key := range []string{"l", "o", "Backspace"} {
		s.must("Page.dispatchKeyEvent", map[string]interface{}{
			"type": "keydown", "key": key, "keyCode": 0, "location": 0, "code": "", "repeat": false,
		})
	}

	assert.Equal(t, map[string]interface{}{"value": "hell"},
		s.evaluate(ctxID, "document.getElementById('name').value", false)["result"])
	assert.Equal(t, map[string]interface{}{"value": []interface{}{"l", "o", "Backspace"}},
		s.evaluate(ctxID, "window.keys", true)["result"])
}

func TestBindingCalled(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	ctxID := s.executionContext()

	s.must("Page.addBinding", map[string]interface{}{"name": "report"})
	s.evaluate(ctxID, "report({ok: true})", false)
	called := s.event("Page.bindingCalled")
	assert.Equal(t, "report", called["name"])
	assert.Equal(t, map[string]interface{}{"ok": true}, called["payload"])
}

func TestInitScriptsRunBeforePageScripts(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	frameID := s.mainFrame()

	added := s.must("Page.addScriptToEvaluateOnNewDocument", map[string]interface{}{"script": "window.loadedBy = 'init'; window.early = true;"})
	s.navigate(frameID, h.srv.URL+"/")
	s.eventsUntil(loadFired)
	ctxID := s.executionContext()
	assert.Equal(t, map[string]interface{}{"value": true}, s.evaluate(ctxID, "window.early", false)["result"])
	assert.Equal(t, map[string]interface{}{"value": "inline"}, s.evaluate(ctxID, "window.loadedBy", false)["result"])

	s.must("Page.removeScriptToEvaluateOnNewDocument", map[string]interface{}{"scriptId": added["scriptId"]})
	_, err := s.send("Page.removeScriptToEvaluateOnNewDocument", map[string]interface{}{"scriptId": added["scriptId"]})
	assert.Error(t, err)
}

func TestJavascriptDisabledSkipsPageScripts(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	frameID := s.mainFrame()

	s.must("Page.setJavascriptEnabled", map[string]interface{}{"enabled": false})
	s.navigate(frameID, h.srv.URL+"/")
	s.eventsUntil(loadFired)
	ctxID := s.executionContext()
	assert.Equal(t, map[string]interface{}{"type": "undefined"}, s.evaluate(ctxID, "window.loadedBy", false)["result"])
}

func TestUserAgentOverride(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	ctxID := s.executionContext()

	s.must("Page.setUserAgent", map[string]interface{}{"userAgent": "Custom/1.0"})
	assert.Equal(t, map[string]interface{}{"value": "Custom/1.0"}, s.evaluate(ctxID, "navigator.userAgent", false)["result"])
	s.must("Page.setUserAgent", map[string]interface{}{"userAgent": nil})
	_, ua := h.e.Version()
	assert.Equal(t, map[string]interface{}{"value": ua}, s.evaluate(ctxID, "navigator.userAgent", false)["result"])
}

func TestAccessibilityTree(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	frameID := s.mainFrame()
	s.navigate(frameID, h.srv.URL+"/")
	s.eventsUntil(loadFired)

	tree := s.must("Page.getFullAXTree", nil)["tree"].(map[string]interface{})
	assert.Equal(t, "document", tree["role"])
	assert.Equal(t, "Fixture", tree["name"])
	children := tree["children"].([]interface{})
	require.GreaterOrEqual(t, len(children), 3)
	assert.Equal(t, map[string]interface{}{"role": "heading", "name": "Welcome", "level": float64(1)}, children[0])
	assert.Equal(t, map[string]interface{}{"role": "pushbutton", "name": "Go"}, children[1])
	assert.Equal(t, "entry", children[2].(map[string]interface{})["role"])
}

func TestViewportAndScreenshot(t *testing.T) {
	h := newHarness(t)
	s := h.session()

	width, height, err := h.e.SetViewportSize(h.tab, &engine.Size{Width: 400, Height: 300})
	require.NoError(t, err)
	s.must("Page.setViewport", map[string]interface{}{"deviceScaleFactor": 2, "isMobile": false, "hasTouch": false})
	s.must("Page.awaitViewportDimensions", map[string]interface{}{"width": width, "height": height})
	_, err = s.send("Page.awaitViewportDimensions", map[string]interface{}{"width": 1, "height": 1})
	assert.Error(t, err)

	shot := s.must("Page.screenshot", map[string]interface{}{"mimeType": "image/png"})
	data, err := base64.StdEncoding.DecodeString(shot["data"].(string))
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.Width)
	assert.Equal(t, 600, cfg.Height)

	ctxID := s.executionContext()
	assert.Equal(t, map[string]interface{}{"value": float64(400)}, s.evaluate(ctxID, "innerWidth", false)["result"])
}

func TestPermissionsVisibleToScripts(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	frameID := s.mainFrame()
	s.navigate(frameID, h.srv.URL+"/")
	s.eventsUntil(loadFired)
	ctxID := s.executionContext()

	query := "navigator.permissions.query({name: 'geolocation'}).then(function (r) { return r.state; })"
	assert.Equal(t, map[string]interface{}{"value": "prompt"}, s.evaluate(ctxID, query, false)["result"])
	require.NoError(t, h.e.GrantPermissions(engine.DefaultPartition, h.srv.URL, []string{"geo"}))
	assert.Equal(t, map[string]interface{}{"value": "granted"}, s.evaluate(ctxID, query, false)["result"])
}

func TestUnknownContentMethod(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	_, err := s.send("Page.fly", nil)
	assert.ErrorContains(t, err, "unknown content method Page.fly")
}

func TestPostAfterDisposeFails(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	s.ch.DisposeSession(s.id)
	err := s.ch.Post(s.id, engine.ContentMessage{ID: 1, Method: "Page.enable"})
	assert.ErrorIs(t, err, ErrUnknownSession)
}
