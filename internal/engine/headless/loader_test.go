package headless

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recorder logs observer callbacks in the order they arrive
type recorder struct {
	mu        sync.Mutex
	events    []string
	responses map[string]engine.ResponseInfo
	requests  map[string]engine.RequestInfo
	onRequest func(engine.Channel)
}

func newRecorder() *recorder {
	return &recorder{
		responses: make(map[string]engine.ResponseInfo),
		requests:  make(map[string]engine.RequestInfo),
	}
}

func (r *recorder) log(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) OnRedirect(from, to engine.Channel) {
	r.log("redirect %s -> %s", from.Request().URL, to.Request().URL)
}

func (r *recorder) OnRequest(ch engine.Channel) {
	r.mu.Lock()
	r.requests[ch.ID()] = ch.Request()
	hook := r.onRequest
	r.mu.Unlock()
	r.log("request %s", ch.Request().URL)
	if hook != nil {
		hook(ch)
	}
}

func (r *recorder) OnResponse(ch engine.Channel, resp engine.ResponseInfo) {
	r.mu.Lock()
	r.responses[ch.ID()] = resp
	r.mu.Unlock()
	r.log("response %s %d", ch.Request().URL, resp.Status)
}

func (r *recorder) OnComplete(ch engine.Channel) {
	r.log("complete %s", ch.Request().URL)
}

func (r *recorder) OnFailure(ch engine.Channel, code string) {
	r.log("failure %s %s", ch.Request().URL, code)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newTestLoader(t *testing.T) (*loader, *recorder) {
	t.Helper()
	l := newLoader(newCookieStore(), 5*time.Second, zap.NewNop())
	rec := newRecorder()
	t.Cleanup(l.observe(rec))
	return l, rec
}

func TestFetchDecodesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		_, _ = zw.Write([]byte("hello compressed world"))
		_ = zw.Close()
	}))
	defer srv.Close()

	l, rec := newTestLoader(t)
	result, err := l.fetch(context.Background(), fetchRequest{tab: "tab-1", url: srv.URL + "/text"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.status)
	assert.Equal(t, "hello compressed world", string(result.body))

	body, err := l.body("tab-1", result.channelID)
	require.NoError(t, err)
	assert.Equal(t, result.body, body)

	assert.Equal(t, []string{
		"request " + srv.URL + "/text",
		"response " + srv.URL + "/text 200",
		"complete " + srv.URL + "/text",
	}, rec.snapshot())

	resp := rec.responses[result.channelID]
	assert.Equal(t, "127.0.0.1", resp.RemoteIP)
	assert.NotZero(t, resp.RemotePort)
	assert.Nil(t, resp.Security)

	l.forget("tab-1")
	_, err = l.body("tab-1", result.channelID)
	assert.Error(t, err)
}

func TestFetchFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("done"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	l, rec := newTestLoader(t)
	var channels []string
	result, err := l.fetch(context.Background(), fetchRequest{
		tab:       "tab-1",
		url:       srv.URL + "/start",
		method:    http.MethodPost,
		postData:  strPtr("payload"),
		onChannel: func(id string) { channels = append(channels, id) },
	})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/final", result.url)
	assert.Equal(t, "done", string(result.body))
	require.Len(t, channels, 2)
	assert.Equal(t, channels[1], result.channelID)

	assert.Equal(t, []string{
		"request " + srv.URL + "/start",
		"response " + srv.URL + "/start 302",
		"complete " + srv.URL + "/start",
		"redirect " + srv.URL + "/start -> " + srv.URL + "/final",
		"request " + srv.URL + "/final",
		"response " + srv.URL + "/final 200",
		"complete " + srv.URL + "/final",
	}, rec.snapshot())

	// A 302 after POST continues as a bodyless GET
	final := rec.requests[channels[1]]
	assert.Equal(t, http.MethodGet, final.Method)
	assert.Nil(t, final.PostData)
}

func TestFetchRedirectLoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path, http.StatusFound)
	}))
	defer srv.Close()

	l, _ := newTestLoader(t)
	_, err := l.fetch(context.Background(), fetchRequest{tab: "tab-1", url: srv.URL + "/loop"})
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, codeTooManyRedirects, fetchErr.Code)
}

func TestFetchSuspendAndCancel(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	l, rec := newTestLoader(t)
	rec.onRequest = func(ch engine.Channel) {
		ch.Suspend()
		go func() {
			time.Sleep(10 * time.Millisecond)
			ch.Cancel("NS_ERROR_ABORT")
		}()
	}

	_, err := l.fetch(context.Background(), fetchRequest{tab: "tab-1", url: srv.URL})
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "NS_ERROR_ABORT", fetchErr.Code)
	assert.Zero(t, hits)
	assert.Equal(t, []string{
		"request " + srv.URL,
		"failure " + srv.URL + " NS_ERROR_ABORT",
	}, rec.snapshot())
}

func TestFetchSuspendResumeAppliesHeaders(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("X-Extra")
	}))
	defer srv.Close()

	l, rec := newTestLoader(t)
	rec.onRequest = func(ch engine.Channel) {
		ch.Suspend()
		go func() {
			ch.SetRequestHeader("X-Extra", "intercepted")
			ch.Resume()
		}()
	}

	_, err := l.fetch(context.Background(), fetchRequest{tab: "tab-1", url: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "intercepted", <-got)
}

func TestFetchSendsStoredCookies(t *testing.T) {
	got := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("Cookie")
		http.SetCookie(w, &http.Cookie{Name: "visit", Value: "1", Path: "/"})
	}))
	defer srv.Close()

	l, _ := newTestLoader(t)
	for i := 0; i < 2; i++ {
		_, err := l.fetch(context.Background(), fetchRequest{tab: "tab-1", url: srv.URL})
		require.NoError(t, err)
	}
	assert.Empty(t, <-got)
	assert.Equal(t, "visit=1", <-got)
}

func TestFetchRejectsUnsupportedScheme(t *testing.T) {
	l, rec := newTestLoader(t)
	_, err := l.fetch(context.Background(), fetchRequest{tab: "tab-1", url: "ftp://example.com/file"})
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, codeUnsupportedScheme, fetchErr.Code)
	assert.Empty(t, rec.snapshot())
}

func TestFetchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	l, rec := newTestLoader(t)
	_, err := l.fetch(context.Background(), fetchRequest{tab: "tab-1", url: addr})
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, codeConnectionRefused, fetchErr.Code)
	events := rec.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, "failure "+addr+" "+codeConnectionRefused, events[1])
}

func TestDecodeBodyRejectsUnknownEncoding(t *testing.T) {
	_, err := decodeBody("br", nil)
	assert.Error(t, err)
}

func strPtr(s string) *string {
	return &s
}
