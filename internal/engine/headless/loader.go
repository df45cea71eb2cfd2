package headless

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

const (
	maxRedirects = 20
	maxBodyBytes = 64 << 20
)

// FetchError is a failed load with the code reported to observers
type FetchError struct {
	Code string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// fetchRequest describes one load, before redirects
type fetchRequest struct {
	tab          engine.TabID
	partition    engine.Partition
	url          string
	method       string
	headers      []engine.Header
	postData     *string
	isNavigation bool
	cause        string
	// onChannel is called for every channel before observers see it
	onChannel func(channelID string)
}

// fetchResult is the final response of a load
type fetchResult struct {
	url       string
	status    int
	header    http.Header
	body      []byte
	channelID string
}

// loader performs HTTP exchanges and reports each one to channel
// observers
type loader struct {
	strict    *resty.Client
	insecure  *resty.Client
	ignoreTLS atomic.Bool
	cookies   *cookieStore
	logger    *zap.Logger

	mu        sync.RWMutex
	observers map[int]engine.ChannelObserver
	obsSeq    int
	bodies    map[engine.TabID]map[string][]byte
}

func newLoader(cookies *cookieStore, timeout time.Duration, logger *zap.Logger) *loader {
	noFollow := resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})
	newClient := func() *resty.Client {
		return resty.New().
			SetTimeout(timeout).
			SetRedirectPolicy(noFollow)
	}

	return &loader{
		strict:    newClient(),
		insecure:  newClient().SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}),
		cookies:   cookies,
		logger:    logger.Named("loader"),
		observers: make(map[int]engine.ChannelObserver),
		bodies:    make(map[engine.TabID]map[string][]byte),
	}
}

func (l *loader) setIgnoreHTTPSErrors(enabled bool) {
	l.ignoreTLS.Store(enabled)
}

func (l *loader) client() *resty.Client {
	if l.ignoreTLS.Load() {
		return l.insecure
	}
	return l.strict
}

func (l *loader) observe(obs engine.ChannelObserver) func() {
	l.mu.Lock()
	l.obsSeq++
	key := l.obsSeq
	l.observers[key] = obs
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.observers, key)
		l.mu.Unlock()
	}
}

func (l *loader) each(fn func(engine.ChannelObserver)) {
	l.mu.RLock()
	keys := make([]int, 0, len(l.observers))
	for k := range l.observers {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	list := make([]engine.ChannelObserver, 0, len(keys))
	for _, k := range keys {
		list = append(list, l.observers[k])
	}
	l.mu.RUnlock()

	for _, obs := range list {
		fn(obs)
	}
}

func (l *loader) body(tab engine.TabID, channelID string) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	body, ok := l.bodies[tab][channelID]
	if !ok {
		return nil, fmt.Errorf("no response body recorded for %s", channelID)
	}
	return body, nil
}

func (l *loader) keepBody(tab engine.TabID, channelID string, body []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bodies, ok := l.bodies[tab]
	if !ok {
		bodies = make(map[string][]byte)
		l.bodies[tab] = bodies
	}
	bodies[channelID] = body
}

// forget drops the bodies recorded for a closed tab
func (l *loader) forget(tab engine.TabID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.bodies, tab)
}

// fetch loads req, following redirects. Every hop is a separate channel
// linked to its predecessor through OnRedirect.
func (l *loader) fetch(ctx context.Context, req fetchRequest) (*fetchResult, error) {
	target, err := url.Parse(req.url)
	if err != nil {
		return nil, &FetchError{Code: codeFailure, Err: err}
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, &FetchError{Code: codeUnsupportedScheme, Err: fmt.Errorf("cannot load %s", req.url)}
	}
	if req.method == "" {
		req.method = http.MethodGet
	}

	var previous *channel
	for hop := 0; hop <= maxRedirects; hop++ {
		ch := newChannel(uuid.NewString(), req.tab, l.requestInfo(req, target))
		if req.onChannel != nil {
			req.onChannel(ch.id)
		}
		if previous != nil {
			from := previous
			l.each(func(obs engine.ChannelObserver) { obs.OnRedirect(from, ch) })
		}
		l.each(func(obs engine.ChannelObserver) { obs.OnRequest(ch) })

		if code := ch.awaitRelease(ctx); code != "" {
			l.fail(ch, code)
			return nil, &FetchError{Code: code}
		}

		result, next, err := l.exchange(ctx, req, target, ch)
		if err != nil {
			code := failureCode(err)
			if cancelled := ch.cancelCode(); cancelled != "" {
				code = cancelled
			}
			l.fail(ch, code)
			return nil, &FetchError{Code: code, Err: err}
		}
		if next == nil {
			return result, nil
		}

		// 301-303 turn into a bodyless GET
		if result.status <= http.StatusSeeOther && req.method != http.MethodHead {
			req.method = http.MethodGet
			req.postData = nil
		}
		previous, target = ch, next
	}

	return nil, &FetchError{Code: codeTooManyRedirects, Err: fmt.Errorf("more than %d redirects", maxRedirects)}
}

func (l *loader) fail(ch *channel, code string) {
	l.logger.Debug("Request failed",
		zap.String("request_id", ch.id),
		zap.String("code", code))
	l.each(func(obs engine.ChannelObserver) { obs.OnFailure(ch, code) })
}

// requestInfo builds the final request headers for one hop
func (l *loader) requestInfo(req fetchRequest, target *url.URL) engine.RequestInfo {
	headers := append([]engine.Header(nil), req.headers...)
	headers = append(headers, engine.Header{Name: "Accept-Encoding", Value: "gzip, deflate, zstd"})
	if cookie := l.cookies.header(req.partition, target); cookie != "" {
		headers = append(headers, engine.Header{Name: "Cookie", Value: cookie})
	}
	return engine.RequestInfo{
		URL:          target.String(),
		Method:       req.method,
		Headers:      headers,
		PostData:     req.postData,
		IsNavigation: req.isNavigation,
		Cause:        req.cause,
	}
}

// exchange transmits one hop. A redirect returns the next location.
func (l *loader) exchange(ctx context.Context, req fetchRequest, target *url.URL, ch *channel) (*fetchResult, *url.URL, error) {
	info := ch.Request()

	r := l.client().R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		EnableTrace()
	for _, h := range info.Headers {
		r.Header.Add(h.Name, h.Value)
	}
	if info.PostData != nil {
		r.SetBody(*info.PostData)
	}

	resp, err := r.Execute(info.Method, info.URL)
	if err != nil {
		return nil, nil, err
	}
	raw := resp.RawBody()
	defer raw.Close()

	header := resp.Header()
	l.cookies.store(req.partition, target, header)
	response := responseInfo(resp)

	if location := header.Get("Location"); isRedirect(resp.StatusCode()) && location != "" {
		next, err := target.Parse(location)
		if err != nil {
			return nil, nil, fmt.Errorf("bad redirect location %q: %w", location, err)
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(raw, maxBodyBytes))
		l.each(func(obs engine.ChannelObserver) { obs.OnResponse(ch, response) })
		l.each(func(obs engine.ChannelObserver) { obs.OnComplete(ch) })
		return &fetchResult{url: target.String(), status: resp.StatusCode(), header: header, channelID: ch.id}, next, nil
	}

	l.each(func(obs engine.ChannelObserver) { obs.OnResponse(ch, response) })
	body, err := decodeBody(header.Get("Content-Encoding"), io.LimitReader(raw, maxBodyBytes))
	if err != nil {
		return nil, nil, err
	}
	l.keepBody(req.tab, ch.id, body)
	l.each(func(obs engine.ChannelObserver) { obs.OnComplete(ch) })

	return &fetchResult{
		url:       target.String(),
		status:    resp.StatusCode(),
		header:    header,
		body:      body,
		channelID: ch.id,
	}, nil, nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func responseInfo(resp *resty.Response) engine.ResponseInfo {
	info := engine.ResponseInfo{
		Status:     resp.StatusCode(),
		StatusText: http.StatusText(resp.StatusCode()),
		Headers:    flattenHeader(resp.Header()),
	}
	if addr, ok := resp.Request.TraceInfo().RemoteAddr.(*net.TCPAddr); ok && addr != nil {
		info.RemoteIP = addr.IP.String()
		info.RemotePort = addr.Port
	}
	if raw := resp.RawResponse; raw != nil && raw.TLS != nil && len(raw.TLS.PeerCertificates) > 0 {
		cert := raw.TLS.PeerCertificates[0]
		info.Security = &engine.SecurityDetails{
			Protocol:    tls.VersionName(raw.TLS.Version),
			SubjectName: cert.Subject.CommonName,
			Issuer:      cert.Issuer.CommonName,
			ValidFrom:   float64(cert.NotBefore.Unix()),
			ValidTo:     float64(cert.NotAfter.Unix()),
		}
	}
	return info
}

func flattenHeader(header http.Header) []engine.Header {
	names := make([]string, 0, len(header))
	for name := range header {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]engine.Header, 0, len(names))
	for _, name := range names {
		for _, value := range header[name] {
			out = append(out, engine.Header{Name: name, Value: value})
		}
	}
	return out
}

// decodeBody undoes the response's content encoding
func decodeBody(encoding string, raw io.Reader) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return io.ReadAll(raw)
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(raw)
		if err != nil {
			return nil, fmt.Errorf("bad gzip body: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "deflate":
		zr, err := zlib.NewReader(raw)
		if err != nil {
			return nil, fmt.Errorf("bad deflate body: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "zstd":
		dec, err := zstd.NewReader(raw)
		if err != nil {
			return nil, fmt.Errorf("bad zstd body: %w", err)
		}
		defer dec.Close()
		return io.ReadAll(dec)
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

func failureCode(err error) string {
	var (
		dnsErr *net.DNSError
		netErr net.Error
	)
	switch {
	case errors.Is(err, context.Canceled):
		return codeAborted
	case errors.Is(err, context.DeadlineExceeded):
		return codeTimeout
	case errors.As(err, &dnsErr):
		return codeUnknownHost
	case errors.Is(err, syscall.ECONNREFUSED):
		return codeConnectionRefused
	case errors.As(err, &netErr) && netErr.Timeout():
		return codeTimeout
	}
	return codeFailure
}
