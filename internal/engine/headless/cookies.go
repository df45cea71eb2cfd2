package headless

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"golang.org/x/net/publicsuffix"
)

var ErrInvalidCookie = errors.New("invalid cookie")

type cookieKey struct {
	domain string
	path   string
	name   string
}

// cookieStore holds cookies per partition. Domain cookies are stored
// with a leading dot, host-only cookies without.
type cookieStore struct {
	mu   sync.RWMutex
	jars map[engine.Partition]map[cookieKey]engine.Cookie
	now  func() time.Time
}

func newCookieStore() *cookieStore {
	return &cookieStore{
		jars: make(map[engine.Partition]map[cookieKey]engine.Cookie),
		now:  time.Now,
	}
}

// normalize resolves url-relative fields and rejects cookies a browser
// would refuse to store
func normalize(c engine.Cookie) (engine.Cookie, error) {
	if c.Name == "" {
		return c, fmt.Errorf("%w: name is required", ErrInvalidCookie)
	}

	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil || u.Hostname() == "" {
			return c, fmt.Errorf("%w: bad url %q", ErrInvalidCookie, c.URL)
		}
		if c.Domain == "" {
			c.Domain = strings.ToLower(u.Hostname())
		}
		if c.Path == "" {
			c.Path = defaultPath(u.Path)
		}
		if u.Scheme == "https" {
			c.Secure = true
		}
		c.URL = ""
	}
	if c.Domain == "" {
		return c, fmt.Errorf("%w: %s needs a url or a domain", ErrInvalidCookie, c.Name)
	}
	if c.Path == "" {
		c.Path = "/"
	}

	c.Domain = strings.ToLower(c.Domain)
	host := strings.TrimPrefix(c.Domain, ".")
	if suffix, icann := publicsuffix.PublicSuffix(host); suffix == host && (icann || strings.Contains(host, ".")) {
		return c, fmt.Errorf("%w: %s is a public suffix", ErrInvalidCookie, host)
	}
	if c.SameSite == "" {
		c.SameSite = "None"
	}
	c.Session = c.Expires <= 0
	return c, nil
}

func defaultPath(p string) string {
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}
	return p[:i]
}

func (s *cookieStore) set(p engine.Partition, cookies []engine.Cookie) error {
	normalized := make([]engine.Cookie, 0, len(cookies))
	for _, c := range cookies {
		n, err := normalize(c)
		if err != nil {
			return err
		}
		normalized = append(normalized, n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	jar := s.jarLocked(p)
	for _, c := range normalized {
		jar[cookieKey{domain: c.Domain, path: c.Path, name: c.Name}] = c
	}
	return nil
}

func (s *cookieStore) jarLocked(p engine.Partition) map[cookieKey]engine.Cookie {
	jar, ok := s.jars[p]
	if !ok {
		jar = make(map[cookieKey]engine.Cookie)
		s.jars[p] = jar
	}
	return jar
}

func (s *cookieStore) expired(c engine.Cookie) bool {
	return c.Expires > 0 && c.Expires < float64(s.now().Unix())
}

// all lists live cookies ordered by domain, path and name
func (s *cookieStore) all(p engine.Partition) []engine.Cookie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]engine.Cookie, 0, len(s.jars[p]))
	for _, c := range s.jars[p] {
		if !s.expired(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Domain != out[j].Domain {
			return out[i].Domain < out[j].Domain
		}
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *cookieStore) clear(p engine.Partition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jars, p)
}

func domainMatch(host, domain string) bool {
	if !strings.HasPrefix(domain, ".") {
		return host == domain
	}
	bare := domain[1:]
	return host == bare || strings.HasSuffix(host, domain)
}

func pathMatch(reqPath, cookiePath string) bool {
	if reqPath == "" {
		reqPath = "/"
	}
	if reqPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}

// header builds the Cookie request header for u
func (s *cookieStore) header(p engine.Partition, u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	var parts []string
	for _, c := range s.all(p) {
		if !domainMatch(host, c.Domain) || !pathMatch(u.Path, c.Path) {
			continue
		}
		if c.Secure && u.Scheme != "https" {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// store records the Set-Cookie headers of a response for u. Cookies for
// a foreign or public-suffix domain are dropped.
func (s *cookieStore) store(p engine.Partition, u *url.URL, header http.Header) {
	resp := http.Response{Header: header}
	host := strings.ToLower(u.Hostname())
	var accepted []engine.Cookie
	for _, hc := range resp.Cookies() {
		c := engine.Cookie{
			Name:     hc.Name,
			Value:    hc.Value,
			Path:     hc.Path,
			HTTPOnly: hc.HttpOnly,
			Secure:   hc.Secure,
			SameSite: sameSiteName(hc.SameSite),
		}
		switch {
		case hc.MaxAge < 0:
			c.Expires = 1
		case hc.MaxAge > 0:
			c.Expires = float64(s.now().Add(time.Duration(hc.MaxAge) * time.Second).Unix())
		case !hc.Expires.IsZero():
			c.Expires = float64(hc.Expires.Unix())
		}
		if hc.Domain != "" {
			c.Domain = "." + strings.TrimPrefix(strings.ToLower(hc.Domain), ".")
			if !domainMatch(host, c.Domain) {
				continue
			}
		} else {
			c.Domain = host
		}
		if c.Path == "" {
			c.Path = defaultPath(u.Path)
		}
		n, err := normalize(c)
		if err != nil {
			continue
		}
		accepted = append(accepted, n)
	}
	if len(accepted) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	jar := s.jarLocked(p)
	for _, c := range accepted {
		key := cookieKey{domain: c.Domain, path: c.Path, name: c.Name}
		if s.expired(c) {
			delete(jar, key)
			continue
		}
		jar[key] = c
	}
}

func sameSiteName(mode http.SameSite) string {
	switch mode {
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteLaxMode:
		return "Lax"
	default:
		return "None"
	}
}
