package testutil

import (
	"sync"

	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/stretchr/testify/mock"
)

// Preferences is an in-memory engine.Preferences
type Preferences struct {
	mu          sync.Mutex
	ignoreHTTPS bool
	permissions map[engine.Partition]map[string][]string
	cookies     map[engine.Partition][]engine.Cookie
	quit        chan struct{}
	once        sync.Once
}

// NewPreferences creates empty preferences
func NewPreferences() *Preferences {
	return &Preferences{
		permissions: make(map[engine.Partition]map[string][]string),
		cookies:     make(map[engine.Partition][]engine.Cookie),
		quit:        make(chan struct{}),
	}
}

func (p *Preferences) Version() (string, string) {
	return "Fake/1.0", "Mozilla/5.0 Fake/1.0"
}

func (p *Preferences) SetIgnoreHTTPSErrors(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ignoreHTTPS = enabled
}

// IgnoreHTTPSErrors reports the last SetIgnoreHTTPSErrors value
func (p *Preferences) IgnoreHTTPSErrors() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ignoreHTTPS
}

func (p *Preferences) GrantPermissions(part engine.Partition, origin string, perms []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.permissions[part] == nil {
		p.permissions[part] = make(map[string][]string)
	}
	p.permissions[part][origin] = append([]string(nil), perms...)
	return nil
}

// Permissions returns what was granted for origin in part
func (p *Preferences) Permissions(part engine.Partition, origin string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permissions[part][origin]
}

func (p *Preferences) ResetPermissions(part engine.Partition) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.permissions, part)
	return nil
}

func (p *Preferences) SetCookies(part engine.Partition, cookies []engine.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies[part] = append(p.cookies[part], cookies...)
	return nil
}

func (p *Preferences) Cookies(part engine.Partition) ([]engine.Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]engine.Cookie(nil), p.cookies[part]...), nil
}

func (p *Preferences) ClearCookies(part engine.Partition) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cookies, part)
	return nil
}

func (p *Preferences) Quit() {
	p.once.Do(func() { close(p.quit) })
}

func (p *Preferences) Done() <-chan struct{} {
	return p.quit
}

// MockPreferences is a testify mock of engine.Preferences
type MockPreferences struct {
	mock.Mock
}

func (m *MockPreferences) Version() (string, string) {
	args := m.Called()
	return args.String(0), args.String(1)
}

func (m *MockPreferences) SetIgnoreHTTPSErrors(enabled bool) {
	m.Called(enabled)
}

func (m *MockPreferences) GrantPermissions(p engine.Partition, origin string, perms []string) error {
	return m.Called(p, origin, perms).Error(0)
}

func (m *MockPreferences) ResetPermissions(p engine.Partition) error {
	return m.Called(p).Error(0)
}

func (m *MockPreferences) SetCookies(p engine.Partition, cookies []engine.Cookie) error {
	return m.Called(p, cookies).Error(0)
}

func (m *MockPreferences) Cookies(p engine.Partition) ([]engine.Cookie, error) {
	args := m.Called(p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]engine.Cookie), args.Error(1)
}

func (m *MockPreferences) ClearCookies(p engine.Partition) error {
	return m.Called(p).Error(0)
}

func (m *MockPreferences) Quit() {
	m.Called()
}

func (m *MockPreferences) Done() <-chan struct{} {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(<-chan struct{})
}
