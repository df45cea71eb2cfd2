package headless

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrUnknownTab is returned for tab ids that were never opened or are
	// already closed
	ErrUnknownTab = errors.New("unknown tab")
	// ErrQuitting is returned once Quit has been called
	ErrQuitting = errors.New("browser is shutting down")
)

// Config defines engine configuration
type Config struct {
	ProfileDir        string        // Root of partition directories
	Product           string        // Reported by Version
	UserAgent         string        // Default User-Agent
	NavigationTimeout time.Duration // Upper bound for one document load
	ScriptTimeout     time.Duration // Upper bound for one script evaluation
	ViewportWidth     int
	ViewportHeight    int
}

// DefaultConfig returns a configuration rooted in the temp directory
func DefaultConfig() Config {
	return Config{
		ProfileDir:        filepath.Join(os.TempDir(), "automation-profile"),
		Product:           "AgentOSHeadless/1.0",
		UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AgentOSHeadless/1.0",
		NavigationTimeout: 30 * time.Second,
		ScriptTimeout:     5 * time.Second,
		ViewportWidth:     1280,
		ViewportHeight:    720,
	}
}

// Engine is the in-process browser
type Engine struct {
	config      Config
	logger      *zap.Logger
	partitions  *partitionStore
	cookies     *cookieStore
	permissions *permissionStore
	loader      *loader

	mu     sync.RWMutex
	tabs   map[engine.TabID]*tab
	tabObs map[int]engine.TabObserver
	obsSeq int

	quitOnce sync.Once
	quitting chan struct{}
	done     chan struct{}
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine and its profile directory
func New(config Config, logger *zap.Logger) (*Engine, error) {
	defaults := DefaultConfig()
	if config.ProfileDir == "" {
		config.ProfileDir = defaults.ProfileDir
	}
	if config.Product == "" {
		config.Product = defaults.Product
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	if config.NavigationTimeout <= 0 {
		config.NavigationTimeout = defaults.NavigationTimeout
	}
	if config.ScriptTimeout <= 0 {
		config.ScriptTimeout = defaults.ScriptTimeout
	}
	if config.ViewportWidth <= 0 || config.ViewportHeight <= 0 {
		config.ViewportWidth, config.ViewportHeight = defaults.ViewportWidth, defaults.ViewportHeight
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	partitions, err := newPartitionStore(config.ProfileDir, logger)
	if err != nil {
		return nil, err
	}

	cookies := newCookieStore()
	e := &Engine{
		config:      config,
		logger:      logger,
		partitions:  partitions,
		cookies:     cookies,
		permissions: newPermissionStore(),
		loader:      newLoader(cookies, config.NavigationTimeout, logger),
		tabs:        make(map[engine.TabID]*tab),
		tabObs:      make(map[int]engine.TabObserver),
		quitting:    make(chan struct{}),
		done:        make(chan struct{}),
	}
	return e, nil
}

func (e *Engine) CreatePartition(name string) (engine.Partition, error) {
	return e.partitions.create(name)
}

// RemovePartition deletes the partition directory along with its cookies
// and permission grants
func (e *Engine) RemovePartition(p engine.Partition) error {
	if err := e.partitions.remove(p); err != nil {
		return err
	}
	e.cookies.clear(p)
	e.permissions.reset(p)
	return nil
}

func (e *Engine) ListPartitions() ([]engine.Partition, error) {
	return e.partitions.list()
}

func (e *Engine) tabObservers() []engine.TabObserver {
	e.mu.RLock()
	defer e.mu.RUnlock()
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

// OpenTab opens a tab that loads about:blank in the background
func (e *Engine) OpenTab(ctx context.Context, p engine.Partition) (engine.TabID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	select {
	case <-e.quitting:
		return "", ErrQuitting
	default:
	}
	if !e.partitions.exists(p) {
		return "", fmt.Errorf("%w: %q", ErrUnknownPartition, p)
	}
	t := e.openTab(p, "")
	t.content.navigateInitial()
	return t.id, nil
}

func (e *Engine) openTab(p engine.Partition, opener engine.TabID) *tab {
	t := newTab(e, engine.TabID("tab-"+uuid.NewString()), p, opener)
	e.mu.Lock()
	e.tabs[t.id] = t
	e.mu.Unlock()

	e.logger.Debug("Tab opened",
		zap.String("tab", string(t.id)),
		zap.String("partition", string(p)))
	for _, obs := range e.tabObservers() {
		obs.TabOpened(t.id, p, opener)
	}
	return t
}

func (e *Engine) tab(id engine.TabID) (*tab, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tabs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTab, id)
	}
	return t, nil
}

// CloseTab closes the tab. Unless skipPermitUnload is set, a page with a
// beforeunload handler raises a dialog first and stays open if it is
// dismissed.
func (e *Engine) CloseTab(id engine.TabID, skipPermitUnload bool) error {
	t, err := e.tab(id)
	if err != nil {
		return err
	}
	if !skipPermitUnload && !t.content.permitUnload() {
		e.logger.Debug("Tab close cancelled by beforeunload", zap.String("tab", string(id)))
		return nil
	}
	e.closeTab(t)
	return nil
}

func (e *Engine) closeTab(t *tab) {
	if !t.markClosed() {
		return
	}
	e.mu.Lock()
	delete(e.tabs, t.id)
	e.mu.Unlock()

	t.shutdown()
	e.loader.forget(t.id)
	e.logger.Debug("Tab closed", zap.String("tab", string(t.id)))
	for _, obs := range e.tabObservers() {
		obs.TabClosed(t.id)
	}
}

func (e *Engine) notifyNavigated(t *tab, url string) {
	for _, obs := range e.tabObservers() {
		obs.TabNavigated(t.id, url)
	}
}

func (e *Engine) SetViewportSize(id engine.TabID, size *engine.Size) (int, int, error) {
	t, err := e.tab(id)
	if err != nil {
		return 0, 0, err
	}
	w, h := t.setViewport(size)
	return w, h, nil
}

func (e *Engine) ObserveDialogs(id engine.TabID, fn func(engine.DialogEvent)) (func(), error) {
	t, err := e.tab(id)
	if err != nil {
		return nil, err
	}
	return t.observeDialogs(fn), nil
}

func (e *Engine) ContentChannel(id engine.TabID) (engine.ContentChannel, error) {
	t, err := e.tab(id)
	if err != nil {
		return nil, err
	}
	return t.content, nil
}

func (e *Engine) ObserveChannels(obs engine.ChannelObserver) func() {
	return e.loader.observe(obs)
}

func (e *Engine) ResponseBody(tab engine.TabID, channelID string) ([]byte, error) {
	return e.loader.body(tab, channelID)
}

func (e *Engine) Version() (string, string) {
	return e.config.Product, e.config.UserAgent
}

func (e *Engine) SetIgnoreHTTPSErrors(enabled bool) {
	e.loader.setIgnoreHTTPSErrors(enabled)
}

func (e *Engine) GrantPermissions(p engine.Partition, origin string, permissions []string) error {
	if !e.partitions.exists(p) {
		return fmt.Errorf("%w: %q", ErrUnknownPartition, p)
	}
	return e.permissions.grant(p, origin, permissions)
}

func (e *Engine) ResetPermissions(p engine.Partition) error {
	e.permissions.reset(p)
	return nil
}

func (e *Engine) SetCookies(p engine.Partition, cookies []engine.Cookie) error {
	if !e.partitions.exists(p) {
		return fmt.Errorf("%w: %q", ErrUnknownPartition, p)
	}
	return e.cookies.set(p, cookies)
}

func (e *Engine) Cookies(p engine.Partition) ([]engine.Cookie, error) {
	return e.cookies.all(p), nil
}

func (e *Engine) ClearCookies(p engine.Partition) error {
	e.cookies.clear(p)
	return nil
}

// Quit closes every tab without running beforeunload and then closes Done
func (e *Engine) Quit() {
	e.quitOnce.Do(func() {
		close(e.quitting)
		go func() {
			e.mu.RLock()
			tabs := make([]*tab, 0, len(e.tabs))
			for _, t := range e.tabs {
				tabs = append(tabs, t)
			}
			e.mu.RUnlock()

			for _, t := range tabs {
				e.closeTab(t)
			}
			e.logger.Info("Browser shut down", zap.Int("tabs_closed", len(tabs)))
			close(e.done)
		}()
	})
}

func (e *Engine) Done() <-chan struct{} {
	return e.done
}
