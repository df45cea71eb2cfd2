package target

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/remote/internal/domain/browsercontext"
	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/GriffinCanCode/AgentOS/remote/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(kind string) Listener {
	return func(t Target) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, kind+":"+t.ID+":"+t.URL)
	}
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func setup(t *testing.T) (*Registry, *testutil.Engine, *browsercontext.Registry) {
	t.Helper()
	eng := testutil.NewEngine()
	contexts, err := browsercontext.NewRegistry(eng, "ctx-", zap.NewNop())
	require.NoError(t, err)
	r := NewRegistry(eng, contexts, zap.NewNop())
	t.Cleanup(r.Close)
	return r, eng, contexts
}

func TestBrowserTargetAlwaysPresent(t *testing.T) {
	r, _, _ := setup(t)

	targets := r.Targets()
	require.Len(t, targets, 1)
	assert.Equal(t, BrowserTargetID, targets[0].ID)
	assert.Equal(t, KindBrowser, targets[0].Kind)

	err := r.ClosePage(BrowserTargetID, false)
	assert.ErrorIs(t, err, ErrNotPage)
}

func TestNewPageSuppressesInitialNavigation(t *testing.T) {
	r, _, _ := setup(t)
	rec := &recorder{}
	r.OnTargetCreated(rec.add("created"))
	r.OnTargetChanged(rec.add("changed"))

	page, err := r.NewPage(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, "target-page-1", page.ID)
	assert.Equal(t, KindPage, page.Kind)
	assert.Equal(t, "about:blank", page.URL)
	assert.Equal(t, []string{"created:target-page-1:about:blank"}, rec.all())
}

func TestNavigationEmitsChanged(t *testing.T) {
	r, eng, _ := setup(t)
	rec := &recorder{}
	r.OnTargetChanged(rec.add("changed"))

	page, err := r.NewPage(context.Background(), "")
	require.NoError(t, err)

	eng.Navigate(page.Tab, "https://example.com/")

	assert.Equal(t, []string{"changed:target-page-1:https://example.com/"}, rec.all())
	got, err := r.Target(page.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", got.URL)
}

func TestIDsIncreaseAndAreNotReused(t *testing.T) {
	r, _, _ := setup(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		page, err := r.NewPage(ctx, "")
		require.NoError(t, err)
		ids = append(ids, page.ID)
	}
	require.NoError(t, r.ClosePage(ids[2], false))

	next, err := r.NewPage(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"target-page-1", "target-page-2", "target-page-3"}, ids)
	assert.Equal(t, "target-page-4", next.ID)

	var order []string
	for _, tgt := range r.Targets() {
		order = append(order, tgt.ID)
	}
	assert.Equal(t, []string{BrowserTargetID, "target-page-1", "target-page-2", "target-page-4"}, order)
}

func TestNewPageInContext(t *testing.T) {
	r, eng, contexts := setup(t)
	ctxID, err := contexts.Create()
	require.NoError(t, err)

	page, err := r.NewPage(context.Background(), ctxID)
	require.NoError(t, err)
	assert.Equal(t, ctxID, page.ContextID)
	assert.Equal(t, ctxID, page.Info().BrowserContextID)

	tab, err := eng.Tab(page.Tab)
	require.NoError(t, err)
	assert.Equal(t, engine.Partition("ctx-"+ctxID), tab.Partition)
}

func TestNewPageUnknownContext(t *testing.T) {
	r, _, _ := setup(t)
	_, err := r.NewPage(context.Background(), "99")
	assert.ErrorIs(t, err, browsercontext.ErrNotFound)
}

func TestNewPageWaitsForFirstNavigation(t *testing.T) {
	r, eng, _ := setup(t)
	eng.AutoNavigate = false

	done := make(chan Target, 1)
	go func() {
		page, err := r.NewPage(context.Background(), "")
		if err == nil {
			done <- page
		}
	}()

	var tab engine.TabID
	require.Eventually(t, func() bool {
		tabs := eng.OpenTabs()
		if len(tabs) == 1 {
			tab = tabs[0]
			return true
		}
		return false
	}, time.Second, 5*time.Millisecond)

	select {
	case <-done:
		t.Fatal("NewPage returned before the first navigation")
	case <-time.After(20 * time.Millisecond):
	}

	eng.Navigate(tab, "about:blank")
	select {
	case page := <-done:
		assert.Equal(t, "target-page-1", page.ID)
	case <-time.After(time.Second):
		t.Fatal("NewPage did not return")
	}
}

func TestNewPageHonoursContextCancel(t *testing.T) {
	r, eng, _ := setup(t)
	eng.AutoNavigate = false

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.NewPage(ctx, "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewPageTabClosedWhileOpening(t *testing.T) {
	r, eng, _ := setup(t)
	eng.AutoNavigate = false

	errs := make(chan error, 1)
	go func() {
		_, err := r.NewPage(context.Background(), "")
		errs <- err
	}()

	require.Eventually(t, func() bool { return len(eng.OpenTabs()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, eng.CloseTab(eng.OpenTabs()[0], true))

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("NewPage did not return")
	}
}

func TestOpenerLinkage(t *testing.T) {
	r, eng, _ := setup(t)
	parent, err := r.NewPage(context.Background(), "")
	require.NoError(t, err)

	popupTab := eng.OpenPopup(parent.Tab, engine.DefaultPartition)
	popup, ok := r.TargetForTab(popupTab)
	require.True(t, ok)
	assert.Equal(t, parent.ID, popup.OpenerID)
	assert.Equal(t, parent.ID, popup.Info().OpenerID)
}

func TestClosePageDestroysAfterListeners(t *testing.T) {
	r, eng, _ := setup(t)
	page, err := r.NewPage(context.Background(), "")
	require.NoError(t, err)

	var resolvable bool
	r.OnTargetDestroyed(func(tgt Target) {
		_, err := r.Target(tgt.ID)
		resolvable = err == nil
		assert.True(t, tgt.Closed)
	})

	require.NoError(t, r.ClosePage(page.ID, false))

	assert.True(t, resolvable, "target must be resolvable while listeners run")
	_, err = r.Target(page.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	tab, err := eng.Tab(page.Tab)
	assert.Error(t, err)
	assert.Nil(t, tab)
}

func TestClosePageRunBeforeUnload(t *testing.T) {
	tests := []struct {
		name            string
		runBeforeUnload bool
		wantSkip        bool
	}{
		{"skip prompt", false, true},
		{"run prompt", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, eng, _ := setup(t)
			page, err := r.NewPage(context.Background(), "")
			require.NoError(t, err)

			tab, err := eng.Tab(page.Tab)
			require.NoError(t, err)
			require.NoError(t, r.ClosePage(page.ID, tt.runBeforeUnload))
			assert.Equal(t, tt.wantSkip, tab.SkippedPermitUnload())
		})
	}
}

func TestClosePageUnknown(t *testing.T) {
	r, _, _ := setup(t)
	assert.ErrorIs(t, r.ClosePage("target-page-9", false), ErrNotFound)
}

func TestUnsubscribe(t *testing.T) {
	r, _, _ := setup(t)
	rec := &recorder{}
	unsubscribe := r.OnTargetCreated(rec.add("created"))
	unsubscribe()

	_, err := r.NewPage(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, rec.all())
}

func TestListenerPanicIsContained(t *testing.T) {
	r, _, _ := setup(t)
	rec := &recorder{}
	r.OnTargetCreated(func(Target) { panic("boom") })
	r.OnTargetCreated(rec.add("created"))

	_, err := r.NewPage(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, rec.all(), 1)
}

func TestSnapshotThenSubscribe(t *testing.T) {
	r, _, _ := setup(t)
	_, err := r.NewPage(context.Background(), "")
	require.NoError(t, err)

	rec := &recorder{}
	var seen []string
	r.Snapshot(func(targets []Target) {
		for _, tgt := range targets {
			seen = append(seen, tgt.ID)
		}
		r.OnTargetCreated(rec.add("created"))
	})
	_, err = r.NewPage(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, []string{BrowserTargetID, "target-page-1"}, seen)
	assert.Equal(t, []string{"created:target-page-2:about:blank"}, rec.all())
}
