package headless

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestCookieNormalize(t *testing.T) {
	tests := []struct {
		name    string
		cookie  engine.Cookie
		want    engine.Cookie
		wantErr bool
	}{
		{
			name:   "url fills domain path and secure",
			cookie: engine.Cookie{Name: "a", Value: "1", URL: "https://www.example.com/docs/page"},
			want: engine.Cookie{Name: "a", Value: "1", Domain: "www.example.com", Path: "/docs",
				Secure: true, Session: true, SameSite: "None"},
		},
		{
			name:   "explicit domain keeps leading dot",
			cookie: engine.Cookie{Name: "b", Value: "2", Domain: ".Example.com", Expires: 2e9, SameSite: "Lax"},
			want:   engine.Cookie{Name: "b", Value: "2", Domain: ".example.com", Path: "/", Expires: 2e9, SameSite: "Lax"},
		},
		{name: "missing name", cookie: engine.Cookie{Value: "x", Domain: "example.com"}, wantErr: true},
		{name: "missing url and domain", cookie: engine.Cookie{Name: "c"}, wantErr: true},
		{name: "public suffix", cookie: engine.Cookie{Name: "d", Domain: ".co.uk"}, wantErr: true},
		{name: "top level domain", cookie: engine.Cookie{Name: "e", Domain: "com"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalize(tt.cookie)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCookie)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCookieHeaderMatching(t *testing.T) {
	s := newCookieStore()
	require.NoError(t, s.set("ctx", []engine.Cookie{
		{Name: "host", Value: "1", Domain: "example.com"},
		{Name: "wide", Value: "2", Domain: ".example.com"},
		{Name: "deep", Value: "3", Domain: "example.com", Path: "/admin"},
		{Name: "secure", Value: "4", Domain: "example.com", Secure: true},
	}))

	assert.Equal(t, "wide=2", s.header("ctx", mustURL(t, "http://api.example.com/")))
	assert.Equal(t, "wide=2; host=1", s.header("ctx", mustURL(t, "http://example.com/")))
	assert.Equal(t, "wide=2; host=1; deep=3", s.header("ctx", mustURL(t, "http://example.com/admin/users")))
	assert.Equal(t, "wide=2; host=1; secure=4", s.header("ctx", mustURL(t, "https://example.com/")))
	assert.Empty(t, s.header("other", mustURL(t, "http://example.com/")))
}

func TestCookieStoreFromResponse(t *testing.T) {
	s := newCookieStore()
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	header := http.Header{}
	header.Add("Set-Cookie", "sid=abc; Path=/; HttpOnly; SameSite=Strict")
	header.Add("Set-Cookie", "pref=dark; Domain=example.com; Max-Age=60")
	header.Add("Set-Cookie", "evil=1; Domain=other.com")
	header.Add("Set-Cookie", "tld=1; Domain=com")
	s.store("", mustURL(t, "https://www.example.com/app/index"), header)

	cookies := s.all("")
	require.Len(t, cookies, 2)
	assert.Equal(t, ".example.com", cookies[0].Domain)
	assert.Equal(t, "pref", cookies[0].Name)
	assert.Equal(t, float64(now.Unix()+60), cookies[0].Expires)
	assert.False(t, cookies[0].Session)
	assert.Equal(t, "www.example.com", cookies[1].Domain)
	assert.Equal(t, "sid", cookies[1].Name)
	assert.True(t, cookies[1].HTTPOnly)
	assert.Equal(t, "Strict", cookies[1].SameSite)

	expire := http.Header{}
	expire.Add("Set-Cookie", "sid=; Path=/; Max-Age=-1")
	s.store("", mustURL(t, "https://www.example.com/"), expire)
	assert.Len(t, s.all(""), 1)

	now = now.Add(2 * time.Minute)
	assert.Empty(t, s.all(""))
}

func TestCookieClearIsPerPartition(t *testing.T) {
	s := newCookieStore()
	require.NoError(t, s.set("a", []engine.Cookie{{Name: "x", Domain: "example.com"}}))
	require.NoError(t, s.set("b", []engine.Cookie{{Name: "y", Domain: "example.com"}}))

	s.clear("a")
	assert.Empty(t, s.all("a"))
	assert.Len(t, s.all("b"), 1)
}

func TestPermissionGrants(t *testing.T) {
	s := newPermissionStore()
	require.NoError(t, s.grant("", "https://*.example.com", []string{"geo", "camera"}))
	require.NoError(t, s.grant("", "https://maps.example.com", []string{"desktop-notifications"}))

	assert.Equal(t, PermissionGranted, s.state("", "https://www.example.com", "geo"))
	assert.Equal(t, PermissionPrompt, s.state("", "https://www.example.com", "microphone"))
	// The most recent matching grant decides
	assert.Equal(t, PermissionPrompt, s.state("", "https://maps.example.com", "geo"))
	assert.Equal(t, PermissionGranted, s.state("", "https://maps.example.com", "desktop-notifications"))
	assert.Equal(t, PermissionPrompt, s.state("other", "https://www.example.com", "geo"))

	require.NoError(t, s.grant("", "https://*.example.com", []string{"microphone"}))
	assert.Equal(t, PermissionGranted, s.state("", "https://www.example.com", "microphone"))
	assert.Equal(t, PermissionPrompt, s.state("", "https://www.example.com", "geo"))

	s.reset("")
	assert.Equal(t, PermissionPrompt, s.state("", "https://www.example.com", "microphone"))
}

func TestPermissionRejectsBadPattern(t *testing.T) {
	s := newPermissionStore()
	assert.ErrorIs(t, s.grant("", "", []string{"geo"}), ErrInvalidOrigin)
	assert.ErrorIs(t, s.grant("", "https://[example.com", []string{"geo"}), ErrInvalidOrigin)
}

func TestPartitionLifecycle(t *testing.T) {
	root := t.TempDir()
	s, err := newPartitionStore(root, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, s.exists(engine.DefaultPartition))
	p, err := s.create("automation-1")
	require.NoError(t, err)
	assert.True(t, s.exists(p))
	assert.FileExists(t, filepath.Join(root, "automation-1", metadataFile))

	_, err = s.create("automation-1")
	assert.ErrorIs(t, err, ErrPartitionExists)
	_, err = s.create("../escape")
	assert.ErrorIs(t, err, ErrInvalidPartition)

	require.NoError(t, s.remove(p))
	assert.False(t, s.exists(p))
	assert.NoDirExists(t, filepath.Join(root, "automation-1"))
	assert.ErrorIs(t, s.remove(p), ErrUnknownPartition)
	assert.ErrorIs(t, s.remove(engine.DefaultPartition), ErrInvalidPartition)
}

func TestPartitionScanFindsEarlierRuns(t *testing.T) {
	root := t.TempDir()
	first, err := newPartitionStore(root, zap.NewNop())
	require.NoError(t, err)
	_, err = first.create("b")
	require.NoError(t, err)
	_, err = first.create("a")
	require.NoError(t, err)

	// Stray directories and malformed metadata are ignored
	require.NoError(t, os.MkdirAll(filepath.Join(root, "stray"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "broken"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken", metadataFile), []byte("name = ["), 0o644))

	second, err := newPartitionStore(root, zap.NewNop())
	require.NoError(t, err)
	list, err := second.list()
	require.NoError(t, err)
	assert.Equal(t, []engine.Partition{"a", "b"}, list)
}
