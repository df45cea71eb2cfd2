package headless

import (
	"errors"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/bmatcuk/doublestar/v4"
)

var ErrInvalidOrigin = errors.New("invalid origin pattern")

// Permission states reported to scripts
const (
	PermissionGranted = "granted"
	PermissionPrompt  = "prompt"
)

// scriptPermissions maps navigator.permissions names to protocol names
var scriptPermissions = map[string]string{
	"geolocation":   "geo",
	"notifications": "desktop-notifications",
	"microphone":    "microphone",
	"camera":        "camera",
}

type permissionGrant struct {
	origin      string
	permissions map[string]bool
}

// permissionStore keeps grants per partition. Origins may be glob
// patterns such as "https://*.example.com".
type permissionStore struct {
	mu     sync.RWMutex
	grants map[engine.Partition][]permissionGrant
}

func newPermissionStore() *permissionStore {
	return &permissionStore{grants: make(map[engine.Partition][]permissionGrant)}
}

func (s *permissionStore) grant(p engine.Partition, origin string, permissions []string) error {
	if origin == "" || !doublestar.ValidatePattern(origin) {
		return fmt.Errorf("%w: %q", ErrInvalidOrigin, origin)
	}
	set := make(map[string]bool, len(permissions))
	for _, perm := range permissions {
		set[perm] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.grants[p]
	for i, g := range list {
		if g.origin == origin {
			list[i].permissions = set
			return nil
		}
	}
	s.grants[p] = append(list, permissionGrant{origin: origin, permissions: set})
	return nil
}

func (s *permissionStore) reset(p engine.Partition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, p)
}

// state reports whether permission is granted to origin. The latest
// matching grant wins.
func (s *permissionStore) state(p engine.Partition, origin, permission string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.grants[p]
	for i := len(list) - 1; i >= 0; i-- {
		g := list[i]
		if ok, err := doublestar.Match(g.origin, origin); err != nil || !ok {
			continue
		}
		if g.permissions[permission] {
			return PermissionGranted
		}
		return PermissionPrompt
	}
	return PermissionPrompt
}
