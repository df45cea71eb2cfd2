package headless

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/charlievieth/fastwalk"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

// metadataFile marks a directory under the profile root as a partition
const metadataFile = "partition.toml"

var (
	ErrUnknownPartition = errors.New("unknown partition")
	ErrPartitionExists  = errors.New("partition already exists")
	ErrInvalidPartition = errors.New("invalid partition name")
)

// partitionMeta is persisted in each partition directory
type partitionMeta struct {
	Name    string    `toml:"name"`
	Created time.Time `toml:"created"`
}

// partitionStore keeps one directory per partition. The default
// partition has no directory and always exists.
type partitionStore struct {
	root   string
	logger *zap.Logger

	mu    sync.RWMutex
	known map[engine.Partition]bool
}

func newPartitionStore(root string, logger *zap.Logger) (*partitionStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}
	s := &partitionStore{
		root:   root,
		logger: logger,
		known:  make(map[engine.Partition]bool),
	}
	existing, err := s.scan()
	if err != nil {
		return nil, err
	}
	for _, p := range existing {
		s.known[p] = true
	}
	return s, nil
}

func (s *partitionStore) dir(p engine.Partition) string {
	return filepath.Join(s.root, string(p))
}

func validPartitionName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

func (s *partitionStore) exists(p engine.Partition) bool {
	if p == engine.DefaultPartition {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.known[p]
}

func (s *partitionStore) create(name string) (engine.Partition, error) {
	if !validPartitionName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPartition, name)
	}
	p := engine.Partition(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.known[p] {
		return "", fmt.Errorf("%w: %q", ErrPartitionExists, name)
	}

	dir := s.dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create partition directory: %w", err)
	}
	data, err := toml.Marshal(partitionMeta{Name: name, Created: time.Now().UTC()})
	if err != nil {
		return "", fmt.Errorf("failed to encode partition metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFile), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write partition metadata: %w", err)
	}

	s.known[p] = true
	return p, nil
}

func (s *partitionStore) remove(p engine.Partition) error {
	if p == engine.DefaultPartition {
		return fmt.Errorf("%w: the default partition cannot be removed", ErrInvalidPartition)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.known[p] {
		return fmt.Errorf("%w: %q", ErrUnknownPartition, p)
	}
	if err := os.RemoveAll(s.dir(p)); err != nil {
		return fmt.Errorf("failed to remove partition directory: %w", err)
	}
	delete(s.known, p)
	return nil
}

func (s *partitionStore) list() ([]engine.Partition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]engine.Partition, 0, len(s.known))
	for p := range s.known {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// scan finds partitions persisted by earlier runs. Directories without a
// readable metadata file are skipped.
func (s *partitionStore) scan() ([]engine.Partition, error) {
	var (
		mu    sync.Mutex
		found []engine.Partition
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		depth := strings.Count(rel, string(filepath.Separator))
		if d.IsDir() {
			if depth > 0 {
				return filepath.SkipDir
			}
			return nil
		}
		if depth != 1 || d.Name() != metadataFile {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		var meta partitionMeta
		if err := toml.Unmarshal(data, &meta); err != nil {
			s.logger.Warn("Skipping partition with malformed metadata",
				zap.String("path", path),
				zap.Error(err))
			return nil
		}
		if meta.Name != filepath.Base(filepath.Dir(path)) {
			return nil
		}

		mu.Lock()
		found = append(found, engine.Partition(meta.Name))
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan profile directory: %w", err)
	}

	sort.Slice(found, func(i, j int) bool { return found[i] < found[j] })
	return found, nil
}
