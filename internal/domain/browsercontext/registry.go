package browsercontext

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// ErrNotFound is returned for context ids the registry does not know
var ErrNotFound = errors.New("browser context not found")

// Registry maps public context ids to engine partitions
type Registry struct {
	mu          sync.RWMutex
	store       engine.PartitionStore
	prefix      string
	counter     int
	byID        map[string]engine.Partition // Protected by mu
	byPartition map[engine.Partition]string // Protected by mu
	order       []string                    // Protected by mu
	logger      *zap.Logger
	metrics     *monitoring.Metrics
}

// NewRegistry creates a registry and discards every partition that
// carries prefix, which can only be left over from an earlier run.
func NewRegistry(store engine.PartitionStore, prefix string, logger *zap.Logger) (*Registry, error) {
	if prefix == "" {
		return nil, errors.New("context prefix must not be empty")
	}
	r := &Registry{
		store:       store,
		prefix:      prefix,
		byID:        make(map[string]engine.Partition),
		byPartition: make(map[engine.Partition]string),
		logger:      logger,
	}
	if err := r.sweep(); err != nil {
		return nil, err
	}
	return r, nil
}

// WithMetrics adds metrics tracking to the registry
func (r *Registry) WithMetrics(metrics *monitoring.Metrics) *Registry {
	r.metrics = metrics
	return r
}

func (r *Registry) sweep() error {
	partitions, err := r.store.ListPartitions()
	if err != nil {
		return fmt.Errorf("failed to list partitions: %w", err)
	}
	for _, p := range partitions {
		if !strings.HasPrefix(string(p), r.prefix) {
			continue
		}
		if err := r.store.RemovePartition(p); err != nil {
			r.logger.Warn("Failed to remove stale partition",
				zap.String("partition", string(p)),
				zap.Error(err))
			continue
		}
		r.logger.Debug("Removed stale partition", zap.String("partition", string(p)))
	}
	return nil
}

// Create makes a new partition and returns its context id
func (r *Registry) Create() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counter++
	id := strconv.Itoa(r.counter)
	p, err := r.store.CreatePartition(r.prefix + id)
	if err != nil {
		return "", fmt.Errorf("failed to create partition: %w", err)
	}

	r.byID[id] = p
	r.byPartition[p] = id
	r.order = append(r.order, id)
	r.metrics.SetContexts(len(r.byID))

	r.logger.Debug("Browser context created", logging.BrowserContextID(id))
	return id, nil
}

// Remove deletes the context and everything its partition persisted.
// Tabs still open in the context must be closed by the caller first.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	p, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.byID, id)
	delete(r.byPartition, p)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.metrics.SetContexts(len(r.byID))
	r.mu.Unlock()

	if err := r.store.RemovePartition(p); err != nil {
		return fmt.Errorf("failed to remove partition for context %s: %w", id, err)
	}
	r.logger.Debug("Browser context removed", logging.BrowserContextID(id))
	return nil
}

// List returns context ids in creation order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.order...)
}

// ResolvePartition maps a context id to its partition. The empty id is
// the default context.
func (r *Registry) ResolvePartition(id string) (engine.Partition, error) {
	if id == "" {
		return engine.DefaultPartition, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// ResolveContextID maps a partition back to its context id. The default
// partition resolves to the empty id.
func (r *Registry) ResolveContextID(p engine.Partition) (string, bool) {
	if p == engine.DefaultPartition {
		return "", true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPartition[p]
	return id, ok
}
