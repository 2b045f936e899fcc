package notify

import (
	"fmt"
	"slices"
	"sync"
)

// Registry maps channel ids to channels. It is filled at process start.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// NewRegistry returns a registry holding channels.
func NewRegistry(channels ...Channel) (*Registry, error) {
	r := &Registry{channels: make(map[string]Channel, len(channels))}
	for _, ch := range channels {
		if err := r.Register(ch); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds ch; a second channel with the same id is rejected.
func (r *Registry) Register(ch Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := ch.ID()
	if _, ok := r.channels[id]; ok {
		return fmt.Errorf("%w: %s", ErrChannelExists, id)
	}
	r.channels[id] = ch
	return nil
}

// Get returns the channel registered under id.
func (r *Registry) Get(id string) (Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}
	return ch, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[id]
	return ok
}

// IDs returns the registered channel ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
