package realtime

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry maps routing keys to the channels currently registered under them.
// A channel lives under at most one key and a key with no channels is removed.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]map[*Channel]struct{}
	owner   map[*Channel]string
	logger  *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		entries: make(map[string]map[*Channel]struct{}),
		owner:   make(map[*Channel]string),
		logger:  logger.Named("realtime.registry"),
	}
}

// Register adds ch under key. Registering the same channel again is a no-op;
// registering it under a different key moves it.
func (r *Registry) Register(key string, ch *Channel) {
	if ch == nil || key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.owner[ch]; ok {
		if prev == key {
			return
		}
		r.removeLocked(prev, ch)
	}

	set, ok := r.entries[key]
	if !ok {
		set = make(map[*Channel]struct{})
		r.entries[key] = set
	}
	set[ch] = struct{}{}
	r.owner[ch] = key

	r.logger.Debug("channel registered",
		zap.String("routing_key", key),
		zap.String("channel_id", ch.ID()),
		zap.Int("key_channels", len(set)))
}

// Deregister removes ch from key. Absent channels and keys are ignored.
func (r *Registry) Deregister(key string, ch *Channel) {
	if ch == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.owner[ch] != key {
		return
	}
	r.removeLocked(key, ch)

	r.logger.Debug("channel deregistered",
		zap.String("routing_key", key),
		zap.String("channel_id", ch.ID()))
}

func (r *Registry) removeLocked(key string, ch *Channel) {
	delete(r.owner, ch)
	set, ok := r.entries[key]
	if !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(r.entries, key)
	}
}

// ChannelsFor returns a snapshot of the channels under key
func (r *Registry) ChannelsFor(key string) []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.entries[key]
	out := make([]*Channel, 0, len(set))
	for ch := range set {
		out = append(out, ch)
	}
	return out
}

// All returns a snapshot of every registered channel
func (r *Registry) All() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Channel, 0, len(r.owner))
	for ch := range r.owner {
		out = append(out, ch)
	}
	return out
}

// Has reports whether key currently has at least one channel
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// Keys returns the sorted routing keys with live channels
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of registered channels
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owner)
}

// Stats returns channel counts per routing key
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.entries))
	for k, set := range r.entries {
		out[k] = len(set)
	}
	return out
}
