// Copyright 2024-2026 Aiku AI

package mention

import "sync"

// Registry maps platform tags to their mention codecs. Platform adapters
// register their tag at startup; relays look up the codec for the platform
// they render to.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]*Codec
}

// NewRegistry creates an empty codec registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]*Codec)}
}

// Register returns the codec for tag, creating it on first use.
func (r *Registry) Register(tag string) *Codec {
	r.mu.Lock()
	defer r.mu.Unlock()
	if codec, ok := r.codecs[tag]; ok {
		return codec
	}
	codec := NewCodec(tag)
	r.codecs[tag] = codec
	return codec
}

// Get returns the codec registered for tag.
func (r *Registry) Get(tag string) (*Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codec, ok := r.codecs[tag]
	return codec, ok
}

// Tags returns the registered platform tags.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.codecs))
	for tag := range r.codecs {
		tags = append(tags, tag)
	}
	return tags
}
