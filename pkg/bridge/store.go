// Copyright 2024-2026 Aiku AI

package bridge

import "sync"

// MessageStore keeps bridge messages and the per-platform native message
// coordinates they were rendered as. The refs enable reply threading: a
// reply sent on platform B can quote the native form of a message that was
// authored on platform A.
//
// All methods are safe for concurrent use; a single coarse lock guards both
// maps. Nothing here performs I/O, so pipelines never block each other on
// platform calls through this store.
type MessageStore struct {
	mu       sync.Mutex
	messages map[string]Message
	// refs maps bridge message id -> platform tag -> native message id.
	refs map[string]map[string]string
}

// NewMessageStore creates an empty message store.
func NewMessageStore() *MessageStore {
	return &MessageStore{
		messages: make(map[string]Message),
		refs:     make(map[string]map[string]string),
	}
}

// Add records a bridge message so later replies can quote its content.
// Re-adding the same id overwrites.
func (s *MessageStore) Add(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ID] = msg
}

// Get returns the stored message with the given bridge id.
func (s *MessageStore) Get(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	return msg, ok
}

// RecordDelivery associates a native message coordinate with a bridge
// message for one platform, after a successful send. Idempotent per
// (message, platform): re-recording overwrites the previous coordinate.
func (s *MessageStore) RecordDelivery(id, platform, nativeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byPlatform, ok := s.refs[id]
	if !ok {
		byPlatform = make(map[string]string)
		s.refs[id] = byPlatform
	}
	byPlatform[platform] = nativeID
}

// ResolveReplyTarget returns the native coordinate to quote when replying
// to the given bridge message on the given platform, or false if the
// message was never relayed there.
func (s *MessageStore) ResolveReplyTarget(id, platform string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nativeID, ok := s.refs[id][platform]
	return nativeID, ok
}

// Refs returns the refs accumulated for a bridge message, one per platform
// it was relayed to.
func (s *MessageStore) Refs(id string) []MessageRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	byPlatform := s.refs[id]
	if len(byPlatform) == 0 {
		return nil
	}
	refs := make([]MessageRef, 0, len(byPlatform))
	for platform, nativeID := range byPlatform {
		refs = append(refs, MessageRef{Platform: platform, OriginID: nativeID})
	}
	return refs
}
