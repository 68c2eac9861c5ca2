// Copyright 2024-2026 Aiku AI

// Package identity implements the canonical cross-platform user store.
//
// The store owns the full list of bridge users in memory behind one coarse
// lock and rewrites a flat JSON snapshot after every mutation. Composite
// operations such as [Store.GetOrCreate] hold the lock across the whole
// read-then-maybe-write sequence, so two concurrent creators of the same
// (origin, platform) identity can never allocate two distinct ids.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mau.fi/util/random"

	"github.com/aiku/chatbridge/pkg/bridge"
)

// ErrDuplicateIdentity is returned by Create when an identity with the same
// (origin, platform) pair already exists.
var ErrDuplicateIdentity = errors.New("identity already exists for this origin and platform")

// Store is the durable canonical user store.
type Store struct {
	mu    sync.Mutex
	users []bridge.User
	path  string
	log   zerolog.Logger
}

// NewStore loads the identity snapshot at path. A missing file means an
// empty store; an unreadable or unparseable file is an error and should
// abort startup.
func NewStore(path string, log zerolog.Logger) (*Store, error) {
	s := &Store{
		path: path,
		log:  log.With().Str("component", "identity_store").Logger(),
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Info().Str("path", path).Msg("No identity record found, starting empty")
		return s, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read identity record: %w", err)
	}
	if err = json.Unmarshal(data, &s.users); err != nil {
		return nil, fmt.Errorf("failed to parse identity record: %w", err)
	}
	s.log.Info().Int("count", len(s.users)).Str("path", path).Msg("Loaded identity record")
	return s, nil
}

// Get returns the user with the given canonical id. A miss is absence, not
// an error.
func (s *Store) Get(id string) (bridge.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(func(u *bridge.User) bool {
		return u.ID == id
	})
}

// FindByOrigin returns the user with the given native id on the given
// platform.
func (s *Store) FindByOrigin(originID, platform string) (bridge.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findByOriginLocked(originID, platform)
}

// FindLinked returns the identity on the given platform whose ref link
// points at refID. Records with no ref link never match.
func (s *Store) FindLinked(refID, platform string) (bridge.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(func(u *bridge.User) bool {
		return u.RefID != nil && *u.RefID == refID && u.Platform == platform
	})
}

// GetOrCreate returns the existing user for the form's (origin, platform)
// pair, or creates, persists, and returns a new one. The lookup and create
// are atomic: concurrent calls for the same pair yield the same id.
func (s *Store) GetOrCreate(form bridge.UserSaveForm) (bridge.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.findByOriginLocked(form.OriginID, form.Platform); ok {
		return user, nil
	}
	return s.createLocked(form)
}

// Create allocates a new identity for the form. It fails with
// ErrDuplicateIdentity if the (origin, platform) pair already exists, and
// does not mutate the store in that case.
func (s *Store) Create(form bridge.UserSaveForm) (bridge.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.findByOriginLocked(form.OriginID, form.Platform); ok {
		s.log.Info().
			Str("origin_id", form.OriginID).
			Str("platform", form.Platform).
			Msg("Refusing to create duplicate identity")
		return bridge.User{}, fmt.Errorf("%w: %s on %s", ErrDuplicateIdentity, form.OriginID, form.Platform)
	}
	return s.createLocked(form)
}

// BatchUpsert overwrites the mutable fields of each input record whose id
// already exists. Records with no match are skipped, not created. The
// snapshot is persisted once after the whole batch. Returns the number of
// records actually updated.
func (s *Store) BatchUpsert(records []bridge.User) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, record := range records {
		for i := range s.users {
			if s.users[i].ID != record.ID {
				continue
			}
			s.users[i].DisplayText = record.DisplayText
			s.users[i].OriginID = record.OriginID
			s.users[i].Platform = record.Platform
			s.users[i].RefID = record.RefID
			count++
			break
		}
	}
	if err := s.persistLocked(); err != nil {
		return count, err
	}
	return count, nil
}

// Len returns the number of stored identities.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *Store) findLocked(match func(*bridge.User) bool) (bridge.User, bool) {
	for i := range s.users {
		if match(&s.users[i]) {
			return s.users[i], true
		}
	}
	return bridge.User{}, false
}

func (s *Store) findByOriginLocked(originID, platform string) (bridge.User, bool) {
	return s.findLocked(func(u *bridge.User) bool {
		return u.OriginID == originID && u.Platform == platform
	})
}

func (s *Store) createLocked(form bridge.UserSaveForm) (bridge.User, error) {
	user := bridge.User{
		ID:          uuid.NewString(),
		OriginID:    form.OriginID,
		Platform:    form.Platform,
		DisplayText: form.DisplayText,
	}
	s.users = append(s.users, user)
	if err := s.persistLocked(); err != nil {
		s.users = s.users[:len(s.users)-1]
		return bridge.User{}, err
	}
	s.log.Debug().
		Str("id", user.ID).
		Str("origin_id", user.OriginID).
		Str("platform", user.Platform).
		Msg("Created bridge user")
	return user, nil
}

// persistLocked rewrites the full snapshot. It writes to a temp file in the
// target directory and renames it over the record, so a crash mid-write
// cannot leave a truncated snapshot behind.
func (s *Store) persistLocked() error {
	data, err := json.Marshal(s.users)
	if err != nil {
		return fmt.Errorf("failed to serialize identity record: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create identity record directory: %w", err)
		}
	}
	tmp := s.path + "." + random.String(8) + ".tmp"
	if err = os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write identity record: %w", err)
	}
	if err = os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace identity record: %w", err)
	}
	return nil
}
